package component

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// record is the registry-owned state of one component.
type record struct {
	desc       Descriptor
	generation uint64

	// The fields below are guarded by Registry.mu.
	status       Status
	busy         bool
	removing     bool
	removed      bool
	registeredAt time.Time
	updatedAt    time.Time
	lastErr      error
}

func (rec *record) info() Info {
	info := Info{
		Name:         rec.desc.Name,
		Description:  rec.desc.Description,
		Version:      rec.desc.Version,
		Priority:     rec.desc.Priority,
		Dependencies: cloneDependencies(rec.desc.Dependencies),
		Status:       rec.status,
		Generation:   rec.generation,
		RegisteredAt: rec.registeredAt,
		UpdatedAt:    rec.updatedAt,
		PrivateData:  rec.desc.PrivateData,
	}
	if rec.lastErr != nil {
		info.LastError = rec.lastErr.Error()
	}
	return info
}

// visible reports whether lifecycle operations may act on the record.
func (rec *record) visible() bool {
	return !rec.removing && !rec.removed
}

// present reports whether the record still counts as registered. A record
// being torn down is present until its removal completes.
func (rec *record) present() bool {
	return !rec.removed
}

// Handle refers to a record captured by Snapshot. The record may be
// unregistered after the snapshot is taken; operations on such a stale
// handle are skipped.
type Handle struct {
	rec *record
}

// Name returns the component name.
func (h Handle) Name() string { return h.rec.desc.Name }

// Priority returns the component priority.
func (h Handle) Priority() Priority { return h.rec.desc.Priority }

// Generation returns the registration sequence number of the record.
func (h Handle) Generation() uint64 { return h.rec.generation }

// Dependencies returns a copy of the component's dependencies.
func (h Handle) Dependencies() []Dependency { return cloneDependencies(h.rec.desc.Dependencies) }

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// MaxComponents caps the number of registered components. Zero means unlimited.
	MaxComponents int

	// Logger receives registry logs. Nil disables logging.
	Logger *zerolog.Logger

	// Observer receives lifecycle notifications. Nil disables them.
	Observer Observer

	// Admitter vets descriptors before registration. Nil admits everything.
	Admitter Admitter
}

// Registry is the ordered collection of registered components. Records are
// kept in ascending priority order, stable with respect to registration.
// All mutation, enumeration and status writes happen under one mutex;
// lifecycle callbacks are always invoked with the mutex released.
type Registry struct {
	mu      sync.Mutex
	records []*record
	byName  map[string]*record
	nextGen uint64

	maxComponents int
	logger        zerolog.Logger
	observer      Observer
	admitter      Admitter
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("module", string(ModuleRegistry)).Logger()
	}

	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	return &Registry{
		records:       make([]*record, 0),
		byName:        make(map[string]*record),
		maxComponents: cfg.MaxComponents,
		logger:        logger,
		observer:      observer,
		admitter:      cfg.Admitter,
	}
}

// Register adds a component in UNINITIALIZED status.
func (r *Registry) Register(ctx context.Context, d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}

	if r.admitter != nil {
		if err := r.admitter.Admit(ctx, &d); err != nil {
			var ce *Error
			if errors.As(err, &ce) {
				return err
			}
			return newError(KindInvalidParam, ModuleRegistry, "registration rejected").
				WithComponent(d.Name).
				WithCause(err)
		}
	}

	d.Dependencies = cloneDependencies(d.Dependencies)
	now := time.Now()
	rec := &record{
		desc:         d,
		status:       StatusUninitialized,
		registeredAt: now,
		updatedAt:    now,
	}

	r.mu.Lock()
	if _, exists := r.byName[d.Name]; exists {
		r.mu.Unlock()
		return newError(KindAlreadyRegistered, ModuleRegistry, "component already registered").
			WithComponent(d.Name)
	}
	if r.maxComponents > 0 && len(r.byName) >= r.maxComponents {
		r.mu.Unlock()
		return newError(KindNoMemory, ModuleRegistry, "registry capacity exhausted").
			WithComponent(d.Name).
			WithDetail("max_components", r.maxComponents)
	}

	r.nextGen++
	rec.generation = r.nextGen

	// Upper bound keeps equal priorities in registration order.
	idx := sort.Search(len(r.records), func(i int) bool {
		return r.records[i].desc.Priority > d.Priority
	})
	r.records = append(r.records, nil)
	copy(r.records[idx+1:], r.records[idx:])
	r.records[idx] = rec
	r.byName[d.Name] = rec
	info := rec.info()
	r.mu.Unlock()

	r.logger.Debug().
		Str("component", d.Name).
		Stringer("priority", d.Priority).
		Int("dependencies", len(d.Dependencies)).
		Msg("component registered")
	r.observer.Registered(ctx, info)

	return nil
}

// Unregister removes a component. A running or suspended component is
// stopped and deinitialized first; an initialized one is deinitialized.
// Callback failures during teardown are logged and do not prevent removal.
//
// If a transition of the component is in flight, Unregister returns at once
// and the teardown runs when that transition finishes, from the status it
// produced. Until then the name stays registered, and further Unregister
// calls for it return nil.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	r.mu.Lock()
	rec, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return newError(KindNotFound, ModuleRegistry, "component not found").WithComponent(name)
	}
	if rec.removing {
		r.mu.Unlock()
		return nil
	}
	rec.removing = true

	if rec.busy {
		r.mu.Unlock()
		r.logger.Debug().
			Str("component", name).
			Msg("component busy, removal deferred until its transition finishes")
		return nil
	}

	status := rec.status
	rec.busy = true
	r.mu.Unlock()

	r.remove(ctx, rec, status)
	return nil
}

// remove tears rec down from status and drops it. The caller holds the
// record's busy flag and has set removing.
func (r *Registry) remove(ctx context.Context, rec *record, status Status) {
	r.teardown(ctx, rec, status)

	r.mu.Lock()
	rec.busy = false
	r.removeLocked(rec)
	info := rec.info()
	r.mu.Unlock()

	r.logger.Debug().
		Str("component", rec.desc.Name).
		Str("status", string(status)).
		Msg("component unregistered")
	r.observer.Unregistered(ctx, info)
}

// teardown runs the callbacks that take a component from status back to
// UNINITIALIZED. The caller holds the record's busy flag.
func (r *Registry) teardown(ctx context.Context, rec *record, status Status) {
	var steps []Operation
	switch status {
	case StatusRunning, StatusSuspended:
		steps = []Operation{OperationStop, OperationDeinit}
	case StatusInitialized:
		steps = []Operation{OperationDeinit}
	default:
		return
	}

	from := status
	for _, op := range steps {
		to := transitions[op].to
		if err := r.execute(ctx, rec, op, from, to, "", false); err != nil {
			r.logger.Error().
				Err(err).
				Str("component", rec.desc.Name).
				Str("operation", string(op)).
				Msg("teardown callback failed, continuing removal")
			from = StatusError
			continue
		}
		from = to
	}
}

// removeLocked drops rec from the ordered slice and the name index.
func (r *Registry) removeLocked(rec *record) {
	for i, candidate := range r.records {
		if candidate == rec {
			r.records = append(r.records[:i], r.records[i+1:]...)
			break
		}
	}
	if r.byName[rec.desc.Name] == rec {
		delete(r.byName, rec.desc.Name)
	}
	rec.removed = true
}

// Find returns a copy of the named component. A component whose removal is
// pending is still found.
func (r *Registry) Find(name string) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byName[name]
	if !ok || !rec.present() {
		return Info{}, false
	}
	return rec.info(), true
}

// Status returns the current status of the named component.
func (r *Registry) Status(name string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byName[name]
	if !ok || !rec.present() {
		return "", newError(KindNotFound, ModuleRegistry, "component not found").WithComponent(name)
	}
	return rec.status, nil
}

// Snapshot returns handles to at most max records in registry order.
// A max of zero or less returns every record. The lock is released before
// Snapshot returns, so the registry may change while the caller works
// through the handles.
func (r *Registry) Snapshot(max int) []Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.records)
	if max > 0 && max < n {
		n = max
	}
	handles := make([]Handle, 0, n)
	for _, rec := range r.records {
		if len(handles) == n {
			break
		}
		if rec.visible() {
			handles = append(handles, Handle{rec: rec})
		}
	}
	return handles
}

// Enumerate copies records into buf in registry order and returns the count.
func (r *Registry) Enumerate(buf []Info) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, rec := range r.records {
		if n == len(buf) {
			break
		}
		if rec.present() {
			buf[n] = rec.info()
			n++
		}
	}
	return n
}

// List returns copies of every record in registry order.
func (r *Registry) List() []Info {
	buf := make([]Info, r.Len())
	n := r.Enumerate(buf)
	return buf[:n]
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, rec := range r.records {
		if rec.present() {
			n++
		}
	}
	return n
}

// lookup returns the status of a live component by name.
func (r *Registry) lookup(name string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byName[name]
	if !ok || !rec.visible() {
		return "", false
	}
	return rec.status, true
}

// statusOf returns the status behind h, or false if h is stale.
func (r *Registry) statusOf(h Handle) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !h.rec.visible() {
		return "", false
	}
	return h.rec.status, true
}

// handle returns a handle to the named live component.
func (r *Registry) handle(name string) (Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byName[name]
	if !ok || !rec.visible() {
		return Handle{}, newError(KindNotFound, ModuleRegistry, "component not found").WithComponent(name)
	}
	return Handle{rec: rec}, nil
}

func cloneDependencies(deps []Dependency) []Dependency {
	if len(deps) == 0 {
		return nil
	}
	out := make([]Dependency, len(deps))
	copy(out, deps)
	return out
}

// String implements fmt.Stringer for debugging.
func (r *Registry) String() string {
	return fmt.Sprintf("Registry(%d components)", r.Len())
}
