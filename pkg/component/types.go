package component

import (
	"context"
	"time"
)

// Dependency names another component this one relies on.
type Dependency struct {
	// Name of the depended-upon component. It need not be registered yet.
	Name string `json:"name" yaml:"name"`

	// Optional dependencies never block initialization.
	Optional bool `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Requires returns a mandatory dependency on name.
func Requires(name string) Dependency {
	return Dependency{Name: name}
}

// Uses returns an optional dependency on name.
func Uses(name string) Dependency {
	return Dependency{Name: name, Optional: true}
}

// Callback is a lifecycle hook. A nil callback is a no-op and the
// transition is still applied.
type Callback func(ctx context.Context) error

// Callbacks holds the six optional lifecycle hooks of a component.
type Callbacks struct {
	Init    Callback
	Deinit  Callback
	Start   Callback
	Stop    Callback
	Suspend Callback
	Resume  Callback
}

// For returns the callback bound to op, which may be nil.
func (c Callbacks) For(op Operation) Callback {
	switch op {
	case OperationInit:
		return c.Init
	case OperationDeinit:
		return c.Deinit
	case OperationStart:
		return c.Start
	case OperationStop:
		return c.Stop
	case OperationSuspend:
		return c.Suspend
	case OperationResume:
		return c.Resume
	default:
		return nil
	}
}

// Initializer is implemented by components with an init hook.
type Initializer interface {
	Init(ctx context.Context) error
}

// Deinitializer is implemented by components with a deinit hook.
type Deinitializer interface {
	Deinit(ctx context.Context) error
}

// Starter is implemented by components with a start hook.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by components with a stop hook.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Suspender is implemented by components with a suspend hook.
type Suspender interface {
	Suspend(ctx context.Context) error
}

// Resumer is implemented by components with a resume hook.
type Resumer interface {
	Resume(ctx context.Context) error
}

// CallbacksFor builds Callbacks from whichever capability interfaces v implements.
func CallbacksFor(v any) Callbacks {
	var cb Callbacks
	if i, ok := v.(Initializer); ok {
		cb.Init = i.Init
	}
	if d, ok := v.(Deinitializer); ok {
		cb.Deinit = d.Deinit
	}
	if s, ok := v.(Starter); ok {
		cb.Start = s.Start
	}
	if s, ok := v.(Stopper); ok {
		cb.Stop = s.Stop
	}
	if s, ok := v.(Suspender); ok {
		cb.Suspend = s.Suspend
	}
	if r, ok := v.(Resumer); ok {
		cb.Resume = r.Resume
	}
	return cb
}

// Descriptor is what callers hand to Registry.Register.
type Descriptor struct {
	// Name is the unique registry key. It is immutable after registration.
	Name string

	// Description and Version are for display only.
	Description string
	Version     string

	// Priority orders bulk operations. Lower runs earlier at bring-up.
	Priority Priority

	// Dependencies are checked in order.
	Dependencies []Dependency

	// Callbacks are the lifecycle hooks.
	Callbacks Callbacks

	// PrivateData is carried for the caller and never inspected.
	PrivateData any
}

// Validate checks the descriptor's structural requirements.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return newError(KindInvalidParam, ModuleRegistry, "component name is required")
	}
	for i, dep := range d.Dependencies {
		if dep.Name == "" {
			return newError(KindInvalidParam, ModuleRegistry, "dependency name is required").
				WithComponent(d.Name).
				WithDetail("index", i)
		}
	}
	return nil
}

// Info is a point-in-time copy of a registered component.
type Info struct {
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Version      string       `json:"version,omitempty"`
	Priority     Priority     `json:"priority"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
	Status       Status       `json:"status"`
	Generation   uint64       `json:"generation"`
	RegisteredAt time.Time    `json:"registered_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	LastError    string       `json:"last_error,omitempty"`
	PrivateData  any          `json:"-"`
}

// Transition describes one lifecycle operation applied to one component.
type Transition struct {
	// RunID is the bulk run the transition belongs to, empty for single calls.
	RunID     string        `json:"run_id,omitempty"`
	Component string        `json:"component"`
	Operation Operation     `json:"operation"`
	From      Status        `json:"from"`
	To        Status        `json:"to"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Err       error         `json:"-"`
}

// OutcomeKind summarizes what a bulk operation did with one component.
type OutcomeKind string

const (
	// OutcomeTransitioned means the callback ran and the status advanced.
	OutcomeTransitioned OutcomeKind = "transitioned"

	// OutcomeSkipped means the component was passed over, for example on a
	// dependency failure or because it was unregistered mid-run.
	OutcomeSkipped OutcomeKind = "skipped"

	// OutcomeFailed means the callback failed and the component is now in error.
	OutcomeFailed OutcomeKind = "failed"

	// OutcomeUnchanged means the component was not in the source status the
	// bulk operation acts on.
	OutcomeUnchanged OutcomeKind = "unchanged"
)

// Outcome is the per-component result of a bulk operation.
type Outcome struct {
	Component string      `json:"component"`
	Kind      OutcomeKind `json:"kind"`
	Status    Status      `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	Err       error       `json:"-"`
}

// BulkReport summarizes a bulk operation.
type BulkReport struct {
	RunID       string        `json:"run_id"`
	Operation   BulkOperation `json:"operation"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Outcomes    []Outcome     `json:"outcomes"`
	Err         error         `json:"-"`
}

// Duration returns how long the bulk operation took.
func (r *BulkReport) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Count returns the number of outcomes of the given kind.
func (r *BulkReport) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Order returns the names of components that were transitioned, in order.
func (r *BulkReport) Order() []string {
	names := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Kind == OutcomeTransitioned || o.Kind == OutcomeFailed {
			names = append(names, o.Component)
		}
	}
	return names
}
