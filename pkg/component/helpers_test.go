package component

import (
	"context"
	"sync"
)

// tracker records callback invocations in order as "name:op".
type tracker struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	hooks map[string]func(ctx context.Context)
}

func newTracker() *tracker {
	return &tracker{
		calls: make([]string, 0),
		fail:  make(map[string]error),
		hooks: make(map[string]func(ctx context.Context)),
	}
}

func (t *tracker) failOn(name string, op Operation, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail[name+":"+string(op)] = err
}

// on runs fn inside the callback, with no tracker lock held.
func (t *tracker) on(name string, op Operation, fn func(ctx context.Context)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hooks[name+":"+string(op)] = fn
}

func (t *tracker) callbacks(name string) Callbacks {
	mk := func(op Operation) Callback {
		key := name + ":" + string(op)
		return func(ctx context.Context) error {
			t.mu.Lock()
			t.calls = append(t.calls, key)
			hook := t.hooks[key]
			err := t.fail[key]
			t.mu.Unlock()

			if hook != nil {
				hook(ctx)
			}
			return err
		}
	}
	return Callbacks{
		Init:    mk(OperationInit),
		Deinit:  mk(OperationDeinit),
		Start:   mk(OperationStart),
		Stop:    mk(OperationStop),
		Suspend: mk(OperationSuspend),
		Resume:  mk(OperationResume),
	}
}

// order returns the component names called for op, in call order.
func (t *tracker) order(op Operation) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	suffix := ":" + string(op)
	names := make([]string, 0)
	for _, call := range t.calls {
		if len(call) > len(suffix) && call[len(call)-len(suffix):] == suffix {
			names = append(names, call[:len(call)-len(suffix)])
		}
	}
	return names
}

func (t *tracker) count(name string, op Operation) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := name + ":" + string(op)
	n := 0
	for _, call := range t.calls {
		if call == key {
			n++
		}
	}
	return n
}

func (t *tracker) total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// recordingObserver captures notifications for assertions.
type recordingObserver struct {
	NopObserver

	mu          sync.Mutex
	registered  []string
	removed     []string
	transitions []Transition
	reports     []*BulkReport
}

func (o *recordingObserver) Registered(_ context.Context, info Info) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registered = append(o.registered, info.Name)
}

func (o *recordingObserver) Unregistered(_ context.Context, info Info) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removed = append(o.removed, info.Name)
}

func (o *recordingObserver) TransitionFinished(_ context.Context, t Transition) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, t)
}

func (o *recordingObserver) BulkFinished(_ context.Context, r *BulkReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reports = append(o.reports, r)
}

type fixture struct {
	reg     *Registry
	orch    *Orchestrator
	tracker *tracker
	obs     *recordingObserver
}

func newFixture() *fixture {
	obs := &recordingObserver{}
	reg := NewRegistry(RegistryConfig{Observer: obs})
	return &fixture{
		reg:     reg,
		orch:    NewOrchestrator(reg, OrchestratorConfig{}),
		tracker: newTracker(),
		obs:     obs,
	}
}

// add registers a tracked component and fails the test on error.
func (f *fixture) add(t interface{ Fatalf(string, ...any) }, name string, p Priority, deps ...Dependency) {
	err := f.reg.Register(context.Background(), Descriptor{
		Name:         name,
		Priority:     p,
		Dependencies: deps,
		Callbacks:    f.tracker.callbacks(name),
	})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", name, err)
	}
}

func (f *fixture) status(t interface{ Fatalf(string, ...any) }, name string) Status {
	s, err := f.reg.Status(name)
	if err != nil {
		t.Fatalf("Status(%s) error = %v", name, err)
	}
	return s
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
