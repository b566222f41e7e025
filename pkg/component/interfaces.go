package component

import "context"

// Observer receives lifecycle notifications. Implementations must be safe
// for concurrent use and must not call back into the Registry while
// handling a notification; they are invoked outside the registry lock.
type Observer interface {
	// Registered is called after a component has been added.
	Registered(ctx context.Context, info Info)

	// Unregistered is called after a component has been removed.
	Unregistered(ctx context.Context, info Info)

	// TransitionStarted is called before a callback runs. The returned
	// context is passed to the callback and to TransitionFinished.
	TransitionStarted(ctx context.Context, t Transition) context.Context

	// TransitionFinished is called once the new status has been recorded.
	TransitionFinished(ctx context.Context, t Transition)

	// BulkStarted is called before a bulk operation touches any component.
	// The returned context is used for every transition in the run.
	BulkStarted(ctx context.Context, runID string, op BulkOperation) context.Context

	// BulkFinished is called with the final report of a bulk operation.
	BulkFinished(ctx context.Context, report *BulkReport)
}

// Admitter vets descriptors before they are registered. A non-nil error
// rejects the registration.
type Admitter interface {
	Admit(ctx context.Context, d *Descriptor) error
}

// AdmitterFunc adapts a function to the Admitter interface.
type AdmitterFunc func(ctx context.Context, d *Descriptor) error

// Admit calls f.
func (f AdmitterFunc) Admit(ctx context.Context, d *Descriptor) error {
	return f(ctx, d)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) Registered(context.Context, Info)   {}
func (NopObserver) Unregistered(context.Context, Info) {}

func (NopObserver) TransitionStarted(ctx context.Context, _ Transition) context.Context {
	return ctx
}

func (NopObserver) TransitionFinished(context.Context, Transition) {}

func (NopObserver) BulkStarted(ctx context.Context, _ string, _ BulkOperation) context.Context {
	return ctx
}

func (NopObserver) BulkFinished(context.Context, *BulkReport) {}

// MultiObserver fans notifications out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) Registered(ctx context.Context, info Info) {
	for _, o := range m {
		o.Registered(ctx, info)
	}
}

func (m MultiObserver) Unregistered(ctx context.Context, info Info) {
	for _, o := range m {
		o.Unregistered(ctx, info)
	}
}

func (m MultiObserver) TransitionStarted(ctx context.Context, t Transition) context.Context {
	for _, o := range m {
		ctx = o.TransitionStarted(ctx, t)
	}
	return ctx
}

func (m MultiObserver) TransitionFinished(ctx context.Context, t Transition) {
	for _, o := range m {
		o.TransitionFinished(ctx, t)
	}
}

func (m MultiObserver) BulkStarted(ctx context.Context, runID string, op BulkOperation) context.Context {
	for _, o := range m {
		ctx = o.BulkStarted(ctx, runID, op)
	}
	return ctx
}

func (m MultiObserver) BulkFinished(ctx context.Context, report *BulkReport) {
	for _, o := range m {
		o.BulkFinished(ctx, report)
	}
}
