package component

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// rule describes one edge of the lifecycle state machine.
type rule struct {
	// from lists the statuses the operation acts on.
	from []Status

	// to is the status after a successful callback.
	to Status

	// noop lists statuses in which the operation succeeds without running
	// the callback.
	noop []Status
}

var transitions = map[Operation]rule{
	OperationInit: {
		from: []Status{StatusUninitialized},
		to:   StatusInitialized,
		noop: []Status{StatusInitialized, StatusRunning, StatusSuspended},
	},
	OperationStart: {
		from: []Status{StatusInitialized},
		to:   StatusRunning,
		noop: []Status{StatusRunning},
	},
	OperationStop: {
		from: []Status{StatusRunning},
		to:   StatusInitialized,
		noop: []Status{StatusInitialized},
	},
	OperationSuspend: {
		from: []Status{StatusRunning},
		to:   StatusSuspended,
		noop: []Status{StatusSuspended},
	},
	OperationResume: {
		from: []Status{StatusSuspended},
		to:   StatusRunning,
	},
	OperationDeinit: {
		from: []Status{StatusInitialized},
		to:   StatusUninitialized,
		noop: []Status{StatusUninitialized},
	},
}

func containsStatus(list []Status, s Status) bool {
	for _, candidate := range list {
		if candidate == s {
			return true
		}
	}
	return false
}

// apply runs op against the component behind h according to the state
// machine. It reports whether a callback was attempted.
func (r *Registry) apply(ctx context.Context, h Handle, op Operation, runID string) (bool, error) {
	rl, ok := transitions[op]
	if !ok {
		return false, newError(KindInvalidParam, ModuleOrchestrator, "unknown lifecycle operation").
			WithOperation(op)
	}

	rec := h.rec
	name := rec.desc.Name

	r.mu.Lock()
	if !rec.visible() {
		r.mu.Unlock()
		return false, newError(KindNotFound, ModuleOrchestrator, "component not found").
			WithComponent(name).
			WithOperation(op)
	}

	from := rec.status
	switch {
	case from == StatusError:
		r.mu.Unlock()
		return false, newError(KindInErrorState, ModuleOrchestrator, "component is in error state").
			WithComponent(name).
			WithOperation(op)
	case containsStatus(rl.noop, from):
		r.mu.Unlock()
		return false, nil
	case !containsStatus(rl.from, from):
		r.mu.Unlock()
		return false, newError(KindIllegalTransition, ModuleOrchestrator,
			fmt.Sprintf("cannot %s a component that is %s", op, from)).
			WithComponent(name).
			WithOperation(op).
			WithDetail("status", string(from))
	case rec.busy:
		r.mu.Unlock()
		return false, newError(KindIllegalTransition, ModuleOrchestrator, "transition already in progress").
			WithComponent(name).
			WithOperation(op).
			WithDetail("in_progress", true)
	}
	rec.busy = true
	r.mu.Unlock()

	return true, r.execute(ctx, rec, op, from, rl.to, runID, true)
}

// execute invokes the callback for op outside the lock and records the
// resulting status under it. Any callback failure moves the component to
// StatusError. When release is set the busy flag is cleared with the
// status write, unless an unregister arrived meanwhile; the deferred
// teardown then runs from the new status before execute returns.
func (r *Registry) execute(
	ctx context.Context,
	rec *record,
	op Operation,
	from, to Status,
	runID string,
	release bool,
) error {
	t := Transition{
		RunID:     runID,
		Component: rec.desc.Name,
		Operation: op,
		From:      from,
		To:        to,
		StartedAt: time.Now(),
	}

	parent := ctx
	ctx = r.observer.TransitionStarted(ctx, t)
	cbErr := invoke(ctx, rec.desc.Callbacks.For(op))
	t.Duration = time.Since(t.StartedAt)

	var err error
	if cbErr != nil {
		err = callbackFailure(rec.desc.Name, op, cbErr)
		t.To = StatusError
		t.Err = err
	}

	r.mu.Lock()
	rec.status = t.To
	rec.updatedAt = time.Now()
	if err != nil {
		rec.lastErr = err
	}
	pendingRemoval := release && rec.removing
	if release && !pendingRemoval {
		rec.busy = false
	}
	r.mu.Unlock()

	event := r.logger.Debug()
	if err != nil {
		event = r.logger.Error().Err(err)
	}
	event.
		Str("component", t.Component).
		Str("operation", string(op)).
		Str("from", string(from)).
		Str("to", string(t.To)).
		Dur("duration", t.Duration).
		Msg("lifecycle transition")

	r.observer.TransitionFinished(ctx, t)

	if pendingRemoval {
		r.remove(parent, rec, t.To)
	}
	return err
}

// invoke calls cb, converting a panic into an error.
func invoke(ctx context.Context, cb Callback) (err error) {
	if cb == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("callback panicked: %v", p)
		}
	}()
	return cb(ctx)
}

func callbackFailure(name string, op Operation, cause error) *Error {
	e := newError(KindCallbackFailed, ModuleOrchestrator, "lifecycle callback failed").
		WithComponent(name).
		WithOperation(op).
		WithCause(cause)
	e.Code = CodeUnspecified
	var coded Coder
	if errors.As(cause, &coded) {
		e.Code = coded.Code()
	}
	return e
}
