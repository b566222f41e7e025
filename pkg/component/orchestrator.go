package component

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	// MaxDependencyDepth bounds cycle detection. Zero selects
	// DefaultMaxDependencyDepth.
	MaxDependencyDepth int

	// Logger receives orchestration logs. Nil disables logging.
	Logger *zerolog.Logger
}

// Orchestrator drives components through their lifecycle, one at a time
// or in bulk. Bulk operations work on a snapshot of the registry in
// ascending priority order (reversed for shutdown) and continue past
// individual failures, returning the first error they met.
type Orchestrator struct {
	registry  *Registry
	validator *Validator
	logger    zerolog.Logger
}

// NewOrchestrator creates an orchestrator over registry.
func NewOrchestrator(registry *Registry, cfg OrchestratorConfig) *Orchestrator {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("module", string(ModuleOrchestrator)).Logger()
	}

	return &Orchestrator{
		registry:  registry,
		validator: NewValidator(registry, cfg.MaxDependencyDepth),
		logger:    logger,
	}
}

// Registry returns the registry the orchestrator drives.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Validator returns the dependency validator used by the orchestrator.
func (o *Orchestrator) Validator() *Validator {
	return o.validator
}

// Init initializes the named component after checking its dependencies.
// It is a no-op for a component that is already initialized or beyond.
func (o *Orchestrator) Init(ctx context.Context, name string) error {
	h, err := o.registry.handle(name)
	if err != nil {
		return err
	}
	if status, ok := o.registry.statusOf(h); ok && status == StatusUninitialized {
		if err := o.validator.checkHandle(h); err != nil {
			return err
		}
	}
	_, err = o.registry.apply(ctx, h, OperationInit, "")
	return err
}

// Start starts the named component. Starting a running component is a no-op.
func (o *Orchestrator) Start(ctx context.Context, name string) error {
	return o.single(ctx, name, OperationStart)
}

// Stop stops the named component. Stopping an initialized component is a no-op.
func (o *Orchestrator) Stop(ctx context.Context, name string) error {
	return o.single(ctx, name, OperationStop)
}

// Suspend pauses the named running component.
func (o *Orchestrator) Suspend(ctx context.Context, name string) error {
	return o.single(ctx, name, OperationSuspend)
}

// Resume restarts the named suspended component. Any other status yields
// an IllegalTransition error.
func (o *Orchestrator) Resume(ctx context.Context, name string) error {
	return o.single(ctx, name, OperationResume)
}

// Deinit returns the named initialized component to uninitialized.
func (o *Orchestrator) Deinit(ctx context.Context, name string) error {
	return o.single(ctx, name, OperationDeinit)
}

// Status returns the status of the named component.
func (o *Orchestrator) Status(name string) (Status, error) {
	return o.registry.Status(name)
}

func (o *Orchestrator) single(ctx context.Context, name string, op Operation) error {
	h, err := o.registry.handle(name)
	if err != nil {
		return err
	}
	_, err = o.registry.apply(ctx, h, op, "")
	return err
}

// BringUpAll initializes every uninitialized component. A dependency cycle
// anywhere in the registry aborts the run before any callback is invoked.
// Components whose mandatory dependencies are not ready are skipped and
// stay uninitialized; a later call may initialize them.
func (o *Orchestrator) BringUpAll(ctx context.Context) error {
	ctx, report := o.begin(ctx, BulkBringUp)

	handles := o.registry.Snapshot(0)
	if err := o.validator.CheckCycles(handles); err != nil {
		o.logger.Error().Err(err).Str("run_id", report.RunID).Msg("bring-up aborted")
		return o.finish(ctx, report, err)
	}

	for _, c := range o.validator.OrderingConflicts(handles) {
		o.logger.Warn().
			Str("run_id", report.RunID).
			Str("component", c.Component).
			Str("dependency", c.Dependency).
			Msg("mandatory dependency is ordered after its dependent")
	}

	sortHandles(handles)
	err := o.each(ctx, report, handles, OperationInit, StatusUninitialized, o.validator.checkHandle)
	return o.finish(ctx, report, err)
}

// StartAll starts every initialized component. Dependencies are not
// re-checked.
func (o *Orchestrator) StartAll(ctx context.Context) error {
	ctx, report := o.begin(ctx, BulkStart)

	handles := o.registry.Snapshot(0)
	sortHandles(handles)
	err := o.each(ctx, report, handles, OperationStart, StatusInitialized, nil)
	return o.finish(ctx, report, err)
}

// StopAll stops every running component in reverse bring-up order.
func (o *Orchestrator) StopAll(ctx context.Context) error {
	ctx, report := o.begin(ctx, BulkStop)

	handles := o.registry.Snapshot(0)
	sortHandles(handles)
	err := o.each(ctx, report, reversed(handles), OperationStop, StatusRunning, nil)
	return o.finish(ctx, report, err)
}

// DeinitAll deinitializes every initialized component in reverse bring-up
// order.
func (o *Orchestrator) DeinitAll(ctx context.Context) error {
	ctx, report := o.begin(ctx, BulkDeinit)

	handles := o.registry.Snapshot(0)
	sortHandles(handles)
	err := o.each(ctx, report, reversed(handles), OperationDeinit, StatusInitialized, nil)
	return o.finish(ctx, report, err)
}

// ShutdownAll stops every running component and then deinitializes every
// initialized one, both in reverse bring-up order, as a single run.
func (o *Orchestrator) ShutdownAll(ctx context.Context) error {
	ctx, report := o.begin(ctx, BulkShutdown)

	handles := o.registry.Snapshot(0)
	sortHandles(handles)
	order := reversed(handles)

	stopErr := o.each(ctx, report, order, OperationStop, StatusRunning, nil)
	deinitErr := o.each(ctx, report, order, OperationDeinit, StatusInitialized, nil)

	err := stopErr
	if err == nil {
		err = deinitErr
	}
	return o.finish(ctx, report, err)
}

// each applies op to every handle currently in status source. precheck,
// when set, may veto a component, which is then skipped. It returns the
// first error met while continuing through the whole list.
func (o *Orchestrator) each(
	ctx context.Context,
	report *BulkReport,
	handles []Handle,
	op Operation,
	source Status,
	precheck func(Handle) error,
) error {
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	for _, h := range handles {
		if err := ctx.Err(); err != nil {
			keep(err)
			break
		}

		status, live := o.registry.statusOf(h)
		if !live {
			report.Outcomes = append(report.Outcomes, Outcome{
				Component: h.Name(),
				Kind:      OutcomeSkipped,
				Reason:    "unregistered",
			})
			continue
		}
		if status != source {
			report.Outcomes = append(report.Outcomes, Outcome{
				Component: h.Name(),
				Kind:      OutcomeUnchanged,
				Status:    status,
			})
			continue
		}

		if precheck != nil {
			if err := precheck(h); err != nil {
				o.logger.Warn().
					Err(err).
					Str("run_id", report.RunID).
					Str("component", h.Name()).
					Str("operation", string(op)).
					Msg("component skipped")
				report.Outcomes = append(report.Outcomes, Outcome{
					Component: h.Name(),
					Kind:      OutcomeSkipped,
					Status:    status,
					Reason:    string(KindOf(err)),
					Err:       err,
				})
				keep(err)
				continue
			}
		}

		attempted, err := o.registry.apply(ctx, h, op, report.RunID)
		outcome := Outcome{Component: h.Name(), Err: err}
		switch {
		case err != nil && attempted:
			outcome.Kind = OutcomeFailed
			outcome.Status = StatusError
			outcome.Reason = string(KindCallbackFailed)
		case err != nil:
			outcome.Kind = OutcomeSkipped
			outcome.Status = status
			outcome.Reason = string(KindOf(err))
		case attempted:
			outcome.Kind = OutcomeTransitioned
			outcome.Status = transitions[op].to
		default:
			outcome.Kind = OutcomeUnchanged
			outcome.Status = status
		}
		if err != nil {
			keep(err)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return firstErr
}

func (o *Orchestrator) begin(ctx context.Context, op BulkOperation) (context.Context, *BulkReport) {
	report := &BulkReport{
		RunID:     uuid.New().String(),
		Operation: op,
		StartedAt: time.Now(),
		Outcomes:  make([]Outcome, 0),
	}
	o.logger.Info().
		Str("run_id", report.RunID).
		Str("operation", string(op)).
		Msg("bulk operation started")
	return o.registry.observer.BulkStarted(ctx, report.RunID, op), report
}

func (o *Orchestrator) finish(ctx context.Context, report *BulkReport, err error) error {
	report.CompletedAt = time.Now()
	report.Err = err

	event := o.logger.Info()
	if err != nil {
		event = o.logger.Warn().Err(err)
	}
	event.
		Str("run_id", report.RunID).
		Str("operation", string(report.Operation)).
		Int("transitioned", report.Count(OutcomeTransitioned)).
		Int("skipped", report.Count(OutcomeSkipped)).
		Int("failed", report.Count(OutcomeFailed)).
		Dur("duration", report.Duration()).
		Msg("bulk operation finished")

	o.registry.observer.BulkFinished(ctx, report)
	return err
}

// sortHandles orders handles by ascending priority, keeping the existing
// order among equal priorities.
func sortHandles(handles []Handle) {
	sort.SliceStable(handles, func(i, j int) bool {
		return handles[i].Priority() < handles[j].Priority()
	})
}

func reversed(handles []Handle) []Handle {
	out := make([]Handle, len(handles))
	for i, h := range handles {
		out[len(handles)-1-i] = h
	}
	return out
}
