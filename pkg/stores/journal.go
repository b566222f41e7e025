package stores

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/lifecycle/pkg/component"
)

// Journal persists engine notifications to a Store. It implements
// component.Observer; write failures are logged and never reach the engine.
type Journal struct {
	store  Store
	logger zerolog.Logger
}

var _ component.Observer = (*Journal)(nil)

// NewJournal creates a journal writing to store. A nil logger discards logs.
func NewJournal(store Store, logger *zerolog.Logger) *Journal {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("module", "journal").Logger()
	}
	return &Journal{store: store, logger: l}
}

// Registered journals a registration.
func (j *Journal) Registered(ctx context.Context, info component.Info) {
	j.registration(ctx, info, RegistrationActionRegistered)
}

// Unregistered journals a removal.
func (j *Journal) Unregistered(ctx context.Context, info component.Info) {
	j.registration(ctx, info, RegistrationActionUnregistered)
}

func (j *Journal) registration(ctx context.Context, info component.Info, action RegistrationAction) {
	rec := &RegistrationRecord{
		Component:  info.Name,
		Action:     action,
		Priority:   info.Priority.String(),
		Status:     string(info.Status),
		Generation: info.Generation,
		Timestamp:  time.Now().UTC(),
	}
	if err := j.store.AppendRegistration(context.WithoutCancel(ctx), rec); err != nil {
		j.logger.Error().Err(err).Str("component", info.Name).Msg("failed to journal registration")
	}
}

// TransitionStarted is a no-op; transitions are journaled once finished.
func (j *Journal) TransitionStarted(ctx context.Context, _ component.Transition) context.Context {
	return ctx
}

// TransitionFinished journals one callback.
func (j *Journal) TransitionFinished(ctx context.Context, t component.Transition) {
	rec := &TransitionRecord{
		Component:  t.Component,
		Operation:  string(t.Operation),
		FromStatus: string(t.From),
		ToStatus:   string(t.To),
		StartedAt:  t.StartedAt.UTC(),
		Duration:   t.Duration,
	}
	if t.RunID != "" {
		runID := t.RunID
		rec.RunID = &runID
	}
	if t.Err != nil {
		msg := t.Err.Error()
		kind := string(component.KindOf(t.Err))
		code := component.CodeOf(t.Err)
		rec.Error = &msg
		rec.ErrorKind = &kind
		rec.ErrorCode = &code
	}

	if err := j.store.AppendTransition(context.WithoutCancel(ctx), rec); err != nil {
		j.logger.Error().
			Err(err).
			Str("component", t.Component).
			Str("operation", string(t.Operation)).
			Msg("failed to journal transition")
	}
}

// BulkStarted is a no-op; runs are journaled once finished.
func (j *Journal) BulkStarted(ctx context.Context, _ string, _ component.BulkOperation) context.Context {
	return ctx
}

// BulkFinished journals the run and its outcomes in one transaction.
func (j *Journal) BulkFinished(ctx context.Context, report *component.BulkReport) {
	run := &BulkRun{
		ID:           report.RunID,
		Operation:    string(report.Operation),
		StartedAt:    report.StartedAt.UTC(),
		CompletedAt:  report.CompletedAt.UTC(),
		Transitioned: report.Count(component.OutcomeTransitioned),
		Skipped:      report.Count(component.OutcomeSkipped),
		Failed:       report.Count(component.OutcomeFailed),
		Unchanged:    report.Count(component.OutcomeUnchanged),
		Outcomes:     make([]*Outcome, 0, len(report.Outcomes)),
	}
	if report.Err != nil {
		msg := report.Err.Error()
		run.Error = &msg
	}
	for _, o := range report.Outcomes {
		out := &Outcome{
			Component: o.Component,
			Kind:      string(o.Kind),
			Status:    string(o.Status),
			Reason:    o.Reason,
		}
		if o.Err != nil {
			msg := o.Err.Error()
			out.Error = &msg
		}
		run.Outcomes = append(run.Outcomes, out)
	}

	if err := j.store.RecordBulkRun(context.WithoutCancel(ctx), run); err != nil {
		j.logger.Error().Err(err).Str("run_id", report.RunID).Msg("failed to journal bulk run")
	}
}
