package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/lifecycle/pkg/component"
)

// Observer feeds engine notifications into metrics, traces and events.
type Observer struct {
	tel    *Telemetry
	logger *Logger
}

var _ component.Observer = (*Observer)(nil)

type transitionSpanKey struct{}

type bulkSpanKey struct{}

// NewObserver creates an engine observer backed by tel.
func NewObserver(tel *Telemetry) *Observer {
	return &Observer{
		tel:    tel,
		logger: tel.Logger.NewComponentLogger("telemetry"),
	}
}

// Observer returns an engine observer backed by t.
func (t *Telemetry) Observer() *Observer {
	return NewObserver(t)
}

// Registered records a new component.
func (o *Observer) Registered(_ context.Context, info component.Info) {
	o.tel.Metrics.RecordRegistration()
	o.tel.Metrics.SetComponentStatus(info.Name, string(info.Status), statusNames())
	_ = o.tel.Events.PublishRegistered(info.Name, info.Priority.String(), len(info.Dependencies))
}

// Unregistered records a removed component.
func (o *Observer) Unregistered(_ context.Context, info component.Info) {
	o.tel.Metrics.RecordUnregistration(info.Name)
	_ = o.tel.Events.PublishUnregistered(info.Name, string(info.Status))
}

// TransitionStarted opens a span for the callback.
func (o *Observer) TransitionStarted(ctx context.Context, t component.Transition) context.Context {
	ctx, span := o.tel.Tracer.StartTransitionSpan(ctx, t.Component, string(t.Operation), string(t.From))
	if t.RunID != "" {
		span.SetAttributes(AttrRunID.String(t.RunID))
	}
	return context.WithValue(ctx, transitionSpanKey{}, span)
}

// TransitionFinished closes the span and records the outcome.
func (o *Observer) TransitionFinished(ctx context.Context, t component.Transition) {
	op := string(t.Operation)
	failed := t.Err != nil

	if span, ok := ctx.Value(transitionSpanKey{}).(trace.Span); ok {
		span.SetAttributes(AttrStatusTo.String(string(t.To)))
		if failed {
			span.SetAttributes(
				AttrErrorKind.String(string(component.KindOf(t.Err))),
				AttrErrorCode.Int(component.CodeOf(t.Err)),
			)
			RecordError(span, t.Err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	o.tel.Metrics.RecordTransition(op, failed, t.Duration)
	o.tel.Metrics.SetComponentStatus(t.Component, string(t.To), statusNames())

	if failed {
		o.tel.Metrics.RecordCallbackFailure(t.Component, op)
		o.tel.Metrics.RecordError(string(component.KindOf(t.Err)), string(component.SeverityOf(t.Err)))
		_ = o.tel.Events.PublishTransitionFailed(t.RunID, t.Component, op, t.Err.Error())
		return
	}
	_ = o.tel.Events.PublishStateChanged(t.RunID, t.Component, op, string(t.From), string(t.To), t.Duration)
}

// BulkStarted opens a span covering the bulk operation.
func (o *Observer) BulkStarted(ctx context.Context, runID string, op component.BulkOperation) context.Context {
	ctx, span := o.tel.Tracer.StartBulkSpan(ctx, runID, string(op))
	_ = o.tel.Events.PublishBulkStarted(runID, string(op))
	return context.WithValue(ctx, bulkSpanKey{}, span)
}

// BulkFinished closes the bulk span and records the report.
func (o *Observer) BulkFinished(ctx context.Context, report *component.BulkReport) {
	op := string(report.Operation)
	failed := report.Err != nil

	if span, ok := ctx.Value(bulkSpanKey{}).(trace.Span); ok {
		span.SetAttributes(AttrOutcomeCount.Int(len(report.Outcomes)))
		if failed {
			span.SetAttributes(AttrErrorKind.String(string(component.KindOf(report.Err))))
			RecordError(span, report.Err)
		} else {
			RecordSuccess(span)
		}
		span.End()
	}

	o.tel.Metrics.RecordBulkOperation(op, failed, report.Duration())
	for _, outcome := range report.Outcomes {
		o.tel.Metrics.RecordBulkOutcome(op, string(outcome.Kind))
		if outcome.Kind == component.OutcomeSkipped {
			_ = o.tel.Events.PublishComponentSkipped(report.RunID, outcome.Component, outcome.Reason)
		}
	}

	if failed {
		kind := component.KindOf(report.Err)
		if kind == "" && errors.Is(report.Err, context.Canceled) {
			kind = "cancelled"
		}
		o.tel.Metrics.RecordError(string(kind), string(component.SeverityOf(report.Err)))
		_ = o.tel.Events.PublishBulkFailed(report.RunID, op, report.Err.Error())
		o.logger.WithRunID(report.RunID).WithError(report.Err).Warnf("bulk operation %s finished with errors", op)
		return
	}

	_ = o.tel.Events.PublishBulkCompleted(report.RunID, op, map[string]int{
		"transitioned": report.Count(component.OutcomeTransitioned),
		"skipped":      report.Count(component.OutcomeSkipped),
		"failed":       report.Count(component.OutcomeFailed),
		"unchanged":    report.Count(component.OutcomeUnchanged),
	}, report.Duration())
}

func statusNames() []string {
	names := make([]string, len(component.AllStatuses))
	for i, s := range component.AllStatuses {
		names[i] = string(s)
	}
	return names
}
