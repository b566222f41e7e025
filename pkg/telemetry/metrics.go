package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the lifecycle engine.
type Metrics struct {
	config MetricsConfig

	// Transition metrics
	transitions        *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	callbackFailures   *prometheus.CounterVec

	// Bulk operation metrics
	bulkOperations *prometheus.CounterVec
	bulkDuration   *prometheus.HistogramVec
	bulkOutcomes   *prometheus.CounterVec

	// Registry metrics
	registryOperations   *prometheus.CounterVec
	componentsRegistered prometheus.Gauge
	componentStatus      *prometheus.GaugeVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// No-op metrics instance; every recorder checks for nil collectors.
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of lifecycle transitions attempted",
			},
			[]string{"operation", "result"},
		),
		transitionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transition_duration_seconds",
				Help:      "Duration of lifecycle callbacks in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		callbackFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callback_failures_total",
				Help:      "Total number of failed lifecycle callbacks",
			},
			[]string{"component", "operation"},
		),

		bulkOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_operations_total",
				Help:      "Total number of bulk operations",
			},
			[]string{"operation", "result"},
		),
		bulkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bulk_operation_duration_seconds",
				Help:      "Duration of bulk operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		bulkOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_outcomes_total",
				Help:      "Per-component outcomes of bulk operations",
			},
			[]string{"operation", "outcome"},
		),

		registryOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_operations_total",
				Help:      "Total number of register and unregister operations",
			},
			[]string{"operation"},
		),
		componentsRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "components_registered",
				Help:      "Current number of registered components",
			},
		),
		componentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "component_status",
				Help:      "Current status of each component (1 for the active status)",
			},
			[]string{"component", "status"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of engine errors by kind",
			},
			[]string{"kind", "severity"},
		),
	}

	registry.MustRegister(
		m.transitions,
		m.transitionDuration,
		m.callbackFailures,
		m.bulkOperations,
		m.bulkDuration,
		m.bulkOutcomes,
		m.registryOperations,
		m.componentsRegistered,
		m.componentStatus,
		m.errorsByKind,
	)

	return m, nil
}

// Transition Metrics

// RecordTransition records one lifecycle callback with its result.
func (m *Metrics) RecordTransition(operation string, failed bool, duration time.Duration) {
	if m.transitions == nil {
		return
	}
	result := "success"
	if failed {
		result = "failure"
	}
	m.transitions.WithLabelValues(operation, result).Inc()
	m.transitionDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCallbackFailure records a failed callback for a component.
func (m *Metrics) RecordCallbackFailure(component, operation string) {
	if m.callbackFailures == nil {
		return
	}
	m.callbackFailures.WithLabelValues(component, operation).Inc()
}

// Bulk Metrics

// RecordBulkOperation records a finished bulk operation.
func (m *Metrics) RecordBulkOperation(operation string, failed bool, duration time.Duration) {
	if m.bulkOperations == nil {
		return
	}
	result := "success"
	if failed {
		result = "failure"
	}
	m.bulkOperations.WithLabelValues(operation, result).Inc()
	m.bulkDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBulkOutcome counts one per-component outcome of a bulk operation.
func (m *Metrics) RecordBulkOutcome(operation, outcome string) {
	if m.bulkOutcomes == nil {
		return
	}
	m.bulkOutcomes.WithLabelValues(operation, outcome).Inc()
}

// Registry Metrics

// RecordRegistration records a component registration.
func (m *Metrics) RecordRegistration() {
	if m.registryOperations == nil {
		return
	}
	m.registryOperations.WithLabelValues("register").Inc()
	m.componentsRegistered.Inc()
}

// RecordUnregistration records a component removal and clears its status series.
func (m *Metrics) RecordUnregistration(component string) {
	if m.registryOperations == nil {
		return
	}
	m.registryOperations.WithLabelValues("unregister").Inc()
	m.componentsRegistered.Dec()
	m.componentStatus.DeletePartialMatch(prometheus.Labels{"component": component})
}

// SetComponentStatus marks status as the active status of component.
func (m *Metrics) SetComponentStatus(component, status string, all []string) {
	if m.componentStatus == nil {
		return
	}
	for _, s := range all {
		value := 0.0
		if s == status {
			value = 1.0
		}
		m.componentStatus.WithLabelValues(component, s).Set(value)
	}
}

// Error Metrics

// RecordError records an engine error by kind and severity.
func (m *Metrics) RecordError(kind, severity string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind, severity).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Registry returns the underlying Prometheus registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics endpoint until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
