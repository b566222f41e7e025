// Package telemetry provides observability instrumentation for the lifecycle engine.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus) and event publishing behind one
// Telemetry value, and exposes an Observer that plugs into
// component.RegistryConfig so every registration, transition and bulk
// operation is recorded without the engine knowing about any of it.
//
// # Usage
//
// Initialize telemetry at startup and hand its observer to the registry:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	reg := component.NewRegistry(component.RegistryConfig{
//	    Logger:   tel.Logger.Zerolog(),
//	    Observer: tel.Observer(),
//	})
//
//	go tel.ServeMetrics(ctx)
//
// # Structured Logging
//
// Child loggers carry the engine subsystem in the "module" field and the
// lifecycle component in the "component" field:
//
//	logger := tel.Logger.NewComponentLogger("orchestrator")
//	logger.WithRunID(runID).WithComponentName("net").Info("starting")
//
// Log levels: trace, debug, info, warn, error, fatal.
//
// # Distributed Tracing
//
// Each bulk operation opens a "bulk.<operation>" span and each callback a
// nested "component.<operation>" span. Supported exporters are otlp (gRPC),
// stdout and none.
//
// # Metrics
//
// All collectors live on a private registry under the configured namespace:
//
//   - transitions_total{operation,result}
//   - transition_duration_seconds{operation}
//   - callback_failures_total{component,operation}
//   - bulk_operations_total{operation,result}
//   - bulk_operation_duration_seconds{operation}
//   - bulk_outcomes_total{operation,outcome}
//   - registry_operations_total{operation}
//   - components_registered
//   - component_status{component,status}
//   - errors_by_kind_total{kind,severity}
//
// Recorders are safe to call when metrics are disabled.
//
// # Events
//
// Lifecycle events are delivered to subscribers synchronously, or through a
// bounded buffer when async publishing is enabled:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Type, e.Component)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
package telemetry
