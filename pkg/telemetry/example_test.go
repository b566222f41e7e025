package telemetry_test

import (
	"context"
	"fmt"
	"os"

	"github.com/openfroyo/lifecycle/pkg/component"
	"github.com/openfroyo/lifecycle/pkg/telemetry"
)

// Example_observer wires telemetry into the engine and prints lifecycle events.
func Example_observer() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "error"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Type, e.Component)
	}, telemetry.FilterByType(
		telemetry.EventTypeComponentRegistered,
		telemetry.EventTypeStateChanged,
	))

	reg := component.NewRegistry(component.RegistryConfig{
		Logger:   tel.Logger.Zerolog(),
		Observer: tel.Observer(),
	})
	orch := component.NewOrchestrator(reg, component.OrchestratorConfig{})

	if err := reg.Register(context.Background(), component.Descriptor{Name: "net"}); err != nil {
		panic(err)
	}
	if err := orch.BringUpAll(context.Background()); err != nil {
		panic(err)
	}

	// Output:
	// component.registered net
	// component.state_changed net
}

// Example_logging demonstrates subsystem and component fields.
func Example_logging() {
	logger := telemetry.NewLoggerWithWriter(os.Stdout, telemetry.LoggingConfig{
		Level:  "info",
		Format: "json",
	})

	logger.NewComponentLogger("orchestrator").
		WithComponentName("net").
		WithOperation("start").
		Info("transition complete")

	// Output can vary because of the timestamp, so none is asserted.
}
