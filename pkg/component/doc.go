// Package component implements the component lifecycle and dependency
// orchestration engine.
//
// # Overview
//
// A Registry holds named components. Each component declares a priority,
// an ordered list of dependencies (mandatory or optional) and up to six
// lifecycle callbacks. An Orchestrator drives components through the state
// machine
//
//	uninitialized --init-->    initialized
//	initialized   --start-->   running
//	running       --stop-->    initialized
//	running       --suspend--> suspended
//	suspended     --resume-->  running
//	initialized   --deinit-->  uninitialized
//
// A failing callback moves the component to error, which is terminal until
// the component is unregistered and registered again.
//
// # Ordering
//
// Bulk operations visit components in ascending priority, stable with
// respect to registration order; StopAll, DeinitAll and ShutdownAll use the
// reverse. Dependencies are not topologically sorted: a mandatory
// dependency ordered after its dependent causes the dependent to be skipped
// on the first BringUpAll and initialized on the next one. Validator
// OrderingConflicts lists such pairs.
//
// # Concurrency
//
// Every Registry has one mutex guarding its records. Callbacks run with
// the mutex released and may register or unregister components. Bulk
// operations work on a snapshot of handles and skip handles whose record
// was unregistered after the snapshot was taken.
//
// # Example
//
//	reg := component.NewRegistry(component.RegistryConfig{})
//	orch := component.NewOrchestrator(reg, component.OrchestratorConfig{})
//
//	_ = reg.Register(ctx, component.Descriptor{Name: "mem", Priority: component.PriorityNormal})
//	_ = reg.Register(ctx, component.Descriptor{
//	    Name:         "drv",
//	    Priority:     component.PriorityHigh,
//	    Dependencies: []component.Dependency{component.Requires("mem")},
//	})
//
//	_ = orch.BringUpAll(ctx) // mem initialized, drv skipped
//	_ = orch.BringUpAll(ctx) // drv initialized
//	_ = orch.StartAll(ctx)
//	_ = orch.StopAll(ctx)
package component
