package component_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/openfroyo/lifecycle/pkg/component"
)

// Example_bringUp shows a dependency that the priority order places after
// its dependent: the first pass skips the dependent, the second pass
// initializes it.
func Example_bringUp() {
	ctx := context.Background()
	reg := component.NewRegistry(component.RegistryConfig{})
	orch := component.NewOrchestrator(reg, component.OrchestratorConfig{})

	_ = reg.Register(ctx, component.Descriptor{Name: "mem", Priority: component.PriorityNormal})
	_ = reg.Register(ctx, component.Descriptor{
		Name:         "drv",
		Priority:     component.PriorityHigh,
		Dependencies: []component.Dependency{component.Requires("mem")},
	})

	err := orch.BringUpAll(ctx)
	fmt.Println(component.KindOf(err))

	drv, _ := reg.Status("drv")
	mem, _ := reg.Status("mem")
	fmt.Println("drv:", drv, "mem:", mem)

	err = orch.BringUpAll(ctx)
	drv, _ = reg.Status("drv")
	fmt.Println(err == nil, "drv:", drv)

	// Output:
	// dependency_not_ready
	// drv: uninitialized mem: initialized
	// true drv: initialized
}

// Example_cycle shows that a dependency cycle aborts bring-up before any
// callback runs.
func Example_cycle() {
	ctx := context.Background()
	reg := component.NewRegistry(component.RegistryConfig{})
	orch := component.NewOrchestrator(reg, component.OrchestratorConfig{})

	initialized := 0
	count := component.Callbacks{Init: func(context.Context) error {
		initialized++
		return nil
	}}

	_ = reg.Register(ctx, component.Descriptor{Name: "a", Dependencies: []component.Dependency{component.Requires("b")}, Callbacks: count})
	_ = reg.Register(ctx, component.Descriptor{Name: "b", Dependencies: []component.Dependency{component.Requires("a")}, Callbacks: count})
	_ = reg.Register(ctx, component.Descriptor{Name: "c", Callbacks: count})

	err := orch.BringUpAll(ctx)
	fmt.Println(component.KindOf(err))
	fmt.Println(strings.Join(component.CycleOf(err), " -> "))
	fmt.Println("initialized:", initialized)

	// Output:
	// dependency_cycle
	// a -> b -> a
	// initialized: 0
}
