package stores_test

import (
	"context"
	"fmt"
	"log"

	"github.com/openfroyo/lifecycle/pkg/component"
	"github.com/openfroyo/lifecycle/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a journal store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path: ":memory:", // Use in-memory database for example
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleJournal demonstrates journaling a bulk bring-up.
func ExampleJournal() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	reg := component.NewRegistry(component.RegistryConfig{
		Observer: stores.NewJournal(store, nil),
	})
	orch := component.NewOrchestrator(reg, component.OrchestratorConfig{})

	_ = reg.Register(ctx, component.Descriptor{Name: "net", Priority: component.PriorityHigh})
	_ = reg.Register(ctx, component.Descriptor{Name: "web", Priority: component.PriorityNormal, Dependencies: []component.Dependency{component.Requires("net")}})
	_ = orch.BringUpAll(ctx)

	runs, _ := store.ListBulkRuns(ctx, 1, 0)
	run, _ := store.GetBulkRun(ctx, runs[0].ID)

	fmt.Printf("%s: %d transitioned\n", run.Operation, run.Transitioned)
	for _, o := range run.Outcomes {
		fmt.Printf("%s %s -> %s\n", o.Component, o.Kind, o.Status)
	}
	// Output:
	// bring_up_all: 2 transitioned
	// net transitioned -> initialized
	// web transitioned -> initialized
}
