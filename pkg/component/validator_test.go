package component

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCheckDependencies(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		deps     []Dependency
		setup    func(t *testing.T, f *fixture)
		wantKind Kind
	}{
		{
			name:     "missing mandatory",
			deps:     []Dependency{Requires("mem")},
			wantKind: KindMissingDependency,
		},
		{
			name: "missing optional",
			deps: []Dependency{Uses("mem")},
		},
		{
			name: "mandatory not ready",
			deps: []Dependency{Requires("mem")},
			setup: func(t *testing.T, f *fixture) {
				f.add(t, "mem", PriorityNormal)
			},
			wantKind: KindDependencyNotReady,
		},
		{
			name: "optional not ready",
			deps: []Dependency{Uses("mem")},
			setup: func(t *testing.T, f *fixture) {
				f.add(t, "mem", PriorityNormal)
			},
		},
		{
			name: "mandatory initialized",
			deps: []Dependency{Requires("mem")},
			setup: func(t *testing.T, f *fixture) {
				f.add(t, "mem", PriorityNormal)
				_ = f.orch.Init(ctx, "mem")
			},
		},
		{
			name: "mandatory running",
			deps: []Dependency{Requires("mem")},
			setup: func(t *testing.T, f *fixture) {
				f.add(t, "mem", PriorityNormal)
				_ = f.orch.Init(ctx, "mem")
				_ = f.orch.Start(ctx, "mem")
			},
		},
		{
			name: "mandatory suspended",
			deps: []Dependency{Requires("mem")},
			setup: func(t *testing.T, f *fixture) {
				f.add(t, "mem", PriorityNormal)
				_ = f.orch.Init(ctx, "mem")
				_ = f.orch.Start(ctx, "mem")
				_ = f.orch.Suspend(ctx, "mem")
			},
			wantKind: KindDependencyNotReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			if tt.setup != nil {
				tt.setup(t, f)
			}
			f.add(t, "drv", PriorityNormal, tt.deps...)

			err := f.orch.Validator().CheckDependencies("drv")
			if tt.wantKind == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if KindOf(err) != tt.wantKind {
				t.Fatalf("expected %s, got %v", tt.wantKind, err)
			}
			var ce *Error
			if errors.As(err, &ce) && ce.Dependency != "mem" {
				t.Errorf("expected dependency mem, got %q", ce.Dependency)
			}
		})
	}
}

func TestCheckDependencies_NotFound(t *testing.T) {
	v := NewValidator(NewRegistry(RegistryConfig{}), 0)
	if err := v.CheckDependencies("ghost"); !IsNotFound(err) {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestCheckCycle(t *testing.T) {
	t.Run("two node cycle", func(t *testing.T) {
		f := newFixture()
		f.add(t, "a", PriorityNormal, Requires("b"))
		f.add(t, "b", PriorityNormal, Requires("a"))

		err := f.orch.Validator().CheckCycle("a")
		if !errors.Is(err, ErrDependencyCycle) {
			t.Fatalf("expected cycle, got %v", err)
		}
		if got := strings.Join(CycleOf(err), " -> "); got != "a -> b -> a" {
			t.Errorf("cycle = %s", got)
		}
	})

	t.Run("self dependency", func(t *testing.T) {
		f := newFixture()
		f.add(t, "a", PriorityNormal, Requires("a"))

		err := f.orch.Validator().CheckCycle("a")
		if got := strings.Join(CycleOf(err), " -> "); got != "a -> a" {
			t.Errorf("cycle = %s (err %v)", got, err)
		}
	})

	t.Run("optional edges count", func(t *testing.T) {
		f := newFixture()
		f.add(t, "a", PriorityNormal, Uses("b"))
		f.add(t, "b", PriorityNormal, Requires("a"))

		if err := f.orch.Validator().CheckCycle("b"); !errors.Is(err, ErrDependencyCycle) {
			t.Errorf("expected cycle through optional edge, got %v", err)
		}
	})

	t.Run("unregistered dependencies are ignored", func(t *testing.T) {
		f := newFixture()
		f.add(t, "a", PriorityNormal, Requires("ghost"), Requires("b"))
		f.add(t, "b", PriorityNormal, Requires("phantom"))

		if err := f.orch.Validator().CheckCycle("a"); err != nil {
			t.Errorf("expected no cycle, got %v", err)
		}
	})

	t.Run("diamond is not a cycle", func(t *testing.T) {
		f := newFixture()
		f.add(t, "top", PriorityNormal, Requires("left"), Requires("right"))
		f.add(t, "left", PriorityNormal, Requires("base"))
		f.add(t, "right", PriorityNormal, Requires("base"))
		f.add(t, "base", PriorityNormal)

		if err := f.orch.Validator().CheckCycles(f.reg.Snapshot(0)); err != nil {
			t.Errorf("expected no cycle, got %v", err)
		}
	})
}

func TestCheckCycle_DepthBound(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})
	ctx := context.Background()

	// c0 -> c1 -> ... -> c5
	names := []string{"c0", "c1", "c2", "c3", "c4", "c5"}
	for i, name := range names {
		d := Descriptor{Name: name}
		if i+1 < len(names) {
			d.Dependencies = []Dependency{Requires(names[i+1])}
		}
		if err := reg.Register(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	if err := NewValidator(reg, 6).CheckCycle("c0"); err != nil {
		t.Errorf("chain of 6 within bound 6, got %v", err)
	}

	err := NewValidator(reg, 4).CheckCycle("c0")
	if !errors.Is(err, ErrDependencyCycle) {
		t.Fatalf("expected fail-closed cycle error, got %v", err)
	}
	var ce *Error
	if !errors.As(err, &ce) || ce.Details["max_depth"] != 4 {
		t.Errorf("expected max_depth detail, got %+v", err)
	}
}

func TestOrderingConflicts(t *testing.T) {
	f := newFixture()
	f.add(t, "mem", PriorityNormal)
	f.add(t, "drv", PriorityHigh, Requires("mem"))
	f.add(t, "log", PriorityLow, Requires("mem"), Uses("net"))
	f.add(t, "net", PriorityHigh, Uses("log"))

	conflicts := f.orch.Validator().OrderingConflicts(f.reg.Snapshot(0))
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %v", conflicts)
	}
	c := conflicts[0]
	if c.Component != "drv" || c.Dependency != "mem" || c.DependencyPriority != PriorityNormal {
		t.Errorf("unexpected conflict %+v", c)
	}
	if !strings.Contains(c.String(), "drv (priority high) requires mem") {
		t.Errorf("String() = %s", c.String())
	}
}

func TestToDOT(t *testing.T) {
	f := newFixture()
	f.add(t, "mem", PriorityNormal)
	f.add(t, "drv", PriorityHigh, Requires("mem"), Uses("dma"))
	_ = f.orch.Init(context.Background(), "mem")

	dot := f.orch.Validator().ToDOT(f.reg.Snapshot(0))

	for _, want := range []string{
		"digraph Components {",
		"cluster_priority_1",
		"cluster_priority_2",
		`"mem" -> "drv" [style=solid, color=black];`,
		`"dma" -> "drv" [style=dashed, color=blue];`,
		`"dma" [style=dotted, color=red];`,
		"fillcolor=lightblue",
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}

func TestToDOT_EscapesNames(t *testing.T) {
	f := newFixture()
	f.add(t, `say "hi"`, PriorityNormal, Requires(`C:\dev`))

	dot := f.orch.Validator().ToDOT(f.reg.Snapshot(0))

	for _, want := range []string{
		`"say \"hi\"" [label="say \"hi\"\nuninitialized"`,
		`"C:\\dev" [style=dotted, color=red];`,
		`"C:\\dev" -> "say \"hi\"" [style=solid, color=black];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}
