package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/lifecycle/pkg/component"
	"github.com/openfroyo/lifecycle/pkg/config"
)

var defaultSteps = []string{"bring-up", "start", "shutdown"}

// reportCollector keeps the bulk reports delivered during a simulation.
type reportCollector struct {
	component.NopObserver

	mu      sync.Mutex
	reports []*component.BulkReport
}

func (c *reportCollector) BulkFinished(_ context.Context, report *component.BulkReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, report)
}

func (c *reportCollector) last() *component.BulkReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.reports) == 0 {
		return nil
	}
	return c.reports[len(c.reports)-1]
}

// stepResult is the JSON form of one simulation step.
type stepResult struct {
	Step       string                `json:"step"`
	Error      string                `json:"error,omitempty"`
	Report     *component.BulkReport `json:"report,omitempty"`
	Components []component.Info      `json:"components"`
}

func newSimulateCommand() *cobra.Command {
	var (
		steps       []string
		journalPath string
		noPolicy    bool
		showMetrics bool
	)

	cmd := &cobra.Command{
		Use:   "simulate <manifest>...",
		Short: "Run a manifest through scripted lifecycle steps",
		Long: `Register the components of a manifest with simulated callbacks and run
lifecycle steps against them, printing component status after each step.

Callbacks follow each component's simulate block (fail_on, code, delay).

Bulk steps:
  bring-up, start, stop, deinit, shutdown

Single-component steps take the form <op>:<name>:
  init, start, stop, suspend, resume, deinit, unregister`,
		Example: `  # Default run: bring-up, start, shutdown
  lifecyclectl simulate ./components.cue

  # Custom steps with a persistent journal
  lifecyclectl simulate --steps bring-up,start,suspend:web,resume:web,shutdown \
    --journal ./journal.db ./components.cue`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			for _, step := range steps {
				if err := checkStep(step); err != nil {
					return err
				}
			}

			manifest, err := loadManifest(ctx, args)
			if err != nil {
				return err
			}
			descs, err := manifest.Descriptors(config.SimulatedCallbacks(&log.Logger))
			if err != nil {
				return err
			}

			collector := &reportCollector{}
			rt, err := newRuntime(ctx, runtimeOptions{
				journalPath: journalPath,
				noPolicy:    noPolicy,
				admit:       true,
				observers:   []component.Observer{collector},
			})
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			for _, d := range descs {
				if err := rt.registry.Register(ctx, d); err != nil {
					fmt.Fprintf(out, "register %s: %v\n", d.Name, err)
				}
			}

			var results []stepResult
			for _, step := range steps {
				if err := ctx.Err(); err != nil {
					return err
				}

				before := collector.last()
				stepErr := runStep(ctx, rt, step)

				result := stepResult{Step: step, Components: rt.registry.List()}
				if stepErr != nil {
					result.Error = stepErr.Error()
				}
				if r := collector.last(); r != before {
					result.Report = r
				}
				results = append(results, result)

				if !jsonOutput {
					printStep(out, result)
				}
			}

			if jsonOutput {
				if err := printJSON(out, results); err != nil {
					return err
				}
			}

			if showMetrics {
				if err := writeMetrics(out, rt); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&steps, "steps", defaultSteps, "lifecycle steps to run in order")
	cmd.Flags().StringVar(&journalPath, "journal", "", "record the run in this SQLite journal")
	cmd.Flags().BoolVar(&noPolicy, "no-policy", false, "skip admission policies")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print collected metrics after the run")

	return cmd
}

var (
	bulkSteps   = map[string]bool{"bring-up": true, "start": true, "stop": true, "deinit": true, "shutdown": true}
	singleSteps = map[string]bool{"init": true, "start": true, "stop": true, "suspend": true, "resume": true, "deinit": true, "unregister": true}
)

func checkStep(step string) error {
	op, name, single := strings.Cut(step, ":")
	if single {
		if !singleSteps[op] || name == "" {
			return fmt.Errorf("invalid step %q", step)
		}
		return nil
	}
	if !bulkSteps[op] {
		return fmt.Errorf("invalid step %q", step)
	}
	return nil
}

func runStep(ctx context.Context, rt *runtime, step string) error {
	o := rt.orchestrator
	op, name, single := strings.Cut(step, ":")

	if single {
		switch op {
		case "init":
			return o.Init(ctx, name)
		case "start":
			return o.Start(ctx, name)
		case "stop":
			return o.Stop(ctx, name)
		case "suspend":
			return o.Suspend(ctx, name)
		case "resume":
			return o.Resume(ctx, name)
		case "deinit":
			return o.Deinit(ctx, name)
		case "unregister":
			return rt.registry.Unregister(ctx, name)
		}
		return fmt.Errorf("invalid step %q", step)
	}

	switch op {
	case "bring-up":
		return o.BringUpAll(ctx)
	case "start":
		return o.StartAll(ctx)
	case "stop":
		return o.StopAll(ctx)
	case "deinit":
		return o.DeinitAll(ctx)
	case "shutdown":
		return o.ShutdownAll(ctx)
	}
	return fmt.Errorf("invalid step %q", step)
}

func printStep(w io.Writer, result stepResult) {
	fmt.Fprintf(w, "== %s\n", result.Step)
	if result.Report != nil {
		printReport(w, result.Report)
	}
	if result.Error != "" {
		fmt.Fprintf(w, "error: %s\n", result.Error)
	}
	printStatusTable(w, result.Components)
	fmt.Fprintln(w)
}

// writeMetrics prints the lifecycle metric families in text exposition format.
func writeMetrics(w io.Writer, rt *runtime) error {
	if rt.tel.Metrics.Registry() == nil {
		return fmt.Errorf("metrics are disabled in the configuration")
	}
	families, err := rt.tel.Metrics.Registry().Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}
