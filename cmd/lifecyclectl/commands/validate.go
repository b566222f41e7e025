package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/lifecycle/pkg/component"
	"github.com/openfroyo/lifecycle/pkg/policy"
)

// validationReport is the result of validating a manifest.
type validationReport struct {
	Components int                          `json:"components"`
	Rejected   []rejection                  `json:"rejected,omitempty"`
	Warnings   []policy.Violation           `json:"warnings,omitempty"`
	Unresolved []unresolvedDependency       `json:"unresolved,omitempty"`
	Cycle      []string                     `json:"cycle,omitempty"`
	CycleError string                       `json:"cycle_error,omitempty"`
	Conflicts  []component.OrderingConflict `json:"ordering_conflicts,omitempty"`
	Valid      bool                         `json:"valid"`
}

type rejection struct {
	Component string `json:"component"`
	Reason    string `json:"reason"`
}

type unresolvedDependency struct {
	Component  string `json:"component"`
	Dependency string `json:"dependency"`
}

func newValidateCommand() *cobra.Command {
	var noPolicy bool

	cmd := &cobra.Command{
		Use:   "validate <manifest>...",
		Short: "Validate component manifests",
		Long: `Validate component manifests without running any lifecycle callbacks.

This command checks:
  - Manifest syntax and schema conformance
  - Admission policies (OPA/rego)
  - Mandatory dependencies that are never declared
  - Dependency cycles
  - Mandatory dependencies ordered after their dependents`,
		Example: `  # Validate a CUE manifest
  lifecyclectl validate ./components.cue

  # Validate a directory of manifests without policies
  lifecyclectl validate --no-policy ./manifests`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log.Info().Strs("sources", args).Bool("policies", !noPolicy).Msg("Validating manifests")

			report, err := runValidate(ctx, args, noPolicy)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				printValidation(cmd.OutOrStdout(), report)
			}

			if !report.Valid {
				return errors.New("manifest validation failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noPolicy, "no-policy", false, "skip admission policies")

	return cmd
}

func runValidate(ctx context.Context, sources []string, noPolicy bool) (*validationReport, error) {
	manifest, err := loadManifest(ctx, sources)
	if err != nil {
		return nil, err
	}
	descs, err := manifest.Descriptors(nil)
	if err != nil {
		return nil, err
	}

	rt, err := newRuntime(ctx, runtimeOptions{noJournal: true, noPolicy: noPolicy})
	if err != nil {
		return nil, err
	}
	defer rt.close(ctx)

	report := &validationReport{Components: len(descs)}

	for i := range descs {
		d := &descs[i]
		if rt.policies != nil {
			result, err := rt.policies.Evaluate(ctx, d)
			if err != nil {
				return nil, err
			}
			report.Warnings = append(report.Warnings, result.Warnings...)
			if !result.Allowed {
				rej := &policy.RejectionError{Component: d.Name, Violations: result.Violations}
				report.Rejected = append(report.Rejected, rejection{Component: d.Name, Reason: rej.Error()})
				continue
			}
		}
		if err := rt.registry.Register(ctx, *d); err != nil {
			report.Rejected = append(report.Rejected, rejection{Component: d.Name, Reason: err.Error()})
		}
	}

	handles := rt.registry.Snapshot(0)
	for _, h := range handles {
		for _, dep := range h.Dependencies() {
			if dep.Optional {
				continue
			}
			if _, ok := rt.registry.Find(dep.Name); !ok {
				report.Unresolved = append(report.Unresolved, unresolvedDependency{Component: h.Name(), Dependency: dep.Name})
			}
		}
	}

	validator := rt.orchestrator.Validator()
	if err := validator.CheckCycles(handles); err != nil {
		report.Cycle = component.CycleOf(err)
		report.CycleError = err.Error()
	}
	report.Conflicts = validator.OrderingConflicts(handles)

	report.Valid = len(report.Rejected) == 0 && len(report.Unresolved) == 0 && report.CycleError == ""
	return report, nil
}

func printValidation(w io.Writer, report *validationReport) {
	for _, r := range report.Rejected {
		fmt.Fprintf(w, "REJECTED   %s: %s\n", r.Component, r.Reason)
	}
	for _, u := range report.Unresolved {
		fmt.Fprintf(w, "UNRESOLVED %s requires undeclared %s\n", u.Component, u.Dependency)
	}
	if report.CycleError != "" {
		fmt.Fprintf(w, "CYCLE      %s\n", report.CycleError)
	}
	for _, c := range report.Conflicts {
		fmt.Fprintf(w, "ORDERING   %s\n", c)
	}
	for _, v := range report.Warnings {
		fmt.Fprintf(w, "WARNING    %s [%s]: %s\n", v.Component, v.Policy, v.Message)
	}

	status := "valid"
	if !report.Valid {
		status = "invalid"
	}
	fmt.Fprintf(w, "%d components: %s\n", report.Components, status)
}
