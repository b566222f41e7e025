package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/lifecycle/pkg/stores"
)

func newJournalCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the transition journal",
		Long: `Inspect the SQLite journal written by simulate runs.

The journal is an audit trail only; it is never used to restore component
state.`,
	}

	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "journal database path (defaults to journal.path from config)")

	openJournal := func(ctx context.Context) (*stores.SQLiteStore, error) {
		path := dbPath
		if path == "" {
			cfg, err := loadConfig()
			if err != nil {
				return nil, err
			}
			path = cfg.Journal.Path
		}
		return openStore(ctx, path)
	}

	cmd.AddCommand(newJournalRunsCommand(openJournal))
	cmd.AddCommand(newJournalShowCommand(openJournal))
	cmd.AddCommand(newJournalTransitionsCommand(openJournal))
	cmd.AddCommand(newJournalPruneCommand(openJournal))

	return cmd
}

type journalOpener func(ctx context.Context) (*stores.SQLiteStore, error)

func newJournalRunsCommand(open journalOpener) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded bulk runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListBulkRuns(ctx, limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), runs)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tOPERATION\tSTARTED\tDURATION\tOK\tSKIPPED\tFAILED\tERROR")
			for _, r := range runs {
				errText := "-"
				if r.Error != nil {
					errText = *r.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.ID, r.Operation, r.StartedAt.Format(time.RFC3339),
					r.CompletedAt.Sub(r.StartedAt).Round(time.Microsecond),
					r.Transitioned, r.Skipped, r.Failed, errText)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	return cmd
}

func newJournalShowCommand(open journalOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one bulk run with its per-component outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetBulkRun(ctx, args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), run)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s %s at %s\n", run.ID, run.Operation, run.StartedAt.Format(time.RFC3339))
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tCOMPONENT\tOUTCOME\tSTATUS\tREASON")
			for _, o := range run.Outcomes {
				reason := o.Reason
				if reason == "" {
					reason = "-"
				}
				status := o.Status
				if status == "" {
					status = "-"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", o.Seq, o.Component, o.Kind, status, reason)
			}
			return tw.Flush()
		},
	}
}

func newJournalTransitionsCommand(open journalOpener) *cobra.Command {
	var (
		componentName string
		runID         string
		failedOnly    bool
		limit         int
	)

	cmd := &cobra.Command{
		Use:   "transitions",
		Short: "List recorded lifecycle transitions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			filter := stores.TransitionFilter{FailedOnly: failedOnly, Limit: limit}
			if componentName != "" {
				filter.Component = &componentName
			}
			if runID != "" {
				filter.RunID = &runID
			}

			records, err := store.ListTransitions(ctx, filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), records)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tCOMPONENT\tOPERATION\tFROM\tTO\tDURATION\tERROR")
			for _, r := range records {
				errText := "-"
				if r.Error != nil {
					errText = *r.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.StartedAt.Format(time.RFC3339), r.Component, r.Operation,
					r.FromStatus, r.ToStatus, r.Duration.Round(time.Microsecond), errText)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&componentName, "component", "", "only this component")
	cmd.Flags().StringVar(&runID, "run", "", "only transitions of this bulk run")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "only failed transitions")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of transitions")

	return cmd
}

func newJournalPruneCommand(open journalOpener) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete journal history older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			ctx := cmd.Context()
			store, err := open(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.PruneBefore(ctx, time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d rows\n", n)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "age of the oldest history to keep")

	return cmd
}
