package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/openfroyo/lifecycle/pkg/component"
)

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printStatusTable writes one row per registered component.
func printStatusTable(w io.Writer, infos []component.Info) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPRIORITY\tSTATUS\tDEPENDENCIES\tLAST ERROR")
	for _, info := range infos {
		deps := make([]string, 0, len(info.Dependencies))
		for _, d := range info.Dependencies {
			if d.Optional {
				deps = append(deps, d.Name+"?")
			} else {
				deps = append(deps, d.Name)
			}
		}
		depList := strings.Join(deps, ",")
		if depList == "" {
			depList = "-"
		}
		lastErr := info.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", info.Name, info.Priority, info.Status, depList, lastErr)
	}
	_ = tw.Flush()
}

// printReport writes a one-line summary of a bulk run followed by its
// non-transitioned outcomes.
func printReport(w io.Writer, report *component.BulkReport) {
	fmt.Fprintf(w, "%s %s: %d transitioned, %d skipped, %d failed, %d unchanged (%s)\n",
		report.Operation, shortID(report.RunID),
		report.Count(component.OutcomeTransitioned),
		report.Count(component.OutcomeSkipped),
		report.Count(component.OutcomeFailed),
		report.Count(component.OutcomeUnchanged),
		report.Duration().Round(time.Microsecond))
	for _, o := range report.Outcomes {
		if o.Kind == component.OutcomeTransitioned || o.Kind == component.OutcomeUnchanged {
			continue
		}
		fmt.Fprintf(w, "  %s %s: %s\n", o.Kind, o.Component, o.Reason)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
