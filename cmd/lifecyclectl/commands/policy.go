package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newPolicyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage admission policies",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List built-in and configured policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := newRuntime(ctx, runtimeOptions{noJournal: true})
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if rt.policies == nil {
				return fmt.Errorf("policies are disabled in the configuration")
			}

			policies := rt.policies.ListPolicies()
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), policies)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSEVERITY\tENABLED\tSOURCE\tTAGS\tDESCRIPTION")
			for _, p := range policies {
				source := "builtin"
				if !p.Builtin {
					source = fmt.Sprint(p.Metadata["source"])
				}
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\t%s\n",
					p.Name, p.Severity, p.Enabled, source, strings.Join(p.Tags, ","), p.Description)
			}
			return tw.Flush()
		},
	})

	return cmd
}
