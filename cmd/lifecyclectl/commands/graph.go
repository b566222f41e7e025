package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <manifest>...",
		Short: "Print the component dependency graph in DOT format",
		Long: `Print the dependency graph of a manifest in Graphviz DOT format.

Components are clustered by priority. Mandatory dependencies are solid
edges, optional ones dashed, and undeclared targets are drawn as missing.`,
		Example: `  lifecyclectl graph ./components.cue | dot -Tsvg > components.svg`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			manifest, err := loadManifest(ctx, args)
			if err != nil {
				return err
			}
			descs, err := manifest.Descriptors(nil)
			if err != nil {
				return err
			}

			rt, err := newRuntime(ctx, runtimeOptions{noJournal: true, noPolicy: true})
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			for _, d := range descs {
				if err := rt.registry.Register(ctx, d); err != nil {
					log.Warn().Err(err).Str("component", d.Name).Msg("Component left out of graph")
				}
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), rt.orchestrator.Validator().ToDOT(rt.registry.Snapshot(0)))
			return err
		},
	}

	return cmd
}
