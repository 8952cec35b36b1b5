// Package replay plays a recorded frame stream through the tester offline
// and prints the captures and statistics it produced.
package replay

import (
	"encoding/json"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tphakala/parrot-tester/internal/app"
)

// Command creates the replay command.
func Command(ctx *app.Context) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "replay [recording]",
		Short: "Replay a recording offline",
		Long:  "Feed a YAML or JSON lines frame recording through a fresh session on a virtual clock and report captures and per-pattern statistics.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := app.Replay(ctx.Settings, afero.NewOsFs(), args[0], ctx.Log())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return report.WriteText(cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the captures as JSON")

	return cmd
}
