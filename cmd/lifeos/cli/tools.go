package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the schemas of the tools the agent can call",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(r.Registry.Schemas())
	},
}

func init() {
	RootCmd.AddCommand(toolsCmd)
}
