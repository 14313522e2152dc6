package cli

import (
	"github.com/spf13/cobra"

	"github.com/MuslimSoftware/LifeOS-sub001/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the agent's tools over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol; setup logs to stderr.
		r, cleanup, err := setup(cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		srv, err := mcp.NewServer(mcp.ServerConfig{Name: "lifeos", Version: Version},
			r.Registry, r.Cache, r.Guard, r.Observer)
		if err != nil {
			return err
		}
		r.Observer.Log().Info().Int("tools", r.Registry.Count()).Msg("serving MCP on stdio")
		return srv.ServeStdio()
	},
}

func init() {
	RootCmd.AddCommand(mcpCmd)
}
