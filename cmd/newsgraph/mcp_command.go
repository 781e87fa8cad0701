package main

import (
	"github.com/spf13/cobra"

	"newsgraph/internal/mcpserver"
)

func newMCPCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the daemon API as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcpserver.ServeStdio(mcpserver.NewServer(ctx.client(), version))
		},
	}
}
