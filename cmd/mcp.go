package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joescharf/teambot/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for read-only access to team data",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients query ideas, tasks, karma and totals. Configure
with:

  {
    "mcpServers": {
      "teambot": { "command": "teambot", "args": ["mcp"] }
    }
  }

Available tools: teambot_list_ideas, teambot_user_tasks,
teambot_user_karma, teambot_stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return mcp.NewServer(s, buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
