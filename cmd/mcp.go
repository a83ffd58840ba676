package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/crev/internal/mcp"
	"github.com/joescharf/crev/internal/store"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

MCP clients can review code and browse saved reports. Configure with:

  {
    "mcpServers": {
      "crev": { "command": "crev", "args": ["mcp"] }
    }
  }

Available tools: review_path, list_reports, get_report, issue_vocabulary`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun() error {
	// stdout carries the protocol; logs go to stderr.
	logger := newLogger(os.Stderr)

	p, err := newPipeline(logger, 0)
	if err != nil {
		return err
	}

	var st store.Store
	if s, err := getStore(); err != nil {
		logger.Warn("report storage disabled", "error", err)
	} else {
		st = s
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	return mcp.NewServer(p, st, buildVersion).ServeStdio(ctx)
}
