// Command nexuscored is the minimal process entrypoint for the agent
// orchestration core: it wires the store, queue, registry, failover,
// executor, CLI runner, background runtime, cron scheduler, security
// policy, channel router, memory layer, and event metrics into one
// runnable daemon, and nothing more. It carries no gRPC/HTTP API
// surface and no Postgres-backed gateway — those are the job of a
// larger process that embeds this module, not this one.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "nexuscored",
		Short:        "Self-hosted agent orchestration core",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.AddCommand(buildServeCmd(), buildStatusCmd())
	return root
}
