package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentcore/nexuscore/internal/appconfig"
	"github.com/agentcore/nexuscore/internal/security"
)

func buildStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report queue depth, running sub-agent count, and a filesystem security audit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the daemon config file")
	return cmd
}

func runStatus(cmd *cobra.Command, configPath string) error {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	c, err := openCore(cfg, nil)
	if err != nil {
		return err
	}
	defer c.close()

	ctx := cmd.Context()
	pending, err := c.queue.PendingCount(ctx)
	if err != nil {
		return fmt.Errorf("pending count: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "store:              %s\n", cfg.StorePath)
	fmt.Fprintf(out, "pending tasks:      %d\n", pending)
	fmt.Fprintf(out, "running sub-agents: %d\n", c.tracker.RunningCount())

	report, err := security.RunAudit(security.AuditOptions{
		StateDir:          filepath.Dir(cfg.StorePath),
		ConfigPath:        configPath,
		IncludeFilesystem: true,
	})
	if err != nil {
		fmt.Fprintf(out, "security audit:     error: %v\n", err)
		return nil
	}
	if report.HasCritical() {
		fmt.Fprintf(out, "security audit:     %d critical finding(s), run with --debug for detail\n", report.Summary.Critical)
	} else {
		fmt.Fprintf(out, "security audit:     clean\n")
	}
	return nil
}
