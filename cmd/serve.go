package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ops server, scheduler and worker pool",
		Long: `Starts the HTTP ops surface (/healthz, /readyz, /metrics, /v1) together
with the cron scheduler for standard_jobs and the workers that run queued
collections. SIGINT or SIGTERM drains the workers and releases the browser.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := runtimeFrom(cmd.Context())
	if err != nil {
		return err
	}
	a, err := buildApp(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	rt.logger.Info("serving",
		zap.Int("port", rt.cfg.Server.Port),
		zap.Int("standard_jobs", len(rt.cfg.StandardJobs)),
	)
	if err := a.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
