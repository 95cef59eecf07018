// Package cmd defines and implements the CLI commands for the analytica executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/analytica/internal/app"
	"github.com/JakeFAU/analytica/internal/config"
	"github.com/JakeFAU/analytica/internal/logging"
	"github.com/JakeFAU/analytica/internal/social"
)

// runtimeKey is the context key for the loaded configuration and logger.
type runtimeKey struct{}

type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// buildApp is the application factory. It's a variable so tests can swap it.
var buildApp = app.Build

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "analytica",
		Short: "Collects social posts through a logged-in browser and labels them.",
		Long: `analytica drives an authenticated headless browser session to collect
posts from a profile or hashtag feed, detects and translates their language,
and labels each post for sentiment, toxicity and emotion before storing it.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs before every subcommand: load config once and install the logger.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, &runtime{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, err := runtimeFrom(cmd.Context()); err == nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env ANALYTICA_* overrides")

	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newClassifyCmd())
	cmd.AddCommand(newServeCmd())
	return cmd
}

func runtimeFrom(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

// usageError prints the command usage for invalid input before returning err.
func usageError(cmd *cobra.Command, err error) error {
	if errors.Is(err, social.ErrInvalidInput) {
		cmd.PrintErrln(cmd.UsageString())
	}
	return err
}

// Execute is the main entry point. Invalid input exits with status 2.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	if errors.Is(err, social.ErrInvalidInput) {
		os.Exit(2)
	}
	os.Exit(1)
}
