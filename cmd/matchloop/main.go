// Package main is the matchloop command: it serves the matching engine API
// and runs its learning jobs on demand.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	service "github.com/okian/matchloop/internal/app"
	"github.com/okian/matchloop/internal/config"
	"github.com/okian/matchloop/pkg/logger"
)

const configEnv = "MATCHLOOP_CONFIG"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// cli carries state shared by the subcommands.
type cli struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "matchloop",
		Short: "Adaptive provider/client matching engine",
		Long: `matchloop scores provider/client pairs, learns factor weights from
partnership outcomes and keeps engagement forecasts, performance tiers and
market signals current.

Configuration is layered: defaults, then the YAML file named by --config or
MATCHLOOP_CONFIG, then MATCHLOOP_* environment variables.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(*cobra.Command, []string) { _ = logger.Sync() },
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "YAML config file (overrides "+configEnv+")")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level override: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(c),
		newLearnCmd(c),
		newScorePerformanceCmd(c),
		newOptimizeCmd(c),
		newSeedCmd(c),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	// Logs go to stderr; stdout carries command results.
	if err := logger.Init(logger.WithOutput(cmd.ErrOrStderr())); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if c.configPath != "" {
		if err := os.Setenv(configEnv, c.configPath); err != nil {
			return err
		}
	}
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(cmd.ErrOrStderr())); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	return nil
}

// withService builds a service from the loaded config, runs fn and stops it.
func (c *cli) withService(ctx context.Context, fn func(*service.Service) error) (err error) {
	svc, err := service.New(ctx, c.cfg, service.WithLogger(logger.Get()))
	if err != nil {
		return fmt.Errorf("failed to build service: %w", err)
	}
	defer func() {
		if stopErr := svc.Stop(context.WithoutCancel(ctx)); stopErr != nil && err == nil {
			err = stopErr
		}
	}()
	return fn(svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
