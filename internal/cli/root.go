package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/SAP-F-2025/quiz-attempt-service/internal/config"
)

type rootOptions struct {
	configFile string
	port       string
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "quiz-attempt-service",
		Short:        "Quiz attempt lifecycle and grading service",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", os.Getenv("CONFIG_FILE"), "path to YAML judge config overlay")
	cmd.PersistentFlags().StringVar(&opts.port, "port", "", "port to listen on (overrides PORT)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newWorkerCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newSweepCmd(opts))
	return cmd
}

// loadConfig reads env, .env and the optional YAML overlay, and builds the process logger.
func loadConfig(opts *rootOptions) (*config.Config, *slog.Logger, error) {
	if opts.configFile != "" {
		if err := os.Setenv("CONFIG_FILE", opts.configFile); err != nil {
			return nil, nil, err
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	if opts.port != "" {
		cfg.Port = opts.port
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}
