package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/githubalerts/internal/app"
	"github.com/user/githubalerts/internal/broker"
	"github.com/user/githubalerts/internal/config"
	"github.com/user/githubalerts/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	dev        bool
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	return (&rootOptions{v: viper.New()}).command()
}

func (opts *rootOptions) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "alerts",
		Short:        "Subscribe Slack users to GitHub repositories and fan out notifications",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is normal outside local development.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger.Info().Str("version", version).Msg("Starting GitHub alerts service")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := app.New(cfg, version).Run(ctx); err != nil {
				logger.Error().Err(err).Msg("Service exited with error")
				return err
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to configuration file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.BoolVar(&opts.dev, "dev", false, "development mode: skip the shutdown pre-wait")
	_ = opts.v.BindPFlag("log.level", flags.Lookup("log-level"))

	cmd.AddCommand(newTopicsCmd(opts), newVersionCmd())
	return cmd
}

// load reads the configuration and initializes the logger from it.
func (opts *rootOptions) load() (*config.Config, error) {
	if opts.dev {
		opts.v.Set("server.mode", "development")
	}
	cfg, err := config.LoadWith(opts.v, opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, nil
}

func newTopicsCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Create the configured Kafka topics if they do not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := broker.EnsureTopics(ctx, cfg.Kafka.Brokers(), app.Topics(cfg.Kafka.Topics)); err != nil {
				logger.Error().Err(err).Msg("Failed to create topics")
				return err
			}
			for _, t := range cfg.Kafka.Topics.All() {
				fmt.Fprintln(cmd.OutOrStdout(), t.Name)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the brokers")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
