package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ButyrinIA/fritter/internal/config"
	"github.com/ButyrinIA/fritter/internal/metrics"
	"github.com/ButyrinIA/fritter/internal/server"
	"github.com/ButyrinIA/fritter/internal/similarity"
	"github.com/ButyrinIA/fritter/internal/storage"
	"github.com/ButyrinIA/fritter/internal/storage/memory"
	"github.com/ButyrinIA/fritter/internal/storage/migrations"
	"github.com/ButyrinIA/fritter/internal/storage/postgres"
	"github.com/ButyrinIA/fritter/internal/storage/sqlite"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "fritter",
		Short:         "Short posts with expansions, citations and similar-post links",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to the configuration file")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	return cmd
}

// loadConfig reads the config file; a non-empty storageType overrides the
// configured backend.
func loadConfig(opts *rootOptions, storageType string) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if storageType != "" {
		cfg.Storage.Type = storageType
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newServeCommand(root *rootOptions) *cobra.Command {
	var storageType string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, storageType)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			b := cfg.Similarity.Breaker
			oracle := similarity.WithBreaker(similarity.NewKeywordOracle(store), similarity.BreakerSettings{
				Name:         "similarity",
				MaxRequests:  b.MaxRequests,
				Interval:     b.Interval,
				Timeout:      b.Timeout,
				FailureRatio: b.FailureRatio,
				MinRequests:  b.MinRequests,
			}, logger)

			srv := server.New(cfg, store, oracle, logger, metrics.New("fritter"))
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&storageType, "storage", "", "storage backend: memory, postgres or sqlite (overrides config)")
	return cmd
}

func newMigrateCommand(root *rootOptions) *cobra.Command {
	var storageType string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, storageType)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync()

			switch cfg.Storage.Type {
			case "postgres":
				if err := migrations.Postgres(cfg.Postgres.DSN); err != nil {
					return err
				}
			case "sqlite":
				store, err := sqlite.New(cfg.SQLite.Path)
				if err != nil {
					return err
				}
				store.Close()
			default:
				logger.Info("nothing to migrate", zap.String("storage", cfg.Storage.Type))
				return nil
			}
			logger.Info("migrations applied", zap.String("storage", cfg.Storage.Type))
			return nil
		},
	}
	cmd.Flags().StringVar(&storageType, "storage", "", "storage backend: postgres or sqlite (overrides config)")
	return cmd
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	switch cfg.Storage.Type {
	case "postgres":
		logger.Info("using PostgreSQL storage")
		store, err := postgres.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("initializing PostgreSQL: %w", err)
		}
		return store, nil
	case "sqlite":
		logger.Info("using SQLite storage", zap.String("path", cfg.SQLite.Path))
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("initializing SQLite: %w", err)
		}
		return store, nil
	case "memory":
		logger.Info("using in-memory storage")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zcfg.Level = level
	return zcfg.Build()
}
