package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/top250-crawler/internal/clock/system"
	"github.com/JakeFAU/top250-crawler/internal/config"
	"github.com/JakeFAU/top250-crawler/internal/logging"
	"github.com/JakeFAU/top250-crawler/internal/movie"
	"github.com/JakeFAU/top250-crawler/internal/storage"
)

type envKey struct{}

// env carries what PersistentPreRunE builds to the subcommands.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

// openStore is a variable so tests can substitute the backend.
var openStore = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (movie.Store, error) {
	store, err := storage.Open(ctx, storage.Config{
		Driver:   cfg.Store.Driver,
		Path:     cfg.Store.Path,
		DSN:      cfg.Store.DSN,
		Table:    cfg.Store.Table,
		MaxConns: cfg.Store.MaxConns,
	}, system.New(), logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "top250",
		Short: "Collect, normalize and report on the Douban Top 250 movies.",
		Long: `top250 fetches the paginated Douban Top 250 listing, normalizes each
record's free-text metadata with an LLM, stores the result keyed by rank,
and renders charts and a summary report from the stored rows.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Config{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
				File:        cfg.Logging.File,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, err := resolveEnv(cmd.Context()); err == nil {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./top250.yaml)")

	cmd.AddCommand(newRunCmd(), newInfoCmd(), newClearCmd(), newServeCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	if ctx == nil {
		return nil, errors.New("command context not initialized")
	}
	e, ok := ctx.Value(envKey{}).(*env)
	if !ok || e == nil {
		return nil, errors.New("command context not initialized")
	}
	return e, nil
}

func closeStore(store movie.Store, logger *zap.Logger) {
	if err := store.Close(); err != nil {
		logger.Warn("close store failed", zap.Error(err))
	}
}
