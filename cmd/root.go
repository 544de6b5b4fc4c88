package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uzstroy/marketintel/internal/config"
	"github.com/uzstroy/marketintel/internal/db"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "marketintel",
	Short: "Construction market intelligence pipeline",
	Long:  "Harvests tender results and contractor ratings, merges company identities, enriches them with roles, regions and aggregates, and serves the results.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// initPool connects to Postgres and applies pending migrations.
func initPool(ctx context.Context) (db.Pool, error) {
	pool, err := db.NewPool(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
