package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/uzstroy/marketintel/internal/enrich"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run post-harvest enrichment",
	Long: `Runs the enrichment stages over harvested data: region resolution,
per-company tender aggregation, and role classification. Each stage can also
be run on its own via a subcommand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		report, err := enrich.NewPipeline(pool, cfg.Enrich).Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Regions: %d canonicalized, %d deals resolved, %d deals inherited, %d inherited, %d from text (%.1f%% coverage)\n",
			report.Regions.Canonicalized, report.Regions.DealsResolved,
			report.Regions.DealsInherited, report.Regions.Inherited,
			report.Regions.TextResolved, report.Regions.Coverage()*100)
		fmt.Printf("Aggregates: %d reset, %d recomputed\n",
			report.Aggregate.Reset, report.Aggregate.Aggregated)
		fmt.Printf("Roles: %d examined, %d relabeled, %d rated contractors, %d unknown winners\n",
			report.Classify.Examined, report.Classify.Relabeled,
			report.Classify.RatedContractors, report.Classify.UnknownWinners)
		return nil
	},
}

var enrichRegionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Resolve missing company and deal regions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		report, err := enrich.NewRegionResolver(pool).Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Region coverage: %.1f%% (%d/%d companies)\n",
			report.Coverage()*100, report.CompaniesWith, report.CompaniesTotal)
		return nil
	},
}

var enrichAggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Recompute per-company tender aggregates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		months, _ := cmd.Flags().GetInt("lookback-months")
		if months <= 0 {
			months = cfg.Enrich.LookbackMonths
		}

		report, err := enrich.NewAggregator(pool).Run(ctx, months)
		if err != nil {
			return err
		}
		fmt.Printf("Aggregates: %d reset, %d recomputed\n", report.Reset, report.Aggregated)
		return nil
	},
}

var enrichClassifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Assign market roles to companies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		report, err := enrich.NewClassifier(pool).Run(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Roles: %d examined, %d relabeled, %d rated contractors, %d unknown winners\n",
			report.Examined, report.Relabeled, report.RatedContractors, report.UnknownWinners)
		return nil
	},
}

func init() {
	enrichAggregateCmd.Flags().Int("lookback-months", 0, "aggregation window in months (default from config)")

	enrichCmd.AddCommand(enrichRegionsCmd)
	enrichCmd.AddCommand(enrichAggregateCmd)
	enrichCmd.AddCommand(enrichClassifyCmd)
	rootCmd.AddCommand(enrichCmd)
}
