package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/uzstroy/marketintel/internal/fetcher"
	"github.com/uzstroy/marketintel/internal/harvest"
	"github.com/uzstroy/marketintel/internal/runlog"
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Harvest upstream sources",
	Long:  "Commands for pulling tender results and contractor ratings into the fact base.",
}

// -- harvest deals --

var harvestDealsCmd = &cobra.Command{
	Use:   "deals",
	Short: "Harvest tender deal results",
	Long: `Walks the deals listing in fixed-size row ranges, filters for
construction relevance, resolves winning companies, and stores results.
Interrupting with SIGINT finishes the current batch and records the run as failed
with a resumable checkpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		startPage, _ := cmd.Flags().GetInt("start-page")
		maxPages, _ := cmd.Flags().GetInt("max-pages")
		resume, _ := cmd.Flags().GetBool("resume")

		client := fetcher.NewHTTPClient(fetcher.FromConfig(cfg.HTTP))
		ledger := runlog.NewLedger(pool)
		h := harvest.NewDealsHarvester(client, pool, ledger, cfg.ETender)

		if resume {
			last, err := ledger.LastCompleted(ctx, "etender")
			if err != nil {
				return err
			}
			if last != nil && last.LastPage > startPage {
				startPage = last.LastPage + 1
				fmt.Printf("Resuming from page %d\n", startPage)
			}
		}

		stats, err := h.Run(ctx, startPage, maxPages)
		if err != nil {
			return err
		}

		fmt.Printf("Deals harvest: %d found, %d inserted, %d updated, %d skipped, %d failed\n",
			stats.Found, stats.Inserted, stats.Updated, stats.Skipped, stats.Failed)
		return nil
	},
}

// -- harvest ratings --

var harvestRatingsCmd = &cobra.Command{
	Use:   "ratings",
	Short: "Harvest contractor rating listings and details",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		listingOnly, _ := cmd.Flags().GetBool("listing-only")
		detailOnly, _ := cmd.Flags().GetBool("detail-only")
		detailLimit, _ := cmd.Flags().GetInt("detail-limit")
		stirsFlag, _ := cmd.Flags().GetString("stirs")

		client := fetcher.NewHTTPClient(fetcher.FromConfig(cfg.HTTP))
		ledger := runlog.NewLedger(pool)
		h := harvest.NewRatingsHarvester(client, pool, ledger, cfg.Reyting)

		if detailLimit <= 0 {
			detailLimit = cfg.Reyting.DetailLimit
		}
		var stirs []string
		if stirsFlag != "" {
			for _, s := range strings.Split(stirsFlag, ",") {
				if s = strings.TrimSpace(s); s != "" {
					stirs = append(stirs, s)
				}
			}
		}

		if !detailOnly {
			stats, err := h.RunListing(ctx, harvest.DefaultRatingTypes())
			if err != nil {
				return err
			}
			fmt.Printf("Ratings listing: %d found, %d stored, %d failed\n",
				stats.Found, stats.Inserted, stats.Failed)
		}

		if !listingOnly {
			stats, err := h.RunDetails(ctx, stirs, detailLimit, 0)
			if err != nil {
				return err
			}
			fmt.Printf("Ratings detail: %d targets, %d stored, %d failed\n",
				stats.Found, stats.Inserted, stats.Failed)
		}
		return nil
	},
}

func init() {
	harvestDealsCmd.Flags().Int("start-page", 1, "page to start from")
	harvestDealsCmd.Flags().Int("max-pages", 0, "stop after this many pages (0 = until exhausted)")
	harvestDealsCmd.Flags().Bool("resume", false, "resume from the last completed run's checkpoint")

	harvestRatingsCmd.Flags().Bool("listing-only", false, "skip the per-company detail phase")
	harvestRatingsCmd.Flags().Bool("detail-only", false, "skip the listing phase")
	harvestRatingsCmd.Flags().Int("detail-limit", 0, "max companies to fetch details for (default from config)")
	harvestRatingsCmd.Flags().String("stirs", "", "comma-separated STIRs to fetch details for (overrides top-N selection)")

	harvestCmd.AddCommand(harvestDealsCmd)
	harvestCmd.AddCommand(harvestRatingsCmd)
	rootCmd.AddCommand(harvestCmd)
}
