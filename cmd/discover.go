package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/uzstroy/marketintel/internal/fetcher"
	"github.com/uzstroy/marketintel/internal/harvest"
	"github.com/uzstroy/marketintel/internal/runlog"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Probe the deals API and report its shape",
	Long:  "Fetches the first page of the deals listing and prints the reported total record count and the field names observed, without storing anything.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		client := fetcher.NewHTTPClient(fetcher.FromConfig(cfg.HTTP))
		h := harvest.NewDealsHarvester(client, pool, runlog.NewLedger(pool), cfg.ETender)

		total, fields, err := h.Discover(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Total records reported: %d\n", total)
		fmt.Println("Fields observed:")
		for _, f := range fields {
			fmt.Printf("  %s\n", f)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
