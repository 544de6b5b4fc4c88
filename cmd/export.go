package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/uzstroy/marketintel/internal/analysis"
	"github.com/uzstroy/marketintel/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the market report to an Excel workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		out, _ := cmd.Flags().GetString("out")
		region, _ := cmd.Flags().GetString("region")
		limit, _ := cmd.Flags().GetInt("limit")

		writer := export.NewExcelWriter(analysis.NewAnalyzer(pool))
		if err := writer.WriteReport(ctx, out, analysis.RankingFilter{
			Region: region,
			Limit:  limit,
		}); err != nil {
			return err
		}

		fmt.Printf("Report written to %s\n", out)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "market_report.xlsx", "output file path")
	exportCmd.Flags().String("region", "", "restrict the contractors sheet to a region")
	exportCmd.Flags().Int("limit", 200, "max contractors in the rankings sheet")
	rootCmd.AddCommand(exportCmd)
}
