package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/uzstroy/marketintel/internal/analysis"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Query the enriched fact base",
}

// -- analyze top --

var analyzeTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Rank contractors by contract value",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		region, _ := cmd.Flags().GetString("region")
		search, _ := cmd.Flags().GetString("search")
		minWins, _ := cmd.Flags().GetInt("min-wins")
		limit, _ := cmd.Flags().GetInt("limit")

		contractors, err := analysis.NewAnalyzer(pool).TopContractors(ctx, analysis.RankingFilter{
			Region:     region,
			NameSearch: search,
			MinWins:    minWins,
			Limit:      limit,
		})
		if err != nil {
			return err
		}
		if len(contractors) == 0 {
			fmt.Fprintln(os.Stderr, "No contractors matched.")
			return nil
		}

		formatContractors(os.Stdout, contractors)
		return nil
	},
}

// -- analyze overview --

var analyzeOverviewCmd = &cobra.Command{
	Use:   "overview",
	Short: "Print the market overview as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		overview, err := analysis.NewAnalyzer(pool).Overview(ctx)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(overview)
	},
}

// -- analyze regions --

var analyzeRegionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Break the market down by region",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		slices, err := analysis.NewAnalyzer(pool).ByRegion(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "REGION\tDEALS\tVALUE\tCOMPANIES")
		for _, s := range slices {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%d\n",
				s.Region, s.Deals, s.Value.StringFixed(0), s.Companies)
		}
		return w.Flush()
	},
}

// -- analyze company --

var analyzeCompanyCmd = &cobra.Command{
	Use:   "company <stir>",
	Short: "Print the full profile of one company as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		profile, err := analysis.NewAnalyzer(pool).Profile(ctx, args[0])
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	},
}

func init() {
	analyzeTopCmd.Flags().String("region", "", "filter by canonical region name")
	analyzeTopCmd.Flags().String("search", "", "case-insensitive name substring")
	analyzeTopCmd.Flags().Int("min-wins", 0, "minimum tender wins")
	analyzeTopCmd.Flags().Int("limit", 25, "max rows to display")

	analyzeCmd.AddCommand(analyzeTopCmd)
	analyzeCmd.AddCommand(analyzeOverviewCmd)
	analyzeCmd.AddCommand(analyzeRegionsCmd)
	analyzeCmd.AddCommand(analyzeCompanyCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func formatContractors(out io.Writer, contractors []analysis.RankedContractor) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tSTIR\tNAME\tREGION\tRATING\tWINS\tVALUE\tDISCOUNT%")

	for _, c := range contractors {
		region := ""
		if c.Region != nil {
			region = *c.Region
		}
		rating := ""
		if c.RatingLetter != nil {
			rating = *c.RatingLetter
		}
		discount := ""
		if c.AvgDiscountPct != nil {
			discount = c.AvgDiscountPct.StringFixed(1)
		}
		name := c.Name
		if len([]rune(name)) > 40 {
			name = string([]rune(name)[:37]) + "..."
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.Position, c.STIR, name, region, rating,
			c.TotalWins, c.TotalContractValue.StringFixed(0), discount)
	}
	_ = w.Flush()
}
