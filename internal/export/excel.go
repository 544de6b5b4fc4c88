// Package export writes analysis results to Excel workbooks.
package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/uzstroy/marketintel/internal/analysis"
)

// ExcelWriter renders contractor rankings and market breakdowns into a
// multi-sheet workbook.
type ExcelWriter struct {
	analyzer *analysis.Analyzer
}

// NewExcelWriter creates an ExcelWriter over the given analyzer.
func NewExcelWriter(analyzer *analysis.Analyzer) *ExcelWriter {
	return &ExcelWriter{analyzer: analyzer}
}

// WriteReport builds the full report workbook and saves it at path.
func (w *ExcelWriter) WriteReport(ctx context.Context, path string, filter analysis.RankingFilter) error {
	f := xlsx.NewFile()

	if err := w.addContractorsSheet(ctx, f, filter); err != nil {
		return err
	}
	if err := w.addRegionsSheet(ctx, f); err != nil {
		return err
	}
	if err := w.addTrendSheet(ctx, f); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}
	zap.L().Info("report written", zap.String("path", path))
	return nil
}

func (w *ExcelWriter) addContractorsSheet(ctx context.Context, f *xlsx.File, filter analysis.RankingFilter) error {
	contractors, err := w.analyzer.TopContractors(ctx, filter)
	if err != nil {
		return err
	}

	sheet, err := f.AddSheet("Contractors")
	if err != nil {
		return eris.Wrap(err, "export: add contractors sheet")
	}
	writeHeader(sheet,
		"#", "STIR", "Name", "Region", "Rating", "Score",
		"Wins", "Contract Value", "Avg Discount %", "Employees", "Active Regions")

	for _, c := range contractors {
		row := sheet.AddRow()
		row.AddCell().SetInt(c.Position)
		row.AddCell().SetString(c.STIR)
		row.AddCell().SetString(c.Name)
		row.AddCell().SetString(strDeref(c.Region))
		row.AddCell().SetString(strDeref(c.RatingLetter))
		row.AddCell().SetString(decDeref(c.RatingScore))
		row.AddCell().SetInt(c.TotalWins)
		row.AddCell().SetString(c.TotalContractValue.StringFixed(2))
		row.AddCell().SetString(decDeref(c.AvgDiscountPct))
		if c.EmployeeCount != nil {
			row.AddCell().SetInt(*c.EmployeeCount)
		} else {
			row.AddCell().SetString("")
		}
		row.AddCell().SetString(strings.Join(c.ActiveRegions, ", "))
	}
	return nil
}

func (w *ExcelWriter) addRegionsSheet(ctx context.Context, f *xlsx.File) error {
	slices, err := w.analyzer.ByRegion(ctx)
	if err != nil {
		return err
	}

	sheet, err := f.AddSheet("Regions")
	if err != nil {
		return eris.Wrap(err, "export: add regions sheet")
	}
	writeHeader(sheet, "Region", "Deals", "Value", "Companies")

	for _, s := range slices {
		row := sheet.AddRow()
		row.AddCell().SetString(s.Region)
		row.AddCell().SetString(fmt.Sprint(s.Deals))
		row.AddCell().SetString(s.Value.StringFixed(2))
		row.AddCell().SetString(fmt.Sprint(s.Companies))
	}
	return nil
}

func (w *ExcelWriter) addTrendSheet(ctx context.Context, f *xlsx.File) error {
	points, err := w.analyzer.MonthlyTrend(ctx, 24)
	if err != nil {
		return err
	}

	sheet, err := f.AddSheet("Monthly Trend")
	if err != nil {
		return eris.Wrap(err, "export: add trend sheet")
	}
	writeHeader(sheet, "Month", "Deals", "Value")

	for _, p := range points {
		row := sheet.AddRow()
		row.AddCell().SetString(p.Month)
		row.AddCell().SetString(fmt.Sprint(p.Deals))
		row.AddCell().SetString(p.Value.StringFixed(2))
	}
	return nil
}

func writeHeader(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func strDeref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func decDeref(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}
