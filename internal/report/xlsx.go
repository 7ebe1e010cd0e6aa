package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"exitpilot/internal/backtest"
)

const (
	summarySheet = "Summary"
	tradesSheet  = "Trades"
	equitySheet  = "Equity"
)

// WriteWorkbook 导出 Summary / Trades / Equity 三个工作表。
func WriteWorkbook(path string, res backtest.Result) error {
	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), summarySheet)
	if _, err := fx.NewSheet(tradesSheet); err != nil {
		return err
	}
	if _, err := fx.NewSheet(equitySheet); err != nil {
		return err
	}
	headStyle, err := fx.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	summary := [][]any{
		{"Strategy", res.Strategy},
		{"Symbol", res.Symbol},
		{"Initial capital", res.InitialCapital},
		{"Final equity", res.FinalEquity},
		{"Total return %", res.TotalReturn},
		{"Max drawdown %", res.MaxDrawdown},
		{"Benchmark %", res.BenchmarkReturn},
		{"Round trips", res.RoundTrips},
		{"Win rate %", res.WinRate},
		{"Profit factor", res.ProfitFactor},
		{"Rejected signals", res.RejectedSignals},
	}
	for i, row := range summary {
		if err := writeRow(fx, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	if err := fx.SetColStyle(summarySheet, "A", headStyle); err != nil {
		return err
	}

	if err := writeHeader(fx, tradesSheet, headStyle, "Time", "Action", "Price", "Size", "Fee", "PnL"); err != nil {
		return err
	}
	for i, tr := range res.Trades {
		row := []any{formatTS(tr.Timestamp), string(tr.Action), tr.Price, tr.Size, tr.Fee, nil}
		if tr.Action == backtest.SignalSell {
			row[5] = tr.PnL
		}
		if err := writeRow(fx, tradesSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := writeHeader(fx, equitySheet, headStyle, "Time", "Equity"); err != nil {
		return err
	}
	for i, pt := range res.EquityCurve {
		if err := writeRow(fx, equitySheet, i+2, []any{formatTS(pt.Timestamp), pt.Equity}); err != nil {
			return err
		}
	}

	if err := fx.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func writeHeader(fx *excelize.File, sheet string, style int, headers ...string) error {
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := fx.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(fx *excelize.File, sheet string, row int, values []any) error {
	for i, v := range values {
		if v == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := fx.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}
