// Package report 渲染回测与监控结果：终端表格、HTML 资金曲线与 XLSX 导出。
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"exitpilot/internal/backtest"
	"exitpilot/internal/monitor"
	"exitpilot/internal/trade"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

// SummaryTable 每个回测结果一行，便于横向比较多个策略。
func SummaryTable(w io.Writer, results ...backtest.Result) {
	t := newTable(w, "Backtest summary")
	t.AppendHeader(table.Row{"Strategy", "Symbol", "Final equity", "Return %", "Max DD %", "Benchmark %", "Trades", "Win %", "PF", "Rejected"})
	for _, r := range results {
		t.AppendRow(table.Row{
			r.Strategy,
			r.Symbol,
			fmt.Sprintf("%.2f", r.FinalEquity),
			fmt.Sprintf("%+.2f", r.TotalReturn),
			fmt.Sprintf("%.2f", r.MaxDrawdown),
			fmt.Sprintf("%+.2f", r.BenchmarkReturn),
			len(r.Trades),
			fmt.Sprintf("%.1f", r.WinRate),
			fmt.Sprintf("%.2f", r.ProfitFactor),
			r.RejectedSignals,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	t.Render()
}

// TradesTable 输出成交流水。
func TradesTable(w io.Writer, trades []backtest.Trade) {
	t := newTable(w, "Trades")
	t.AppendHeader(table.Row{"#", "Time", "Action", "Price", "Size", "Fee", "PnL"})
	for i, tr := range trades {
		pnl := ""
		if tr.Action == backtest.SignalSell {
			pnl = fmt.Sprintf("%+.4f", tr.PnL)
		}
		t.AppendRow(table.Row{
			i + 1,
			formatTS(tr.Timestamp),
			string(tr.Action),
			fmt.Sprintf("%.8g", tr.Price),
			fmt.Sprintf("%.8g", tr.Size),
			fmt.Sprintf("%.4f", tr.Fee),
			pnl,
		})
	}
	t.Render()
}

// ActionsTable 输出监控评估结果，每个动作一行。
func ActionsTable(w io.Writer, states []trade.State, evals []monitor.Evaluation) {
	t := newTable(w, "Trade actions")
	t.AppendHeader(table.Row{"Trade", "Side", "Price", "Profit %", "Remaining", "Action", "Quantity", "Stop", "Reason"})
	for i, ev := range evals {
		if i >= len(states) {
			break
		}
		st := states[i]
		for _, act := range ev.Actions {
			qty, stop := "", ""
			if act.Quantity > 0 {
				qty = fmt.Sprintf("%.8g", act.Quantity)
			}
			if act.NewTrailingStopPrice > 0 {
				stop = fmt.Sprintf("%.8g", act.NewTrailingStopPrice)
			}
			t.AppendRow(table.Row{
				st.ID,
				string(st.Side),
				fmt.Sprintf("%.8g", st.CurrentPrice),
				fmt.Sprintf("%+.2f", ev.CurrentProfitPct*100),
				fmt.Sprintf("%.8g", ev.RemainingQuantity),
				string(act.Type),
				qty,
				stop,
				act.Reason,
			})
		}
	}
	t.Render()
}

func formatTS(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}
