package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"exitpilot/internal/backtest"
	"exitpilot/internal/market"
)

// BenchmarkCurve 为从第一根 K 线开始持有的资金曲线，与回测资金曲线一样从下标 1 开始。
func BenchmarkCurve(candles []market.Candle, initialCapital float64) []backtest.EquityPoint {
	if len(candles) < 2 || candles[0].Close == 0 {
		return nil
	}
	base := candles[0].Close
	out := make([]backtest.EquityPoint, 0, len(candles)-1)
	for _, c := range candles[1:] {
		out = append(out, backtest.EquityPoint{Timestamp: c.Timestamp, Equity: initialCapital * c.Close / base})
	}
	return out
}

// EquityChart 渲染资金曲线与买入持有基准的 HTML 折线图。
func EquityChart(w io.Writer, res backtest.Result, candles []market.Candle) error {
	if len(res.EquityCurve) == 0 {
		return fmt.Errorf("equity curve is empty")
	}
	xAxis := make([]string, 0, len(res.EquityCurve))
	equity := make([]opts.LineData, 0, len(res.EquityCurve))
	for _, pt := range res.EquityCurve {
		xAxis = append(xAxis, formatTS(pt.Timestamp))
		equity = append(equity, opts.LineData{Value: round2(pt.Equity)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "exitpilot backtest", Width: "1200px", Height: "560px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s %s", res.Strategy, res.Symbol),
			Subtitle: fmt.Sprintf("return %+.2f%% | max drawdown %.2f%% | benchmark %+.2f%%", res.TotalReturn, res.MaxDrawdown, res.BenchmarkReturn),
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	line.SetXAxis(xAxis).AddSeries("Equity", equity)

	if bench := BenchmarkCurve(candles, res.InitialCapital); len(bench) == len(res.EquityCurve) {
		data := make([]opts.LineData, 0, len(bench))
		for _, pt := range bench {
			data = append(data, opts.LineData{Value: round2(pt.Equity)})
		}
		line.AddSeries("Buy & hold", data)
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line.Render(w)
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
