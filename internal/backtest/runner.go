package backtest

import (
	"fmt"

	"exitpilot/internal/logger"
	"exitpilot/internal/market"
)

// EquityPoint 为资金曲线上的一个点。
type EquityPoint struct {
	Timestamp int64   `json:"timestamp"`
	Equity    float64 `json:"equity"`
}

// Result 为一次回测的汇总。百分比字段均以 % 表示。
type Result struct {
	Strategy        string        `json:"strategy"`
	Symbol          string        `json:"symbol"`
	InitialCapital  float64       `json:"initial_capital"`
	FinalEquity     float64       `json:"final_equity"`
	TotalReturn     float64       `json:"total_return"`
	MaxDrawdown     float64       `json:"max_drawdown"`
	BenchmarkReturn float64       `json:"benchmark_return"`
	Trades          []Trade       `json:"trades"`
	EquityCurve     []EquityPoint `json:"equity_curve"`
	// 由成交流水派生
	RoundTrips      int     `json:"round_trips"`
	WinRate         float64 `json:"win_rate"`
	ProfitFactor    float64 `json:"profit_factor"` // 0 表示没有亏损交易
	RejectedSignals int     `json:"rejected_signals"`
}

// Run 从下标 1 开始逐根推进，下标 0 只作为历史，不在其上做决策。
func Run(strategy Strategy, candles []market.Candle, cfg Config) (Result, error) {
	if strategy == nil {
		return Result{}, fmt.Errorf("strategy 不能为空")
	}
	p, err := NewPortfolio(cfg)
	if err != nil {
		return Result{}, err
	}
	cfg = p.Config()
	res := Result{
		Strategy:       strategyName(strategy),
		Symbol:         cfg.Symbol,
		InitialCapital: cfg.InitialCapital,
		FinalEquity:    cfg.InitialCapital,
		Trades:         []Trade{},
		EquityCurve:    []EquityPoint{},
	}
	if len(candles) == 0 {
		return res, nil
	}

	for i := 1; i < len(candles); i++ {
		c := candles[i]
		signal := strategy.OnCandle(c, i, p.State(), candles[:i+1])
		var execErr error
		switch signal {
		case SignalBuy:
			_, execErr = p.Buy(c, i)
		case SignalSell:
			_, execErr = p.Sell(c, i)
		}
		if execErr != nil {
			res.RejectedSignals++
			logger.Debugf("backtest %s #%d %s ignored: %v", res.Strategy, i, signal, execErr)
		}
		res.EquityCurve = append(res.EquityCurve, EquityPoint{Timestamp: c.Timestamp, Equity: p.Equity(c.Close)})
	}

	last := candles[len(candles)-1]
	res.FinalEquity = p.Equity(last.Close)
	res.TotalReturn = (res.FinalEquity - cfg.InitialCapital) / cfg.InitialCapital * 100
	res.MaxDrawdown = MaxDrawdown(res.EquityCurve)
	res.BenchmarkReturn = BenchmarkReturn(candles)
	res.Trades = p.Trades()
	res.RoundTrips, res.WinRate, res.ProfitFactor = tradeStats(res.Trades)

	logger.Infof("backtest %s %s: candles=%d trades=%d return=%.2f%% maxDD=%.2f%% benchmark=%.2f%%",
		res.Strategy, res.Symbol, len(candles), len(res.Trades), res.TotalReturn, res.MaxDrawdown, res.BenchmarkReturn)
	return res, nil
}

// MaxDrawdown 返回资金曲线的最大峰谷回撤（%），曲线为空或单调不减时为 0。
func MaxDrawdown(curve []EquityPoint) float64 {
	peak := 0.0
	maxDD := 0.0
	for i, pt := range curve {
		if i == 0 || pt.Equity > peak {
			peak = pt.Equity
			continue
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - pt.Equity) / peak * 100; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// BenchmarkReturn 为首尾收盘价的涨跌幅（%），不足两根或首根收盘价为 0 时为 0。
func BenchmarkReturn(candles []market.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	first := candles[0].Close
	if first == 0 {
		return 0
	}
	return (candles[len(candles)-1].Close - first) / first * 100
}

func tradeStats(trades []Trade) (roundTrips int, winRate, profitFactor float64) {
	wins := 0
	grossProfit, grossLoss := 0.0, 0.0
	for _, tr := range trades {
		if tr.Action != SignalSell {
			continue
		}
		roundTrips++
		if tr.PnL > 0 {
			wins++
			grossProfit += tr.PnL
		} else {
			grossLoss -= tr.PnL
		}
	}
	if roundTrips > 0 {
		winRate = float64(wins) / float64(roundTrips) * 100
	}
	if grossLoss > 0 {
		profitFactor = grossProfit / grossLoss
	}
	return roundTrips, winRate, profitFactor
}
