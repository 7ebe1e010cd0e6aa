package backtest

import "exitpilot/internal/market"

// Signal 为策略在单根 K 线上的输出。
type Signal string

const (
	SignalBuy  Signal = "buy"
	SignalSell Signal = "sell"
	SignalHold Signal = "hold"
)

// Strategy 为可插拔的信号源。history 为截至当前 K 线（含）的历史，history[index] == candle。
type Strategy interface {
	OnCandle(candle market.Candle, index int, state PortfolioState, history []market.Candle) Signal
}

// StrategyFunc 将普通函数适配为 Strategy。
type StrategyFunc func(candle market.Candle, index int, state PortfolioState, history []market.Candle) Signal

func (f StrategyFunc) OnCandle(candle market.Candle, index int, state PortfolioState, history []market.Candle) Signal {
	return f(candle, index, state, history)
}

// Named 为可选接口，用于在结果中标注策略名。
type Named interface {
	Name() string
}

func strategyName(s Strategy) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return "custom"
}
