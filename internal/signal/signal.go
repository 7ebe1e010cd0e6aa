// Package signal 提供基于技术指标的回测信号策略。
package signal

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/markcheno/go-talib"
	"github.com/spf13/cast"

	"exitpilot/internal/backtest"
	"exitpilot/internal/market"
)

// EMACross 快线上穿慢线开仓，下穿平仓。
type EMACross struct {
	Fast int
	Slow int
}

func (s EMACross) Name() string { return fmt.Sprintf("ema_cross(%d,%d)", s.Fast, s.Slow) }

func (s EMACross) OnCandle(_ market.Candle, _ int, state backtest.PortfolioState, history []market.Candle) backtest.Signal {
	closes := market.Candles(history).Closes()
	if len(closes) < s.Slow+1 {
		return backtest.SignalHold
	}
	fast := talib.Ema(closes, s.Fast)
	slow := talib.Ema(closes, s.Slow)
	n := len(closes) - 1
	crossUp := fast[n-1] <= slow[n-1] && fast[n] > slow[n]
	crossDown := fast[n-1] >= slow[n-1] && fast[n] < slow[n]
	switch {
	case crossUp && !state.Open():
		return backtest.SignalBuy
	case crossDown && state.Open():
		return backtest.SignalSell
	}
	return backtest.SignalHold
}

// RSI 超卖开仓，超买平仓。
type RSI struct {
	Period     int
	Oversold   float64
	Overbought float64
}

func (s RSI) Name() string { return fmt.Sprintf("rsi(%d)", s.Period) }

func (s RSI) OnCandle(_ market.Candle, _ int, state backtest.PortfolioState, history []market.Candle) backtest.Signal {
	closes := market.Candles(history).Closes()
	if len(closes) <= s.Period {
		return backtest.SignalHold
	}
	series := talib.Rsi(closes, s.Period)
	last := series[len(series)-1]
	if math.IsNaN(last) {
		return backtest.SignalHold
	}
	switch {
	case last < s.Oversold && !state.Open():
		return backtest.SignalBuy
	case last > s.Overbought && state.Open():
		return backtest.SignalSell
	}
	return backtest.SignalHold
}

// BuyAndHold 首次可交易时买入并一直持有。
type BuyAndHold struct{}

func (BuyAndHold) Name() string { return "buy_and_hold" }

func (BuyAndHold) OnCandle(_ market.Candle, _ int, state backtest.PortfolioState, _ []market.Candle) backtest.Signal {
	if !state.Open() && state.LastTradeIndex < 0 {
		return backtest.SignalBuy
	}
	return backtest.SignalHold
}

// TrendFilter 包装另一个策略：收盘价低于 EMA(Period) 时屏蔽买入信号，其余信号原样透传。
type TrendFilter struct {
	Base   backtest.Strategy
	Period int
}

func (s TrendFilter) Name() string {
	base := "custom"
	if n, ok := s.Base.(backtest.Named); ok {
		base = n.Name()
	}
	return fmt.Sprintf("trend_filter(%s,%d)", base, s.Period)
}

func (s TrendFilter) OnCandle(c market.Candle, index int, state backtest.PortfolioState, history []market.Candle) backtest.Signal {
	sig := s.Base.OnCandle(c, index, state, history)
	if sig != backtest.SignalBuy {
		return sig
	}
	closes := market.Candles(history).Closes()
	if len(closes) < s.Period {
		return backtest.SignalHold
	}
	ema := talib.Ema(closes, s.Period)
	if c.Close < ema[len(ema)-1] {
		return backtest.SignalHold
	}
	return sig
}

// ATRVolatility 返回 ATR(period)/close，作为分批止盈的波动率输入；数据不足时返回 false。
func ATRVolatility(candles []market.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) <= period {
		return 0, false
	}
	cs := market.Candles(candles)
	series := talib.Atr(cs.Highs(), cs.Lows(), cs.Closes(), period)
	last := series[len(series)-1]
	price := candles[len(candles)-1].Close
	if price <= 0 || math.IsNaN(last) || last <= 0 {
		return 0, false
	}
	return last / price, true
}

type factory func(params map[string]any) (backtest.Strategy, error)

var registry map[string]factory

func init() {
	registry = map[string]factory{
		"ema_cross":    newEMACross,
		"rsi":          newRSI,
		"buy_and_hold": func(map[string]any) (backtest.Strategy, error) { return BuyAndHold{}, nil },
		"trend_filter": newTrendFilter,
	}
}

// Names 返回已注册的策略名。
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New 按名称与松散类型参数（字符串数字亦可）构造策略。
func New(name string, params map[string]any) (backtest.Strategy, error) {
	f, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	if params == nil {
		params = map[string]any{}
	}
	return f(params)
}

func intParam(params map[string]any, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s 需 >0", key)
	}
	return v, nil
}

func floatParam(params map[string]any, key string, def float64) (float64, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func newEMACross(params map[string]any) (backtest.Strategy, error) {
	fast, err := intParam(params, "fast", 9)
	if err != nil {
		return nil, err
	}
	slow, err := intParam(params, "slow", 21)
	if err != nil {
		return nil, err
	}
	if fast >= slow {
		return nil, fmt.Errorf("fast(%d) 需小于 slow(%d)", fast, slow)
	}
	return EMACross{Fast: fast, Slow: slow}, nil
}

func newRSI(params map[string]any) (backtest.Strategy, error) {
	period, err := intParam(params, "period", 14)
	if err != nil {
		return nil, err
	}
	oversold, err := floatParam(params, "oversold", 30)
	if err != nil {
		return nil, err
	}
	overbought, err := floatParam(params, "overbought", 70)
	if err != nil {
		return nil, err
	}
	if oversold < 0 || overbought > 100 || oversold >= overbought {
		return nil, fmt.Errorf("rsi 阈值无效: oversold=%g overbought=%g", oversold, overbought)
	}
	return RSI{Period: period, Oversold: oversold, Overbought: overbought}, nil
}

func newTrendFilter(params map[string]any) (backtest.Strategy, error) {
	period, err := intParam(params, "period", 50)
	if err != nil {
		return nil, err
	}
	baseName := cast.ToString(params["base"])
	if baseName == "" {
		baseName = "ema_cross"
	}
	if strings.EqualFold(baseName, "trend_filter") {
		return nil, fmt.Errorf("trend_filter 不能嵌套自身")
	}
	baseParams, err := cast.ToStringMapE(params["base_params"])
	if err != nil && params["base_params"] != nil {
		return nil, fmt.Errorf("base_params: %w", err)
	}
	base, err := New(baseName, baseParams)
	if err != nil {
		return nil, err
	}
	return TrendFilter{Base: base, Period: period}, nil
}
