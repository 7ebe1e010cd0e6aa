package backtest

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"exitpilot/internal/market"
	"exitpilot/internal/risk"
)

type mockStrategy struct {
	mock.Mock
}

func (m *mockStrategy) OnCandle(c market.Candle, index int, state PortfolioState, history []market.Candle) Signal {
	args := m.Called(c, index, state, history)
	return args.Get(0).(Signal)
}

func testConfig() Config {
	return Config{
		Symbol:         "BTCUSDT",
		InitialCapital: 10000,
		FeeRate:        0.001,
		SlippageBps:    10,
	}
}

func candle(ts int64, close float64) market.Candle {
	return market.Candle{Symbol: "BTCUSDT", Timestamp: ts, Open: close, High: close, Low: close, Close: close}
}

func series(closes ...float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = candle(int64(i+1)*60000, c)
	}
	return out
}

func assertInvariant(t *testing.T, st PortfolioState) {
	t.Helper()
	open := st.PositionSize > 0
	assert.Equal(t, open, st.PositionSymbol != "")
	assert.Equal(t, open, st.EntryPrice > 0)
	assert.GreaterOrEqual(t, st.Balance, 0.0)
}

func TestNewPortfolioValidation(t *testing.T) {
	_, err := NewPortfolio(Config{InitialCapital: 100})
	assert.Error(t, err)

	cfg := testConfig()
	cfg.InitialCapital = 0
	_, err = NewPortfolio(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.FeeRate = 1
	_, err = NewPortfolio(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Leverage = 20
	_, err = NewPortfolio(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, risk.ErrLeverageExceeded))

	cfg = testConfig()
	cfg.Leverage = -2
	_, err = NewPortfolio(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, risk.ErrLeverageExceeded)

	p, err := NewPortfolio(testConfig())
	require.NoError(t, err)
	assert.Equal(t, risk.DefaultConfig(), p.Config().Risk)
	assert.Equal(t, 10000.0, p.State().Balance)
	assert.Equal(t, -1, p.State().LastTradeIndex)
}

func TestPortfolioBuySell(t *testing.T) {
	p, err := NewPortfolio(testConfig())
	require.NoError(t, err)

	buy, err := p.Buy(candle(1, 100), 1)
	require.NoError(t, err)
	assert.Equal(t, SignalBuy, buy.Action)
	assert.InDelta(t, 10.0, buy.Size, 1e-9)
	assert.InDelta(t, 100.1, buy.Price, 1e-9)
	assert.InDelta(t, 1.0, buy.Fee, 1e-9)

	st := p.State()
	assertInvariant(t, st)
	assert.InDelta(t, 8999.0, st.Balance, 1e-9)
	assert.Equal(t, "BTCUSDT", st.PositionSymbol)
	assert.InDelta(t, 100.1, st.EntryPrice, 1e-9)
	assert.InDelta(t, 8999.0+10*105, p.Equity(105), 1e-9)

	sell, err := p.Sell(candle(2, 110), 2)
	require.NoError(t, err)
	assert.InDelta(t, 109.89, sell.Price, 1e-9)
	assert.InDelta(t, 1.0989, sell.Fee, 1e-9)
	assert.InDelta(t, 96.8011, sell.PnL, 1e-6)

	st = p.State()
	assertInvariant(t, st)
	assert.False(t, st.Open())
	assert.InDelta(t, 10096.8011, st.Balance, 1e-6)
	assert.Equal(t, 2, st.LastTradeIndex)
	assert.Len(t, p.Trades(), 2)
}

func TestPortfolioRejections(t *testing.T) {
	p, err := NewPortfolio(testConfig())
	require.NoError(t, err)

	_, err = p.Sell(candle(1, 100), 1)
	assert.ErrorIs(t, err, ErrNoPosition)

	eth := candle(1, 100)
	eth.Symbol = "ETHUSDT"
	_, err = p.Buy(eth, 1)
	assert.ErrorIs(t, err, ErrSymbolMismatch)
	assert.ErrorIs(t, p.ValidateTrade(SignalBuy, eth), ErrSymbolMismatch)

	lower := candle(1, 100)
	lower.Symbol = "btcusdt"
	require.NoError(t, p.ValidateTrade(SignalBuy, lower))
	_, err = p.Buy(lower, 1)
	require.NoError(t, err)

	_, err = p.Buy(candle(2, 100), 2)
	assert.ErrorIs(t, err, ErrPositionOpen)
	assert.ErrorIs(t, p.ValidateTrade(SignalBuy, candle(2, 100)), ErrPositionOpen)
	assert.NoError(t, p.ValidateTrade(SignalSell, candle(2, 100)))
	assert.NoError(t, p.ValidateTrade(SignalHold, candle(2, 100)))
	assert.Error(t, p.ValidateTrade(Signal("short"), candle(2, 100)))

	_, err = p.Sell(eth, 2)
	assert.ErrorIs(t, err, ErrSymbolMismatch)
	assert.True(t, p.State().Open())
	assert.Len(t, p.Trades(), 1)
}

func TestPortfolioInsufficientBalance(t *testing.T) {
	cfg := testConfig()
	cfg.InitialCapital = 10
	p, err := NewPortfolio(cfg)
	require.NoError(t, err)

	before := p.State()
	_, err = p.Buy(candle(1, 50000), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, before, p.State())
	assert.False(t, p.State().Open())
	assert.Empty(t, p.Trades())
}

func TestPortfolioFuturesSizing(t *testing.T) {
	cfg := testConfig()
	cfg.Leverage = 5
	p, err := NewPortfolio(cfg)
	require.NoError(t, err)
	buy, err := p.Buy(candle(1, 100), 1)
	require.NoError(t, err)
	// max_position_size keeps notional at 10% of balance
	assert.InDelta(t, 10.0, buy.Size, 1e-9)
}

func TestPortfolioInvariantSequence(t *testing.T) {
	p, err := NewPortfolio(testConfig())
	require.NoError(t, err)
	actions := []Signal{SignalSell, SignalBuy, SignalBuy, SignalHold, SignalSell, SignalSell, SignalBuy, SignalSell, SignalBuy}
	prices := []float64{100, 101, 99, 98, 120, 119, 80, 60, 61}
	for i, act := range actions {
		c := candle(int64(i+1), prices[i])
		switch act {
		case SignalBuy:
			_, _ = p.Buy(c, i)
		case SignalSell:
			_, _ = p.Sell(c, i)
		}
		assertInvariant(t, p.State())
	}
}

func TestRunEmpty(t *testing.T) {
	res, err := Run(StrategyFunc(func(market.Candle, int, PortfolioState, []market.Candle) Signal { return SignalBuy }), nil, testConfig())
	require.NoError(t, err)
	assert.Equal(t, 10000.0, res.FinalEquity)
	assert.Empty(t, res.Trades)
	assert.Empty(t, res.EquityCurve)
	assert.Equal(t, 0.0, res.TotalReturn)
	assert.Equal(t, 0.0, res.BenchmarkReturn)
}

func TestRunNoLookahead(t *testing.T) {
	candles := series(100, 101, 102, 103, 104)
	strat := &mockStrategy{}
	strat.On("OnCandle", mock.Anything, mock.MatchedBy(func(i int) bool { return i > 0 }), mock.Anything, mock.Anything).
		Return(SignalHold)

	res, err := Run(strat, candles, testConfig())
	require.NoError(t, err)
	strat.AssertNumberOfCalls(t, "OnCandle", len(candles)-1)
	for _, call := range strat.Calls {
		idx := call.Arguments.Int(1)
		history := call.Arguments.Get(3).([]market.Candle)
		assert.NotZero(t, idx)
		assert.Len(t, history, idx+1)
		assert.Equal(t, candles[idx], history[idx])
	}
	assert.Len(t, res.EquityCurve, len(candles)-1)
	assert.Equal(t, candles[1].Timestamp, res.EquityCurve[0].Timestamp)
	assert.Equal(t, "custom", res.Strategy)
}

func TestRunBenchmark(t *testing.T) {
	hold := StrategyFunc(func(market.Candle, int, PortfolioState, []market.Candle) Signal { return SignalHold })
	res, err := Run(hold, series(50000, 55000), testConfig())
	require.NoError(t, err)
	assert.InDelta(t, 10.0, res.BenchmarkReturn, 1e-9)
	assert.Equal(t, 10000.0, res.FinalEquity)
	assert.Len(t, res.EquityCurve, 1)

	assert.Equal(t, 0.0, BenchmarkReturn(series(50000)))
	assert.Equal(t, 0.0, BenchmarkReturn(series(0, 10)))
}

func TestRunRoundTrip(t *testing.T) {
	candles := series(100, 100, 110, 90, 95, 120)
	signals := map[int]Signal{1: SignalBuy, 2: SignalSell, 3: SignalBuy, 4: SignalBuy, 5: SignalSell}
	strat := StrategyFunc(func(_ market.Candle, i int, _ PortfolioState, _ []market.Candle) Signal {
		if s, ok := signals[i]; ok {
			return s
		}
		return SignalHold
	})
	res, err := Run(strat, candles, testConfig())
	require.NoError(t, err)

	require.Len(t, res.Trades, 4)
	assert.Equal(t, 1, res.RejectedSignals)
	assert.Equal(t, 2, res.RoundTrips)
	assert.Equal(t, 100.0, res.WinRate)
	assert.Equal(t, 0.0, res.ProfitFactor)
	assert.Len(t, res.EquityCurve, len(candles)-1)
	last := res.EquityCurve[len(res.EquityCurve)-1]
	assert.Equal(t, res.FinalEquity, last.Equity)
	assert.InDelta(t, (res.FinalEquity-10000)/10000*100, res.TotalReturn, 1e-9)
	assert.InDelta(t, 20.0, res.BenchmarkReturn, 1e-9)
}

func TestRunInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Symbol = ""
	_, err := Run(StrategyFunc(func(market.Candle, int, PortfolioState, []market.Candle) Signal { return SignalHold }), series(1, 2), cfg)
	assert.Error(t, err)

	_, err = Run(nil, series(1, 2), testConfig())
	assert.Error(t, err)
}

func TestMaxDrawdown(t *testing.T) {
	assert.Equal(t, 0.0, MaxDrawdown(nil))
	rising := []EquityPoint{{Equity: 100}, {Equity: 100}, {Equity: 120}}
	assert.Equal(t, 0.0, MaxDrawdown(rising))

	curve := []EquityPoint{{Equity: 100}, {Equity: 120}, {Equity: 90}, {Equity: 130}, {Equity: 117}}
	assert.InDelta(t, 25.0, MaxDrawdown(curve), 1e-9)
}

func TestTradeStats(t *testing.T) {
	trades := []Trade{
		{Action: SignalBuy}, {Action: SignalSell, PnL: 30},
		{Action: SignalBuy}, {Action: SignalSell, PnL: -10},
		{Action: SignalBuy}, {Action: SignalSell, PnL: -5},
	}
	n, win, pf := tradeStats(trades)
	assert.Equal(t, 3, n)
	assert.InDelta(t, 100.0/3, win, 1e-9)
	assert.InDelta(t, 2.0, pf, 1e-9)
}

func TestRunBatch(t *testing.T) {
	candles := series(100, 100, 110, 120)
	buyFirst := StrategyFunc(func(_ market.Candle, i int, st PortfolioState, _ []market.Candle) Signal {
		if !st.Open() {
			return SignalBuy
		}
		return SignalHold
	})
	hold := StrategyFunc(func(market.Candle, int, PortfolioState, []market.Candle) Signal { return SignalHold })

	results, err := RunBatch(context.Background(), []BatchItem{
		{Name: "buy_first", Strategy: buyFirst},
		{Name: "hold", Strategy: hold},
	}, candles, testConfig(), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "buy_first", results[0].Strategy)
	assert.Equal(t, "hold", results[1].Strategy)
	assert.Greater(t, results[0].FinalEquity, results[1].FinalEquity)
	assert.Equal(t, 10000.0, results[1].FinalEquity)

	bad := testConfig()
	bad.InitialCapital = -1
	_, err = RunBatch(context.Background(), []BatchItem{{Name: "hold", Strategy: hold}}, candles, bad, 0)
	assert.Error(t, err)
}

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.Observe(Result{Strategy: "ema_cross", Symbol: "BTCUSDT", TotalReturn: 4.2, RejectedSignals: 2,
		Trades: []Trade{{Action: SignalBuy}, {Action: SignalSell}}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ema_cross")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trades.WithLabelValues("sell")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rejected))
	assert.Equal(t, 4.2, testutil.ToFloat64(m.returns.WithLabelValues("ema_cross", "BTCUSDT")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.Observe(Result{}) })
}
