package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exitpilot/internal/backtest"
	"exitpilot/internal/market"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "runs", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	clock := time.UnixMilli(1_700_000_000_000)
	st.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return st
}

func sampleRun(t *testing.T, symbol string) (backtest.Config, backtest.Result) {
	t.Helper()
	cfg := backtest.Config{Symbol: symbol, InitialCapital: 1000, FeeRate: 0.001}
	candles := []market.Candle{
		{Timestamp: 1, Close: 100},
		{Timestamp: 2, Close: 100},
		{Timestamp: 3, Close: 110},
	}
	buyOnce := backtest.StrategyFunc(func(_ market.Candle, i int, _ backtest.PortfolioState, _ []market.Candle) backtest.Signal {
		if i == 1 {
			return backtest.SignalBuy
		}
		return backtest.SignalHold
	})
	res, err := backtest.Run(buyOnce, candles, cfg)
	require.NoError(t, err)
	return cfg, res
}

func TestStoreSaveGet(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	cfg, res := sampleRun(t, "BTCUSDT")

	sum, err := st.Save(ctx, cfg, res, 3)
	require.NoError(t, err)
	assert.NotEmpty(t, sum.ID)
	assert.Equal(t, "BTCUSDT", sum.Symbol)
	assert.Equal(t, 1, sum.TradeCount)
	assert.Equal(t, 3, sum.Candles)

	run, err := st.Get(ctx, sum.ID)
	require.NoError(t, err)
	assert.Equal(t, sum, run.Summary)
	assert.Equal(t, cfg.Symbol, run.Config.Symbol)
	assert.Equal(t, res.FinalEquity, run.Result.FinalEquity)
	assert.Equal(t, res.Trades, run.Result.Trades)
	assert.Len(t, run.Result.EquityCurve, 2)

	_, err = st.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreList(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	var ids []string
	for _, sym := range []string{"BTCUSDT", "ETHUSDT", "BTCUSDT"} {
		cfg, res := sampleRun(t, sym)
		sum, err := st.Save(ctx, cfg, res, 3)
		require.NoError(t, err)
		ids = append(ids, sum.ID)
	}

	all, err := st.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID)
	assert.Equal(t, ids[0], all[2].ID)

	btc, err := st.List(ctx, "btcusdt", 1)
	require.NoError(t, err)
	require.Len(t, btc, 1)
	assert.Equal(t, ids[2], btc[0].ID)

	eth, err := st.List(ctx, "eth/usdt", 0)
	require.NoError(t, err)
	require.Len(t, eth, 1)
	assert.Equal(t, ids[1], eth[0].ID)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
