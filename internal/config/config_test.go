package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "app:\n  env: test\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9991", cfg.App.HTTPAddr)
	assert.Equal(t, 10.0, cfg.Risk.MaxLeverage)
	assert.Equal(t, 0.02, cfg.Risk.MaxRiskPerTrade)
	assert.Equal(t, "BTCUSDT", cfg.Backtest.Symbol)
	assert.Equal(t, 10000.0, cfg.Backtest.InitialCapital)
	assert.True(t, cfg.Trailing.Enabled)
	assert.Equal(t, "https://fapi.binance.com", cfg.Market.RESTBaseURL)
	assert.Equal(t, 15*time.Second, cfg.Market.Binance().Timeout)
}

func TestLoadIncludesAndExplicitZero(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "risk.yaml", `
risk:
  max_leverage: 5
  max_risk_per_trade: 0.01
backtest:
  symbol: ethusdt
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - risk.yaml
backtest:
  fee_rate: 0
  initial_capital: "2500"
trailing:
  enabled: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5.0, cfg.Risk.MaxLeverage)
	assert.Equal(t, 0.01, cfg.Risk.MaxRiskPerTrade)
	assert.Equal(t, 0.1, cfg.Risk.MaxPositionSize)
	assert.Equal(t, "ETHUSDT", cfg.Backtest.Symbol)
	assert.Equal(t, 0.0, cfg.Backtest.FeeRate)
	assert.Equal(t, 2500.0, cfg.Backtest.InitialCapital)
	assert.False(t, cfg.Trailing.Enabled)

	sim := cfg.Simulation("")
	assert.Equal(t, "ETHUSDT", sim.Symbol)
	assert.Equal(t, cfg.Risk, sim.Risk)
	assert.Equal(t, "SOLUSDT", cfg.Simulation("SOLUSDT").Symbol)
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoadIncludeOrderAndSingleString(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "common.yaml", `
backtest:
  symbol: SOLUSDT
  initial_capital: 100
`)
	writeFile(t, dir, "desk.yaml", `
include: common.yaml
backtest:
  initial_capital: 200
`)
	path := writeFile(t, dir, "config.yaml", `
include: [common.yaml, desk.yaml]
backtest:
  fee_rate: 0.002
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDT", cfg.Backtest.Symbol)
	assert.Equal(t, 200.0, cfg.Backtest.InitialCapital)
	assert.Equal(t, 0.002, cfg.Backtest.FeeRate)

	bad := writeFile(t, dir, "bad.yaml", "include:\n  nested: x\n")
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestValidateAggregatesErrors(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
app:
  log_level: loud
backtest:
  initial_capital: -1
  leverage: 50
trailing:
  trail_distance_pct: 0.001
  min_trail_distance_pct: 0.01
market:
  rest_base_url: ftp://example
`)
	_, err := Load(path)
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 5)
	msg := err.Error()
	assert.Contains(t, msg, "app.log_level")
	assert.Contains(t, msg, "backtest.initial_capital")
	assert.Contains(t, msg, "backtest.leverage")
	assert.Contains(t, msg, "trailing.min_trail_distance_pct")
	assert.Contains(t, msg, "market.rest_base_url")
}

func TestTrailingPolicy(t *testing.T) {
	tc := TrailingConfig{Enabled: true, ActivationProfitPct: 0.02, TrailDistancePct: 0.01, MinTrailDistancePct: 0.005}
	p := tc.Policy()
	assert.True(t, p.Enabled)
	assert.Equal(t, 0.02, p.ActivationProfitPct)
	assert.Equal(t, 0.01, p.TrailDistancePct)
	assert.Equal(t, 0.005, p.MinTrailDistancePct)
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "risk:\n  max_leverage: 5\n")

	got := make(chan *Config, 4)
	w, err := Watch(path, func(cfg *Config) {
		select {
		case got <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, w.Current().Risk.MaxLeverage)
	assert.Equal(t, 1, w.Version())

	writeFile(t, dir, "config.yaml", "risk:\n  max_leverage: 8\n")
	require.NoError(t, w.reload())
	select {
	case cfg := <-got:
		assert.Equal(t, 8.0, cfg.Risk.MaxLeverage)
	case <-time.After(2 * time.Second):
		t.Fatal("listener not called")
	}
	assert.Equal(t, 8.0, w.Current().Risk.MaxLeverage)

	writeFile(t, dir, "config.yaml", "risk:\n  max_leverage: -1\n")
	assert.Error(t, w.reload())
	assert.Equal(t, 8.0, w.Current().Risk.MaxLeverage)
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, validate(cfg))
	assert.Equal(t, "data/backtest.db", cfg.Backtest.StorePath)
	assert.Equal(t, 0.005, cfg.Trailing.TrailDistancePct)
}
