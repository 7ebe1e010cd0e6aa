package config

import (
	"strings"
	"time"

	"exitpilot/internal/backtest"
	"exitpilot/internal/market"
	"exitpilot/internal/risk"
	"exitpilot/internal/trade"
)

// Config 是 exitpilot 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Risk     risk.Config    `toml:"risk"`
	Backtest BacktestConfig `toml:"backtest"`
	Trailing TrailingConfig `toml:"trailing"`
	Market   MarketConfig   `toml:"market"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
}

// BacktestConfig 为回测命令与 HTTP 回测接口的默认参数。
type BacktestConfig struct {
	Symbol         string  `toml:"symbol"`
	Interval       string  `toml:"interval"`
	InitialCapital float64 `toml:"initial_capital"`
	FeeRate        float64 `toml:"fee_rate"`
	SlippageBps    float64 `toml:"slippage_bps"`
	Leverage       float64 `toml:"leverage"`
	StopLossPct    float64 `toml:"stop_loss_pct"`
	StorePath      string  `toml:"store_path"`
	ReportDir      string  `toml:"report_dir"`
}

type TrailingConfig struct {
	Enabled             bool    `toml:"enabled"`
	ActivationProfitPct float64 `toml:"activation_profit_pct"`
	TrailDistancePct    float64 `toml:"trail_distance_pct"`
	MinTrailDistancePct float64 `toml:"min_trail_distance_pct"`
}

type MarketConfig struct {
	RESTBaseURL    string `toml:"rest_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Simulation 组合出一次回测所需的模拟参数，symbol 为空时使用配置中的默认值。
func (c *Config) Simulation(symbol string) backtest.Config {
	if strings.TrimSpace(symbol) == "" {
		symbol = c.Backtest.Symbol
	}
	return backtest.Config{
		Symbol:          symbol,
		InitialCapital:  c.Backtest.InitialCapital,
		FeeRate:         c.Backtest.FeeRate,
		SlippageBps:     c.Backtest.SlippageBps,
		Leverage:        c.Backtest.Leverage,
		StopLossPercent: c.Backtest.StopLossPct,
		Risk:            c.Risk,
	}
}

// Policy 转为交易快照使用的移动止损参数。
func (t TrailingConfig) Policy() trade.TrailingStopConfig {
	return trade.TrailingStopConfig{
		Enabled:             t.Enabled,
		ActivationProfitPct: t.ActivationProfitPct,
		TrailDistancePct:    t.TrailDistancePct,
		MinTrailDistancePct: t.MinTrailDistancePct,
	}
}

func (m MarketConfig) Binance() market.BinanceConfig {
	return market.BinanceConfig{
		RESTBaseURL: m.RESTBaseURL,
		Timeout:     time.Duration(m.TimeoutSeconds) * time.Second,
	}
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
