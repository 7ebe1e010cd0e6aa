package config

import (
	"strings"

	"exitpilot/internal/risk"
)

// 默认值常量
const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppHTTPAddr      = ":9991"
	defaultBacktestSymbol   = "BTCUSDT"
	defaultBacktestInterval = "1h"
	defaultBacktestCapital  = 10000
	defaultBacktestFeeRate  = 0.001
	defaultBacktestLeverage = 1
	defaultBacktestSL       = 0.02
	defaultBacktestStore    = "data/backtest.db"
	defaultBacktestReports  = "data/reports"
	defaultTrailActivation  = 0.01
	defaultTrailDistance    = 0.005
	defaultTrailMinDistance = 0.002
	defaultMarketREST       = "https://fapi.binance.com"
	defaultMarketTimeout    = 15
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	applyRiskDefaults(&c.Risk, keys)
	c.Backtest.applyDefaults(keys)
	c.Trailing.applyDefaults(keys)
	c.Market.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
	a.LogLevel = strings.ToLower(strings.TrimSpace(a.LogLevel))
}

func applyRiskDefaults(r *risk.Config, keys keySet) {
	def := risk.DefaultConfig()
	applyFieldDefaults(keys,
		floatFieldDefault("risk.max_leverage", &r.MaxLeverage, def.MaxLeverage),
		floatFieldDefault("risk.max_risk_per_trade", &r.MaxRiskPerTrade, def.MaxRiskPerTrade),
		floatFieldDefault("risk.max_position_size", &r.MaxPositionSize, def.MaxPositionSize),
		floatFieldDefault("risk.min_order_size", &r.MinOrderSize, def.MinOrderSize),
		floatFieldDefault("risk.max_order_size", &r.MaxOrderSize, def.MaxOrderSize),
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("backtest.symbol", &b.Symbol, defaultBacktestSymbol),
		stringFieldDefault("backtest.interval", &b.Interval, defaultBacktestInterval),
		floatFieldDefault("backtest.initial_capital", &b.InitialCapital, defaultBacktestCapital),
		floatFieldDefault("backtest.fee_rate", &b.FeeRate, defaultBacktestFeeRate),
		floatFieldDefault("backtest.leverage", &b.Leverage, defaultBacktestLeverage),
		floatFieldDefault("backtest.stop_loss_pct", &b.StopLossPct, defaultBacktestSL),
		stringFieldDefault("backtest.store_path", &b.StorePath, defaultBacktestStore),
		stringFieldDefault("backtest.report_dir", &b.ReportDir, defaultBacktestReports),
	)
	b.Symbol = strings.ToUpper(strings.TrimSpace(b.Symbol))
}

func (t *TrailingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("trailing.enabled", &t.Enabled, true),
		floatFieldDefault("trailing.activation_profit_pct", &t.ActivationProfitPct, defaultTrailActivation),
		floatFieldDefault("trailing.trail_distance_pct", &t.TrailDistancePct, defaultTrailDistance),
		floatFieldDefault("trailing.min_trail_distance_pct", &t.MinTrailDistancePct, defaultTrailMinDistance),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		fieldDefault{
			key:   "market.timeout_seconds",
			need:  func() bool { return m.TimeoutSeconds <= 0 },
			apply: func() { m.TimeoutSeconds = defaultMarketTimeout },
		},
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

// floatFieldDefault 仅在字段未显式设置且为 0 时生效，显式写 0 的值会被保留。
func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target == 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
