package config

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

// validate 对配置进行基础校验，汇总所有错误一起返回。
func validate(c *Config) error {
	var err error
	err = multierr.Append(err, c.App.validate())
	if rerr := c.Risk.Validate(); rerr != nil {
		err = multierr.Append(err, fmt.Errorf("risk: %w", rerr))
	}
	err = multierr.Append(err, c.Backtest.validate(c.Risk.MaxLeverage))
	err = multierr.Append(err, c.Trailing.validate())
	err = multierr.Append(err, c.Market.validate())
	return err
}

func (a *AppConfig) validate() error {
	if !validLogLevels[a.LogLevel] {
		return fmt.Errorf("app.log_level %q is not supported", a.LogLevel)
	}
	return nil
}

func (b *BacktestConfig) validate(maxLeverage float64) error {
	var err error
	if strings.TrimSpace(b.Symbol) == "" {
		err = multierr.Append(err, fmt.Errorf("backtest.symbol is required"))
	}
	if b.InitialCapital <= 0 {
		err = multierr.Append(err, fmt.Errorf("backtest.initial_capital must be > 0"))
	}
	if b.FeeRate < 0 || b.FeeRate >= 1 {
		err = multierr.Append(err, fmt.Errorf("backtest.fee_rate must be within [0,1)"))
	}
	if b.SlippageBps < 0 {
		err = multierr.Append(err, fmt.Errorf("backtest.slippage_bps must be >= 0"))
	}
	if b.Leverage <= 0 || (maxLeverage > 0 && b.Leverage > maxLeverage) {
		err = multierr.Append(err, fmt.Errorf("backtest.leverage must be within (0,%g]", maxLeverage))
	}
	if b.StopLossPct <= 0 || b.StopLossPct >= 1 {
		err = multierr.Append(err, fmt.Errorf("backtest.stop_loss_pct must be within (0,1)"))
	}
	return err
}

func (t *TrailingConfig) validate() error {
	var err error
	if t.ActivationProfitPct < 0 {
		err = multierr.Append(err, fmt.Errorf("trailing.activation_profit_pct must be >= 0"))
	}
	if t.TrailDistancePct <= 0 || t.TrailDistancePct >= 1 {
		err = multierr.Append(err, fmt.Errorf("trailing.trail_distance_pct must be within (0,1)"))
	}
	if t.MinTrailDistancePct < 0 || t.MinTrailDistancePct > t.TrailDistancePct {
		err = multierr.Append(err, fmt.Errorf("trailing.min_trail_distance_pct must be within [0,trail_distance_pct]"))
	}
	return err
}

func (m *MarketConfig) validate() error {
	base := strings.TrimSpace(m.RESTBaseURL)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("market.rest_base_url must be an http(s) url")
	}
	return nil
}
