// Package trailing 计算移动止损价：激活后随价格朝有利方向移动，只收紧不放松。
package trailing

import (
	"fmt"
	"math"

	"exitpilot/internal/pkg/decmath"
	"exitpilot/internal/trade"
)

const (
	volatilityChangeThreshold = 0.5
	widenFactor               = 1.5
	tightenFactor             = 0.75

	minATRTriggerMultiplier = 1.0
	maxATRTriggerMultiplier = 5.0
	minATRTrailMultiplier   = 0.5
)

// CalculateTrailingStop 返回候选止损价；未启用或盈利未达到激活比例时返回 false。
// 追踪距离与最小距离各算一个价格，BUY 取较高者，SELL 取较低者，止损不会比最小距离更宽。
func CalculateTrailingStop(s trade.State, cfg trade.TrailingStopConfig) (float64, bool) {
	if !cfg.Enabled {
		return 0, false
	}
	if decmath.LT(s.ProfitPct(), cfg.ActivationProfitPct) {
		return 0, false
	}
	price := s.CurrentPrice
	if s.Side == trade.SideSell {
		trailed := decmath.Scale(price, cfg.TrailDistancePct)
		bound := decmath.Scale(price, cfg.MinTrailDistancePct)
		return math.Min(trailed, bound), true
	}
	trailed := decmath.Scale(price, -cfg.TrailDistancePct)
	bound := decmath.Scale(price, -cfg.MinTrailDistancePct)
	return math.Max(trailed, bound), true
}

// ShouldUpdateTrailingStop 判断 newPrice 是否应替换当前止损价。
func ShouldUpdateTrailingStop(s trade.State, newPrice float64) bool {
	if !s.TrailingEnabled() {
		return false
	}
	if decmath.LT(s.ProfitPct(), s.TrailingStopConfig.ActivationProfitPct) {
		return false
	}
	if !s.HasTrailingStop() {
		return true
	}
	current := *s.CurrentTrailingStopPrice
	if s.Side == trade.SideSell {
		return decmath.LT(newPrice, current)
	}
	return decmath.GT(newPrice, current)
}

// ShouldTriggerTrailingStop 当价格反向穿越已设置的止损价时为 true。
func ShouldTriggerTrailingStop(s trade.State) bool {
	if !s.HasTrailingStop() {
		return false
	}
	stop := *s.CurrentTrailingStopPrice
	if s.Side == trade.SideSell {
		return decmath.GTE(s.CurrentPrice, stop)
	}
	return decmath.LTE(s.CurrentPrice, stop)
}

// ReconfigureTrailingStop 按波动率变化调整追踪距离：变化不足 50% 时原样返回；
// 大幅上升放宽 50%，大幅下降收紧 25%（不低于最小距离）。
func ReconfigureTrailingStop(cfg trade.TrailingStopConfig, currentVolatility float64, previousVolatility *float64) trade.TrailingStopConfig {
	if previousVolatility == nil || *previousVolatility <= 0 {
		return cfg
	}
	prev := *previousVolatility
	change := (currentVolatility - prev) / prev
	if math.Abs(change) < volatilityChangeThreshold {
		return cfg
	}
	out := cfg
	if change > 0 {
		out.TrailDistancePct = cfg.TrailDistancePct * widenFactor
	} else {
		out.TrailDistancePct = math.Max(cfg.TrailDistancePct*tightenFactor, cfg.MinTrailDistancePct)
	}
	return out
}

// ATRParams 描述以 ATR 倍数表达的移动止损参数。
type ATRParams struct {
	ATR                 float64
	EntryPrice          float64
	TriggerMultiplier   float64
	TrailMultiplier     float64
	MinTrailDistancePct float64
}

// ConfigFromATR 将 ATR 倍数换算为比例：激活比例 = ATR*trigger/entry，追踪距离 = ATR*trail/entry。
func ConfigFromATR(p ATRParams) (trade.TrailingStopConfig, error) {
	if p.ATR <= 0 {
		return trade.TrailingStopConfig{}, fmt.Errorf("atr 需 >0")
	}
	if p.EntryPrice <= 0 {
		return trade.TrailingStopConfig{}, fmt.Errorf("entry_price 需 >0")
	}
	if p.TriggerMultiplier < minATRTriggerMultiplier || p.TriggerMultiplier > maxATRTriggerMultiplier {
		return trade.TrailingStopConfig{}, fmt.Errorf("trigger_multiplier 需位于 [%.1f, %.1f]", minATRTriggerMultiplier, maxATRTriggerMultiplier)
	}
	if p.TrailMultiplier < minATRTrailMultiplier {
		return trade.TrailingStopConfig{}, fmt.Errorf("trail_multiplier 需 >= %.1f", minATRTrailMultiplier)
	}
	if p.TrailMultiplier >= p.TriggerMultiplier {
		return trade.TrailingStopConfig{}, fmt.Errorf("trail_multiplier 需小于 trigger_multiplier")
	}
	trail := decmath.Ratio(p.ATR*p.TrailMultiplier, p.EntryPrice)
	return trade.TrailingStopConfig{
		Enabled:             true,
		ActivationProfitPct: decmath.Ratio(p.ATR*p.TriggerMultiplier, p.EntryPrice),
		TrailDistancePct:    math.Max(trail, p.MinTrailDistancePct),
		MinTrailDistancePct: p.MinTrailDistancePct,
	}, nil
}
