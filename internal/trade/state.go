package trade

import (
	"strings"

	"exitpilot/internal/pkg/decmath"
)

// Side 表示仓位方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide 兼容 buy/long、sell/short 等写法，无法识别时返回空串。
func ParseSide(raw string) Side {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "long":
		return SideBuy
	case "sell", "short":
		return SideSell
	default:
		return ""
	}
}

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// ExitLevel 为分批止盈中的一档：盈利比例达到 ProfitPct 时平掉 QuantityPct 的仓位。
type ExitLevel struct {
	ProfitPct   float64 `json:"profit_pct" yaml:"profit_pct"`
	QuantityPct float64 `json:"quantity_pct" yaml:"quantity_pct"`
}

// ExitStrategy 为按顺序排列的止盈档位。
type ExitStrategy struct {
	Levels         []ExitLevel `json:"levels" yaml:"levels"`
	AutoCalculated bool        `json:"auto_calculated" yaml:"auto_calculated"`
}

// TrailingStopConfig 描述移动止损参数（比例均相对于价格）。
type TrailingStopConfig struct {
	Enabled             bool    `json:"enabled" yaml:"enabled"`
	ActivationProfitPct float64 `json:"activation_profit_pct" yaml:"activation_profit_pct"`
	TrailDistancePct    float64 `json:"trail_distance_pct" yaml:"trail_distance_pct"`
	MinTrailDistancePct float64 `json:"min_trail_distance_pct" yaml:"min_trail_distance_pct"`
}

// State 是调用方在每次评估前构造的交易快照，核心逻辑只读不写。
type State struct {
	ID                       string              `json:"id" yaml:"id"`
	Side                     Side                `json:"side" yaml:"side"`
	EntryPrice               float64             `json:"entry_price" yaml:"entry_price"`
	Quantity                 float64             `json:"quantity" yaml:"quantity"`
	ExitedQuantity           float64             `json:"exited_quantity" yaml:"exited_quantity"`
	TPPct                    float64             `json:"tp_pct" yaml:"tp_pct"`
	SLPct                    float64             `json:"sl_pct" yaml:"sl_pct"`
	ExitStrategy             *ExitStrategy       `json:"exit_strategy,omitempty" yaml:"exit_strategy,omitempty"`
	TrailingStopConfig       *TrailingStopConfig `json:"trailing_stop_config,omitempty" yaml:"trailing_stop_config,omitempty"`
	CurrentTrailingStopPrice *float64            `json:"current_trailing_stop_price,omitempty" yaml:"current_trailing_stop_price,omitempty"`
	CurrentPrice             float64             `json:"current_price" yaml:"current_price"`
}

// ProfitPct 返回按方向计算的当前盈利比例（BUY: (cur-entry)/entry，SELL: (entry-cur)/entry）。
func (s State) ProfitPct() float64 {
	if s.EntryPrice <= 0 {
		return 0
	}
	change := decmath.RelativeChange(s.EntryPrice, s.CurrentPrice)
	if s.Side == SideSell {
		return -change
	}
	return change
}

// RemainingQuantity 返回尚未平仓的数量，不小于 0。
func (s State) RemainingQuantity() float64 {
	rem := s.Quantity - s.ExitedQuantity
	if rem < 0 {
		return 0
	}
	return rem
}

// RemainingFraction 返回剩余仓位占原始数量的比例，范围 [0,1]。
func (s State) RemainingFraction() float64 {
	if s.Quantity <= 0 {
		return 0
	}
	frac := 1 - decmath.Ratio(s.ExitedQuantity, s.Quantity)
	switch {
	case frac < 0:
		return 0
	case frac > 1:
		return 1
	}
	return frac
}

// ExitedFraction 返回已平仓比例。
func (s State) ExitedFraction() float64 {
	return 1 - s.RemainingFraction()
}

// HasTrailingStop 表示移动止损是否已经生效（已有止损价）。
func (s State) HasTrailingStop() bool {
	return s.CurrentTrailingStopPrice != nil && *s.CurrentTrailingStopPrice > 0
}

// TrailingEnabled 表示是否配置并启用了移动止损。
func (s State) TrailingEnabled() bool {
	return s.TrailingStopConfig != nil && s.TrailingStopConfig.Enabled
}
