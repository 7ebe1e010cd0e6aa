// Package risk 计算风险预算下的仓位上限与建议仓位。
package risk

import (
	"errors"
	"fmt"
	"math"
)

// ErrLeverageExceeded 在合约仓位计算时杠杆越界（<=0 或超过 MaxLeverage）返回。
var ErrLeverageExceeded = errors.New("leverage exceeds risk limits")

const defaultStopLossPercent = 0.02

// Config 是不可变的风控策略，由调用方按模拟/监控实例提供。
type Config struct {
	MaxLeverage     float64 `json:"max_leverage" toml:"max_leverage"`
	MaxRiskPerTrade float64 `json:"max_risk_per_trade" toml:"max_risk_per_trade"` // 单笔可承受亏损占余额比例 0~1
	MaxPositionSize float64 `json:"max_position_size" toml:"max_position_size"`   // 单笔仓位占余额比例 0~1
	MinOrderSize    float64 `json:"min_order_size" toml:"min_order_size"`
	MaxOrderSize    float64 `json:"max_order_size" toml:"max_order_size"`
}

// DefaultConfig 为未提供风控策略时使用的基线。
func DefaultConfig() Config {
	return Config{
		MaxLeverage:     10,
		MaxRiskPerTrade: 0.02,
		MaxPositionSize: 0.1,
		MinOrderSize:    0.001,
		MaxOrderSize:    1000,
	}
}

// Validate 校验策略本身的取值范围。
func (c Config) Validate() error {
	if c.MaxLeverage <= 0 {
		return fmt.Errorf("max_leverage must be > 0")
	}
	if c.MaxRiskPerTrade < 0 || c.MaxRiskPerTrade > 1 {
		return fmt.Errorf("max_risk_per_trade must be within [0,1]")
	}
	if c.MaxPositionSize < 0 || c.MaxPositionSize > 1 {
		return fmt.Errorf("max_position_size must be within [0,1]")
	}
	if c.MinOrderSize < 0 || c.MaxOrderSize < c.MinOrderSize {
		return fmt.Errorf("order size bounds invalid: min=%g max=%g", c.MinOrderSize, c.MaxOrderSize)
	}
	return nil
}

// SizingRequest 为仓位计算入参。Leverage/StopLossPercent 为 0 时取默认值 1 / 0.02。
type SizingRequest struct {
	Balance         float64
	Price           float64
	Config          Config
	Leverage        float64
	StopLossPercent float64
}

// SizingResult 为一次仓位计算的结果，不做缓存。
type SizingResult struct {
	MaxQuantity         float64 `json:"max_quantity"`
	MaxNotional         float64 `json:"max_notional"`
	RecommendedQuantity float64 `json:"recommended_quantity"`
	RecommendedNotional float64 `json:"recommended_notional"`
	LeverageUsed        float64 `json:"leverage_used"`
	RiskAmount          float64 `json:"risk_amount"`
}

// MaxPositionSize 计算硬上限与风险调整后的建议仓位。
// Price 必须 > 0，由调用方保证。
func MaxPositionSize(req SizingRequest) SizingResult {
	leverage := req.Leverage
	if leverage == 0 {
		leverage = 1
	}
	stopLoss := req.StopLossPercent
	if stopLoss == 0 {
		stopLoss = defaultStopLossPercent
	}
	cfg := req.Config

	maxNotional := math.Min(req.Balance*cfg.MaxPositionSize, req.Balance*leverage)
	maxQuantity := maxNotional / req.Price
	riskAmount := maxNotional * stopLoss

	adjustment := 1.0
	if riskAmount > 0 {
		adjustment = math.Min(1, (req.Balance*cfg.MaxRiskPerTrade)/riskAmount)
	}
	recommendedNotional := maxNotional * adjustment
	recommendedQuantity := clamp(recommendedNotional/req.Price, cfg.MinOrderSize, cfg.MaxOrderSize)

	return SizingResult{
		MaxQuantity:         maxQuantity,
		MaxNotional:         maxNotional,
		RecommendedQuantity: recommendedQuantity,
		RecommendedNotional: recommendedNotional,
		LeverageUsed:        leverage,
		RiskAmount:          riskAmount,
	}
}

// SpotPositionSize 固定 1 倍杠杆。
func SpotPositionSize(balance, price float64, cfg Config, stopLossPercent float64) SizingResult {
	return MaxPositionSize(SizingRequest{
		Balance:         balance,
		Price:           price,
		Config:          cfg,
		Leverage:        1,
		StopLossPercent: stopLossPercent,
	})
}

// FuturesPositionSize 使用显式杠杆，杠杆越界时返回 ErrLeverageExceeded。
func FuturesPositionSize(balance, price, leverage float64, cfg Config, stopLossPercent float64) (SizingResult, error) {
	if !ValidateLeverage(leverage, cfg) {
		return SizingResult{}, fmt.Errorf("%w: leverage=%g max=%g", ErrLeverageExceeded, leverage, cfg.MaxLeverage)
	}
	return MaxPositionSize(SizingRequest{
		Balance:         balance,
		Price:           price,
		Config:          cfg,
		Leverage:        leverage,
		StopLossPercent: stopLossPercent,
	}), nil
}

// ValidateLeverage 当且仅当 0 < leverage <= MaxLeverage 时为 true。
func ValidateLeverage(leverage float64, cfg Config) bool {
	return leverage > 0 && leverage <= cfg.MaxLeverage
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
