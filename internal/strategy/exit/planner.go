// Package exit 根据止盈比例生成分批止盈计划，并基于交易快照查询下一档位与对应数量。
package exit

import (
	"fmt"
	"strings"

	"exitpilot/internal/pkg/decmath"
	"exitpilot/internal/trade"
)

const (
	minLevels          = 2
	maxLevels          = 5
	firstLevelFraction = 0.3
	highVolatility     = 0.05
	lowVolatility      = 0.01
	executedTolerance  = 1e-9
)

// CalculateExitStrategy 按 tpPct 生成等权分批止盈计划。
func CalculateExitStrategy(tpPct float64) trade.ExitStrategy {
	return buildPlan(tpPct, levelCount(tpPct))
}

// CalculateExitStrategyWithVolatility 在 CalculateExitStrategy 基础上按波动率 ±1 调整档位数，范围 [2,5]。
func CalculateExitStrategyWithVolatility(tpPct, volatility float64) trade.ExitStrategy {
	n := levelCount(tpPct)
	switch {
	case volatility > highVolatility:
		n--
	case volatility < lowVolatility:
		n++
	}
	if n < minLevels {
		n = minLevels
	}
	if n > maxLevels {
		n = maxLevels
	}
	return buildPlan(tpPct, n)
}

func levelCount(tpPct float64) int {
	switch {
	case tpPct < 0.02:
		return 2
	case tpPct < 0.05:
		return 3
	default:
		return 4
	}
}

func buildPlan(tpPct float64, n int) trade.ExitStrategy {
	levels := make([]trade.ExitLevel, n)
	first := tpPct * firstLevelFraction
	step := (tpPct - first) / float64(n-1)
	weight := 1 / float64(n)
	allocated := 0.0
	for i := 0; i < n; i++ {
		lvl := trade.ExitLevel{
			ProfitPct:   first + step*float64(i),
			QuantityPct: weight,
		}
		if i == n-1 {
			// 末档吸收舍入误差：盈利目标精确等于 tpPct，数量补齐到 1
			lvl.ProfitPct = tpPct
			lvl.QuantityPct = 1 - allocated
		}
		allocated += lvl.QuantityPct
		levels[i] = lvl
	}
	return trade.ExitStrategy{Levels: levels, AutoCalculated: true}
}

// NextExitLevel 返回计划中第一个盈利目标高于当前盈利、且数量比例不超过剩余仓位比例的档位。
func NextExitLevel(s trade.State) (trade.ExitLevel, bool) {
	if s.ExitStrategy == nil {
		return trade.ExitLevel{}, false
	}
	profit := s.ProfitPct()
	remaining := s.RemainingFraction()
	for _, lvl := range s.ExitStrategy.Levels {
		if decmath.GT(lvl.ProfitPct, profit) && decmath.GTEApprox(remaining, lvl.QuantityPct) {
			return lvl, true
		}
	}
	return trade.ExitLevel{}, false
}

// PendingExitLevel 返回第一个尚未执行的档位及其下标。
// 第 i 档视为已执行：已平仓比例 >= 1 - Π(1 - quantityPct_j), j<=i。
func PendingExitLevel(s trade.State) (int, trade.ExitLevel, bool) {
	if s.ExitStrategy == nil {
		return -1, trade.ExitLevel{}, false
	}
	exited := s.ExitedFraction()
	keep := 1.0
	for i, lvl := range s.ExitStrategy.Levels {
		keep *= 1 - lvl.QuantityPct
		if exited+executedTolerance >= 1-keep {
			continue
		}
		return i, lvl, true
	}
	return -1, trade.ExitLevel{}, false
}

// ShouldExecutePartialExit 当前盈利达到档位目标且剩余比例足够时为 true。
func ShouldExecutePartialExit(s trade.State, level trade.ExitLevel) bool {
	return decmath.GTE(s.ProfitPct(), level.ProfitPct) && decmath.GTEApprox(s.RemainingFraction(), level.QuantityPct)
}

// ExitQuantity 返回该档位应平仓的数量，不超过剩余数量。
func ExitQuantity(s trade.State, level trade.ExitLevel) float64 {
	remaining := s.RemainingQuantity()
	qty := remaining * level.QuantityPct
	if qty > remaining {
		return remaining
	}
	if qty < 0 {
		return 0
	}
	return qty
}

// Describe 输出计划的单行摘要，例如 "auto 3 levels: 1.20%x33.3% | 2.60%x33.3% | 4.00%x33.3%"。
func Describe(plan *trade.ExitStrategy) string {
	if plan == nil || len(plan.Levels) == 0 {
		return "no exit plan"
	}
	parts := make([]string, 0, len(plan.Levels))
	for _, lvl := range plan.Levels {
		parts = append(parts, fmt.Sprintf("%.2f%%x%.1f%%", lvl.ProfitPct*100, lvl.QuantityPct*100))
	}
	mode := "manual"
	if plan.AutoCalculated {
		mode = "auto"
	}
	return fmt.Sprintf("%s %d levels: %s", mode, len(plan.Levels), strings.Join(parts, " | "))
}
