// Package decmath 提供基于 decimal 的价格/比例比较，避免 float64 累积误差影响触发判断。
package decmath

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	one  = decimal.NewFromInt(1)
	eps  = decimal.NewFromFloat(1e-9)
	zero = decimal.Zero
)

// FromFloat 将 float64 转为 decimal，NaN/Inf 视为 0。
func FromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return zero
	}
	return decimal.NewFromFloat(val)
}

func ToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func Compare(a, b float64) int {
	return FromFloat(a).Cmp(FromFloat(b))
}

func LTE(a, b float64) bool { return Compare(a, b) <= 0 }
func GTE(a, b float64) bool { return Compare(a, b) >= 0 }
func LT(a, b float64) bool  { return Compare(a, b) < 0 }
func GT(a, b float64) bool  { return Compare(a, b) > 0 }

// GTEApprox 在 1e-9 容差内判断 a >= b，用于比例类数值（成交比例、剩余比例）。
func GTEApprox(a, b float64) bool {
	return FromFloat(a).Add(eps).Cmp(FromFloat(b)) >= 0
}

// Scale 返回 base*(1+pct)。
func Scale(base, pct float64) float64 {
	return ToFloat(FromFloat(base).Mul(one.Add(FromFloat(pct))))
}

// RelativeChange 返回 (to-from)/from，全程按 decimal 计算；from 为 0 时返回 0。
func RelativeChange(from, to float64) float64 {
	base := FromFloat(from)
	if base.IsZero() {
		return 0
	}
	return ToFloat(FromFloat(to).Sub(base).Div(base))
}

// Ratio 返回 num/den，den 为 0 时返回 0。
func Ratio(num, den float64) float64 {
	d := FromFloat(den)
	if d.IsZero() {
		return 0
	}
	return ToFloat(FromFloat(num).Div(d))
}
