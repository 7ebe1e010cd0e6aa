package market

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Candle 为单根 K 线，Timestamp 为开盘时间（Unix ms）。
type Candle struct {
	Symbol    string  `json:"symbol,omitempty"`
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type Candles []Candle

func (c Candle) TimeString() string {
	if c.Timestamp <= 0 {
		return "-"
	}
	return time.UnixMilli(c.Timestamp).UTC().Format("2006-01-02 15:04") + "Z"
}

// Closes 返回收盘价序列，供指标计算使用。
func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

func (cs Candles) Highs() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.High
	}
	return out
}

func (cs Candles) Lows() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Low
	}
	return out
}

// WithSymbol 为缺少交易对的 K 线补齐 symbol。
func (cs Candles) WithSymbol(symbol string) Candles {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	out := make(Candles, len(cs))
	for i, c := range cs {
		if c.Symbol == "" {
			c.Symbol = symbol
		}
		out[i] = c
	}
	return out
}

// Normalize 按时间排序并去除重复时间戳，后出现的覆盖先出现的。
func (cs Candles) Normalize() Candles {
	if len(cs) == 0 {
		return cs
	}
	byTS := make(map[int64]Candle, len(cs))
	for _, c := range cs {
		byTS[c.Timestamp] = c
	}
	out := make(Candles, 0, len(byTS))
	for _, c := range byTS {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// Validate 检查时间严格递增且价格非负。
func (cs Candles) Validate() error {
	for i, c := range cs {
		if c.Close < 0 || c.Open < 0 || c.High < 0 || c.Low < 0 {
			return fmt.Errorf("candle #%d has negative price", i)
		}
		if i > 0 && c.Timestamp <= cs[i-1].Timestamp {
			return fmt.Errorf("candle #%d timestamp %d not after %d", i, c.Timestamp, cs[i-1].Timestamp)
		}
	}
	return nil
}
