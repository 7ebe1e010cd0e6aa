package risk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10.0, cfg.MaxLeverage)
	assert.Equal(t, 0.02, cfg.MaxRiskPerTrade)
	assert.Equal(t, 0.1, cfg.MaxPositionSize)
	assert.Equal(t, 0.001, cfg.MinOrderSize)
	assert.Equal(t, 1000.0, cfg.MaxOrderSize)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLeverage = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxRiskPerTrade = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxOrderSize = 0.0001
	assert.Error(t, cfg.Validate())
}

func TestMaxPositionSize_Defaults(t *testing.T) {
	res := MaxPositionSize(SizingRequest{Balance: 10000, Price: 100, Config: DefaultConfig()})

	assert.Equal(t, 1000.0, res.MaxNotional)
	assert.Equal(t, 10.0, res.MaxQuantity)
	assert.Equal(t, 1.0, res.LeverageUsed)
	assert.InDelta(t, 20.0, res.RiskAmount, 1e-9)
	// risk budget 200 > risk amount 20, no scaling
	assert.InDelta(t, 1000.0, res.RecommendedNotional, 1e-9)
	assert.InDelta(t, 10.0, res.RecommendedQuantity, 1e-9)
}

func TestMaxPositionSize_RiskScaling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionSize = 1
	cfg.MaxRiskPerTrade = 0.01
	res := MaxPositionSize(SizingRequest{Balance: 1000, Price: 10, Config: cfg, Leverage: 1, StopLossPercent: 0.05})

	// max notional 1000, risk 50, budget 10 => scale 0.2
	assert.Equal(t, 1000.0, res.MaxNotional)
	assert.InDelta(t, 50.0, res.RiskAmount, 1e-9)
	assert.InDelta(t, 200.0, res.RecommendedNotional, 1e-9)
	assert.InDelta(t, 20.0, res.RecommendedQuantity, 1e-9)
}

func TestMaxPositionSize_ClampsOrderSize(t *testing.T) {
	small := MaxPositionSize(SizingRequest{Balance: 10, Price: 50000, Config: DefaultConfig()})
	assert.Equal(t, 0.001, small.RecommendedQuantity)
	assert.LessOrEqual(t, small.RecommendedNotional, small.MaxNotional)

	cfg := DefaultConfig()
	cfg.MaxOrderSize = 5
	big := MaxPositionSize(SizingRequest{Balance: 1_000_000, Price: 1, Config: cfg})
	assert.Equal(t, 5.0, big.RecommendedQuantity)
}

func TestMaxPositionSize_Bounds(t *testing.T) {
	cfg := DefaultConfig()
	balances := []float64{1, 10, 500, 12345.67, 1e7}
	prices := []float64{0.0001, 0.5, 100, 65000}
	leverages := []float64{1, 3, 10}
	for _, b := range balances {
		for _, p := range prices {
			for _, lev := range leverages {
				res := MaxPositionSize(SizingRequest{Balance: b, Price: p, Config: cfg, Leverage: lev})
				assert.LessOrEqual(t, res.RecommendedNotional, res.MaxNotional+1e-9)
				assert.GreaterOrEqual(t, res.RecommendedQuantity, cfg.MinOrderSize)
				assert.LessOrEqual(t, res.RecommendedQuantity, cfg.MaxOrderSize)
			}
		}
	}
}

func TestSpotPositionSize(t *testing.T) {
	res := SpotPositionSize(10000, 100, DefaultConfig(), 0)
	assert.Equal(t, 1.0, res.LeverageUsed)
	assert.Equal(t, 1000.0, res.MaxNotional)
}

func TestFuturesPositionSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionSize = 1

	res, err := FuturesPositionSize(1000, 100, 5, cfg, 0.02)
	require.NoError(t, err)
	assert.Equal(t, 5.0, res.LeverageUsed)
	// min(1000*1, 1000*5)
	assert.Equal(t, 1000.0, res.MaxNotional)

	for _, lev := range []float64{0, -1, 10.5, 50} {
		_, err := FuturesPositionSize(1000, 100, lev, cfg, 0.02)
		require.Error(t, err, "leverage %v", lev)
		assert.True(t, errors.Is(err, ErrLeverageExceeded))
	}

	_, err = FuturesPositionSize(1000, 100, 10, cfg, 0.02)
	assert.NoError(t, err)
}

func TestValidateLeverage(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, ValidateLeverage(1, cfg))
	assert.True(t, ValidateLeverage(10, cfg))
	assert.False(t, ValidateLeverage(0, cfg))
	assert.False(t, ValidateLeverage(-2, cfg))
	assert.False(t, ValidateLeverage(11, cfg))
}
