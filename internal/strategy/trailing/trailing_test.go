package trailing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exitpilot/internal/trade"
)

func baseConfig() trade.TrailingStopConfig {
	return trade.TrailingStopConfig{
		Enabled:             true,
		ActivationProfitPct: 0.02,
		TrailDistancePct:    0.03,
		MinTrailDistancePct: 0.01,
	}
}

func longState(price float64, stop *float64) trade.State {
	cfg := baseConfig()
	return trade.State{
		ID:                       "t",
		Side:                     trade.SideBuy,
		EntryPrice:               100,
		Quantity:                 1,
		TrailingStopConfig:       &cfg,
		CurrentTrailingStopPrice: stop,
		CurrentPrice:             price,
	}
}

func ptr(v float64) *float64 { return &v }

func TestCalculateTrailingStop_NotActive(t *testing.T) {
	_, ok := CalculateTrailingStop(longState(101, nil), baseConfig())
	assert.False(t, ok)

	cfg := baseConfig()
	cfg.Enabled = false
	_, ok = CalculateTrailingStop(longState(110, nil), cfg)
	assert.False(t, ok)
}

func TestCalculateTrailingStop_Long(t *testing.T) {
	stop, ok := CalculateTrailingStop(longState(110, nil), baseConfig())
	require.True(t, ok)
	// max(110*0.97, 110*0.99): never looser than the minimum distance
	assert.InDelta(t, 108.9, stop, 1e-9)
}

func TestCalculateTrailingStop_ActivationOnFractionalEntry(t *testing.T) {
	s := longState(0.102, nil)
	s.EntryPrice = 0.1
	stop, ok := CalculateTrailingStop(s, baseConfig())
	require.True(t, ok)
	assert.InDelta(t, 0.10098, stop, 1e-12)
	assert.True(t, ShouldUpdateTrailingStop(s, stop))
}

func TestCalculateTrailingStop_Short(t *testing.T) {
	s := longState(90, nil)
	s.Side = trade.SideSell
	stop, ok := CalculateTrailingStop(s, baseConfig())
	require.True(t, ok)
	// min(90*1.03, 90*1.01)
	assert.InDelta(t, 90.9, stop, 1e-9)
	assert.Greater(t, stop, s.CurrentPrice)
}

func TestShouldUpdateTrailingStop(t *testing.T) {
	assert.True(t, ShouldUpdateTrailingStop(longState(105, nil), 103))
	assert.False(t, ShouldUpdateTrailingStop(longState(101, nil), 99))

	s := longState(105, ptr(103))
	assert.True(t, ShouldUpdateTrailingStop(s, 103.5))
	assert.False(t, ShouldUpdateTrailingStop(s, 103))
	assert.False(t, ShouldUpdateTrailingStop(s, 102))

	short := longState(95, ptr(97))
	short.Side = trade.SideSell
	assert.True(t, ShouldUpdateTrailingStop(short, 96))
	assert.False(t, ShouldUpdateTrailingStop(short, 97.5))

	disabled := longState(105, nil)
	disabled.TrailingStopConfig.Enabled = false
	assert.False(t, ShouldUpdateTrailingStop(disabled, 104))
}

func TestTrailingMonotonicLong(t *testing.T) {
	prices := []float64{103, 104, 102, 106, 105, 108, 107.5, 111, 109}
	var stop *float64
	var accepted []float64
	for _, p := range prices {
		s := longState(p, stop)
		candidate, ok := CalculateTrailingStop(s, *s.TrailingStopConfig)
		if !ok || !ShouldUpdateTrailingStop(s, candidate) {
			continue
		}
		accepted = append(accepted, candidate)
		stop = ptr(candidate)
	}
	require.NotEmpty(t, accepted)
	for i := 1; i < len(accepted); i++ {
		assert.Greater(t, accepted[i], accepted[i-1])
	}
}

func TestShouldTriggerTrailingStop(t *testing.T) {
	assert.False(t, ShouldTriggerTrailingStop(longState(90, nil)))
	assert.True(t, ShouldTriggerTrailingStop(longState(103, ptr(103))))
	assert.True(t, ShouldTriggerTrailingStop(longState(102, ptr(103))))
	assert.False(t, ShouldTriggerTrailingStop(longState(104, ptr(103))))

	short := longState(97, ptr(97))
	short.Side = trade.SideSell
	assert.True(t, ShouldTriggerTrailingStop(short))
	short.CurrentPrice = 96
	assert.False(t, ShouldTriggerTrailingStop(short))
}

func TestReconfigureTrailingStop(t *testing.T) {
	cfg := baseConfig()

	assert.Equal(t, cfg, ReconfigureTrailingStop(cfg, 0.02, nil))
	assert.Equal(t, cfg, ReconfigureTrailingStop(cfg, 0.014, ptr(0.01)))

	wider := ReconfigureTrailingStop(cfg, 0.02, ptr(0.01))
	assert.InDelta(t, 0.045, wider.TrailDistancePct, 1e-12)

	tighter := ReconfigureTrailingStop(cfg, 0.004, ptr(0.01))
	assert.InDelta(t, 0.0225, tighter.TrailDistancePct, 1e-12)

	cfg.TrailDistancePct = 0.012
	floored := ReconfigureTrailingStop(cfg, 0.001, ptr(0.01))
	assert.Equal(t, 0.01, floored.TrailDistancePct)
}

func TestConfigFromATR(t *testing.T) {
	cfg, err := ConfigFromATR(ATRParams{ATR: 2, EntryPrice: 100, TriggerMultiplier: 2, TrailMultiplier: 1, MinTrailDistancePct: 0.005})
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
	assert.InDelta(t, 0.04, cfg.ActivationProfitPct, 1e-12)
	assert.InDelta(t, 0.02, cfg.TrailDistancePct, 1e-12)

	floored, err := ConfigFromATR(ATRParams{ATR: 0.1, EntryPrice: 100, TriggerMultiplier: 2, TrailMultiplier: 1, MinTrailDistancePct: 0.005})
	require.NoError(t, err)
	assert.Equal(t, 0.005, floored.TrailDistancePct)

	_, err = ConfigFromATR(ATRParams{ATR: 0, EntryPrice: 100, TriggerMultiplier: 2, TrailMultiplier: 1})
	assert.Error(t, err)
	_, err = ConfigFromATR(ATRParams{ATR: 1, EntryPrice: 100, TriggerMultiplier: 6, TrailMultiplier: 1})
	assert.Error(t, err)
	_, err = ConfigFromATR(ATRParams{ATR: 1, EntryPrice: 100, TriggerMultiplier: 2, TrailMultiplier: 2})
	assert.Error(t, err)
}
