package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedAlternating produces a return stream with the given daily amplitude.
func feedAlternating(d *VolRegimeDetector, bars int, amplitude float64, start float64) float64 {
	price := start
	for i := 0; i < bars; i++ {
		if i%2 == 0 {
			price *= 1 + amplitude
		} else {
			price *= 1 - amplitude
		}
		d.Update(price)
	}
	return price
}

func TestVolRegimeConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultVolRegimeConfig().Validate())
	assert.Error(t, VolRegimeConfig{ShortWindow: 1, BaselineWindow: 100}.Validate())
	assert.Error(t, VolRegimeConfig{ShortWindow: 20, BaselineWindow: 20}.Validate())
}

func TestVolRegimeNotReadyUntilBaselineFills(t *testing.T) {
	cfg := VolRegimeConfig{ShortWindow: 5, BaselineWindow: 20}
	d, err := NewVolRegimeDetector(cfg)
	require.NoError(t, err)

	for i := 0; i < cfg.MinBars()-1; i++ {
		_, _, ok := d.ZScore()
		assert.False(t, ok, "z-score appeared at bar %d", i)
		d.Update(100 + float64(i%3))
	}

	d.Update(101)
	_, _, ok := d.ZScore()
	assert.True(t, ok)
}

func TestVolRegimeSpikeRaisesZScore(t *testing.T) {
	cfg := VolRegimeConfig{ShortWindow: 5, BaselineWindow: 30}
	d, err := NewVolRegimeDetector(cfg)
	require.NoError(t, err)

	// Long calm stretch, then the daily range triples.
	price := feedAlternating(d, 60, 0.002, 100)
	zBefore, valid, ok := d.ZScore()
	require.True(t, ok)
	require.True(t, valid)

	feedAlternating(d, 10, 0.006, price)
	zAfter, valid, ok := d.ZScore()
	require.True(t, ok)
	require.True(t, valid)

	assert.Greater(t, zAfter, zBefore)
	assert.Greater(t, zAfter, 1.0)
}

func TestVolRegimeZeroVarianceBaselineIsNoSignal(t *testing.T) {
	cfg := VolRegimeConfig{ShortWindow: 5, BaselineWindow: 20}
	d, err := NewVolRegimeDetector(cfg)
	require.NoError(t, err)

	// Perfectly constant returns: realized vol is identically zero, so
	// the baseline has zero variance.
	price := 100.0
	for i := 0; i < cfg.MinBars()+10; i++ {
		price *= 1.001
		d.Update(price)
	}

	_, valid, ok := d.ZScore()
	require.True(t, ok)
	assert.False(t, valid)
}

func TestVolRegimeRealizedVolReading(t *testing.T) {
	cfg := VolRegimeConfig{ShortWindow: 5, BaselineWindow: 20}
	d, err := NewVolRegimeDetector(cfg)
	require.NoError(t, err)

	_, ok := d.RealizedVol()
	assert.False(t, ok)

	feedAlternating(d, 10, 0.01, 100)
	rv, ok := d.RealizedVol()
	require.True(t, ok)
	assert.Greater(t, rv, 0.0)
}

func TestVolShockDetector(t *testing.T) {
	d, err := NewVolShockDetector(VolShockConfig{DropThreshold: 0.15, Lookback: 5})
	require.NoError(t, err)

	// Not ready until lookback+1 readings.
	for i := 0; i < 5; i++ {
		d.Observe(0.30)
		_, ok := d.Shocked()
		assert.False(t, ok)
	}
	d.Observe(0.30)
	shocked, ok := d.Shocked()
	require.True(t, ok)
	assert.False(t, shocked)

	// A 20% collapse within the window fires the override.
	for _, rv := range []float64{0.29, 0.28, 0.26, 0.25, 0.24} {
		d.Observe(rv)
	}
	shocked, ok = d.Shocked()
	require.True(t, ok)
	assert.True(t, shocked)

	// A mild drift below threshold does not.
	d2, err := NewVolShockDetector(VolShockConfig{DropThreshold: 0.15, Lookback: 5})
	require.NoError(t, err)
	for _, rv := range []float64{0.30, 0.30, 0.29, 0.29, 0.28, 0.28} {
		d2.Observe(rv)
	}
	shocked, ok = d2.Shocked()
	require.True(t, ok)
	assert.False(t, shocked)
}

func TestVolShockConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultVolShockConfig().Validate())
	assert.Error(t, VolShockConfig{DropThreshold: 0, Lookback: 5}.Validate())
	assert.Error(t, VolShockConfig{DropThreshold: 1.5, Lookback: 5}.Validate())
	assert.Error(t, VolShockConfig{DropThreshold: 0.15, Lookback: 0}.Validate())
}
