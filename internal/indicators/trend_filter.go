// Package indicators contains the stateful, incremental calculators that
// feed the regime classifier. Every calculator advances on each bar even
// during warmup and reports an explicit not-ready value until its lookback
// is satisfied.
package indicators

import (
	"fmt"

	"github.com/akrotiri/helmsman/pkg/formulas"
)

// TrendFilterConfig parameterizes the adaptive trend estimator.
type TrendFilterConfig struct {
	ProcessNoise        float64 `json:"process_noise"`        // Kalman process noise (q), > 0
	MeasurementNoise    float64 `json:"measurement_noise"`    // base measurement noise (r), > 0
	OscillatorSmoothing int     `json:"oscillator_smoothing"` // first WMA pass window, >= 1
	StrengthSmoothing   int     `json:"strength_smoothing"`   // strength SMA pass window, >= 1
	Ceiling             float64 `json:"ceiling"`              // normalization ceiling, > 0
	SymmetricVolume     bool    `json:"symmetric_volume"`     // noise scales both ways with volume change
	DoubleSmoothing     bool    `json:"double_smoothing"`     // extra WMA pass with the strength window
}

// DefaultTrendFilterConfig returns the tuned defaults.
func DefaultTrendFilterConfig() TrendFilterConfig {
	return TrendFilterConfig{
		ProcessNoise:        0.05,
		MeasurementNoise:    1.0,
		OscillatorSmoothing: 5,
		StrengthSmoothing:   10,
		Ceiling:             8.0,
	}
}

// Validate rejects out-of-range parameters at construction time.
func (c TrendFilterConfig) Validate() error {
	if c.ProcessNoise <= 0 {
		return fmt.Errorf("trend filter process noise must be > 0, got %v", c.ProcessNoise)
	}
	if c.MeasurementNoise <= 0 {
		return fmt.Errorf("trend filter measurement noise must be > 0, got %v", c.MeasurementNoise)
	}
	if c.OscillatorSmoothing < 1 {
		return fmt.Errorf("trend filter oscillator smoothing must be >= 1, got %d", c.OscillatorSmoothing)
	}
	if c.StrengthSmoothing < 1 {
		return fmt.Errorf("trend filter strength smoothing must be >= 1, got %d", c.StrengthSmoothing)
	}
	if c.Ceiling <= 0 {
		return fmt.Errorf("trend filter ceiling must be > 0, got %v", c.Ceiling)
	}
	return nil
}

// MinBars returns the minimum number of bars before the filter is ready.
func (c TrendFilterConfig) MinBars() int {
	min := 1 + c.OscillatorSmoothing + c.StrengthSmoothing
	if c.DoubleSmoothing {
		min += c.StrengthSmoothing
	}
	return min
}

// TrendFilterState is the filter's serializable cross-bar memory.
type TrendFilterState struct {
	Estimate   float64   `msgpack:"estimate"`
	Covariance float64   `msgpack:"covariance"`
	PrevVolume float64   `msgpack:"prev_volume"`
	Seeded     bool      `msgpack:"seeded"`
	Oscillator []float64 `msgpack:"oscillator"` // raw estimator velocity
	DoubleBuf  []float64 `msgpack:"double_buf"` // intermediate series for the double-smoothing variant
	Smoothed   []float64 `msgpack:"smoothed"`   // after WMA pass(es)
}

// TrendFilter is an adaptive recursive price estimator. Each bar it runs a
// Kalman update whose measurement noise adapts to the bar's relative
// volume, takes the estimator's relative velocity as a raw oscillator, and
// smooths it through two cascaded moving averages (oscillator WMA, then
// strength SMA) before normalizing by the configured ceiling into [-1, +1].
type TrendFilter struct {
	cfg TrendFilterConfig
	st  TrendFilterState
}

// NewTrendFilter constructs a trend filter, failing on invalid config.
func NewTrendFilter(cfg TrendFilterConfig) (*TrendFilter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TrendFilter{cfg: cfg}, nil
}

// Update advances the filter with the bar's close and volume.
func (f *TrendFilter) Update(close, volume float64) {
	if !f.st.Seeded {
		f.st.Estimate = close
		f.st.Covariance = 1.0
		f.st.PrevVolume = volume
		f.st.Seeded = true
		return
	}

	r := f.adjustedNoise(volume)
	prevEstimate := f.st.Estimate

	// Standard scalar Kalman update.
	p := f.st.Covariance + f.cfg.ProcessNoise
	k := p / (p + r)
	f.st.Estimate = prevEstimate + k*(close-prevEstimate)
	f.st.Covariance = (1 - k) * p
	f.st.PrevVolume = volume

	// Raw oscillator: estimator velocity in per-mille of price, so the
	// ceiling is expressed in daily per-mille drift.
	raw := 0.0
	if prevEstimate != 0 {
		raw = (f.st.Estimate - prevEstimate) / prevEstimate * 1000
	}
	f.st.Oscillator = pushBounded(f.st.Oscillator, raw, f.cfg.OscillatorSmoothing+1)

	smoothed := formulas.WMA(f.st.Oscillator, f.cfg.OscillatorSmoothing)
	if smoothed == nil {
		return
	}
	value := *smoothed

	if f.cfg.DoubleSmoothing {
		// Experimental: a second WMA pass with the strength window,
		// applied on top of the oscillator-smoothed output.
		f.st.DoubleBuf = pushBounded(f.st.DoubleBuf, value, f.cfg.StrengthSmoothing+1)
		second := formulas.WMA(f.st.DoubleBuf, f.cfg.StrengthSmoothing)
		if second == nil {
			return
		}
		value = *second
	}

	f.st.Smoothed = pushBounded(f.st.Smoothed, value, f.cfg.StrengthSmoothing+1)
}

// adjustedNoise scales measurement noise by relative volume. By default the
// adjustment is one-directional: rising volume lowers the noise (the bar is
// trusted more) and falling volume leaves it unchanged. The symmetric
// variant scales both ways.
func (f *TrendFilter) adjustedNoise(volume float64) float64 {
	r := f.cfg.MeasurementNoise
	if f.st.PrevVolume <= 0 || volume <= 0 {
		return r
	}

	ratio := volume / f.st.PrevVolume
	if f.cfg.SymmetricVolume {
		return r / ratio
	}
	if ratio > 1 {
		return r / ratio
	}
	return r
}

// Strength returns the normalized trend score in [-1, +1], or ok=false
// while the filter is still warming up.
func (f *TrendFilter) Strength() (score float64, ok bool) {
	strength := formulas.SMA(f.st.Smoothed, f.cfg.StrengthSmoothing)
	if strength == nil {
		return 0, false
	}
	return formulas.Clamp(*strength/f.cfg.Ceiling, -1, 1), true
}

// Ready reports whether the smoothing cascade has enough history.
func (f *TrendFilter) Ready() bool {
	return len(f.st.Smoothed) >= f.cfg.StrengthSmoothing
}

// MinBars returns the warmup requirement for this instance.
func (f *TrendFilter) MinBars() int {
	return f.cfg.MinBars()
}

// State returns the serializable filter state for checkpointing.
func (f *TrendFilter) State() TrendFilterState {
	st := f.st
	st.Oscillator = append([]float64(nil), f.st.Oscillator...)
	st.DoubleBuf = append([]float64(nil), f.st.DoubleBuf...)
	st.Smoothed = append([]float64(nil), f.st.Smoothed...)
	return st
}

// Restore replaces the filter state from a checkpoint.
func (f *TrendFilter) Restore(st TrendFilterState) {
	f.st = st
	f.st.Oscillator = append([]float64(nil), st.Oscillator...)
	f.st.DoubleBuf = append([]float64(nil), st.DoubleBuf...)
	f.st.Smoothed = append([]float64(nil), st.Smoothed...)
}

// pushBounded appends v and drops the oldest entries beyond max.
func pushBounded(window []float64, v float64, max int) []float64 {
	window = append(window, v)
	if len(window) > max {
		window = window[len(window)-max:]
	}
	return window
}
