package indicators

import (
	"fmt"

	"github.com/akrotiri/helmsman/pkg/formulas"
)

// VolRegimeConfig parameterizes the realized-volatility z-score detector.
type VolRegimeConfig struct {
	ShortWindow    int `json:"short_window"`    // realized vol window (bars of returns)
	BaselineWindow int `json:"baseline_window"` // rolling mean/std baseline over realized vol
}

// DefaultVolRegimeConfig returns the tuned defaults (20-bar realized vol
// against a one-year baseline).
func DefaultVolRegimeConfig() VolRegimeConfig {
	return VolRegimeConfig{ShortWindow: 20, BaselineWindow: 252}
}

// Validate rejects inconsistent window sizes.
func (c VolRegimeConfig) Validate() error {
	if c.ShortWindow < 2 {
		return fmt.Errorf("vol regime short window must be >= 2, got %d", c.ShortWindow)
	}
	if c.BaselineWindow <= c.ShortWindow {
		return fmt.Errorf("vol regime baseline window %d must exceed short window %d", c.BaselineWindow, c.ShortWindow)
	}
	return nil
}

// MinBars returns the warmup requirement: enough closes for the first
// realized-vol reading, then a full baseline of readings.
func (c VolRegimeConfig) MinBars() int {
	return c.ShortWindow + 1 + c.BaselineWindow
}

// VolRegimeState is the detector's serializable memory.
type VolRegimeState struct {
	Closes      []float64 `msgpack:"closes"`       // short return window source
	RealizedVol []float64 `msgpack:"realized_vol"` // rolling realized-vol history
}

// VolRegimeDetector computes annualized realized volatility over a short
// window and standardizes it against a rolling baseline of its own history.
// The resulting z-score feeds the hysteresis state machine in the regime
// classifier; this detector itself carries no Low/High memory.
type VolRegimeDetector struct {
	cfg VolRegimeConfig
	st  VolRegimeState
}

// NewVolRegimeDetector constructs the detector, failing on invalid config.
func NewVolRegimeDetector(cfg VolRegimeConfig) (*VolRegimeDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &VolRegimeDetector{cfg: cfg}, nil
}

// Update advances the detector with a closing price.
func (d *VolRegimeDetector) Update(close float64) {
	d.st.Closes = pushBounded(d.st.Closes, close, d.cfg.ShortWindow+1)

	if len(d.st.Closes) < d.cfg.ShortWindow+1 {
		return
	}
	rv := formulas.RealizedVolatility(formulas.Returns(d.st.Closes))
	d.st.RealizedVol = pushBounded(d.st.RealizedVol, rv, d.cfg.BaselineWindow+1)
}

// RealizedVol returns the latest annualized realized volatility, or
// ok=false before the short window has filled.
func (d *VolRegimeDetector) RealizedVol() (rv float64, ok bool) {
	if len(d.st.RealizedVol) == 0 {
		return 0, false
	}
	return d.st.RealizedVol[len(d.st.RealizedVol)-1], true
}

// ZScore standardizes the current realized vol against the rolling
// baseline of prior readings (the current reading is excluded from the
// baseline). valid=false signals a zero-variance baseline: no signal, the
// caller holds its previous volatility state. ok=false means the baseline
// has not filled yet.
func (d *VolRegimeDetector) ZScore() (z float64, valid bool, ok bool) {
	if !d.Ready() {
		return 0, false, false
	}

	current := d.st.RealizedVol[len(d.st.RealizedVol)-1]
	baseline := d.st.RealizedVol[:len(d.st.RealizedVol)-1]
	if len(baseline) > d.cfg.BaselineWindow {
		baseline = baseline[len(baseline)-d.cfg.BaselineWindow:]
	}

	z, valid = formulas.ZScore(current, baseline)
	return z, valid, true
}

// Ready reports whether a full baseline of realized-vol readings exists.
func (d *VolRegimeDetector) Ready() bool {
	return len(d.st.RealizedVol) >= d.cfg.BaselineWindow+1
}

// MinBars returns the warmup requirement for this instance.
func (d *VolRegimeDetector) MinBars() int {
	return d.cfg.MinBars()
}

// State returns the serializable detector state.
func (d *VolRegimeDetector) State() VolRegimeState {
	return VolRegimeState{
		Closes:      append([]float64(nil), d.st.Closes...),
		RealizedVol: append([]float64(nil), d.st.RealizedVol...),
	}
}

// Restore replaces the detector state from a checkpoint.
func (d *VolRegimeDetector) Restore(st VolRegimeState) {
	d.st.Closes = append([]float64(nil), st.Closes...)
	d.st.RealizedVol = append([]float64(nil), st.RealizedVol...)
}
