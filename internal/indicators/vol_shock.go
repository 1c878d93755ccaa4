package indicators

import "fmt"

// VolShockConfig parameterizes the volatility-shock override.
type VolShockConfig struct {
	DropThreshold float64 `json:"drop_threshold"` // relative collapse to trigger, e.g. 0.15
	Lookback      int     `json:"lookback"`       // bars between the two readings
}

// DefaultVolShockConfig returns the tuned defaults (15% collapse in 5 bars).
func DefaultVolShockConfig() VolShockConfig {
	return VolShockConfig{DropThreshold: 0.15, Lookback: 5}
}

// Validate rejects out-of-range parameters.
func (c VolShockConfig) Validate() error {
	if c.DropThreshold <= 0 || c.DropThreshold >= 1 {
		return fmt.Errorf("vol shock drop threshold must be in (0,1), got %v", c.DropThreshold)
	}
	if c.Lookback < 1 {
		return fmt.Errorf("vol shock lookback must be >= 1, got %d", c.Lookback)
	}
	return nil
}

// VolShockState is the override's serializable memory.
type VolShockState struct {
	RealizedVol []float64 `msgpack:"realized_vol"`
}

// VolShockDetector flags rapid realized-volatility collapses (vol-crush).
// It observes the same realized-vol readings the regime detector produces
// and fires when the relative drop over the lookback window exceeds the
// threshold. A firing shock forces the volatility state to Low for the bar
// and demotes a BearStrong trend to Sideways, which captures V-shaped
// recoveries before the z-score baseline catches up.
type VolShockDetector struct {
	cfg VolShockConfig
	st  VolShockState
}

// NewVolShockDetector constructs the detector, failing on invalid config.
func NewVolShockDetector(cfg VolShockConfig) (*VolShockDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &VolShockDetector{cfg: cfg}, nil
}

// Observe records the bar's realized-volatility reading.
func (d *VolShockDetector) Observe(realizedVol float64) {
	d.st.RealizedVol = pushBounded(d.st.RealizedVol, realizedVol, d.cfg.Lookback+1)
}

// Shocked reports whether realized vol collapsed by more than the
// threshold within the lookback window. ok=false until enough readings
// have been observed.
func (d *VolShockDetector) Shocked() (shocked bool, ok bool) {
	if !d.Ready() {
		return false, false
	}

	prior := d.st.RealizedVol[0]
	current := d.st.RealizedVol[len(d.st.RealizedVol)-1]
	if prior <= 0 {
		return false, true
	}

	change := (current - prior) / prior
	return change <= -d.cfg.DropThreshold, true
}

// Ready reports whether the lookback window has filled.
func (d *VolShockDetector) Ready() bool {
	return len(d.st.RealizedVol) >= d.cfg.Lookback+1
}

// MinBars returns the additional bars of realized-vol readings required.
func (d *VolShockDetector) MinBars() int {
	return d.cfg.Lookback + 1
}

// State returns the serializable detector state.
func (d *VolShockDetector) State() VolShockState {
	return VolShockState{RealizedVol: append([]float64(nil), d.st.RealizedVol...)}
}

// Restore replaces the detector state from a checkpoint.
func (d *VolShockDetector) Restore(st VolShockState) {
	d.st.RealizedVol = append([]float64(nil), st.RealizedVol...)
}
