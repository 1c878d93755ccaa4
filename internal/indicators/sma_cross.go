package indicators

import (
	"fmt"

	"github.com/akrotiri/helmsman/internal/regime"
	"github.com/akrotiri/helmsman/pkg/formulas"
)

// SMACrossConfig parameterizes a fast/slow moving-average comparison.
// The structural trend detector and the bond trend detector are both
// instances of this calculator over different price series.
type SMACrossConfig struct {
	FastWindow int `json:"fast_window"`
	SlowWindow int `json:"slow_window"`
}

// DefaultStructuralConfig returns the structural trend defaults (50/200).
func DefaultStructuralConfig() SMACrossConfig {
	return SMACrossConfig{FastWindow: 50, SlowWindow: 200}
}

// DefaultBondTrendConfig returns the bond trend defaults (20/60).
func DefaultBondTrendConfig() SMACrossConfig {
	return SMACrossConfig{FastWindow: 20, SlowWindow: 60}
}

// Validate rejects inconsistent window sizes.
func (c SMACrossConfig) Validate() error {
	if c.FastWindow < 1 {
		return fmt.Errorf("sma cross fast window must be >= 1, got %d", c.FastWindow)
	}
	if c.SlowWindow <= c.FastWindow {
		return fmt.Errorf("sma cross slow window %d must exceed fast window %d", c.SlowWindow, c.FastWindow)
	}
	return nil
}

// MinBars returns the warmup requirement.
func (c SMACrossConfig) MinBars() int {
	return c.SlowWindow
}

// SMACrossState is the detector's serializable memory: the closing-price
// window needed for the slow average.
type SMACrossState struct {
	Closes []float64 `msgpack:"closes"`
}

// SMACross labels a price series Bull when the fast SMA sits above the
// slow SMA, Bear otherwise.
type SMACross struct {
	cfg SMACrossConfig
	st  SMACrossState
}

// NewSMACross constructs the detector, failing on invalid config.
func NewSMACross(cfg SMACrossConfig) (*SMACross, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SMACross{cfg: cfg}, nil
}

// Update advances the detector with a closing price.
func (d *SMACross) Update(close float64) {
	d.st.Closes = pushBounded(d.st.Closes, close, d.cfg.SlowWindow)
}

// Direction returns the current label, or ok=false until the slow window
// has filled.
func (d *SMACross) Direction() (dir regime.Direction, ok bool) {
	if !d.Ready() {
		return regime.DirectionBear, false
	}

	fast := formulas.SMA(d.st.Closes, d.cfg.FastWindow)
	slow := formulas.SMA(d.st.Closes, d.cfg.SlowWindow)
	if fast == nil || slow == nil {
		return regime.DirectionBear, false
	}
	if *fast > *slow {
		return regime.DirectionBull, true
	}
	return regime.DirectionBear, true
}

// Ready reports whether the slow window has filled.
func (d *SMACross) Ready() bool {
	return len(d.st.Closes) >= d.cfg.SlowWindow
}

// MinBars returns the warmup requirement for this instance.
func (d *SMACross) MinBars() int {
	return d.cfg.MinBars()
}

// State returns the serializable detector state.
func (d *SMACross) State() SMACrossState {
	return SMACrossState{Closes: append([]float64(nil), d.st.Closes...)}
}

// Restore replaces the detector state from a checkpoint.
func (d *SMACross) Restore(st SMACrossState) {
	d.st.Closes = append([]float64(nil), st.Closes...)
}
