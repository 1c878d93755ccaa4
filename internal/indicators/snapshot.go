package indicators

import "github.com/akrotiri/helmsman/internal/regime"

// Snapshot holds every per-bar indicator reading, derived fresh each bar
// and never mutated retroactively. Each reading carries its own readiness
// flag; the engine must not classify a regime while any required reading
// is not ready.
type Snapshot struct {
	TrendScore      float64          `json:"trend_score"` // normalized, in [-1,+1]
	TrendReady      bool             `json:"trend_ready"`
	Structural      regime.Direction `json:"structural"`
	StructuralReady bool             `json:"structural_ready"`
	RealizedVol     float64          `json:"realized_vol"` // annualized
	VolZ            float64          `json:"vol_zscore"`
	VolZValid       bool             `json:"vol_zscore_valid"` // false on zero-variance baseline
	VolReady        bool             `json:"vol_ready"`
	Shock           bool             `json:"shock"`
	ShockReady      bool             `json:"shock_ready"`
	BondTrend       regime.Direction `json:"bond_trend"`
	BondReady       bool             `json:"bond_ready"`
}

// Ready reports whether every required indicator has enough history to
// classify a regime.
func (s Snapshot) Ready() bool {
	return s.TrendReady && s.StructuralReady && s.VolReady && s.ShockReady && s.BondReady
}
