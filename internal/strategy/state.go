package strategy

import (
	"github.com/akrotiri/helmsman/internal/indicators"
	"github.com/akrotiri/helmsman/internal/regime"
)

// EngineState is the complete serializable cross-bar memory of a strategy
// instance: indicator buffers plus the hysteresis regime. Restoring it
// into a freshly constructed strategy with the same configuration resumes
// a run deterministically.
type EngineState struct {
	BarIndex   int                         `msgpack:"bar_index"`
	HasRegime  bool                        `msgpack:"has_regime"`
	PrevRegime regime.State                `msgpack:"prev_regime"`
	Trend      indicators.TrendFilterState `msgpack:"trend"`
	Structural indicators.SMACrossState    `msgpack:"structural"`
	Vol        indicators.VolRegimeState   `msgpack:"vol"`
	Shock      indicators.VolShockState    `msgpack:"shock"`
	BondTrend  indicators.SMACrossState    `msgpack:"bond_trend"`
}

// State captures the strategy's current cross-bar memory.
func (t *Tactical) State() EngineState {
	return EngineState{
		BarIndex:   t.barIndex,
		HasRegime:  t.hasRegime,
		PrevRegime: t.prevRegime,
		Trend:      t.trendFilter.State(),
		Structural: t.structural.State(),
		Vol:        t.volRegime.State(),
		Shock:      t.volShock.State(),
		BondTrend:  t.bondTrend.State(),
	}
}

// Restore replaces the strategy's cross-bar memory from a checkpoint.
func (t *Tactical) Restore(st EngineState) {
	t.barIndex = st.BarIndex
	t.hasRegime = st.HasRegime
	t.prevRegime = st.PrevRegime
	t.trendFilter.Restore(st.Trend)
	t.structural.Restore(st.Structural)
	t.volRegime.Restore(st.Vol)
	t.volShock.Restore(st.Shock)
	t.bondTrend.Restore(st.BondTrend)
}
