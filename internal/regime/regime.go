// Package regime classifies the market into one of six discrete cells from
// trend and volatility readings. Classification is a pure function; the only
// memory it consumes is the previous volatility label (hysteresis).
package regime

import "fmt"

// Direction is a two-state trend label used by the structural and bond
// trend detectors.
type Direction string

const (
	DirectionBull Direction = "BULL"
	DirectionBear Direction = "BEAR"
)

// TrendLabel is the composite trend classification.
type TrendLabel string

const (
	TrendBullStrong TrendLabel = "BULL_STRONG"
	TrendSideways   TrendLabel = "SIDEWAYS"
	TrendBearStrong TrendLabel = "BEAR_STRONG"
)

// VolLabel is the volatility regime label.
type VolLabel string

const (
	// VolUnset marks the start-of-run condition before the first valid
	// z-score has been observed.
	VolUnset VolLabel = ""
	VolLow   VolLabel = "LOW"
	VolHigh  VolLabel = "HIGH"
)

// State is a classified regime cell. It persists between bars as the
// hysteresis memory - the only derived state carried forward.
type State struct {
	Cell  int        `json:"cell" msgpack:"cell"`
	Trend TrendLabel `json:"trend" msgpack:"trend"`
	Vol   VolLabel   `json:"vol" msgpack:"vol"`
}

// Cell ids. The (trend x vol) mapping is total: every pair maps to exactly
// one cell, there is no unknown state.
const (
	CellBullLow      = 1
	CellBullHigh     = 2
	CellSidewaysLow  = 3
	CellSidewaysHigh = 4
	CellBearLow      = 5
	CellBearHigh     = 6
)

// Defensive reports whether the cell carries a defensive allocation
// (and therefore participates in the treasury overlay).
func Defensive(cell int) bool {
	return cell == CellSidewaysHigh || cell == CellBearLow || cell == CellBearHigh
}

// CellOf maps a (trend, vol) pair to its cell id.
func CellOf(trend TrendLabel, vol VolLabel) int {
	switch trend {
	case TrendBullStrong:
		if vol == VolHigh {
			return CellBullHigh
		}
		return CellBullLow
	case TrendBearStrong:
		if vol == VolHigh {
			return CellBearHigh
		}
		return CellBearLow
	default:
		if vol == VolHigh {
			return CellSidewaysHigh
		}
		return CellSidewaysLow
	}
}

// Thresholds holds the classifier's numeric parameters.
type Thresholds struct {
	BullTrend float64 `json:"bull_trend"` // trend score above this is fast-bullish
	BearTrend float64 `json:"bear_trend"` // trend score below this is fast-bearish
	VolUpper  float64 `json:"vol_upper"`  // Low -> High when z exceeds this
	VolLower  float64 `json:"vol_lower"`  // High -> Low when z falls below this
}

// DefaultThresholds returns the tuned defaults. These are configuration,
// not invariants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BullTrend: 0.20,
		BearTrend: -0.20,
		VolUpper:  1.0,
		VolLower:  -0.5,
	}
}

// Validate rejects inconsistent threshold combinations.
func (t Thresholds) Validate() error {
	if t.BullTrend < -1 || t.BullTrend > 1 {
		return fmt.Errorf("bull trend threshold %v out of [-1,1]", t.BullTrend)
	}
	if t.BearTrend < -1 || t.BearTrend > 1 {
		return fmt.Errorf("bear trend threshold %v out of [-1,1]", t.BearTrend)
	}
	if t.BearTrend >= t.BullTrend {
		return fmt.Errorf("bear trend threshold %v must be below bull threshold %v", t.BearTrend, t.BullTrend)
	}
	if t.VolLower >= t.VolUpper {
		return fmt.Errorf("vol lower threshold %v must be below upper threshold %v", t.VolLower, t.VolUpper)
	}
	return nil
}

// Inputs are the per-bar readings the classifier consumes.
type Inputs struct {
	TrendScore float64   // normalized trend strength in [-1,+1]
	Structural Direction // slow dual-SMA trend
	PrevVol    VolLabel  // hysteresis memory from the previous bar
	VolZ       float64   // realized-volatility z-score
	VolZValid  bool      // false when the baseline had zero variance
	Shock      bool      // volatility-shock override flag
}

// Classify maps the per-bar readings to a regime cell.
//
// Trend requires agreement between the fast trend score and the structural
// label: a fast-bullish reading during a structural bear is a bear-market
// rally, not a trend change, and lands in Sideways. Volatility applies the
// two-threshold hysteresis rule; values inside the deadband never change
// state. The shock override is applied last: it can force vol Low and
// demote BearStrong to Sideways, never the reverse.
func Classify(in Inputs, th Thresholds) State {
	trend := TrendSideways
	switch {
	case in.TrendScore > th.BullTrend && in.Structural == DirectionBull:
		trend = TrendBullStrong
	case in.TrendScore < th.BearTrend && in.Structural == DirectionBear:
		trend = TrendBearStrong
	}

	vol := classifyVol(in, th)

	if in.Shock {
		vol = VolLow
		if trend == TrendBearStrong {
			trend = TrendSideways
		}
	}

	return State{Cell: CellOf(trend, vol), Trend: trend, Vol: vol}
}

func classifyVol(in Inputs, th Thresholds) VolLabel {
	// Zero-variance baseline carries no signal; hold the previous state.
	if !in.VolZValid {
		if in.PrevVol == VolUnset {
			return VolLow
		}
		return in.PrevVol
	}

	// Starting state comes from the sign of the first post-warmup z-score.
	if in.PrevVol == VolUnset {
		if in.VolZ > 0 {
			return VolHigh
		}
		return VolLow
	}

	switch in.PrevVol {
	case VolLow:
		if in.VolZ > th.VolUpper {
			return VolHigh
		}
		return VolLow
	default:
		if in.VolZ < th.VolLower {
			return VolLow
		}
		return VolHigh
	}
}
