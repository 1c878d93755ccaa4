// Package allocation maps regime cells to target portfolio weights over the
// instrument universe. All weight arithmetic is decimal to keep the
// sum-to-one invariant exact.
package allocation

import (
	"fmt"

	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/akrotiri/helmsman/internal/regime"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// CellTemplate is the base weight template for one regime cell, over the
// four legs {leveraged-long, core-long, inverse-hedge, cash}.
type CellTemplate struct {
	LeveragedLong decimal.Decimal `json:"leveraged_long"`
	CoreLong      decimal.Decimal `json:"core_long"`
	InverseHedge  decimal.Decimal `json:"inverse_hedge"`
	Cash          decimal.Decimal `json:"cash"`
}

func (t CellTemplate) sum() decimal.Decimal {
	return t.LeveragedLong.Add(t.CoreLong).Add(t.InverseHedge).Add(t.Cash)
}

func (t CellTemplate) validate(cell int) error {
	for _, leg := range []struct {
		name   string
		weight decimal.Decimal
	}{
		{"leveraged_long", t.LeveragedLong},
		{"core_long", t.CoreLong},
		{"inverse_hedge", t.InverseHedge},
		{"cash", t.Cash},
	} {
		if leg.weight.IsNegative() || leg.weight.GreaterThan(one) {
			return fmt.Errorf("cell %d template leg %s weight %s out of [0,1]", cell, leg.name, leg.weight)
		}
	}
	if !t.sum().Equal(one) {
		return fmt.Errorf("cell %d template weights sum to %s, want 1", cell, t.sum())
	}
	return nil
}

// DefaultTemplates returns the tuned 6-cell base weight table. These values
// are configuration, not invariants.
func DefaultTemplates() map[int]CellTemplate {
	d := decimal.RequireFromString
	return map[int]CellTemplate{
		regime.CellBullLow:      {LeveragedLong: d("0.90"), CoreLong: d("0.10"), InverseHedge: d("0"), Cash: d("0")},
		regime.CellBullHigh:     {LeveragedLong: d("0.30"), CoreLong: d("0.50"), InverseHedge: d("0"), Cash: d("0.20")},
		regime.CellSidewaysLow:  {LeveragedLong: d("0.20"), CoreLong: d("0.60"), InverseHedge: d("0"), Cash: d("0.20")},
		regime.CellSidewaysHigh: {LeveragedLong: d("0"), CoreLong: d("0.30"), InverseHedge: d("0.10"), Cash: d("0.60")},
		regime.CellBearLow:      {LeveragedLong: d("0"), CoreLong: d("0.20"), InverseHedge: d("0.20"), Cash: d("0.60")},
		regime.CellBearHigh:     {LeveragedLong: d("0"), CoreLong: d("0"), InverseHedge: d("0.30"), Cash: d("0.70")},
	}
}

// Params holds the allocation engine configuration.
type Params struct {
	Templates           map[int]CellTemplate `json:"templates"`
	LeverageScalar      decimal.Decimal      `json:"leverage_scalar"`       // multiplies equity legs only, (0, 3]
	TreasuryOverlayCap  decimal.Decimal      `json:"treasury_overlay_cap"`  // max fraction replaced by bonds, [0, 1]
	InverseHedgeEnabled bool                 `json:"inverse_hedge_enabled"` // when false, hedge weight folds into core-long
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		Templates:           DefaultTemplates(),
		LeverageScalar:      one,
		TreasuryOverlayCap:  decimal.RequireFromString("0.40"),
		InverseHedgeEnabled: true,
	}
}

// Validate rejects out-of-range parameters at construction time.
func (p Params) Validate() error {
	if p.LeverageScalar.LessThanOrEqual(decimal.Zero) || p.LeverageScalar.GreaterThan(decimal.NewFromInt(3)) {
		return fmt.Errorf("leverage scalar %s out of (0,3]", p.LeverageScalar)
	}
	if p.TreasuryOverlayCap.IsNegative() || p.TreasuryOverlayCap.GreaterThan(one) {
		return fmt.Errorf("treasury overlay cap %s out of [0,1]", p.TreasuryOverlayCap)
	}
	for _, cell := range []int{
		regime.CellBullLow, regime.CellBullHigh,
		regime.CellSidewaysLow, regime.CellSidewaysHigh,
		regime.CellBearLow, regime.CellBearHigh,
	} {
		tpl, ok := p.Templates[cell]
		if !ok {
			return fmt.Errorf("no weight template for cell %d", cell)
		}
		if err := tpl.validate(cell); err != nil {
			return err
		}
	}
	return nil
}

// Target is a complete weight vector over the tradeable universe plus the
// residual cash leg. Weights always cover every tradeable symbol (zeros
// included) so the rebalance diff is total.
type Target struct {
	Cell    int                        `json:"cell"`
	Weights map[string]decimal.Decimal `json:"weights"`
	Cash    decimal.Decimal            `json:"cash"`
}

// Sum returns the total of all weights including cash.
func (t Target) Sum() decimal.Decimal {
	sum := t.Cash
	for _, w := range t.Weights {
		sum = sum.Add(w)
	}
	return sum
}

// Validate raises on a broken sum-to-one invariant. This is an internal
// defect, not a data error: proceeding would corrupt equity accounting.
func (t Target) Validate() error {
	for symbol, w := range t.Weights {
		if w.IsNegative() {
			return fmt.Errorf("allocation invariant violated: %s weight %s is negative", symbol, w)
		}
	}
	if t.Cash.IsNegative() {
		return fmt.Errorf("allocation invariant violated: cash leg %s is negative", t.Cash)
	}
	if !t.Sum().Equal(one) {
		return fmt.Errorf("allocation invariant violated: weights sum to %s, want 1", t.Sum())
	}
	return nil
}

// Engine computes target allocations. It is stateless: the same
// (cell, bond trend) input always yields the same target.
type Engine struct {
	params    Params
	templates map[int]CellTemplate // after config-time hedge redistribution
	universe  domain.Universe
	log       zerolog.Logger
}

// NewEngine constructs an allocation engine, failing on invalid config.
// When the inverse hedge is disabled its template weight is folded into
// the core-long leg here, once, rather than branching per bar.
func NewEngine(params Params, universe domain.Universe, log zerolog.Logger) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := universe.Validate(); err != nil {
		return nil, err
	}

	templates := make(map[int]CellTemplate, len(params.Templates))
	for cell, tpl := range params.Templates {
		if !params.InverseHedgeEnabled {
			tpl.CoreLong = tpl.CoreLong.Add(tpl.InverseHedge)
			tpl.InverseHedge = decimal.Zero
		}
		templates[cell] = tpl
	}

	return &Engine{
		params:    params,
		templates: templates,
		universe:  universe,
		log:       log.With().Str("component", "allocation").Logger(),
	}, nil
}

// Target maps a regime cell and the bond trend to the target weight
// vector. In defensive cells a treasury overlay substitutes up to the
// configured cap of the cash leg with a directional bond instrument; the
// leverage scalar multiplies only the equity legs (bond ETFs are already
// intrinsically leveraged); the result is renormalized to sum to exactly
// 1.0 with any residual absorbed into cash.
func (e *Engine) Target(cell int, bondTrend regime.Direction) (Target, error) {
	tpl, ok := e.templates[cell]
	if !ok {
		return Target{}, fmt.Errorf("no weight template for cell %d", cell)
	}

	lev := tpl.LeveragedLong.Mul(e.params.LeverageScalar)
	core := tpl.CoreLong.Mul(e.params.LeverageScalar)
	hedge := tpl.InverseHedge.Mul(e.params.LeverageScalar)
	cash := tpl.Cash

	bond := decimal.Zero
	if regime.Defensive(cell) {
		bond = decimal.Min(e.params.TreasuryOverlayCap, cash)
		cash = cash.Sub(bond)
	}

	// Renormalize: leverage scaling can push the gross sum off 1.0.
	sum := lev.Add(core).Add(hedge).Add(bond).Add(cash)
	if sum.LessThanOrEqual(decimal.Zero) {
		return Target{}, fmt.Errorf("allocation invariant violated: cell %d gross weight sum %s", cell, sum)
	}
	lev = lev.Div(sum)
	core = core.Div(sum)
	hedge = hedge.Div(sum)
	bond = bond.Div(sum)
	cash = cash.Div(sum)

	target := Target{
		Cell: cell,
		Weights: map[string]decimal.Decimal{
			e.universe.LeveragedLong: lev,
			e.universe.CoreLong:      core,
			e.universe.InverseHedge:  hedge,
			e.universe.BullBond:      decimal.Zero,
			e.universe.BearBond:      decimal.Zero,
		},
		Cash: cash,
	}
	if bondTrend == regime.DirectionBull {
		target.Weights[e.universe.BullBond] = bond
	} else {
		target.Weights[e.universe.BearBond] = bond
	}

	// Absorb division rounding residue so the sum is exactly 1. It goes
	// into the cash/defensive leg, or into the largest weight leg when the
	// cell holds no cash.
	residual := one.Sub(target.Sum())
	if !residual.IsZero() {
		if target.Cash.Add(residual).IsNegative() {
			largest := e.universe.CoreLong
			for _, symbol := range e.universe.TradeableSymbols() {
				if target.Weights[symbol].GreaterThan(target.Weights[largest]) {
					largest = symbol
				}
			}
			target.Weights[largest] = target.Weights[largest].Add(residual)
		} else {
			target.Cash = target.Cash.Add(residual)
		}
	}

	if err := target.Validate(); err != nil {
		return Target{}, err
	}

	e.log.Debug().
		Int("cell", cell).
		Str("bond_trend", string(bondTrend)).
		Str("cash", target.Cash.String()).
		Msg("Computed allocation target")

	return target, nil
}
