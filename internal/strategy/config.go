// Package strategy wires the indicator engine, the regime classifier and
// the allocation engine behind a single capability interface with explicit,
// serializable cross-bar state.
package strategy

import (
	"fmt"

	"github.com/akrotiri/helmsman/internal/allocation"
	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/akrotiri/helmsman/internal/indicators"
	"github.com/akrotiri/helmsman/internal/regime"
	"github.com/shopspring/decimal"
)

// Config enumerates every numeric parameter of a strategy instance. It is
// constructed once, validated eagerly, and passed by reference; no
// indicator or regime logic reads ambient defaults.
type Config struct {
	Universe   domain.Universe              `json:"universe"`
	Trend      indicators.TrendFilterConfig `json:"trend"`
	Structural indicators.SMACrossConfig    `json:"structural"`
	Vol        indicators.VolRegimeConfig   `json:"vol"`
	Shock      indicators.VolShockConfig    `json:"shock"`
	BondTrend  indicators.SMACrossConfig    `json:"bond_trend"`
	Thresholds regime.Thresholds            `json:"thresholds"`
	Allocation allocation.Params            `json:"allocation"`

	RebalanceThreshold decimal.Decimal `json:"rebalance_threshold"` // [0, 0.5]
	WarmupMargin       int             `json:"warmup_margin"`       // safety bars on top of indicator lookbacks
	InitialCash        decimal.Decimal `json:"initial_cash"`        // > 0
}

// DefaultConfig returns the tuned default configuration. Every value here
// came out of empirical tuning and is configuration, not an invariant.
func DefaultConfig() Config {
	return Config{
		Universe:           domain.DefaultUniverse(),
		Trend:              indicators.DefaultTrendFilterConfig(),
		Structural:         indicators.DefaultStructuralConfig(),
		Vol:                indicators.DefaultVolRegimeConfig(),
		Shock:              indicators.DefaultVolShockConfig(),
		BondTrend:          indicators.DefaultBondTrendConfig(),
		Thresholds:         regime.DefaultThresholds(),
		Allocation:         allocation.DefaultParams(),
		RebalanceThreshold: decimal.RequireFromString("0.025"),
		WarmupMargin:       10,
		InitialCash:        decimal.NewFromInt(100_000),
	}
}

// Validate rejects invalid configuration at construction time, before any
// bar is processed.
func (c Config) Validate() error {
	if err := c.Universe.Validate(); err != nil {
		return fmt.Errorf("universe: %w", err)
	}
	if err := c.Trend.Validate(); err != nil {
		return fmt.Errorf("trend filter: %w", err)
	}
	if err := c.Structural.Validate(); err != nil {
		return fmt.Errorf("structural trend: %w", err)
	}
	if err := c.Vol.Validate(); err != nil {
		return fmt.Errorf("vol regime: %w", err)
	}
	if err := c.Shock.Validate(); err != nil {
		return fmt.Errorf("vol shock: %w", err)
	}
	if err := c.BondTrend.Validate(); err != nil {
		return fmt.Errorf("bond trend: %w", err)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("regime thresholds: %w", err)
	}
	if err := c.Allocation.Validate(); err != nil {
		return fmt.Errorf("allocation: %w", err)
	}
	if c.RebalanceThreshold.IsNegative() || c.RebalanceThreshold.GreaterThan(decimal.RequireFromString("0.5")) {
		return fmt.Errorf("rebalance threshold %s out of [0, 0.5]", c.RebalanceThreshold)
	}
	if c.WarmupMargin < 0 {
		return fmt.Errorf("warmup margin must be >= 0, got %d", c.WarmupMargin)
	}
	if c.InitialCash.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("initial cash must be positive, got %s", c.InitialCash)
	}
	return nil
}

// RequiredWarmupBars is the maximum indicator lookback plus the safety
// margin; the execution loop suppresses trading below this bar index.
func (c Config) RequiredWarmupBars() int {
	max := c.Trend.MinBars()
	for _, m := range []int{
		c.Structural.MinBars(),
		c.Vol.MinBars(),
		// The shock detector consumes realized-vol readings, which only
		// start once the vol short window has filled.
		c.Vol.ShortWindow + 1 + c.Shock.Lookback,
		c.BondTrend.MinBars(),
	} {
		if m > max {
			max = m
		}
	}
	return max + c.WarmupMargin
}
