// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents a trade direction
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// IsSell returns true for sell orders
func (s Side) IsSell() bool {
	return s == SideSell
}

// InstrumentRole identifies the role an instrument plays in the allocation
// universe. The allocation engine addresses instruments by role, never by
// ticker, so the universe symbols are pure configuration.
type InstrumentRole string

const (
	RoleLeveragedLong InstrumentRole = "LEVERAGED_LONG"
	RoleCoreLong      InstrumentRole = "CORE_LONG"
	RoleInverseHedge  InstrumentRole = "INVERSE_HEDGE"
	RoleBullBond      InstrumentRole = "BULL_BOND"
	RoleBearBond      InstrumentRole = "BEAR_BOND"
)

// Bar is a single daily OHLCV bar. Bars are immutable once ingested and
// timestamps are strictly increasing per symbol.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Validate checks bar integrity. A malformed bar aborts the whole run
// rather than being skipped, since skipping would shift every downstream
// indicator window.
func (b Bar) Validate() error {
	if b.Symbol == "" {
		return fmt.Errorf("bar has empty symbol")
	}
	if b.Timestamp.IsZero() {
		return fmt.Errorf("bar %s has zero timestamp", b.Symbol)
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"open", b.Open},
		{"high", b.High},
		{"low", b.Low},
		{"close", b.Close},
		{"volume", b.Volume},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("bar %s@%s has non-finite %s", b.Symbol, b.Timestamp.Format("2006-01-02"), f.name)
		}
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("bar %s@%s has non-positive price", b.Symbol, b.Timestamp.Format("2006-01-02"))
	}
	if b.High < b.Low {
		return fmt.Errorf("bar %s@%s violates high >= low", b.Symbol, b.Timestamp.Format("2006-01-02"))
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s@%s has negative volume", b.Symbol, b.Timestamp.Format("2006-01-02"))
	}
	return nil
}

// Position represents a long-only portfolio position. Quantities are whole
// units; inverse exposure comes from inverse-tracking instruments, never
// from negative quantities.
type Position struct {
	Symbol      string          `json:"symbol"`
	Quantity    int64           `json:"quantity"`
	AverageCost decimal.Decimal `json:"average_cost"`
}

// MarketValue values the position at the given price.
func (p Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(p.Quantity))
}

// RegimeContext captures the regime and indicator readings that originated
// a trade, attached to every fill for audit.
type RegimeContext struct {
	Cell            int     `json:"cell"`
	TrendLabel      string  `json:"trend_label"`
	VolLabel        string  `json:"vol_label"`
	TrendScore      float64 `json:"trend_score"`
	VolZScore       float64 `json:"vol_zscore"`
	ShockOverride   bool    `json:"shock_override"`
	BondTrend       string  `json:"bond_trend"`
	StructuralTrend string  `json:"structural_trend"`
}

// Trade represents an executed (or simulated) fill.
type Trade struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Regime    RegimeContext   `json:"regime"`
}

// Value returns the gross trade value (price * quantity).
func (t Trade) Value() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// PortfolioSnapshot is the per-bar portfolio record. One is appended per
// processed bar (warmup bars included, with zero trading); the sequence is
// the equity curve.
type PortfolioSnapshot struct {
	Timestamp        time.Time                  `json:"timestamp"`
	Cash             decimal.Decimal            `json:"cash"`
	Positions        map[string]Position        `json:"positions"`
	Equity           decimal.Decimal            `json:"equity"`
	CumulativeReturn decimal.Decimal            `json:"cumulative_return"`
	Prices           map[string]decimal.Decimal `json:"prices"`
}

// Universe maps instrument roles to tradeable symbols plus the two
// non-traded reference series the indicator engine consumes.
type Universe struct {
	LeveragedLong string `json:"leveraged_long"` // e.g. TQQQ
	CoreLong      string `json:"core_long"`      // e.g. QQQ
	InverseHedge  string `json:"inverse_hedge"`  // e.g. SQQQ
	BullBond      string `json:"bull_bond"`      // e.g. TMF
	BearBond      string `json:"bear_bond"`      // e.g. TMV
	SignalSymbol  string `json:"signal_symbol"`  // trend/vol reference, e.g. QQQ
	BondReference string `json:"bond_reference"` // bond trend reference, e.g. TLT
}

// Validate checks that every role is bound to a symbol.
func (u Universe) Validate() error {
	for _, s := range []struct {
		role  string
		value string
	}{
		{"leveraged_long", u.LeveragedLong},
		{"core_long", u.CoreLong},
		{"inverse_hedge", u.InverseHedge},
		{"bull_bond", u.BullBond},
		{"bear_bond", u.BearBond},
		{"signal_symbol", u.SignalSymbol},
		{"bond_reference", u.BondReference},
	} {
		if s.value == "" {
			return fmt.Errorf("universe is missing a symbol for %s", s.role)
		}
	}
	return nil
}

// TradeableSymbols returns the symbols the allocation engine may hold,
// in a fixed deterministic order.
func (u Universe) TradeableSymbols() []string {
	return []string{u.LeveragedLong, u.CoreLong, u.InverseHedge, u.BullBond, u.BearBond}
}

// AllSymbols returns every symbol the engine needs bars for.
func (u Universe) AllSymbols() []string {
	symbols := u.TradeableSymbols()
	symbols = appendUnique(symbols, u.SignalSymbol)
	symbols = appendUnique(symbols, u.BondReference)
	return symbols
}

func appendUnique(symbols []string, s string) []string {
	for _, existing := range symbols {
		if existing == s {
			return symbols
		}
	}
	return append(symbols, s)
}

// DefaultUniverse returns the stock leveraged-ETF universe.
func DefaultUniverse() Universe {
	return Universe{
		LeveragedLong: "TQQQ",
		CoreLong:      "QQQ",
		InverseHedge:  "SQQQ",
		BullBond:      "TMF",
		BearBond:      "TMV",
		SignalSymbol:  "QQQ",
		BondReference: "TLT",
	}
}
