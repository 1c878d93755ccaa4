// Package portfolio owns the mutable portfolio record: cash, positions,
// the trade log and the per-bar snapshot sequence. All accounting is
// decimal; binary floating point never touches cash or equity.
package portfolio

import (
	"fmt"
	"time"

	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/shopspring/decimal"
)

// State is a single run's portfolio. It is mutated only by ApplyFill and
// snapshotted once per bar; it is not safe for concurrent use and is never
// shared between runs.
type State struct {
	cash        decimal.Decimal
	initialCash decimal.Decimal
	positions   map[string]domain.Position
	trades      []domain.Trade
	snapshots   []domain.PortfolioSnapshot
}

// NewState creates a portfolio with starting cash and no positions.
func NewState(initialCash decimal.Decimal) (*State, error) {
	if initialCash.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("initial cash must be positive, got %s", initialCash)
	}
	return &State{
		cash:        initialCash,
		initialCash: initialCash,
		positions:   make(map[string]domain.Position),
	}, nil
}

// Cash returns the current cash balance.
func (s *State) Cash() decimal.Decimal {
	return s.cash
}

// Positions returns a copy of the current positions keyed by symbol.
func (s *State) Positions() map[string]domain.Position {
	out := make(map[string]domain.Position, len(s.positions))
	for symbol, pos := range s.positions {
		out[symbol] = pos
	}
	return out
}

// Position returns the position for symbol, zero-valued when not held.
func (s *State) Position(symbol string) domain.Position {
	return s.positions[symbol]
}

// Trades returns the append-only trade log.
func (s *State) Trades() []domain.Trade {
	return append([]domain.Trade(nil), s.trades...)
}

// Snapshots returns the append-only per-bar snapshot sequence.
func (s *State) Snapshots() []domain.PortfolioSnapshot {
	return append([]domain.PortfolioSnapshot(nil), s.snapshots...)
}

// Equity values the portfolio at the given prices.
func (s *State) Equity(prices map[string]decimal.Decimal) (decimal.Decimal, error) {
	equity := s.cash
	for symbol, pos := range s.positions {
		price, ok := prices[symbol]
		if !ok {
			return decimal.Zero, fmt.Errorf("no price for held symbol %s", symbol)
		}
		equity = equity.Add(pos.MarketValue(price))
	}
	return equity, nil
}

// ApplyFill applies an executed trade to cash and positions. Buys must be
// affordable and sells must not exceed the held quantity; the long-only
// invariant (quantity >= 0) can never be violated here.
func (s *State) ApplyFill(trade domain.Trade) error {
	if trade.Quantity <= 0 {
		return fmt.Errorf("fill for %s has non-positive quantity %d", trade.Symbol, trade.Quantity)
	}
	if trade.Price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("fill for %s has non-positive price %s", trade.Symbol, trade.Price)
	}

	value := trade.Value()
	pos := s.positions[trade.Symbol]

	switch trade.Side {
	case domain.SideBuy:
		if value.GreaterThan(s.cash) {
			return fmt.Errorf("buy %d %s costs %s, only %s cash available", trade.Quantity, trade.Symbol, value, s.cash)
		}
		newQty := pos.Quantity + trade.Quantity
		// Weighted average cost across the old lot and the new fill.
		oldCost := pos.AverageCost.Mul(decimal.NewFromInt(pos.Quantity))
		pos.Symbol = trade.Symbol
		pos.AverageCost = oldCost.Add(value).Div(decimal.NewFromInt(newQty))
		pos.Quantity = newQty
		s.positions[trade.Symbol] = pos
		s.cash = s.cash.Sub(value)

	case domain.SideSell:
		if trade.Quantity > pos.Quantity {
			return fmt.Errorf("sell %d %s exceeds held quantity %d", trade.Quantity, trade.Symbol, pos.Quantity)
		}
		pos.Quantity -= trade.Quantity
		if pos.Quantity == 0 {
			delete(s.positions, trade.Symbol)
		} else {
			s.positions[trade.Symbol] = pos
		}
		s.cash = s.cash.Add(value)

	default:
		return fmt.Errorf("unknown trade side %q", trade.Side)
	}

	s.trades = append(s.trades, trade)
	return nil
}

// TakeSnapshot appends the per-bar portfolio record valued at the bar's
// closing prices. Exactly one snapshot is taken per processed bar, warmup
// bars included.
func (s *State) TakeSnapshot(timestamp time.Time, prices map[string]decimal.Decimal) (domain.PortfolioSnapshot, error) {
	equity, err := s.Equity(prices)
	if err != nil {
		return domain.PortfolioSnapshot{}, err
	}

	priceCopy := make(map[string]decimal.Decimal, len(prices))
	for symbol, price := range prices {
		priceCopy[symbol] = price
	}

	snapshot := domain.PortfolioSnapshot{
		Timestamp:        timestamp,
		Cash:             s.cash,
		Positions:        s.Positions(),
		Equity:           equity,
		CumulativeReturn: equity.Sub(s.initialCash).Div(s.initialCash),
		Prices:           priceCopy,
	}
	s.snapshots = append(s.snapshots, snapshot)
	return snapshot, nil
}

// Replay rebuilds a final portfolio state by applying a recorded trade log
// to a fresh portfolio with the given starting cash. Replaying the log of
// a finished run must reproduce its exact final state.
func Replay(initialCash decimal.Decimal, trades []domain.Trade) (*State, error) {
	state, err := NewState(initialCash)
	if err != nil {
		return nil, err
	}
	for i, trade := range trades {
		if err := state.ApplyFill(trade); err != nil {
			return nil, fmt.Errorf("replaying trade %d: %w", i, err)
		}
	}
	return state, nil
}
