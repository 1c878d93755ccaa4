// Package rebalance decides whether holdings have drifted far enough from
// the target allocation to justify trading, and sizes the resulting orders.
package rebalance

import (
	"fmt"

	"github.com/akrotiri/helmsman/internal/allocation"
	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Order is a sized trade instruction. Orders are whole-unit and long-only.
type Order struct {
	Symbol   string          `json:"symbol"`
	Side     domain.Side     `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Decision is the outcome of a drift evaluation.
type Decision struct {
	Deviation decimal.Decimal `json:"deviation"` // aggregate absolute weight drift
	Triggered bool            `json:"triggered"`
	Orders    []Order         `json:"orders"` // sells first, then buys
}

// Checker evaluates portfolio drift against a threshold. The threshold
// guards against over-trading on noise: holdings inside it are left alone.
type Checker struct {
	threshold decimal.Decimal
	universe  domain.Universe
	log       zerolog.Logger
}

// NewChecker constructs a drift checker, failing on an out-of-range
// threshold.
func NewChecker(threshold decimal.Decimal, universe domain.Universe, log zerolog.Logger) (*Checker, error) {
	if threshold.IsNegative() || threshold.GreaterThan(decimal.RequireFromString("0.5")) {
		return nil, fmt.Errorf("rebalance threshold %s out of [0, 0.5]", threshold)
	}
	if err := universe.Validate(); err != nil {
		return nil, err
	}
	return &Checker{
		threshold: threshold,
		universe:  universe,
		log:       log.With().Str("component", "rebalance").Logger(),
	}, nil
}

// Evaluate compares current holdings to the target allocation. Trades are
// emitted only when the aggregate absolute deviation strictly exceeds the
// threshold; when triggered, all sell orders come first (freeing cash),
// then buys sized against whole units and capped by the cash available
// after sells.
func (c *Checker) Evaluate(
	positions map[string]domain.Position,
	cash decimal.Decimal,
	prices map[string]decimal.Decimal,
	target allocation.Target,
) (Decision, error) {
	equity := cash
	for _, symbol := range c.universe.TradeableSymbols() {
		pos, ok := positions[symbol]
		if !ok {
			continue
		}
		price, ok := prices[symbol]
		if !ok {
			return Decision{}, fmt.Errorf("no price for held symbol %s", symbol)
		}
		equity = equity.Add(pos.MarketValue(price))
	}
	if equity.LessThanOrEqual(decimal.Zero) {
		return Decision{}, fmt.Errorf("non-positive equity %s", equity)
	}

	deviation := decimal.Zero
	for _, symbol := range c.universe.TradeableSymbols() {
		current := decimal.Zero
		if pos, ok := positions[symbol]; ok {
			current = pos.MarketValue(prices[symbol]).Div(equity)
		}
		deviation = deviation.Add(current.Sub(target.Weights[symbol]).Abs())
	}

	decision := Decision{Deviation: deviation}
	if deviation.LessThanOrEqual(c.threshold) {
		c.log.Debug().
			Str("deviation", deviation.String()).
			Str("threshold", c.threshold.String()).
			Msg("Drift inside threshold, holding")
		return decision, nil
	}
	decision.Triggered = true

	// Sells first: free cash before sizing buys.
	available := cash
	var buys []Order
	for _, symbol := range c.universe.TradeableSymbols() {
		price, ok := prices[symbol]
		if !ok || price.LessThanOrEqual(decimal.Zero) {
			return Decision{}, fmt.Errorf("no valid price for %s", symbol)
		}

		currentValue := decimal.Zero
		var held int64
		if pos, ok := positions[symbol]; ok {
			held = pos.Quantity
			currentValue = pos.MarketValue(price)
		}
		targetValue := target.Weights[symbol].Mul(equity)
		delta := targetValue.Sub(currentValue)

		if delta.IsNegative() {
			qty := delta.Neg().Div(price).IntPart()
			if qty > held {
				qty = held
			}
			if qty > 0 {
				decision.Orders = append(decision.Orders, Order{Symbol: symbol, Side: domain.SideSell, Quantity: qty, Price: price})
				available = available.Add(price.Mul(decimal.NewFromInt(qty)))
			}
		} else if delta.IsPositive() {
			qty := delta.Div(price).IntPart()
			if qty > 0 {
				buys = append(buys, Order{Symbol: symbol, Side: domain.SideBuy, Quantity: qty, Price: price})
			}
		}
	}

	// Buys after sells, capped by the cash freed above.
	for _, order := range buys {
		affordable := available.Div(order.Price).IntPart()
		if affordable < order.Quantity {
			order.Quantity = affordable
		}
		if order.Quantity <= 0 {
			continue
		}
		available = available.Sub(order.Price.Mul(decimal.NewFromInt(order.Quantity)))
		decision.Orders = append(decision.Orders, order)
	}

	c.log.Debug().
		Str("deviation", deviation.String()).
		Int("orders", len(decision.Orders)).
		Msg("Rebalance triggered")

	return decision, nil
}
