// Package engine drives a strategy bar by bar over an aligned history:
// warm indicators up, then on each bar classify, allocate, rebalance and
// record. The engine only ever reads the bar it is currently processing,
// so a live run and a backtest over the same bars produce the same output.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/akrotiri/helmsman/internal/portfolio"
	"github.com/akrotiri/helmsman/internal/rebalance"
	"github.com/akrotiri/helmsman/internal/strategy"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Phase is the engine lifecycle: Warmup until enough bars have been seen,
// Trading until the source is exhausted, then Complete.
type Phase string

const (
	PhaseWarmup   Phase = "WARMUP"
	PhaseTrading  Phase = "TRADING"
	PhaseComplete Phase = "COMPLETE"
)

// RegimeRecord is one bar's classified regime, kept for audit and replay.
type RegimeRecord struct {
	BarIndex  int                  `json:"bar_index"`
	Timestamp time.Time            `json:"timestamp"`
	Regime    domain.RegimeContext `json:"regime"`
}

// Engine owns the execution loop state: the strategy, the simulated book
// and the cursor into the bar source.
type Engine struct {
	cfg     strategy.Config
	strat   *strategy.Tactical
	source  domain.BarSource
	book    *portfolio.State
	checker *rebalance.Checker
	log     zerolog.Logger

	nextBar  int
	prevTime time.Time
	regimes  []RegimeRecord
	last     strategy.Signals
}

// New builds an engine over the given bar source. The strategy and the
// drift checker are constructed here so a single Config describes a run
// completely.
func New(cfg strategy.Config, source domain.BarSource, log zerolog.Logger) (*Engine, error) {
	strat, err := strategy.New(cfg, log)
	if err != nil {
		return nil, err
	}
	book, err := portfolio.NewState(cfg.InitialCash)
	if err != nil {
		return nil, err
	}
	checker, err := rebalance.NewChecker(cfg.RebalanceThreshold, cfg.Universe, log)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("nil bar source")
	}

	return &Engine{
		cfg:     cfg,
		strat:   strat,
		source:  source,
		book:    book,
		checker: checker,
		log:     log.With().Str("component", "engine").Logger(),
	}, nil
}

// Phase returns the current lifecycle phase.
func (e *Engine) Phase() Phase {
	switch {
	case e.nextBar >= e.source.NumBars():
		return PhaseComplete
	case e.nextBar < e.strat.RequiredWarmupBars():
		return PhaseWarmup
	default:
		return PhaseTrading
	}
}

// NextBar returns the index of the next bar the engine will process.
func (e *Engine) NextBar() int {
	return e.nextBar
}

// Snapshots returns the per-bar portfolio snapshots recorded so far,
// warmup bars included.
func (e *Engine) Snapshots() []domain.PortfolioSnapshot {
	return e.book.Snapshots()
}

// Trades returns every fill recorded so far, in execution order.
func (e *Engine) Trades() []domain.Trade {
	return e.book.Trades()
}

// Regimes returns the classified regime for every bar past warmup.
func (e *Engine) Regimes() []RegimeRecord {
	out := make([]RegimeRecord, len(e.regimes))
	copy(out, e.regimes)
	return out
}

// Positions returns the current simulated holdings.
func (e *Engine) Positions() map[string]domain.Position {
	return e.book.Positions()
}

// Cash returns the current uninvested cash.
func (e *Engine) Cash() decimal.Decimal {
	return e.book.Cash()
}

// LastSignals returns the strategy output of the most recent bar.
func (e *Engine) LastSignals() strategy.Signals {
	return e.last
}

// Run steps through every remaining bar. A bar that fails validation
// aborts the run; the engine never skips or repairs data.
func (e *Engine) Run(ctx context.Context) error {
	for e.Phase() != PhaseComplete {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := e.Step(); err != nil {
			return err
		}
	}
	e.log.Info().
		Int("bars", e.nextBar).
		Int("trades", len(e.book.Trades())).
		Msg("Run complete")
	return nil
}

// Step processes exactly one bar: load and validate, advance indicators,
// and past warmup classify, allocate and rebalance. Every bar ends with a
// portfolio snapshot so the equity curve has no gaps.
func (e *Engine) Step() error {
	if e.Phase() == PhaseComplete {
		return fmt.Errorf("no bars left at index %d", e.nextBar)
	}
	i := e.nextBar

	bars, prices, err := e.loadBars(i)
	if err != nil {
		return fmt.Errorf("bar %d: %w", i, err)
	}
	timestamp := bars[e.cfg.Universe.SignalSymbol].Timestamp

	signals, err := e.strat.Advance(strategy.MarketBar{
		Index:         i,
		Timestamp:     timestamp,
		Signal:        bars[e.cfg.Universe.SignalSymbol],
		BondReference: bars[e.cfg.Universe.BondReference],
	})
	if err != nil {
		return fmt.Errorf("bar %d: %w", i, err)
	}
	e.last = signals

	trading := i >= e.strat.RequiredWarmupBars()
	if trading && signals.Ready {
		ctxRecord := strategy.RegimeContext(signals)
		e.regimes = append(e.regimes, RegimeRecord{BarIndex: i, Timestamp: timestamp, Regime: ctxRecord})

		if err := e.rebalance(signals, prices, timestamp, ctxRecord); err != nil {
			return fmt.Errorf("bar %d: %w", i, err)
		}
	}

	if _, err := e.book.TakeSnapshot(timestamp, prices); err != nil {
		return fmt.Errorf("bar %d: snapshot: %w", i, err)
	}

	e.prevTime = timestamp
	e.nextBar = i + 1
	return nil
}

// loadBars fetches and validates every universe symbol's bar at index i.
// All bars of one index must share a timestamp, and timestamps must be
// strictly increasing across bars; either violation aborts the run.
func (e *Engine) loadBars(i int) (map[string]domain.Bar, map[string]decimal.Decimal, error) {
	bars := make(map[string]domain.Bar)
	prices := make(map[string]decimal.Decimal)

	var timestamp time.Time
	for _, symbol := range e.cfg.Universe.AllSymbols() {
		bar, err := e.source.Bar(symbol, i)
		if err != nil {
			return nil, nil, err
		}
		if err := bar.Validate(); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", symbol, err)
		}
		if timestamp.IsZero() {
			timestamp = bar.Timestamp
		} else if !bar.Timestamp.Equal(timestamp) {
			return nil, nil, fmt.Errorf("%s timestamp %s misaligned with %s", symbol, bar.Timestamp, timestamp)
		}
		bars[symbol] = bar
	}
	if !e.prevTime.IsZero() && !timestamp.After(e.prevTime) {
		return nil, nil, fmt.Errorf("timestamp %s not after previous bar %s", timestamp, e.prevTime)
	}

	for _, symbol := range e.cfg.Universe.TradeableSymbols() {
		prices[symbol] = decimal.NewFromFloat(bars[symbol].Close)
	}
	return bars, prices, nil
}

// rebalance applies the drift checker's decision to the book. Fills are
// simulated at the same bar's close, sells before buys.
func (e *Engine) rebalance(
	signals strategy.Signals,
	prices map[string]decimal.Decimal,
	timestamp time.Time,
	regimeCtx domain.RegimeContext,
) error {
	decision, err := e.checker.Evaluate(e.book.Positions(), e.book.Cash(), prices, signals.Target)
	if err != nil {
		return err
	}
	if !decision.Triggered {
		return nil
	}

	for _, order := range decision.Orders {
		trade := domain.Trade{
			ID:        uuid.NewString(),
			Symbol:    order.Symbol,
			Side:      order.Side,
			Quantity:  order.Quantity,
			Price:     order.Price,
			Timestamp: timestamp,
			Regime:    regimeCtx,
		}
		if err := e.book.ApplyFill(trade); err != nil {
			return fmt.Errorf("fill %s %s x%d: %w", order.Side, order.Symbol, order.Quantity, err)
		}
		e.log.Debug().
			Str("side", string(order.Side)).
			Str("symbol", order.Symbol).
			Int64("quantity", order.Quantity).
			Str("price", order.Price.String()).
			Int("cell", regimeCtx.Cell).
			Msg("Fill applied")
	}
	return nil
}
