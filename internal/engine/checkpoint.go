package engine

import (
	"fmt"
	"time"

	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/akrotiri/helmsman/internal/portfolio"
	"github.com/akrotiri/helmsman/internal/strategy"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Checkpoint is a resumable snapshot of a run: the strategy's cross-bar
// memory plus the trade log. The book is not stored directly; restoring
// replays the trade log against the initial cash, which keeps the
// checkpoint small and makes a corrupted log detectable.
type Checkpoint struct {
	NextBar     int                  `msgpack:"next_bar"`
	PrevTime    time.Time            `msgpack:"prev_time"`
	InitialCash string               `msgpack:"initial_cash"`
	Strategy    strategy.EngineState `msgpack:"strategy"`
	Trades      []tradeRecord        `msgpack:"trades"`
	Regimes     []regimeRecord       `msgpack:"regimes"`
}

// Monetary values cross the checkpoint boundary as decimal strings so the
// encoding never depends on float formatting.
type tradeRecord struct {
	ID        string               `msgpack:"id"`
	Symbol    string               `msgpack:"symbol"`
	Side      string               `msgpack:"side"`
	Quantity  int64                `msgpack:"quantity"`
	Price     string               `msgpack:"price"`
	Timestamp time.Time            `msgpack:"timestamp"`
	Regime    domain.RegimeContext `msgpack:"regime"`
}

type regimeRecord struct {
	BarIndex  int                  `msgpack:"bar_index"`
	Timestamp time.Time            `msgpack:"timestamp"`
	Regime    domain.RegimeContext `msgpack:"regime"`
}

// Checkpoint captures the engine's current resumable state.
func (e *Engine) Checkpoint() Checkpoint {
	trades := e.book.Trades()
	records := make([]tradeRecord, 0, len(trades))
	for _, t := range trades {
		records = append(records, tradeRecord{
			ID:        t.ID,
			Symbol:    t.Symbol,
			Side:      string(t.Side),
			Quantity:  t.Quantity,
			Price:     t.Price.String(),
			Timestamp: t.Timestamp,
			Regime:    t.Regime,
		})
	}
	regimes := make([]regimeRecord, 0, len(e.regimes))
	for _, r := range e.regimes {
		regimes = append(regimes, regimeRecord{BarIndex: r.BarIndex, Timestamp: r.Timestamp, Regime: r.Regime})
	}
	return Checkpoint{
		NextBar:     e.nextBar,
		PrevTime:    e.prevTime,
		InitialCash: e.cfg.InitialCash.String(),
		Strategy:    e.strat.State(),
		Trades:      records,
		Regimes:     regimes,
	}
}

// Restore rebuilds the engine's state from a checkpoint taken by an engine
// with the same configuration and bar source. Subsequent Steps produce
// exactly what the original run would have produced.
func (e *Engine) Restore(cp Checkpoint) error {
	initialCash, err := decimal.NewFromString(cp.InitialCash)
	if err != nil {
		return fmt.Errorf("checkpoint initial cash: %w", err)
	}
	if !initialCash.Equal(e.cfg.InitialCash) {
		return fmt.Errorf("checkpoint initial cash %s does not match configured %s", initialCash, e.cfg.InitialCash)
	}

	trades := make([]domain.Trade, 0, len(cp.Trades))
	for _, r := range cp.Trades {
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			return fmt.Errorf("checkpoint trade %s price: %w", r.ID, err)
		}
		trades = append(trades, domain.Trade{
			ID:        r.ID,
			Symbol:    r.Symbol,
			Side:      domain.Side(r.Side),
			Quantity:  r.Quantity,
			Price:     price,
			Timestamp: r.Timestamp,
			Regime:    r.Regime,
		})
	}
	book, err := portfolio.Replay(initialCash, trades)
	if err != nil {
		return fmt.Errorf("replaying checkpoint trade log: %w", err)
	}

	regimes := make([]RegimeRecord, 0, len(cp.Regimes))
	for _, r := range cp.Regimes {
		regimes = append(regimes, RegimeRecord{BarIndex: r.BarIndex, Timestamp: r.Timestamp, Regime: r.Regime})
	}

	e.book = book
	e.regimes = regimes
	e.nextBar = cp.NextBar
	e.prevTime = cp.PrevTime
	e.last = strategy.Signals{}
	e.strat.Restore(cp.Strategy)

	e.log.Info().Int("next_bar", cp.NextBar).Int("trades", len(trades)).Msg("Checkpoint restored")
	return nil
}

// EncodeCheckpoint serializes a checkpoint for storage.
func EncodeCheckpoint(cp Checkpoint) ([]byte, error) {
	data, err := msgpack.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encoding checkpoint: %w", err)
	}
	return data, nil
}

// DecodeCheckpoint deserializes a checkpoint produced by EncodeCheckpoint.
func DecodeCheckpoint(data []byte) (Checkpoint, error) {
	var cp Checkpoint
	if err := msgpack.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("decoding checkpoint: %w", err)
	}
	return cp, nil
}
