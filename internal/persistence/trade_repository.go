// Package persistence stores run output: the trade ledger, the equity
// curve, the regime history and engine checkpoints. Monetary values are
// stored as decimal strings; nothing in here ever round-trips money
// through floats.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/akrotiri/helmsman/internal/database"
	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const tradesSchema = `
CREATE TABLE IF NOT EXISTS trades (
    id               TEXT    PRIMARY KEY,
    run_id           TEXT    NOT NULL,
    symbol           TEXT    NOT NULL,
    side             TEXT    NOT NULL,
    quantity         INTEGER NOT NULL,
    price            TEXT    NOT NULL,
    timestamp        INTEGER NOT NULL,
    regime_cell      INTEGER NOT NULL,
    trend_label      TEXT    NOT NULL,
    vol_label        TEXT    NOT NULL,
    trend_score      REAL    NOT NULL,
    vol_zscore       REAL    NOT NULL,
    shock_override   INTEGER NOT NULL,
    bond_trend       TEXT    NOT NULL,
    structural_trend TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, timestamp);
`

// TradeRepository is the append-only trade ledger. It runs on the ledger
// database profile: every write is fsynced, rows are never updated or
// deleted.
type TradeRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewTradeRepository creates the repository and applies its schema.
func NewTradeRepository(db *database.DB, log zerolog.Logger) (*TradeRepository, error) {
	if err := db.Migrate(tradesSchema); err != nil {
		return nil, fmt.Errorf("migrating trades schema: %w", err)
	}
	return &TradeRepository{
		db:  db,
		log: log.With().Str("component", "trade_repository").Logger(),
	}, nil
}

// Append records one fill under a run id.
func (r *TradeRepository) Append(ctx context.Context, runID string, trade domain.Trade) error {
	shock := 0
	if trade.Regime.ShockOverride {
		shock = 1
	}
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO trades (
			id, run_id, symbol, side, quantity, price, timestamp,
			regime_cell, trend_label, vol_label, trend_score, vol_zscore,
			shock_override, bond_trend, structural_trend
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, runID, trade.Symbol, string(trade.Side), trade.Quantity,
		trade.Price.String(), trade.Timestamp.UTC().Unix(),
		trade.Regime.Cell, trade.Regime.TrendLabel, trade.Regime.VolLabel,
		trade.Regime.TrendScore, trade.Regime.VolZScore,
		shock, trade.Regime.BondTrend, trade.Regime.StructuralTrend,
	)
	if err != nil {
		return fmt.Errorf("appending trade %s: %w", trade.ID, err)
	}
	return nil
}

// AppendAll records a batch of fills in ledger order.
func (r *TradeRepository) AppendAll(ctx context.Context, runID string, trades []domain.Trade) error {
	for _, trade := range trades {
		if err := r.Append(ctx, runID, trade); err != nil {
			return err
		}
	}
	r.log.Debug().Str("run_id", runID).Int("trades", len(trades)).Msg("Trades appended")
	return nil
}

// ByRun returns a run's trades in chronological order.
func (r *TradeRepository) ByRun(ctx context.Context, runID string) ([]domain.Trade, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, symbol, side, quantity, price, timestamp,
		       regime_cell, trend_label, vol_label, trend_score, vol_zscore,
		       shock_override, bond_trend, structural_trend
		FROM trades WHERE run_id = ? ORDER BY timestamp ASC, rowid ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying trades for run %s: %w", runID, err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var (
			trade     domain.Trade
			side      string
			price     string
			timestamp int64
			shock     int
		)
		if err := rows.Scan(
			&trade.ID, &trade.Symbol, &side, &trade.Quantity, &price, &timestamp,
			&trade.Regime.Cell, &trade.Regime.TrendLabel, &trade.Regime.VolLabel,
			&trade.Regime.TrendScore, &trade.Regime.VolZScore,
			&shock, &trade.Regime.BondTrend, &trade.Regime.StructuralTrend,
		); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		trade.Side = domain.Side(side)
		trade.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("trade %s has corrupt price %q: %w", trade.ID, price, err)
		}
		trade.Timestamp = time.Unix(timestamp, 0).UTC()
		trade.Regime.ShockOverride = shock != 0
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}
