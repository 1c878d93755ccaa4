package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akrotiri/helmsman/internal/database"
	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const snapshotsSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    run_id            TEXT    NOT NULL,
    bar_index         INTEGER NOT NULL,
    timestamp         INTEGER NOT NULL,
    cash              TEXT    NOT NULL,
    equity            TEXT    NOT NULL,
    cumulative_return TEXT    NOT NULL,
    positions         TEXT    NOT NULL,
    prices            TEXT    NOT NULL,
    PRIMARY KEY (run_id, bar_index)
);
`

// SnapshotRepository stores the per-bar equity curve of each run.
type SnapshotRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewSnapshotRepository creates the repository and applies its schema.
func NewSnapshotRepository(db *database.DB, log zerolog.Logger) (*SnapshotRepository, error) {
	if err := db.Migrate(snapshotsSchema); err != nil {
		return nil, fmt.Errorf("migrating snapshots schema: %w", err)
	}
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("component", "snapshot_repository").Logger(),
	}, nil
}

// positionRecord is the JSON shape of one holding inside a snapshot row.
type positionRecord struct {
	Quantity    int64  `json:"quantity"`
	AverageCost string `json:"average_cost"`
}

// Save upserts one snapshot at its bar index.
func (r *SnapshotRepository) Save(ctx context.Context, runID string, barIndex int, snap domain.PortfolioSnapshot) error {
	positions := make(map[string]positionRecord, len(snap.Positions))
	for symbol, pos := range snap.Positions {
		positions[symbol] = positionRecord{Quantity: pos.Quantity, AverageCost: pos.AverageCost.String()}
	}
	prices := make(map[string]string, len(snap.Prices))
	for symbol, price := range snap.Prices {
		prices[symbol] = price.String()
	}

	positionsJSON, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("encoding snapshot positions: %w", err)
	}
	pricesJSON, err := json.Marshal(prices)
	if err != nil {
		return fmt.Errorf("encoding snapshot prices: %w", err)
	}

	_, err = r.db.Conn().ExecContext(ctx, `
		INSERT INTO snapshots (run_id, bar_index, timestamp, cash, equity, cumulative_return, positions, prices)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, bar_index) DO UPDATE SET
			timestamp = excluded.timestamp, cash = excluded.cash,
			equity = excluded.equity, cumulative_return = excluded.cumulative_return,
			positions = excluded.positions, prices = excluded.prices`,
		runID, barIndex, snap.Timestamp.UTC().Unix(),
		snap.Cash.String(), snap.Equity.String(), snap.CumulativeReturn.String(),
		string(positionsJSON), string(pricesJSON),
	)
	if err != nil {
		return fmt.Errorf("saving snapshot %d for run %s: %w", barIndex, runID, err)
	}
	return nil
}

// SaveAll upserts a run's snapshots starting at bar index 0.
func (r *SnapshotRepository) SaveAll(ctx context.Context, runID string, snaps []domain.PortfolioSnapshot) error {
	for i, snap := range snaps {
		if err := r.Save(ctx, runID, i, snap); err != nil {
			return err
		}
	}
	r.log.Debug().Str("run_id", runID).Int("snapshots", len(snaps)).Msg("Snapshots saved")
	return nil
}

// EquityCurve returns a run's snapshots in bar order.
func (r *SnapshotRepository) EquityCurve(ctx context.Context, runID string) ([]domain.PortfolioSnapshot, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT timestamp, cash, equity, cumulative_return, positions, prices
		FROM snapshots WHERE run_id = ? ORDER BY bar_index ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots for run %s: %w", runID, err)
	}
	defer rows.Close()

	var snaps []domain.PortfolioSnapshot
	for rows.Next() {
		var (
			snap          domain.PortfolioSnapshot
			timestamp     int64
			cash          string
			equity        string
			cumReturn     string
			positionsJSON string
			pricesJSON    string
		)
		if err := rows.Scan(&timestamp, &cash, &equity, &cumReturn, &positionsJSON, &pricesJSON); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snap.Timestamp = time.Unix(timestamp, 0).UTC()
		if snap.Cash, err = decimal.NewFromString(cash); err != nil {
			return nil, fmt.Errorf("snapshot has corrupt cash %q: %w", cash, err)
		}
		if snap.Equity, err = decimal.NewFromString(equity); err != nil {
			return nil, fmt.Errorf("snapshot has corrupt equity %q: %w", equity, err)
		}
		if snap.CumulativeReturn, err = decimal.NewFromString(cumReturn); err != nil {
			return nil, fmt.Errorf("snapshot has corrupt return %q: %w", cumReturn, err)
		}

		var positions map[string]positionRecord
		if err := json.Unmarshal([]byte(positionsJSON), &positions); err != nil {
			return nil, fmt.Errorf("decoding snapshot positions: %w", err)
		}
		snap.Positions = make(map[string]domain.Position, len(positions))
		for symbol, rec := range positions {
			cost, err := decimal.NewFromString(rec.AverageCost)
			if err != nil {
				return nil, fmt.Errorf("snapshot position %s has corrupt cost %q: %w", symbol, rec.AverageCost, err)
			}
			snap.Positions[symbol] = domain.Position{Symbol: symbol, Quantity: rec.Quantity, AverageCost: cost}
		}

		var prices map[string]string
		if err := json.Unmarshal([]byte(pricesJSON), &prices); err != nil {
			return nil, fmt.Errorf("decoding snapshot prices: %w", err)
		}
		snap.Prices = make(map[string]decimal.Decimal, len(prices))
		for symbol, s := range prices {
			price, err := decimal.NewFromString(s)
			if err != nil {
				return nil, fmt.Errorf("snapshot price %s has corrupt value %q: %w", symbol, s, err)
			}
			snap.Prices[symbol] = price
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
