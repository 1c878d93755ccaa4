package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/akrotiri/helmsman/internal/database"
	"github.com/akrotiri/helmsman/internal/engine"
	"github.com/rs/zerolog"
)

const regimesSchema = `
CREATE TABLE IF NOT EXISTS regimes (
    run_id           TEXT    NOT NULL,
    bar_index        INTEGER NOT NULL,
    timestamp        INTEGER NOT NULL,
    cell             INTEGER NOT NULL,
    trend_label      TEXT    NOT NULL,
    vol_label        TEXT    NOT NULL,
    trend_score      REAL    NOT NULL,
    vol_zscore       REAL    NOT NULL,
    shock_override   INTEGER NOT NULL,
    bond_trend       TEXT    NOT NULL,
    structural_trend TEXT    NOT NULL,
    PRIMARY KEY (run_id, bar_index)
);
`

// RegimeRepository stores the classified regime of every traded bar.
type RegimeRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRegimeRepository creates the repository and applies its schema.
func NewRegimeRepository(db *database.DB, log zerolog.Logger) (*RegimeRepository, error) {
	if err := db.Migrate(regimesSchema); err != nil {
		return nil, fmt.Errorf("migrating regimes schema: %w", err)
	}
	return &RegimeRepository{
		db:  db,
		log: log.With().Str("component", "regime_repository").Logger(),
	}, nil
}

// SaveAll upserts a run's regime records.
func (r *RegimeRepository) SaveAll(ctx context.Context, runID string, records []engine.RegimeRecord) error {
	for _, rec := range records {
		shock := 0
		if rec.Regime.ShockOverride {
			shock = 1
		}
		_, err := r.db.Conn().ExecContext(ctx, `
			INSERT INTO regimes (
				run_id, bar_index, timestamp, cell, trend_label, vol_label,
				trend_score, vol_zscore, shock_override, bond_trend, structural_trend
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, bar_index) DO UPDATE SET
				timestamp = excluded.timestamp, cell = excluded.cell,
				trend_label = excluded.trend_label, vol_label = excluded.vol_label,
				trend_score = excluded.trend_score, vol_zscore = excluded.vol_zscore,
				shock_override = excluded.shock_override, bond_trend = excluded.bond_trend,
				structural_trend = excluded.structural_trend`,
			runID, rec.BarIndex, rec.Timestamp.UTC().Unix(),
			rec.Regime.Cell, rec.Regime.TrendLabel, rec.Regime.VolLabel,
			rec.Regime.TrendScore, rec.Regime.VolZScore,
			shock, rec.Regime.BondTrend, rec.Regime.StructuralTrend,
		)
		if err != nil {
			return fmt.Errorf("saving regime for bar %d: %w", rec.BarIndex, err)
		}
	}
	r.log.Debug().Str("run_id", runID).Int("records", len(records)).Msg("Regimes saved")
	return nil
}

// History returns a run's regime records in bar order.
func (r *RegimeRepository) History(ctx context.Context, runID string) ([]engine.RegimeRecord, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT bar_index, timestamp, cell, trend_label, vol_label,
		       trend_score, vol_zscore, shock_override, bond_trend, structural_trend
		FROM regimes WHERE run_id = ? ORDER BY bar_index ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying regimes for run %s: %w", runID, err)
	}
	defer rows.Close()

	var records []engine.RegimeRecord
	for rows.Next() {
		var (
			rec       engine.RegimeRecord
			timestamp int64
			shock     int
		)
		if err := rows.Scan(
			&rec.BarIndex, &timestamp, &rec.Regime.Cell,
			&rec.Regime.TrendLabel, &rec.Regime.VolLabel,
			&rec.Regime.TrendScore, &rec.Regime.VolZScore,
			&shock, &rec.Regime.BondTrend, &rec.Regime.StructuralTrend,
		); err != nil {
			return nil, fmt.Errorf("scanning regime record: %w", err)
		}
		rec.Timestamp = time.Unix(timestamp, 0).UTC()
		rec.Regime.ShockOverride = shock != 0
		records = append(records, rec)
	}
	return records, rows.Err()
}
