package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/akrotiri/helmsman/internal/database"
	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/rs/zerolog"
)

const barsSchema = `
CREATE TABLE IF NOT EXISTS bars (
    symbol    TEXT    NOT NULL,
    timestamp INTEGER NOT NULL,
    open      REAL    NOT NULL,
    high      REAL    NOT NULL,
    low       REAL    NOT NULL,
    close     REAL    NOT NULL,
    volume    REAL    NOT NULL,
    PRIMARY KEY (symbol, timestamp)
);
CREATE INDEX IF NOT EXISTS idx_bars_timestamp ON bars(timestamp);
`

// BarRepository persists daily bars in the bars database.
type BarRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewBarRepository creates the repository and applies its schema.
func NewBarRepository(db *database.DB, log zerolog.Logger) (*BarRepository, error) {
	if err := db.Migrate(barsSchema); err != nil {
		return nil, fmt.Errorf("migrating bars schema: %w", err)
	}
	return &BarRepository{
		db:  db,
		log: log.With().Str("component", "bar_repository").Logger(),
	}, nil
}

// SaveBars upserts a batch of bars in one transaction. Re-ingesting the
// same file is idempotent.
func (r *BarRepository) SaveBars(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	for _, bar := range bars {
		if err := bar.Validate(); err != nil {
			return fmt.Errorf("refusing to save invalid bar: %w", err)
		}
	}

	err := database.WithTransaction(r.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO bars (symbol, timestamp, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol, timestamp) DO UPDATE SET
				open = excluded.open, high = excluded.high, low = excluded.low,
				close = excluded.close, volume = excluded.volume`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, bar := range bars {
			if _, err := stmt.ExecContext(ctx,
				bar.Symbol, bar.Timestamp.UTC().Unix(),
				bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
			); err != nil {
				return fmt.Errorf("saving bar %s@%s: %w", bar.Symbol, bar.Timestamp, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().Int("bars", len(bars)).Str("symbol", bars[0].Symbol).Msg("Bars saved")
	return nil
}

// History returns a symbol's bars in chronological order.
func (r *BarRepository) History(ctx context.Context, symbol string) ([]domain.Bar, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM bars WHERE symbol = ? ORDER BY timestamp ASC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("querying bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var bar domain.Bar
		var unix int64
		if err := rows.Scan(&bar.Symbol, &unix, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("scanning bar for %s: %w", symbol, err)
		}
		bar.Timestamp = time.Unix(unix, 0).UTC()
		bars = append(bars, bar)
	}
	return bars, rows.Err()
}

// LatestTimestamp returns the newest bar timestamp stored for a symbol,
// or a zero time when the symbol has no bars yet.
func (r *BarRepository) LatestTimestamp(ctx context.Context, symbol string) (time.Time, error) {
	var unix sql.NullInt64
	err := r.db.Conn().QueryRowContext(ctx,
		`SELECT MAX(timestamp) FROM bars WHERE symbol = ?`, symbol).Scan(&unix)
	if err != nil {
		return time.Time{}, fmt.Errorf("querying latest bar for %s: %w", symbol, err)
	}
	if !unix.Valid {
		return time.Time{}, nil
	}
	return time.Unix(unix.Int64, 0).UTC(), nil
}

// LoadSource builds an aligned source from the stored history of the
// given symbols.
func (r *BarRepository) LoadSource(ctx context.Context, symbols []string) (*AlignedSource, error) {
	series := make(map[string][]domain.Bar, len(symbols))
	for _, symbol := range symbols {
		bars, err := r.History(ctx, symbol)
		if err != nil {
			return nil, err
		}
		series[symbol] = bars
	}
	return NewAlignedSource(series, symbols)
}
