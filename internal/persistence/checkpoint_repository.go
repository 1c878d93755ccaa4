package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/akrotiri/helmsman/internal/database"
	"github.com/akrotiri/helmsman/internal/engine"
	"github.com/rs/zerolog"
)

const checkpointsSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
    run_id     TEXT    PRIMARY KEY,
    next_bar   INTEGER NOT NULL,
    saved_at   INTEGER NOT NULL,
    state      BLOB    NOT NULL
);
`

// CheckpointRepository stores one resumable checkpoint per run, encoded
// with msgpack. Only the newest checkpoint of a run is kept.
type CheckpointRepository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewCheckpointRepository creates the repository and applies its schema.
func NewCheckpointRepository(db *database.DB, log zerolog.Logger) (*CheckpointRepository, error) {
	if err := db.Migrate(checkpointsSchema); err != nil {
		return nil, fmt.Errorf("migrating checkpoints schema: %w", err)
	}
	return &CheckpointRepository{
		db:  db,
		log: log.With().Str("component", "checkpoint_repository").Logger(),
	}, nil
}

// Save replaces a run's checkpoint.
func (r *CheckpointRepository) Save(ctx context.Context, runID string, cp engine.Checkpoint) error {
	data, err := engine.EncodeCheckpoint(cp)
	if err != nil {
		return err
	}
	_, err = r.db.Conn().ExecContext(ctx, `
		INSERT INTO checkpoints (run_id, next_bar, saved_at, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			next_bar = excluded.next_bar, saved_at = excluded.saved_at, state = excluded.state`,
		runID, cp.NextBar, time.Now().UTC().Unix(), data,
	)
	if err != nil {
		return fmt.Errorf("saving checkpoint for run %s: %w", runID, err)
	}
	r.log.Debug().Str("run_id", runID).Int("next_bar", cp.NextBar).Msg("Checkpoint saved")
	return nil
}

// Load returns a run's checkpoint. found is false when the run has none.
func (r *CheckpointRepository) Load(ctx context.Context, runID string) (cp engine.Checkpoint, found bool, err error) {
	var data []byte
	err = r.db.Conn().QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE run_id = ?`, runID).Scan(&data)
	if err == sql.ErrNoRows {
		return engine.Checkpoint{}, false, nil
	}
	if err != nil {
		return engine.Checkpoint{}, false, fmt.Errorf("loading checkpoint for run %s: %w", runID, err)
	}
	cp, err = engine.DecodeCheckpoint(data)
	if err != nil {
		return engine.Checkpoint{}, false, err
	}
	return cp, true, nil
}
