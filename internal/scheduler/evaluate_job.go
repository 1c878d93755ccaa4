package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/akrotiri/helmsman/internal/engine"
	"github.com/akrotiri/helmsman/internal/marketdata"
	"github.com/akrotiri/helmsman/internal/persistence"
	"github.com/akrotiri/helmsman/internal/strategy"
	"github.com/rs/zerolog"
)

// evaluateTimeout bounds one evaluation pass end to end.
const evaluateTimeout = 5 * time.Minute

// EvaluateStores bundles the repositories an evaluation writes to. Trades
// and Checkpoints are required; the rest may be nil.
type EvaluateStores struct {
	Bars        *marketdata.BarRepository
	Trades      *persistence.TradeRepository
	Snapshots   *persistence.SnapshotRepository
	Regimes     *persistence.RegimeRepository
	Checkpoints *persistence.CheckpointRepository
}

// RegimePublisher receives regime records as evaluations produce them.
// The server's websocket stream implements it.
type RegimePublisher interface {
	Publish(rec engine.RegimeRecord)
}

// EvaluateJob replays the stored bar history through the engine after each
// close, resuming from the run's checkpoint. New fills go to the order
// sink and the ledger; the checkpoint is advanced afterwards, so a fill is
// never re-emitted.
type EvaluateJob struct {
	runID  string
	cfg    strategy.Config
	stores EvaluateStores
	sink   domain.OrderSink
	stream RegimePublisher
	log    zerolog.Logger

	mu      sync.Mutex
	running bool
}

// SetStream attaches a publisher for freshly classified regimes. Call it
// before the job is scheduled.
func (j *EvaluateJob) SetStream(stream RegimePublisher) {
	j.stream = stream
}

// NewEvaluateJob builds the daily evaluation job for one run. sink may be
// nil when fills only need recording.
func NewEvaluateJob(
	runID string,
	cfg strategy.Config,
	stores EvaluateStores,
	sink domain.OrderSink,
	log zerolog.Logger,
) (*EvaluateJob, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid evaluation config: %w", err)
	}
	if runID == "" {
		return nil, fmt.Errorf("empty run id")
	}
	if stores.Bars == nil || stores.Trades == nil || stores.Checkpoints == nil {
		return nil, fmt.Errorf("bars, trades and checkpoints stores are required")
	}
	return &EvaluateJob{
		runID:  runID,
		cfg:    cfg,
		stores: stores,
		sink:   sink,
		log:    log.With().Str("component", "evaluate_job").Str("run_id", runID).Logger(),
	}, nil
}

// Name implements Job.
func (j *EvaluateJob) Name() string {
	return "daily_evaluate"
}

// Run implements Job. Overlapping invocations are skipped, not queued: a
// slow evaluation must never race a second one over the same checkpoint.
func (j *EvaluateJob) Run() error {
	if !j.tryStart() {
		j.log.Warn().Msg("Evaluation already in flight, skipping")
		return nil
	}
	defer j.finish()

	ctx, cancel := context.WithTimeout(context.Background(), evaluateTimeout)
	defer cancel()
	return j.evaluate(ctx)
}

func (j *EvaluateJob) tryStart() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return false
	}
	j.running = true
	return true
}

func (j *EvaluateJob) finish() {
	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

func (j *EvaluateJob) evaluate(ctx context.Context) error {
	source, err := j.stores.Bars.LoadSource(ctx, j.cfg.Universe.AllSymbols())
	if err != nil {
		return fmt.Errorf("loading bar history: %w", err)
	}

	eng, err := engine.New(j.cfg, source, j.log)
	if err != nil {
		return err
	}

	startBar := 0
	cp, found, err := j.stores.Checkpoints.Load(ctx, j.runID)
	if err != nil {
		return err
	}
	if found {
		if err := eng.Restore(cp); err != nil {
			return err
		}
		startBar = cp.NextBar
	}
	if startBar >= source.NumBars() {
		j.log.Debug().Int("bars", source.NumBars()).Msg("No new bars to evaluate")
		return nil
	}

	tradesBefore := len(eng.Trades())
	regimesBefore := len(eng.Regimes())
	if err := eng.Run(ctx); err != nil {
		return fmt.Errorf("evaluating bars %d..%d: %w", startBar, source.NumBars()-1, err)
	}

	newTrades := eng.Trades()[tradesBefore:]
	for _, trade := range newTrades {
		if j.sink != nil {
			if err := j.sink.SubmitOrder(trade); err != nil {
				return fmt.Errorf("submitting order %s: %w", trade.ID, err)
			}
		}
	}
	if err := j.stores.Trades.AppendAll(ctx, j.runID, newTrades); err != nil {
		return err
	}

	if j.stores.Snapshots != nil {
		for i, snap := range eng.Snapshots() {
			if err := j.stores.Snapshots.Save(ctx, j.runID, startBar+i, snap); err != nil {
				return err
			}
		}
	}
	if j.stores.Regimes != nil {
		if err := j.stores.Regimes.SaveAll(ctx, j.runID, eng.Regimes()); err != nil {
			return err
		}
	}
	if j.stream != nil {
		for _, rec := range eng.Regimes()[regimesBefore:] {
			j.stream.Publish(rec)
		}
	}

	if err := j.stores.Checkpoints.Save(ctx, j.runID, eng.Checkpoint()); err != nil {
		return err
	}

	j.log.Info().
		Int("bars_evaluated", source.NumBars()-startBar).
		Int("new_trades", len(newTrades)).
		Msg("Evaluation complete")
	return nil
}
