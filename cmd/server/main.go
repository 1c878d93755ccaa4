// Package main is the entry point for the Helmsman tactical allocation
// service. It wires the bar store, the strategy engine, the post-close
// evaluation job and the read-only HTTP API, then runs until interrupted.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/akrotiri/helmsman/internal/config"
	"github.com/akrotiri/helmsman/internal/database"
	"github.com/akrotiri/helmsman/internal/marketdata"
	"github.com/akrotiri/helmsman/internal/persistence"
	"github.com/akrotiri/helmsman/internal/scheduler"
	"github.com/akrotiri/helmsman/internal/server"
	"github.com/akrotiri/helmsman/internal/strategy"
	"github.com/akrotiri/helmsman/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty || cfg.DevMode})
	log.Info().Str("data_dir", cfg.DataDir).Str("run_id", cfg.RunID).Msg("Starting helmsman")

	// Three databases: bars are rebuildable market data, the ledger is the
	// fsync-everything audit trail, state holds snapshots, regimes and
	// checkpoints.
	barsDB, err := database.New(database.Config{Path: cfg.DatabasePath("bars"), Profile: database.ProfileStandard, Name: "bars"})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open bars database")
	}
	defer barsDB.Close()

	ledgerDB, err := database.New(database.Config{Path: cfg.DatabasePath("ledger"), Profile: database.ProfileLedger, Name: "ledger"})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	stateDB, err := database.New(database.Config{Path: cfg.DatabasePath("state"), Profile: database.ProfileStandard, Name: "state"})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state database")
	}
	defer stateDB.Close()

	barRepo, err := marketdata.NewBarRepository(barsDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize bar repository")
	}
	tradeRepo, err := persistence.NewTradeRepository(ledgerDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize trade repository")
	}
	snapshotRepo, err := persistence.NewSnapshotRepository(stateDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize snapshot repository")
	}
	regimeRepo, err := persistence.NewRegimeRepository(stateDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize regime repository")
	}
	checkpointRepo, err := persistence.NewCheckpointRepository(stateDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize checkpoint repository")
	}

	strategyCfg := strategy.DefaultConfig()

	if cfg.BarsCSVDir != "" {
		if err := ingestCSVBars(cfg.BarsCSVDir, strategyCfg.Universe.AllSymbols(), barRepo, log); err != nil {
			log.Fatal().Err(err).Str("dir", cfg.BarsCSVDir).Msg("Failed to ingest CSV bars")
		}
	}

	stores := scheduler.EvaluateStores{
		Bars:        barRepo,
		Trades:      tradeRepo,
		Snapshots:   snapshotRepo,
		Regimes:     regimeRepo,
		Checkpoints: checkpointRepo,
	}
	evaluateJob, err := scheduler.NewEvaluateJob(cfg.RunID, strategyCfg, stores, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build evaluation job")
	}

	srv := server.New(server.Config{
		Log:       log,
		Port:      cfg.Port,
		RunID:     cfg.RunID,
		Trades:    tradeRepo,
		Snapshots: snapshotRepo,
		Regimes:   regimeRepo,
	})
	evaluateJob.SetStream(srv.Stream())

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.EvaluateSchedule, evaluateJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register evaluation job")
	}
	sched.Start()
	defer sched.Stop()

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("Helmsman stopped")
}

// ingestCSVBars seeds or extends the bar store from <SYMBOL>.csv files.
// Saving is an upsert, so re-ingesting the same files is harmless.
func ingestCSVBars(dir string, symbols []string, repo *marketdata.BarRepository, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, symbol := range symbols {
		f, err := os.Open(filepath.Join(dir, symbol+".csv"))
		if err != nil {
			return err
		}
		bars, err := marketdata.ReadBarsCSV(f, symbol)
		f.Close()
		if err != nil {
			return err
		}
		if err := repo.SaveBars(ctx, bars); err != nil {
			return err
		}
		log.Info().Str("symbol", symbol).Int("bars", len(bars)).Msg("CSV bars ingested")
	}
	return nil
}
