// Package main runs a backtest over a directory of CSV bar files and
// prints the summary.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/akrotiri/helmsman/internal/backtest"
	"github.com/akrotiri/helmsman/internal/marketdata"
	"github.com/akrotiri/helmsman/internal/strategy"
	"github.com/akrotiri/helmsman/pkg/logger"
)

func main() {
	barsDir := flag.String("bars", "./bars", "directory of <SYMBOL>.csv files")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	log := logger.New(logger.Config{Level: *logLevel, Pretty: true})

	cfg := strategy.DefaultConfig()
	source, err := marketdata.LoadCSVDir(*barsDir, cfg.Universe.AllSymbols())
	if err != nil {
		log.Error().Err(err).Str("dir", *barsDir).Msg("Failed to load bars")
		os.Exit(1)
	}

	runner, err := backtest.NewRunner(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build runner")
		os.Exit(1)
	}

	result, err := runner.Run(context.Background(), source)
	if err != nil {
		log.Error().Err(err).Msg("Backtest failed")
		os.Exit(1)
	}

	log.Info().
		Str("run_id", result.RunID).
		Int("bars", result.Bars).
		Int("warmup_bars", result.WarmupBars).
		Int("trades", len(result.Trades)).
		Int("regime_changes", result.RegimeChanges).
		Str("final_equity", result.FinalEquity.String()).
		Str("cumulative_return", result.CumulativeReturn.String()).
		Float64("annualized_return", result.AnnualizedReturn).
		Float64("annualized_volatility", result.AnnualizedVol).
		Float64("max_drawdown", result.MaxDrawdown).
		Float64("sharpe_ratio", result.SharpeRatio).
		Msg("Backtest summary")
}
