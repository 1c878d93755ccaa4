// Package backtest runs the engine over a historical bar source and
// reduces the result to summary performance metrics.
package backtest

import (
	"context"
	"fmt"

	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/akrotiri/helmsman/internal/engine"
	"github.com/akrotiri/helmsman/internal/strategy"
	"github.com/akrotiri/helmsman/pkg/formulas"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Result is the full output of one backtest run.
type Result struct {
	RunID            string                     `json:"run_id"`
	Bars             int                        `json:"bars"`
	WarmupBars       int                        `json:"warmup_bars"`
	Trades           []domain.Trade             `json:"trades"`
	Snapshots        []domain.PortfolioSnapshot `json:"snapshots"`
	Regimes          []engine.RegimeRecord      `json:"regimes"`
	FinalEquity      decimal.Decimal            `json:"final_equity"`
	CumulativeReturn decimal.Decimal            `json:"cumulative_return"`
	AnnualizedReturn float64                    `json:"annualized_return"`
	AnnualizedVol    float64                    `json:"annualized_volatility"`
	MaxDrawdown      float64                    `json:"max_drawdown"`
	SharpeRatio      float64                    `json:"sharpe_ratio"`
	RegimeChanges    int                        `json:"regime_changes"`
}

// Runner executes backtests for a fixed strategy configuration.
type Runner struct {
	cfg strategy.Config
	log zerolog.Logger
}

// NewRunner validates the configuration once so Run can be called
// repeatedly over different sources.
func NewRunner(cfg strategy.Config, log zerolog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest config: %w", err)
	}
	return &Runner{cfg: cfg, log: log.With().Str("component", "backtest").Logger()}, nil
}

// Run executes one full pass over the source. The source must cover more
// bars than the strategy's warmup, otherwise the run cannot trade at all.
func (r *Runner) Run(ctx context.Context, source domain.BarSource) (Result, error) {
	eng, err := engine.New(r.cfg, source, r.log)
	if err != nil {
		return Result{}, err
	}
	warmup := r.cfg.RequiredWarmupBars()
	if source.NumBars() <= warmup {
		return Result{}, fmt.Errorf("source has %d bars, warmup alone needs %d", source.NumBars(), warmup)
	}

	if err := eng.Run(ctx); err != nil {
		return Result{}, err
	}

	result := Result{
		RunID:      uuid.NewString(),
		Bars:       source.NumBars(),
		WarmupBars: warmup,
		Trades:     eng.Trades(),
		Snapshots:  eng.Snapshots(),
		Regimes:    eng.Regimes(),
	}
	summarize(&result)

	r.log.Info().
		Str("run_id", result.RunID).
		Int("bars", result.Bars).
		Int("trades", len(result.Trades)).
		Str("final_equity", result.FinalEquity.String()).
		Float64("max_drawdown", result.MaxDrawdown).
		Float64("sharpe", result.SharpeRatio).
		Msg("Backtest complete")
	return result, nil
}

// summarize derives the performance metrics from the equity curve. The
// warmup segment of the curve is flat cash and is excluded, so metrics
// describe the traded period only.
func summarize(result *Result) {
	if len(result.Snapshots) == 0 {
		return
	}
	last := result.Snapshots[len(result.Snapshots)-1]
	result.FinalEquity = last.Equity
	result.CumulativeReturn = last.CumulativeReturn

	start := result.WarmupBars
	if start >= len(result.Snapshots) {
		start = 0
	}
	curve := make([]float64, 0, len(result.Snapshots)-start)
	for _, snap := range result.Snapshots[start:] {
		curve = append(curve, snap.Equity.InexactFloat64())
	}

	dailyReturns := formulas.Returns(curve)
	result.MaxDrawdown = formulas.MaxDrawdown(curve)
	result.AnnualizedReturn = formulas.AnnualizedReturn(curve)
	result.AnnualizedVol = formulas.RealizedVolatility(dailyReturns)
	result.SharpeRatio = formulas.SharpeRatio(dailyReturns, 0)

	for i := 1; i < len(result.Regimes); i++ {
		if result.Regimes[i].Regime.Cell != result.Regimes[i-1].Regime.Cell {
			result.RegimeChanges++
		}
	}
}
