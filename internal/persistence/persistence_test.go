package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/akrotiri/helmsman/internal/database"
	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/akrotiri/helmsman/internal/engine"
	"github.com/akrotiri/helmsman/internal/strategy"
	"github.com/akrotiri/helmsman/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T, name string, profile database.Profile) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRegime() domain.RegimeContext {
	return domain.RegimeContext{
		Cell:            1,
		TrendLabel:      "BULL_STRONG",
		VolLabel:        "LOW",
		TrendScore:      0.63,
		VolZScore:       -0.41,
		ShockOverride:   false,
		BondTrend:       "BULL",
		StructuralTrend: "BULL",
	}
}

func TestTradeRepositoryRoundTrip(t *testing.T) {
	repo, err := NewTradeRepository(openDB(t, "ledger", database.ProfileLedger), logger.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	ts := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	trades := []domain.Trade{
		{
			ID: "t-1", Symbol: "TQQQ", Side: domain.SideBuy, Quantity: 120,
			Price: decimal.RequireFromString("45.37"), Timestamp: ts, Regime: sampleRegime(),
		},
		{
			ID: "t-2", Symbol: "QQQ", Side: domain.SideBuy, Quantity: 25,
			Price: decimal.RequireFromString("361.02"), Timestamp: ts, Regime: sampleRegime(),
		},
		{
			ID: "t-3", Symbol: "TQQQ", Side: domain.SideSell, Quantity: 40,
			Price: decimal.RequireFromString("48.11"), Timestamp: ts.AddDate(0, 0, 3),
			Regime: domain.RegimeContext{Cell: 4, TrendLabel: "SIDEWAYS", VolLabel: "HIGH", ShockOverride: true, BondTrend: "BEAR", StructuralTrend: "BULL"},
		},
	}
	require.NoError(t, repo.AppendAll(ctx, "run-a", trades))
	require.NoError(t, repo.Append(ctx, "run-b", domain.Trade{
		ID: "t-9", Symbol: "TMF", Side: domain.SideBuy, Quantity: 10,
		Price: decimal.RequireFromString("12.50"), Timestamp: ts, Regime: sampleRegime(),
	}))

	got, err := repo.ByRun(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "t-1", got[0].ID)
	assert.Equal(t, domain.SideSell, got[2].Side)
	assert.True(t, got[0].Price.Equal(trades[0].Price))
	assert.True(t, got[2].Timestamp.Equal(trades[2].Timestamp))
	assert.True(t, got[2].Regime.ShockOverride)
	assert.Equal(t, 4, got[2].Regime.Cell)

	// The ledger is append-only per id: re-inserting must fail.
	assert.Error(t, repo.Append(ctx, "run-a", trades[0]))
}

func TestSnapshotRepositoryRoundTrip(t *testing.T) {
	repo, err := NewSnapshotRepository(openDB(t, "state", database.ProfileStandard), logger.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	ts := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	snaps := []domain.PortfolioSnapshot{
		{
			Timestamp:        ts,
			Cash:             decimal.RequireFromString("100000"),
			Equity:           decimal.RequireFromString("100000"),
			CumulativeReturn: decimal.Zero,
			Positions:        map[string]domain.Position{},
			Prices:           map[string]decimal.Decimal{"TQQQ": decimal.RequireFromString("45.37")},
		},
		{
			Timestamp:        ts.AddDate(0, 0, 1),
			Cash:             decimal.RequireFromString("1234.55"),
			Equity:           decimal.RequireFromString("101456.15"),
			CumulativeReturn: decimal.RequireFromString("0.0145615"),
			Positions: map[string]domain.Position{
				"TQQQ": {Symbol: "TQQQ", Quantity: 2200, AverageCost: decimal.RequireFromString("45.55")},
			},
			Prices: map[string]decimal.Decimal{"TQQQ": decimal.RequireFromString("45.56")},
		},
	}
	require.NoError(t, repo.SaveAll(ctx, "run-a", snaps))

	got, err := repo.EquityCurve(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Equity.Equal(snaps[0].Equity))
	assert.True(t, got[1].Cash.Equal(snaps[1].Cash))
	assert.True(t, got[1].CumulativeReturn.Equal(snaps[1].CumulativeReturn))
	require.Contains(t, got[1].Positions, "TQQQ")
	assert.Equal(t, int64(2200), got[1].Positions["TQQQ"].Quantity)
	assert.True(t, got[1].Positions["TQQQ"].AverageCost.Equal(snaps[1].Positions["TQQQ"].AverageCost))
	assert.True(t, got[1].Prices["TQQQ"].Equal(snaps[1].Prices["TQQQ"]))

	// Upsert at the same bar index replaces, never duplicates.
	require.NoError(t, repo.Save(ctx, "run-a", 1, snaps[1]))
	got, err = repo.EquityCurve(ctx, "run-a")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestRegimeRepositoryRoundTrip(t *testing.T) {
	repo, err := NewRegimeRepository(openDB(t, "state", database.ProfileStandard), logger.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	ts := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []engine.RegimeRecord{
		{BarIndex: 40, Timestamp: ts, Regime: sampleRegime()},
		{BarIndex: 41, Timestamp: ts.AddDate(0, 0, 1), Regime: domain.RegimeContext{
			Cell: 6, TrendLabel: "BEAR_STRONG", VolLabel: "HIGH", TrendScore: -0.8,
			VolZScore: 2.1, BondTrend: "BEAR", StructuralTrend: "BEAR",
		}},
	}
	require.NoError(t, repo.SaveAll(ctx, "run-a", records))

	got, err := repo.History(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 40, got[0].BarIndex)
	assert.Equal(t, 1, got[0].Regime.Cell)
	assert.Equal(t, 6, got[1].Regime.Cell)
	assert.Equal(t, -0.8, got[1].Regime.TrendScore)
	assert.True(t, got[1].Timestamp.Equal(records[1].Timestamp))
}

func TestCheckpointRepositoryRoundTrip(t *testing.T) {
	repo, err := NewCheckpointRepository(openDB(t, "state", database.ProfileStandard), logger.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	cp := engine.Checkpoint{
		NextBar:     73,
		PrevTime:    time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		InitialCash: "100000",
		Strategy:    strategy.EngineState{BarIndex: 73, HasRegime: true},
	}
	require.NoError(t, repo.Save(ctx, "run-a", cp))

	got, found, err := repo.Load(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 73, got.NextBar)
	assert.Equal(t, "100000", got.InitialCash)
	assert.True(t, got.PrevTime.Equal(cp.PrevTime))
	assert.Equal(t, 73, got.Strategy.BarIndex)

	// Saving again replaces the previous checkpoint.
	cp.NextBar = 90
	cp.Strategy.BarIndex = 90
	require.NoError(t, repo.Save(ctx, "run-a", cp))
	got, found, err = repo.Load(ctx, "run-a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 90, got.NextBar)

	_, found, err = repo.Load(ctx, "run-z")
	require.NoError(t, err)
	assert.False(t, found)
}
