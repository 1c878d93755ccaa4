package marketdata

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/akrotiri/helmsman/internal/database"
	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/akrotiri/helmsman/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func makeBars(symbol string, n int, start float64) []domain.Bar {
	bars := make([]domain.Bar, n)
	price := start
	for i := 0; i < n; i++ {
		price *= 1.001
		bars[i] = domain.Bar{
			Symbol:    symbol,
			Timestamp: day(i),
			Open:      price * 0.999,
			High:      price * 1.002,
			Low:       price * 0.998,
			Close:     price,
			Volume:    100_000,
		}
	}
	return bars
}

func TestAlignedSourceValidation(t *testing.T) {
	series := map[string][]domain.Bar{
		"QQQ": makeBars("QQQ", 10, 300),
		"TLT": makeBars("TLT", 10, 100),
	}

	src, err := NewAlignedSource(series, []string{"QQQ", "TLT"})
	require.NoError(t, err)
	assert.Equal(t, 10, src.NumBars())

	bar, err := src.Bar("TLT", 3)
	require.NoError(t, err)
	assert.Equal(t, "TLT", bar.Symbol)
	assert.True(t, bar.Timestamp.Equal(day(3)))

	_, err = src.Bar("SPY", 0)
	assert.Error(t, err)
	_, err = src.Bar("QQQ", 10)
	assert.Error(t, err)
}

func TestAlignedSourceRejectsBadSeries(t *testing.T) {
	base := map[string][]domain.Bar{
		"QQQ": makeBars("QQQ", 10, 300),
		"TLT": makeBars("TLT", 10, 100),
	}

	t.Run("missing symbol", func(t *testing.T) {
		_, err := NewAlignedSource(base, []string{"QQQ", "SPY"})
		assert.Error(t, err)
	})

	t.Run("ragged lengths", func(t *testing.T) {
		series := map[string][]domain.Bar{
			"QQQ": base["QQQ"],
			"TLT": base["TLT"][:9],
		}
		_, err := NewAlignedSource(series, []string{"QQQ", "TLT"})
		assert.Error(t, err)
	})

	t.Run("misaligned timestamp", func(t *testing.T) {
		tlt := makeBars("TLT", 10, 100)
		tlt[4].Timestamp = tlt[4].Timestamp.Add(time.Hour)
		_, err := NewAlignedSource(map[string][]domain.Bar{"QQQ": base["QQQ"], "TLT": tlt}, []string{"QQQ", "TLT"})
		assert.Error(t, err)
	})

	t.Run("duplicate timestamp", func(t *testing.T) {
		qqq := makeBars("QQQ", 10, 300)
		tlt := makeBars("TLT", 10, 100)
		qqq[5].Timestamp = qqq[4].Timestamp
		tlt[5].Timestamp = tlt[4].Timestamp
		_, err := NewAlignedSource(map[string][]domain.Bar{"QQQ": qqq, "TLT": tlt}, []string{"QQQ", "TLT"})
		assert.Error(t, err)
	})
}

func TestAlignedSourceSlice(t *testing.T) {
	src, err := NewAlignedSource(map[string][]domain.Bar{"QQQ": makeBars("QQQ", 10, 300)}, []string{"QQQ"})
	require.NoError(t, err)

	prefix, err := src.Slice(4)
	require.NoError(t, err)
	assert.Equal(t, 4, prefix.NumBars())
	_, err = prefix.Bar("QQQ", 4)
	assert.Error(t, err)

	_, err = src.Slice(11)
	assert.Error(t, err)
}

func TestReadBarsCSV(t *testing.T) {
	input := strings.Join([]string{
		"date,open,high,low,close,volume",
		"2023-03-01,100.0,101.5,99.5,101.0,1200000",
		"2023-03-02,101.0,102.0,100.5,101.8,900000",
	}, "\n")

	bars, err := ReadBarsCSV(strings.NewReader(input), "QQQ")
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "QQQ", bars[0].Symbol)
	assert.Equal(t, 101.0, bars[0].Close)
	assert.True(t, bars[1].Timestamp.Equal(time.Date(2023, 3, 2, 0, 0, 0, 0, time.UTC)))
}

func TestReadBarsCSVRejectsBadRows(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"bad number", "2023-03-01,100,101,99,abc,1000"},
		{"bad date", "date,open,high,low,close,volume\nnot-a-date,100,101,99,100,1000"},
		{"high below low", "2023-03-01,100,99,101,100,1000"},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadBarsCSV(strings.NewReader(tc.input), "QQQ")
			assert.Error(t, err)
		})
	}
}

func TestBarRepositoryRoundTrip(t *testing.T) {
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "bars.db"),
		Name: "bars",
	})
	require.NoError(t, err)
	defer db.Close()

	repo, err := NewBarRepository(db, logger.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	qqq := makeBars("QQQ", 5, 300)
	tlt := makeBars("TLT", 5, 100)
	require.NoError(t, repo.SaveBars(ctx, qqq))
	require.NoError(t, repo.SaveBars(ctx, tlt))

	// Upsert: saving again must not duplicate rows.
	require.NoError(t, repo.SaveBars(ctx, qqq))

	got, err := repo.History(ctx, "QQQ")
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, qqq[0].Close, got[0].Close)
	assert.True(t, got[4].Timestamp.Equal(day(4)))

	latest, err := repo.LatestTimestamp(ctx, "QQQ")
	require.NoError(t, err)
	assert.True(t, latest.Equal(day(4)))

	latest, err = repo.LatestTimestamp(ctx, "SPY")
	require.NoError(t, err)
	assert.True(t, latest.IsZero())

	src, err := repo.LoadSource(ctx, []string{"QQQ", "TLT"})
	require.NoError(t, err)
	assert.Equal(t, 5, src.NumBars())
}
