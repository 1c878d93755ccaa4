package strategy

import (
	"testing"
	"time"

	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/akrotiri/helmsman/internal/indicators"
	"github.com/akrotiri/helmsman/internal/regime"
	"github.com/akrotiri/helmsman/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastConfig shrinks every window so tests warm up in tens of bars.
func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Trend.OscillatorSmoothing = 3
	cfg.Trend.StrengthSmoothing = 5
	cfg.Structural = indicators.SMACrossConfig{FastWindow: 5, SlowWindow: 20}
	cfg.Vol.ShortWindow = 5
	cfg.Vol.BaselineWindow = 30
	cfg.Shock.Lookback = 3
	cfg.BondTrend = indicators.SMACrossConfig{FastWindow: 3, SlowWindow: 10}
	cfg.WarmupMargin = 2
	return cfg
}

func bar(symbol string, day int, close, volume float64) domain.Bar {
	return domain.Bar{
		Symbol:    symbol,
		Timestamp: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
		Open:      close,
		High:      close * 1.01,
		Low:       close * 0.99,
		Close:     close,
		Volume:    volume,
	}
}

func marketBar(i int, signalClose, bondClose float64) MarketBar {
	return MarketBar{
		Index:         i,
		Timestamp:     time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
		Signal:        bar("QQQ", i, signalClose, 1_000_000),
		BondReference: bar("TLT", i, bondClose, 500_000),
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := fastConfig()
	cfg.RebalanceThreshold = decimal.RequireFromString("0.9")
	_, err := New(cfg, logger.Nop())
	assert.Error(t, err)

	cfg = fastConfig()
	cfg.InitialCash = decimal.Zero
	_, err = New(cfg, logger.Nop())
	assert.Error(t, err)

	cfg = fastConfig()
	cfg.Vol.BaselineWindow = cfg.Vol.ShortWindow
	_, err = New(cfg, logger.Nop())
	assert.Error(t, err)
}

func TestAdvanceRejectsMalformedBars(t *testing.T) {
	s, err := New(fastConfig(), logger.Nop())
	require.NoError(t, err)

	mb := marketBar(0, 100, 100)
	mb.Signal.High = mb.Signal.Low - 1
	_, err = s.Advance(mb)
	assert.Error(t, err)

	mb = marketBar(0, 100, 100)
	mb.BondReference.Close = -5
	_, err = s.Advance(mb)
	assert.Error(t, err)
}

func TestNotReadyDuringWarmup(t *testing.T) {
	s, err := New(fastConfig(), logger.Nop())
	require.NoError(t, err)

	warmup := s.RequiredWarmupBars()
	require.Greater(t, warmup, 0)

	price := 100.0
	for i := 0; i < warmup; i++ {
		// Wiggle the price so realized vol is nonzero.
		if i%2 == 0 {
			price *= 1.004
		} else {
			price *= 0.998
		}
		signals, err := s.Advance(marketBar(i, price, 100))
		require.NoError(t, err)
		if i < warmup-s.Config().WarmupMargin-1 {
			assert.False(t, signals.Ready, "ready at bar %d inside hard lookback", i)
		}
	}
}

func TestRisingCalmSeriesClassifiesBullLow(t *testing.T) {
	s, err := New(fastConfig(), logger.Nop())
	require.NoError(t, err)

	price := 100.0
	bond := 100.0
	var last Signals
	for i := 0; i < 200; i++ {
		// Strictly rising with a slowly decaying alternating wiggle:
		// strong trend, and realized vol that keeps easing so its
		// z-score stays negative.
		swing := 0.003 * (1 - 0.001*float64(i))
		if i%2 == 0 {
			price *= 1.006 + swing
		} else {
			price *= 1.006 - swing
		}
		bond *= 1.001
		last, err = s.Advance(marketBar(i, price, bond))
		require.NoError(t, err)
	}

	require.True(t, last.Ready)
	assert.Equal(t, regime.TrendBullStrong, last.Regime.Trend)
	assert.Equal(t, regime.VolLow, last.Regime.Vol)
	assert.Equal(t, regime.CellBullLow, last.Regime.Cell)

	u := s.Config().Universe
	assert.True(t, last.Target.Weights[u.LeveragedLong].GreaterThan(decimal.Zero))
	assert.True(t, last.Target.Sum().Equal(decimal.NewFromInt(1)))
}

func TestVolCrushFiresShockOverride(t *testing.T) {
	s, err := New(fastConfig(), logger.Nop())
	require.NoError(t, err)

	price := 100.0
	step := 0
	advance := func(amplitude float64, bars int) Signals {
		var last Signals
		for i := 0; i < bars; i++ {
			// Slight wobble keeps the realized vol series from being
			// exactly constant, which would zero the z-score baseline.
			swing := amplitude * (1 + 0.1*float64(step%7)/7)
			if step%2 == 0 {
				price *= 1 + swing
			} else {
				price *= 1 - swing
			}
			var err error
			last, err = s.Advance(marketBar(step, price, 100))
			require.NoError(t, err)
			step++
		}
		return last
	}

	// Calm warmup, then a violent spike that flips the vol state High.
	advance(0.003, 60)
	spiked := advance(0.03, 12)
	require.True(t, spiked.Ready)
	require.Equal(t, regime.VolHigh, spiked.Regime.Vol)

	// Sharp collapse: realized vol falls far faster than the z-score
	// baseline adapts, so only the shock override can force Low.
	sawShock := false
	for i := 0; i < 15; i++ {
		last := advance(0.002, 1)
		if last.Indicators.Shock {
			sawShock = true
			assert.Equal(t, regime.VolLow, last.Regime.Vol)
			break
		}
	}
	assert.True(t, sawShock, "shock override never fired during the collapse")
}

func TestStateRoundTripIsDeterministic(t *testing.T) {
	cfg := fastConfig()
	a, err := New(cfg, logger.Nop())
	require.NoError(t, err)

	price := 100.0
	for i := 0; i < 80; i++ {
		if i%3 == 0 {
			price *= 0.996
		} else {
			price *= 1.005
		}
		_, err = a.Advance(marketBar(i, price, 100+float64(i)))
		require.NoError(t, err)
	}

	b, err := New(cfg, logger.Nop())
	require.NoError(t, err)
	b.Restore(a.State())

	for i := 80; i < 120; i++ {
		price *= 1.002
		sa, err := a.Advance(marketBar(i, price, 100+float64(i)))
		require.NoError(t, err)
		sb, err := b.Advance(marketBar(i, price, 100+float64(i)))
		require.NoError(t, err)

		assert.Equal(t, sa.Ready, sb.Ready, "bar %d", i)
		assert.Equal(t, sa.Regime, sb.Regime, "bar %d", i)
		assert.Equal(t, sa.Indicators, sb.Indicators, "bar %d", i)
	}
}
