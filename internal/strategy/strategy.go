package strategy

import (
	"fmt"
	"time"

	"github.com/akrotiri/helmsman/internal/allocation"
	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/akrotiri/helmsman/internal/indicators"
	"github.com/akrotiri/helmsman/internal/regime"
	"github.com/rs/zerolog"
)

// MarketBar is the per-bar market slice a strategy consumes: the signal
// series bar and the bond reference bar, aligned by index.
type MarketBar struct {
	Index         int        `json:"index"`
	Timestamp     time.Time  `json:"timestamp"`
	Signal        domain.Bar `json:"signal"`
	BondReference domain.Bar `json:"bond_reference"`
}

// Signals is the output of one strategy step. When Ready is false the
// indicators are still warming up and the regime and target fields carry
// no meaning; the execution loop must not trade.
type Signals struct {
	Ready      bool                `json:"ready"`
	Indicators indicators.Snapshot `json:"indicators"`
	Regime     regime.State        `json:"regime"`
	Target     allocation.Target   `json:"target"`
}

// Strategy is the capability contract shared by all strategy variants.
// Variants are selected by configuration, not by subclassing.
type Strategy interface {
	// Advance feeds one bar through the indicator engine and, once every
	// indicator is ready, classifies the regime and computes the target
	// allocation. Indicators advance even while not ready.
	Advance(bar MarketBar) (Signals, error)

	// RequiredWarmupBars returns the bar count below which the execution
	// loop must suppress trading.
	RequiredWarmupBars() int
}

// Tactical is the regime-cell allocation strategy. It owns the five
// indicator instances and the hysteresis memory (the previous regime);
// everything else it computes fresh per bar.
type Tactical struct {
	cfg Config
	log zerolog.Logger

	trendFilter *indicators.TrendFilter
	structural  *indicators.SMACross
	volRegime   *indicators.VolRegimeDetector
	volShock    *indicators.VolShockDetector
	bondTrend   *indicators.SMACross
	allocator   *allocation.Engine

	barIndex   int
	prevRegime regime.State // Vol is VolUnset before the first classification
	hasRegime  bool
}

// New constructs the strategy selected by the configuration. Construction
// fails fast on any invalid parameter; no bar is ever processed by a
// half-valid strategy.
func New(cfg Config, log zerolog.Logger) (*Tactical, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy config: %w", err)
	}

	trendFilter, err := indicators.NewTrendFilter(cfg.Trend)
	if err != nil {
		return nil, err
	}
	structural, err := indicators.NewSMACross(cfg.Structural)
	if err != nil {
		return nil, err
	}
	volRegime, err := indicators.NewVolRegimeDetector(cfg.Vol)
	if err != nil {
		return nil, err
	}
	volShock, err := indicators.NewVolShockDetector(cfg.Shock)
	if err != nil {
		return nil, err
	}
	bondTrend, err := indicators.NewSMACross(cfg.BondTrend)
	if err != nil {
		return nil, err
	}
	allocator, err := allocation.NewEngine(cfg.Allocation, cfg.Universe, log)
	if err != nil {
		return nil, err
	}

	return &Tactical{
		cfg:         cfg,
		log:         log.With().Str("component", "strategy").Logger(),
		trendFilter: trendFilter,
		structural:  structural,
		volRegime:   volRegime,
		volShock:    volShock,
		bondTrend:   bondTrend,
		allocator:   allocator,
	}, nil
}

// Config returns the validated configuration the strategy runs with.
func (t *Tactical) Config() Config {
	return t.cfg
}

// RequiredWarmupBars implements Strategy.
func (t *Tactical) RequiredWarmupBars() int {
	return t.cfg.RequiredWarmupBars()
}

// Advance implements Strategy. It uses only the bar passed in and state
// accumulated from strictly earlier bars; nothing here can look ahead.
func (t *Tactical) Advance(bar MarketBar) (Signals, error) {
	if err := bar.Signal.Validate(); err != nil {
		return Signals{}, fmt.Errorf("signal bar: %w", err)
	}
	if err := bar.BondReference.Validate(); err != nil {
		return Signals{}, fmt.Errorf("bond reference bar: %w", err)
	}

	t.trendFilter.Update(bar.Signal.Close, bar.Signal.Volume)
	t.structural.Update(bar.Signal.Close)
	t.volRegime.Update(bar.Signal.Close)
	if rv, ok := t.volRegime.RealizedVol(); ok {
		t.volShock.Observe(rv)
	}
	t.bondTrend.Update(bar.BondReference.Close)
	t.barIndex++

	snapshot := t.snapshot()
	signals := Signals{Indicators: snapshot}
	if !snapshot.Ready() {
		return signals, nil
	}

	prevVol := regime.VolUnset
	if t.hasRegime {
		prevVol = t.prevRegime.Vol
	}
	state := regime.Classify(regime.Inputs{
		TrendScore: snapshot.TrendScore,
		Structural: snapshot.Structural,
		PrevVol:    prevVol,
		VolZ:       snapshot.VolZ,
		VolZValid:  snapshot.VolZValid,
		Shock:      snapshot.Shock,
	}, t.cfg.Thresholds)

	target, err := t.allocator.Target(state.Cell, snapshot.BondTrend)
	if err != nil {
		return Signals{}, err
	}

	if !t.hasRegime || state.Cell != t.prevRegime.Cell {
		t.log.Info().
			Int("bar", t.barIndex-1).
			Int("cell", state.Cell).
			Str("trend", string(state.Trend)).
			Str("vol", string(state.Vol)).
			Float64("trend_score", snapshot.TrendScore).
			Float64("vol_z", snapshot.VolZ).
			Bool("shock", snapshot.Shock).
			Msg("Regime changed")
	}

	t.prevRegime = state
	t.hasRegime = true

	signals.Ready = true
	signals.Regime = state
	signals.Target = target
	return signals, nil
}

func (t *Tactical) snapshot() indicators.Snapshot {
	var snap indicators.Snapshot

	snap.TrendScore, snap.TrendReady = t.trendFilter.Strength()
	snap.Structural, snap.StructuralReady = t.structural.Direction()
	if rv, ok := t.volRegime.RealizedVol(); ok {
		snap.RealizedVol = rv
	}
	snap.VolZ, snap.VolZValid, snap.VolReady = t.volRegime.ZScore()
	snap.Shock, snap.ShockReady = t.volShock.Shocked()
	snap.BondTrend, snap.BondReady = t.bondTrend.Direction()

	return snap
}

// RegimeContext returns the audit context for trades emitted against the
// given signals.
func RegimeContext(signals Signals) domain.RegimeContext {
	return domain.RegimeContext{
		Cell:            signals.Regime.Cell,
		TrendLabel:      string(signals.Regime.Trend),
		VolLabel:        string(signals.Regime.Vol),
		TrendScore:      signals.Indicators.TrendScore,
		VolZScore:       signals.Indicators.VolZ,
		ShockOverride:   signals.Indicators.Shock,
		BondTrend:       string(signals.Indicators.BondTrend),
		StructuralTrend: string(signals.Indicators.Structural),
	}
}
