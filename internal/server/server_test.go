package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/akrotiri/helmsman/internal/allocation"
	"github.com/akrotiri/helmsman/internal/database"
	"github.com/akrotiri/helmsman/internal/domain"
	"github.com/akrotiri/helmsman/internal/engine"
	"github.com/akrotiri/helmsman/internal/persistence"
	"github.com/akrotiri/helmsman/internal/regime"
	"github.com/akrotiri/helmsman/internal/strategy"
	"github.com/akrotiri/helmsman/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type stubSignals struct {
	signals strategy.Signals
}

func (s *stubSignals) LastSignals() strategy.Signals { return s.signals }

func newTestServer(t *testing.T, signals SignalProvider) *Server {
	t.Helper()
	dir := t.TempDir()
	open := func(name string, profile database.Profile) *database.DB {
		db, err := database.New(database.Config{Path: filepath.Join(dir, name+".db"), Profile: profile, Name: name})
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return db
	}

	trades, err := persistence.NewTradeRepository(open("ledger", database.ProfileLedger), logger.Nop())
	require.NoError(t, err)
	stateDB := open("state", database.ProfileStandard)
	snapshots, err := persistence.NewSnapshotRepository(stateDB, logger.Nop())
	require.NoError(t, err)
	regimes, err := persistence.NewRegimeRepository(stateDB, logger.Nop())
	require.NoError(t, err)

	srv := New(Config{
		Log:       logger.Nop(),
		Port:      0,
		RunID:     "run-a",
		Trades:    trades,
		Snapshots: snapshots,
		Regimes:   regimes,
		Signals:   signals,
	})

	ts := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, trades.Append(ctx, "run-a", domain.Trade{
		ID: "t-1", Symbol: "TQQQ", Side: domain.SideBuy, Quantity: 100,
		Price: decimal.RequireFromString("45.00"), Timestamp: ts,
		Regime: domain.RegimeContext{Cell: 1, TrendLabel: "BULL_STRONG", VolLabel: "LOW", BondTrend: "BULL", StructuralTrend: "BULL"},
	}))
	require.NoError(t, snapshots.Save(ctx, "run-a", 0, domain.PortfolioSnapshot{
		Timestamp:        ts,
		Cash:             decimal.RequireFromString("100000"),
		Equity:           decimal.RequireFromString("100000"),
		CumulativeReturn: decimal.Zero,
		Positions:        map[string]domain.Position{},
		Prices:           map[string]decimal.Decimal{},
	}))
	require.NoError(t, regimes.SaveAll(ctx, "run-a", []engine.RegimeRecord{
		{BarIndex: 40, Timestamp: ts, Regime: domain.RegimeContext{Cell: 1, TrendLabel: "BULL_STRONG", VolLabel: "LOW", BondTrend: "BULL", StructuralTrend: "BULL"}},
	}))
	return srv
}

func get(t *testing.T, srv *Server, path string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	code, body := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestTradesEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	code, body := get(t, srv, "/api/trades")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "run-a", body["run_id"])
	trades := body["trades"].([]interface{})
	require.Len(t, trades, 1)
	trade := trades[0].(map[string]interface{})
	assert.Equal(t, "TQQQ", trade["symbol"])
}

func TestEquityEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	code, body := get(t, srv, "/api/equity")
	require.Equal(t, http.StatusOK, code)
	snaps := body["snapshots"].([]interface{})
	assert.Len(t, snaps, 1)
}

func TestRegimesEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	code, body := get(t, srv, "/api/regimes")
	require.Equal(t, http.StatusOK, code)
	regimes := body["regimes"].([]interface{})
	require.Len(t, regimes, 1)

	// Unknown runs return an empty history, not an error.
	code, body = get(t, srv, "/api/regimes?run=run-z")
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["regimes"])
}

func TestAllocationEndpoint(t *testing.T) {
	t.Run("no live run", func(t *testing.T) {
		srv := newTestServer(t, nil)
		code, _ := get(t, srv, "/api/allocation")
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})

	t.Run("not ready", func(t *testing.T) {
		srv := newTestServer(t, &stubSignals{})
		code, body := get(t, srv, "/api/allocation")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, false, body["ready"])
	})

	t.Run("ready", func(t *testing.T) {
		signals := strategy.Signals{
			Ready:  true,
			Regime: regime.State{Cell: 1, Trend: regime.TrendBullStrong, Vol: regime.VolLow},
			Target: allocation.Target{
				Cell: 1,
				Weights: map[string]decimal.Decimal{
					"TQQQ": decimal.RequireFromString("0.9"),
					"QQQ":  decimal.RequireFromString("0.1"),
				},
				Cash: decimal.Zero,
			},
		}
		srv := newTestServer(t, &stubSignals{signals: signals})
		code, body := get(t, srv, "/api/allocation")
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, true, body["ready"])
		assert.Equal(t, float64(1), body["cell"])
		weights := body["weights"].(map[string]interface{})
		assert.Equal(t, "0.9", weights["TQQQ"])
	})
}

func TestRegimeStreamDeliversRecords(t *testing.T) {
	srv := newTestServer(t, nil)
	httpSrv := httptest.NewServer(srv.Router())
	defer httpSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + httpSrv.URL[len("http"):] + "/api/regimes/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the handler a moment to register the subscriber.
	require.Eventually(t, func() bool {
		srv.Stream().mu.Lock()
		defer srv.Stream().mu.Unlock()
		return len(srv.Stream().subscribers) == 1
	}, 2*time.Second, 10*time.Millisecond)

	published := engine.RegimeRecord{
		BarIndex:  42,
		Timestamp: time.Date(2023, 6, 5, 0, 0, 0, 0, time.UTC),
		Regime:    domain.RegimeContext{Cell: 2, TrendLabel: "BULL_STRONG", VolLabel: "HIGH"},
	}
	srv.Stream().Publish(published)

	var got engine.RegimeRecord
	require.NoError(t, wsjson.Read(ctx, conn, &got))
	assert.Equal(t, 42, got.BarIndex)
	assert.Equal(t, 2, got.Regime.Cell)
}
