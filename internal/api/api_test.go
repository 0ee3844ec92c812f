package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradingzone/trade-sim/internal/engine"
	"github.com/tradingzone/trade-sim/internal/sim"
	"github.com/tradingzone/trade-sim/internal/store"
	"github.com/tradingzone/trade-sim/internal/tick"
	"github.com/tradingzone/trade-sim/internal/watchlist"
)

func newTestMux(t *testing.T) (*http.ServeMux, store.TickStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := zap.NewNop()
	st := store.NewRedisTickStore(client)
	lists := watchlist.NewService(client, log)
	model := engine.NewPriceModel(engine.NewRNG(42))

	cfg := sim.DefaultConfig()
	cfg.CreateInterval = time.Hour
	cfg.RetractInterval = time.Hour
	simulator := sim.New(cfg, st, lists, model, nil, log)
	t.Cleanup(simulator.Stop)

	mux := http.NewServeMux()
	NewServer(simulator, st, lists, nil, nil, nil, log).Register(mux)
	return mux, st, mr
}

func seedTick(t *testing.T, st store.TickStore, symbol, at string, last float64) {
	t.Helper()
	tm, err := time.ParseInLocation(tick.Layout, at, time.Local)
	if err != nil {
		t.Fatalf("parse %q: %v", at, err)
	}
	tk := &tick.Tick{
		TradDt:   tick.NewDateTime(tm),
		BizDt:    tick.NewDateTime(tm),
		TckrSymb: symbol,
		LastPric: tick.Float(last),
	}
	payload, err := tick.Encode(tk)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := st.Append(context.Background(), symbol, tk.Score(), payload, store.Always); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.SetSymbolDate(context.Background(), symbol, at); err != nil {
		t.Fatalf("registry: %v", err)
	}
}

func do(t *testing.T, mux *http.ServeMux, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return m
}

func TestStartAndStop(t *testing.T) {
	mux, st, _ := newTestMux(t)
	seedTick(t, st, "ACME", "2025-01-01 09:00:00", 100)

	w := do(t, mux, http.MethodPost, "/api/sim/start-full?date=2025-01-01+00:00:00", "")
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["status"] != "SUCCESS" {
		t.Errorf("status = %v, want SUCCESS", body["status"])
	}
	if body["date"] != "2025-01-01 00:00:00" {
		t.Errorf("date = %v", body["date"])
	}

	w = do(t, mux, http.MethodPost, "/api/sim/stop", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stop status = %d", w.Code)
	}
	if decodeBody(t, w)["status"] != "SUCCESS" {
		t.Error("stop did not report SUCCESS")
	}
}

func TestStartWatchlistNotFound(t *testing.T) {
	mux, _, _ := newTestMux(t)

	w := do(t, mux, http.MethodPost, "/api/sim/start-watchlist?cache=WatchLists&key=missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if decodeBody(t, w)["status"] != "ERROR" {
		t.Error("error response missing ERROR status")
	}
}

func TestStartMultiUserRejectsBadBody(t *testing.T) {
	mux, _, _ := newTestMux(t)

	w := do(t, mux, http.MethodPost, "/api/sim/start-multi-user-watchlists", `{"not":"an array"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestTicksQuery(t *testing.T) {
	mux, st, _ := newTestMux(t)
	seedTick(t, st, "ACME", "2025-01-01 09:00:00", 100)
	seedTick(t, st, "ACME", "2025-01-01 09:05:00", 101)

	w := do(t, mux, http.MethodGet, "/api/ticks/ACME", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var ticks []tick.Tick
	if err := json.Unmarshal(w.Body.Bytes(), &ticks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("got %d ticks, want 2", len(ticks))
	}
	if *ticks[0].LastPric != 100 || *ticks[1].LastPric != 101 {
		t.Errorf("ticks out of order: %v %v", *ticks[0].LastPric, *ticks[1].LastPric)
	}

	w = do(t, mux, http.MethodGet, "/api/ticks/ACME?limit=1", "")
	if err := json.Unmarshal(w.Body.Bytes(), &ticks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(ticks) != 1 {
		t.Errorf("limit ignored: got %d ticks", len(ticks))
	}

	w = do(t, mux, http.MethodGet, "/api/ticks/GHOST", "")
	if w.Code != http.StatusOK {
		t.Fatalf("unknown symbol status = %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("unknown symbol body = %s, want []", w.Body.String())
	}
}

func TestWatchlistEndpoints(t *testing.T) {
	mux, _, mr := newTestMux(t)
	mr.HSet("WatchLists", "tech", "ACME")

	w := do(t, mux, http.MethodGet, "/api/watchlist/WatchLists/tech", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = do(t, mux, http.MethodPost, "/api/watchlist/WatchLists/tech/NEWCO", "")
	if w.Code != http.StatusOK {
		t.Fatalf("add status = %d, body %s", w.Code, w.Body.String())
	}
	if got := mr.HGet("WatchLists", "tech"); got != "ACME,NEWCO" {
		t.Errorf("stored = %q", got)
	}

	w = do(t, mux, http.MethodPost, "/api/watchlist/WatchLists/tech/NEWCO", "")
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate add status = %d, want 409", w.Code)
	}

	w = do(t, mux, http.MethodDelete, "/api/watchlist/WatchLists/tech/ACME", "")
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d", w.Code)
	}

	w = do(t, mux, http.MethodGet, "/api/watchlist/WatchLists/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing list status = %d, want 404", w.Code)
	}
}

func TestDisabledCollaborators(t *testing.T) {
	mux, _, _ := newTestMux(t)

	for _, tc := range []struct {
		method string
		target string
	}{
		{http.MethodPost, "/api/holdings/buy?userId=1&symbol=ACME&qty=5"},
		{http.MethodGet, "/api/holdings?userId=1"},
		{http.MethodGet, "/api/transactions/ACME?userId=1"},
		{http.MethodPost, "/api/load"},
	} {
		w := do(t, mux, tc.method, tc.target, "")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s status = %d, want 503", tc.method, tc.target, w.Code)
		}
	}
}

func TestCleanupEndpoint(t *testing.T) {
	mux, st, _ := newTestMux(t)
	seedTick(t, st, "ACME", "2025-01-01 09:00:00", 100)

	w := do(t, mux, http.MethodPost, "/api/sim/cleanup", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["status"] != "SUCCESS" {
		t.Errorf("status = %v", body["status"])
	}
	if body["result"] == nil {
		t.Error("response missing cleanup result")
	}
}

func TestDebugEndpoint(t *testing.T) {
	mux, st, _ := newTestMux(t)
	seedTick(t, st, "ACME", "2025-01-01 09:00:00", 100)

	w := do(t, mux, http.MethodGet, "/api/sim/debug/ACME", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["symbol"] != "ACME" || body["total"] != float64(1) {
		t.Errorf("debug body = %v", body)
	}
}
