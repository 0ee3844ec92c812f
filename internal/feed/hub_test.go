package feed

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradingzone/trade-sim/internal/store"
	"github.com/tradingzone/trade-sim/internal/tick"
)

func newTestHub(t *testing.T) (*Hub, store.TickStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	st := store.NewRedisTickStore(client)
	return NewHub(st, 50*time.Millisecond, zap.NewNop()), st
}

func seedTick(t *testing.T, st store.TickStore, symbol string, last float64) {
	t.Helper()
	tm, err := time.ParseInLocation(tick.Layout, "2025-01-01 09:00:00", time.Local)
	if err != nil {
		t.Fatal(err)
	}
	tk := &tick.Tick{
		TradDt:   tick.NewDateTime(tm),
		TckrSymb: symbol,
		LastPric: tick.Float(last),
	}
	payload, err := tick.Encode(tk)
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Append(context.Background(), symbol, tk.Score(), payload, store.Always); err != nil {
		t.Fatal(err)
	}
}

func TestSubscribeAndReceive(t *testing.T) {
	hub, st := newTestHub(t)
	seedTick(t, st, "ACME", 101.5)

	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(request{Action: "subscribe", Symbols: []string{"ACME"}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// The read loop applies the subscription asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame update
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Symbol != "ACME" {
		t.Errorf("frame symbol = %q", frame.Symbol)
	}

	tk, err := tick.Decode(string(frame.Tick))
	if err != nil {
		t.Fatalf("frame payload: %v", err)
	}
	if tk.LastPric == nil || *tk.LastPric != 101.5 {
		t.Errorf("frame price = %v, want 101.5", tk.LastPric)
	}
}

func TestUnsubscribeStopsFrames(t *testing.T) {
	c := &client{symbols: make(map[string]struct{})}

	c.apply(request{Action: "subscribe", Symbols: []string{"ACME", "NEWCO"}})
	if got := c.snapshot(); len(got) != 2 {
		t.Fatalf("snapshot = %v, want 2 symbols", got)
	}

	c.apply(request{Action: "unsubscribe", Symbols: []string{"ACME"}})
	got := c.snapshot()
	if len(got) != 1 || got[0] != "NEWCO" {
		t.Errorf("snapshot = %v, want [NEWCO]", got)
	}

	// Unknown actions are ignored.
	c.apply(request{Action: "noop", Symbols: []string{"WIDGET"}})
	if got := c.snapshot(); len(got) != 1 {
		t.Errorf("snapshot = %v after unknown action", got)
	}
}

func TestClientCountTracksDisconnects(t *testing.T) {
	hub, _ := newTestHub(t)

	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 1 {
		t.Fatal("client not registered")
	}

	conn.Close()
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 0 {
		t.Fatal("client not unregistered after close")
	}
}
