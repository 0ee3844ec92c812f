// Package feed streams each subscribed symbol's latest tick to WebSocket
// clients on a fixed poll interval.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tradingzone/trade-sim/internal/store"
)

// request is the client→server control message.
type request struct {
	Action  string   `json:"action"` // "subscribe" | "unsubscribe"
	Symbols []string `json:"symbols"`
}

// update is the server→client tick frame. Tick carries the stored payload
// verbatim.
type update struct {
	Symbol string          `json:"symbol"`
	Tick   json.RawMessage `json:"tick"`
}

// Hub owns the client set and the broadcast poller.
type Hub struct {
	store    store.TickStore
	interval time.Duration
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn

	mu      sync.Mutex
	symbols map[string]struct{}
}

// NewHub creates a hub polling the store at the given interval.
func NewHub(st store.TickStore, interval time.Duration, log *zap.Logger) *Hub {
	return &Hub{
		store:    st,
		interval: interval,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handler upgrades the connection and services subscribe/unsubscribe
// messages until the client goes away.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		c := &client{conn: conn, symbols: make(map[string]struct{})}
		h.mu.Lock()
		h.clients[c] = struct{}{}
		h.mu.Unlock()
		h.log.Info("feed client connected", zap.String("remote", conn.RemoteAddr().String()))

		defer func() {
			h.mu.Lock()
			delete(h.clients, c)
			h.mu.Unlock()
			conn.Close()
			h.log.Info("feed client disconnected", zap.String("remote", conn.RemoteAddr().String()))
		}()

		for {
			var req request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			c.apply(req)
		}
	}
}

func (c *client) apply(req request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range req.Symbols {
		switch req.Action {
		case "subscribe":
			c.symbols[s] = struct{}{}
		case "unsubscribe":
			delete(c.symbols, s)
		}
	}
}

func (c *client) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	return out
}

// Run polls latest ticks for every subscribed symbol and fans them out.
// Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.broadcast(ctx)
		}
	}
}

func (h *Hub) broadcast(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	if len(clients) == 0 {
		return
	}

	// One store read per distinct symbol regardless of subscriber count.
	latest := make(map[string]string)
	for _, c := range clients {
		for _, symbol := range c.snapshot() {
			if _, done := latest[symbol]; done {
				continue
			}
			raw, err := h.store.Latest(ctx, symbol)
			if err != nil {
				h.log.Warn("feed poll failed", zap.String("symbol", symbol), zap.Error(err))
				continue
			}
			latest[symbol] = raw
		}
	}

	for _, c := range clients {
		for _, symbol := range c.snapshot() {
			raw := latest[symbol]
			if raw == "" {
				continue
			}
			frame := update{Symbol: symbol, Tick: json.RawMessage(raw)}
			if err := c.conn.WriteJSON(frame); err != nil {
				// Write failures end the client's read loop soon enough;
				// skip the rest of its symbols this round.
				break
			}
		}
	}
}
