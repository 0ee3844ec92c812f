// Package api exposes the REST surface: simulation control, tick queries,
// watchlists, holdings, and the bulk loader trigger.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/tradingzone/trade-sim/internal/auth"
	"github.com/tradingzone/trade-sim/internal/ledger"
	"github.com/tradingzone/trade-sim/internal/load"
	"github.com/tradingzone/trade-sim/internal/sim"
	"github.com/tradingzone/trade-sim/internal/store"
	"github.com/tradingzone/trade-sim/internal/watchlist"
)

// Server wires handlers to their collaborators. Ledger, auth, and loader
// are optional; their endpoints answer 503 when disabled.
type Server struct {
	sim    *sim.Simulator
	store  store.TickStore
	lists  *watchlist.Service
	ledger *ledger.Ledger
	auth   *auth.Client
	loader *load.Loader
	log    *zap.Logger
}

// NewServer creates the API server.
func NewServer(s *sim.Simulator, st store.TickStore, lists *watchlist.Service, ldg *ledger.Ledger, ac *auth.Client, ldr *load.Loader, log *zap.Logger) *Server {
	return &Server{sim: s, store: st, lists: lists, ledger: ldg, auth: ac, loader: ldr, log: log}
}

// Register attaches API routes to the given mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sim/start-full", s.handleStartFull)
	mux.HandleFunc("POST /api/sim/start-watchlist", s.handleStartWatchlist)
	mux.HandleFunc("POST /api/sim/start-user-watchlists", s.handleStartUserWatchlists)
	mux.HandleFunc("POST /api/sim/start-multi-user-watchlists", s.handleStartMultiUser)
	mux.HandleFunc("POST /api/sim/stop", s.handleStop)
	mux.HandleFunc("POST /api/sim/clear-full", s.handleClearFull)
	mux.HandleFunc("POST /api/sim/clear-watchlist", s.handleClearWatchlist)
	mux.HandleFunc("POST /api/sim/cleanup", s.handleCleanup)
	mux.HandleFunc("GET /api/sim/debug/{symbol}", s.handleDebug)

	mux.HandleFunc("GET /api/ticks/{symbol}", s.handleTicks)

	mux.HandleFunc("GET /api/watchlist/{cache}/{key}", s.handleWatchlistGet)
	mux.HandleFunc("POST /api/watchlist/{cache}/{key}/{symbol}", s.handleWatchlistAdd)
	mux.HandleFunc("DELETE /api/watchlist/{cache}/{key}/{symbol}", s.handleWatchlistRemove)

	mux.HandleFunc("POST /api/holdings/buy", s.handleBuy)
	mux.HandleFunc("POST /api/holdings/sell", s.handleSell)
	mux.HandleFunc("GET /api/holdings", s.handleHoldings)
	mux.HandleFunc("GET /api/transactions/{symbol}", s.handleTransactions)

	mux.HandleFunc("POST /api/load", s.handleLoad)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeStatus writes the SUCCESS/ERROR envelope the original callers expect.
func writeStatus(w http.ResponseWriter, status int, message string, extra map[string]any) {
	body := map[string]any{"message": message}
	if status < 400 {
		body["status"] = "SUCCESS"
	} else {
		body["status"] = "ERROR"
	}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeStatus(w, status, msg, nil)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// parseFloatParam parses a float query parameter with a default value.
func parseFloatParam(r *http.Request, key string, def float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// userID resolves the acting trading user: an explicit userId parameter
// wins, otherwise the auth_token cookie is resolved through the auth API.
func (s *Server) userID(w http.ResponseWriter, r *http.Request) (int, bool) {
	if v := r.URL.Query().Get("userId"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid userId")
			return 0, false
		}
		return id, true
	}

	cookie, err := r.Cookie("auth_token")
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "missing userId and auth_token")
		return 0, false
	}
	if s.auth == nil {
		writeError(w, http.StatusServiceUnavailable, "auth lookup disabled")
		return 0, false
	}

	id, err := s.auth.TradingUserID(r.Context(), cookie.Value)
	if err != nil {
		s.log.Warn("auth resolution failed", zap.Error(err))
		writeError(w, http.StatusUnauthorized, "could not resolve user")
		return 0, false
	}
	return id, true
}
