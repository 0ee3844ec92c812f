package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/tradingzone/trade-sim/internal/tick"
	"github.com/tradingzone/trade-sim/internal/watchlist"
)

func (s *Server) handleStartFull(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if err := s.sim.StartFull(r.Context(), date); err != nil {
		s.log.Error("start full failed", zap.String("date", date), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start full simulation: "+err.Error())
		return
	}
	writeStatus(w, http.StatusOK, "full simulation started", map[string]any{"date": date})
}

func (s *Server) handleStartWatchlist(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cache, key, date := q.Get("cache"), q.Get("key"), q.Get("date")
	if err := s.sim.StartWatchlist(r.Context(), cache, key, date); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, watchlist.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, "failed to start watchlist simulation: "+err.Error())
		return
	}
	writeStatus(w, http.StatusOK, "watchlist simulation started",
		map[string]any{"cache": cache, "key": key, "date": date})
}

func (s *Server) handleStartUserWatchlists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, date := q.Get("userId"), q.Get("date")
	if err := s.sim.StartUserWatchlists(r.Context(), userID, date); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start user watchlists simulation: "+err.Error())
		return
	}
	writeStatus(w, http.StatusOK, "user watchlists simulation started",
		map[string]any{"userId": userID, "date": date})
}

func (s *Server) handleStartMultiUser(w http.ResponseWriter, r *http.Request) {
	var userIDs []string
	if err := json.NewDecoder(r.Body).Decode(&userIDs); err != nil {
		writeError(w, http.StatusBadRequest, "expected a JSON array of user ids")
		return
	}
	date := r.URL.Query().Get("date")
	if err := s.sim.StartMultiUserWatchlists(r.Context(), userIDs, date); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start multi-user simulation: "+err.Error())
		return
	}
	writeStatus(w, http.StatusOK, "multi-user watchlists simulation started",
		map[string]any{"userCount": len(userIDs), "date": date})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.sim.Stop()
	writeStatus(w, http.StatusOK, "simulation stopped", nil)
}

func (s *Server) handleClearFull(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if err := s.sim.ClearFull(r.Context(), date); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear full simulation: "+err.Error())
		return
	}
	writeStatus(w, http.StatusOK, "full simulation cleared", map[string]any{"date": date})
}

func (s *Server) handleClearWatchlist(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cache, key, date := q.Get("cache"), q.Get("key"), q.Get("date")
	if err := s.sim.ClearWatchlist(r.Context(), cache, key, date); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear watchlist simulation: "+err.Error())
		return
	}
	writeStatus(w, http.StatusOK, "watchlist simulation cleared",
		map[string]any{"cache": cache, "key": key, "date": date})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	report, err := s.sim.RunFullCleanup(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cleanup failed: "+err.Error())
		return
	}
	writeStatus(w, http.StatusOK, "full cleanup completed", map[string]any{"result": report})
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	info, err := s.sim.DebugSymbol(r.Context(), symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "debug failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleTicks returns a symbol's decoded ticks within an optional score
// range, ascending. from/to are epoch-millis; limit defaults to 100.
func (s *Server) handleTicks(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	from := parseFloatParam(r, "from", 0)
	to := parseFloatParam(r, "to", float64(time.Now().UnixMilli()))
	limit := parseIntParam(r, "limit", 100)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.store.RangeAsc(r.Context(), symbol, from, to, 0, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed: "+err.Error())
		return
	}

	ticks := make([]*tick.Tick, 0, len(rows))
	for _, raw := range rows {
		t, err := tick.Decode(raw)
		if err != nil {
			s.log.Warn("undecodable tick in range", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		ticks = append(ticks, t)
	}
	writeJSON(w, http.StatusOK, ticks)
}

func (s *Server) handleWatchlistGet(w http.ResponseWriter, r *http.Request) {
	cache, key := r.PathValue("cache"), r.PathValue("key")
	symbols, err := s.lists.Symbols(r.Context(), cache, key)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, watchlist.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cache": cache, "key": key, "symbols": symbols})
}

func (s *Server) handleWatchlistAdd(w http.ResponseWriter, r *http.Request) {
	cache, key, symbol := r.PathValue("cache"), r.PathValue("key"), r.PathValue("symbol")
	err := s.lists.AddSymbol(r.Context(), cache, key, symbol)
	switch {
	case errors.Is(err, watchlist.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, watchlist.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeStatus(w, http.StatusOK, "symbol added", map[string]any{"symbol": symbol})
	}
}

func (s *Server) handleWatchlistRemove(w http.ResponseWriter, r *http.Request) {
	cache, key, symbol := r.PathValue("cache"), r.PathValue("key"), r.PathValue("symbol")
	err := s.lists.RemoveSymbol(r.Context(), cache, key, symbol)
	switch {
	case errors.Is(err, watchlist.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeStatus(w, http.StatusOK, "symbol removed", map[string]any{"symbol": symbol})
	}
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, true)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, false)
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request, buy bool) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger disabled")
		return
	}
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	symbol := r.URL.Query().Get("symbol")
	qty := parseIntParam(r, "qty", 0)
	if symbol == "" || qty <= 0 {
		writeError(w, http.StatusBadRequest, "symbol and positive qty required")
		return
	}

	var err error
	if buy {
		err = s.ledger.RecordBuy(r.Context(), userID, symbol, qty)
	} else {
		err = s.ledger.RecordSell(r.Context(), userID, symbol, qty)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "trade failed: "+err.Error())
		return
	}
	writeStatus(w, http.StatusOK, "trade recorded",
		map[string]any{"symbol": symbol, "qty": qty})
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger disabled")
		return
	}
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	holdings, err := s.ledger.Holdings(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "holdings query failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, holdings)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger disabled")
		return
	}
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	txns, err := s.ledger.Transactions(r.Context(), userID, r.PathValue("symbol"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "transaction query failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if s.loader == nil {
		writeError(w, http.StatusServiceUnavailable, "bulk loader disabled")
		return
	}
	report, err := s.loader.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "bulk load failed: "+err.Error())
		return
	}
	writeStatus(w, http.StatusOK, "bulk load completed", map[string]any{"result": report})
}
