// Package sim owns the synthetic tick simulation session: the start/stop
// state machine, the recurring create and retract jobs, and the one-shot
// cleanup scans.
package sim

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tradingzone/trade-sim/internal/engine"
	"github.com/tradingzone/trade-sim/internal/publish"
	"github.com/tradingzone/trade-sim/internal/store"
	"github.com/tradingzone/trade-sim/internal/tick"
	"github.com/tradingzone/trade-sim/internal/universe"
	"github.com/tradingzone/trade-sim/internal/watchlist"
)

// shadowOffset separates a day's synthetic "live" tick from the base tick it
// was cloned from. The retract job and the cleanup scans key off the same
// offset.
const shadowOffset = 30 * time.Second

// Config holds the scheduling knobs. The create and retract intervals are
// independent on purpose: the gap between them is the staleness window a
// shadow tick can be visible for, and deployments tune it.
type Config struct {
	CreateInterval  time.Duration
	RetractInterval time.Duration
	BatchSize       int
	BatchPause      time.Duration
	Policy          store.ConflictPolicy
	Precision       tick.Precision
}

// DefaultConfig mirrors the historical deployment values.
func DefaultConfig() Config {
	return Config{
		CreateInterval:  5 * time.Second,
		RetractInterval: 120 * time.Second,
		BatchSize:       1000,
		BatchPause:      5 * time.Millisecond,
		Policy:          store.InsertIfLower,
		Precision:       tick.DefaultPrecision,
	}
}

// Simulator is the single-flight simulation session owner. At most one
// session runs at a time; starting while running restarts.
type Simulator struct {
	cfg   Config
	store store.TickStore
	lists *watchlist.Service
	model *engine.PriceModel
	pub   publish.Publisher
	log   *zap.Logger

	tracker *universe.Tracker
	running atomic.Bool

	mu     sync.Mutex // guards session transitions
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an idle simulator.
func New(cfg Config, st store.TickStore, lists *watchlist.Service, model *engine.PriceModel, pub publish.Publisher, log *zap.Logger) *Simulator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if pub == nil {
		pub = publish.Nop{}
	}
	return &Simulator{
		cfg:     cfg,
		store:   st,
		lists:   lists,
		model:   model,
		pub:     pub,
		log:     log,
		tracker: universe.NewTracker(),
	}
}

// Running reports whether a session is active.
func (s *Simulator) Running() bool {
	return s.running.Load()
}

// StartFull begins a session over every symbol in the registry.
func (s *Simulator) StartFull(ctx context.Context, date string) error {
	s.log.Info("starting full simulation", zap.String("date", date))
	s.restartGate()

	symbols, err := s.store.Symbols(ctx)
	if err != nil {
		return err
	}
	s.tracker.Activate(symbols, date)
	s.begin(date)

	s.log.Info("full simulation started", zap.Int("symbols", len(symbols)))
	return nil
}

// StartWatchlist begins a session over one named watchlist.
func (s *Simulator) StartWatchlist(ctx context.Context, cache, key, date string) error {
	s.log.Info("starting watchlist simulation",
		zap.String("cache", cache), zap.String("key", key), zap.String("date", date))
	s.restartGate()

	symbols, err := s.lists.Symbols(ctx, cache, key)
	if err != nil {
		return err
	}
	s.tracker.ActivateWatch(symbols, date)
	s.begin(date)

	s.log.Info("watchlist simulation started", zap.Int("symbols", len(symbols)))
	return nil
}

// StartUserWatchlists begins a session over the union of one user's lists.
func (s *Simulator) StartUserWatchlists(ctx context.Context, userID, date string) error {
	s.log.Info("starting user watchlists simulation",
		zap.String("userId", userID), zap.String("date", date))
	s.restartGate()

	lists, err := s.lists.UserWatchlists(ctx, userID)
	if err != nil {
		return err
	}
	total := 0
	for _, symbols := range lists {
		s.tracker.ActivateWatch(symbols, date)
		total += len(symbols)
	}
	s.begin(date)

	s.log.Info("user watchlists simulation started",
		zap.String("userId", userID), zap.Int("watchlists", len(lists)), zap.Int("symbols", total))
	return nil
}

// StartMultiUserWatchlists begins a session over several users' lists.
// A failing user is logged and skipped; the rest still start.
func (s *Simulator) StartMultiUserWatchlists(ctx context.Context, userIDs []string, date string) error {
	s.log.Info("starting multi-user watchlists simulation",
		zap.Int("users", len(userIDs)), zap.String("date", date))
	s.restartGate()

	users := 0
	for _, userID := range userIDs {
		lists, err := s.lists.UserWatchlists(ctx, userID)
		if err != nil {
			s.log.Error("skipping user watchlists", zap.String("userId", userID), zap.Error(err))
			continue
		}
		for _, symbols := range lists {
			s.tracker.ActivateWatch(symbols, date)
		}
		users++
	}
	s.begin(date)

	s.log.Info("multi-user watchlists simulation started",
		zap.Int("users", users), zap.Int("symbols", s.tracker.Size()))
	return nil
}

// Stop halts the session and clears the universe. Safe to call when idle.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// restartGate implements the "no resume, only restart" contract: a start
// while running stops the previous session first.
func (s *Simulator) restartGate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		s.log.Warn("simulation already running, stopping previous session")
		s.stopLocked()
	}
}

func (s *Simulator) stopLocked() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.tracker.Clear()
	s.log.Info("simulation stopped")
}

// begin flips the run flag and schedules the two recurring jobs. A lost CAS
// means another caller got there first; that session wins.
func (s *Simulator) begin(date string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("simulation already running, skipping start")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go s.recur(ctx, s.cfg.CreateInterval, date, s.createCycle)
	go s.recur(ctx, s.cfg.RetractInterval, date, s.retractCycle)

	s.log.Info("scheduled simulation jobs",
		zap.Duration("createInterval", s.cfg.CreateInterval),
		zap.Duration("retractInterval", s.cfg.RetractInterval))
}

// recur runs body immediately and then with a fixed delay between the end of
// one invocation and the start of the next, until cancelled.
func (s *Simulator) recur(ctx context.Context, interval time.Duration, date string, body func(context.Context, string)) {
	defer s.wg.Done()
	for {
		body(ctx, date)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// createCycle is one invocation of the create job: snapshot the universe and
// write one shadow tick per symbol, in throttled batches.
func (s *Simulator) createCycle(ctx context.Context, date string) {
	if !s.running.Load() {
		return
	}

	symbols := s.tracker.Snapshot()
	start := time.Now()
	processed := 0

	for i := 0; i < len(symbols); i += s.cfg.BatchSize {
		end := min(i+s.cfg.BatchSize, len(symbols))
		for _, symbol := range symbols[i:end] {
			s.createTick(ctx, symbol, date)
			processed++
		}

		// Throttle between batches to avoid bursting the store.
		if end < len(symbols) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.BatchPause):
			}
		}
	}

	s.log.Info("create cycle completed",
		zap.Int("symbols", processed), zap.Duration("took", time.Since(start)))
}

// createTick writes one symbol's shadow tick. Every failure is absorbed here
// so one symbol can't take down the batch.
func (s *Simulator) createTick(ctx context.Context, symbol, date string) {
	dayStart := s.parseScore(date, 0)
	dayEnd := s.parseScore(date, 24*time.Hour)

	rows, err := s.store.RangeAsc(ctx, symbol, dayStart, dayEnd, 0, 1)
	if err != nil {
		s.log.Warn("tick lookup failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	if len(rows) > 0 {
		found, err := tick.Decode(rows[0])
		if err != nil {
			s.log.Warn("skipping undecodable tick", zap.String("symbol", symbol), zap.Error(err))
			return
		}
		if found.LastPric == nil {
			s.log.Warn("tick has no last price", zap.String("symbol", symbol))
			return
		}

		next := found.Clone()
		next.LastPric = tick.Float(s.model.NextPrice(*found.LastPric))
		if !tick.ApplyChange(next, s.cfg.Precision) {
			s.log.Warn("change fields unavailable", zap.String("symbol", symbol))
		}

		score := float64(found.TradDt.Add(shadowOffset).UnixMilli())
		s.append(ctx, symbol, score, next)
		return
	}

	// Nothing for the requested day: carry the most recent tick of any date
	// forward as a base entry at the day's start.
	raw, err := s.store.Latest(ctx, symbol)
	if err != nil {
		s.log.Warn("latest tick lookup failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if raw == "" {
		s.log.Error("symbol has no ticks at all", zap.String("symbol", symbol))
		return
	}
	template, err := tick.Decode(raw)
	if err != nil {
		s.log.Warn("skipping undecodable template tick", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	day, err := ParseDate(date)
	if err != nil {
		s.log.Error("unparseable simulation date", zap.String("date", date), zap.Error(err))
		return
	}

	base := template.Clone()
	base.TradDt = tick.NewDateTime(day)
	base.BizDt = tick.NewDateTime(day)
	if !tick.ApplyChange(base, s.cfg.Precision) {
		s.log.Warn("change fields unavailable", zap.String("symbol", symbol))
	}

	s.log.Info("creating base tick from template",
		zap.String("symbol", symbol), zap.String("date", date))
	s.append(ctx, symbol, float64(day.UnixMilli()), base)
}

func (s *Simulator) append(ctx context.Context, symbol string, score float64, t *tick.Tick) {
	payload, err := tick.Encode(t)
	if err != nil {
		s.log.Error("tick encode failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if err := s.store.Append(ctx, symbol, score, payload, s.cfg.Policy); err != nil {
		s.log.Warn("tick append failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if err := s.pub.Publish(ctx, symbol, []byte(payload)); err != nil {
		s.log.Warn("tick publish failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// retractCycle is one invocation of the retract job: remove the shadow tick
// the previous create cycle inserted for each symbol.
func (s *Simulator) retractCycle(ctx context.Context, date string) {
	if !s.running.Load() {
		return
	}

	symbols := s.tracker.Snapshot()
	start := time.Now()

	for i := 0; i < len(symbols); i += s.cfg.BatchSize {
		end := min(i+s.cfg.BatchSize, len(symbols))
		for _, symbol := range symbols[i:end] {
			s.retractTick(ctx, symbol, date)
		}
		if end < len(symbols) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.BatchPause):
			}
		}
	}

	s.log.Info("retract cycle completed",
		zap.Int("symbols", len(symbols)), zap.Duration("took", time.Since(start)))
}

func (s *Simulator) retractTick(ctx context.Context, symbol, date string) {
	score := s.parseScore(date, shadowOffset)
	n, err := s.store.Retract(ctx, symbol, score)
	if err != nil {
		s.log.Warn("retract failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("retracted shadow tick",
			zap.String("symbol", symbol), zap.Float64("score", score), zap.Int64("removed", n))
	}
}

// ClearFull stops the session and removes the given date's shadow tick for
// every registry symbol.
func (s *Simulator) ClearFull(ctx context.Context, date string) error {
	s.log.Info("clearing full simulation", zap.String("date", date))
	s.Stop()

	symbols, err := s.store.Symbols(ctx)
	if err != nil {
		return err
	}
	for _, symbol := range symbols {
		s.retractTick(ctx, symbol, date)
	}
	return nil
}

// ClearWatchlist stops the session and removes the given date's shadow tick
// for one watchlist's symbols.
func (s *Simulator) ClearWatchlist(ctx context.Context, cache, key, date string) error {
	s.log.Info("clearing watchlist simulation",
		zap.String("cache", cache), zap.String("key", key), zap.String("date", date))
	s.Stop()

	symbols, err := s.lists.Symbols(ctx, cache, key)
	if err != nil {
		return err
	}
	for _, symbol := range symbols {
		s.retractTick(ctx, symbol, date)
	}
	return nil
}

// parseScore converts a date string plus offset to an epoch-millis score.
// A malformed date degrades to score 0 rather than erroring: the subsequent
// range or retract simply matches nothing.
func (s *Simulator) parseScore(date string, offset time.Duration) float64 {
	t, err := ParseDate(date)
	if err != nil {
		s.log.Error("date parse failed", zap.String("date", date), zap.Error(err))
		return 0
	}
	return float64(t.Add(offset).UnixMilli())
}

// ParseDate parses a "yyyy-MM-dd HH:mm:ss" parameter, tolerating surrounding
// quotes left over from JSON-encoded callers.
func ParseDate(date string) (time.Time, error) {
	clean := strings.TrimSpace(date)
	if len(clean) >= 2 && strings.HasPrefix(clean, `"`) && strings.HasSuffix(clean, `"`) {
		clean = clean[1 : len(clean)-1]
	}
	return time.ParseInLocation(tick.Layout, clean, time.Local)
}
