package sim

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/tradingzone/trade-sim/internal/tick"
)

// scoreTolerance is how far (in ms) an entry's score may sit from its
// expected shadow slot and still be classified as simulator-injected.
const scoreTolerance = 1000

// CleanupReport summarizes one reconciliation scan. It is returned to the
// caller once and never persisted.
type CleanupReport struct {
	TotalSymbols     int            `json:"totalSymbols"`
	ProcessedSymbols int            `json:"processedSymbols"`
	TotalRetracted   int            `json:"totalRetracted"`
	PerSymbol        map[string]int `json:"perSymbol"`
}

// RunFullCleanup scans every registry symbol's full history and retracts
// entries that look simulator-injected: score within tolerance of the
// entry's own minute-truncated timestamp plus the shadow offset. Best
// effort; a failing symbol is logged and the scan continues.
func (s *Simulator) RunFullCleanup(ctx context.Context) (*CleanupReport, error) {
	s.log.Info("starting full cleanup of synthetic ticks")

	symbols, err := s.store.Symbols(ctx)
	if err != nil {
		return nil, err
	}

	report := &CleanupReport{
		TotalSymbols: len(symbols),
		PerSymbol:    make(map[string]int),
	}

	for _, symbol := range symbols {
		n, err := s.cleanupSymbol(ctx, symbol)
		if err != nil {
			s.log.Error("cleanup failed for symbol", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		report.ProcessedSymbols++
		if n > 0 {
			report.PerSymbol[symbol] = n
			report.TotalRetracted += n
			s.log.Info("cleaned synthetic ticks", zap.String("symbol", symbol), zap.Int("removed", n))
		}
	}

	s.log.Info("full cleanup completed",
		zap.Int("processed", report.ProcessedSymbols), zap.Int("retracted", report.TotalRetracted))
	return report, nil
}

func (s *Simulator) cleanupSymbol(ctx context.Context, symbol string) (int, error) {
	entries, err := s.store.Entries(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	// Collect the distinct scores of entries sitting in a shadow slot:
	// stored within tolerance of their own timestamp's minute plus the
	// shadow offset. Base entries sit at their timestamp and never match.
	scores := make(map[float64]struct{})
	for _, e := range entries {
		t, err := tick.Decode(e.Payload)
		if err != nil || t.TradDt.IsZero() {
			continue
		}
		expected := float64(t.TradDt.Truncate(time.Minute).Add(shadowOffset).UnixMilli())
		if math.Abs(e.Score-expected) < scoreTolerance {
			scores[e.Score] = struct{}{}
		}
	}

	removed := 0
	for score := range scores {
		n, err := s.store.Retract(ctx, symbol, score)
		if err != nil {
			s.log.Warn("cleanup retract failed",
				zap.String("symbol", symbol), zap.Float64("score", score), zap.Error(err))
			continue
		}
		removed += int(n)
	}
	return removed, nil
}

// DebugInfo is the read-only diagnostic dump for one symbol.
type DebugInfo struct {
	Symbol  string       `json:"symbol"`
	Total   int          `json:"total"`
	Samples []*tick.Tick `json:"samples,omitempty"`
	Latest  *tick.Tick   `json:"latest,omitempty"`
}

// DebugSymbol returns the symbol's entry count, up to three oldest decoded
// entries, and the latest entry. Never mutates state.
func (s *Simulator) DebugSymbol(ctx context.Context, symbol string) (*DebugInfo, error) {
	rows, err := s.store.All(ctx, symbol)
	if err != nil {
		return nil, err
	}

	info := &DebugInfo{Symbol: symbol, Total: len(rows)}
	for _, raw := range rows[:min(3, len(rows))] {
		t, err := tick.Decode(raw)
		if err != nil {
			s.log.Warn("undecodable tick in debug dump", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		info.Samples = append(info.Samples, t)
	}

	latest, err := s.store.Latest(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if latest != "" {
		if t, err := tick.Decode(latest); err == nil {
			info.Latest = t
		}
	}
	return info, nil
}
