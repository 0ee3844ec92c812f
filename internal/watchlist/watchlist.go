// Package watchlist stores named symbol lists in Redis hashes.
// A list lives at hash <cache> field <key> as a comma-joined string; a
// user's lists live under the hash "WatchLists:<userID>".
package watchlist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a cache/key pair does not exist.
var ErrNotFound = errors.New("watchlist not found")

// ErrDuplicate is returned when adding a symbol already on the list.
var ErrDuplicate = errors.New("symbol already on watchlist")

// Service reads and mutates watchlist membership.
type Service struct {
	client *redis.Client
	log    *zap.Logger
}

// NewService wraps an existing Redis client.
func NewService(client *redis.Client, log *zap.Logger) *Service {
	return &Service{client: client, log: log}
}

// Symbols returns the member symbols of the list at cache/key.
func (s *Service) Symbols(ctx context.Context, cache, key string) ([]string, error) {
	raw, err := s.client.HGet(ctx, cache, key).Result()
	if err == redis.Nil {
		s.log.Error("watchlist not found", zap.String("cache", cache), zap.String("key", key))
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get watchlist %s/%s: %w", cache, key, err)
	}
	return splitSymbols(raw), nil
}

// AddSymbol appends a symbol to the list, rejecting duplicates.
func (s *Service) AddSymbol(ctx context.Context, cache, key, symbol string) error {
	raw, err := s.client.HGet(ctx, cache, key).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get watchlist %s/%s: %w", cache, key, err)
	}

	for _, existing := range splitSymbols(raw) {
		if existing == symbol {
			return ErrDuplicate
		}
	}

	updated := symbol
	if raw != "" {
		updated = raw + "," + symbol
	}
	if err := s.client.HSet(ctx, cache, key, updated).Err(); err != nil {
		return fmt.Errorf("set watchlist %s/%s: %w", cache, key, err)
	}
	s.log.Info("watchlist symbol added",
		zap.String("cache", cache), zap.String("key", key), zap.String("symbol", symbol))
	return nil
}

// RemoveSymbol drops a symbol from the list.
func (s *Service) RemoveSymbol(ctx context.Context, cache, key, symbol string) error {
	raw, err := s.client.HGet(ctx, cache, key).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get watchlist %s/%s: %w", cache, key, err)
	}

	members := splitSymbols(raw)
	kept := members[:0]
	found := false
	for _, m := range members {
		if m == symbol {
			found = true
			continue
		}
		kept = append(kept, m)
	}
	if !found {
		return ErrNotFound
	}

	if err := s.client.HSet(ctx, cache, key, strings.Join(kept, ",")).Err(); err != nil {
		return fmt.Errorf("set watchlist %s/%s: %w", cache, key, err)
	}
	s.log.Info("watchlist symbol removed",
		zap.String("cache", cache), zap.String("key", key), zap.String("symbol", symbol))
	return nil
}

// UserWatchlists returns every list belonging to a user, keyed by list name.
func (s *Service) UserWatchlists(ctx context.Context, userID string) (map[string][]string, error) {
	raw, err := s.client.HGetAll(ctx, "WatchLists:"+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("get user watchlists %s: %w", userID, err)
	}
	lists := make(map[string][]string, len(raw))
	for key, csv := range raw {
		lists[key] = splitSymbols(csv)
	}
	return lists, nil
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
