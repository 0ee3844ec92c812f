// Package store provides the per-symbol tick time-series on top of Redis
// sorted sets. Each symbol is one sorted set whose score is the tick's
// event time in epoch milliseconds; the symbol registry is a hash mapping
// symbol to its latest business-date string.
package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// symbolsKey is the registry hash: field = symbol, value = latest date string.
const symbolsKey = "Trades"

// ConflictPolicy names the ZADD conflict rule used on append.
type ConflictPolicy int

const (
	// InsertIfLower only moves an existing identical payload to a lower
	// score (ZADD LT). A duplicate payload already stored at a lower score
	// therefore stays put and the append is a silent no-op, which is what
	// bounds repeated shadow-tick writes between retraction cycles.
	InsertIfLower ConflictPolicy = iota
	// Always unconditionally sets the payload's score.
	Always
)

func (p ConflictPolicy) String() string {
	switch p {
	case InsertIfLower:
		return "insert-if-lower"
	case Always:
		return "always"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Entry is one stored payload with its score. Only reads that need to
// reason about placement (the cleanup scan) use it; everything else works
// on bare payloads.
type Entry struct {
	Score   float64
	Payload string
}

// TickStore is the time-series contract the simulator and API consume.
type TickStore interface {
	Append(ctx context.Context, symbol string, score float64, payload string, policy ConflictPolicy) error
	RangeAsc(ctx context.Context, symbol string, min, max float64, offset, count int64) ([]string, error)
	RangeDesc(ctx context.Context, symbol string, min, max float64, count int64) ([]string, error)
	Retract(ctx context.Context, symbol string, score float64) (int64, error)
	Latest(ctx context.Context, symbol string) (string, error)
	All(ctx context.Context, symbol string) ([]string, error)
	Entries(ctx context.Context, symbol string) ([]Entry, error)
	Symbols(ctx context.Context) ([]string, error)
	SetSymbolDate(ctx context.Context, symbol, date string) error
}

// Compile-time check to ensure RedisTickStore implements TickStore.
var _ TickStore = (*RedisTickStore)(nil)

// RedisTickStore implements TickStore on a go-redis client.
type RedisTickStore struct {
	client *redis.Client
}

// NewRedisTickStore wraps an existing client.
func NewRedisTickStore(client *redis.Client) *RedisTickStore {
	return &RedisTickStore{client: client}
}

// Append inserts payload into the symbol's sequence at score under the given
// conflict policy.
func (s *RedisTickStore) Append(ctx context.Context, symbol string, score float64, payload string, policy ConflictPolicy) error {
	z := redis.Z{Score: score, Member: payload}

	var err error
	switch policy {
	case Always:
		err = s.client.ZAdd(ctx, symbol, z).Err()
	default:
		err = s.client.ZAddLT(ctx, symbol, z).Err()
	}
	if err != nil {
		return fmt.Errorf("append %s @ %.0f: %w", symbol, score, err)
	}
	return nil
}

// RangeAsc returns payloads in ascending score order within [min, max],
// honoring offset and count. count <= 0 means no limit. An unknown symbol
// yields an empty slice, never an error.
func (s *RedisTickStore) RangeAsc(ctx context.Context, symbol string, min, max float64, offset, count int64) ([]string, error) {
	res, err := s.client.ZRangeByScore(ctx, symbol, &redis.ZRangeBy{
		Min:    formatScore(min),
		Max:    formatScore(max),
		Offset: offset,
		Count:  count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", symbol, err)
	}
	return res, nil
}

// RangeDesc returns payloads in descending score order within [min, max].
func (s *RedisTickStore) RangeDesc(ctx context.Context, symbol string, min, max float64, count int64) ([]string, error) {
	res, err := s.client.ZRevRangeByScore(ctx, symbol, &redis.ZRangeBy{
		Min:   formatScore(min),
		Max:   formatScore(max),
		Count: count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range desc %s: %w", symbol, err)
	}
	return res, nil
}

// Retract removes every entry whose score equals exactly the given score and
// returns the number removed. Zero is a normal outcome.
func (s *RedisTickStore) Retract(ctx context.Context, symbol string, score float64) (int64, error) {
	n, err := s.client.ZRemRangeByScore(ctx, symbol, formatScore(score), formatScore(score)).Result()
	if err != nil {
		return 0, fmt.Errorf("retract %s @ %.0f: %w", symbol, score, err)
	}
	return n, nil
}

// Latest returns the single most recent payload for the symbol regardless of
// business date, or "" when the symbol has no entries.
func (s *RedisTickStore) Latest(ctx context.Context, symbol string) (string, error) {
	res, err := s.client.ZRevRangeByScore(ctx, symbol, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("latest %s: %w", symbol, err)
	}
	if len(res) == 0 {
		return "", nil
	}
	return res[0], nil
}

// All returns the symbol's full sequence in ascending score order.
func (s *RedisTickStore) All(ctx context.Context, symbol string) ([]string, error) {
	res, err := s.client.ZRange(ctx, symbol, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("all %s: %w", symbol, err)
	}
	return res, nil
}

// Entries returns the symbol's full sequence with scores, ascending.
func (s *RedisTickStore) Entries(ctx context.Context, symbol string) ([]Entry, error) {
	res, err := s.client.ZRangeWithScores(ctx, symbol, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("entries %s: %w", symbol, err)
	}
	entries := make([]Entry, 0, len(res))
	for _, z := range res {
		payload, _ := z.Member.(string)
		entries = append(entries, Entry{Score: z.Score, Payload: payload})
	}
	return entries, nil
}

// Symbols returns every symbol known to the registry hash.
func (s *RedisTickStore) Symbols(ctx context.Context) ([]string, error) {
	m, err := s.client.HGetAll(ctx, symbolsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}
	symbols := make([]string, 0, len(m))
	for sym := range m {
		symbols = append(symbols, sym)
	}
	return symbols, nil
}

// SetSymbolDate records the symbol's latest business date in the registry.
func (s *RedisTickStore) SetSymbolDate(ctx context.Context, symbol, date string) error {
	if err := s.client.HSet(ctx, symbolsKey, symbol, date).Err(); err != nil {
		return fmt.Errorf("set symbol date %s: %w", symbol, err)
	}
	return nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
