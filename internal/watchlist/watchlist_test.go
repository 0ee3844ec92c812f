package watchlist

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewService(client, zap.NewNop()), mr
}

func TestSymbols(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t)
	mr.HSet("WatchLists", "tech", "ACME,NEWCO, WIDGET")

	got, err := svc.Symbols(ctx, "WatchLists", "tech")
	if err != nil {
		t.Fatalf("symbols: %v", err)
	}
	want := []string{"ACME", "NEWCO", "WIDGET"}
	if len(got) != len(want) {
		t.Fatalf("symbols = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("symbols[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSymbolsNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Symbols(ctx, "WatchLists", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAddSymbol(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t)
	mr.HSet("WatchLists", "tech", "ACME")

	if err := svc.AddSymbol(ctx, "WatchLists", "tech", "NEWCO"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := mr.HGet("WatchLists", "tech"); got != "ACME,NEWCO" {
		t.Errorf("stored = %q, want ACME,NEWCO", got)
	}

	if err := svc.AddSymbol(ctx, "WatchLists", "tech", "NEWCO"); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate add err = %v, want ErrDuplicate", err)
	}
	if err := svc.AddSymbol(ctx, "WatchLists", "missing", "NEWCO"); !errors.Is(err, ErrNotFound) {
		t.Errorf("add to missing list err = %v, want ErrNotFound", err)
	}
}

func TestRemoveSymbol(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t)
	mr.HSet("WatchLists", "tech", "ACME,NEWCO,WIDGET")

	if err := svc.RemoveSymbol(ctx, "WatchLists", "tech", "NEWCO"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := mr.HGet("WatchLists", "tech"); got != "ACME,WIDGET" {
		t.Errorf("stored = %q, want ACME,WIDGET", got)
	}

	if err := svc.RemoveSymbol(ctx, "WatchLists", "tech", "GONE"); !errors.Is(err, ErrNotFound) {
		t.Errorf("remove absent symbol err = %v, want ErrNotFound", err)
	}
}

func TestUserWatchlists(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestService(t)
	mr.HSet("WatchLists:42", "tech", "ACME,NEWCO")
	mr.HSet("WatchLists:42", "energy", "OILCO")

	lists, err := svc.UserWatchlists(ctx, "42")
	if err != nil {
		t.Fatalf("user watchlists: %v", err)
	}
	if len(lists) != 2 {
		t.Fatalf("lists = %v, want 2 entries", lists)
	}
	if len(lists["tech"]) != 2 || len(lists["energy"]) != 1 {
		t.Errorf("lists = %v", lists)
	}

	empty, err := svc.UserWatchlists(ctx, "99")
	if err != nil {
		t.Fatalf("unknown user errored: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown user lists = %v, want empty", empty)
	}
}
