// Package universe tracks the set of symbols currently under simulation.
package universe

import "sync"

// Tracker holds the active symbol→date mapping in two logical subsets:
// the full-market set and the watch-listed set. Mutations happen only at
// session start/stop; running jobs only snapshot.
type Tracker struct {
	mu     sync.RWMutex
	active map[string]string
	watch  map[string]string
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		active: make(map[string]string),
		watch:  make(map[string]string),
	}
}

// Activate merges symbols into the full-market set. A later call overwrites
// the date for symbols already present.
func (t *Tracker) Activate(symbols []string, date string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range symbols {
		if s == "" {
			continue
		}
		t.active[s] = date
	}
}

// ActivateWatch merges symbols into the watch-listed set.
func (t *Tracker) ActivateWatch(symbols []string, date string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range symbols {
		if s == "" {
			continue
		}
		t.watch[s] = date
	}
}

// Snapshot returns the deduplicated union of both subsets' symbols.
// Order is unspecified; tick generation is not order-sensitive.
func (t *Tracker) Snapshot() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[string]struct{}, len(t.active)+len(t.watch))
	out := make([]string, 0, len(t.active)+len(t.watch))
	for s := range t.active {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for s := range t.watch {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Size returns the number of distinct symbols tracked.
func (t *Tracker) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := len(t.active)
	for s := range t.watch {
		if _, ok := t.active[s]; !ok {
			n++
		}
	}
	return n
}

// Clear empties both subsets.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = make(map[string]string)
	t.watch = make(map[string]string)
}
