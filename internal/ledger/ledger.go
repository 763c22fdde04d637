package ledger

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"
)

// ErrEmptyName is returned when a player name is empty after trimming.
var ErrEmptyName = errors.New("player name cannot be empty")

// Entry is one row of a score snapshot.
type Entry struct {
	Name  string `json:"name"`
	Score int64  `json:"score"`
}

// Ledger maps player names to scores.
// Thread-safe: all methods are safe for concurrent use.
type Ledger struct {
	// scores holds one counter per player. The map itself is only mutated
	// under the write lock; counters are mutated under the read lock.
	scores map[string]*atomic.Int64

	// mu is the round-boundary barrier described in the package docs.
	mu sync.RWMutex
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		scores: make(map[string]*atomic.Int64),
	}
}

// Register adds a player with a zero score if the name is new, and returns
// the player's current score either way. Re-registering an existing name
// resumes its score rather than failing.
//
// Parameters:
//   - name: display name, trimmed before use (must not be empty)
//
// Returns:
//   - the current score for the name
//   - ErrEmptyName if the trimmed name is empty
func (l *Ledger) Register(name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrEmptyName
	}
	return l.counter(name).Load(), nil
}

// IncrementAndGet adds one to the player's score and returns the value this
// call produced. No two concurrent callers for the same name can observe the
// same value and no update is lost. Unknown names are registered on the fly.
func (l *Ledger) IncrementAndGet(name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrEmptyName
	}

	l.mu.RLock()
	c, ok := l.scores[name]
	if ok {
		v := c.Add(1)
		l.mu.RUnlock()
		return v, nil
	}
	l.mu.RUnlock()

	// Slow path: create the counter under the write lock, then increment
	// while still holding it so a concurrent Reset cannot slip in between.
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok = l.scores[name]
	if !ok {
		c = new(atomic.Int64)
		l.scores[name] = c
	}
	return c.Add(1), nil
}

// Score returns a player's current score and whether the player is known.
func (l *Ledger) Score(name string) (int64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.scores[strings.TrimSpace(name)]
	if !ok {
		return 0, false
	}
	return c.Load(), true
}

// Reset zeroes every score without forgetting any player.
// Waits for all in-flight increments to finish first.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.scores {
		c.Store(0)
	}
}

// Snapshot returns a consistent copy of all scores, highest first and then
// by name.
func (l *Ledger) Snapshot() []Entry {
	l.mu.Lock()
	out := make([]Entry, 0, len(l.scores))
	for name, c := range l.scores {
		out = append(out, Entry{Name: name, Score: c.Load()})
	}
	l.mu.Unlock()

	slices.SortFunc(out, func(a, b Entry) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// Len returns the number of known players.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.scores)
}

// counter returns the counter for name, creating it if needed.
func (l *Ledger) counter(name string) *atomic.Int64 {
	l.mu.RLock()
	c, ok := l.scores[name]
	l.mu.RUnlock()
	if ok {
		return c
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok = l.scores[name]; !ok {
		c = new(atomic.Int64)
		l.scores[name] = c
	}
	return c
}
