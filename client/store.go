package client

import (
	"sort"
	"sync"
	"time"
)

// Store holds the last fetched card list. It is replaced wholesale on
// every refresh; there is no local merging, so overlapping refreshes
// resolve as last writer wins.
type Store struct {
	mu    sync.RWMutex
	cards []Card
}

func NewStore() *Store {
	return &Store{cards: []Card{}}
}

// Replace installs a new card list.
func (s *Store) Replace(cards []Card) {
	ranked := rankCards(cards)
	s.mu.Lock()
	s.cards = ranked
	s.mu.Unlock()
}

// Snapshot returns a ranked copy of the current list.
func (s *Store) Snapshot() []Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Card, len(s.cards))
	copy(out, s.cards)
	return out
}

// Len reports the current card count.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cards)
}

// rankCards orders for display: main card first, locked cards last,
// then most recent first use, with never-used cards ahead of used ones.
// The sort is stable so equal cards keep their fetched order.
func rankCards(cards []Card) []Card {
	out := make([]Card, len(cards))
	copy(out, cards)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsMain != b.IsMain {
			return a.IsMain
		}
		if a.Locked() != b.Locked() {
			return !a.Locked()
		}
		return firstUsedKey(a).After(firstUsedKey(b))
	})
	return out
}

// Never-used cards sort as if used in the far future.
func firstUsedKey(c Card) time.Time {
	if c.FirstUsedAt == nil {
		return time.Unix(1<<62-1, 0)
	}
	return *c.FirstUsedAt
}
