package models

import (
	"sort"
	"time"
)

// neverUsed is the sort sentinel for cards without a first use: they rank
// ahead of long-used cards within the same main/lock tier.
var neverUsed = time.Unix(1<<62-1, 0)

// Rank returns the display order for a card list: main card first,
// unlocked before locked, then most recent first use. The sort is stable,
// so cards tied on every key keep their input order. The input slice is
// not modified.
func Rank(cards []Card) []Card {
	ranked := make([]Card, len(cards))
	copy(ranked, cards)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Main != b.Main {
			return a.Main
		}
		if a.Locked != b.Locked {
			return !a.Locked
		}
		return firstUsedKey(a).After(firstUsedKey(b))
	})

	return ranked
}

func firstUsedKey(c Card) time.Time {
	if c.FirstUsedAt == nil {
		return neverUsed
	}
	return *c.FirstUsedAt
}
