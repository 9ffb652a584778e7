package rating

import (
	"errors"
	"math"
	"slices"
)

// ErrNoOpponent signals an empty or fully excluded corpus: the user does not
// have enough rated history yet.
var ErrNoOpponent = errors.New("no opponent available")

// Selector picks comparison opponents from a rated corpus
type Selector struct {
	Model Model // Ranks the corpus; nil ranks by Bradley-Terry display rating
}

// SelectOpponent picks an opponent for bucket using Bradley-Terry display ratings
func SelectOpponent(bucket Bucket, corpus []Item, excludeIDs ...string) (Item, error) {
	return Selector{}.Select(bucket, corpus, excludeIDs...)
}

// Select returns the first item of the bucket's slice of the corpus, sorted by
// display rating descending with ties kept in insertion order. Selection is
// deterministic; randomisation belongs to the caller.
func (s Selector) Select(bucket Bucket, corpus []Item, excludeIDs ...string) (Item, error) {
	r, err := RangeFor(bucket)
	if err != nil {
		return Item{}, err
	}

	ranked := s.Rank(corpus, excludeIDs...)
	n := len(ranked)
	if n == 0 {
		return Item{}, ErrNoOpponent
	}

	start := int(math.Floor(r.Lo * float64(n)))
	end := int(math.Floor(r.Hi * float64(n)))
	end = max(end, start+1)
	end = min(end, n)

	if start >= end {
		// Empty slice: fall back to the item nearest the bucket's edge
		if r.upper() {
			return ranked[0].Item, nil
		}
		return ranked[n-1].Item, nil
	}
	return ranked[start].Item, nil
}

// RankedItem pairs an item with the display rating used to rank it
type RankedItem struct {
	Item          Item
	DisplayRating float64
}

// Rank filters out excluded and unrated items and sorts the rest best first
func (s Selector) Rank(corpus []Item, excludeIDs ...string) []RankedItem {
	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}

	ranked := make([]RankedItem, 0, len(corpus))
	seen := make(map[string]bool, len(corpus))
	for _, item := range corpus {
		if item.ID == "" || excluded[item.ID] || seen[item.ID] {
			continue
		}
		rating := DisplayRating(item, s.Model)
		if !isFinite(rating) || item.Validate() != nil {
			continue
		}
		seen[item.ID] = true
		ranked = append(ranked, RankedItem{Item: item, DisplayRating: rating})
	}

	slices.SortStableFunc(ranked, func(a, b RankedItem) int {
		switch {
		case a.DisplayRating > b.DisplayRating:
			return -1
		case a.DisplayRating < b.DisplayRating:
			return 1
		}
		return 0
	})
	return ranked
}
