package data

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pashagolub/prefrank/pkg/rating"
)

// Library errors
var (
	ErrEntryNotFound   = errors.New("library entry not found")
	ErrDuplicateEntry  = errors.New("duplicate library entry")
	ErrUnknownMedia    = errors.New("unknown media type")
	ErrVersionConflict = errors.New("library entry was modified concurrently")
)

// MediaType partitions the library; items are only compared within one type
type MediaType string

// Supported media types
const (
	MediaMovie MediaType = "movie"
	MediaTV    MediaType = "tv"
)

// ParseMediaType maps common spellings onto a MediaType. Empty means movie.
func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "movie", "film":
		return MediaMovie, nil
	case "tv", "show", "series":
		return MediaTV, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMedia, s)
}

// Entry is one ratable title in the user's library
type Entry struct {
	Item      rating.Item `json:"item" yaml:"item"`
	Title     string      `json:"title" yaml:"title"`
	MediaType MediaType   `json:"media_type" yaml:"media_type"`

	// Version is incremented by storage on every successful write
	Version int64 `json:"version" yaml:"version"`

	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
	RatedAt   *time.Time `json:"rated_at,omitempty" yaml:"rated_at,omitempty"` // Set once the user has rated it
}

// ID is the entry's item id
func (e Entry) ID() string { return e.Item.ID }

// Rated reports whether the entry belongs to the comparison corpus
func (e Entry) Rated() bool { return e.RatedAt != nil }

// NewEntry seeds a fresh entry from its consensus score
func NewEntry(id, title string, media MediaType, consensusScore float64, cfg rating.Config) (Entry, error) {
	item, err := cfg.NewItem(id, consensusScore)
	if err != nil {
		return Entry{}, err
	}
	if media == "" {
		media = MediaMovie
	}
	now := time.Now()
	return Entry{
		Item:      item,
		Title:     title,
		MediaType: media,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Library is an in-memory snapshot of all entries, in insertion order
type Library struct {
	entries []Entry
	index   map[string]int
}

// NewLibrary builds a library snapshot; duplicate ids are rejected
func NewLibrary(entries []Entry) (*Library, error) {
	lib := &Library{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if _, exists := lib.index[e.ID()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, e.ID())
		}
		lib.index[e.ID()] = len(lib.entries)
		lib.entries = append(lib.entries, e)
	}
	return lib, nil
}

// Len returns the number of entries
func (l *Library) Len() int { return len(l.entries) }

// Entries returns a copy of all entries in insertion order
func (l *Library) Entries() []Entry {
	return slices.Clone(l.entries)
}

// Get looks an entry up by id
func (l *Library) Get(id string) (Entry, error) {
	idx, ok := l.index[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	return l.entries[idx], nil
}

// Corpus returns the rated items of one media type, the opponent pool for a session
func (l *Library) Corpus(media MediaType) []rating.Item {
	var items []rating.Item
	for _, e := range l.entries {
		if e.Rated() && e.MediaType == media {
			items = append(items, e.Item)
		}
	}
	return items
}

// RankedEntry is an entry with its position in a ranking
type RankedEntry struct {
	Entry
	Rank          int
	DisplayRating float64
}

// Ranking orders rated entries best first under model. An empty media type
// ranks every entry of every type.
func (l *Library) Ranking(model rating.Model, media MediaType, includeUnrated bool) []RankedEntry {
	var items []rating.Item
	for _, e := range l.entries {
		if (media == "" || e.MediaType == media) && (includeUnrated || e.Rated()) {
			items = append(items, e.Item)
		}
	}

	ranked := rating.Selector{Model: model}.Rank(items)
	result := make([]RankedEntry, 0, len(ranked))
	for i, r := range ranked {
		entry := l.entries[l.index[r.Item.ID]]
		result = append(result, RankedEntry{Entry: entry, Rank: i + 1, DisplayRating: r.DisplayRating})
	}
	return result
}
