// Package journal keeps an append-only record of rating sessions. Entries are
// written as JSON Lines and chained by SHA-256 hashes so that edits, removals
// and reordering are detectable. It also exports rankings for other tools.
package journal

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/pashagolub/prefrank/pkg/data"
	"github.com/pashagolub/prefrank/pkg/rating"
)

// FileName is the journal file inside the journal directory
const FileName = "outcomes.jsonl"

// Error types for journal operations
var (
	ErrJournalCorrupted = errors.New("journal corrupted or tampered")
	ErrJournalClosed    = errors.New("journal is closed")
	ErrJournalNotFound  = errors.New("journal file not found")
)

// EventType represents the kind of event being recorded
type EventType string

const (
	EventSessionStarted  EventType = "session_started"
	EventOutcomeApplied  EventType = "outcome_applied"
	EventRatingUpdated   EventType = "rating_updated"
	EventSessionFinished EventType = "session_finished"
)

// Entry is a single line of the journal
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	SessionID string         `json:"session_id"`
	Data      map[string]any `json:"data"`

	PreviousHash string `json:"previous_hash"` // Empty for the first entry
	EntryHash    string `json:"entry_hash"`
	Sequence     uint64 `json:"sequence"`
}

// Journal appends hash-chained entries to a single file. It is safe for
// concurrent use and satisfies data.Observer.
type Journal struct {
	path     string
	file     *os.File
	mutex    sync.Mutex
	lastHash string
	sequence uint64
	now      func() time.Time
}

var _ data.Observer = (*Journal)(nil)

// Open opens or creates the journal in directory. An existing journal is
// verified before new entries are appended to it.
func Open(directory string) (*Journal, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	j := &Journal{
		path: filepath.Join(directory, FileName),
		now:  time.Now,
	}

	lastHash, sequence, err := verifyFile(j.path)
	if err != nil && !errors.Is(err, ErrJournalNotFound) {
		return nil, err
	}
	j.lastHash, j.sequence = lastHash, sequence

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal file: %w", err)
	}
	j.file = file
	return j, nil
}

// Path returns the journal file location
func (j *Journal) Path() string {
	return j.path
}

// Sequence returns the number of entries written so far
func (j *Journal) Sequence() uint64 {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	return j.sequence
}

// Close releases the journal file
func (j *Journal) Close() error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// Append writes one event and returns the stored entry
func (j *Journal) Append(eventType EventType, sessionID string, payload map[string]any) (Entry, error) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if j.file == nil {
		return Entry{}, ErrJournalClosed
	}

	entry := Entry{
		ID:           uuid.NewString(),
		Timestamp:    j.now().UTC(),
		EventType:    eventType,
		SessionID:    sessionID,
		Data:         payload,
		PreviousHash: j.lastHash,
		Sequence:     j.sequence,
	}
	entry.EntryHash = entryHash(&entry)

	line, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal journal entry: %w", err)
	}
	if _, err := j.file.Write(append(line, '\n')); err != nil {
		return Entry{}, fmt.Errorf("failed to write journal entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return Entry{}, fmt.Errorf("failed to sync journal: %w", err)
	}

	j.lastHash = entry.EntryHash
	j.sequence++
	return entry, nil
}

// SessionStarted records the target and the sentiment the session starts from
func (j *Journal) SessionStarted(info data.RunInfo, session rating.Session) error {
	_, err := j.Append(EventSessionStarted, info.SessionID, map[string]any{
		"target_id":  info.TargetID,
		"sentiment":  string(session.Sentiment),
		"model":      string(info.Model),
		"media_type": string(info.MediaType),
		"started_at": info.StartedAt.UTC().Format(time.RFC3339Nano),
	})
	return err
}

// OutcomeApplied records the outcome followed by the new state of both items
func (j *Journal) OutcomeApplied(info data.RunInfo, outcome rating.Outcome, target, opponent rating.Item) error {
	if _, err := j.Append(EventOutcomeApplied, info.SessionID, map[string]any{
		"item_a_id":  outcome.ItemAID,
		"item_b_id":  outcome.ItemBID,
		"result":     string(outcome.Result),
		"decided_at": outcome.Timestamp.UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return err
	}
	for _, item := range []rating.Item{target, opponent} {
		if _, err := j.Append(EventRatingUpdated, info.SessionID, itemPayload(item)); err != nil {
			return err
		}
	}
	return nil
}

// SessionFinished records why the session stopped and its final interval
func (j *Journal) SessionFinished(info data.RunInfo, session rating.Session) error {
	_, err := j.Append(EventSessionFinished, info.SessionID, map[string]any{
		"target_id":   info.TargetID,
		"reason":      string(session.Reason),
		"comparisons": len(session.History),
		"wins":        session.Wins,
		"lower":       session.Lower,
		"upper":       session.Upper,
	})
	return err
}

func itemPayload(item rating.Item) map[string]any {
	return map[string]any{
		"item_id":     item.ID,
		"theta":       item.Theta,
		"theta_mle":   item.ThetaMLE,
		"elo_rating":  item.EloRating,
		"effective_n": item.EffectiveN(),
	}
}

// entryHash covers every field except EntryHash itself
func entryHash(entry *Entry) string {
	payload, _ := json.Marshal(entry.Data)
	dataHash := sha256.Sum256(payload)

	content := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%s",
		entry.ID,
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.EventType,
		entry.SessionID,
		entry.PreviousHash,
		entry.Sequence,
		hex.EncodeToString(dataHash[:]))

	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// Verify checks the whole hash chain of the journal file at path and returns
// the number of valid entries.
func Verify(path string) (uint64, error) {
	_, sequence, err := verifyFile(path)
	return sequence, err
}

func verifyFile(path string) (string, uint64, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", 0, fmt.Errorf("%w: %s", ErrJournalNotFound, path)
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to open journal: %w", err)
	}
	defer file.Close()

	var previousHash string
	var sequence uint64
	err = scanEntries(file, func(entry Entry) error {
		if entry.Sequence != sequence {
			return fmt.Errorf("%w: sequence mismatch at entry %d, got %d", ErrJournalCorrupted, sequence, entry.Sequence)
		}
		if entry.PreviousHash != previousHash {
			return fmt.Errorf("%w: hash chain broken at sequence %d", ErrJournalCorrupted, sequence)
		}
		if entry.EntryHash != entryHash(&entry) {
			return fmt.Errorf("%w: entry hash mismatch at sequence %d", ErrJournalCorrupted, sequence)
		}
		previousHash = entry.EntryHash
		sequence++
		return nil
	})
	if err != nil {
		return "", sequence, err
	}
	return previousHash, sequence, nil
}

// scanEntries decodes one entry per non-empty line
func scanEntries(r io.Reader, fn func(Entry) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			return fmt.Errorf("%w: invalid JSON on line %d: %v", ErrJournalCorrupted, line, err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading journal: %w", err)
	}
	return nil
}

// QueryOptions defines filtering criteria for journal queries
type QueryOptions struct {
	EventTypes []EventType `json:"event_types,omitempty"`
	SessionID  string      `json:"session_id,omitempty"`
	ItemID     string      `json:"item_id,omitempty"` // Target, either side of an outcome, or an updated item
	StartTime  *time.Time  `json:"start_time,omitempty"`
	EndTime    *time.Time  `json:"end_time,omitempty"`
	Limit      int         `json:"limit,omitempty"`
	Offset     int         `json:"offset,omitempty"`
}

// QueryResult contains the matching entries of a query
type QueryResult struct {
	Entries    []Entry `json:"entries"`
	TotalCount int     `json:"total_count"`
	HasMore    bool    `json:"has_more"`
}

// Query reads the journal and returns the entries matching options
func (j *Journal) Query(options QueryOptions) (*QueryResult, error) {
	return Query(j.path, options)
}

// Query filters the journal file at path. A missing file yields no entries.
func Query(path string, options QueryOptions) (*QueryResult, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return &QueryResult{Entries: []Entry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open journal for reading: %w", err)
	}
	defer file.Close()

	matches := []Entry{}
	err = scanEntries(file, func(entry Entry) error {
		if matchesQuery(&entry, options) {
			matches = append(matches, entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	total := len(matches)
	start := min(max(options.Offset, 0), total)
	end := total
	if options.Limit > 0 {
		end = min(start+options.Limit, total)
	}

	return &QueryResult{
		Entries:    matches[start:end],
		TotalCount: total,
		HasMore:    end < total,
	}, nil
}

func matchesQuery(entry *Entry, options QueryOptions) bool {
	if len(options.EventTypes) > 0 && !slices.Contains(options.EventTypes, entry.EventType) {
		return false
	}
	if options.SessionID != "" && entry.SessionID != options.SessionID {
		return false
	}
	if options.StartTime != nil && entry.Timestamp.Before(*options.StartTime) {
		return false
	}
	if options.EndTime != nil && entry.Timestamp.After(*options.EndTime) {
		return false
	}
	if options.ItemID != "" {
		found := false
		for _, key := range []string{"target_id", "item_a_id", "item_b_id", "item_id"} {
			if id, ok := entry.Data[key].(string); ok && id == options.ItemID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Statistics summarises the journal content
type Statistics struct {
	TotalEntries int               `json:"total_entries"`
	Sessions     int               `json:"sessions"`
	EventCounts  map[EventType]int `json:"event_counts"`
	StopReasons  map[string]int    `json:"stop_reasons"`
	FirstEntry   *time.Time        `json:"first_entry,omitempty"`
	LastEntry    *time.Time        `json:"last_entry,omitempty"`
}

// Statistics counts events, sessions and stop reasons
func (j *Journal) Statistics() (*Statistics, error) {
	result, err := j.Query(QueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate statistics: %w", err)
	}

	stats := &Statistics{
		TotalEntries: result.TotalCount,
		EventCounts:  make(map[EventType]int),
		StopReasons:  make(map[string]int),
	}
	if n := len(result.Entries); n > 0 {
		stats.FirstEntry = &result.Entries[0].Timestamp
		stats.LastEntry = &result.Entries[n-1].Timestamp
	}

	sessions := make(map[string]bool)
	for _, entry := range result.Entries {
		stats.EventCounts[entry.EventType]++
		sessions[entry.SessionID] = true
		if entry.EventType == EventSessionFinished {
			if reason, ok := entry.Data["reason"].(string); ok {
				stats.StopReasons[reason]++
			}
		}
	}
	stats.Sessions = len(sessions)
	return stats, nil
}
