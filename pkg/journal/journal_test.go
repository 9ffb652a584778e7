package journal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pashagolub/prefrank/pkg/data"
	"github.com/pashagolub/prefrank/pkg/rating"
)

// Test helper functions
func setupTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	dir := t.TempDir()

	j, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j, dir
}

func recordSession(t *testing.T, j *Journal, sessionID string) {
	t.Helper()
	info := data.RunInfo{
		SessionID: sessionID,
		TargetID:  "target",
		Model:     rating.BradleyTerryModel,
		MediaType: data.MediaMovie,
		StartedAt: time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC),
	}
	session, err := rating.NewSession("target", rating.Liked)
	require.NoError(t, err)
	require.NoError(t, j.SessionStarted(info, session))

	target, err := rating.NewItem("target", 7)
	require.NoError(t, err)
	opponent, err := rating.NewItem("opp", 5)
	require.NoError(t, err)
	outcome := rating.Outcome{ItemAID: "target", ItemBID: "opp", Result: rating.WinA, Timestamp: info.StartedAt}
	require.NoError(t, j.OutcomeApplied(info, outcome, target, opponent))

	session = session.Abort()
	require.NoError(t, j.SessionFinished(info, session))
}

func TestOpen(t *testing.T) {
	t.Run("creates the directory and file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "journal")
		j, err := Open(dir)
		require.NoError(t, err)
		defer j.Close()

		assert.Equal(t, filepath.Join(dir, FileName), j.Path())
		assert.FileExists(t, j.Path())
		assert.Zero(t, j.Sequence())
	})

	t.Run("reopening continues the chain", func(t *testing.T) {
		dir := t.TempDir()
		j, err := Open(dir)
		require.NoError(t, err)
		recordSession(t, j, "s1")
		require.NoError(t, j.Close())

		j, err = Open(dir)
		require.NoError(t, err)
		defer j.Close()
		assert.Equal(t, uint64(5), j.Sequence())

		recordSession(t, j, "s2")
		count, err := Verify(j.Path())
		require.NoError(t, err)
		assert.Equal(t, uint64(10), count)
	})

	t.Run("refuses a tampered journal", func(t *testing.T) {
		dir := t.TempDir()
		j, err := Open(dir)
		require.NoError(t, err)
		recordSession(t, j, "s1")
		require.NoError(t, j.Close())

		raw, err := os.ReadFile(j.Path())
		require.NoError(t, err)
		tampered := strings.Replace(string(raw), `"win_a"`, `"win_b"`, 1)
		require.NotEqual(t, string(raw), tampered)
		require.NoError(t, os.WriteFile(j.Path(), []byte(tampered), 0644))

		_, err = Open(dir)
		assert.ErrorIs(t, err, ErrJournalCorrupted)
	})
}

func TestJournalObserver(t *testing.T) {
	j, _ := setupTestJournal(t)
	recordSession(t, j, "s1")

	result, err := j.Query(QueryOptions{})
	require.NoError(t, err)
	require.Len(t, result.Entries, 5)

	types := make([]EventType, 0, len(result.Entries))
	for i, entry := range result.Entries {
		types = append(types, entry.EventType)
		assert.Equal(t, uint64(i), entry.Sequence)
		assert.Equal(t, "s1", entry.SessionID)
		assert.NotEmpty(t, entry.ID)
	}
	assert.Equal(t, []EventType{
		EventSessionStarted,
		EventOutcomeApplied,
		EventRatingUpdated,
		EventRatingUpdated,
		EventSessionFinished,
	}, types)

	assert.Empty(t, result.Entries[0].PreviousHash)
	assert.Equal(t, result.Entries[0].EntryHash, result.Entries[1].PreviousHash)

	assert.Equal(t, "liked", result.Entries[0].Data["sentiment"])
	assert.Equal(t, "win_a", result.Entries[1].Data["result"])
	assert.Equal(t, "opp", result.Entries[3].Data["item_id"])
	assert.Equal(t, "aborted", result.Entries[4].Data["reason"])
}

func TestJournalQuery(t *testing.T) {
	j, _ := setupTestJournal(t)
	recordSession(t, j, "s1")
	recordSession(t, j, "s2")

	tests := []struct {
		name     string
		options  QueryOptions
		expected int
		hasMore  bool
	}{
		{"everything", QueryOptions{}, 10, false},
		{"by session", QueryOptions{SessionID: "s2"}, 5, false},
		{"by event type", QueryOptions{EventTypes: []EventType{EventRatingUpdated}}, 4, false},
		{"by opponent", QueryOptions{ItemID: "opp"}, 4, false},
		{"by target", QueryOptions{ItemID: "target"}, 8, false},
		{"unknown item", QueryOptions{ItemID: "nobody"}, 0, false},
		{"limit", QueryOptions{Limit: 3}, 3, true},
		{"offset past the end", QueryOptions{Offset: 50}, 0, false},
		{"future start", QueryOptions{StartTime: ptr(time.Now().Add(time.Hour))}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := j.Query(tt.options)
			require.NoError(t, err)
			assert.Len(t, result.Entries, tt.expected)
			assert.Equal(t, tt.hasMore, result.HasMore)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		result, err := Query(filepath.Join(t.TempDir(), FileName), QueryOptions{})
		require.NoError(t, err)
		assert.Empty(t, result.Entries)
	})
}

func TestJournalStatistics(t *testing.T) {
	j, _ := setupTestJournal(t)
	recordSession(t, j, "s1")
	recordSession(t, j, "s2")

	stats, err := j.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 10, stats.TotalEntries)
	assert.Equal(t, 2, stats.Sessions)
	assert.Equal(t, 4, stats.EventCounts[EventRatingUpdated])
	assert.Equal(t, 2, stats.StopReasons["aborted"])
	require.NotNil(t, stats.FirstEntry)
	assert.False(t, stats.LastEntry.Before(*stats.FirstEntry))
}

func TestVerify(t *testing.T) {
	t.Run("missing journal", func(t *testing.T) {
		_, err := Verify(filepath.Join(t.TempDir(), FileName))
		assert.ErrorIs(t, err, ErrJournalNotFound)
	})

	t.Run("removed line breaks the chain", func(t *testing.T) {
		j, _ := setupTestJournal(t)
		recordSession(t, j, "s1")

		raw, err := os.ReadFile(j.Path())
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
		kept := append(lines[:1], lines[2:]...)
		require.NoError(t, os.WriteFile(j.Path(), []byte(strings.Join(kept, "\n")+"\n"), 0644))

		count, err := Verify(j.Path())
		assert.ErrorIs(t, err, ErrJournalCorrupted)
		assert.Equal(t, uint64(1), count)
	})

	t.Run("garbage line", func(t *testing.T) {
		j, _ := setupTestJournal(t)
		recordSession(t, j, "s1")

		f, err := os.OpenFile(j.Path(), os.O_APPEND|os.O_WRONLY, 0644)
		require.NoError(t, err)
		_, err = f.WriteString("{broken\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())

		_, err = Verify(j.Path())
		assert.ErrorIs(t, err, ErrJournalCorrupted)
	})
}

func TestAppendAfterClose(t *testing.T) {
	j, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	_, err = j.Append(EventSessionStarted, "s", nil)
	assert.ErrorIs(t, err, ErrJournalClosed)
}

func ptr[T any](v T) *T { return &v }
