package rating

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createCorpus(t *testing.T, scores ...float64) []Item {
	t.Helper()
	corpus := make([]Item, 0, len(scores))
	for i, score := range scores {
		corpus = append(corpus, createItem(t, fmt.Sprintf("%d", i+1), score))
	}
	return corpus
}

func TestRangeFor(t *testing.T) {
	tests := []struct {
		bucket Bucket
		lo, hi float64
	}{
		{Loved, 0, 0.25},
		{Liked, 0.25, 0.5},
		{Average, 0.5, 0.75},
		{Disliked, 0.75, 1},
	}
	for _, tt := range tests {
		r, err := RangeFor(tt.bucket)
		require.NoError(t, err)
		assert.Equal(t, tt.lo, r.Lo, string(tt.bucket))
		assert.Equal(t, tt.hi, r.Hi, string(tt.bucket))
	}

	_, err := RangeFor("meh")
	assert.ErrorIs(t, err, ErrUnknownBucket)
}

func TestParseBucket(t *testing.T) {
	b, err := ParseBucket(" LOVED ")
	require.NoError(t, err)
	assert.Equal(t, Loved, b)

	_, err = ParseBucket("hated")
	assert.ErrorIs(t, err, ErrUnknownBucket)
}

func TestBucketNext(t *testing.T) {
	assert.Equal(t, Liked, Loved.Next())
	assert.Equal(t, Loved, Disliked.Next())
	assert.Equal(t, Loved, Bucket("bogus").Next())
}

func TestSelectOpponent(t *testing.T) {
	t.Run("minimal corpus yields an opponent for every bucket", func(t *testing.T) {
		corpus := createCorpus(t, 9.0, 6.0, 3.0)

		expected := map[Bucket]string{
			Loved:    "1",
			Liked:    "1",
			Average:  "2",
			Disliked: "3",
		}
		for _, bucket := range Buckets {
			opponent, err := SelectOpponent(bucket, corpus, "4")
			require.NoError(t, err, string(bucket))
			assert.Equal(t, expected[bucket], opponent.ID, string(bucket))
		}
	})

	t.Run("single item corpus", func(t *testing.T) {
		corpus := createCorpus(t, 4.0)
		for _, bucket := range Buckets {
			opponent, err := SelectOpponent(bucket, corpus)
			require.NoError(t, err)
			assert.Equal(t, "1", opponent.ID)
		}
	})

	t.Run("order of input does not matter", func(t *testing.T) {
		corpus := createCorpus(t, 2.0, 8.0, 5.0, 9.5, 1.0, 7.0, 3.0, 6.0)

		loved, err := SelectOpponent(Loved, corpus)
		require.NoError(t, err)
		assert.Equal(t, "4", loved.ID)

		disliked, err := SelectOpponent(Disliked, corpus)
		require.NoError(t, err)
		assert.Equal(t, "1", disliked.ID) // rank 6 of 8 is the 2.0 item
	})

	t.Run("equal ratings keep insertion order", func(t *testing.T) {
		corpus := createCorpus(t, 5.0, 5.0, 5.0, 5.0)
		opponent, err := SelectOpponent(Liked, corpus)
		require.NoError(t, err)
		assert.Equal(t, "2", opponent.ID)
	})

	t.Run("excluded items are skipped", func(t *testing.T) {
		corpus := createCorpus(t, 9.0, 6.0, 3.0)
		opponent, err := SelectOpponent(Loved, corpus, "1")
		require.NoError(t, err)
		assert.Equal(t, "2", opponent.ID)
	})

	t.Run("empty or fully excluded corpus", func(t *testing.T) {
		_, err := SelectOpponent(Loved, nil)
		assert.ErrorIs(t, err, ErrNoOpponent)

		corpus := createCorpus(t, 9.0, 6.0)
		_, err = SelectOpponent(Average, corpus, "1", "2")
		assert.ErrorIs(t, err, ErrNoOpponent)
	})

	t.Run("items with broken state are ignored", func(t *testing.T) {
		corpus := createCorpus(t, 9.0, 6.0)
		corpus[0].Theta = math.NaN()

		opponent, err := SelectOpponent(Loved, corpus)
		require.NoError(t, err)
		assert.Equal(t, "2", opponent.ID)
	})

	t.Run("unknown bucket", func(t *testing.T) {
		_, err := SelectOpponent("meh", createCorpus(t, 5))
		assert.ErrorIs(t, err, ErrUnknownBucket)
	})
}

func TestSelectorWithElo(t *testing.T) {
	corpus := []Item{
		eloItem("low", 200, 0),
		eloItem("high", 900, 0),
	}
	// Bradley-Terry strengths are equal, so only the Elo ranking separates them
	sel := Selector{Model: createElo()}

	opponent, err := sel.Select(Loved, corpus)
	require.NoError(t, err)
	assert.Equal(t, "high", opponent.ID)

	ranked := sel.Rank(corpus)
	require.Len(t, ranked, 2)
	assert.InDelta(t, 9.0, ranked[0].DisplayRating, tolerance)
	assert.InDelta(t, 2.0, ranked[1].DisplayRating, tolerance)
}
