package rating

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runSession drives a session to completion, answering every prompt with decide
func runSession(t *testing.T, target Item, corpus []Item, sentiment Bucket, decide func(opponent Item) Result) (Session, Item, []Item) {
	t.Helper()

	cfg := DefaultConfig()
	model, err := cfg.NewModel(BradleyTerryModel)
	require.NoError(t, err)
	eval := cfg.Evaluator()
	sel := Selector{Model: model}

	session, err := NewSession(target.ID, sentiment)
	require.NoError(t, err)

	for i := 0; i < 100 && !session.Stopped(); i++ {
		var opponent Item
		session, opponent, err = session.NextOpponent(corpus, sel)
		if err != nil {
			require.ErrorIs(t, err, ErrNoOpponent)
			break
		}

		outcome := Outcome{ItemAID: target.ID, ItemBID: opponent.ID, Result: decide(opponent), Timestamp: time.Now()}
		var updated Item
		session, target, updated, err = session.Record(outcome, target, opponent, model, eval)
		require.NoError(t, err)

		for j := range corpus {
			if corpus[j].ID == updated.ID {
				corpus[j] = updated
			}
		}
	}
	require.True(t, session.Stopped())
	return session, target, corpus
}

func TestNewSession(t *testing.T) {
	s, err := NewSession("new", Average)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s.Status)
	assert.Equal(t, Average, s.NextBucket())
	assert.Equal(t, 0.0, s.Lower)
	assert.Equal(t, 1.0, s.Upper)

	_, err = NewSession("", Average)
	assert.ErrorIs(t, err, ErrItemMismatch)

	_, err = NewSession("new", "meh")
	assert.ErrorIs(t, err, ErrUnknownBucket)
}

func TestSessionBucketCycle(t *testing.T) {
	s, err := NewSession("new", Average)
	require.NoError(t, err)

	var seen []Bucket
	for i := range 5 {
		s.History = make([]Outcome, i)
		seen = append(seen, s.NextBucket())
	}
	assert.Equal(t, []Bucket{Average, Disliked, Loved, Liked, Average}, seen)
}

func TestSessionLifecycle(t *testing.T) {
	t.Run("unanimous wins stop on confidence", func(t *testing.T) {
		target := createItem(t, "new", 6.5)
		corpus := createCorpus(t, 9, 8.5, 8, 7.5, 7, 6.5, 6, 5.5, 5, 4.5, 4, 3.5)

		session, final, _ := runSession(t, target, corpus, Loved, func(Item) Result { return WinA })

		assert.Equal(t, ReasonConfident, session.Reason)
		assert.Equal(t, 9, session.Comparisons)
		assert.Len(t, session.History, 9)
		assert.Len(t, session.Excluded, 9)
		assert.Equal(t, 9, final.ComparisonCount)
		assert.Greater(t, final.Theta, target.Theta)
		assert.Greater(t, session.Lower, 0.6)
		assert.InDelta(t, 1.0, session.Upper, tolerance)
	})

	t.Run("split results hit the hard cap", func(t *testing.T) {
		target := createItem(t, "new", 5)
		corpus := createCorpus(t, 9, 8.5, 8, 7.5, 7, 6.5, 6, 5.5, 5, 4.5, 4, 3.5)

		n := 0
		session, _, _ := runSession(t, target, corpus, Average, func(Item) Result {
			n++
			if n%2 == 0 {
				return WinA
			}
			return WinB
		})
		assert.Equal(t, ReasonMaxComparisons, session.Reason)
		assert.InDelta(t, 10.0, session.EffectiveN(), tolerance)
	})

	t.Run("small corpus is exhausted", func(t *testing.T) {
		target := createItem(t, "new", 5)
		corpus := createCorpus(t, 9, 6, 3)

		session, _, updated := runSession(t, target, corpus, Disliked, func(Item) Result { return Tie })
		assert.Equal(t, ReasonExhausted, session.Reason)
		assert.Equal(t, 3, session.Ties)
		assert.ElementsMatch(t, []string{"1", "2", "3"}, session.Excluded)
		for _, item := range updated {
			assert.Equal(t, 1, item.TieCount)
		}
	})

	t.Run("empty corpus has not enough data", func(t *testing.T) {
		target := createItem(t, "new", 5)
		session, _, _ := runSession(t, target, nil, Loved, func(Item) Result { return WinA })
		assert.Equal(t, ReasonNotEnoughData, session.Reason)
		assert.Empty(t, session.History)
	})

	t.Run("target in corpus is never its own opponent", func(t *testing.T) {
		target := createItem(t, "1", 9)
		corpus := createCorpus(t, 9, 6)

		session, _, _ := runSession(t, target, corpus, Loved, func(Item) Result { return WinA })
		assert.Equal(t, []string{"2"}, session.Excluded)
	})
}

func TestSessionRecord(t *testing.T) {
	model := createBradleyTerry()
	eval := DefaultEvaluator()
	target := createItem(t, "new", 5)
	opponent := createItem(t, "old", 5)

	t.Run("result is taken from the target's side", func(t *testing.T) {
		s, err := NewSession("new", Liked)
		require.NoError(t, err)

		outcome := Outcome{ItemAID: "old", ItemBID: "new", Result: WinA}
		next, newTarget, newOpponent, err := s.Record(outcome, target, opponent, model, eval)
		require.NoError(t, err)

		assert.Equal(t, 0.0, next.Wins)
		assert.Equal(t, 1, next.Comparisons)
		assert.Less(t, newTarget.Theta, target.Theta)
		assert.Greater(t, newOpponent.Theta, opponent.Theta)

		// Previous state is untouched
		assert.Empty(t, s.History)
		assert.Empty(t, s.Excluded)
	})

	t.Run("rejects outcomes for other items", func(t *testing.T) {
		s, err := NewSession("new", Liked)
		require.NoError(t, err)

		outcome := Outcome{ItemAID: "x", ItemBID: "old", Result: WinA}
		next, a, b, err := s.Record(outcome, target, opponent, model, eval)
		assert.ErrorIs(t, err, ErrNotInSession)
		assert.Equal(t, s, next)
		assert.Equal(t, target, a)
		assert.Equal(t, opponent, b)
	})

	t.Run("rejects unknown results", func(t *testing.T) {
		s, err := NewSession("new", Liked)
		require.NoError(t, err)

		outcome := Outcome{ItemAID: "new", ItemBID: "old", Result: "draw"}
		_, _, _, err = s.Record(outcome, target, opponent, model, eval)
		assert.ErrorIs(t, err, ErrUnknownOutcome)
	})

	t.Run("stopped session refuses more work", func(t *testing.T) {
		s, err := NewSession("new", Liked)
		require.NoError(t, err)
		s = s.Abort()
		assert.Equal(t, ReasonAborted, s.Reason)

		_, _, _, err = s.Record(Outcome{ItemAID: "new", ItemBID: "old", Result: WinA}, target, opponent, model, eval)
		assert.ErrorIs(t, err, ErrSessionStopped)

		_, _, err = s.NextOpponent([]Item{opponent}, Selector{})
		assert.ErrorIs(t, err, ErrSessionStopped)

		assert.Equal(t, ReasonAborted, s.Abort().Reason)
	})
}
