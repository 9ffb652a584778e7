package rating

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sessionWith(wins float64, comparisons, ties int) Session {
	return Session{
		TargetID:    "new",
		Sentiment:   Liked,
		Status:      StatusInProgress,
		Wins:        wins,
		Comparisons: comparisons,
		Ties:        ties,
	}
}

func TestWilsonHalfWidth(t *testing.T) {
	t.Run("eight of ten at 95 percent", func(t *testing.T) {
		hw := WilsonHalfWidth(8, 10, 1.96)
		assert.InDelta(t, 0.2266, hw, 0.001)
	})

	t.Run("zero trials is unbounded", func(t *testing.T) {
		assert.True(t, math.IsInf(WilsonHalfWidth(0, 0, 1.96), 1))
	})

	t.Run("narrows with evidence", func(t *testing.T) {
		assert.Greater(t, WilsonHalfWidth(5, 10, 1.96), WilsonHalfWidth(50, 100, 1.96))
	})

	t.Run("bounds stay inside the unit interval", func(t *testing.T) {
		iv := Wilson(10, 10, 1.96)
		assert.InDelta(t, 1.0, iv.Upper, tolerance)
		assert.Greater(t, iv.Lower, 0.5)
		assert.Less(t, iv.Lower, 1.0)

		iv = Wilson(0, 3, 1.96)
		assert.InDelta(t, 0.0, iv.Lower, tolerance)
	})
}

func TestEvaluator(t *testing.T) {
	t.Run("default z", func(t *testing.T) {
		assert.InDelta(t, 1.96, DefaultEvaluator().Z, 0.001)
	})

	t.Run("threshold decides on the same evidence", func(t *testing.T) {
		s := sessionWith(8, 10, 0)
		strict := Evaluator{Z: 1.96, StopThreshold: 0.15, MaxComparisons: 20}
		loose := Evaluator{Z: 1.96, StopThreshold: 0.30, MaxComparisons: 20}

		assert.False(t, strict.ShouldStop(s))
		assert.True(t, loose.ShouldStop(s))

		_, reason := loose.Decide(s)
		assert.Equal(t, ReasonConfident, reason)
	})

	t.Run("empty session continues", func(t *testing.T) {
		assert.False(t, DefaultEvaluator().ShouldStop(sessionWith(0, 0, 0)))
	})

	t.Run("hard cap", func(t *testing.T) {
		e := DefaultEvaluator()
		stop, reason := e.Decide(sessionWith(5, 10, 0))
		assert.True(t, stop)
		assert.Equal(t, ReasonMaxComparisons, reason)

		assert.False(t, e.ShouldStop(sessionWith(4.5, 9, 0)))
	})

	t.Run("ties count towards the cap at reduced weight", func(t *testing.T) {
		e := DefaultEvaluator()
		// 8 + 0.75*2 = 9.5
		assert.False(t, e.ShouldStop(sessionWith(5, 8, 2)))
		// 8 + 0.75*3 = 10.25
		assert.True(t, e.ShouldStop(sessionWith(5.5, 8, 3)))
	})

	t.Run("minimum comparisons delay the confidence stop", func(t *testing.T) {
		e := Evaluator{Z: 1.96, StopThreshold: 0.30, MinComparisons: 12, MaxComparisons: 20}
		assert.False(t, e.ShouldStop(sessionWith(8, 10, 0)))
	})

	t.Run("unanimous wins stop after nine", func(t *testing.T) {
		e := DefaultEvaluator()
		assert.False(t, e.ShouldStop(sessionWith(8, 8, 0)))
		stop, reason := e.Decide(sessionWith(9, 9, 0))
		assert.True(t, stop)
		assert.Equal(t, ReasonConfident, reason)
	})
}
