package rating

import (
	"errors"
	"fmt"
	"slices"
)

// Session errors
var (
	ErrSessionStopped = errors.New("session is stopped")
	ErrNotInSession   = errors.New("outcome does not involve the session target")
)

// SessionStatus is the lifecycle state of a comparison session
type SessionStatus string

// Session states
const (
	StatusInProgress SessionStatus = "in_progress"
	StatusStopped    SessionStatus = "stopped"
)

// Session tracks the comparisons made while rating one new item.
// Methods never modify the receiver; they return the next state.
type Session struct {
	TargetID  string        `json:"target_id" yaml:"target_id"`
	Sentiment Bucket        `json:"sentiment" yaml:"sentiment"` // Where the user placed the item
	Excluded  []string      `json:"excluded" yaml:"excluded"`   // Opponents already compared
	History   []Outcome     `json:"history" yaml:"history"`
	Status    SessionStatus `json:"status" yaml:"status"`
	Reason    StopReason    `json:"reason,omitempty" yaml:"reason,omitempty"`

	// Target's perspective: ties count 0.5 towards Wins
	Wins        float64 `json:"wins" yaml:"wins"`
	Comparisons int     `json:"comparisons" yaml:"comparisons"`
	Ties        int     `json:"ties" yaml:"ties"`

	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
}

// NewSession starts rating targetID, first drawing opponents from sentiment
func NewSession(targetID string, sentiment Bucket) (Session, error) {
	if targetID == "" {
		return Session{}, fmt.Errorf("%w: target id is required", ErrItemMismatch)
	}
	if _, err := RangeFor(sentiment); err != nil {
		return Session{}, err
	}
	return Session{
		TargetID:  targetID,
		Sentiment: sentiment,
		Status:    StatusInProgress,
		Lower:     0,
		Upper:     1,
	}, nil
}

// EffectiveN is the tie-discounted number of comparisons in this session
func (s Session) EffectiveN() float64 {
	return float64(s.Comparisons) + TieWeight*float64(s.Ties)
}

// Stopped reports whether the session reached its terminal state
func (s Session) Stopped() bool {
	return s.Status == StatusStopped
}

// NextBucket cycles through the table starting at the sentiment bucket
func (s Session) NextBucket() Bucket {
	b := s.Sentiment
	for range len(s.History) % len(Buckets) {
		b = b.Next()
	}
	return b
}

// NextOpponent picks the next opponent. When none is left the returned session
// is stopped and the error is ErrNoOpponent.
func (s Session) NextOpponent(corpus []Item, selector Selector) (Session, Item, error) {
	if s.Stopped() {
		return s, Item{}, ErrSessionStopped
	}

	exclude := append(slices.Clone(s.Excluded), s.TargetID)
	opponent, err := selector.Select(s.NextBucket(), corpus, exclude...)
	if err != nil {
		if errors.Is(err, ErrNoOpponent) {
			reason := ReasonExhausted
			if len(s.History) == 0 {
				reason = ReasonNotEnoughData
			}
			return s.stop(reason), Item{}, err
		}
		return s, Item{}, err
	}
	return s, opponent, nil
}

// Record applies outcome between the target and opponent, then re-evaluates
// the stopping rule. The updated target and opponent are returned alongside
// the next session state. On error nothing changes.
func (s Session) Record(outcome Outcome, target, opponent Item, model Model, eval Evaluator) (Session, Item, Item, error) {
	if s.Stopped() {
		return s, target, opponent, ErrSessionStopped
	}
	if target.ID != s.TargetID {
		return s, target, opponent, fmt.Errorf("%w: target %s, session %s", ErrNotInSession, target.ID, s.TargetID)
	}
	if outcome.ItemAID != s.TargetID && outcome.ItemBID != s.TargetID {
		return s, target, opponent, ErrNotInSession
	}

	newTarget, newOpponent, err := ApplyRecorded(target, opponent, outcome, model)
	if err != nil {
		return s, target, opponent, err
	}

	// Express the result from the target's side
	result := outcome.Result
	if outcome.ItemBID == s.TargetID {
		result = result.Mirror()
	}
	score, _ := result.Scores()

	next := s
	next.History = append(slices.Clone(s.History), outcome)
	if !slices.Contains(s.Excluded, opponent.ID) {
		next.Excluded = append(slices.Clone(s.Excluded), opponent.ID)
	}
	next.Wins += score
	if result == Tie {
		next.Ties++
	} else {
		next.Comparisons++
	}

	interval := eval.Interval(next)
	next.Lower, next.Upper = interval.Lower, interval.Upper

	if stop, reason := eval.Decide(next); stop {
		next = next.stop(reason)
	}
	return next, newTarget, newOpponent, nil
}

// Abort stops the session without further comparisons
func (s Session) Abort() Session {
	if s.Stopped() {
		return s
	}
	return s.stop(ReasonAborted)
}

func (s Session) stop(reason StopReason) Session {
	s.Status = StatusStopped
	s.Reason = reason
	return s
}
