// Package rating provides the pairwise-comparison rating engine: seeding items
// from a consensus prior, Bradley-Terry and Elo update models, opponent
// selection by sentiment bucket, and the Wilson-interval stopping rule.
//
// Every operation is a pure function over explicit Item and Session values.
// Nothing in this package performs I/O, logs, or holds global state.
package rating

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Error types for validation
var (
	ErrInvalidScore   = errors.New("consensus score is invalid")
	ErrNonFinite      = errors.New("value is not finite")
	ErrUnknownOutcome = errors.New("unknown comparison outcome")
	ErrItemMismatch   = errors.New("outcome does not reference the given items")
	ErrSameItem       = errors.New("an item cannot be compared with itself")
)

// Consensus score bounds
const (
	MinConsensusScore = 0.0
	MaxConsensusScore = 10.0

	// Prior clamp keeps the logit away from ln(0) and ln(inf).
	MinPriorScore = 0.5
	MaxPriorScore = 9.5

	// DefaultConsensusScore is used when the provider has no score for an item.
	DefaultConsensusScore = 6.5

	// TieWeight is the Fisher-information weight of a tie relative to a clear result.
	TieWeight = 0.75
)

// Result is the outcome of a single head-to-head comparison
type Result string

// Supported results
const (
	WinA Result = "win_a" // First item preferred
	WinB Result = "win_b" // Second item preferred
	Tie  Result = "tie"   // Too close to call
)

// Validate rejects anything outside {WinA, WinB, Tie}
func (r Result) Validate() error {
	switch r {
	case WinA, WinB, Tie:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownOutcome, string(r))
}

// Scores returns the actual scores credited to A and B
func (r Result) Scores() (float64, float64) {
	switch r {
	case WinA:
		return 1, 0
	case WinB:
		return 0, 1
	default:
		return 0.5, 0.5
	}
}

// Mirror swaps the perspective of the result
func (r Result) Mirror() Result {
	switch r {
	case WinA:
		return WinB
	case WinB:
		return WinA
	default:
		return r
	}
}

// ParseResult maps user-facing spellings onto a Result
func ParseResult(s string) (Result, error) {
	switch s {
	case "win_a", "a", "A", "a_wins":
		return WinA, nil
	case "win_b", "b", "B", "b_wins":
		return WinB, nil
	case "tie", "t", "T", "too_tough":
		return Tie, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOutcome, s)
}

// Outcome records one resolved comparison. It is never mutated once recorded.
type Outcome struct {
	ItemAID   string    `json:"item_a_id" yaml:"item_a_id"`
	ItemBID   string    `json:"item_b_id" yaml:"item_b_id"`
	Result    Result    `json:"result" yaml:"result"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Validate checks the outcome shape before any model update runs
func (o Outcome) Validate() error {
	if o.ItemAID == "" || o.ItemBID == "" {
		return fmt.Errorf("%w: item ids are required", ErrItemMismatch)
	}
	if o.ItemAID == o.ItemBID {
		return ErrSameItem
	}
	return o.Result.Validate()
}

// Item is a ratable movie or show together with both models' state
type Item struct {
	ID             string  `json:"id" yaml:"id"`
	ConsensusScore float64 `json:"consensus_score" yaml:"consensus_score"` // External prior, (0,10)

	Theta      float64 `json:"theta" yaml:"theta"`             // Posterior log-odds strength
	ThetaPrior float64 `json:"theta_prior" yaml:"theta_prior"` // Seeded from the consensus score, never updated
	ThetaMLE   float64 `json:"theta_mle" yaml:"theta_mle"`     // Running evidence estimate

	EloRating float64 `json:"elo_rating" yaml:"elo_rating"`

	ComparisonCount int     `json:"comparison_count" yaml:"comparison_count"` // Clear outcomes
	TieCount        int     `json:"tie_count" yaml:"tie_count"`
	Wins            float64 `json:"wins" yaml:"wins"`     // Ties add 0.5
	Losses          float64 `json:"losses" yaml:"losses"` // Ties add 0.5
}

// EffectiveN is the tie-discounted number of comparisons
func (i Item) EffectiveN() float64 {
	return float64(i.ComparisonCount) + TieWeight*float64(i.TieCount)
}

// Validate checks the item invariants
func (i Item) Validate() error {
	for name, v := range map[string]float64{
		"theta":       i.Theta,
		"theta_prior": i.ThetaPrior,
		"theta_mle":   i.ThetaMLE,
		"elo_rating":  i.EloRating,
		"wins":        i.Wins,
		"losses":      i.Losses,
	} {
		if !isFinite(v) {
			return fmt.Errorf("%w: item %s field %s", ErrNonFinite, i.ID, name)
		}
	}
	if i.ComparisonCount < 0 || i.TieCount < 0 || i.Wins < 0 || i.Losses < 0 {
		return fmt.Errorf("%w: item %s has negative counters", ErrInvalidScore, i.ID)
	}
	return nil
}

// SeedState is the model state derived from a consensus score
type SeedState struct {
	Theta         float64
	EloRating     float64
	DisplayRating float64
}

// Seed initialises model state from a consensus score using the default Elo
// scale. Out-of-range values are clamped and NaN falls back to
// DefaultConsensusScore.
func Seed(consensusScore float64) SeedState {
	return seed(consensusScore, DefaultEloScale)
}

func seed(consensusScore float64, eloScale float64) SeedState {
	score := SanitizeScore(consensusScore)
	theta := Logit(clamp(score, MinPriorScore, MaxPriorScore) / MaxConsensusScore)
	return SeedState{
		Theta:         theta,
		EloRating:     score * eloScale,
		DisplayRating: thetaToDisplay(theta),
	}
}

// NewItem creates a freshly seeded item on the default Elo scale
func NewItem(id string, consensusScore float64) (Item, error) {
	return newItem(id, consensusScore, DefaultEloScale)
}

// newItem rejects non-finite scores and clamps finite out-of-range scores
// to the nearest boundary.
func newItem(id string, consensusScore float64, eloScale float64) (Item, error) {
	if id == "" {
		return Item{}, fmt.Errorf("%w: item id is required", ErrInvalidScore)
	}
	if err := ValidateScore(consensusScore); err != nil {
		return Item{}, err
	}
	score := SanitizeScore(consensusScore)
	st := seed(score, eloScale)
	return Item{
		ID:             id,
		ConsensusScore: score,
		Theta:          st.Theta,
		ThetaPrior:     st.Theta,
		ThetaMLE:       st.Theta,
		EloRating:      st.EloRating,
	}, nil
}

// ValidateScore rejects NaN and infinite consensus scores
func ValidateScore(score float64) error {
	if !isFinite(score) {
		return fmt.Errorf("%w: %v", ErrInvalidScore, score)
	}
	return nil
}

// SanitizeScore maps any input onto [0,10]
func SanitizeScore(score float64) float64 {
	if math.IsNaN(score) {
		return DefaultConsensusScore
	}
	return clamp(score, MinConsensusScore, MaxConsensusScore)
}

// Sigmoid is the logistic function, computed without overflow for large |x|
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Logit is the inverse of Sigmoid
func Logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

func thetaToDisplay(theta float64) float64 {
	return clamp(MaxConsensusScore*Sigmoid(theta), MinConsensusScore, MaxConsensusScore)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// tally updates the outcome counters shared by every model
func tally(item Item, score float64) Item {
	if score == 0.5 {
		item.TieCount++
	} else {
		item.ComparisonCount++
	}
	item.Wins += score
	item.Losses += 1 - score
	return item
}
