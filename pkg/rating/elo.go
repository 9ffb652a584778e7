package rating

import "math"

// Elo is the simple head-to-head fallback model. Ratings live on a linear
// scale of Scale points per consensus point.
type Elo struct {
	KFactor        int     // Initial K-factor
	DecayThreshold int     // Games per K halving; 0 disables decay
	Scale          float64 // Elo points per display point
	MinRating      float64 // Minimum allowed rating
	MaxRating      float64 // Maximum allowed rating
}

// Kind implements Model
func (e Elo) Kind() ModelKind { return EloModel }

// ExpectedScore computes the expected score for player A vs player B
func ExpectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10.0, (ratingB-ratingA)/400.0))
}

// KFactorFor returns the K-factor for an item that has played games comparisons.
// K halves once past the decay threshold and again past twice the threshold.
func (e Elo) KFactorFor(games int) float64 {
	k := float64(e.KFactor)
	if e.DecayThreshold <= 0 {
		return k
	}
	halvings := min(games/e.DecayThreshold, 2)
	for range halvings {
		k /= 2
	}
	return k
}

// Update implements Model
func (e Elo) Update(a, b Item, result Result) (Item, Item) {
	scoreA, scoreB := result.Scores()

	expectedA := ExpectedScore(a.EloRating, b.EloRating)
	expectedB := ExpectedScore(b.EloRating, a.EloRating)

	kA := e.KFactorFor(a.ComparisonCount + a.TieCount)
	kB := e.KFactorFor(b.ComparisonCount + b.TieCount)

	a.EloRating = e.clampRating(a.EloRating + kA*(scoreA-expectedA))
	b.EloRating = e.clampRating(b.EloRating + kB*(scoreB-expectedB))

	return tally(a, scoreA), tally(b, scoreB)
}

// clampRating ensures a rating stays within configured bounds
func (e Elo) clampRating(rating float64) float64 {
	if e.MinRating >= e.MaxRating {
		return rating
	}
	return clamp(rating, e.MinRating, e.MaxRating)
}

// Display implements Model
func (e Elo) Display(item Item) float64 {
	scale := e.Scale
	if scale <= 0 {
		scale = DefaultEloScale
	}
	return clamp(item.EloRating/scale, MinConsensusScore, MaxConsensusScore)
}

// WinProbability implements Model
func (e Elo) WinProbability(a, b Item) float64 {
	return ExpectedScore(a.EloRating, b.EloRating)
}
