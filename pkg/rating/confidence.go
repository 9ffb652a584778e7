package rating

import "math"

// StopReason explains why a session finished
type StopReason string

// Stop reasons
const (
	ReasonNone           StopReason = ""
	ReasonConfident      StopReason = "confident"       // Interval narrowed below the threshold
	ReasonMaxComparisons StopReason = "max_comparisons" // Hard cap reached
	ReasonExhausted      StopReason = "exhausted"       // Every opponent already compared
	ReasonNotEnoughData  StopReason = "not_enough_data" // No rated history to compare against
	ReasonAborted        StopReason = "aborted"         // Caller gave up
)

// Interval is a Wilson score interval for the target's preference proportion
type Interval struct {
	Estimate  float64 // Observed proportion wins/n
	Lower     float64
	Upper     float64
	HalfWidth float64
}

// Evaluator decides when a session has gathered enough evidence
type Evaluator struct {
	Z              float64 // Normal quantile for the confidence level
	StopThreshold  float64 // Stop once the half-width is at or below this
	MinComparisons float64 // Effective comparisons required before the interval counts
	MaxComparisons float64 // Stop unconditionally at this many effective comparisons
}

// DefaultEvaluator uses 95% confidence, a 0.15 threshold and a cap of 10
func DefaultEvaluator() Evaluator {
	return DefaultConfig().Evaluator()
}

// WilsonHalfWidth returns the half-width of the Wilson score interval for
// wins successes out of n trials. It returns +Inf when n is not positive.
func WilsonHalfWidth(wins, n, z float64) float64 {
	return Wilson(wins, n, z).HalfWidth
}

// Wilson computes the full Wilson score interval
func Wilson(wins, n, z float64) Interval {
	if !(n > 0) || !isFinite(wins) || !isFinite(z) {
		return Interval{Lower: 0, Upper: 1, HalfWidth: math.Inf(1)}
	}

	p := clamp(wins/n, 0, 1)
	z2 := z * z
	denom := 1 + z2/n
	center := (p + z2/(2*n)) / denom
	half := z * math.Sqrt(p*(1-p)/n+z2/(4*n*n)) / denom

	return Interval{
		Estimate:  p,
		Lower:     clamp(center-half, 0, 1),
		Upper:     clamp(center+half, 0, 1),
		HalfWidth: half,
	}
}

// Interval computes the session's current Wilson interval
func (e Evaluator) Interval(s Session) Interval {
	return Wilson(s.Wins, s.EffectiveN(), e.Z)
}

// ShouldStop reports whether the session has gathered enough evidence
func (e Evaluator) ShouldStop(s Session) bool {
	stop, _ := e.Decide(s)
	return stop
}

// Decide is ShouldStop together with the reason for stopping
func (e Evaluator) Decide(s Session) (bool, StopReason) {
	n := s.EffectiveN()
	if n <= 0 {
		return false, ReasonNone
	}
	if n >= e.MinComparisons && e.Interval(s).HalfWidth <= e.StopThreshold {
		return true, ReasonConfident
	}
	if e.MaxComparisons > 0 && n >= e.MaxComparisons {
		return true, ReasonMaxComparisons
	}
	return false, ReasonNone
}
