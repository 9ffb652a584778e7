package rating

import (
	"errors"
	"fmt"
	"math"
)

// Configuration errors
var (
	ErrInvalidConfig = errors.New("invalid rating engine configuration")
	ErrUnknownModel  = errors.New("unknown rating model")
)

// ModelKind names a rating model
type ModelKind string

// Supported models
const (
	BradleyTerryModel ModelKind = "bradley_terry"
	EloModel          ModelKind = "elo"
)

// DefaultEloScale maps a 0-10 consensus score onto a 0-1000 Elo rating. The
// classic seeding multiplies by 10; set Config.EloScale to 10 to reproduce it.
const DefaultEloScale = 100.0

// Config holds the engine parameters
type Config struct {
	Model ModelKind // Active model for sessions

	Alpha    float64 // Prior strength; larger values drift more slowly from the consensus prior
	StepSize float64 // Base learning rate for the running evidence estimate

	ConfidenceLevel float64 // Two-sided confidence level for the Wilson interval
	StopThreshold   float64 // Interval half-width at or below which comparisons stop
	MinComparisons  float64 // Effective comparisons required before the interval may stop a session
	MaxComparisons  float64 // Hard cap on effective comparisons

	EloKFactor        int     // Initial K-factor
	EloDecayThreshold int     // Games after which K halves (and halves again at twice this)
	EloScale          float64 // Elo points per consensus point
	EloMinRating      float64 // Minimum allowed Elo rating
	EloMaxRating      float64 // Maximum allowed Elo rating
}

// DefaultConfig returns the recommended engine settings
func DefaultConfig() Config {
	return Config{
		Model:             BradleyTerryModel,
		Alpha:             10.0,
		StepSize:          1.0,
		ConfidenceLevel:   0.95,
		StopThreshold:     0.15,
		MinComparisons:    0,
		MaxComparisons:    10,
		EloKFactor:        32,
		EloDecayThreshold: 10,
		EloScale:          DefaultEloScale,
		EloMinRating:      0.0,
		EloMaxRating:      3000.0,
	}
}

// Validate checks the configuration before any engine is built from it
func (c Config) Validate() error {
	if _, err := ParseModelKind(string(c.Model)); err != nil {
		return err
	}
	if !isFinite(c.Alpha) || c.Alpha < 0 {
		return fmt.Errorf("%w: alpha must be non-negative, got %v", ErrInvalidConfig, c.Alpha)
	}
	if !isFinite(c.StepSize) || c.StepSize <= 0 {
		return fmt.Errorf("%w: step size must be positive, got %v", ErrInvalidConfig, c.StepSize)
	}
	if !(c.ConfidenceLevel > 0 && c.ConfidenceLevel < 1) {
		return fmt.Errorf("%w: confidence level must be in (0,1), got %v", ErrInvalidConfig, c.ConfidenceLevel)
	}
	if !isFinite(c.StopThreshold) || c.StopThreshold <= 0 {
		return fmt.Errorf("%w: stop threshold must be positive, got %v", ErrInvalidConfig, c.StopThreshold)
	}
	if !isFinite(c.MaxComparisons) || c.MaxComparisons <= 0 {
		return fmt.Errorf("%w: max comparisons must be positive, got %v", ErrInvalidConfig, c.MaxComparisons)
	}
	if !isFinite(c.MinComparisons) || c.MinComparisons < 0 || c.MinComparisons > c.MaxComparisons {
		return fmt.Errorf("%w: min comparisons (%v) must be between 0 and max comparisons (%v)",
			ErrInvalidConfig, c.MinComparisons, c.MaxComparisons)
	}
	if c.EloKFactor <= 0 {
		return fmt.Errorf("%w: k-factor must be positive, got %d", ErrInvalidConfig, c.EloKFactor)
	}
	if c.EloDecayThreshold < 0 {
		return fmt.Errorf("%w: k-factor decay threshold must be non-negative, got %d", ErrInvalidConfig, c.EloDecayThreshold)
	}
	if !isFinite(c.EloScale) || c.EloScale <= 0 {
		return fmt.Errorf("%w: elo scale must be positive, got %v", ErrInvalidConfig, c.EloScale)
	}
	if !isFinite(c.EloMinRating) || !isFinite(c.EloMaxRating) || c.EloMinRating >= c.EloMaxRating {
		return fmt.Errorf("%w: min rating (%.2f) must be less than max rating (%.2f)",
			ErrInvalidConfig, c.EloMinRating, c.EloMaxRating)
	}
	return nil
}

// ParseModelKind validates a model name
func ParseModelKind(s string) (ModelKind, error) {
	switch ModelKind(s) {
	case BradleyTerryModel, EloModel:
		return ModelKind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
}

// Z returns the two-sided normal quantile for the configured confidence level
func (c Config) Z() float64 {
	return math.Sqrt2 * math.Erfinv(c.ConfidenceLevel)
}

// Seed initialises model state on the configured Elo scale
func (c Config) Seed(consensusScore float64) SeedState {
	return seed(consensusScore, c.EloScale)
}

// NewItem creates a freshly seeded item on the configured Elo scale
func (c Config) NewItem(id string, consensusScore float64) (Item, error) {
	return newItem(id, consensusScore, c.EloScale)
}

// NewModel builds the model named by kind
func (c Config) NewModel(kind ModelKind) (Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch kind {
	case BradleyTerryModel:
		return BradleyTerry{Alpha: c.Alpha, StepSize: c.StepSize}, nil
	case EloModel:
		return Elo{
			KFactor:        c.EloKFactor,
			DecayThreshold: c.EloDecayThreshold,
			Scale:          c.EloScale,
			MinRating:      c.EloMinRating,
			MaxRating:      c.EloMaxRating,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownModel, string(kind))
}

// Evaluator builds the stopping-rule evaluator
func (c Config) Evaluator() Evaluator {
	return Evaluator{
		Z:              c.Z(),
		StopThreshold:  c.StopThreshold,
		MinComparisons: c.MinComparisons,
		MaxComparisons: c.MaxComparisons,
	}
}
