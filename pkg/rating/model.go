package rating

import "fmt"

// Model is a rating strategy. Implementations are pure: they return updated
// copies and never modify their inputs.
type Model interface {
	Kind() ModelKind
	// Update applies one result between a and b
	Update(a, b Item, result Result) (Item, Item)
	// Display maps an item's model state onto [0,10]
	Display(item Item) float64
	// WinProbability is the model's estimate that a is preferred over b
	WinProbability(a, b Item) float64
}

// ApplyOutcome validates its inputs and feeds one result to model.
// On any error both items are returned unchanged.
func ApplyOutcome(a, b Item, result Result, model Model) (Item, Item, error) {
	if model == nil {
		return a, b, fmt.Errorf("%w: model is nil", ErrUnknownModel)
	}
	if err := result.Validate(); err != nil {
		return a, b, err
	}
	if a.ID == b.ID {
		return a, b, ErrSameItem
	}
	if err := a.Validate(); err != nil {
		return a, b, err
	}
	if err := b.Validate(); err != nil {
		return a, b, err
	}

	newA, newB := model.Update(a, b, result)

	// Only hand back state that still satisfies the invariants
	if err := newA.Validate(); err != nil {
		return a, b, err
	}
	if err := newB.Validate(); err != nil {
		return a, b, err
	}
	return newA, newB, nil
}

// ApplyRecorded applies a recorded outcome; a and b may be given in either order
func ApplyRecorded(a, b Item, outcome Outcome, model Model) (Item, Item, error) {
	if err := outcome.Validate(); err != nil {
		return a, b, err
	}
	switch {
	case outcome.ItemAID == a.ID && outcome.ItemBID == b.ID:
		return ApplyOutcome(a, b, outcome.Result, model)
	case outcome.ItemAID == b.ID && outcome.ItemBID == a.ID:
		newB, newA, err := ApplyOutcome(b, a, outcome.Result, model)
		return newA, newB, err
	}
	return a, b, fmt.Errorf("%w: outcome %s vs %s, items %s and %s",
		ErrItemMismatch, outcome.ItemAID, outcome.ItemBID, a.ID, b.ID)
}

// DisplayRating is the item's 0-10 rating under model
func DisplayRating(item Item, model Model) float64 {
	if model == nil {
		return thetaToDisplay(item.Theta)
	}
	return clamp(model.Display(item), MinConsensusScore, MaxConsensusScore)
}

// WinProbability is the probability that a is preferred over b under model
func WinProbability(a, b Item, model Model) float64 {
	if model == nil {
		return Probability(a.Theta, b.Theta)
	}
	return model.WinProbability(a, b)
}
