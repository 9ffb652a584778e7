package rating

// BradleyTerry keeps a log-odds strength per item and shrinks the running
// evidence estimate toward the consensus prior.
type BradleyTerry struct {
	Alpha    float64 // Prior strength
	StepSize float64 // Base learning rate, decayed as 1/(n+1)
}

// Kind implements Model
func (m BradleyTerry) Kind() ModelKind { return BradleyTerryModel }

// Probability is P(A beats B) = exp(thetaA) / (exp(thetaA) + exp(thetaB))
func Probability(thetaA, thetaB float64) float64 {
	return Sigmoid(thetaA - thetaB)
}

// Shrink blends the evidence estimate with the prior, weighted by n against alpha
func Shrink(thetaMLE, thetaPrior, n, alpha float64) float64 {
	if n+alpha <= 0 {
		return thetaPrior
	}
	return (n*thetaMLE + alpha*thetaPrior) / (n + alpha)
}

// Update implements Model
func (m BradleyTerry) Update(a, b Item, result Result) (Item, Item) {
	scoreA, scoreB := result.Scores()
	pA := Probability(a.Theta, b.Theta)

	return m.step(a, scoreA, pA), m.step(b, scoreB, 1-pA)
}

func (m BradleyTerry) step(item Item, score, pWin float64) Item {
	eta := m.StepSize / (item.EffectiveN() + 1)
	item.ThetaMLE += eta * (score - pWin)

	item = tally(item, score)
	item.Theta = Shrink(item.ThetaMLE, item.ThetaPrior, item.EffectiveN(), m.Alpha)
	return item
}

// Display implements Model
func (m BradleyTerry) Display(item Item) float64 {
	return thetaToDisplay(item.Theta)
}

// WinProbability implements Model
func (m BradleyTerry) WinProbability(a, b Item) float64 {
	return Probability(a.Theta, b.Theta)
}
