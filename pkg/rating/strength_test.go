package rating

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createBradleyTerry() BradleyTerry {
	cfg := DefaultConfig()
	return BradleyTerry{Alpha: cfg.Alpha, StepSize: cfg.StepSize}
}

func TestProbability(t *testing.T) {
	t.Run("known value", func(t *testing.T) {
		p := Probability(1.0, -1.0)
		expected := math.Exp(1) / (math.Exp(1) + math.Exp(-1))
		assert.InDelta(t, expected, p, tolerance)
		assert.InDelta(t, 0.8808, p, 0.0001)
	})

	t.Run("complementary for any finite pair", func(t *testing.T) {
		values := []float64{-50, -7.5, -2, -0.3, 0, 0.1, 1, 3.3, 12, 50}
		for _, a := range values {
			for _, b := range values {
				sum := Probability(a, b) + Probability(b, a)
				assert.InDelta(t, 1.0, sum, tolerance, "theta %v vs %v", a, b)
			}
		}
	})

	t.Run("equal strengths are a coin flip", func(t *testing.T) {
		assert.Equal(t, 0.5, Probability(2.2, 2.2))
	})
}

func TestShrink(t *testing.T) {
	assert.Equal(t, 1.5, Shrink(3.0, 1.5, 0, 10))
	assert.InDelta(t, 2.0, Shrink(3.0, 1.0, 10, 10), tolerance)
	assert.Equal(t, 3.0, Shrink(3.0, 1.0, 10, 0))
	assert.Equal(t, 1.0, Shrink(3.0, 1.0, 0, 0))
}

func TestBradleyTerryUpdate(t *testing.T) {
	model := createBradleyTerry()

	t.Run("win between equal items", func(t *testing.T) {
		a := createItem(t, "a", 5)
		b := createItem(t, "b", 5)

		newA, newB := model.Update(a, b, WinA)

		// eta = 1, p = 0.5, mle = +/-0.5, posterior = 0.5 / 11
		assert.InDelta(t, 0.5, newA.ThetaMLE, tolerance)
		assert.InDelta(t, -0.5, newB.ThetaMLE, tolerance)
		assert.InDelta(t, 0.5/11, newA.Theta, tolerance)
		assert.InDelta(t, -0.5/11, newB.Theta, tolerance)

		assert.Equal(t, 1, newA.ComparisonCount)
		assert.Equal(t, 1, newB.ComparisonCount)
		assert.Equal(t, 1.0, newA.Wins)
		assert.Equal(t, 1.0, newB.Losses)
		assert.Equal(t, a.ThetaPrior, newA.ThetaPrior)
	})

	t.Run("inputs are not modified", func(t *testing.T) {
		a := createItem(t, "a", 7)
		b := createItem(t, "b", 4)
		origA, origB := a, b

		model.Update(a, b, WinB)
		assert.Equal(t, origA, a)
		assert.Equal(t, origB, b)
	})

	t.Run("upset moves ratings further than expected win", func(t *testing.T) {
		strong := createItem(t, "s", 9)
		weak := createItem(t, "w", 2)

		expectedWin, _ := model.Update(strong, weak, WinA)
		upset, _ := model.Update(strong, weak, WinB)

		gain := expectedWin.Theta - strong.Theta
		loss := strong.Theta - upset.Theta
		assert.Greater(t, gain, 0.0)
		assert.Greater(t, loss, gain)
	})

	t.Run("tie counts partially", func(t *testing.T) {
		a := createItem(t, "a", 6)
		b := createItem(t, "b", 6)

		newA, newB := model.Update(a, b, Tie)
		assert.Equal(t, 1, newA.TieCount)
		assert.Equal(t, 0, newA.ComparisonCount)
		assert.InDelta(t, 0.75, newA.EffectiveN(), tolerance)
		assert.Equal(t, 0.5, newB.Wins)
		assert.Equal(t, 0.5, newB.Losses)
		assert.InDelta(t, a.Theta, newA.Theta, tolerance)
	})

	t.Run("learning rate decays with evidence", func(t *testing.T) {
		a := createItem(t, "a", 5)
		b := createItem(t, "b", 5)
		fresh, _ := model.Update(a, b, WinA)

		a.ComparisonCount = 9
		b.ComparisonCount = 9
		seasoned, _ := model.Update(a, b, WinA)

		assert.InDelta(t, 0.5, fresh.ThetaMLE-a.ThetaMLE, tolerance)
		assert.InDelta(t, 0.05, seasoned.ThetaMLE-a.ThetaMLE, tolerance)
	})
}

func TestTieConvergence(t *testing.T) {
	model := createBradleyTerry()

	t.Run("equal priors stay equal", func(t *testing.T) {
		a := createItem(t, "a", 7.2)
		b := createItem(t, "b", 7.2)

		for range 500 {
			a, b = model.Update(a, b, Tie)
		}
		assert.Equal(t, 0.0, a.Theta-b.Theta)
		assert.Equal(t, 500, a.TieCount)
	})

	t.Run("perturbed strengths are pulled together", func(t *testing.T) {
		a := Item{ID: "a", Theta: 1, ThetaMLE: 1}
		b := Item{ID: "b", Theta: -1, ThetaMLE: -1}

		for range 100 {
			a, b = model.Update(a, b, Tie)
		}
		diff := math.Abs(a.Theta - b.Theta)
		assert.Less(t, diff, 1.0)
		require.NoError(t, a.Validate())
		require.NoError(t, b.Validate())
		assert.InDelta(t, -a.Theta, b.Theta, tolerance)
	})
}

func TestDisplayRatingRange(t *testing.T) {
	model := createBradleyTerry()
	for _, theta := range []float64{-math.MaxFloat64, -1e6, -40, -1, 0, 1, 40, 1e6, math.MaxFloat64} {
		r := model.Display(Item{Theta: theta})
		assert.GreaterOrEqual(t, r, 0.0, "theta %v", theta)
		assert.LessOrEqual(t, r, 10.0, "theta %v", theta)
	}
	assert.InDelta(t, 5.0, model.Display(Item{}), tolerance)
}
