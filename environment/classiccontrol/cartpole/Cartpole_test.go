package cartpole

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"

	env "rlworks.org/dqn/environment"
)

func newBalanceEnv(t *testing.T, episodeSteps int) *Cartpole {
	t.Helper()

	bounds := r1.Interval{Min: -0.01, Max: 0.01}
	starter := env.NewUniformStarter([]r1.Interval{bounds, bounds, bounds,
		bounds}, 14)
	task := NewBalance(starter, episodeSteps, FailAngle)
	c, firstStep := New(task, 0.99)

	if !firstStep.First() {
		t.Error("environment should start on a First timestep")
	}
	return c
}

func TestStepAdvancesState(t *testing.T) {
	c := newBalanceEnv(t, 500)

	step, done := c.Step(mat.NewVecDense(1, []float64{2}))
	if done {
		t.Fatal("episode should not end after a single step")
	}
	if step.Number != 1 {
		t.Errorf("expected timestep number 1, got %v", step.Number)
	}
	if step.Reward != 1.0 {
		t.Errorf("balanced pole should give reward 1, got %v", step.Reward)
	}

	// Accelerating right from rest must move the cart's velocity right
	if step.Observation.AtVec(1) <= 0 {
		t.Errorf("velocity should be positive after accelerating right, "+
			"got %v", step.Observation.AtVec(1))
	}
}

func TestEpisodeEndsAtStepLimit(t *testing.T) {
	limit := 10
	c := newBalanceEnv(t, limit)
	c.Reset()

	var done bool
	for i := 0; i < limit; i++ {
		// Alternate pushes to keep the pole up for the short episode
		action := float64(2 * (i % 2))
		_, done = c.Step(mat.NewVecDense(1, []float64{action}))
		if done {
			break
		}
	}
	if !done {
		t.Errorf("episode should have ended within %v steps", limit)
	}
}

func TestEpisodeEndsWhenPoleFalls(t *testing.T) {
	c := newBalanceEnv(t, 100000)
	c.Reset()

	// Constantly accelerating left topples the pole
	action := mat.NewVecDense(1, []float64{0})
	var last bool
	var reward float64
	for i := 0; i < 10000; i++ {
		step, done := c.Step(action)
		last, reward = done, step.Reward
		if done {
			break
		}
	}
	if !last {
		t.Fatal("pole never fell when constantly accelerating left")
	}
	if reward != -1.0 {
		t.Errorf("fallen pole should give reward -1, got %v", reward)
	}
}

func TestSpecs(t *testing.T) {
	c := newBalanceEnv(t, 500)

	if got := c.ObservationSpec().Shape.Len(); got != ObservationDims {
		t.Errorf("observation spec should have %v features, got %v",
			ObservationDims, got)
	}

	actions := c.ActionSpec()
	if int(actions.UpperBound.AtVec(0)) != MaxDiscreteAction {
		t.Errorf("expected max discrete action %v, got %v",
			MaxDiscreteAction, actions.UpperBound.AtVec(0))
	}

	if c.DiscountSpec().UpperBound.AtVec(0) != 0.99 {
		t.Error("discount spec should match the constructed discount")
	}
}

func TestNormalizeAngle(t *testing.T) {
	bounds := r1.Interval{Min: -math.Pi, Max: math.Pi}
	th := normalizeAngle(math.Pi+0.1, bounds)
	if th > bounds.Max || th < bounds.Min {
		t.Errorf("angle %v not normalized to within (-π, π)", th)
	}
}
