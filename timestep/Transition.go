package timestep

import "gonum.org/v1/gonum/mat"

// Transition packages together a single transition of the
// agent-environment interaction: taking action Action in state State,
// the agent received reward Reward and moved to state NextState, where
// it selected action NextAction. The Discount field holds the discount
// applied to action values of NextState when bootstrapping. For
// n-step transitions, Reward is the discounted n-step return and
// Discount is the product of the intermediate per-step discounts.
type Transition struct {
	State      mat.Vector
	Action     mat.Vector
	Reward     float64
	Discount   float64
	NextState  mat.Vector
	NextAction mat.Vector
}

// NewTransition packages two sequential timesteps and their associated
// actions into a Transition
func NewTransition(step TimeStep, action mat.Vector, nextStep TimeStep,
	nextAction mat.Vector) Transition {
	return Transition{
		State:      step.Observation,
		Action:     action,
		Reward:     nextStep.Reward,
		Discount:   nextStep.Discount,
		NextState:  nextStep.Observation,
		NextAction: nextAction,
	}
}
