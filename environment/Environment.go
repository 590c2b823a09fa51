// Package environment outlines the interfaces and structs needed to
// implement concrete environments
package environment

import (
	"gonum.org/v1/gonum/mat"

	"rlworks.org/dqn/spec"
	ts "rlworks.org/dqn/timestep"
)

// Starter implements a distribution of starting states and samples
// starting states for environments
type Starter interface {
	Start() mat.Vector
}

// Ender determines when environmental episodes end
type Ender interface {
	// End takes the most recent TimeStep in the environment and
	// returns whether the episode is now over. If so, End modifies
	// the TimeStep's StepType field to timestep.Last.
	End(*ts.TimeStep) bool
}

// Task implements the reward scheme for taking actions in some
// environment
type Task interface {
	Starter
	Ender

	// GetReward returns the reward for taking an action in some state,
	// resulting in a transition to nextState
	GetReward(state, action, nextState mat.Vector) float64

	// AtGoal returns whether the argument state is a goal state
	AtGoal(state mat.Matrix) bool

	// Min and Max return the minimum and maximum attainable rewards
	Min() float64
	Max() float64

	RewardSpec() spec.Environment
}

// Environment implements a simulated environment, which includes a
// Task to complete
type Environment interface {
	Task

	// Reset resets the environment between episodes
	Reset() ts.TimeStep

	// Step takes one environmental step given an action, returning
	// the next TimeStep and whether the episode has ended
	Step(action mat.Vector) (ts.TimeStep, bool)

	DiscountSpec() spec.Environment
	ObservationSpec() spec.Environment
	ActionSpec() spec.Environment
}
