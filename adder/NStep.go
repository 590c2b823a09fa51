// Package adder implements adders which convert streams of
// environmental timesteps into transitions stored in a replay table.
package adder

import (
	"fmt"

	"github.com/gammazero/deque"
	"gonum.org/v1/gonum/mat"

	ts "rlworks.org/dqn/timestep"
)

// Buffer is the destination that an adder writes transitions to
type Buffer interface {
	Add(ts.Transition) error
}

// entry is a single step of experience held in the adder's window: the
// timestep at which an action was taken and the action itself
type entry struct {
	step   ts.TimeStep
	action mat.Vector
}

// NStep converts a stream of timesteps and actions into n-step
// transitions and writes them to a Buffer.
//
// A transition spans from a start step to the step n steps later (or
// to the episode's final step, whichever comes first). Its reward is
// the discounted sum of the rewards accrued along the way, and its
// discount is the product of the per-step discounts, which is 0 when
// the window crosses the end of an episode so that no bootstrapping
// occurs past episode boundaries.
//
// Between the start step of an episode and step n-1, no transitions
// are written. When an episode ends, the partial windows that remain
// are flushed as transitions of fewer than n steps.
//
// The next action of a written transition is not yet known when the
// transition is written, so it is stored as a zero vector.
type NStep struct {
	n      int
	buffer Buffer
	window *deque.Deque[entry]

	lastStep ts.TimeStep
	started  bool
}

// NewNStep returns a new NStep adder which writes transitions of at
// most n steps to buffer
func NewNStep(n int, buffer Buffer) (*NStep, error) {
	if n < 1 {
		return nil, fmt.Errorf("newnstep: n must be >= 1 \n\thave(%v)", n)
	}
	if buffer == nil {
		return nil, fmt.Errorf("newnstep: buffer cannot be nil")
	}

	return &NStep{
		n:      n,
		buffer: buffer,
		window: deque.New[entry](),
	}, nil
}

// N returns the maximum number of steps a written transition spans
func (a *NStep) N() int {
	return a.n
}

// ObserveFirst starts a new episode at the given timestep. Any window
// left over from a previous episode is discarded.
func (a *NStep) ObserveFirst(step ts.TimeStep) {
	a.window.Clear()
	a.lastStep = step
	a.started = true
}

// Observe records that action was taken at the previously observed
// timestep and that the environment transitioned to step. Complete
// windows are written to the buffer, and when step ends the episode,
// all partial windows are flushed.
func (a *NStep) Observe(action mat.Vector, step ts.TimeStep) error {
	if !a.started {
		return fmt.Errorf("observe: ObserveFirst must be called before " +
			"Observe")
	}

	a.window.PushBack(entry{step: a.lastStep, action: action})
	a.lastStep = step

	if step.Last() {
		// Flush every remaining window, shrinking from the front
		for a.window.Len() > 0 {
			if err := a.write(step); err != nil {
				return fmt.Errorf("observe: %v", err)
			}
			a.window.PopFront()
		}
		a.started = false
		return nil
	}

	if a.window.Len() == a.n {
		if err := a.write(step); err != nil {
			return fmt.Errorf("observe: %v", err)
		}
		a.window.PopFront()
	}
	return nil
}

// write writes the transition spanning the current window to the
// buffer. The end parameter is the timestep that ends the window.
func (a *NStep) write(end ts.TimeStep) error {
	start := a.window.Front()

	// Accumulate the n-step return and the compound discount. The
	// reward for the action at window step i is stored on step i+1.
	reward := 0.0
	discount := 1.0
	for i := 1; i <= a.window.Len(); i++ {
		var step ts.TimeStep
		if i < a.window.Len() {
			step = a.window.At(i).step
		} else {
			step = end
		}

		reward += discount * step.Reward
		discount *= stepDiscount(step)
	}

	transition := ts.Transition{
		State:      start.step.Observation,
		Action:     start.action,
		Reward:     reward,
		Discount:   discount,
		NextState:  end.Observation,
		NextAction: mat.NewVecDense(start.action.Len(), nil),
	}

	if err := a.buffer.Add(transition); err != nil {
		return fmt.Errorf("write: could not add transition: %v", err)
	}
	return nil
}

// stepDiscount returns the discount that a timestep contributes to the
// compound discount of a window. A step that ends an episode
// contributes 0 so that the n-step return never bootstraps past the
// end of an episode.
func stepDiscount(step ts.TimeStep) float64 {
	if step.Last() {
		return 0.0
	}
	return step.Discount
}
