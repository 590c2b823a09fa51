package adder

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	ts "rlworks.org/dqn/timestep"
)

// recordingBuffer records every transition added to it
type recordingBuffer struct {
	transitions []ts.Transition
}

func (r *recordingBuffer) Add(t ts.Transition) error {
	r.transitions = append(r.transitions, t)
	return nil
}

func obs(val float64) mat.Vector {
	return mat.NewVecDense(2, []float64{val, val})
}

func action(val float64) mat.Vector {
	return mat.NewVecDense(1, []float64{val})
}

func step(t ts.StepType, reward float64, obsVal float64,
	number int) ts.TimeStep {
	return ts.New(t, reward, 0.9, obs(obsVal), number)
}

func TestNStepRequiresPositiveN(t *testing.T) {
	_, err := NewNStep(0, &recordingBuffer{})
	require.Error(t, err)

	_, err = NewNStep(1, nil)
	require.Error(t, err)
}

func TestNStepObserveBeforeFirst(t *testing.T) {
	a, err := NewNStep(3, &recordingBuffer{})
	require.NoError(t, err)

	err = a.Observe(action(0), step(ts.Mid, 1, 1, 1))
	require.Error(t, err)
}

func TestNStepNoWritesBeforeWindowFills(t *testing.T) {
	buffer := &recordingBuffer{}
	a, err := NewNStep(3, buffer)
	require.NoError(t, err)

	a.ObserveFirst(step(ts.First, 0, 0, 0))
	require.NoError(t, a.Observe(action(0), step(ts.Mid, 1, 1, 1)))
	require.NoError(t, a.Observe(action(1), step(ts.Mid, 1, 2, 2)))
	require.Empty(t, buffer.transitions)

	// The third observation completes the first 3-step window
	require.NoError(t, a.Observe(action(2), step(ts.Mid, 1, 3, 3)))
	require.Len(t, buffer.transitions, 1)
}

func TestNStepTransitionContents(t *testing.T) {
	buffer := &recordingBuffer{}
	a, err := NewNStep(2, buffer)
	require.NoError(t, err)

	a.ObserveFirst(step(ts.First, 0, 10, 0))
	require.NoError(t, a.Observe(action(0), step(ts.Mid, 1, 11, 1)))
	require.NoError(t, a.Observe(action(1), step(ts.Mid, 2, 12, 2)))

	require.Len(t, buffer.transitions, 1)
	trans := buffer.transitions[0]

	// State and action come from the start of the window, the next
	// state from its end
	require.Equal(t, 10.0, trans.State.AtVec(0))
	require.Equal(t, 0.0, trans.Action.AtVec(0))
	require.Equal(t, 12.0, trans.NextState.AtVec(0))

	// R = r₁ + γ r₂ with γ = 0.9, and the compound discount is γ²
	require.InDelta(t, 1.0+0.9*2.0, trans.Reward, 1e-12)
	require.InDelta(t, 0.9*0.9, trans.Discount, 1e-12)
}

func TestNStepFlushesOnEpisodeEnd(t *testing.T) {
	buffer := &recordingBuffer{}
	a, err := NewNStep(3, buffer)
	require.NoError(t, err)

	a.ObserveFirst(step(ts.First, 0, 0, 0))
	require.NoError(t, a.Observe(action(0), step(ts.Mid, 1, 1, 1)))
	require.NoError(t, a.Observe(action(1), step(ts.Last, 1, 2, 2)))

	// Both partial windows are flushed when the episode ends
	require.Len(t, buffer.transitions, 2)

	// No transition crossing the end of an episode may bootstrap
	for _, trans := range buffer.transitions {
		require.Zero(t, trans.Discount)
	}

	// The flushed transitions shrink toward the final step
	require.Equal(t, 0.0, buffer.transitions[0].State.AtVec(0))
	require.Equal(t, 1.0, buffer.transitions[1].State.AtVec(0))
	require.Equal(t, 2.0, buffer.transitions[0].NextState.AtVec(0))
	require.Equal(t, 2.0, buffer.transitions[1].NextState.AtVec(0))

	// R = r₁ + γ r₂ for the full window, r₂ alone for the final one
	require.InDelta(t, 1.0+0.9*1.0, buffer.transitions[0].Reward, 1e-12)
	require.InDelta(t, 1.0, buffer.transitions[1].Reward, 1e-12)
}

func TestNStepNewEpisodeDiscardsWindow(t *testing.T) {
	buffer := &recordingBuffer{}
	a, err := NewNStep(3, buffer)
	require.NoError(t, err)

	a.ObserveFirst(step(ts.First, 0, 0, 0))
	require.NoError(t, a.Observe(action(0), step(ts.Mid, 1, 1, 1)))

	// Starting a new episode discards the pending partial window
	a.ObserveFirst(step(ts.First, 0, 5, 0))
	require.NoError(t, a.Observe(action(0), step(ts.Mid, 1, 6, 1)))
	require.NoError(t, a.Observe(action(1), step(ts.Mid, 1, 7, 2)))
	require.NoError(t, a.Observe(action(2), step(ts.Mid, 1, 8, 3)))

	require.Len(t, buffer.transitions, 1)
	require.Equal(t, 5.0, buffer.transitions[0].State.AtVec(0))
}
