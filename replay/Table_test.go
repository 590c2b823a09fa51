package replay

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"rlworks.org/dqn/timestep"
)

const (
	testFeatures = 2
	testActions  = 1
)

// newTestTransition returns a transition whose vectors are filled with
// val, so that sampled data can be traced back to the Add that
// produced it
func newTestTransition(val float64) timestep.Transition {
	state := mat.NewVecDense(testFeatures, []float64{val, val})
	action := mat.NewVecDense(testActions, []float64{val})
	nextState := mat.NewVecDense(testFeatures, []float64{val + 1, val + 1})
	nextAction := mat.NewVecDense(testActions, []float64{val + 1})

	return timestep.Transition{
		State:      state,
		Action:     action,
		Reward:     val,
		Discount:   0.99,
		NextState:  nextState,
		NextAction: nextAction,
	}
}

func newTestTable(t *testing.T, config Config) *Table {
	t.Helper()

	table, err := config.Create(testFeatures, testActions, 14)
	require.NoError(t, err)
	return table
}

func TestTableSampleEmpty(t *testing.T) {
	table := newTestTable(t, Config{
		RemoveMethod:      Fifo,
		SampleMethod:      Uniform,
		RemoveSize:        1,
		SampleSize:        2,
		MaxReplayCapacity: 10,
		MinReplayCapacity: 1,
	})

	_, err := table.Sample()
	require.Error(t, err)
	require.True(t, IsEmptyTable(err))
}

func TestTableSampleBelowMinCapacity(t *testing.T) {
	table := newTestTable(t, Config{
		RemoveMethod:      Fifo,
		SampleMethod:      Uniform,
		RemoveSize:        1,
		SampleSize:        2,
		MaxReplayCapacity: 10,
		MinReplayCapacity: 5,
	})

	require.NoError(t, table.Add(newTestTransition(1)))

	_, err := table.Sample()
	require.Error(t, err)
	require.True(t, IsInsufficientSamples(err))
	require.False(t, IsEmptyTable(err))
}

func TestTableSample(t *testing.T) {
	table := newTestTable(t, Config{
		RemoveMethod:      Fifo,
		SampleMethod:      Uniform,
		RemoveSize:        1,
		SampleSize:        3,
		MaxReplayCapacity: 10,
		MinReplayCapacity: 1,
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, table.Add(newTestTransition(float64(i))))
	}

	batch, err := table.Sample()
	require.NoError(t, err)

	require.Len(t, batch.State, 3*testFeatures)
	require.Len(t, batch.NextState, 3*testFeatures)
	require.Len(t, batch.Action, 3*testActions)
	require.Len(t, batch.Reward, 3)
	require.Len(t, batch.Discount, 3)
	require.Len(t, batch.Indices, 3)
	require.Len(t, batch.Weights, 3)

	// Each sampled transition must be internally consistent: all state
	// features equal the reward, and the next state is one greater
	for i := 0; i < 3; i++ {
		val := batch.Reward[i]
		require.Equal(t, val, batch.State[i*testFeatures])
		require.Equal(t, val, batch.State[i*testFeatures+1])
		require.Equal(t, val+1, batch.NextState[i*testFeatures])
		require.Equal(t, val, batch.Action[i])
		require.Equal(t, 0.99, batch.Discount[i])
	}
}

func TestTableUniformWeightsAreOne(t *testing.T) {
	table := newTestTable(t, Config{
		RemoveMethod:      Fifo,
		SampleMethod:      Uniform,
		RemoveSize:        1,
		SampleSize:        4,
		MaxReplayCapacity: 10,
		MinReplayCapacity: 1,
		ISExponent:        0.2,
	})

	for i := 0; i < 6; i++ {
		require.NoError(t, table.Add(newTestTransition(float64(i))))
	}

	batch, err := table.Sample()
	require.NoError(t, err)
	for _, w := range batch.Weights {
		require.Equal(t, 1.0, w)
	}
}

func TestTableFifoRemoval(t *testing.T) {
	table := newTestTable(t, Config{
		RemoveMethod:      Fifo,
		SampleMethod:      Uniform,
		RemoveSize:        1,
		SampleSize:        1,
		MaxReplayCapacity: 3,
		MinReplayCapacity: 1,
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, table.Add(newTestTransition(float64(i))))
	}
	require.Equal(t, 3, table.Capacity())

	// The two oldest transitions were removed, so rewards 0 and 1
	// should never be sampled again
	for i := 0; i < 50; i++ {
		batch, err := table.Sample()
		require.NoError(t, err)
		require.GreaterOrEqual(t, batch.Reward[0], 2.0)
	}
}

func TestTablePrioritizedSampling(t *testing.T) {
	table := newTestTable(t, Config{
		RemoveMethod:      Fifo,
		SampleMethod:      Prioritized,
		RemoveSize:        1,
		SampleSize:        1,
		MaxReplayCapacity: 10,
		MinReplayCapacity: 1,
		PriorityExponent:  1.0,
		ISExponent:        0.2,
	})

	for i := 0; i < 4; i++ {
		require.NoError(t, table.Add(newTestTransition(float64(i))))
	}

	// Give all the priority to the transition with reward 2
	indices := append([]int{}, table.inUseIndices...)
	priorities := make([]float64, len(indices))
	for i, index := range indices {
		if table.rewardCache[index] == 2.0 {
			priorities[i] = 1.0
		}
	}
	require.NoError(t, table.UpdatePriorities(indices, priorities))

	for i := 0; i < 25; i++ {
		batch, err := table.Sample()
		require.NoError(t, err)
		require.Equal(t, 2.0, batch.Reward[0])

		// The only transition with positive priority is always
		// sampled, so its importance weight is maximal
		require.Equal(t, 1.0, batch.Weights[0])
	}
}

func TestTablePrioritizedZeroExponentSkipsFreedSlots(t *testing.T) {
	table := newTestTable(t, Config{
		RemoveMethod:      Fifo,
		SampleMethod:      Prioritized,
		RemoveSize:        2,
		SampleSize:        1,
		MaxReplayCapacity: 3,
		MinReplayCapacity: 1,
		PriorityExponent:  0.0,
	})

	// The fourth Add frees two slots, whose priorities drop to 0. With
	// exponent 0 the remaining slots keep weight priority^0 = 1, and
	// the freed slots must keep weight 0 rather than 0^0 = 1.
	for i := 0; i < 4; i++ {
		require.NoError(t, table.Add(newTestTransition(float64(i))))
	}
	require.Equal(t, 2, table.Capacity())

	for i := 0; i < 200; i++ {
		batch, err := table.Sample()
		require.NoError(t, err)
		require.True(t, table.inUse(batch.Indices[0]),
			"sampled index %v is a freed slot", batch.Indices[0])
		require.GreaterOrEqual(t, batch.Reward[0], 2.0)
	}
}

func TestTableUpdatePriorities(t *testing.T) {
	table := newTestTable(t, Config{
		RemoveMethod:      Fifo,
		SampleMethod:      Prioritized,
		RemoveSize:        1,
		SampleSize:        1,
		MaxReplayCapacity: 5,
		MinReplayCapacity: 1,
		PriorityExponent:  0.6,
	})
	require.NoError(t, table.Add(newTestTransition(0)))

	err := table.UpdatePriorities([]int{0, 1}, []float64{1.0})
	require.Error(t, err)

	err = table.UpdatePriorities([]int{0}, []float64{-1.0})
	require.Error(t, err)

	err = table.UpdatePriorities([]int{17}, []float64{1.0})
	require.Error(t, err)

	// Freed slots are skipped silently
	require.NoError(t, table.UpdatePriorities([]int{3}, []float64{1.0}))
}

func TestTableNewPrioritiesTrackMax(t *testing.T) {
	table := newTestTable(t, Config{
		RemoveMethod:      Fifo,
		SampleMethod:      Prioritized,
		RemoveSize:        1,
		SampleSize:        1,
		MaxReplayCapacity: 10,
		MinReplayCapacity: 1,
		PriorityExponent:  1.0,
	})

	require.NoError(t, table.Add(newTestTransition(0)))
	require.NoError(t, table.UpdatePriorities([]int{0}, []float64{100.0}))

	// A transition added after a large priority update inherits the
	// maximum priority seen so far
	require.NoError(t, table.Add(newTestTransition(1)))
	require.Equal(t, 100.0, table.priorities[table.inUseIndices[1]])
}
