package experiment

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"rlworks.org/dqn/environment"
	"rlworks.org/dqn/experiment/tracker"
	"rlworks.org/dqn/spec"
	ts "rlworks.org/dqn/timestep"
)

// fakeEnv is an environment whose episodes always last episodeLen steps
type fakeEnv struct {
	episodeLen int
	current    int
}

func (f *fakeEnv) Reset() ts.TimeStep {
	f.current = 0
	return ts.New(ts.First, 0, 1.0, mat.NewVecDense(1, []float64{0}), 0)
}

func (f *fakeEnv) Step(_ mat.Vector) (ts.TimeStep, bool) {
	f.current++
	stepType := ts.Mid
	if f.current >= f.episodeLen {
		stepType = ts.Last
	}
	obs := mat.NewVecDense(1, []float64{float64(f.current)})
	step := ts.New(stepType, 1.0, 1.0, obs, f.current)
	return step, step.Last()
}

func (f *fakeEnv) ActionSpec() spec.Environment      { return spec.Environment{} }
func (f *fakeEnv) ObservationSpec() spec.Environment { return spec.Environment{} }
func (f *fakeEnv) DiscountSpec() spec.Environment    { return spec.Environment{} }
func (f *fakeEnv) RewardSpec() spec.Environment      { return spec.Environment{} }

func (f *fakeEnv) Start() mat.Vector { return mat.NewVecDense(1, []float64{0}) }

func (f *fakeEnv) End(t *ts.TimeStep) bool { return t.Last() }

func (f *fakeEnv) GetReward(_, _, _ mat.Vector) float64 { return 1.0 }
func (f *fakeEnv) AtGoal(_ mat.Matrix) bool             { return false }
func (f *fakeEnv) Min() float64                         { return 1.0 }
func (f *fakeEnv) Max() float64                         { return 1.0 }

var _ environment.Environment = (*fakeEnv)(nil)

// countingAgent records how many times each of its methods is called
type countingAgent struct {
	observeFirsts int
	observes      int
	steps         int
	endEpisodes   int
	eval          bool
}

func (c *countingAgent) ObserveFirst(ts.TimeStep) error {
	c.observeFirsts++
	return nil
}

func (c *countingAgent) Observe(mat.Vector, ts.TimeStep) error {
	c.observes++
	return nil
}

func (c *countingAgent) Step() error {
	c.steps++
	return nil
}

func (c *countingAgent) EndEpisode() { c.endEpisodes++ }

func (c *countingAgent) SelectAction(ts.TimeStep) *mat.VecDense {
	return mat.NewVecDense(1, []float64{0})
}

func (c *countingAgent) Eval()        { c.eval = true }
func (c *countingAgent) Train()       { c.eval = false }
func (c *countingAgent) IsEval() bool { return c.eval }

// recordingTracker caches every timestep it is asked to track
type recordingTracker struct {
	tracked []ts.TimeStep
	saved   bool
}

func (r *recordingTracker) Track(t ts.TimeStep) { r.tracked = append(r.tracked, t) }
func (r *recordingTracker) Save() error         { r.saved = true; return nil }

// countingCheckpointer counts how many times it is asked to checkpoint
type countingCheckpointer struct {
	checkpoints int
}

func (c *countingCheckpointer) Checkpoint(ts.TimeStep) error {
	c.checkpoints++
	return nil
}

func TestOnlineRunEpisode(t *testing.T) {
	e := &fakeEnv{episodeLen: 5}
	a := &countingAgent{}
	track := &recordingTracker{}
	check := &countingCheckpointer{}

	exp := NewOnline(e, a, 20, nil, nil)
	exp.Register(track)
	exp.checkpointers = append(exp.checkpointers, check)

	done, err := exp.RunEpisode()
	require.NoError(t, err)
	require.False(t, done)

	// One episode of 5 steps: the first timestep plus 5 environmental
	// steps are tracked
	require.Equal(t, 6, len(track.tracked))
	require.True(t, track.tracked[0].First())
	require.True(t, track.tracked[5].Last())

	require.Equal(t, 1, a.observeFirsts)
	require.Equal(t, 5, a.observes)
	require.Equal(t, 5, a.steps)
	require.Equal(t, 1, a.endEpisodes)
	require.Equal(t, 5, check.checkpoints)
}

func TestOnlineStopsAtMaxSteps(t *testing.T) {
	e := &fakeEnv{episodeLen: 5}
	a := &countingAgent{}

	// 12 steps: two full episodes and a 2-step partial episode
	exp := NewOnline(e, a, 12, nil, nil)

	episodes := 0
	for {
		done, err := exp.RunEpisode()
		require.NoError(t, err)
		episodes++
		if done {
			break
		}
	}

	require.Equal(t, 3, episodes)
	require.Equal(t, 12, a.observes)
	require.Equal(t, 3, a.observeFirsts)
}

func TestOnlineSave(t *testing.T) {
	e := &fakeEnv{episodeLen: 2}
	a := &countingAgent{}
	track := &recordingTracker{}

	exp := NewOnline(e, a, 4, []tracker.Tracker{track}, nil)

	done, err := exp.RunEpisode()
	require.NoError(t, err)
	require.False(t, done)

	require.NoError(t, exp.Save())
	require.True(t, track.saved)
}
