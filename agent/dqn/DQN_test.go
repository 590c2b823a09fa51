package dqn

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r1"

	env "rlworks.org/dqn/environment"
	"rlworks.org/dqn/environment/classiccontrol/cartpole"
	"rlworks.org/dqn/network"
	ts "rlworks.org/dqn/timestep"
)

func newTestEnv(t *testing.T) (*cartpole.Cartpole, ts.TimeStep) {
	t.Helper()

	bounds := r1.Interval{Min: -0.01, Max: 0.01}
	starter := env.NewUniformStarter([]r1.Interval{bounds, bounds, bounds,
		bounds}, 14)
	task := cartpole.NewBalance(starter, 100, cartpole.FailAngle)
	return cartpole.New(task, 0.99)
}

// newTestConfig returns a configuration small enough that learning
// begins after a few observations
func newTestConfig() Config {
	config := DefaultConfig()
	config.EncoderLayers = []int{8}
	config.Biases = []bool{true}
	config.Activations = []*network.Activation{network.ReLU()}
	config.EncodingDim = 6
	config.ProjectionDim = 4
	config.Replay.SampleSize = 4
	config.Replay.MaxReplayCapacity = 100
	config.NSteps = 2
	config.Prefetch = 2
	config.TargetUpdateInterval = 2
	config.MinObservations = 4
	config.SamplesPerInsert = 4.0
	config.CheckpointDir = ""
	return config
}

func TestNumLearnerSteps(t *testing.T) {
	// No learning before the minimum number of observations
	if got := numLearnerSteps(3, 4, 2.0); got != 0 {
		t.Errorf("expected 0 steps before min observations, got %v", got)
	}

	// One step every two observations once learning begins
	for numObs, want := range map[int]int{4: 1, 5: 0, 6: 1, 7: 0} {
		if got := numLearnerSteps(numObs, 4, 2.0); got != want {
			t.Errorf("numObs %v: expected %v steps, got %v", numObs, want,
				got)
		}
	}

	// Multiple steps per observation when the ratio is inverted
	if got := numLearnerSteps(10, 4, 0.5); got != 2 {
		t.Errorf("expected 2 steps per observation, got %v", got)
	}
}

func TestDQNLearnsOnSchedule(t *testing.T) {
	e, firstStep := newTestEnv(t)

	agent, err := New(e, newTestConfig(), 14)
	if err != nil {
		t.Fatalf("could not construct agent: %v", err)
	}
	defer agent.Close()

	if err := agent.ObserveFirst(firstStep); err != nil {
		t.Fatalf("could not observe first step: %v", err)
	}

	step := firstStep
	for i := 0; i < 40; i++ {
		action := agent.SelectAction(step)

		var done bool
		step, done = e.Step(action)
		if err := agent.Observe(action, step); err != nil {
			t.Fatalf("could not observe step: %v", err)
		}
		if err := agent.Step(); err != nil {
			t.Fatalf("could not step agent: %v", err)
		}

		if done {
			step = e.Reset()
			if err := agent.ObserveFirst(step); err != nil {
				t.Fatalf("could not observe first step: %v", err)
			}
		}
	}

	// With min observations 4, batch 4, and samples per insert 4, one
	// gradient step is taken per observation starting at the fourth
	if agent.GradientSteps() == 0 {
		t.Error("agent took no gradient steps")
	}
}

func TestDQNEvalModeDoesNotLearn(t *testing.T) {
	e, firstStep := newTestEnv(t)

	agent, err := New(e, newTestConfig(), 14)
	if err != nil {
		t.Fatalf("could not construct agent: %v", err)
	}
	defer agent.Close()

	agent.Eval()
	if !agent.IsEval() {
		t.Fatal("agent should be in evaluation mode")
	}

	if err := agent.ObserveFirst(firstStep); err != nil {
		t.Fatalf("could not observe first step: %v", err)
	}

	step := firstStep
	for i := 0; i < 20; i++ {
		action := agent.SelectAction(step)

		var done bool
		step, done = e.Step(action)
		if err := agent.Observe(action, step); err != nil {
			t.Fatalf("could not observe step: %v", err)
		}
		if err := agent.Step(); err != nil {
			t.Fatalf("could not step agent: %v", err)
		}
		if done {
			break
		}
	}

	if agent.GradientSteps() != 0 {
		t.Errorf("evaluation mode took %v gradient steps",
			agent.GradientSteps())
	}
}

func TestDQNCheckpointRoundTrip(t *testing.T) {
	e, firstStep := newTestEnv(t)

	agent, err := New(e, newTestConfig(), 14)
	if err != nil {
		t.Fatalf("could not construct agent: %v", err)
	}
	defer agent.Close()

	if err := agent.ObserveFirst(firstStep); err != nil {
		t.Fatalf("could not observe first step: %v", err)
	}

	step := firstStep
	for i := 0; i < 10; i++ {
		action := agent.SelectAction(step)
		step, _ = e.Step(action)
		if err := agent.Observe(action, step); err != nil {
			t.Fatalf("could not observe step: %v", err)
		}
		if err := agent.Step(); err != nil {
			t.Fatalf("could not step agent: %v", err)
		}
	}
	saved := agent.GradientSteps()
	if saved == 0 {
		t.Fatal("agent took no gradient steps before checkpointing")
	}

	data, err := agent.GobEncode()
	if err != nil {
		t.Fatalf("could not encode agent: %v", err)
	}

	restored, err := New(e, newTestConfig(), 15)
	if err != nil {
		t.Fatalf("could not construct second agent: %v", err)
	}
	defer restored.Close()

	if err := restored.GobDecode(data); err != nil {
		t.Fatalf("could not decode agent: %v", err)
	}
	if restored.GradientSteps() != saved {
		t.Errorf("expected %v restored gradient steps, got %v", saved,
			restored.GradientSteps())
	}
}

func TestDQNCheckpointsIntoLearnerSubdirectory(t *testing.T) {
	e, firstStep := newTestEnv(t)

	dir := t.TempDir()
	config := newTestConfig()
	config.CheckpointDir = dir
	config.CheckpointInterval = time.Nanosecond

	agent, err := New(e, config, 14)
	if err != nil {
		t.Fatalf("could not construct agent: %v", err)
	}
	defer agent.Close()

	if err := agent.ObserveFirst(firstStep); err != nil {
		t.Fatalf("could not observe first step: %v", err)
	}

	action := agent.SelectAction(firstStep)
	step, _ := e.Step(action)
	if err := agent.Observe(action, step); err != nil {
		t.Fatalf("could not observe step: %v", err)
	}

	// Checkpoints are enumerated files inside a dqn_learner
	// subdirectory of the checkpoint directory
	filename := filepath.Join(dir, "dqn_learner", "checkpoint1.bin")
	if _, err := os.Stat(filename); err != nil {
		t.Errorf("expected checkpoint at %v: %v", filename, err)
	}
}

func TestDQNRejectsInvalidConfig(t *testing.T) {
	e, _ := newTestEnv(t)

	config := newTestConfig()
	config.TargetUpdateInterval = 0
	if _, err := New(e, config, 14); err == nil {
		t.Error("expected error for non-positive target update interval")
	}

	config = newTestConfig()
	config.Biases = []bool{}
	if _, err := New(e, config, 14); err == nil {
		t.Error("expected error for mismatched bias count")
	}

	config = newTestConfig()
	config.SamplesPerInsert = 0
	if _, err := New(e, config, 14); err == nil {
		t.Error("expected error for non-positive samples per insert")
	}
}
