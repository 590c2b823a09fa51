package dqn

import (
	"fmt"
	"time"

	"rlworks.org/dqn/initwfn"
	"rlworks.org/dqn/network"
	"rlworks.org/dqn/replay"
	"rlworks.org/dqn/solver"
)

// Config implements a configuration for a DQN agent
type Config struct {
	// Encoder architecture. EncoderLayers holds the sizes of the
	// encoder's hidden layers, and EncodingDim and ProjectionDim are
	// the dimensions of the encoding and the projected representation
	// that the Q head predicts action values from.
	EncoderLayers []int
	Biases        []bool // Whether each encoder layer has a bias
	Activations   []*network.Activation
	EncodingDim   int
	ProjectionDim int

	Solver  *solver.Solver   // Solver for learning weights
	InitWFn *initwfn.InitWFn // Weight initialization algorithm

	Epsilon float64 // Behaviour policy epsilon

	// Replay parameters. The sample size of the replay configuration
	// is the batch size of learning updates.
	Replay replay.Config

	// NSteps is the number of steps spanned by the transitions that
	// the agent's adder writes to the replay table
	NSteps int

	// Prefetch is the number of batches the agent's dataset samples
	// ahead of the learner
	Prefetch int

	// Target net updates
	Tau                  float64 // Polyak averaging constant
	TargetUpdateInterval int     // Gradient steps between target updates

	// Learning cadence. No learning occurs until MinObservations
	// transitions have been observed. After that, SamplesPerInsert
	// fixes the ratio of sampled batch elements to inserted
	// transitions: with batch size B, one gradient step is taken every
	// B / SamplesPerInsert observations.
	MinObservations  int
	SamplesPerInsert float64

	// Checkpointing. When CheckpointDir is empty no checkpoints are
	// written. Otherwise the learner state is saved in a dqn_learner
	// subdirectory of CheckpointDir whenever CheckpointInterval has
	// elapsed since the last save.
	CheckpointDir      string
	CheckpointInterval time.Duration
}

// DefaultConfig returns a Config with standard DQN hyperparameters
func DefaultConfig() Config {
	adam, err := solver.NewDefaultAdam(1e-3, 256)
	if err != nil {
		panic(fmt.Sprintf("defaultconfig: could not create solver: %v", err))
	}

	glorot, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		panic(fmt.Sprintf("defaultconfig: could not create initializer: %v",
			err))
	}

	return Config{
		EncoderLayers: []int{64, 64},
		Biases:        []bool{true, true},
		Activations: []*network.Activation{network.ReLU(),
			network.ReLU()},
		EncodingDim:   6,
		ProjectionDim: 6,

		Solver:  adam,
		InitWFn: glorot,

		Epsilon: 0.05,

		Replay: replay.Config{
			RemoveMethod:      replay.Fifo,
			SampleMethod:      replay.Prioritized,
			RemoveSize:        1,
			SampleSize:        256,
			MaxReplayCapacity: 1_000_000,
			MinReplayCapacity: 1,
			PriorityExponent:  0.6,
			ISExponent:        0.2,
		},

		NSteps:   5,
		Prefetch: 4,

		Tau:                  1.0,
		TargetUpdateInterval: 100,

		MinObservations:  1000,
		SamplesPerInsert: 32.0,

		CheckpointInterval: 60 * time.Minute,
	}
}

// BatchSize returns the batch size of the agent constructed using this
// Config
func (c Config) BatchSize() int {
	return c.Replay.SampleSize
}

// Validate checks a Config to ensure it is a valid configuration of a
// DQN agent.
func (c Config) Validate() error {
	if len(c.EncoderLayers) != len(c.Biases) {
		return fmt.Errorf("config: invalid number of biases\n\twant(%v)"+
			"\n\thave(%v)", len(c.EncoderLayers), len(c.Biases))
	}
	if len(c.EncoderLayers) != len(c.Activations) {
		return fmt.Errorf("config: invalid number of activations"+
			"\n\twant(%v)\n\thave(%v)", len(c.EncoderLayers),
			len(c.Activations))
	}
	if c.EncodingDim < 1 || c.ProjectionDim < 1 {
		return fmt.Errorf("config: encoding and projection dimensions "+
			"must be positive \n\thave(%v, %v)", c.EncodingDim,
			c.ProjectionDim)
	}
	if c.Solver == nil {
		return fmt.Errorf("config: no solver given")
	}
	if c.InitWFn == nil {
		return fmt.Errorf("config: no weight initializer given")
	}
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("config: epsilon must be in [0, 1] \n\thave(%v)",
			c.Epsilon)
	}
	if c.BatchSize() < 1 {
		return fmt.Errorf("config: batch size must be positive "+
			"\n\thave(%v)", c.BatchSize())
	}
	if c.NSteps < 1 {
		return fmt.Errorf("config: transitions must span at least one "+
			"step \n\thave(%v)", c.NSteps)
	}
	if c.Prefetch < 0 {
		return fmt.Errorf("config: prefetch must be >= 0 \n\thave(%v)",
			c.Prefetch)
	}
	if c.TargetUpdateInterval < 1 {
		return fmt.Errorf("config: target networks must be updated at "+
			"positive gradient step intervals \n\twant(>0) \n\thave(%v)",
			c.TargetUpdateInterval)
	}
	if c.SamplesPerInsert <= 0 {
		return fmt.Errorf("config: samples per insert must be positive "+
			"\n\thave(%v)", c.SamplesPerInsert)
	}
	if c.MinObservations < 0 {
		return fmt.Errorf("config: min observations must be >= 0 "+
			"\n\thave(%v)", c.MinObservations)
	}
	return nil
}
