package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r1"

	"rlworks.org/dqn/agent/dqn"
	env "rlworks.org/dqn/environment"
	"rlworks.org/dqn/environment/classiccontrol/cartpole"
	"rlworks.org/dqn/experiment"
	"rlworks.org/dqn/experiment/tracker"
	"rlworks.org/dqn/solver"
)

// newCartpoleCommand returns the command which runs a DQN agent on the
// Cartpole balancing task
func newCartpoleCommand() *cobra.Command {
	var epsilon float64
	var stepSize float64
	var batchSize int
	var nSteps int
	var targetInterval int
	var minObservations int
	var samplesPerInsert float64
	var episodeSteps int
	var discount float64
	var checkpointDir string

	cmd := &cobra.Command{
		Use:   "cartpole",
		Short: "Run a DQN agent on the Cartpole balancing task",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := dqn.DefaultConfig()
			config.Epsilon = epsilon
			config.Replay.SampleSize = batchSize
			config.NSteps = nSteps
			config.TargetUpdateInterval = targetInterval
			config.MinObservations = minObservations
			config.SamplesPerInsert = samplesPerInsert
			config.CheckpointDir = checkpointDir

			adam, err := solver.NewDefaultAdam(stepSize, batchSize)
			if err != nil {
				return fmt.Errorf("cartpole: could not create solver: %v",
					err)
			}
			config.Solver = adam

			return runCartpole(config, discount, episodeSteps)
		},
	}

	cmd.Flags().Float64Var(&epsilon, "epsilon", 0.05,
		"Behaviour policy epsilon")
	cmd.Flags().Float64Var(&stepSize, "step-size", 1e-3,
		"Adam step size")
	cmd.Flags().IntVarP(&batchSize, "batch", "b", 256,
		"Batch size of learning updates")
	cmd.Flags().IntVar(&nSteps, "n-steps", 5,
		"Number of steps spanned by replayed transitions")
	cmd.Flags().IntVar(&targetInterval, "target-interval", 100,
		"Gradient steps between target network updates")
	cmd.Flags().IntVar(&minObservations, "min-observations", 1000,
		"Observations before learning begins")
	cmd.Flags().Float64Var(&samplesPerInsert, "samples-per-insert", 32.0,
		"Ratio of sampled batch elements to inserted transitions")
	cmd.Flags().IntVar(&episodeSteps, "episode-steps", 500,
		"Maximum number of steps per episode")
	cmd.Flags().Float64Var(&discount, "discount", 0.99,
		"Discount factor")
	cmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "",
		"Directory in which learner checkpoints are saved; empty "+
			"disables checkpointing")
	return cmd
}

// runCartpole runs a DQN agent on the Cartpole balancing task,
// tracking episodic returns and episode lengths
func runCartpole(config dqn.Config, discount float64,
	episodeSteps int) error {
	bounds := r1.Interval{Min: -0.05, Max: 0.05}
	starter := env.NewUniformStarter([]r1.Interval{bounds, bounds, bounds,
		bounds}, seed)
	task := cartpole.NewBalance(starter, episodeSteps, cartpole.FailAngle)
	e, _ := cartpole.New(task, discount)

	agent, err := dqn.New(e, config, int64(seed))
	if err != nil {
		return fmt.Errorf("cartpole: could not create agent: %v", err)
	}
	defer agent.Close()

	trackers := []tracker.Tracker{
		tracker.NewReturn(filepath.Join(dataDir, "returns.bin")),
		tracker.NewEpisodeLength(filepath.Join(dataDir, "lengths.bin")),
		tracker.NewReturnPlot(filepath.Join(dataDir, "returns.png")),
	}

	exp := experiment.NewOnline(e, agent, steps, trackers, nil)
	if err := exp.Run(); err != nil {
		return fmt.Errorf("cartpole: %v", err)
	}
	return exp.Save()
}
