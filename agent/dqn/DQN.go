// Package dqn implements the DQN algorithm. A DQN agent acts with an
// epsilon greedy policy over the action values predicted by a
// Q-network with an encoder trunk, stores n-step transitions in a
// prioritized replay table, and periodically updates the network
// weights from batches sampled from the table.
package dqn

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"path/filepath"

	"github.com/aunum/log"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"rlworks.org/dqn/adder"
	"rlworks.org/dqn/agent"
	"rlworks.org/dqn/agent/policy"
	"rlworks.org/dqn/dataset"
	"rlworks.org/dqn/environment"
	"rlworks.org/dqn/experiment/checkpointer"
	"rlworks.org/dqn/network"
	"rlworks.org/dqn/replay"
	"rlworks.org/dqn/spec"
	ts "rlworks.org/dqn/timestep"
	"rlworks.org/dqn/utils/intutils"
)

// DQN implements the DQN algorithm with an n-step prioritized replay
// table.
//
// Acting and learning run at a fixed ratio: each observed transition
// is written to the replay table through an n-step adder, and gradient
// steps are taken so that on average SamplesPerInsert batch elements
// are consumed per inserted transition. Learning does not begin until
// the table holds a minimum number of transitions.
type DQN struct {
	// Behaviour policy for selecting single actions
	behaviourPolicy   agent.EGreedyNNPolicy
	behaviourPolicyVM G.VM

	// Policy for learning weights that takes in batches of inputs
	trainNet   agent.EGreedyNNPolicy
	trainNetVM G.VM
	solver     G.Solver

	// Network that provides the update target for a batch of inputs
	targetNet   agent.EGreedyNNPolicy
	targetNetVM G.VM

	// Variables to track target network updates
	tau                  float64 // Polyak averaging constant
	targetUpdateInterval int     // Gradient steps between target updates
	gradientSteps        int

	// Experience flows from the adder into the replay table and out
	// through the dataset
	table   *replay.Table
	adder   *adder.NStep
	dataset *dataset.Dataset

	// Learning cadence
	numObservations     int
	minObservations     int
	observationsPerStep float64

	// selectedActions holds one-hot encodings of the actions taken at
	// the batch states, so that the loss is computed on the value of
	// the action actually taken
	selectedActions *G.Node
	numActions      int

	// nextStateActionValues is the input node of trainNet's graph that
	// is given the action values of the next states, as computed by
	// targetNet. The update target is:
	//
	//	r + γⁿ * max[Q(s', a')]
	nextStateActionValues *G.Node
	rewards               *G.Node
	discounts             *G.Node

	// isWeights holds the importance sampling weights of the sampled
	// batch, which scale each transition's squared TD error
	isWeights *G.Node

	// tdErrVal stores the per-transition TD errors of the last
	// gradient step. Their magnitudes become the new priorities of the
	// sampled transitions.
	tdErrVal G.Value

	checkpointer checkpointer.Checkpointer

	batchSize int
	eval      bool
}

// New creates and returns a new DQN agent
func New(e environment.Environment, config Config,
	seed int64) (*DQN, error) {
	// Ensure environment has discrete actions
	if e.ActionSpec().Cardinality != spec.Discrete {
		return &DQN{}, fmt.Errorf("dqn: cannot use non-discrete actions")
	}

	// Ensure actions are one-dimensional
	if e.ActionSpec().LowerBound.Len() > 1 {
		return &DQN{}, fmt.Errorf("dqn: actions must be 1-dimensional")
	}

	// Ensure actions are enumerated from 0
	if e.ActionSpec().LowerBound.AtVec(0) != 0.0 {
		return &DQN{}, fmt.Errorf("dqn: actions must be enumerated " +
			"starting from 0")
	}

	if err := config.Validate(); err != nil {
		return &DQN{}, err
	}

	batchSize := config.BatchSize()
	numActions := int(e.ActionSpec().UpperBound.AtVec(0)) + 1
	init := config.InitWFn.InitWFn()

	// Behaviour network for selecting actions
	g := G.NewGraph()
	behaviourPolicy, err := policy.NewEGreedyQPolicy(
		config.Epsilon,
		e,
		1, // For the behaviour policy, only single actions are needed
		g,
		config.EncoderLayers,
		config.Biases,
		config.Activations,
		config.EncodingDim,
		config.ProjectionDim,
		init,
		seed,
	)
	if err != nil {
		return &DQN{}, err
	}
	behaviourPolicyVM := G.NewTapeMachine(g)

	// Create a training network which learns the weights
	trainNetClone, err := behaviourPolicy.CloneWithBatch(batchSize)
	if err != nil {
		return &DQN{}, fmt.Errorf("new: could not create learning "+
			"network: %v", err)
	}
	trainNet := trainNetClone.(agent.EGreedyNNPolicy)
	gTrain := trainNet.Network().Graph()

	// Create the target network which provides the update target
	targetNetClone, err := behaviourPolicy.CloneWithBatch(batchSize)
	if err != nil {
		return &DQN{}, fmt.Errorf("new: could not create target "+
			"network: %v", err)
	}
	targetNet := targetNetClone.(agent.EGreedyNNPolicy)
	targetNet.SetEpsilon(0.0) // Update target policy is greedy

	// Create nodes to compute the update target:
	// r + γⁿ * max[Q(s', a')]
	nextStateActionValues := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, numActions), G.WithName("targetActionVals"))
	rewards := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("reward"))
	discounts := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("discount"))
	isWeights := G.NewVector(gTrain, tensor.Float64, G.WithShape(batchSize),
		G.WithName("isWeights"))

	updateTarget := G.Must(G.Max(nextStateActionValues, 1))
	updateTarget = G.Must(G.HadamardProd(updateTarget, discounts))
	updateTarget = G.Must(G.Add(updateTarget, rewards))

	// Action selected at each of the batch states. This is needed to
	// compute the loss using the correct action value since the
	// network outputs N action values, one for each environmental
	// action.
	selectedActions := G.NewMatrix(
		gTrain,
		tensor.Float64,
		G.WithName("actionSelected"),
		G.WithShape(batchSize, numActions),
	)
	selectedActionsValue := G.Must(G.HadamardProd(
		trainNet.Network().Prediction()[0], selectedActions))
	selectedActionsValue = G.Must(G.Sum(selectedActionsValue, 1))

	// Per-transition TD errors. Read out after each gradient step to
	// become the new priorities of the sampled transitions.
	tdErr := G.Must(G.Sub(updateTarget, selectedActionsValue))
	d := &DQN{}
	G.Read(tdErr, &d.tdErrVal)

	// Importance sampling weighted mean squared TD error
	losses := G.Must(G.Square(tdErr))
	losses = G.Must(G.HadamardProd(losses, isWeights))
	cost := G.Must(G.Mean(losses))

	if _, err := G.Grad(cost, trainNet.Network().Learnables()...); err != nil {
		return &DQN{}, fmt.Errorf("new: could not compute gradient: %v", err)
	}

	trainNetVM := G.NewTapeMachine(
		gTrain,
		G.BindDualValues(trainNet.Network().Learnables()...),
	)

	// Create the replay table that the adder writes n-step transitions
	// to. Actions are stored as single action indices.
	numFeatures := e.ObservationSpec().Shape.Len()
	table, err := config.Replay.Create(numFeatures, 1, seed)
	if err != nil {
		return &DQN{}, fmt.Errorf("new: could not create replay table: %v",
			err)
	}

	nStepAdder, err := adder.NewNStep(config.NSteps, table)
	if err != nil {
		return &DQN{}, fmt.Errorf("new: could not create adder: %v", err)
	}

	data, err := dataset.New(table, config.Prefetch)
	if err != nil {
		return &DQN{}, fmt.Errorf("new: could not create dataset: %v", err)
	}

	d.behaviourPolicy = behaviourPolicy
	d.behaviourPolicyVM = behaviourPolicyVM
	d.trainNet = trainNet
	d.trainNetVM = trainNetVM
	d.solver = config.Solver
	d.targetNet = targetNet
	d.targetNetVM = G.NewTapeMachine(targetNet.Network().Graph())
	d.tau = config.Tau
	d.targetUpdateInterval = config.TargetUpdateInterval
	d.table = table
	d.adder = nStepAdder
	d.dataset = data
	d.minObservations = intutils.Max(batchSize, config.MinObservations)
	d.observationsPerStep = float64(batchSize) / config.SamplesPerInsert
	d.selectedActions = selectedActions
	d.numActions = numActions
	d.nextStateActionValues = nextStateActionValues
	d.rewards = rewards
	d.discounts = discounts
	d.isWeights = isWeights
	d.batchSize = batchSize

	if config.CheckpointDir != "" && config.CheckpointInterval > 0 {
		name := filepath.Join(config.CheckpointDir, "dqn_learner",
			"checkpoint")
		d.checkpointer = checkpointer.NewInterval(
			config.CheckpointInterval,
			d,
			checkpointer.FilenameEnumerator(0, name, ".bin"),
		)
	}

	return d, nil
}

// ObserveFirst observes and records the first episodic timestep
func (d *DQN) ObserveFirst(t ts.TimeStep) error {
	if !t.First() {
		log.Warningf("ObserveFirst() should only be called on the first "+
			"timestep (current timestep = %d)", t.Number)
	}

	d.adder.ObserveFirst(t)
	return nil
}

// Observe observes and records any timestep other than the first
// timestep
func (d *DQN) Observe(action mat.Vector, nextStep ts.TimeStep) error {
	if action.Len() != 1 {
		log.Warningf("value-based methods should not have "+
			"multi-dimensional actions (action dim = %d)", action.Len())
	}

	if err := d.adder.Observe(action, nextStep); err != nil {
		return fmt.Errorf("observe: %v", err)
	}
	d.numObservations++

	if d.checkpointer != nil {
		if err := d.checkpointer.Checkpoint(nextStep); err != nil {
			return fmt.Errorf("observe: could not checkpoint: %v", err)
		}
	}
	return nil
}

// Step updates the weights of the agent's policies. The number of
// gradient steps taken maintains the configured ratio of sampled batch
// elements to observed transitions, and is 0 until enough transitions
// have been observed.
func (d *DQN) Step() error {
	if d.eval {
		return nil
	}

	steps := numLearnerSteps(d.numObservations, d.minObservations,
		d.observationsPerStep)
	for i := 0; i < steps; i++ {
		if err := d.learn(); err != nil {
			return fmt.Errorf("step: %v", err)
		}
	}
	return nil
}

// numLearnerSteps returns the number of gradient steps to take after
// numObservations transitions have been observed. Learning begins
// after minObservations transitions, after which one gradient step is
// taken every observationsPerStep observations. When
// observationsPerStep < 1, multiple gradient steps are taken per
// observation.
func numLearnerSteps(numObservations, minObservations int,
	observationsPerStep float64) int {
	n := numObservations - minObservations
	if n < 0 {
		return 0
	}

	if observationsPerStep >= 1 {
		if n%int(observationsPerStep) == 0 {
			return 1
		}
		return 0
	}
	return int(1.0 / observationsPerStep)
}

// learn performs a single gradient step on a batch sampled from the
// replay table and refreshes the priorities of the sampled
// transitions
func (d *DQN) learn() error {
	batch, err := d.dataset.Next()
	if replay.IsEmptyTable(err) || replay.IsInsufficientSamples(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("learn: could not sample batch: %v", err)
	}

	// One-hot encode the actions taken at the batch states
	selected := make([]float64, d.batchSize*d.numActions)
	for i := 0; i < d.batchSize; i++ {
		selected[i*d.numActions+int(batch.Action[i])] = 1.0
	}
	err = G.Let(d.selectedActions, tensor.New(
		tensor.WithShape(d.batchSize, d.numActions),
		tensor.WithBacking(selected),
	))
	if err != nil {
		return fmt.Errorf("learn: could not set selected actions: %v", err)
	}

	// Predict the action values of the next states
	if err := d.targetNet.Network().SetInput(batch.NextState); err != nil {
		return fmt.Errorf("learn: could not set target net input: %v", err)
	}
	if err := d.targetNetVM.RunAll(); err != nil {
		return fmt.Errorf("learn: could not run target net: %v", err)
	}
	err = G.Let(d.nextStateActionValues, d.targetNet.Network().Output()[0])
	if err != nil {
		return fmt.Errorf("learn: could not set next state-action "+
			"values: %v", err)
	}
	d.targetNetVM.Reset()

	// Predict the action values of the batch states
	if err := d.trainNet.Network().SetInput(batch.State); err != nil {
		return fmt.Errorf("learn: could not set train net input: %v", err)
	}

	err = G.Let(d.rewards, tensor.New(tensor.WithShape(d.batchSize),
		tensor.WithBacking(batch.Reward)))
	if err != nil {
		return fmt.Errorf("learn: could not set rewards: %v", err)
	}

	err = G.Let(d.discounts, tensor.New(tensor.WithShape(d.batchSize),
		tensor.WithBacking(batch.Discount)))
	if err != nil {
		return fmt.Errorf("learn: could not set discounts: %v", err)
	}

	err = G.Let(d.isWeights, tensor.New(tensor.WithShape(d.batchSize),
		tensor.WithBacking(batch.Weights)))
	if err != nil {
		return fmt.Errorf("learn: could not set importance weights: %v", err)
	}

	// Run the learning step
	if err := d.trainNetVM.RunAll(); err != nil {
		return fmt.Errorf("learn: could not run train net: %v", err)
	}
	if err := d.solver.Step(d.trainNet.Network().Model()); err != nil {
		return fmt.Errorf("learn: could not step solver: %v", err)
	}
	d.trainNetVM.Reset()
	d.gradientSteps++

	// The magnitudes of the TD errors become the new priorities of the
	// sampled transitions
	tdErrors := d.tdErrVal.Data().([]float64)
	priorities := make([]float64, len(tdErrors))
	for i, tdErr := range tdErrors {
		priorities[i] = math.Abs(tdErr)
	}
	err = d.table.UpdatePriorities(batch.Indices, priorities)
	if err != nil {
		return fmt.Errorf("learn: could not update priorities: %v", err)
	}

	// Update the target network by setting its weights to the newly
	// learned weights
	if d.gradientSteps%d.targetUpdateInterval == 0 {
		if d.tau == 1.0 {
			err = d.targetNet.Network().Set(d.trainNet.Network())
		} else {
			err = d.targetNet.Network().Polyak(d.trainNet.Network(), d.tau)
		}
		if err != nil {
			return fmt.Errorf("learn: could not update target net: %v", err)
		}
	}

	// The behaviour policy always acts with the newest weights
	err = d.behaviourPolicy.Network().Set(d.trainNet.Network())
	if err != nil {
		return fmt.Errorf("learn: could not update behaviour policy: %v",
			err)
	}
	return nil
}

// SelectAction runs the necessary VMs and then returns an action
// selected by the behaviour policy
func (d *DQN) SelectAction(t ts.TimeStep) *mat.VecDense {
	if err := d.behaviourPolicy.Network().SetInput(
		rawData(t.Observation)); err != nil {
		panic(fmt.Sprintf("selectaction: %v", err))
	}

	if err := d.behaviourPolicyVM.RunAll(); err != nil {
		panic(fmt.Sprintf("selectaction: could not run policy: %v", err))
	}

	action, _ := d.behaviourPolicy.SelectAction()

	d.behaviourPolicyVM.Reset()
	return action
}

// GradientSteps returns the number of gradient steps taken so far
func (d *DQN) GradientSteps() int {
	return d.gradientSteps
}

// Eval sets the agent into evaluation mode
func (d *DQN) Eval() {
	d.eval = true
	d.behaviourPolicy.Eval()
}

// Train sets the agent into training mode
func (d *DQN) Train() {
	d.eval = false
	d.behaviourPolicy.Train()
}

// IsEval returns whether the agent is in evaluation mode
func (d *DQN) IsEval() bool {
	return d.eval
}

// EndEpisode performs cleanup at the end of an episode
func (d *DQN) EndEpisode() {}

// rawData returns the data of a vector as a []float64
func rawData(v mat.Vector) []float64 {
	if dense, ok := v.(*mat.VecDense); ok {
		return dense.RawVector().Data
	}

	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return data
}

// Close cleans up the resources of the agent
func (d *DQN) Close() error {
	if err := d.behaviourPolicyVM.Close(); err != nil {
		return err
	}
	if err := d.targetNetVM.Close(); err != nil {
		return err
	}
	return d.trainNetVM.Close()
}

// learnerState holds the data of a DQN that is persisted when
// checkpointing
type learnerState struct {
	Net             network.NeuralNet
	GradientSteps   int
	NumObservations int
}

// GobEncode implements the gob.GobEncoder interface
func (d *DQN) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	state := learnerState{
		Net:             d.trainNet.Network(),
		GradientSteps:   d.gradientSteps,
		NumObservations: d.numObservations,
	}
	if err := enc.Encode(state); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode learner: %v",
			err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. The receiver must
// be a constructed agent of the same configuration as the agent that
// was saved: the decoded weights are copied into the receiver's
// networks.
func (d *DQN) GobDecode(in []byte) error {
	if d.trainNet == nil {
		return fmt.Errorf("gobdecode: can only decode into a constructed " +
			"agent")
	}

	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var state learnerState
	if err := dec.Decode(&state); err != nil {
		return fmt.Errorf("gobdecode: could not decode learner: %v", err)
	}

	for _, net := range []network.NeuralNet{
		d.trainNet.Network(),
		d.targetNet.Network(),
		d.behaviourPolicy.Network(),
	} {
		if err := net.Set(state.Net); err != nil {
			return fmt.Errorf("gobdecode: could not set weights: %v", err)
		}
	}

	d.gradientSteps = state.GradientSteps
	d.numObservations = state.NumObservations
	return nil
}
