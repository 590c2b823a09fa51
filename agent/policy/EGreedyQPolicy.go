// Package policy implements policies using function approximation
// with Gorgonia.
package policy

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"

	"rlworks.org/dqn/agent"
	env "rlworks.org/dqn/environment"
	"rlworks.org/dqn/network"
	"rlworks.org/dqn/utils/floatutils"
)

// EGreedyQPolicy implements an epsilon greedy policy over the action
// values predicted by a Q-network with an encoder trunk. Given an
// environment with N actions, the network produces N outputs, each
// predicting the value of a distinct action.
//
// EGreedyQPolicy simply populates a gorgonia.ExprGraph with the neural
// network function approximator and selects actions based on the
// output of this network. The struct does not have a VM of its own. An
// external VM should be used to run the computational graph of the
// policy, and the VM should always be run before selecting an action:
//
//	Set up VM with policy's graph:	vm = NewTapeMachine(p.Network().Graph())
//	Get state observation vector:	obs
//	Set input to policy's network:	p.Network().SetInput(obs)
//	Predict the action values:	vm.RunAll()
//	Select an action:		action, _ = p.SelectAction()
type EGreedyQPolicy struct {
	network.NeuralNet
	epsilon float64
	eval    bool

	rng  *rand.Rand
	seed int64
}

// NewEGreedyQPolicy creates and returns a new EGreedyQPolicy on graph
// g. The policy's network is a Q-network with an encoder trunk: the
// hiddenSizes, biases, and activations parameters define the encoder's
// hidden layers, and the encodingDim and projectionDim parameters
// define the dimensions of the encoding and projected representation.
// The batch parameter determines the number of observations in an
// input batch.
func NewEGreedyQPolicy(epsilon float64, e env.Environment, batch int,
	g *G.ExprGraph, hiddenSizes []int, biases []bool,
	activations []*network.Activation, encodingDim, projectionDim int,
	init G.InitWFn, seed int64) (agent.EGreedyNNPolicy, error) {
	if epsilon < 0 || epsilon > 1 {
		return &EGreedyQPolicy{}, fmt.Errorf("new: epsilon must be in "+
			"[0, 1] \n\thave(%v)", epsilon)
	}

	// Calculate the number of actions and state features
	numActions := int(e.ActionSpec().UpperBound.AtVec(0)) + 1
	features := e.ObservationSpec().Shape.Len()

	net, err := network.NewEncoderQNet(features, batch, numActions, g,
		hiddenSizes, biases, activations, encodingDim, projectionDim, init)
	if err != nil {
		return &EGreedyQPolicy{},
			fmt.Errorf("new: could not create policy: %v", err)
	}
	if predictions := len(net.Prediction()); predictions != 1 {
		msg := "new: egreedy policy expects function approximator to " +
			"output a single prediction node\n\twant(1)\n\thave(%v)"
		return &EGreedyQPolicy{}, fmt.Errorf(msg, predictions)
	}

	source := rand.NewSource(seed)
	rng := rand.New(source)

	return &EGreedyQPolicy{
		NeuralNet: net,
		epsilon:   epsilon,
		rng:       rng,
		seed:      seed,
	}, nil
}

// Network returns the neural network function approximator that the
// policy uses
func (e *EGreedyQPolicy) Network() network.NeuralNet {
	return e.NeuralNet
}

// Clone clones an EGreedyQPolicy
func (e *EGreedyQPolicy) Clone() (agent.NNPolicy, error) {
	return e.CloneWithBatch(e.BatchSize())
}

// CloneWithBatch clones an EGreedyQPolicy with a new input batch size
func (e *EGreedyQPolicy) CloneWithBatch(
	batchSize int) (agent.NNPolicy, error) {
	net, err := e.Network().CloneWithBatch(batchSize)
	if err != nil {
		msg := "clonewithbatch: could not clone policy: %v"
		return &EGreedyQPolicy{}, fmt.Errorf(msg, err)
	}

	source := rand.NewSource(e.seed)
	rng := rand.New(source)

	return &EGreedyQPolicy{
		NeuralNet: net,
		epsilon:   e.epsilon,
		eval:      e.eval,
		rng:       rng,
		seed:      e.seed,
	}, nil
}

// SetEpsilon sets the value for epsilon in the epsilon greedy policy
func (e *EGreedyQPolicy) SetEpsilon(epsilon float64) {
	e.epsilon = epsilon
}

// Epsilon gets the value of epsilon for the policy
func (e *EGreedyQPolicy) Epsilon() float64 {
	return e.epsilon
}

// Eval sets the policy to evaluation mode, in which actions are
// selected greedily
func (e *EGreedyQPolicy) Eval() {
	e.eval = true
}

// Train sets the policy to training mode, in which actions are
// selected epsilon greedily
func (e *EGreedyQPolicy) Train() {
	e.eval = false
}

// IsEval returns whether the policy is in evaluation mode
func (e *EGreedyQPolicy) IsEval() bool {
	return e.eval
}

// SelectAction selects an action according to the action values
// generated from the last run of the computational graph. The action
// selected is returned along with its approximated value.
func (e *EGreedyQPolicy) SelectAction() (*mat.VecDense, float64) {
	if e.Output() == nil {
		panic("selectaction: vm must be run before selecting an action")
	}

	// Get the action values from the last run of the computational
	// graph
	actionValues := e.Output()[0].Data().([]float64)

	// With probability epsilon return a random action
	if !e.eval && e.rng.Float64() < e.epsilon {
		action := e.rng.Intn(e.numActions())
		return mat.NewVecDense(1, []float64{float64(action)}),
			actionValues[action]
	}

	// Get the actions of maximum value
	_, maxIndices := floatutils.MaxSlice(actionValues)

	// If multiple actions have max value, return a random max-valued
	// action
	action := maxIndices[e.rng.Intn(len(maxIndices))]
	return mat.NewVecDense(1, []float64{float64(action)}),
		actionValues[action]
}

// numActions returns the number of actions that the policy chooses
// between
func (e *EGreedyQPolicy) numActions() int {
	return e.Outputs()
}

// policyState holds the data of an EGreedyQPolicy that is persisted
// when checkpointing
type policyState struct {
	Net     network.NeuralNet
	Epsilon float64
	Eval    bool
	Seed    int64
}

// GobEncode implements the gob.GobEncoder interface
func (e *EGreedyQPolicy) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	state := policyState{
		Net:     e.NeuralNet,
		Epsilon: e.epsilon,
		Eval:    e.eval,
		Seed:    e.seed,
	}
	if err := enc.Encode(state); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode policy: %v", err)
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (e *EGreedyQPolicy) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var state policyState
	if err := dec.Decode(&state); err != nil {
		return fmt.Errorf("gobdecode: could not decode policy: %v", err)
	}

	source := rand.NewSource(state.Seed)

	e.NeuralNet = state.Net
	e.epsilon = state.Epsilon
	e.eval = state.Eval
	e.seed = state.Seed
	e.rng = rand.New(source)

	return nil
}
