package network

import (
	"bytes"
	"encoding/gob"
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func init() {
	// Allows NeuralNet interface values holding an encoderQNet to be
	// gob encoded and decoded
	gob.Register(&encoderQNet{})
}

// encoderQNet implements a Q-value network with an encoder trunk. An
// observation is first mapped by an MLP encoder to an encoding of a
// fixed dimension, the encoding is mapped by a linear projection to a
// lower-dimensional projected representation, and the projected
// representation is mapped by a linear head to one action value per
// environmental action.
//
// The encoding and projection nodes are exposed so that the learned
// representation can be inspected or used by auxiliary objectives.
type encoderQNet struct {
	g      *G.ExprGraph
	layers []Layer
	input  *G.Node

	numActions    int
	numInputs     int
	batchSize     int
	encodingDim   int
	projectionDim int

	// Data needed for gobbing
	hiddenSizes []int
	biases      []bool
	activations []*Activation

	learnables G.Nodes
	model      []G.ValueGrad

	encoding    *G.Node
	encodingVal G.Value

	projection *G.Node
	projVal    G.Value

	prediction *G.Node
	predVal    G.Value
}

// NewEncoderQNet creates and returns a new Q-network with an encoder
// trunk, populating graph g with the network operations.
//
// The encoder consists of len(hiddenSizes) hidden layers followed by a
// linear layer producing an encoding of encodingDim features. For
// index i, hiddenSizes[i] is the number of units in hidden layer i,
// biases[i] denotes whether that layer has a bias unit, and
// activations[i] is its activation function. A linear projection layer
// maps the encoding to projectionDim features, and a final linear
// layer maps the projection to one value per action.
func NewEncoderQNet(features, batch, actions int, g *G.ExprGraph,
	hiddenSizes []int, biases []bool, activations []*Activation,
	encodingDim, projectionDim int, init G.InitWFn) (NeuralNet, error) {
	if len(hiddenSizes) != len(activations) {
		msg := "newencoderqnet: invalid number of activations" +
			"\n\twant(%d)\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(activations))
	}
	if len(hiddenSizes) != len(biases) {
		msg := "newencoderqnet: invalid number of biases\n\twant(%d)" +
			"\n\thave(%d)"
		return nil, fmt.Errorf(msg, len(hiddenSizes), len(biases))
	}
	if encodingDim <= 0 || projectionDim <= 0 {
		return nil, fmt.Errorf("newencoderqnet: encoding and projection "+
			"dimensions must be positive \n\thave(%v, %v)", encodingDim,
			projectionDim)
	}
	if actions <= 0 {
		return nil, fmt.Errorf("newencoderqnet: must have at least one "+
			"action \n\thave(%v)", actions)
	}

	// Set up the input node
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	// The encoder trunk ends with a linear layer producing the
	// encoding, the projection and Q heads are both linear
	sizes := append([]int{}, hiddenSizes...)
	sizes = append(sizes, encodingDim, projectionDim, actions)

	layerBiases := append([]bool{}, biases...)
	layerBiases = append(layerBiases, true, true, true)

	layerActivations := append([]*Activation{}, activations...)
	layerActivations = append(layerActivations, Identity(), Identity(),
		Identity())

	layers := addFCLayers(g, sizes, layerBiases, layerActivations, init,
		features, "")

	network := encoderQNet{
		g:             g,
		layers:        layers,
		input:         input,
		numActions:    actions,
		numInputs:     features,
		batchSize:     batch,
		encodingDim:   encodingDim,
		projectionDim: projectionDim,
		hiddenSizes:   sizes,
		biases:        layerBiases,
		activations:   layerActivations,
	}
	if _, err := network.fwd(input); err != nil {
		msg := "newencoderqnet: could not compute forward pass: %v"
		return &encoderQNet{}, fmt.Errorf(msg, err)
	}

	return &network, nil
}

// fwd performs the forward pass of the encoderQNet on the input node
func (e *encoderQNet) fwd(input *G.Node) (*G.Node, error) {
	inputShape := input.Shape()[len(input.Shape())-1]
	if inputShape != e.numInputs {
		return nil, fmt.Errorf("fwd: invalid shape for input to neural net:"+
			" \n\twant(%v) \n\thave(%v)", e.numInputs, inputShape)
	}

	encodingLayer := len(e.layers) - 3
	projectionLayer := len(e.layers) - 2

	pred := input
	var err error
	for i, l := range e.layers {
		if pred, err = l.fwd(pred); err != nil {
			msg := "fwd: could not compute forward pass of layer %v: %v"
			return nil, fmt.Errorf(msg, i, err)
		}

		switch i {
		case encodingLayer:
			e.encoding = pred
			G.Read(e.encoding, &e.encodingVal)
		case projectionLayer:
			e.projection = pred
			G.Read(e.projection, &e.projVal)
		}
	}

	e.prediction = pred
	G.Read(e.prediction, &e.predVal)

	return pred, nil
}

// Graph returns the computational graph of the encoderQNet
func (e *encoderQNet) Graph() *G.ExprGraph {
	return e.g
}

// Clone clones an encoderQNet
func (e *encoderQNet) Clone() (NeuralNet, error) {
	return e.CloneWithBatch(e.batchSize)
}

// CloneWithBatch clones an encoderQNet with a new input batch size
func (e *encoderQNet) CloneWithBatch(batchSize int) (NeuralNet, error) {
	graph := G.NewGraph()

	input := G.NewMatrix(
		graph,
		tensor.Float64,
		G.WithShape(batchSize, e.numInputs),
		G.WithName("input"),
		G.WithInit(G.Zeroes()),
	)

	// Copy layers to the new graph
	l := make([]Layer, len(e.layers))
	for i := range e.layers {
		l[i] = e.layers[i].CloneTo(graph)
	}

	network := encoderQNet{
		g:             graph,
		layers:        l,
		input:         input,
		numActions:    e.numActions,
		numInputs:     e.numInputs,
		batchSize:     batchSize,
		encodingDim:   e.encodingDim,
		projectionDim: e.projectionDim,
		hiddenSizes:   e.hiddenSizes,
		biases:        e.biases,
		activations:   e.activations,
	}
	if _, err := network.fwd(input); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not clone: %v", err)
	}

	return &network, nil
}

// BatchSize returns the batch size of inputs to the network
func (e *encoderQNet) BatchSize() int {
	return e.batchSize
}

// Features returns the number of features in a single observation
// vector that the network takes as input
func (e *encoderQNet) Features() int {
	return e.numInputs
}

// Outputs returns the number of action values predicted per
// observation
func (e *encoderQNet) Outputs() int {
	return e.numActions
}

// EncodingDim returns the number of features in the encoding of an
// observation
func (e *encoderQNet) EncodingDim() int {
	return e.encodingDim
}

// ProjectionDim returns the number of features in the projected
// representation of an observation
func (e *encoderQNet) ProjectionDim() int {
	return e.projectionDim
}

// SetInput sets the value of the input node before running the forward
// pass
func (e *encoderQNet) SetInput(input []float64) error {
	if len(input) != e.numInputs*e.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs\n\twant(%v)"+
			"\n\thave(%v)", e.numInputs*e.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(e.input.Shape()...),
	)
	return G.Let(e.input, inputTensor)
}

// Set sets the weights of the encoderQNet to be equal to the weights
// of another NeuralNet of the same architecture
func (e *encoderQNet) Set(source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := e.Learnables()
	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Polyak sets the weights of the encoderQNet to a Polyak average
// between its existing weights and those of another NeuralNet of the
// same architecture
func (e *encoderQNet) Polyak(source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := e.Learnables()
	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		var newWeights *tensor.Dense
		newWeights, err = weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		if err := G.Let(nodes[i], newWeights); err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes of the encoderQNet
func (e *encoderQNet) Learnables() G.Nodes {
	// Lazy instantiation
	if e.learnables == nil {
		learnables := make([]*G.Node, 0, 2*len(e.layers))
		for i := range e.layers {
			learnables = append(learnables, e.layers[i].Weights())
			if bias := e.layers[i].Bias(); bias != nil {
				learnables = append(learnables, bias)
			}
		}
		e.learnables = G.Nodes(learnables)
	}
	return e.learnables
}

// Model returns the learnable nodes with their gradients
func (e *encoderQNet) Model() []G.ValueGrad {
	// Lazy instantiation
	if e.model == nil {
		model := make([]G.ValueGrad, 0, 2*len(e.layers))
		for _, node := range e.Learnables() {
			model = append(model, node)
		}
		e.model = model
	}
	return e.model
}

// Output returns the action values predicted by the last run of the
// computational graph, or nil if the graph has not yet been run
func (e *encoderQNet) Output() []G.Value {
	if e.predVal == nil {
		return nil
	}
	return []G.Value{e.predVal}
}

// Prediction returns the node of the computational graph that stores
// the predicted action values
func (e *encoderQNet) Prediction() []*G.Node {
	return []*G.Node{e.prediction}
}

// Encoding returns the node of the computational graph that stores the
// encoder output
func (e *encoderQNet) Encoding() *G.Node {
	return e.encoding
}

// EncodingVal returns the encoder output generated by the last run of
// the computational graph
func (e *encoderQNet) EncodingVal() G.Value {
	return e.encodingVal
}

// Projection returns the node of the computational graph that stores
// the projected representation
func (e *encoderQNet) Projection() *G.Node {
	return e.projection
}

// ProjectionVal returns the projected representation generated by the
// last run of the computational graph
func (e *encoderQNet) ProjectionVal() G.Value {
	return e.projVal
}

// GobEncode implements the gob.GobEncoder interface
func (e *encoderQNet) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	for _, data := range []interface{}{
		e.numActions, e.numInputs, e.batchSize, e.encodingDim,
		e.projectionDim,
	} {
		if err := enc.Encode(data); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode network "+
				"dimensions: %v", err)
		}
	}

	if err := enc.Encode(e.hiddenSizes); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode hidden sizes: %v",
			err)
	}
	if err := enc.Encode(e.biases); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode biases: %v", err)
	}
	if err := enc.Encode(e.activations); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode activations: %v",
			err)
	}

	for i, layer := range e.layers {
		fc, ok := layer.(*fcLayer)
		if !ok {
			return nil, fmt.Errorf("gobencode: layer %v is not serializable",
				i)
		}
		if err := enc.Encode(fc); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode layer %v: %v",
				i, err)
		}
	}

	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface
func (e *encoderQNet) GobDecode(in []byte) error {
	buf := bytes.NewReader(in)
	dec := gob.NewDecoder(buf)

	var numActions, numInputs, batchSize, encodingDim, projectionDim int
	for _, data := range []*int{
		&numActions, &numInputs, &batchSize, &encodingDim, &projectionDim,
	} {
		if err := dec.Decode(data); err != nil {
			return fmt.Errorf("gobdecode: could not decode network "+
				"dimensions: %v", err)
		}
	}

	var sizes []int
	if err := dec.Decode(&sizes); err != nil {
		return fmt.Errorf("gobdecode: could not decode hidden sizes: %v", err)
	}

	var biases []bool
	if err := dec.Decode(&biases); err != nil {
		return fmt.Errorf("gobdecode: could not decode biases: %v", err)
	}

	var activations []*Activation
	if err := dec.Decode(&activations); err != nil {
		return fmt.Errorf("gobdecode: could not decode activations: %v", err)
	}

	// The stored sizes include the encoding, projection, and Q layers
	hidden := len(sizes) - 3
	if hidden < 0 {
		return fmt.Errorf("gobdecode: too few layers \n\thave(%v)",
			len(sizes))
	}

	g := G.NewGraph()
	newNet, err := NewEncoderQNet(numInputs, batchSize, numActions, g,
		sizes[:hidden], biases[:hidden], activations[:hidden], encodingDim,
		projectionDim, G.Zeroes())
	if err != nil {
		return fmt.Errorf("gobdecode: could not construct new network: %v",
			err)
	}
	newQNet := newNet.(*encoderQNet)

	// Fill the new network's layers with the stored weight values
	for i := range newQNet.layers {
		fc := newQNet.layers[i].(*fcLayer)
		if err := dec.Decode(fc); err != nil {
			return fmt.Errorf("gobdecode: could not decode layer %v: %v", i,
				err)
		}
	}

	*e = *newQNet
	return nil
}
