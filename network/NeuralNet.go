// Package network implements neural network function approximators
// using Gorgonia
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet implements a neural network on a Gorgonia computational
// graph. A NeuralNet only populates a graph with the operations of the
// network. It holds no virtual machine of its own: an external VM
// should be used to run the graph, and the VM should always be run
// before accessing the network Output().
type NeuralNet interface {
	// Graph returns the computational graph that the network populates
	Graph() *G.ExprGraph

	// Clone clones the network to a new computational graph
	Clone() (NeuralNet, error)

	// CloneWithBatch clones the network to a new computational graph
	// with a new input batch size
	CloneWithBatch(int) (NeuralNet, error)

	// BatchSize returns the number of observations in an input batch
	BatchSize() int

	// Features returns the number of features in a single observation
	Features() int

	// Outputs returns the number of output values predicted per
	// observation
	Outputs() int

	// SetInput sets the value of the input node before running the
	// forward pass. Inputs are constructed in row major order.
	SetInput([]float64) error

	// Set sets the weights of the network to those of another network
	Set(NeuralNet) error

	// Polyak sets the weights of the network to a Polyak average
	// between its existing weights and those of another network
	Polyak(NeuralNet, float64) error

	// Learnables returns the learnable nodes of the network
	Learnables() G.Nodes

	// Model returns the learnable nodes with their gradients
	Model() []G.ValueGrad

	// Output returns the values of the network predictions generated
	// by the last run of the computational graph
	Output() []G.Value

	// Prediction returns the nodes of the computational graph that
	// store the network predictions
	Prediction() []*G.Node
}
