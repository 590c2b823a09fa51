package replay

import (
	"math/rand"

	"rlworks.org/dqn/utils/intutils"
)

// SelectorType describes the different types of Selectors that are
// available
type SelectorType string

// Available Selector types
const (
	Uniform     SelectorType = "Uniform"
	Fifo        SelectorType = "Fifo"
	Prioritized SelectorType = "Prioritized"
)

// CreateSelector is a factory method for creating Selectors. The
// exponent parameter is used only by Prioritized Selectors.
func CreateSelector(t SelectorType, samples int, exponent float64,
	seed int64) Selector {
	switch t {
	case Fifo:
		return NewFifoSelector(samples)
	case Prioritized:
		return NewPrioritizedSelector(samples, exponent, seed)
	default:
		return NewUniformSelector(samples, seed)
	}
}

// Selector implements functionality for choosing how data should be
// sampled and/or removed from a replay Table
type Selector interface {
	// choose selects the indices at which data should be drawn from
	// the replay Table
	choose(t *Table) []int

	// probabilities returns the probability with which each of the
	// given indices would be chosen by a single draw of the Selector
	probabilities(t *Table, indices []int) []float64

	// BatchSize returns the number of elements that will be selected
	BatchSize() int

	// registerAsRemover registers a Selector as a remover
	//
	// Some Selectors require different behaviour if they are removers,
	// so they should be notified if they become a remover to add this
	// additional behaviour
	registerAsRemover()
}

// priorityTracker is implemented by Selectors whose selection
// distribution depends on per-slot priorities. The Table notifies such
// Selectors whenever a slot's priority changes.
type priorityTracker interface {
	// reserve tells the Selector how many slots the Table holds
	reserve(capacity int)

	// setPriority sets the priority of a Table slot. Freed slots get
	// a priority of 0 so that they are never selected.
	setPriority(index int, priority float64)
}

// uniformSelector is a Selector which selects data from a replay
// Table uniformly randomly
type uniformSelector struct {
	samples int
	rng     *rand.Rand
}

// NewUniformSelector returns a new Selector which selects data
// uniformly randomly from a replay Table
func NewUniformSelector(samples int, seed int64) Selector {
	source := rand.NewSource(seed)
	rng := rand.New(source)

	return &uniformSelector{samples: samples, rng: rng}
}

// registerAsRemover implements the Selector interface
func (u *uniformSelector) registerAsRemover() {}

// BatchSize gets the number of samples in a batch drawn from the Table
func (u *uniformSelector) BatchSize() int {
	return u.samples
}

// choose selects a number of indices at which to draw data from the
// Table
func (u *uniformSelector) choose(t *Table) []int {
	selected := make([]int, u.BatchSize())
	for i := 0; i < u.BatchSize(); i++ {
		selected[i] = t.inUseIndices[u.rng.Intn(t.Capacity())]
	}
	return selected
}

// probabilities implements the Selector interface. Every in-use slot
// is equally likely to be drawn.
func (u *uniformSelector) probabilities(t *Table, indices []int) []float64 {
	probs := make([]float64, len(indices))
	for i := range probs {
		probs[i] = 1.0 / float64(t.Capacity())
	}
	return probs
}

// fifoSelector is a Selector which selects data from a replay Table
// first-in-first-out
type fifoSelector struct {
	samples int
	remover bool
}

// NewFifoSelector returns a new Selector which draws the oldest data
// from a replay Table
func NewFifoSelector(samples int) Selector {
	return &fifoSelector{samples: samples, remover: false}
}

// registerAsRemover implements the Selector interface
func (f *fifoSelector) registerAsRemover() {
	f.remover = true
}

// BatchSize gets the number of samples in a batch drawn from the Table
func (f *fifoSelector) BatchSize() int {
	return f.samples
}

// choose selects a number of indices at which to draw data from the
// Table
func (f *fifoSelector) choose(t *Table) []int {
	selected := make([]int, intutils.Min(f.BatchSize(), t.Capacity()))
	insertOrder := t.insertOrder(f.BatchSize())

	for i := 0; i < f.BatchSize() && i < t.Capacity(); i++ {
		selected[i] = insertOrder[i]

		if f.remover {
			// In a Fifo remover, the indices at which data was first
			// added get freed first, so they can be removed from the
			// ordering of inserted indices
			t.removeFront()
		}
	}

	return selected
}

// probabilities implements the Selector interface. Selection is
// deterministic, so each chosen index has probability 1.
func (f *fifoSelector) probabilities(t *Table, indices []int) []float64 {
	probs := make([]float64, len(indices))
	for i := range probs {
		probs[i] = 1.0
	}
	return probs
}
