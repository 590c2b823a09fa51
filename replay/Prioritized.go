package replay

import (
	"math"
	"math/rand"
)

// prioritizedSelector is a Selector which selects slot i of a replay
// Table with probability proportional to priorityᵢ^exponent. Slot
// priorities are set by the Table whenever data is added or priorities
// are updated.
type prioritizedSelector struct {
	samples  int
	exponent float64
	tree     *sumTree
	rng      *rand.Rand
}

// NewPrioritizedSelector returns a new Selector which selects data
// from a replay Table proportionally to the data's priority raised to
// the power of exponent. An exponent of 0 gives uniform selection.
func NewPrioritizedSelector(samples int, exponent float64,
	seed int64) Selector {
	source := rand.NewSource(seed)
	rng := rand.New(source)

	return &prioritizedSelector{
		samples:  samples,
		exponent: exponent,
		rng:      rng,
	}
}

// registerAsRemover implements the Selector interface
func (p *prioritizedSelector) registerAsRemover() {}

// BatchSize gets the number of samples in a batch drawn from the Table
func (p *prioritizedSelector) BatchSize() int {
	return p.samples
}

// reserve implements the priorityTracker interface
func (p *prioritizedSelector) reserve(capacity int) {
	p.tree = newSumTree(capacity)
}

// setPriority implements the priorityTracker interface. A priority of
// 0 always clears the slot's sum-tree weight, so that freed slots are
// never sampleable even when exponent is 0 and Pow(0, 0) would be 1.
func (p *prioritizedSelector) setPriority(index int, priority float64) {
	if priority == 0 {
		p.tree.set(index, 0)
		return
	}
	p.tree.set(index, math.Pow(priority, p.exponent))
}

// choose selects a number of indices at which to draw data from the
// Table. Indices are drawn with replacement proportionally to their
// priorities.
func (p *prioritizedSelector) choose(t *Table) []int {
	selected := make([]int, p.BatchSize())

	total := p.tree.total()
	if total <= 0 {
		// All priorities are 0, fall back to uniform selection
		for i := range selected {
			selected[i] = t.inUseIndices[p.rng.Intn(t.Capacity())]
		}
		return selected
	}

	for i := range selected {
		selected[i] = p.tree.find(p.rng.Float64() * total)
	}
	return selected
}

// probabilities implements the Selector interface
func (p *prioritizedSelector) probabilities(t *Table,
	indices []int) []float64 {
	probs := make([]float64, len(indices))

	total := p.tree.total()
	if total <= 0 {
		for i := range probs {
			probs[i] = 1.0 / float64(t.Capacity())
		}
		return probs
	}

	for i, index := range indices {
		probs[i] = p.tree.get(index) / total
	}
	return probs
}
