// Package replay implements replay tables for storing and sampling
// transitions of agent experience.
package replay

import (
	"container/list"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"rlworks.org/dqn/timestep"
	"rlworks.org/dqn/utils/intutils"
)

// Batch is a batch of transitions sampled from a Table. The State,
// Action, NextState, and NextAction fields hold their vectors
// back-to-back in row major order.
//
// Indices identifies the Table slot that each transition in the batch
// was drawn from. The slice can be passed to UpdatePriorities to set
// new priorities for the sampled transitions.
//
// Weights holds one importance sampling weight per transition,
// correcting for the bias of non-uniform sampling. The weights are
// normalized so that the largest weight in the batch is 1. When
// sampling is uniform, every weight is 1.
type Batch struct {
	State      []float64
	Action     []float64
	Reward     []float64
	Discount   []float64
	NextState  []float64
	NextAction []float64

	Indices []int
	Weights []float64
}

// Config implements a specific configuration of a replay Table
type Config struct {
	RemoveMethod      SelectorType
	SampleMethod      SelectorType
	RemoveSize        int
	SampleSize        int
	MaxReplayCapacity int
	MinReplayCapacity int

	// PriorityExponent is the exponent applied to priorities by a
	// Prioritized sample method. Unused by other sample methods.
	PriorityExponent float64

	// ISExponent is the exponent of the importance sampling weights
	// computed for sampled batches. An exponent of 0 disables the
	// importance sampling correction.
	ISExponent float64
}

// Create creates and returns the replay Table with the specified
// Config
func (c Config) Create(featureSize, actionSize int,
	seed int64) (*Table, error) {
	remover := CreateSelector(c.RemoveMethod, c.RemoveSize,
		c.PriorityExponent, seed)
	sampler := CreateSelector(c.SampleMethod, c.SampleSize,
		c.PriorityExponent, seed)

	return New(remover, sampler, c.MinReplayCapacity, c.MaxReplayCapacity,
		featureSize, actionSize, c.ISExponent)
}

// Table implements a replay table of transitions. Transitions are
// stored in fixed-size slot caches. When the table is full, the
// remover Selector chooses which slots to free, and the sampler
// Selector chooses which slots each sampled batch is drawn from.
//
// A Table is safe for concurrent use.
type Table struct {
	mu sync.Mutex

	stateCache      []float64
	actionCache     []float64
	rewardCache     []float64
	discountCache   []float64
	nextStateCache  []float64
	nextActionCache []float64

	// The indices of the caches that are empty and have no data
	emptyIndices []int

	// The indices of the caches that have data
	inUseIndices []int

	// orderOfInsert outlines the chronological order of inserts. For
	// i > j, the data at index orderOfInsert[i] was inserted into the
	// table after the data at index orderOfInsert[j]
	orderOfInsert *list.List

	// Outlines how data is removed and sampled
	remover Selector
	sampler Selector

	// priorities holds the raw priority of each slot. New transitions
	// get the largest priority seen so far, so that every transition
	// is sampled at least once before its priority is refined.
	priorities  []float64
	maxPriority float64
	isExponent  float64

	minCapacity int
	maxCapacity int
	featureSize int
	actionSize  int
}

// New creates and returns a new replay Table. The remover and sampler
// parameters are Selectors which determine how data is removed and
// sampled from the table. The featureSize and actionSize parameters
// define the size of the feature and action vectors. The isExponent
// parameter determines the exponent of the importance sampling weights
// of sampled batches.
//
// Pixel observations should be flattened before adding to the table.
func New(remover, sampler Selector, minCapacity, maxCapacity, featureSize,
	actionSize int, isExponent float64) (*Table, error) {
	if minCapacity <= 0 {
		return &Table{}, fmt.Errorf("new: minCapacity must be > 0")
	}
	if maxCapacity < 1 {
		return &Table{}, fmt.Errorf("new: maxCapacity must be >= 1")
	}
	if maxCapacity < sampler.BatchSize() {
		return &Table{}, fmt.Errorf("new: cannot have batch size (%v) > max "+
			"table capacity (%v)", sampler.BatchSize(), maxCapacity)
	}
	if isExponent < 0 {
		return &Table{}, fmt.Errorf("new: isExponent must be >= 0")
	}

	remover.registerAsRemover()

	for _, s := range []Selector{remover, sampler} {
		if tracker, ok := s.(priorityTracker); ok {
			tracker.reserve(maxCapacity)
		}
	}

	emptyIndices := make([]int, maxCapacity)
	for i := range emptyIndices {
		emptyIndices[i] = i
	}

	return &Table{
		stateCache:      make([]float64, maxCapacity*featureSize),
		actionCache:     make([]float64, maxCapacity*actionSize),
		rewardCache:     make([]float64, maxCapacity),
		discountCache:   make([]float64, maxCapacity),
		nextStateCache:  make([]float64, maxCapacity*featureSize),
		nextActionCache: make([]float64, maxCapacity*actionSize),

		emptyIndices:  emptyIndices,
		inUseIndices:  make([]int, 0, maxCapacity),
		orderOfInsert: list.New(),

		remover: remover,
		sampler: sampler,

		priorities:  make([]float64, maxCapacity),
		maxPriority: 1.0,
		isExponent:  isExponent,

		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
		featureSize: featureSize,
		actionSize:  actionSize,
	}, nil
}

// insertOrder returns a slice of at most n indices which describes the
// order that the first n data were inserted into the table. The length
// of the returned slice is the minimum between n and the number of
// elements currently in the table.
//
// For example, if this function returns []int{9, 15, 1}, this means
// that the first data was inserted into the table at position 9, the
// next at position 15, and the last at position 1
func (t *Table) insertOrder(n int) []int {
	size := intutils.Min(n, t.Capacity())
	insertOrder := make([]int, size)
	element := t.orderOfInsert.Front()

	for i := 0; i < size; i++ {
		insertOrder[i] = element.Value.(int)
		element = element.Next()
		if element == nil {
			break
		}
	}
	return insertOrder
}

// removeFront removes the earliest tracked index at which data was
// inserted.
//
// The table keeps track of the order of indices at which data was
// inserted. This function will remove the earliest index from the
// front of this list.
func (t *Table) removeFront() {
	t.orderOfInsert.Remove(t.orderOfInsert.Front())
}

// BatchSize returns the number of transitions in a batch returned by
// Sample()
func (t *Table) BatchSize() int {
	return t.sampler.BatchSize()
}

// Capacity returns the current number of elements in the table that
// are available for sampling
func (t *Table) Capacity() int {
	return len(t.inUseIndices)
}

// MaxCapacity returns the maximum number of elements that are allowed
// in the table
func (t *Table) MaxCapacity() int {
	return t.maxCapacity
}

// MinCapacity returns the minimum number of elements required in the
// table before sampling is allowed
func (t *Table) MinCapacity() int {
	return t.minCapacity
}

// setPriority sets the raw priority of a slot and notifies any
// priority-tracking Selectors
func (t *Table) setPriority(index int, priority float64) {
	t.priorities[index] = priority
	for _, s := range []Selector{t.sampler, t.remover} {
		if tracker, ok := s.(priorityTracker); ok {
			tracker.setPriority(index, priority)
		}
	}
}

// remove frees slots of the table using indices chosen by the table's
// remover
func (t *Table) remove() error {
	if t.Capacity() <= t.minCapacity {
		return fmt.Errorf("remove: cannot remove, table at min capacity")
	}

	indices := t.remover.choose(t)
	for _, index := range indices {
		for i := range t.inUseIndices {
			if t.inUseIndices[i] == index {
				t.inUseIndices[i] = t.inUseIndices[len(t.inUseIndices)-1]
				t.inUseIndices = t.inUseIndices[:len(t.inUseIndices)-1]
				break
			}
		}

		t.setPriority(index, 0)
		t.emptyIndices = append(t.emptyIndices, index)
	}
	return nil
}

// Add adds a transition to the table. If the table is full, the
// table's remover frees slots to make room. New transitions get the
// largest priority seen so far.
func (t *Table) Add(trans timestep.Transition) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if trans.State.Len() != t.featureSize ||
		trans.NextState.Len() != t.featureSize {
		return fmt.Errorf("add: invalid feature size \n\twant(%v)"+
			"\n\thave(%v)", t.featureSize, trans.State.Len())
	}
	if trans.Action.Len() != t.actionSize ||
		trans.NextAction.Len() != t.actionSize {
		return fmt.Errorf("add: invalid action size \n\twant(%v)"+
			"\n\thave(%v)", t.actionSize, trans.Action.Len())
	}

	if t.Capacity() >= t.maxCapacity {
		if err := t.remove(); err != nil {
			return fmt.Errorf("add: cannot add to table: %v", err)
		}
	}

	emptyIndicesLength := len(t.emptyIndices)
	index := t.emptyIndices[emptyIndicesLength-1]
	t.emptyIndices = t.emptyIndices[:emptyIndicesLength-1]
	t.orderOfInsert.PushBack(index)
	t.inUseIndices = append(t.inUseIndices, index)

	// Copy states
	stateInd := index * t.featureSize
	copy(t.stateCache[stateInd:stateInd+t.featureSize],
		vecData(trans.State))
	copy(t.nextStateCache[stateInd:stateInd+t.featureSize],
		vecData(trans.NextState))

	// Copy actions
	actionInd := index * t.actionSize
	copy(t.actionCache[actionInd:actionInd+t.actionSize],
		vecData(trans.Action))
	copy(t.nextActionCache[actionInd:actionInd+t.actionSize],
		vecData(trans.NextAction))

	t.rewardCache[index] = trans.Reward
	t.discountCache[index] = trans.Discount

	t.setPriority(index, t.maxPriority)

	return nil
}

// Sample samples and returns a batch of transitions from the table
func (t *Table) Sample() (*Batch, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Capacity() == 0 {
		return nil, &TableError{Op: "sample", Err: errEmptyTable}
	}
	if t.Capacity() < t.MinCapacity() {
		return nil, &TableError{Op: "sample", Err: errInsufficientSamples}
	}

	indices := t.sampler.choose(t)
	batchSize := len(indices)

	stateBatch := make([]float64, batchSize*t.featureSize)
	nextStateBatch := make([]float64, batchSize*t.featureSize)
	for i, index := range indices {
		batchStartInd := i * t.featureSize
		expStartInd := index * t.featureSize
		copy(stateBatch[batchStartInd:batchStartInd+t.featureSize],
			t.stateCache[expStartInd:expStartInd+t.featureSize],
		)
		copy(nextStateBatch[batchStartInd:batchStartInd+t.featureSize],
			t.nextStateCache[expStartInd:expStartInd+t.featureSize],
		)
	}

	actionBatch := make([]float64, batchSize*t.actionSize)
	nextActionBatch := make([]float64, batchSize*t.actionSize)
	for i, index := range indices {
		batchStartInd := i * t.actionSize
		expStartInd := index * t.actionSize
		copy(actionBatch[batchStartInd:batchStartInd+t.actionSize],
			t.actionCache[expStartInd:expStartInd+t.actionSize],
		)
		copy(nextActionBatch[batchStartInd:batchStartInd+t.actionSize],
			t.nextActionCache[expStartInd:expStartInd+t.actionSize],
		)
	}

	rewardBatch := make([]float64, batchSize)
	discountBatch := make([]float64, batchSize)
	for i, index := range indices {
		rewardBatch[i] = t.rewardCache[index]
		discountBatch[i] = t.discountCache[index]
	}

	return &Batch{
		State:      stateBatch,
		Action:     actionBatch,
		Reward:     rewardBatch,
		Discount:   discountBatch,
		NextState:  nextStateBatch,
		NextAction: nextActionBatch,

		Indices: indices,
		Weights: t.weights(indices),
	}, nil
}

// weights computes the normalized importance sampling weights of the
// transitions at the given indices
func (t *Table) weights(indices []int) []float64 {
	weights := make([]float64, len(indices))
	if t.isExponent == 0 {
		for i := range weights {
			weights[i] = 1.0
		}
		return weights
	}

	probs := t.sampler.probabilities(t, indices)
	n := float64(t.Capacity())

	maxWeight := 0.0
	for i := range weights {
		weights[i] = math.Pow(n*probs[i], -t.isExponent)
		if weights[i] > maxWeight {
			maxWeight = weights[i]
		}
	}

	if maxWeight > 0 {
		for i := range weights {
			weights[i] /= maxWeight
		}
	}
	return weights
}

// UpdatePriorities sets new priorities for the table slots at the
// given indices. Indices of slots that have since been freed are
// ignored. Priorities must be non-negative.
func (t *Table) UpdatePriorities(indices []int, priorities []float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(indices) != len(priorities) {
		return fmt.Errorf("updatepriorities: invalid number of priorities"+
			" \n\twant(%v)\n\thave(%v)", len(indices), len(priorities))
	}

	for i, index := range indices {
		if index < 0 || index >= t.maxCapacity {
			return fmt.Errorf("updatepriorities: index %v out of range [0, "+
				"%v)", index, t.maxCapacity)
		}
		if priorities[i] < 0 {
			return fmt.Errorf("updatepriorities: priority must be >= 0 "+
				"\n\thave(%v)", priorities[i])
		}
	}

	for i, index := range indices {
		if !t.inUse(index) {
			continue
		}

		t.setPriority(index, priorities[i])
		if priorities[i] > t.maxPriority {
			t.maxPriority = priorities[i]
		}
	}
	return nil
}

// inUse returns whether the slot at index currently holds data
func (t *Table) inUse(index int) bool {
	for _, used := range t.inUseIndices {
		if used == index {
			return true
		}
	}
	return false
}

// vecData returns the data of a vector as a []float64
func vecData(v mat.Vector) []float64 {
	if dense, ok := v.(*mat.VecDense); ok {
		return dense.RawVector().Data
	}

	data := make([]float64, v.Len())
	for i := range data {
		data[i] = v.AtVec(i)
	}
	return data
}

// String returns the string representation of the table
func (t *Table) String() string {
	baseStr := "Indices Available: %v \nIndices Used: %v \nStates: %v" +
		" \nActions: %v \nRewards: %v \nDiscounts: %v \nNext States: %v \n" +
		"Next Actions: %v"
	return fmt.Sprintf(baseStr, t.emptyIndices, t.inUseIndices, t.stateCache,
		t.actionCache, t.rewardCache, t.discountCache, t.nextStateCache,
		t.nextActionCache)
}
