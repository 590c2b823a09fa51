package replay

// sumTree implements a complete binary tree where each internal node
// stores the sum of its children and each leaf stores the priority of
// one table slot. Setting a leaf and finding the leaf that covers a
// prefix sum both take logarithmic time in the number of slots.
type sumTree struct {
	leaves int // Number of leaves, a power of two
	nodes  []float64
}

// newSumTree returns a new sumTree with at least capacity leaves
func newSumTree(capacity int) *sumTree {
	leaves := 1
	for leaves < capacity {
		leaves *= 2
	}
	return &sumTree{
		leaves: leaves,
		nodes:  make([]float64, 2*leaves-1),
	}
}

// set sets the priority of leaf i and updates the sums along the path
// to the root
func (s *sumTree) set(i int, priority float64) {
	pos := s.leaves - 1 + i
	s.nodes[pos] = priority

	for pos > 0 {
		pos = (pos - 1) / 2
		left := 2*pos + 1
		right := left + 1
		s.nodes[pos] = s.nodes[left] + s.nodes[right]
	}
}

// get returns the priority of leaf i
func (s *sumTree) get(i int) float64 {
	return s.nodes[s.leaves-1+i]
}

// total returns the sum of all leaf priorities
func (s *sumTree) total() float64 {
	return s.nodes[0]
}

// find returns the index of the first leaf whose cumulative priority
// exceeds prefix. The prefix should be drawn from [0, total()).
func (s *sumTree) find(prefix float64) int {
	pos := 0
	for pos < s.leaves-1 {
		left := 2*pos + 1
		if prefix < s.nodes[left] {
			pos = left
		} else {
			prefix -= s.nodes[left]
			pos = left + 1
		}
	}
	return pos - (s.leaves - 1)
}
