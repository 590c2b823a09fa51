package replay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSumTreeTotal(t *testing.T) {
	tree := newSumTree(5)
	require.Zero(t, tree.total())

	tree.set(0, 1.0)
	tree.set(2, 3.0)
	tree.set(4, 0.5)
	require.InDelta(t, 4.5, tree.total(), 1e-12)

	// Overwriting a leaf replaces its contribution to the total
	tree.set(2, 1.0)
	require.InDelta(t, 2.5, tree.total(), 1e-12)
}

func TestSumTreeGet(t *testing.T) {
	tree := newSumTree(4)
	tree.set(1, 2.0)
	tree.set(3, 7.0)

	require.Equal(t, 2.0, tree.get(1))
	require.Equal(t, 7.0, tree.get(3))
	require.Zero(t, tree.get(0))
}

func TestSumTreeFind(t *testing.T) {
	tree := newSumTree(4)
	tree.set(0, 1.0)
	tree.set(1, 2.0)
	tree.set(2, 3.0)
	tree.set(3, 4.0)

	// The leaf covering a prefix sum is the first leaf whose
	// cumulative priority exceeds the prefix
	require.Equal(t, 0, tree.find(0.5))
	require.Equal(t, 1, tree.find(1.0))
	require.Equal(t, 1, tree.find(2.9))
	require.Equal(t, 2, tree.find(3.0))
	require.Equal(t, 3, tree.find(9.9))
}

func TestSumTreeFindSkipsZeroPriority(t *testing.T) {
	tree := newSumTree(8)
	tree.set(3, 5.0)

	for _, prefix := range []float64{0.0, 2.5, 4.9} {
		require.Equal(t, 3, tree.find(prefix))
	}
}
