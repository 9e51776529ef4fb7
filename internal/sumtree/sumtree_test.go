package sumtree

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestBuild_RootIsSumOfLeaves(t *testing.T) {
	priorities := []float64{1, 2, 3, 4, 5, 6, 7, 8}

	tree, err := Build(priorities)
	require.NoError(t, err)

	assert.Equal(t, 8, tree.Len())
	assert.InDelta(t, 36.0, tree.Total(), 1e-12)
	for i, p := range priorities {
		assert.Equal(t, p, tree.Leaf(i))
	}
}

func TestNew_RejectsNonPowerOfTwo(t *testing.T) {
	for _, n := range []int{0, -4, 3, 6, 42000} {
		_, err := New(n)
		require.Error(t, err, "leaves=%d", n)
		assert.True(t, errors.Is(err, ErrStructural))

		var structural *StructuralError
		require.True(t, errors.As(err, &structural))
		assert.Equal(t, n, structural.Leaves)
	}

	_, err := Build([]float64{1, 2, 3})
	assert.ErrorIs(t, err, ErrStructural)
}

func TestUpdate_MaintainsSumInvariant(t *testing.T) {
	tree, err := New(16)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	leaves := make([]float64, 16)
	for step := 0; step < 1000; step++ {
		i := rng.Intn(16)
		v := rng.Float64() * 10
		require.NoError(t, tree.Update(i, v))
		leaves[i] = v
	}

	assert.InDelta(t, floats.Sum(leaves), tree.Total(), 1e-9)

	values := tree.Values()
	for node := 0; node < tree.Len()-1; node++ {
		assert.InDelta(t, values[2*node+1]+values[2*node+2], values[node], 1e-9, "node %d", node)
	}
}

func TestUpdate_OnlyTouchesPathToRoot(t *testing.T) {
	tree, err := Build([]float64{1, 1, 1, 1, 1, 1, 1, 1})
	require.NoError(t, err)

	before := tree.Values()
	require.NoError(t, tree.Update(5, 4))
	after := tree.Values()

	// leaf 5 is node 12; its ancestors are 5, 2 and 0
	onPath := map[int]bool{12: true, 5: true, 2: true, 0: true}
	for node := range before {
		if onPath[node] {
			assert.NotEqual(t, before[node], after[node], "node %d should change", node)
		} else {
			assert.Equal(t, before[node], after[node], "node %d should be untouched", node)
		}
	}
	assert.Equal(t, 11.0, tree.Total())
}

func TestUpdate_OutOfRange(t *testing.T) {
	tree, err := New(4)
	require.NoError(t, err)

	for _, i := range []int{-1, 4, 100} {
		err := tree.Update(i, 1)
		var idxErr *IndexError
		require.True(t, errors.As(err, &idxErr), "index %d", i)
		assert.Equal(t, i, idxErr.Index)
		assert.Equal(t, 4, idxErr.Len)
	}
}

func TestRetrieve_TieBreakRoutesLeft(t *testing.T) {
	tree, err := Build([]float64{1, 2, 3, 4})
	require.NoError(t, err)

	cases := []struct {
		target float64
		leaf   int
	}{
		{0.5, 0},
		{1.0, 0}, // boundary goes left
		{1.0001, 1},
		{3.0, 1},
		{3.5, 2},
		{6.0, 2},
		{6.5, 3},
		{10.0, 3},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.leaf, tree.Retrieve(tc.target), "target %v", tc.target)
	}
}

func TestRetrieve_SkipsEmptyLeaves(t *testing.T) {
	tree, err := Build([]float64{2, 0, 3, 0, 0, 0, 0, 0})
	require.NoError(t, err)

	assert.Equal(t, 0, tree.Retrieve(2))
	assert.Equal(t, 2, tree.Retrieve(2.0000001))
	assert.Equal(t, 2, tree.Retrieve(5))
	// rounding overshoot never lands on an empty leaf
	assert.Equal(t, 2, tree.Retrieve(5.0000001))
}

func TestRetrieve_SamplesProportionally(t *testing.T) {
	priorities := []float64{1, 3, 0.5, 6, 2, 2, 0.25, 9}
	tree, err := Build(priorities)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	draws := 200000
	observed := make([]float64, len(priorities))
	for i := 0; i < draws; i++ {
		target := tree.Total() - rng.Float64()*tree.Total()
		observed[tree.Retrieve(target)]++
	}

	total := floats.Sum(priorities)
	expected := make([]float64, len(priorities))
	for i, p := range priorities {
		expected[i] = float64(draws) * p / total
	}

	chi2 := stat.ChiSquare(observed, expected)
	pValue := distuv.ChiSquared{K: float64(len(priorities) - 1)}.Survival(chi2)
	assert.Greater(t, pValue, 0.001, "chi2=%v observed=%v expected=%v", chi2, observed, expected)
}

func TestReset(t *testing.T) {
	tree, err := Build([]float64{1, 2, 3, 4})
	require.NoError(t, err)

	tree.Reset()
	assert.Equal(t, 0.0, tree.Total())
	assert.Equal(t, 4, tree.Len())
	require.NoError(t, tree.Update(3, 2))
	assert.Equal(t, 2.0, tree.Total())
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 8: 8, 9: 16, 42000: 65536}
	for in, want := range cases {
		assert.Equal(t, want, NextPowerOfTwo(in), "n=%d", in)
	}
	assert.True(t, IsPowerOfTwo(1))
	assert.False(t, IsPowerOfTwo(0))
	assert.False(t, IsPowerOfTwo(12))
}
