// Package sumtree implements a fixed-shape binary sum tree over a flat array
// of priorities, supporting O(log n) point updates and O(log n) sampling by
// cumulative value.
package sumtree

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrStructural is matched by StructuralError.
var ErrStructural = errors.New("sumtree: leaf count cannot be paired into a complete tree")

// StructuralError reports a leaf count that is zero or not a power of two.
type StructuralError struct {
	Leaves int
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("sumtree: %d leaves is not a positive power of two", e.Leaves)
}

func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}

// IndexError reports a leaf index outside [0, Len).
type IndexError struct {
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("sumtree: leaf index %d out of range [0, %d)", e.Index, e.Len)
}

// Tree is a complete binary tree stored in heap order. Node i has children
// 2i+1 and 2i+2; leaf k is node leaves-1+k. Every internal node holds the
// sum of its two children.
type Tree struct {
	nodes  []float64
	leaves int
}

// New builds a tree with the given number of zero-valued leaves.
func New(leaves int) (*Tree, error) {
	if !IsPowerOfTwo(leaves) {
		return nil, &StructuralError{Leaves: leaves}
	}
	return &Tree{
		nodes:  make([]float64, 2*leaves-1),
		leaves: leaves,
	}, nil
}

// Build builds a tree whose leaves hold the given priorities, in order.
func Build(priorities []float64) (*Tree, error) {
	t, err := New(len(priorities))
	if err != nil {
		return nil, err
	}
	copy(t.nodes[t.leaves-1:], priorities)
	for i := t.leaves - 2; i >= 0; i-- {
		t.nodes[i] = t.nodes[2*i+1] + t.nodes[2*i+2]
	}
	return t, nil
}

// Len returns the number of leaves.
func (t *Tree) Len() int {
	return t.leaves
}

// Total returns the root value, the sum of every leaf.
func (t *Tree) Total() float64 {
	return t.nodes[0]
}

// Leaf returns the value of leaf i.
func (t *Tree) Leaf(i int) float64 {
	return t.nodes[t.leaves-1+i]
}

// Update sets leaf i to value and recomputes every ancestor on the path to
// the root from its children.
func (t *Tree) Update(i int, value float64) error {
	if i < 0 || i >= t.leaves {
		return &IndexError{Index: i, Len: t.leaves}
	}
	node := t.leaves - 1 + i
	t.nodes[node] = value
	for node > 0 {
		node = (node - 1) / 2
		t.nodes[node] = t.nodes[2*node+1] + t.nodes[2*node+2]
	}
	return nil
}

// Retrieve returns the leaf whose cumulative range contains target. Ranges
// are closed on the right: a target equal to a left subtree's sum selects
// the left subtree. Targets are expected in (0, Total()]; anything past the
// total lands in the last non-empty leaf.
func (t *Tree) Retrieve(target float64) int {
	node := 0
	for node < t.leaves-1 {
		left, right := 2*node+1, 2*node+2
		switch {
		case target <= t.nodes[left]:
			node = left
		case t.nodes[right] <= 0:
			// nothing to the right; overshoot from rounding
			target = t.nodes[left]
			node = left
		default:
			target -= t.nodes[left]
			node = right
		}
	}
	return node - (t.leaves - 1)
}

// Values returns a copy of every node value in heap order.
func (t *Tree) Values() []float64 {
	out := make([]float64, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// Reset zeroes every node, keeping the shape.
func (t *Tree) Reset() {
	for i := range t.nodes {
		t.nodes[i] = 0
	}
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n, for n >= 1.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
