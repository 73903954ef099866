package rescue

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeAllIntegral(t *testing.T) {
	n := &Node{Allocation: []float64{0, 1, 1}, Theta: []float64{2, 3}}
	assert.True(t, n.AllIntegral())

	n.Theta[1] = 2.5
	assert.False(t, n.AllIntegral())

	n = &Node{Infeasible: true}
	assert.False(t, n.AllIntegral())
}

func TestShouldPrune(t *testing.T) {
	fractional := &Node{Allocation: []float64{0.5}, Theta: []float64{1}, Obj: -10}

	assert.True(t, shouldPrune(&Node{Infeasible: true}, math.Inf(1)), "infeasibility prune")
	assert.True(t, shouldPrune(&Node{Allocation: []float64{1}, Theta: []float64{2}, Obj: -5}, -10), "integrality prune")
	assert.True(t, shouldPrune(fractional, -11), "bound prune: objective worse than incumbent")
	assert.False(t, shouldPrune(fractional, -10), "equal bound survives")
	assert.False(t, shouldPrune(fractional, -9))
}

func TestBestNode(t *testing.T) {
	nodes := []*Node{
		{Obj: -3, Allocation: []float64{0.5}},
		{Obj: math.Inf(1), Infeasible: true},
		{Obj: -7, Allocation: []float64{0.5}},
		{Obj: -5, Allocation: []float64{1}, Theta: []float64{2}},
	}
	assert.Equal(t, -7.0, bestNode(nodes, false).Obj)
	assert.Equal(t, -5.0, bestNode(nodes, true).Obj)
	assert.Nil(t, bestNode(nil, false))
}

func TestIncumbentIgnoresFractionalNodes(t *testing.T) {
	root := &Node{ID: 1, Obj: -10, Allocation: []float64{0.5}, Theta: []float64{1}}
	assert.True(t, math.IsInf(incumbentObjective([]*Node{root}), 1),
		"a fractional root is not an incumbent")

	// a child relaxation is always at least as bad as its parent; with the
	// fractional root as incumbent it would be bound-pruned at creation and
	// the tree could never grow past the root
	child := &Node{ID: 2, Obj: -9.7, Allocation: []float64{0.4}, Theta: []float64{1}}
	assert.False(t, shouldPrune(child, incumbentObjective([]*Node{root, child})))

	integral := &Node{ID: 3, Obj: -9.5, Allocation: []float64{1}, Theta: []float64{2}}
	all := []*Node{root, child, integral}
	assert.Equal(t, -9.5, incumbentObjective(all))
	assert.False(t, shouldPrune(child, incumbentObjective(all)), "better bound survives")

	worse := &Node{ID: 4, Obj: -9.4, Allocation: []float64{0.6}, Theta: []float64{1}}
	assert.True(t, shouldPrune(worse, incumbentObjective(all)), "bound prune against the integral incumbent")
}

func TestPickBranchVariableIsSeedable(t *testing.T) {
	master := &MasterProblem{ThetaStart: 4, VarNames: []string{"a", "b", "c", "d", "t0", "t1"}}
	node := &Node{
		Allocation: []float64{0.5, 1, 0.3, 0},
		Theta:      []float64{1.7, 2},
	}

	idx1, val1 := pickBranchVariable(master, node, rand.New(rand.NewSource(7)))
	idx2, val2 := pickBranchVariable(master, node, rand.New(rand.NewSource(7)))
	assert.Equal(t, idx1, idx2, "same seed picks the same variable")
	assert.Equal(t, val1, val2)

	// only fractional variables are candidates
	for i := 0; i < 50; i++ {
		idx, val := pickBranchVariable(master, node, rand.New(rand.NewSource(int64(i))))
		require.Contains(t, []int{0, 2, 4}, idx)
		assert.False(t, isIntegral(val))
	}
}

func TestPickBranchVariableThetaValue(t *testing.T) {
	master := &MasterProblem{ThetaStart: 1}
	node := &Node{Allocation: []float64{1}, Theta: []float64{3.25}}
	idx, val := pickBranchVariable(master, node, rand.New(rand.NewSource(1)))
	assert.Equal(t, 1, idx)
	assert.Equal(t, 3.25, val)
}
