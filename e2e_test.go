package rescue

import (
	"math"
	"os"
	"testing"

	"git.solver4all.com/azaryc2s/gorobi/gurobi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireGurobi(t *testing.T) {
	t.Helper()
	if os.Getenv("GUROBI_HOME") == "" && os.Getenv("GRB_LICENSE_FILE") == "" {
		t.Skip("no gurobi environment available")
	}
}

// 3 sites, 2 teams (capacities [1,3], costs [1,2]), 2 equiprobable demand
// scenarios, budget 2, full adjacency. All variants must agree on the
// optimal expected rescues.
func e2eInstance() *Instance {
	inst := &Instance{
		Name:            "e2e",
		SiteCount:       3,
		ScenarioCount:   2,
		Demand:          [][]int{{2, 0}, {0, 2}, {1, 1}},
		SiteCoordinates: [][]float64{{0, 0}, {1, 0}, {0, 1}},
		TeamCapacities:  []int{1, 3},
		TeamCosts:       []int{1, 2},
		Radius:          100,
		Budget:          2,
		LoadFactor:      1.0,
	}
	if err := inst.Prepare(); err != nil {
		panic(err)
	}
	return inst
}

func TestVariantsAgreeOnObjective(t *testing.T) {
	requireGurobi(t)
	inst := e2eInstance()
	cfg := DefaultConfig()
	cfg.LogLevel = 1

	base, err := SolveBase(inst, cfg)
	require.NoError(t, err)

	for _, model := range []string{ModelLShaped, ModelLShapedCB} {
		sol, err := Solve(model, inst, cfg)
		require.NoError(t, err, model)
		assert.InDelta(t, base.Obj, sol.Obj, 1e-2, "%s disagrees with the base formulation", model)

		valid, comment := CheckSolutionValidity(sol, inst)
		assert.True(t, valid, "%s: %s", model, comment)
	}
}

func TestIterativeIdempotence(t *testing.T) {
	requireGurobi(t)
	inst := e2eInstance()
	cfg := DefaultConfig()
	cfg.LogLevel = 1

	first, err := SolveLShaped(inst, cfg)
	require.NoError(t, err)
	second, err := SolveLShaped(inst, cfg)
	require.NoError(t, err)

	assert.Equal(t, first.Allocations, second.Allocations)
	assert.InDelta(t, first.Obj, second.Obj, 1e-9)
}

func TestIterativeMonotonicTightening(t *testing.T) {
	requireGurobi(t)
	inst := e2eInstance()
	cfg := DefaultConfig()
	cfg.LogLevel = 1

	master, err := CreateMasterProblem(nil, inst, cfg, gurobi.BINARY)
	require.NoError(t, err)
	defer master.Free()

	_, err = RunCutLoop(master, inst, cfg, AcceptAllCuts)
	require.NoError(t, err)

	// the relaxation only tightens as cuts accumulate: the optimistic
	// recourse estimate never increases
	for i := 1; i < len(master.History); i++ {
		assert.LessOrEqual(t, master.History[i].ObjectiveValue, master.History[i-1].ObjectiveValue+1e-6,
			"objective rose between iterations %d and %d", i-1, i)
	}
}

func TestCutLoopTerminatesAtIterationCap(t *testing.T) {
	requireGurobi(t)
	inst := e2eInstance()
	cfg := DefaultConfig()
	cfg.LogLevel = 1
	cfg.MaxIterations = 2
	cfg.Gap = 1e-12
	cfg.StagnationEps = 0

	sol, err := SolveLShaped(inst, cfg)
	require.NoError(t, err)
	assert.LessOrEqual(t, sol.Iterations, 2)
}

// evalCut computes lhs - rhs of a cut at the given master variable values.
func evalCut(c Cut, values []float64) float64 {
	lhs := 0.0
	for i, idx := range c.Ind {
		lhs += c.Val[i] * values[idx]
	}
	return lhs - c.Rhs
}

// trueRecourse solves the scenario LP at the given allocation and returns
// its optimal rescue count.
func trueRecourse(t *testing.T, inst *Instance, k int, alloc []float64) float64 {
	t.Helper()
	sub, err := NewOptimalitySubProblem(nil, inst, k, alloc)
	require.NoError(t, err)
	defer sub.Free()
	require.Equal(t, gurobi.OPTIMAL, sub.Status)
	return sub.Objective
}

func TestOptimalityCutSoundness(t *testing.T) {
	requireGurobi(t)
	inst := e2eInstance()
	S := inst.SiteCount
	T := len(inst.TeamCapacities)

	// team 1 (capacity 3) at site 0, full adjacency: feasible everywhere
	alloc := make([]float64, S*T)
	alloc[GetAllocIndex(0, 1, T)] = 1.0

	// a second, larger allocation the cut was not derived from
	other := make([]float64, S*T)
	other[GetAllocIndex(0, 1, T)] = 1.0
	other[GetAllocIndex(1, 0, T)] = 1.0

	for k := 0; k < inst.ScenarioCount; k++ {
		sub, err := NewOptimalitySubProblem(nil, inst, k, alloc)
		require.NoError(t, err)
		require.NotNil(t, sub.Cut, "scenario %d", k)

		// the cut must hold with theta_k at the true recourse value: it
		// never excludes the subproblem's own optimum
		values := make([]float64, S*T+inst.ScenarioCount)
		copy(values, alloc)
		values[GetThetaIndex(k, S, T)] = -sub.Objective
		assert.LessOrEqual(t, evalCut(*sub.Cut, values), 1e-6, "scenario %d", k)

		// nor any other allocation's true recourse: a cut derived at one
		// point stays valid everywhere
		copy(values, other)
		values[GetThetaIndex(k, S, T)] = -trueRecourse(t, inst, k, other)
		assert.LessOrEqual(t, evalCut(*sub.Cut, values), 1e-6,
			"scenario %d: cut excludes a feasible point it was not derived from", k)
		sub.Free()
	}
}

func TestFeasibilityCutExcludesInfeasibleAllocation(t *testing.T) {
	requireGurobi(t)
	inst := e2eInstance()
	S := inst.SiteCount
	T := len(inst.TeamCapacities)

	// no team anywhere: every demanded site is uncoverable
	alloc := make([]float64, S*T)
	sub, err := NewFeasibilitySubProblem(nil, inst, 0, alloc)
	require.NoError(t, err)
	defer sub.Free()
	require.NotNil(t, sub.Cut, "zero allocation must produce a feasibility cut")
	assert.True(t, math.IsNaN(sub.Cut.Obj))

	// the infeasibility is driven by the placement rows, so the cut must
	// carry allocation terms; a constant cut would poison the master
	require.NotEmpty(t, sub.Cut.Ind)

	// the cut must exclude the allocation it was derived from
	values := make([]float64, S*T+inst.ScenarioCount)
	copy(values, alloc)
	assert.Greater(t, evalCut(*sub.Cut, values), 0.0)

	// but never a covering allocation
	covering := make([]float64, S*T+inst.ScenarioCount)
	covering[GetAllocIndex(0, 1, T)] = 1.0
	assert.LessOrEqual(t, evalCut(*sub.Cut, covering), 1e-6,
		"feasibility cut excludes an allocation with zero recourse slack")
}

func TestIntegerLShapedMatchesBase(t *testing.T) {
	requireGurobi(t)
	inst := e2eInstance()
	cfg := DefaultConfig()
	cfg.LogLevel = 1
	cfg.MaxNodes = 20

	base, err := SolveBase(inst, cfg)
	require.NoError(t, err)

	sol, err := SolveIntLShaped(inst, cfg)
	require.NoError(t, err)
	valid, comment := CheckSolutionValidity(sol, inst)
	assert.True(t, valid, comment)
	for _, a := range sol.Allocations {
		assert.GreaterOrEqual(t, a.Site, 0)
		assert.Less(t, a.Site, inst.SiteCount)
	}

	// the tree search must land on the integer optimum, not the thresholded
	// continuous relaxation
	assert.InDelta(t, base.Obj, sol.Obj, 1e-2)
}
