package rescue

import (
	"fmt"
	"time"

	"git.solver4all.com/azaryc2s/gorobi/gurobi"
)

// SolveBase solves the deterministic equivalent: every scenario's recourse
// model expanded into one MIP. It enumerates what the decomposition avoids,
// which makes it the reference the L-shaped variants are checked against.
func SolveBase(inst *Instance, cfg Config) (*Solution, error) {
	InitLogger(cfg.LogLevel)
	gurobiEnv, err := gurobi.LoadEnv("rescue_gurobi.log")
	if err != nil {
		return nil, fmt.Errorf("loading gurobi env: %w", err)
	}
	defer gurobiEnv.Free()
	gurobiEnv.SetIntParam("LogToConsole", int32(0))

	S := inst.SiteCount
	T := len(inst.TeamCapacities)
	K := inst.ScenarioCount
	p := inst.Probability()
	pairs := recoursePairs(inst)
	P := len(pairs)

	allocCount := S * T
	varCount := allocCount + K*2*P
	aStart := func(k int) int { return allocCount + k*2*P }
	rStart := func(k int) int { return aStart(k) + P }

	varType := make([]int8, varCount)
	varNames := make([]string, varCount)
	objFun := make([]float64, varCount)
	ub := make([]float64, varCount)
	for s := 0; s < S; s++ {
		for t := 0; t < T; t++ {
			idx := GetAllocIndex(s, t, T)
			varType[idx] = gurobi.BINARY
			varNames[idx] = fmt.Sprintf("X_%d_%d", s, t)
			ub[idx] = 1.0
		}
	}
	for k := 0; k < K; k++ {
		for pi, pr := range pairs {
			a := aStart(k) + pi
			varType[a] = gurobi.CONTINUOUS
			varNames[a] = fmt.Sprintf("A_%d_%d_%d", k, pr.i, pr.j)
			ub[a] = 1.0

			r := rStart(k) + pi
			varType[r] = gurobi.CONTINUOUS
			varNames[r] = fmt.Sprintf("R_%d_%d_%d", k, pr.i, pr.j)
			ub[r] = float64(inst.Demand[pr.j][k])
			objFun[r] = -p
		}
	}

	model, err := gurobiEnv.NewModel("rescue_base", int32(varCount), objFun, nil, ub, varType, varNames)
	if err != nil {
		return nil, fmt.Errorf("creating base model: %w", err)
	}
	if err := model.SetIntAttr(gurobi.INT_ATTR_MODELSENSE, gurobi.MINIMIZE); err != nil {
		return nil, fmt.Errorf("setting model sense: %w", err)
	}
	if cfg.TimeLimit > 0 {
		if err := model.SetDblParam(gurobi.DBL_PAR_TIMELIMIT, cfg.TimeLimit); err != nil {
			return nil, fmt.Errorf("setting time limit: %w", err)
		}
	}

	// First stage: exclusive allocation and budget.
	for s := 0; s < S; s++ {
		ind := make([]int32, 0, T)
		val := make([]float64, 0, T)
		for t := 0; t < T; t++ {
			ind = append(ind, int32(GetAllocIndex(s, t, T)))
			val = append(val, 1.0)
		}
		if err := model.AddConstr(ind, val, gurobi.LESS_EQUAL, 1.0, fmt.Sprintf("excl_%d", s)); err != nil {
			return nil, fmt.Errorf("adding exclusivity constraint for site %d: %w", s, err)
		}
	}
	{
		ind := make([]int32, 0, allocCount)
		val := make([]float64, 0, allocCount)
		for s := 0; s < S; s++ {
			for t := 0; t < T; t++ {
				ind = append(ind, int32(GetAllocIndex(s, t, T)))
				val = append(val, float64(inst.TeamCosts[t]))
			}
		}
		if err := model.AddConstr(ind, val, gurobi.LESS_EQUAL, float64(inst.Budget), "budget"); err != nil {
			return nil, fmt.Errorf("adding budget constraint: %w", err)
		}
	}

	pairsBySite := make([][]int, S)
	pairsByDemand := make([][]int, S)
	for pi, pr := range pairs {
		pairsBySite[pr.i] = append(pairsBySite[pr.i], pi)
		pairsByDemand[pr.j] = append(pairsByDemand[pr.j], pi)
	}

	// Second stage, expanded per scenario.
	for k := 0; k < K; k++ {
		for j := 0; j < S; j++ {
			if inst.Demand[j][k] == 0 {
				continue
			}
			ind := make([]int32, 0)
			val := make([]float64, 0)
			for _, pi := range pairsByDemand[j] {
				ind = append(ind, int32(aStart(k)+pi))
				val = append(val, 1.0)
			}
			if err := model.AddConstr(ind, val, gurobi.EQUAL, 1.0, fmt.Sprintf("assign_%d_%d", k, j)); err != nil {
				return nil, fmt.Errorf("adding assignment constraint (%d,%d): %w", k, j, err)
			}

			ind = make([]int32, 0)
			val = make([]float64, 0)
			for _, pi := range pairsByDemand[j] {
				ind = append(ind, int32(rStart(k)+pi))
				val = append(val, 1.0)
			}
			if err := model.AddConstr(ind, val, gurobi.LESS_EQUAL, float64(inst.Demand[j][k]), fmt.Sprintf("demand_%d_%d", k, j)); err != nil {
				return nil, fmt.Errorf("adding demand constraint (%d,%d): %w", k, j, err)
			}
		}
		for i := 0; i < S; i++ {
			ind := make([]int32, 0)
			val := make([]float64, 0)
			for _, pi := range pairsBySite[i] {
				ind = append(ind, int32(rStart(k)+pi))
				val = append(val, 1.0)
			}
			for t := 0; t < T; t++ {
				ind = append(ind, int32(GetAllocIndex(i, t, T)))
				val = append(val, -inst.LoadFactor*float64(inst.TeamCapacities[t]))
			}
			if err := model.AddConstr(ind, val, gurobi.LESS_EQUAL, 0.0, fmt.Sprintf("cap_%d_%d", k, i)); err != nil {
				return nil, fmt.Errorf("adding capacity constraint (%d,%d): %w", k, i, err)
			}
		}
		for pi, pr := range pairs {
			if inst.Demand[pr.j][k] == 0 {
				continue
			}
			ind := []int32{int32(rStart(k) + pi), int32(aStart(k) + pi)}
			val := []float64{1.0, -float64(inst.Demand[pr.j][k])}
			if err := model.AddConstr(ind, val, gurobi.LESS_EQUAL, 0.0, fmt.Sprintf("gate_%d_%d_%d", k, pr.i, pr.j)); err != nil {
				return nil, fmt.Errorf("adding gate constraint (%d,%d,%d): %w", k, pr.i, pr.j, err)
			}

			aind := make([]int32, 0, T+1)
			aval := make([]float64, 0, T+1)
			aind = append(aind, int32(aStart(k)+pi))
			aval = append(aval, 1.0)
			for t := 0; t < T; t++ {
				aind = append(aind, int32(GetAllocIndex(pr.i, t, T)))
				aval = append(aval, -1.0)
			}
			if err := model.AddConstr(aind, aval, gurobi.LESS_EQUAL, 0.0, fmt.Sprintf("placed_%d_%d_%d", k, pr.i, pr.j)); err != nil {
				return nil, fmt.Errorf("adding placement constraint (%d,%d,%d): %w", k, pr.i, pr.j, err)
			}
		}
	}

	start := time.Now()
	if err := model.Optimize(); err != nil {
		return nil, fmt.Errorf("optimizing base model: %w", err)
	}
	status, err := model.GetIntAttr(gurobi.INT_ATTR_STATUS)
	if err != nil {
		return nil, fmt.Errorf("reading base status: %w", err)
	}
	if status == gurobi.INF_OR_UNBD {
		return nil, ErrMasterInfeasible
	}
	objval, err := model.GetDblAttr(gurobi.DBL_ATTR_OBJVAL)
	if err != nil {
		return nil, fmt.Errorf("reading base objective: %w", err)
	}
	sol, err := model.GetDblAttrArray(gurobi.DBL_ATTR_X, 0, int32(varCount))
	if err != nil {
		return nil, fmt.Errorf("reading base solution: %w", err)
	}

	var allocations []Allocation
	for s := 0; s < S; s++ {
		for t := 0; t < T; t++ {
			if roundedAlloc(sol[GetAllocIndex(s, t, T)]) {
				allocations = append(allocations, Allocation{Team: t, Site: s})
			}
		}
	}
	if len(allocations) == 0 {
		return nil, ErrNoAllocationFound
	}
	var assignments []Assignment
	for k := 0; k < K; k++ {
		for pi, pr := range pairs {
			rescued := int(sol[rStart(k)+pi] + 0.5)
			if rescued > 0 {
				assignments = append(assignments, Assignment{Scenario: k, TeamSite: pr.i, Site: pr.j, Rescued: rescued})
			}
		}
	}

	elapsed := time.Since(start).String()
	solution := &Solution{
		Model:       ModelBase,
		Obj:         -objval,
		Optimal:     status == gurobi.OPTIMAL,
		Allocations: allocations,
		Assignments: assignments,
		Metrics:     Metrics{ObjectiveValue: -objval, ExecutionTime: elapsed},
		Iterations:  1,
		Time:        elapsed,
	}
	return solution, nil
}
