package rescue

import (
	"fmt"

	"git.solver4all.com/azaryc2s/gorobi/gurobi"
)

// BuildSolution converts the master's final state into the exported
// solution. Assignments are read from one sequential optimality subproblem
// per scenario at the final allocation.
func BuildSolution(master *MasterProblem, inst *Instance, model string, iterations int) (*Solution, error) {
	T := len(inst.TeamCapacities)
	var allocations []Allocation
	for s := 0; s < inst.SiteCount; s++ {
		for t := 0; t < T; t++ {
			if roundedAlloc(master.Allocation[GetAllocIndex(s, t, T)]) {
				allocations = append(allocations, Allocation{Team: t, Site: s})
			}
		}
	}
	if len(allocations) == 0 {
		return nil, ErrNoAllocationFound
	}

	alloc := master.AllocationSnapshot()
	var assignments []Assignment
	for k := 0; k < inst.ScenarioCount; k++ {
		sub, err := NewOptimalitySubProblem(master.GEnv, inst, k, alloc)
		if err != nil {
			return nil, fmt.Errorf("extracting assignments for scenario %d: %w", k, err)
		}
		if sub.Status == gurobi.OPTIMAL {
			scenAssigns, err := sub.Assignments()
			if err != nil {
				sub.Free()
				return nil, err
			}
			assignments = append(assignments, scenAssigns...)
		}
		sub.Free()
	}

	sol := &Solution{
		Model:       model,
		Obj:         master.Metrics.ObjectiveValue,
		Optimal:     master.HasConverged(),
		Allocations: allocations,
		Assignments: assignments,
		Metrics:     master.Metrics,
		Iterations:  iterations,
		CutCount:    master.CutsApplied,
	}
	return sol, nil
}

// CheckSolutionValidity re-verifies the budget and the one-team-per-site
// rule over the produced allocation.
func CheckSolutionValidity(sol *Solution, inst *Instance) (bool, string) {
	valid := true
	comment := ""
	cost := 0
	perSite := make(map[int]int)
	for _, a := range sol.Allocations {
		if a.Team < 0 || a.Team >= len(inst.TeamCosts) {
			return false, fmt.Sprintf("Allocation references unknown team %d!", a.Team)
		}
		cost += inst.TeamCosts[a.Team]
		perSite[a.Site]++
	}
	if cost > inst.Budget {
		comment = fmt.Sprintf("The allocation costs %d but the budget is only %d!", cost, inst.Budget)
		valid = false
	}
	for site, n := range perSite {
		if n > 1 {
			comment += fmt.Sprintf(" Site %d holds %d teams, only one is allowed!", site, n)
			valid = false
		}
	}
	return valid, comment
}
