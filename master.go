package rescue

import (
	"fmt"
	"time"

	"git.solver4all.com/azaryc2s/gorobi/gurobi"
)

// MasterProblem holds the first-stage model: which team is stationed at
// which site. The recourse of every scenario enters the objective through
// one theta variable that accumulated cuts bound from above.
type MasterProblem struct {
	GModel *gurobi.Model
	GEnv   *gurobi.Env
	Inst   *Instance

	AllocCount int
	ThetaStart int
	VarCount   int
	VarNames   []string
	VarUB      []float64

	// Snapshots of the last solve.
	Allocation []float64
	Theta      []float64

	Metrics Metrics
	History []Metrics

	// Pending cuts, bucketed per scenario. Filled by AddCut, flushed into
	// the model by ApplyCuts, discarded by Solve.
	Cuts        [][]Cut
	CutsApplied int

	gap float64
}

// CreateMasterProblem builds the first-stage model. allocType selects binary
// or continuous allocation variables; the integer L-shaped driver works on
// the continuous relaxation and restores integrality by branching.
func CreateMasterProblem(gurobiEnv *gurobi.Env, inst *Instance, cfg Config, allocType int8) (*MasterProblem, error) {
	var err error
	if gurobiEnv == nil {
		gurobiEnv, err = gurobi.LoadEnv("rescue_gurobi.log")
		if err != nil {
			return nil, fmt.Errorf("loading gurobi env: %w", err)
		}
		gurobiEnv.SetIntParam("LogToConsole", int32(0))
	}

	S := inst.SiteCount
	T := len(inst.TeamCapacities)
	K := inst.ScenarioCount
	allocCount := S * T
	thetaStart := allocCount
	varCount := allocCount + K
	p := inst.Probability()

	varType := make([]int8, varCount)
	varNames := make([]string, varCount)
	objFun := make([]float64, varCount)
	ub := make([]float64, varCount)
	for s := 0; s < S; s++ {
		for t := 0; t < T; t++ {
			idx := GetAllocIndex(s, t, T)
			varType[idx] = allocType
			varNames[idx] = fmt.Sprintf("X_%d_%d", s, t)
			ub[idx] = 1.0
		}
	}
	for k := 0; k < K; k++ {
		idx := thetaStart + k
		varType[idx] = gurobi.CONTINUOUS
		varNames[idx] = fmt.Sprintf("Theta_%d", k)
		// Recourse minimizes negative expected rescues. Without the demand
		// bound the first master solve would be unbounded.
		ub[idx] = float64(inst.ScenarioDemand(k))
		objFun[idx] = -p
	}

	model, err := gurobiEnv.NewModel("rescue_master", int32(varCount), objFun, nil, ub, varType, varNames)
	if err != nil {
		return nil, fmt.Errorf("creating master model: %w", err)
	}
	err = model.SetIntAttr(gurobi.INT_ATTR_MODELSENSE, gurobi.MINIMIZE)
	if err != nil {
		return nil, fmt.Errorf("setting model sense: %w", err)
	}

	// Exclusive allocation: at most one team per site.
	for s := 0; s < S; s++ {
		ind := make([]int32, 0, T)
		val := make([]float64, 0, T)
		for t := 0; t < T; t++ {
			ind = append(ind, int32(GetAllocIndex(s, t, T)))
			val = append(val, 1.0)
		}
		err = model.AddConstr(ind, val, gurobi.LESS_EQUAL, 1.0, fmt.Sprintf("excl_%d", s))
		if err != nil {
			return nil, fmt.Errorf("adding exclusivity constraint for site %d: %w", s, err)
		}
	}

	// Budget over all placed teams.
	{
		ind := make([]int32, 0, allocCount)
		val := make([]float64, 0, allocCount)
		for s := 0; s < S; s++ {
			for t := 0; t < T; t++ {
				ind = append(ind, int32(GetAllocIndex(s, t, T)))
				val = append(val, float64(inst.TeamCosts[t]))
			}
		}
		err = model.AddConstr(ind, val, gurobi.LESS_EQUAL, float64(inst.Budget), "budget")
		if err != nil {
			return nil, fmt.Errorf("adding budget constraint: %w", err)
		}
	}

	if cfg.TimeLimit > 0 {
		err = model.SetDblParam(gurobi.DBL_PAR_TIMELIMIT, cfg.TimeLimit)
		if err != nil {
			return nil, fmt.Errorf("setting time limit: %w", err)
		}
	}

	m := &MasterProblem{
		GModel:     model,
		GEnv:       gurobiEnv,
		Inst:       inst,
		AllocCount: allocCount,
		ThetaStart: thetaStart,
		VarCount:   varCount,
		VarNames:   varNames,
		VarUB:      ub,
		Allocation: make([]float64, allocCount),
		Theta:      make([]float64, K),
		Cuts:       make([][]Cut, K),
		gap:        cfg.Gap,
	}
	return m, nil
}

// Solve re-optimizes the master and refreshes the allocation and theta
// snapshots. Pending cuts that were never applied are discarded: the model
// the solver saw is the model the snapshots belong to.
func (m *MasterProblem) Solve() error {
	start := time.Now()
	if err := m.GModel.Optimize(); err != nil {
		return fmt.Errorf("optimizing master: %w", err)
	}
	status, err := m.GModel.GetIntAttr(gurobi.INT_ATTR_STATUS)
	if err != nil {
		return fmt.Errorf("reading master status: %w", err)
	}
	if status == gurobi.INF_OR_UNBD {
		return ErrMasterInfeasible
	}

	sol, err := m.GModel.GetDblAttrArray(gurobi.DBL_ATTR_X, 0, int32(m.VarCount))
	if err != nil {
		return fmt.Errorf("reading master solution: %w", err)
	}
	copy(m.Allocation, sol[:m.AllocCount])
	copy(m.Theta, sol[m.ThetaStart:])

	p := m.Inst.Probability()
	realized := 0.0
	for _, th := range m.Theta {
		realized += p * th
	}
	m.Metrics = Metrics{
		ObjectiveValue:   realized,
		ExecutionTime:    time.Since(start).String(),
		ExpectedRecourse: 0,
	}
	m.History = append(m.History, m.Metrics)
	m.Cuts = make([][]Cut, m.Inst.ScenarioCount)
	return nil
}

// AddCut buffers a cut in its scenario bucket. The model itself is only
// touched by ApplyCuts, so concurrent subproblem sweeps never race on a
// half-mutated master.
func (m *MasterProblem) AddCut(c Cut) {
	m.Cuts[c.Scenario] = append(m.Cuts[c.Scenario], c)
}

// ApplyCuts flushes all pending cuts into the model as constraints and
// accumulates the expected recourse estimated by the optimality cuts of this
// batch.
func (m *MasterProblem) ApplyCuts() error {
	for k := range m.Cuts {
		for _, c := range m.Cuts[k] {
			name := fmt.Sprintf("cut_%s_%d_%d", c.Kind, c.Scenario, m.CutsApplied)
			if err := m.GModel.AddConstr(c.Ind, c.Val, c.Sense, c.Rhs, name); err != nil {
				return fmt.Errorf("adding %s cut for scenario %d: %w", c.Kind, c.Scenario, err)
			}
			m.CutsApplied++
			if c.IsOptimality() {
				m.Metrics.ExpectedRecourse += c.Obj
			}
			Log(3, "Applied %s cut nr.%d for scenario %d (obj %f)", c.Kind, m.CutsApplied, c.Scenario, c.Obj)
		}
		m.Cuts[k] = nil
	}
	return nil
}

// PendingCutCount reports the number of buffered cuts.
func (m *MasterProblem) PendingCutCount() int {
	n := 0
	for k := range m.Cuts {
		n += len(m.Cuts[k])
	}
	return n
}

// HasConverged reports whether the gap between the master objective and the
// recourse estimated from the most recent cut batch closed.
func (m *MasterProblem) HasConverged() bool {
	return m.Metrics.ObjectiveValue-m.Metrics.ExpectedRecourse < m.gap
}

// AllIntegral reports whether every allocation and recourse value of the
// last solve is integral.
func (m *MasterProblem) AllIntegral() bool {
	for _, v := range m.Allocation {
		if !isIntegral(v) {
			return false
		}
	}
	for _, v := range m.Theta {
		if !isIntegral(v) {
			return false
		}
	}
	return true
}

// AllocationSnapshot returns a copy of the current allocation values for
// read-only use by concurrent subproblem builds.
func (m *MasterProblem) AllocationSnapshot() []float64 {
	snap := make([]float64, len(m.Allocation))
	copy(snap, m.Allocation)
	return snap
}

// AllocatedCapacity returns the capacity expression value of site s under
// the given allocation snapshot, load factor included.
func (m *MasterProblem) AllocatedCapacity(alloc []float64, s int) float64 {
	T := len(m.Inst.TeamCapacities)
	cap := 0.0
	for t := 0; t < T; t++ {
		cap += float64(m.Inst.TeamCapacities[t]) * alloc[GetAllocIndex(s, t, T)]
	}
	return m.Inst.LoadFactor * cap
}

// SetVarBound tightens one variable bound in place. Branch nodes use this
// instead of duplicating the whole model.
func (m *MasterProblem) SetVarBound(idx int32, attr string, value float64) error {
	return m.GModel.SetDblAttrElement(attr, idx, value)
}

// ResetVarBounds restores the construction-time bounds of all variables.
func (m *MasterProblem) ResetVarBounds() error {
	for i := 0; i < m.VarCount; i++ {
		if err := m.GModel.SetDblAttrElement(gurobi.DBL_ATTR_LB, int32(i), 0.0); err != nil {
			return err
		}
		if err := m.GModel.SetDblAttrElement(gurobi.DBL_ATTR_UB, int32(i), m.VarUB[i]); err != nil {
			return err
		}
	}
	return nil
}

// Objective returns the objective value of the last solve.
func (m *MasterProblem) Objective() (float64, error) {
	return m.GModel.GetDblAttr(gurobi.DBL_ATTR_OBJVAL)
}

func (m *MasterProblem) Free() {
	if m.GModel != nil {
		m.GModel.Free()
	}
}

// round away solver noise on binary variables
func roundedAlloc(v float64) bool {
	return v > 0.5
}
