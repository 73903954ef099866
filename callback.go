package rescue

import (
	"fmt"
	"time"

	"git.solver4all.com/azaryc2s/gorobi/gurobi"
)

// LShapedCallbackData is handed to the solver callback. The subproblem
// environment is created once outside the search; everything else is read
// from the callback state.
type LShapedCallbackData struct {
	Master     *MasterProblem
	Inst       *Instance
	SubEnv     *gurobi.Env
	Accept     CutPolicy
	LazyCuts   int
	Candidates int
}

// LShapedCallback derives feasibility and optimality cuts for every
// integer-feasible candidate the solver reports and submits them as lazy
// constraints. Subproblems are solved sequentially: the host solver does not
// allow its active search state to be touched concurrently.
func LShapedCallback(model *gurobi.Model, cbdata gurobi.CPVoid, where int32, usrdata interface{}) int32 {
	data := usrdata.(*LShapedCallbackData)
	if where != gurobi.CB_MIPSOL {
		return 0
	}
	master := data.Master
	inst := data.Inst

	sol, err := gurobi.CbGetDblArray(cbdata, where, gurobi.CB_MIPSOL_SOL, master.VarCount)
	if err != nil {
		Log(1, err.Error())
		return 0
	}
	objval, err := gurobi.CbGetDbl(cbdata, where, gurobi.CB_MIPSOL_OBJ)
	if err != nil {
		Log(1, "Error retrieving candidate objective: %s", err.Error())
		return 0
	}
	data.Candidates++
	alloc := sol[:master.AllocCount]
	master.History = append(master.History, Metrics{ObjectiveValue: -objval})
	Log(3, "Candidate %d with objective %f", data.Candidates, -objval)

	for k := 0; k < inst.ScenarioCount; k++ {
		feas, err := NewFeasibilitySubProblem(data.SubEnv, inst, k, alloc)
		if err != nil {
			Log(1, "Feasibility subproblem for scenario %d: %s", k, err.Error())
			continue
		}
		if feas.Cut != nil {
			if err := gurobi.CbLazy(cbdata, len(feas.Cut.Ind), feas.Cut.Ind, feas.Cut.Val, feas.Cut.Sense, feas.Cut.Rhs); err != nil {
				Log(1, err.Error())
			} else {
				data.LazyCuts++
			}
		}
		feas.Free()

		opt, err := NewOptimalitySubProblem(data.SubEnv, inst, k, alloc)
		if err != nil {
			Log(1, "Optimality subproblem for scenario %d: %s", k, err.Error())
			continue
		}
		if opt.Cut != nil && data.Accept(*opt.Cut, master) {
			if err := gurobi.CbLazy(cbdata, len(opt.Cut.Ind), opt.Cut.Ind, opt.Cut.Val, opt.Cut.Sense, opt.Cut.Rhs); err != nil {
				Log(1, err.Error())
			} else {
				data.LazyCuts++
			}
		}
		opt.Free()
	}
	return 0
}

// SolveLShapedCB runs the solver-driven variant: one master solve with cuts
// injected inside the solver's own branch-and-cut search.
func SolveLShapedCB(inst *Instance, cfg Config) (*Solution, error) {
	InitLogger(cfg.LogLevel)
	gurobiEnv, err := gurobi.LoadEnv("rescue_gurobi.log")
	if err != nil {
		return nil, fmt.Errorf("loading gurobi env: %w", err)
	}
	defer gurobiEnv.Free()
	gurobiEnv.SetIntParam("LogToConsole", int32(0))

	// The callback protocol needs integer-feasible candidates, so the
	// allocation variables are always binary here.
	master, err := CreateMasterProblem(gurobiEnv, inst, cfg, gurobi.BINARY)
	if err != nil {
		return nil, err
	}
	defer master.Free()

	subEnv, err := gurobi.LoadEnv("rescue_sub.log")
	if err != nil {
		return nil, fmt.Errorf("loading subproblem env: %w", err)
	}
	defer subEnv.Free()
	subEnv.SetIntParam("LogToConsole", int32(0))

	// Must set LazyConstraints parameter when using lazy constraints
	if err := master.GModel.SetIntParam(gurobi.INT_PAR_LAZYCONSTRAINTS, 1); err != nil {
		return nil, fmt.Errorf("enabling lazy constraints: %w", err)
	}
	data := &LShapedCallbackData{Master: master, Inst: inst, SubEnv: subEnv, Accept: AcceptAllCuts}
	if err := master.GModel.SetCallbackFuncGo(LShapedCallback, data); err != nil {
		return nil, fmt.Errorf("registering callback: %w", err)
	}

	start := time.Now()
	if err := master.GModel.Optimize(); err != nil {
		return nil, fmt.Errorf("optimizing master: %w", err)
	}
	status, err := master.GModel.GetIntAttr(gurobi.INT_ATTR_STATUS)
	if err != nil {
		return nil, fmt.Errorf("reading master status: %w", err)
	}
	if status == gurobi.INF_OR_UNBD {
		return nil, ErrMasterInfeasible
	}

	// Final allocation and theta values are read once more after the
	// top-level solve terminates.
	sol, err := master.GModel.GetDblAttrArray(gurobi.DBL_ATTR_X, 0, int32(master.VarCount))
	if err != nil {
		return nil, fmt.Errorf("reading final master solution: %w", err)
	}
	copy(master.Allocation, sol[:master.AllocCount])
	copy(master.Theta, sol[master.ThetaStart:])
	p := inst.Probability()
	realized := 0.0
	for _, th := range master.Theta {
		realized += p * th
	}
	master.Metrics = Metrics{
		ObjectiveValue:   realized,
		ExecutionTime:    time.Since(start).String(),
		ExpectedRecourse: realized,
	}
	master.CutsApplied = data.LazyCuts

	solution, err := BuildSolution(master, inst, ModelLShapedCB, data.Candidates)
	if err != nil {
		return nil, err
	}
	solution.Optimal = status == gurobi.OPTIMAL
	solution.Time = time.Since(start).String()
	return solution, nil
}
