package rescue

import (
	"fmt"
	"math"
	"time"

	"git.solver4all.com/azaryc2s/gorobi/gurobi"
)

// SubProblem is one scenario's second-stage model, built against a fixed
// master allocation and thrown away after its cut is extracted. Assignment
// variables stay continuous so the capacity duals are available.
type SubProblem struct {
	Kind     string
	Scenario int
	GModel   *gurobi.Model
	GEnv     *gurobi.Env
	ownsEnv  bool

	Cut       *Cut
	Objective float64
	Status    int32
	Metrics   Metrics

	// pairs[p] = (team site i, demand site j) with i in the neighborhood
	// of j. a variables occupy [0,P), r variables [P,2P).
	pairs       []sitePair
	rStart      int
	capRowStart int

	// gateRowStart is the first gate row; each demanded pair contributes a
	// gate row followed by its placement row. placedPairs lists the pair
	// index behind each gate/placement row couple, in insertion order.
	gateRowStart int
	placedPairs  []int
}

type sitePair struct {
	i, j int
}

func recoursePairs(inst *Instance) []sitePair {
	var pairs []sitePair
	for j := 0; j < inst.SiteCount; j++ {
		for _, i := range inst.Neighborhoods[j] {
			pairs = append(pairs, sitePair{i: i, j: j})
		}
	}
	return pairs
}

// NewOptimalitySubProblem builds and solves the rescue assignment LP of
// scenario k at the given allocation snapshot and derives the optimality
// cut from the capacity duals. A non-optimal recourse status yields a nil
// cut, not an error.
func NewOptimalitySubProblem(gurobiEnv *gurobi.Env, inst *Instance, k int, alloc []float64) (*SubProblem, error) {
	sub, err := buildRecourseModel(gurobiEnv, inst, k, alloc, false)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := sub.GModel.Optimize(); err != nil {
		sub.Free()
		return nil, fmt.Errorf("optimizing recourse for scenario %d: %w", k, err)
	}
	status, err := sub.GModel.GetIntAttr(gurobi.INT_ATTR_STATUS)
	if err != nil {
		sub.Free()
		return nil, fmt.Errorf("reading recourse status for scenario %d: %w", k, err)
	}
	sub.Status = status
	if status != gurobi.OPTIMAL {
		// Infeasible recourse is a signal for the feasibility pass, not a
		// failure.
		Log(3, "Recourse for scenario %d ended with status %d, no optimality cut", k, status)
		sub.Metrics.ExecutionTime = time.Since(start).String()
		return sub, nil
	}
	objval, err := sub.GModel.GetDblAttr(gurobi.DBL_ATTR_OBJVAL)
	if err != nil {
		sub.Free()
		return nil, fmt.Errorf("reading recourse objective for scenario %d: %w", k, err)
	}
	sub.Objective = objval
	sub.Metrics = Metrics{ObjectiveValue: objval, ExecutionTime: time.Since(start).String()}

	cut, err := sub.deriveCut(inst, k, alloc, objval, false)
	if err != nil {
		sub.Free()
		return nil, err
	}
	sub.Cut = cut
	return sub, nil
}

// NewFeasibilitySubProblem builds and solves the slack-augmented recourse
// LP. When the minimal total slack is zero within tolerance the allocation
// is feasible for this scenario and the subproblem carries no cut.
func NewFeasibilitySubProblem(gurobiEnv *gurobi.Env, inst *Instance, k int, alloc []float64) (*SubProblem, error) {
	sub, err := buildRecourseModel(gurobiEnv, inst, k, alloc, true)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := sub.GModel.Optimize(); err != nil {
		sub.Free()
		return nil, fmt.Errorf("optimizing feasibility recourse for scenario %d: %w", k, err)
	}
	status, err := sub.GModel.GetIntAttr(gurobi.INT_ATTR_STATUS)
	if err != nil {
		sub.Free()
		return nil, fmt.Errorf("reading feasibility status for scenario %d: %w", k, err)
	}
	sub.Status = status
	if status != gurobi.OPTIMAL {
		sub.Free()
		return nil, fmt.Errorf("feasibility recourse for scenario %d ended with status %d", k, status)
	}
	slack, err := sub.GModel.GetDblAttr(gurobi.DBL_ATTR_OBJVAL)
	if err != nil {
		sub.Free()
		return nil, fmt.Errorf("reading slack objective for scenario %d: %w", k, err)
	}
	sub.Objective = slack
	sub.Metrics = Metrics{ObjectiveValue: slack, ExecutionTime: time.Since(start).String()}
	if slack < SlackTolerance {
		return sub, nil
	}

	cut, err := sub.deriveCut(inst, k, alloc, slack, true)
	if err != nil {
		sub.Free()
		return nil, err
	}
	sub.Cut = cut
	return sub, nil
}

// deriveCut turns the duals of the allocation-coupled rows into a linear
// bound over the master allocation variables. Two row families depend on the
// allocation: the capacity rows through b_i(x) and the placement rows through
// allocated_i(x). For an optimality cut the inequality scales with the
// scenario probability and pins theta_k; a feasibility cut only excludes the
// current allocation.
func (sub *SubProblem) deriveCut(inst *Instance, k int, alloc []float64, objval float64, feasibility bool) (*Cut, error) {
	S := inst.SiteCount
	T := len(inst.TeamCapacities)
	pi, err := sub.GModel.GetDblAttrArray(gurobi.DBL_ATTR_PI, int32(sub.capRowStart), int32(S))
	if err != nil {
		return nil, fmt.Errorf("reading capacity duals for scenario %d: %w", k, err)
	}
	var gateDuals []float64
	if len(sub.placedPairs) > 0 {
		gateDuals, err = sub.GModel.GetDblAttrArray(gurobi.DBL_ATTR_PI, int32(sub.gateRowStart), int32(2*len(sub.placedPairs)))
		if err != nil {
			return nil, fmt.Errorf("reading placement duals for scenario %d: %w", k, err)
		}
	}

	p := inst.Probability()
	scale := p
	if feasibility {
		scale = 1.0
	}

	// coeff accumulates the dual-weighted rhs gradient per master variable,
	// dualRhs its value at the candidate allocation.
	coeff := make([]float64, S*T)
	dualRhs := 0.0
	for i := 0; i < S; i++ {
		if pi[i] == 0 {
			continue
		}
		for t := 0; t < T; t++ {
			idx := GetAllocIndex(i, t, T)
			c := pi[i] * inst.LoadFactor * float64(inst.TeamCapacities[t])
			coeff[idx] += c
			dualRhs += c * alloc[idx]
		}
	}
	for q, pr := range sub.placedPairs {
		sigma := gateDuals[2*q+1]
		if sigma == 0 {
			continue
		}
		i := sub.pairs[pr].i
		for t := 0; t < T; t++ {
			idx := GetAllocIndex(i, t, T)
			coeff[idx] += sigma
			dualRhs += sigma * alloc[idx]
		}
	}

	var (
		ind []int32
		val []float64
	)
	for idx, c := range coeff {
		if c == 0 {
			continue
		}
		ind = append(ind, int32(idx))
		val = append(val, scale*c)
	}

	cut := &Cut{Scenario: k, Sense: gurobi.LESS_EQUAL}
	if feasibility {
		// w(x) >= w(xhat) + dual*(rhs(x) - rhs(xhat)) must be forced to
		// zero: dual*rhs(x) <= dual*rhs(xhat) - w(xhat).
		cut.Kind = CutFeasibility
		cut.Ind = ind
		cut.Val = val
		cut.Rhs = dualRhs - objval
		cut.Obj = math.NaN()
	} else {
		// -theta_k >= v(xhat) + dual*(rhs(x) - rhs(xhat)):
		// theta_k + dual*rhs(x) <= -v(xhat) + dual*rhs(xhat).
		cut.Kind = CutOptimality
		cut.Ind = append(ind, int32(GetThetaIndex(k, S, T)))
		cut.Val = append(val, scale)
		cut.Rhs = scale * (-objval + dualRhs)
		cut.Obj = p * (-objval)
	}
	Log(3, "Derived %s cut for scenario %d with %d terms, rhs %f", cut.Kind, k, len(cut.Ind), cut.Rhs)
	return cut, nil
}

// buildRecourseModel assembles the scenario LP. Row order matters: the
// capacity block starts at capRowStart and is the block whose duals feed the
// cuts.
func buildRecourseModel(gurobiEnv *gurobi.Env, inst *Instance, k int, alloc []float64, feasibility bool) (*SubProblem, error) {
	var err error
	ownsEnv := false
	if gurobiEnv == nil {
		gurobiEnv, err = gurobi.LoadEnv(fmt.Sprintf("rescue_sub_%d.log", k))
		if err != nil {
			return nil, fmt.Errorf("loading gurobi env for scenario %d: %w", k, err)
		}
		gurobiEnv.SetIntParam("LogToConsole", int32(0))
		ownsEnv = true
	}

	S := inst.SiteCount
	T := len(inst.TeamCapacities)
	pairs := recoursePairs(inst)
	P := len(pairs)
	rStart := P

	demandSites := make([]int, 0, S)
	for j := 0; j < S; j++ {
		if inst.Demand[j][k] > 0 {
			demandSites = append(demandSites, j)
		}
	}

	varCount := 2 * P
	slackStart := varCount
	if feasibility {
		// Deficit/surplus pair per assignment row and per capacity row.
		varCount += 2*len(demandSites) + 2*S
	}

	varType := make([]int8, varCount)
	varNames := make([]string, varCount)
	objFun := make([]float64, varCount)
	ub := make([]float64, varCount)
	for p := 0; p < P; p++ {
		varType[p] = gurobi.CONTINUOUS
		varNames[p] = fmt.Sprintf("A_%d_%d", pairs[p].i, pairs[p].j)
		ub[p] = 1.0
	}
	for p := 0; p < P; p++ {
		idx := rStart + p
		varType[idx] = gurobi.CONTINUOUS
		varNames[idx] = fmt.Sprintf("R_%d_%d", pairs[p].i, pairs[p].j)
		ub[idx] = float64(inst.Demand[pairs[p].j][k])
		if !feasibility {
			objFun[idx] = -1.0
		}
	}
	if feasibility {
		for v := slackStart; v < varCount; v++ {
			varType[v] = gurobi.CONTINUOUS
			varNames[v] = fmt.Sprintf("S_%d", v-slackStart)
			ub[v] = float64(inst.ScenarioDemand(k) + S)
			objFun[v] = 1.0
		}
	}

	model, err := gurobiEnv.NewModel(fmt.Sprintf("rescue_sub_%d", k), int32(varCount), objFun, nil, ub, varType, varNames)
	if err != nil {
		return nil, fmt.Errorf("creating recourse model for scenario %d: %w", k, err)
	}
	err = model.SetIntAttr(gurobi.INT_ATTR_MODELSENSE, gurobi.MINIMIZE)
	if err != nil {
		return nil, fmt.Errorf("setting recourse model sense: %w", err)
	}

	pairsBySite := make([][]int, S)   // team site -> pair indices
	pairsByDemand := make([][]int, S) // demand site -> pair indices
	for p, pr := range pairs {
		pairsBySite[pr.i] = append(pairsBySite[pr.i], p)
		pairsByDemand[pr.j] = append(pairsByDemand[pr.j], p)
	}

	slack := slackStart
	// One assignment per demanded site.
	for _, j := range demandSites {
		ind := make([]int32, 0)
		val := make([]float64, 0)
		for _, p := range pairsByDemand[j] {
			ind = append(ind, int32(p))
			val = append(val, 1.0)
		}
		if feasibility {
			ind = append(ind, int32(slack), int32(slack+1))
			val = append(val, 1.0, -1.0)
			slack += 2
		}
		err = model.AddConstr(ind, val, gurobi.EQUAL, 1.0, fmt.Sprintf("assign_%d", j))
		if err != nil {
			return nil, fmt.Errorf("adding assignment constraint for site %d: %w", j, err)
		}
	}

	// Demand satisfaction.
	for _, j := range demandSites {
		ind := make([]int32, 0)
		val := make([]float64, 0)
		for _, p := range pairsByDemand[j] {
			ind = append(ind, int32(rStart+p))
			val = append(val, 1.0)
		}
		err = model.AddConstr(ind, val, gurobi.LESS_EQUAL, float64(inst.Demand[j][k]), fmt.Sprintf("demand_%d", j))
		if err != nil {
			return nil, fmt.Errorf("adding demand constraint for site %d: %w", j, err)
		}
	}

	capRowStart := 2 * len(demandSites)
	// Rescue capacity bounded by allocated team capacity.
	for i := 0; i < S; i++ {
		ind := make([]int32, 0)
		val := make([]float64, 0)
		for _, p := range pairsBySite[i] {
			ind = append(ind, int32(rStart+p))
			val = append(val, 1.0)
		}
		if feasibility {
			ind = append(ind, int32(slack), int32(slack+1))
			val = append(val, -1.0, 1.0)
			slack += 2
		}
		capHat := 0.0
		for t := 0; t < T; t++ {
			capHat += inst.LoadFactor * float64(inst.TeamCapacities[t]) * alloc[GetAllocIndex(i, t, T)]
		}
		err = model.AddConstr(ind, val, gurobi.LESS_EQUAL, capHat, fmt.Sprintf("cap_%d", i))
		if err != nil {
			return nil, fmt.Errorf("adding capacity constraint for site %d: %w", i, err)
		}
	}

	// Assignment gates rescue, allocation gates assignment. The placement
	// rows are the second allocation-coupled family; their duals enter the
	// cuts alongside the capacity duals.
	gateRowStart := capRowStart + S
	var placedPairs []int
	for p, pr := range pairs {
		if inst.Demand[pr.j][k] == 0 {
			continue
		}
		ind := []int32{int32(rStart + p), int32(p)}
		val := []float64{1.0, -float64(inst.Demand[pr.j][k])}
		err = model.AddConstr(ind, val, gurobi.LESS_EQUAL, 0.0, fmt.Sprintf("gate_%d_%d", pr.i, pr.j))
		if err != nil {
			return nil, fmt.Errorf("adding gate constraint for pair (%d,%d): %w", pr.i, pr.j, err)
		}

		allocated := 0.0
		for t := 0; t < T; t++ {
			allocated += alloc[GetAllocIndex(pr.i, t, T)]
		}
		aind := []int32{int32(p)}
		aval := []float64{1.0}
		err = model.AddConstr(aind, aval, gurobi.LESS_EQUAL, allocated, fmt.Sprintf("placed_%d_%d", pr.i, pr.j))
		if err != nil {
			return nil, fmt.Errorf("adding placement constraint for pair (%d,%d): %w", pr.i, pr.j, err)
		}
		placedPairs = append(placedPairs, p)
	}

	kind := CutOptimality
	if feasibility {
		kind = CutFeasibility
	}
	return &SubProblem{
		Kind:         kind,
		Scenario:     k,
		GModel:       model,
		GEnv:         gurobiEnv,
		ownsEnv:      ownsEnv,
		pairs:        pairs,
		rStart:       rStart,
		capRowStart:  capRowStart,
		gateRowStart: gateRowStart,
		placedPairs:  placedPairs,
	}, nil
}

// Assignments reads the primal rescue flows of a solved optimality
// subproblem.
func (sub *SubProblem) Assignments() ([]Assignment, error) {
	flows, err := sub.GModel.GetDblAttrArray(gurobi.DBL_ATTR_X, int32(sub.rStart), int32(len(sub.pairs)))
	if err != nil {
		return nil, fmt.Errorf("reading rescue flows for scenario %d: %w", sub.Scenario, err)
	}
	var result []Assignment
	for p, pr := range sub.pairs {
		rescued := int(flows[p] + 0.5)
		if rescued > 0 {
			result = append(result, Assignment{
				Scenario: sub.Scenario,
				TeamSite: pr.i,
				Site:     pr.j,
				Rescued:  rescued,
			})
		}
	}
	return result, nil
}

func (sub *SubProblem) Free() {
	if sub.GModel != nil {
		sub.GModel.Free()
	}
	if sub.ownsEnv && sub.GEnv != nil {
		sub.GEnv.Free()
	}
}
