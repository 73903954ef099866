package rescue

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"git.solver4all.com/azaryc2s/gorobi/gurobi"
)

// VarBound is one branching decision: a tightened lower or upper bound on a
// master variable.
type VarBound struct {
	Idx   int32
	Attr  string
	Value float64
}

// Node is one vertex of the branch-and-bound tree. Instead of duplicating
// the whole master model per node, a node carries the chain of variable
// bounds inherited from its ancestors; the bounds are applied to the shared
// model right before the node is solved. Node IDs increase monotonically and
// are never reused.
type Node struct {
	ID         int
	Bounds     []VarBound
	Infeasible bool
	Obj        float64
	Allocation []float64
	Theta      []float64
	Metrics    Metrics
}

// AllIntegral reports whether the node's relaxed solution needs no further
// branching.
func (n *Node) AllIntegral() bool {
	if n.Infeasible {
		return false
	}
	for _, v := range n.Allocation {
		if !isIntegral(v) {
			return false
		}
	}
	for _, v := range n.Theta {
		if !isIntegral(v) {
			return false
		}
	}
	return true
}

// SolveIntLShaped restores the integrality the relaxed decomposition loses:
// it first runs the iterative driver on the continuous relaxation and, when
// the result is fractional, explores a best-bound branch-and-bound tree over
// the master variables. The tree search is sequential; the two children of a
// branch are solved one after the other against the shared master model.
func SolveIntLShaped(inst *Instance, cfg Config) (*Solution, error) {
	InitLogger(cfg.LogLevel)
	gurobiEnv, err := gurobi.LoadEnv("rescue_gurobi.log")
	if err != nil {
		return nil, fmt.Errorf("loading gurobi env: %w", err)
	}
	defer gurobiEnv.Free()
	gurobiEnv.SetIntParam("LogToConsole", int32(0))

	master, err := CreateMasterProblem(gurobiEnv, inst, cfg, gurobi.CONTINUOUS)
	if err != nil {
		return nil, err
	}
	defer master.Free()

	start := time.Now()
	iterations, err := RunCutLoop(master, inst, cfg, AcceptAllCuts)
	if err != nil {
		return nil, err
	}

	if master.AllIntegral() {
		Log(2, "Relaxed solution is already integral, no tree search needed")
		sol, err := BuildSolution(master, inst, ModelIntLShaped, iterations)
		if err != nil {
			return nil, err
		}
		sol.Time = time.Since(start).String()
		return sol, nil
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	root, err := snapshotNode(master, 1, nil)
	if err != nil {
		return nil, err
	}
	pendant := []*Node{root}
	historical := []*Node{root}
	nextID := 1

	iter := 0
	for iter < cfg.MaxNodes && len(pendant) > 0 {
		iter++
		incumbent := incumbentObjective(historical)

		// Best-bound selection. The selected node leaves the pendant set
		// whether it is pruned or branched; it is never re-selected.
		selIdx := 0
		for i, n := range pendant {
			if n.Obj < pendant[selIdx].Obj {
				selIdx = i
			}
		}
		node := pendant[selIdx]
		pendant = append(pendant[:selIdx], pendant[selIdx+1:]...)

		if shouldPrune(node, incumbent) {
			Log(3, "Pruned node %d (obj %f, incumbent %f)", node.ID, node.Obj, incumbent)
			continue
		}

		branchVar, branchVal := pickBranchVariable(master, node, rng)
		Log(3, "Branching node %d on variable %s = %f", node.ID, master.VarNames[branchVar], branchVal)

		childBounds := [][]VarBound{
			append(append([]VarBound{}, node.Bounds...), VarBound{Idx: int32(branchVar), Attr: gurobi.DBL_ATTR_UB, Value: math.Floor(branchVal)}),
			append(append([]VarBound{}, node.Bounds...), VarBound{Idx: int32(branchVar), Attr: gurobi.DBL_ATTR_LB, Value: math.Ceil(branchVal)}),
		}
		for _, bounds := range childBounds {
			nextID++
			child, err := snapshotNodeWithBounds(master, nextID, bounds)
			if err != nil {
				// Dropped, not retried: this can silently shrink the tree.
				Log(1, "Node %d solve failed and was dropped: %s", nextID, err.Error())
				continue
			}
			// Every solved child stays in the history so integral ones can
			// become the incumbent; only unpruned ones are explored further.
			historical = append(historical, child)
			if !shouldPrune(child, incumbent) {
				pendant = append(pendant, child)
			}
		}
	}
	Log(2, "Tree search finished after %d iterations, %d historical nodes", iter, len(historical))

	best := bestNode(historical, true)
	if best == nil {
		Log(1, "No integral node found within the node cap, falling back to the best relaxation node")
		best = bestNode(historical, false)
	}
	if err := applyNodeBounds(master, best.Bounds); err != nil {
		return nil, err
	}
	if err := master.Solve(); err != nil {
		return nil, err
	}
	sol, err := BuildSolution(master, inst, ModelIntLShaped, iterations+iter)
	if err != nil {
		return nil, err
	}
	sol.Time = time.Since(start).String()
	return sol, nil
}

// shouldPrune is the classical three-way rule: infeasibility, integrality,
// bound.
func shouldPrune(node *Node, incumbent float64) bool {
	if node.Infeasible {
		return true
	}
	if node.AllIntegral() {
		return true
	}
	return node.Obj > incumbent+IntegerTolerance
}

// bestNode returns the node with the smallest objective, optionally
// restricted to integral ones. Infeasible nodes never qualify.
func bestNode(historical []*Node, integralOnly bool) *Node {
	var best *Node
	for _, n := range historical {
		if n.Infeasible || (integralOnly && !n.AllIntegral()) {
			continue
		}
		if best == nil || n.Obj < best.Obj {
			best = n
		}
	}
	return best
}

// incumbentObjective is the objective of the best integral node so far.
// Fractional relaxations never serve as incumbent: a child relaxation is
// always at least as bad as its parent, so a fractional incumbent would
// bound-prune the entire tree at the root.
func incumbentObjective(historical []*Node) float64 {
	if n := bestNode(historical, true); n != nil {
		return n.Obj
	}
	return math.Inf(1)
}

// pickBranchVariable chooses a uniformly random fractional variable of the
// node's solved relaxation. The RNG is injected so runs are reproducible.
func pickBranchVariable(master *MasterProblem, node *Node, rng *rand.Rand) (int, float64) {
	var fractional []int
	for i, v := range node.Allocation {
		if !isIntegral(v) {
			fractional = append(fractional, i)
		}
	}
	for k, v := range node.Theta {
		if !isIntegral(v) {
			fractional = append(fractional, master.ThetaStart+k)
		}
	}
	idx := fractional[rng.Intn(len(fractional))]
	if idx >= master.ThetaStart {
		return idx, node.Theta[idx-master.ThetaStart]
	}
	return idx, node.Allocation[idx]
}

func applyNodeBounds(master *MasterProblem, bounds []VarBound) error {
	if err := master.ResetVarBounds(); err != nil {
		return fmt.Errorf("resetting variable bounds: %w", err)
	}
	for _, b := range bounds {
		if err := master.SetVarBound(b.Idx, b.Attr, b.Value); err != nil {
			return fmt.Errorf("applying bound on variable %d: %w", b.Idx, err)
		}
	}
	return nil
}

// snapshotNode captures the master's current solved state as a tree node.
func snapshotNode(master *MasterProblem, id int, bounds []VarBound) (*Node, error) {
	obj, err := master.Objective()
	if err != nil {
		return nil, fmt.Errorf("reading node objective: %w", err)
	}
	theta := make([]float64, len(master.Theta))
	copy(theta, master.Theta)
	return &Node{
		ID:         id,
		Bounds:     bounds,
		Obj:        obj,
		Allocation: master.AllocationSnapshot(),
		Theta:      theta,
		Metrics:    master.Metrics,
	}, nil
}

// snapshotNodeWithBounds applies the bound chain to the shared model, solves
// it and snapshots the result. An infeasible solve is node data, not an
// error.
func snapshotNodeWithBounds(master *MasterProblem, id int, bounds []VarBound) (*Node, error) {
	if err := applyNodeBounds(master, bounds); err != nil {
		return nil, err
	}
	if err := master.Solve(); err != nil {
		if errors.Is(err, ErrMasterInfeasible) {
			return &Node{ID: id, Bounds: bounds, Infeasible: true, Obj: math.Inf(1)}, nil
		}
		return nil, err
	}
	return snapshotNode(master, id, bounds)
}
