package rescue

import (
	"fmt"
	"math"
	"sync"
	"time"

	"git.solver4all.com/azaryc2s/gorobi/gurobi"
	"gonum.org/v1/gonum/floats"
)

// CutPolicy decides whether an optimality cut enters the master. The
// intended filter compares the subproblem objective against the master's
// current theta for that scenario; the reference behavior accepts every cut,
// so that is the default until the filter is settled (see DESIGN.md).
type CutPolicy func(cut Cut, master *MasterProblem) bool

// AcceptAllCuts is the default optimality-cut acceptance policy.
func AcceptAllCuts(Cut, *MasterProblem) bool { return true }

// SolveLShaped runs the batch-iterative L-shaped decomposition: solve the
// master, sweep all scenario subproblems concurrently, apply the returned
// cuts in one batch, repeat until converged, stagnated or out of iterations.
func SolveLShaped(inst *Instance, cfg Config) (*Solution, error) {
	InitLogger(cfg.LogLevel)
	gurobiEnv, err := gurobi.LoadEnv("rescue_gurobi.log")
	if err != nil {
		return nil, fmt.Errorf("loading gurobi env: %w", err)
	}
	defer gurobiEnv.Free()
	gurobiEnv.SetIntParam("LogToConsole", int32(0))

	allocType := int8(gurobi.BINARY)
	if cfg.AllocBounds == AllocBoundsCont {
		allocType = gurobi.CONTINUOUS
	}
	master, err := CreateMasterProblem(gurobiEnv, inst, cfg, allocType)
	if err != nil {
		return nil, err
	}
	defer master.Free()

	start := time.Now()
	iterations, err := RunCutLoop(master, inst, cfg, AcceptAllCuts)
	if err != nil {
		return nil, err
	}

	sol, err := BuildSolution(master, inst, ModelLShaped, iterations)
	if err != nil {
		return nil, err
	}
	sol.Time = time.Since(start).String()
	return sol, nil
}

// RunCutLoop is the decomposition loop shared with the integer L-shaped
// driver: SolveMaster -> GenerateCuts -> ApplyCuts -> CheckStop, followed by
// one final master solve against the full cut set.
func RunCutLoop(master *MasterProblem, inst *Instance, cfg Config, accept CutPolicy) (int, error) {
	if accept == nil {
		accept = AcceptAllCuts
	}
	iter := 0
	for {
		iter++
		if err := master.Solve(); err != nil {
			return iter, err
		}
		Log(2, "Iteration %d: master objective %f", iter, master.Metrics.ObjectiveValue)

		cuts, err := GenerateCuts(master, inst)
		if err != nil {
			return iter, err
		}
		for _, c := range cuts {
			if c.IsOptimality() && !accept(c, master) {
				continue
			}
			master.AddCut(c)
		}
		if err := master.ApplyCuts(); err != nil {
			return iter, err
		}

		if !shouldContinue(master, iter, cfg) {
			break
		}
	}
	if err := master.Solve(); err != nil {
		return iter, err
	}
	Log(2, "Cut loop finished after %d iterations with %d cuts, objective %f",
		iter, master.CutsApplied, master.Metrics.ObjectiveValue)
	return iter, nil
}

// GenerateCuts fans out one subproblem task per scenario against a
// read-only snapshot of the master allocation. The join before returning is
// the only synchronization barrier: the master model is never mutated while
// a scenario task is in flight, and cuts are returned as one
// scenario-complete batch.
func GenerateCuts(master *MasterProblem, inst *Instance) ([]Cut, error) {
	alloc := master.AllocationSnapshot()
	K := inst.ScenarioCount

	cutCh := make(chan Cut, 2*K)
	errCh := make(chan error, K)
	var wg sync.WaitGroup
	for k := 0; k < K; k++ {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			// Each task owns its solver environment; nothing shared is
			// mutated before the join.
			feas, err := NewFeasibilitySubProblem(nil, inst, k, alloc)
			if err != nil {
				errCh <- err
				return
			}
			if feas.Cut != nil {
				cutCh <- *feas.Cut
			}
			feas.Free()

			opt, err := NewOptimalitySubProblem(nil, inst, k, alloc)
			if err != nil {
				errCh <- err
				return
			}
			if opt.Cut != nil {
				cutCh <- *opt.Cut
			}
			opt.Free()
		}(k)
	}
	wg.Wait()
	close(cutCh)
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, err
	}
	cuts := make([]Cut, 0, 2*K)
	for c := range cutCh {
		cuts = append(cuts, c)
	}
	return cuts, nil
}

func shouldContinue(master *MasterProblem, iter int, cfg Config) bool {
	if iter >= cfg.MaxIterations {
		Log(2, "Iteration cap %d reached", cfg.MaxIterations)
		return false
	}
	if master.HasConverged() {
		Log(2, "Converged: objective %f, expected recourse %f",
			master.Metrics.ObjectiveValue, master.Metrics.ExpectedRecourse)
		return false
	}
	if isStagnated(master.History, cfg.StagnationWindow, cfg.StagnationEps) {
		Log(2, "Stagnated over the last %d iterations", cfg.StagnationWindow)
		return false
	}
	return true
}

// isStagnated reports whether every objective improvement in the trailing
// window stayed below eps.
func isStagnated(history []Metrics, window int, eps float64) bool {
	if window < 1 || len(history) < window+1 {
		return false
	}
	diffs := make([]float64, window)
	tail := history[len(history)-window-1:]
	for i := 1; i < len(tail); i++ {
		diffs[i-1] = math.Abs(tail[i].ObjectiveValue - tail[i-1].ObjectiveValue)
	}
	return floats.Max(diffs) < eps
}
