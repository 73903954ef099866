package rescue

import (
	"math"
)

const (
	ModelBase        = "BASE"
	ModelLShaped     = "LSHAPED"
	ModelLShapedCB   = "LSHAPED_CB"
	ModelIntLShaped  = "INT_LSHAPED"
	AllocBoundsBin   = "BIN"
	AllocBoundsCont  = "CONT"
	CutFeasibility   = "FEAS"
	CutOptimality    = "OPT"
	SlackTolerance   = 1e-6
	IntegerTolerance = 1e-5
)

// Instance is a rescue allocation problem: a set of demand sites, a pool of
// teams and a scenario-indexed demand matrix. Immutable once loaded.
type Instance struct {
	Name    string `json:"name"`
	Comment string `json:"comment"`
	Type    string `json:"type"`

	SiteCount       int         `json:"site_count"`
	ScenarioCount   int         `json:"scenario_count"`
	SiteCoordinates [][]float64 `json:"site_coordinates"`
	// Demand[j][k] is the number of people at site j under scenario k.
	Demand [][]int `json:"demand"`

	// Teams are kept sorted ascending by capacity.
	TeamCapacities []int `json:"team_capacities"`
	TeamCosts      []int `json:"team_costs"`

	// Neighborhoods[j] lists the site indices reachable from site j,
	// including j itself, within Radius.
	Neighborhoods [][]int `json:"neighborhoods,omitempty"`
	Radius        float64 `json:"radius"`

	Budget     int     `json:"budget"`
	LoadFactor float64 `json:"load_factor"`

	Solution *Solution `json:"solution,omitempty"`
}

// Probability returns the weight of one scenario. Scenarios are
// equiprobable.
func (inst *Instance) Probability() float64 {
	return 1.0 / float64(inst.ScenarioCount)
}

// ScenarioDemand returns the total demand of scenario k, used as the upper
// bound of the recourse variable theta_k.
func (inst *Instance) ScenarioDemand(k int) int {
	total := 0
	for j := 0; j < inst.SiteCount; j++ {
		total += inst.Demand[j][k]
	}
	return total
}

// Cut is an immutable linear inequality over the master allocation
// variables, derived from the dual values of one scenario subproblem. Ind
// and Val are parallel solver index/coefficient arrays; Obj carries the
// probability-weighted subproblem objective for optimality cuts and NaN for
// feasibility cuts.
type Cut struct {
	Kind     string
	Scenario int
	Ind      []int32
	Val      []float64
	Sense    int8
	Rhs      float64
	Obj      float64
}

// IsOptimality reports whether the cut tightens the recourse bound, as
// opposed to excluding an infeasible first-stage decision.
func (c Cut) IsOptimality() bool {
	return c.Kind == CutOptimality
}

// Metrics is one snapshot of a solve: realized objective, wall time and the
// recourse value estimated from the most recent cut batch.
type Metrics struct {
	ObjectiveValue   float64 `json:"objective_value"`
	ExecutionTime    string  `json:"execution_time"`
	ExpectedRecourse float64 `json:"expected_recourse"`
}

// Allocation is one first-stage decision: team placed at site.
type Allocation struct {
	Team int `json:"team"`
	Site int `json:"site"`
}

// Assignment is one second-stage decision: under scenario k, the team
// stationed at TeamSite rescues Rescued people from Site.
type Assignment struct {
	Scenario int `json:"scenario"`
	TeamSite int `json:"team_site"`
	Site     int `json:"site"`
	Rescued  int `json:"rescued"`
}

type Solution struct {
	Model       string       `json:"model"`
	Obj         float64      `json:"obj"`
	Optimal     bool         `json:"optimal"`
	Allocations []Allocation `json:"allocations"`
	Assignments []Assignment `json:"assignments"`
	Metrics     Metrics      `json:"metrics"`
	Iterations  int          `json:"iterations"`
	CutCount    int          `json:"cut_count"`

	Time    string  `json:"time"`
	System  SysInfo `json:"system"`
	Comment string  `json:"comment"`
}

// SysInfo saves the basic system information
type SysInfo struct {
	Platform string
	CPU      string
	RAM      string
}

// Config carries the iteration and tolerance constants of the decomposition
// drivers. It is injected into each driver call instead of living as
// process-wide globals.
type Config struct {
	MaxIterations    int     `json:"max_iterations"`
	StagnationWindow int     `json:"stagnation_window"`
	StagnationEps    float64 `json:"stagnation_eps"`
	Gap              float64 `json:"gap"`
	MaxNodes         int     `json:"max_nodes"`
	TimeLimit        float64 `json:"time_limit"`
	Seed             int64   `json:"seed"`
	LogLevel         int     `json:"log_level"`
	AllocBounds      string  `json:"alloc_bounds"`
}

// DefaultConfig returns the tolerances used by the benchmark runs.
func DefaultConfig() Config {
	return Config{
		MaxIterations:    100,
		StagnationWindow: 5,
		StagnationEps:    1e-4,
		Gap:              1e-2,
		MaxNodes:         500,
		TimeLimit:        3600,
		Seed:             1,
		LogLevel:         2,
		AllocBounds:      AllocBoundsBin,
	}
}

func isIntegral(v float64) bool {
	return math.Abs(v-math.Round(v)) < IntegerTolerance
}
