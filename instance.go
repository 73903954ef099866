package rescue

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// LoadInstance reads an instance from a JSON file, fills in the derived
// fields and validates the data. The returned instance is not mutated by any
// driver.
func LoadInstance(path string) (*Instance, error) {
	instStr, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading instance %s: %w", path, err)
	}
	var inst Instance
	if err := json.Unmarshal(instStr, &inst); err != nil {
		return nil, fmt.Errorf("parsing instance %s: %w", path, err)
	}
	if err := inst.Prepare(); err != nil {
		return nil, fmt.Errorf("instance %s: %w", path, err)
	}
	return &inst, nil
}

// Prepare derives neighborhoods from the coordinates when they are missing,
// sorts the team pool ascending by capacity and validates the dimensions.
func (inst *Instance) Prepare() error {
	if inst.SiteCount == 0 {
		inst.SiteCount = len(inst.Demand)
	}
	if len(inst.Demand) != inst.SiteCount {
		return fmt.Errorf("demand matrix has %d rows, expected %d sites", len(inst.Demand), inst.SiteCount)
	}
	if inst.ScenarioCount == 0 && inst.SiteCount > 0 {
		inst.ScenarioCount = len(inst.Demand[0])
	}
	for j, row := range inst.Demand {
		if len(row) != inst.ScenarioCount {
			return fmt.Errorf("demand row %d has %d scenarios, expected %d", j, len(row), inst.ScenarioCount)
		}
	}
	if len(inst.TeamCapacities) != len(inst.TeamCosts) {
		return fmt.Errorf("team pool mismatch: %d capacities, %d costs", len(inst.TeamCapacities), len(inst.TeamCosts))
	}
	if len(inst.TeamCapacities) == 0 {
		return fmt.Errorf("no teams defined")
	}
	if inst.LoadFactor <= 0 {
		inst.LoadFactor = 1.0
	}
	inst.sortTeams()
	if inst.Neighborhoods == nil {
		if len(inst.SiteCoordinates) != inst.SiteCount {
			return fmt.Errorf("no neighborhoods and %d coordinates for %d sites", len(inst.SiteCoordinates), inst.SiteCount)
		}
		inst.Neighborhoods = CalcNeighborhoods(inst.SiteCoordinates, inst.Radius)
	}
	if len(inst.Neighborhoods) != inst.SiteCount {
		return fmt.Errorf("neighborhood map has %d entries, expected %d sites", len(inst.Neighborhoods), inst.SiteCount)
	}
	Log(4, "Demand matrix:\n%s", Print2DArray(inst.Demand))
	Log(4, "Neighborhoods:\n%s", Print2DArray(inst.Neighborhoods))
	return nil
}

func (inst *Instance) sortTeams() {
	type team struct {
		cap  int
		cost int
	}
	teams := make([]team, len(inst.TeamCapacities))
	for t := range teams {
		teams[t] = team{inst.TeamCapacities[t], inst.TeamCosts[t]}
	}
	sort.SliceStable(teams, func(a, b int) bool { return teams[a].cap < teams[b].cap })
	for t := range teams {
		inst.TeamCapacities[t] = teams[t].cap
		inst.TeamCosts[t] = teams[t].cost
	}
}

// WriteInstance writes the instance, including any embedded solution, back
// to a JSON file.
func WriteInstance(inst *Instance, path string) error {
	jsonInst, err := json.MarshalIndent(inst, "", "\t")
	if err != nil {
		return fmt.Errorf("marshalling instance: %w", err)
	}
	jsonInst = []byte(SanitizeJsonArrayLineBreaks(string(jsonInst)))
	if err := os.WriteFile(path, jsonInst, 0644); err != nil {
		return fmt.Errorf("writing instance %s: %w", path, err)
	}
	return nil
}
