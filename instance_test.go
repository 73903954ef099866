package rescue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInstance() *Instance {
	inst := &Instance{
		Name:          "test",
		SiteCount:     3,
		ScenarioCount: 2,
		Demand:        [][]int{{2, 0}, {0, 2}, {1, 1}},
		SiteCoordinates: [][]float64{
			{0, 0}, {1, 0}, {0, 1},
		},
		TeamCapacities: []int{1, 3},
		TeamCosts:      []int{1, 2},
		Radius:         10,
		Budget:         2,
		LoadFactor:     1.0,
	}
	if err := inst.Prepare(); err != nil {
		panic(err)
	}
	return inst
}

func TestPrepareDerivesNeighborhoods(t *testing.T) {
	inst := testInstance()
	require.Len(t, inst.Neighborhoods, 3)
	for j, hood := range inst.Neighborhoods {
		assert.Contains(t, hood, j, "site %d must be its own neighbor", j)
		assert.Len(t, hood, 3, "radius 10 covers all sites")
	}
}

func TestPrepareSortsTeamsByCapacity(t *testing.T) {
	inst := &Instance{
		SiteCount:       1,
		ScenarioCount:   1,
		Demand:          [][]int{{1}},
		SiteCoordinates: [][]float64{{0, 0}},
		TeamCapacities:  []int{5, 2, 9},
		TeamCosts:       []int{50, 20, 90},
		Radius:          1,
		Budget:          100,
	}
	require.NoError(t, inst.Prepare())
	assert.Equal(t, []int{2, 5, 9}, inst.TeamCapacities)
	assert.Equal(t, []int{20, 50, 90}, inst.TeamCosts, "costs must follow their teams")
	assert.Equal(t, 1.0, inst.LoadFactor, "load factor defaults to 1")
}

func TestPrepareRejectsBadDimensions(t *testing.T) {
	inst := &Instance{
		SiteCount:     2,
		ScenarioCount: 2,
		Demand:        [][]int{{1, 1}},
	}
	assert.Error(t, inst.Prepare())

	inst = &Instance{
		SiteCount:      1,
		ScenarioCount:  1,
		Demand:         [][]int{{1}},
		TeamCapacities: []int{1, 2},
		TeamCosts:      []int{1},
	}
	assert.Error(t, inst.Prepare())

	inst = &Instance{
		SiteCount:     1,
		ScenarioCount: 1,
		Demand:        [][]int{{1}},
	}
	assert.Error(t, inst.Prepare(), "empty team pool")
}

func TestProbabilityAndScenarioDemand(t *testing.T) {
	inst := testInstance()
	assert.InDelta(t, 0.5, inst.Probability(), 1e-12)
	assert.Equal(t, 3, inst.ScenarioDemand(0))
	assert.Equal(t, 3, inst.ScenarioDemand(1))
}

func TestInstanceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inst.json")
	inst := testInstance()
	require.NoError(t, WriteInstance(inst, path))

	loaded, err := LoadInstance(path)
	require.NoError(t, err)
	assert.Equal(t, inst.Name, loaded.Name)
	assert.Equal(t, inst.Demand, loaded.Demand)
	assert.Equal(t, inst.Neighborhoods, loaded.Neighborhoods)
	assert.Equal(t, inst.Budget, loaded.Budget)
}

func TestLoadInstanceMissingFile(t *testing.T) {
	_, err := LoadInstance(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
	assert.True(t, os.IsNotExist(errUnwrapAll(err)))
}

func errUnwrapAll(err error) error {
	for {
		unwrapped, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		err = unwrapped.Unwrap()
	}
}
