package rescue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckSolutionValidity(t *testing.T) {
	inst := testInstance()

	sol := &Solution{Allocations: []Allocation{{Team: 1, Site: 0}}}
	valid, comment := CheckSolutionValidity(sol, inst)
	assert.True(t, valid, comment)

	// budget 2, team costs are 1 and 2
	sol = &Solution{Allocations: []Allocation{{Team: 1, Site: 0}, {Team: 0, Site: 1}}}
	valid, comment = CheckSolutionValidity(sol, inst)
	assert.False(t, valid)
	assert.Contains(t, comment, "budget")

	sol = &Solution{Allocations: []Allocation{{Team: 0, Site: 2}, {Team: 0, Site: 2}}}
	valid, comment = CheckSolutionValidity(sol, inst)
	assert.False(t, valid)
	assert.Contains(t, comment, "Site 2")

	sol = &Solution{Allocations: []Allocation{{Team: 9, Site: 0}}}
	valid, _ = CheckSolutionValidity(sol, inst)
	assert.False(t, valid, "unknown team index")
}

func TestSolveUnrecognizedModel(t *testing.T) {
	_, err := Solve("NOPE", testInstance(), DefaultConfig())
	assert.True(t, errors.Is(err, ErrUnrecognizedModel))
}

func TestModelsRegistry(t *testing.T) {
	names := Models()
	assert.ElementsMatch(t, []string{ModelBase, ModelLShaped, ModelLShapedCB, ModelIntLShaped}, names)
}
