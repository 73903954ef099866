package rescue

import "errors"

var (
	// ErrMasterInfeasible is returned when the first-stage model reports
	// INF_OR_UNBD. The instance data or an added cut is wrong; the driver
	// invocation is aborted.
	ErrMasterInfeasible = errors.New("master problem is infeasible or unbounded")

	// ErrNoAllocationFound is returned when a solution would contain zero
	// allocated teams.
	ErrNoAllocationFound = errors.New("no allocation found in solution")

	// ErrUnrecognizedModel is returned when the requested model name has no
	// registered driver.
	ErrUnrecognizedModel = errors.New("unrecognized model")
)
