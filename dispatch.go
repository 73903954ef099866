package rescue

import "fmt"

// Driver solves one instance with one decomposition variant.
type Driver func(inst *Instance, cfg Config) (*Solution, error)

var drivers = map[string]Driver{
	ModelBase:       SolveBase,
	ModelLShaped:    SolveLShaped,
	ModelLShapedCB:  SolveLShapedCB,
	ModelIntLShaped: SolveIntLShaped,
}

// Solve dispatches to the driver registered under the given model name.
func Solve(model string, inst *Instance, cfg Config) (*Solution, error) {
	driver, ok := drivers[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnrecognizedModel, model)
	}
	sol, err := driver(inst, cfg)
	if err != nil {
		return nil, err
	}
	sol.Model = model
	return sol, nil
}

// Models lists the registered driver names.
func Models() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	return names
}
