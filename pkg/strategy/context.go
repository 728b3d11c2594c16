package strategy

import "fmt"

// DataContext is a transient, in-memory container holding the state of every
// Variable for a single optimization cycle. It is created fresh per cycle,
// mutated in place while the skill graph executes, and discarded after result
// extraction. It is exclusively owned by the Strategy for the duration of one
// cycle and is not safe for use across cycles.
type DataContext struct {
	variables map[string]*Variable
}

// NewDataContext builds a context containing one Variable per configured
// variable id. No other component may construct Variables outside this path.
func NewDataContext(variables map[string]VariableConfig) *DataContext {
	vars := make(map[string]*Variable, len(variables))
	for id, cfg := range variables {
		v := &Variable{
			ID:    id,
			Type:  cfg.Type,
			Units: cfg.Units,
		}
		if cfg.Threshold != nil {
			v.Threshold = ptr(*cfg.Threshold)
		}
		vars[id] = v
	}
	return &DataContext{variables: vars}
}

// Variable returns the variable with the given id. An unknown id is a hard
// error; the context never silently creates variables.
func (dc *DataContext) Variable(id string) (*Variable, error) {
	v, ok := dc.variables[id]
	if !ok {
		return nil, NewConfigError(fmt.Sprintf("variable %q not found in data context", id), nil).WithVariable(id)
	}
	return v, nil
}

// Has reports whether the context contains the given variable id.
func (dc *DataContext) Has(id string) bool {
	_, ok := dc.variables[id]
	return ok
}

// PopulateInitialData seeds every variable present in data via
// SetInitialValue, then applies the default-population rule: variables still
// unset whose type is graph-derived (Delta, Predicted, Constraint,
// Calculated) default all three slots to 0.0. Operative and Informative
// variables are expected to arrive in data; their absence is checked by the
// orchestrator before any skill executes.
func (dc *DataContext) PopulateInitialData(data map[string]float64) {
	for id, value := range data {
		if v, ok := dc.variables[id]; ok {
			v.SetInitialValue(value)
		}
	}
	for _, v := range dc.variables {
		if v.Current == nil && v.Type.graphDerived() {
			v.SetInitialValue(0.0)
		}
	}
}

// Variables returns the underlying variable map. Callers must treat it as
// read-only; it is exposed for result extraction and reporting.
func (dc *DataContext) Variables() map[string]*Variable {
	return dc.variables
}
