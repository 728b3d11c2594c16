package strategy

// Config is the declarative strategy document: the variable catalogue, the
// skill graph, and the ordered task list executed each cycle. It is loaded
// once per Strategy instance and treated as read-only afterwards.
type Config struct {
	// Variables maps variable id to its declaration.
	Variables map[string]VariableConfig `yaml:"variables" json:"variables"`

	// Skills maps skill name to its declaration.
	Skills map[string]SkillConfig `yaml:"skills" json:"skills"`

	// Tasks is the ordered list of execution phases.
	Tasks []TaskConfig `yaml:"tasks" json:"tasks"`

	// PreCalculationTask is the name of the task after which calculated
	// variables are promoted and their inputs frozen. Identified by exact
	// name match, never inferred from task ordering.
	PreCalculationTask string `yaml:"pre_calculation_task" json:"pre_calculation_task"`
}

// VariableConfig declares one process variable.
type VariableConfig struct {
	// Type is the variable classification.
	Type VarType `yaml:"type" json:"type"`

	// Units is the engineering unit label.
	Units string `yaml:"units,omitempty" json:"units,omitempty"`

	// Threshold is the optimizer search half-width around the baseline.
	// When unset the optimizer falls back to a half-width of 1. An
	// explicit 0 pins the variable at its baseline.
	Threshold *float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

// SkillConfig declares one skill. Class selects the kind; the remaining
// fields are kind-specific and ignored by other kinds.
type SkillConfig struct {
	// Class is the skill kind (MathFunction, Constraint, InferenceModel,
	// CompositionSkill, OptimizationSkill).
	Class string `yaml:"class" json:"class"`

	// Inputs lists the variable ids the skill reads.
	Inputs []string `yaml:"inputs,omitempty" json:"inputs,omitempty"`

	// Outputs lists the variable ids the skill writes.
	Outputs []string `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// Formula is the MathFunction expression.
	Formula string `yaml:"formula,omitempty" json:"formula,omitempty"`

	// VarMin and VarMax are the Constraint hard physical bounds.
	VarMin *float64 `yaml:"var_min,omitempty" json:"var_min,omitempty"`
	VarMax *float64 `yaml:"var_max,omitempty" json:"var_max,omitempty"`

	// OpMin and OpMax are the Constraint soft operating bounds. They
	// default to the corresponding hard bound when unset.
	OpMin *float64 `yaml:"op_min,omitempty" json:"op_min,omitempty"`
	OpMax *float64 `yaml:"op_max,omitempty" json:"op_max,omitempty"`

	// ModelPath, ScalerPath and MetadataPath locate the InferenceModel
	// artifacts in the artifact store.
	ModelPath    string `yaml:"model_path,omitempty" json:"model_path,omitempty"`
	ScalerPath   string `yaml:"scaler_path,omitempty" json:"scaler_path,omitempty"`
	MetadataPath string `yaml:"metadata_path,omitempty" json:"metadata_path,omitempty"`

	// SkillSequence is the ordered list of skill names a CompositionSkill
	// executes. Names are resolved in a second pass after all skills are
	// instantiated.
	SkillSequence []string `yaml:"skill_sequence,omitempty" json:"skill_sequence,omitempty"`

	// CostSkill names the skill an OptimizationSkill invokes per
	// objective evaluation.
	CostSkill string `yaml:"cost_skill,omitempty" json:"cost_skill,omitempty"`

	// CostVariable names the scalar cost output variable.
	CostVariable string `yaml:"cost_variable,omitempty" json:"cost_variable,omitempty"`

	// Algorithm selects the bounded local search method
	// (NelderMead, LBFGS, CG). Defaults to NelderMead.
	Algorithm string `yaml:"algorithm,omitempty" json:"algorithm,omitempty"`
}

// TaskConfig declares one execution phase: a named, ordered skill sequence.
type TaskConfig struct {
	// Name is the task name.
	Name string `yaml:"name" json:"name"`

	// SkillSequence is the ordered list of skill names to execute.
	SkillSequence []string `yaml:"skill_sequence" json:"skill_sequence"`
}

// VariableIDsByType returns the ids of all variables with the given type.
func (c *Config) VariableIDsByType(t VarType) []string {
	var ids []string
	for id, vc := range c.Variables {
		if vc.Type == t {
			ids = append(ids, id)
		}
	}
	return ids
}
