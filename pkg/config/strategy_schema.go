package config

// strategySchema is the CUE schema every strategy document must satisfy
// before it is handed to the engine. Structural problems (unknown skill
// classes, wrong field types, malformed tasks) are rejected here with CUE's
// path-aware error messages; referential problems (unknown variable ids,
// unresolvable skill names) are the engine's responsibility at build time.
const strategySchema = `
#Variable: {
	type: "Operative" | "Informative" | "Calculated" | "Delta" | "Predicted" | "Constraint"
	units?: string
	threshold?: number & >=0
}

#Skill: {
	class: "MathFunction" | "Constraint" | "InferenceModel" | "CompositionSkill" | "OptimizationSkill"
	inputs?: [...string]
	outputs?: [...string]
	formula?: string
	var_min?: number
	var_max?: number
	op_min?: number
	op_max?: number
	model_path?: string
	scaler_path?: string
	metadata_path?: string
	skill_sequence?: [...string]
	cost_skill?: string
	cost_variable?: string
	algorithm?: "NelderMead" | "LBFGS" | "CG"
}

#Task: {
	name: string & !=""
	skill_sequence: [...string] & [_, ...]
}

variables: [string]: #Variable
skills: [string]: #Skill
tasks: [...#Task] & [_, ...]
pre_calculation_task?: string
`
