package strategy

import "context"

// Kind identifies one of the five skill classes. The set is closed: skills
// are dispatched through this enum rather than by runtime class lookup.
type Kind string

const (
	// KindMathFunction evaluates a sandboxed scalar expression.
	KindMathFunction Kind = "MathFunction"

	// KindConstraint scores a variable against its operating limits.
	KindConstraint Kind = "Constraint"

	// KindInferenceModel runs a trained regression model forward pass.
	KindInferenceModel Kind = "InferenceModel"

	// KindComposition executes an ordered sequence of other skills.
	KindComposition Kind = "CompositionSkill"

	// KindOptimization runs a bounded nonlinear search over a cost skill.
	KindOptimization Kind = "OptimizationSkill"
)

// knownKinds is the closed set of accepted configuration class strings.
var knownKinds = map[Kind]bool{
	KindMathFunction:   true,
	KindConstraint:     true,
	KindInferenceModel: true,
	KindComposition:    true,
	KindOptimization:   true,
}

// Skill is a named unit of computation over a DataContext. Execute reads
// input variables and writes output variables; recoverable evaluation
// failures are absorbed inside Execute per the fail-soft policy, so a
// returned error is always fatal to the cycle.
type Skill interface {
	// Name returns the configured skill name.
	Name() string

	// Kind returns the skill class.
	Kind() Kind

	// Inputs returns the variable ids the skill reads.
	Inputs() []string

	// Outputs returns the variable ids the skill writes.
	Outputs() []string

	// Execute runs the skill against the context.
	Execute(ctx context.Context, dc *DataContext) error
}

// resolver is implemented by skills that hold named references to sibling
// skills. Resolution happens in a second pass after every skill in the
// strategy has been instantiated, which breaks the construction-order cycle
// between a composition and the skills it sequences.
type resolver interface {
	resolve(registry map[string]Skill) error
}

// baseSkill carries the fields shared by every skill kind.
type baseSkill struct {
	name    string
	inputs  []string
	outputs []string
}

func (b *baseSkill) Name() string      { return b.name }
func (b *baseSkill) Inputs() []string  { return b.inputs }
func (b *baseSkill) Outputs() []string { return b.outputs }
