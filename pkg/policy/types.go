package policy

// Severity classifies how a violation affects persistence.
type Severity string

const (
	// SeverityError blocks persistence of the recommendation set.
	SeverityError Severity = "error"

	// SeverityWarning is logged but does not block.
	SeverityWarning Severity = "warning"
)

// Policy is one named Rego guardrail.
type Policy struct {
	// Name uniquely identifies the policy.
	Name string

	// Description explains what the policy enforces.
	Description string

	// Severity is the default severity for violations that omit one.
	Severity Severity

	// Enabled controls whether the policy is evaluated.
	Enabled bool

	// Rego is the policy source. It must declare a package and produce
	// violations in a `deny` set.
	Rego string
}

// RecommendationInput is one recommendation as seen by policies.
type RecommendationInput struct {
	VariableID  string  `json:"variable_id"`
	Current     float64 `json:"current"`
	Recommended float64 `json:"recommended"`
	Delta       float64 `json:"delta"`
	Threshold   float64 `json:"threshold"`
}

// Input is the document policies evaluate.
type Input struct {
	Cycle           uint64                `json:"cycle"`
	Recommendations []RecommendationInput `json:"recommendations"`
}

// Violation is one guardrail finding.
type Violation struct {
	// Policy is the name of the policy that produced the finding.
	Policy string `json:"policy"`

	// Message is the human-readable finding.
	Message string `json:"message"`

	// Severity classifies the finding.
	Severity Severity `json:"severity"`

	// Variable is the variable id involved, if any.
	Variable string `json:"variable,omitempty"`
}

// Result is the outcome of evaluating all policies against one input.
type Result struct {
	// Allowed is false when any error-severity violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists every finding.
	Violations []Violation `json:"violations"`
}
