package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Engine compiles and evaluates guardrail policies.
type Engine struct {
	mu       sync.RWMutex
	prepared map[string]*preparedPolicy
	logger   zerolog.Logger
}

// preparedPolicy is a policy with its compiled deny query.
type preparedPolicy struct {
	policy Policy
	query  rego.PreparedEvalQuery
}

// NewEngine creates a policy engine with the built-in guardrails loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		prepared: make(map[string]*preparedPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}
	for _, p := range BuiltinPolicies() {
		if err := e.Add(p); err != nil {
			return nil, fmt.Errorf("load builtin policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// Add compiles and registers a policy, replacing any policy with the same
// name.
func (e *Engine) Add(p Policy) error {
	module, err := ast.ParseModule(p.Name+".rego", p.Rego)
	if err != nil {
		return fmt.Errorf("parse policy: %w", err)
	}
	pkg := module.Package.Path.String()

	query, err := rego.New(
		rego.Query(fmt.Sprintf("%s.deny", pkg)),
		rego.Module(p.Name+".rego", p.Rego),
	).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("compile policy: %w", err)
	}

	e.mu.Lock()
	e.prepared[p.Name] = &preparedPolicy{policy: p, query: query}
	e.mu.Unlock()
	e.logger.Debug().Str("policy", p.Name).Msg("policy registered")
	return nil
}

// Policies returns the names of all registered policies.
func (e *Engine) Policies() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.prepared))
	for name := range e.prepared {
		names = append(names, name)
	}
	return names
}

// Evaluate runs every enabled policy against the input. The result is
// allowed only when no error-severity violation was produced. A policy that
// fails to evaluate is reported as its own violation at its own severity
// rather than silently skipped.
func (e *Engine) Evaluate(ctx context.Context, input Input) (*Result, error) {
	doc, err := toDocument(input)
	if err != nil {
		return nil, fmt.Errorf("encode policy input: %w", err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true}
	for _, pp := range e.prepared {
		if !pp.policy.Enabled {
			continue
		}
		violations, err := e.evaluateOne(ctx, pp, doc)
		if err != nil {
			e.logger.Error().Err(err).Str("policy", pp.policy.Name).Msg("policy evaluation failed")
			violations = []Violation{{
				Policy:   pp.policy.Name,
				Message:  fmt.Sprintf("policy evaluation failed: %v", err),
				Severity: pp.policy.Severity,
			}}
		}
		result.Violations = append(result.Violations, violations...)
	}

	for _, v := range result.Violations {
		if v.Severity == SeverityError {
			result.Allowed = false
			break
		}
	}
	return result, nil
}

func (e *Engine) evaluateOne(ctx context.Context, pp *preparedPolicy, doc any) ([]Violation, error) {
	rs, err := pp.query.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, r := range rs {
		for _, expr := range r.Expressions {
			denySet, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, e.toViolation(pp.policy, d))
			}
		}
	}
	return violations, nil
}

// toViolation converts one deny document into a typed violation, falling
// back to the policy defaults for missing fields.
func (e *Engine) toViolation(p Policy, d any) Violation {
	v := Violation{Policy: p.Name, Severity: p.Severity}
	fields, ok := d.(map[string]any)
	if !ok {
		v.Message = fmt.Sprintf("%v", d)
		return v
	}
	if msg, ok := fields["message"].(string); ok {
		v.Message = msg
	}
	if sev, ok := fields["severity"].(string); ok {
		v.Severity = Severity(sev)
	}
	if variable, ok := fields["variable"].(string); ok {
		v.Variable = variable
	}
	return v
}

// toDocument converts the typed input into the plain JSON document Rego
// evaluates.
func toDocument(input Input) (any, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
