package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return e
}

func TestEngine_AllowsInBandRecommendations(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.Evaluate(context.Background(), Input{
		Cycle: 1,
		Recommendations: []RecommendationInput{
			{VariableID: "fuel_rate", Current: 10, Recommended: 12, Delta: 2, Threshold: 5},
			{VariableID: "air_flow", Current: 3, Recommended: 3, Delta: 0, Threshold: 0},
		},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected in-band recommendations allowed, violations: %+v", result.Violations)
	}
	if len(result.Violations) != 0 {
		t.Errorf("Expected no violations, got %+v", result.Violations)
	}
}

func TestEngine_BlocksOutOfBandMove(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.Evaluate(context.Background(), Input{
		Cycle: 1,
		Recommendations: []RecommendationInput{
			{VariableID: "fuel_rate", Current: 10, Recommended: 20, Delta: 10, Threshold: 5},
		},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Allowed {
		t.Fatal("Expected out-of-band move to be blocked")
	}
	if len(result.Violations) != 1 {
		t.Fatalf("Expected 1 violation, got %+v", result.Violations)
	}
	v := result.Violations[0]
	if v.Policy != "threshold-band" || v.Variable != "fuel_rate" || v.Severity != SeverityError {
		t.Errorf("Unexpected violation: %+v", v)
	}
}

func TestEngine_BlocksImmovableVariableMove(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.Evaluate(context.Background(), Input{
		Cycle: 1,
		Recommendations: []RecommendationInput{
			{VariableID: "kiln_temp", Current: 1450, Recommended: 1460, Delta: 10, Threshold: 0},
		},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Allowed {
		t.Fatal("Expected immovable variable move to be blocked")
	}
	if result.Violations[0].Policy != "immovable-variable" {
		t.Errorf("Unexpected violation: %+v", result.Violations[0])
	}
}

func TestEngine_EmptyInputIsAllowed(t *testing.T) {
	e := newTestEngine(t)
	result, err := e.Evaluate(context.Background(), Input{Cycle: 1})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected empty input allowed, violations: %+v", result.Violations)
	}
}

func TestEngine_LoadDir(t *testing.T) {
	e := newTestEngine(t)
	dir := t.TempDir()

	operatorPolicy := `package optikiln.guardrails.maxmove

import rego.v1

deny contains violation if {
	some rec in input.recommendations
	abs(rec.delta) > 100
	violation := {
		"message": sprintf("move of %.2f on %s exceeds plant limit", [rec.delta, rec.variable_id]),
		"severity": "error",
		"variable": rec.variable_id,
	}
}
`
	if err := os.WriteFile(filepath.Join(dir, "maxmove.rego"), []byte(operatorPolicy), 0o644); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if err := e.LoadDir(dir); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	result, err := e.Evaluate(context.Background(), Input{
		Recommendations: []RecommendationInput{
			{VariableID: "fuel_rate", Current: 0, Recommended: 150, Delta: 150, Threshold: 200},
		},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if result.Allowed {
		t.Error("Expected operator policy to block the move")
	}
}

func TestEngine_LoadDirMissingIsNoop(t *testing.T) {
	e := newTestEngine(t)
	if err := e.LoadDir(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Errorf("Expected missing directory to be a no-op, got: %v", err)
	}
}

func TestEngine_RejectsBrokenPolicy(t *testing.T) {
	e := newTestEngine(t)
	if err := e.Add(Policy{Name: "broken", Rego: "not rego at all", Enabled: true}); err == nil {
		t.Error("Expected parse error for broken policy")
	}
}
