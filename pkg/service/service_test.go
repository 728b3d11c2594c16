package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/optikiln/optikiln/pkg/config"
	"github.com/optikiln/optikiln/pkg/policy"
	"github.com/optikiln/optikiln/pkg/stores"
	"github.com/optikiln/optikiln/pkg/strategy"
	"github.com/optikiln/optikiln/pkg/telemetry"
)

type fakeData struct {
	values map[string]float64
	err    error
}

func (f *fakeData) Latest(_ context.Context, ids []string, _ time.Time) (map[string]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]float64)
	for _, id := range ids {
		if v, ok := f.values[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

type fakeSink struct {
	saved   []stores.Recommendation
	lastRun time.Time
	err     error
}

func (f *fakeSink) SaveRecommendations(_ context.Context, recs []stores.Recommendation) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, recs...)
	return nil
}

func (f *fakeSink) SetLastRun(_ context.Context, at time.Time) error {
	f.lastRun = at
	return nil
}

func testTelemetry(t *testing.T) *telemetry.Telemetry {
	t.Helper()
	tel, err := telemetry.New(telemetry.Config{
		Logging: telemetry.LoggingConfig{Level: "error"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return tel
}

func testStrategyConfig() strategy.Config {
	return strategy.Config{
		Variables: map[string]strategy.VariableConfig{
			"x":          {Type: strategy.VarTypeOperative, Threshold: floatPtr(3.0)},
			"total_cost": {Type: strategy.VarTypeCalculated},
		},
		Skills: map[string]strategy.SkillConfig{
			"cost_fn": {
				Class:   "MathFunction",
				Formula: "(x_dof - 5.0)**2",
				Inputs:  []string{"x"},
				Outputs: []string{"total_cost"},
			},
			"optimize": {
				Class:        "OptimizationSkill",
				Inputs:       []string{"x"},
				CostSkill:    "cost_fn",
				CostVariable: "total_cost",
			},
		},
		Tasks: []strategy.TaskConfig{
			{Name: "Optimize", SkillSequence: []string{"optimize"}},
		},
	}
}

func newTestService(t *testing.T, data *fakeData, sink *fakeSink, policies *policy.Engine) *Service {
	t.Helper()
	tel := testTelemetry(t)
	strat, err := strategy.New(context.Background(), testStrategyConfig(), strategy.Deps{Logger: tel.Logger})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	return &Service{
		cfg:      &config.ServiceConfig{},
		tel:      tel,
		logger:   tel.Logger,
		data:     data,
		results:  sink,
		policies: policies,
		strat:    strat,
	}
}

func TestService_RunOncePersistsRecommendations(t *testing.T) {
	sink := &fakeSink{}
	s := newTestService(t, &fakeData{values: map[string]float64{"x": 3.0}}, sink, nil)

	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if report.Blocked {
		t.Fatal("Expected report not blocked")
	}

	// Only x is searched; total_cost never receives a recommendation and
	// produces no row.
	if len(sink.saved) != 1 || sink.saved[0].VariableID != "x" {
		t.Fatalf("Expected a single persisted row for x, got %+v", sink.saved)
	}
	xRow := &sink.saved[0]
	if math.Abs(xRow.Recommended-5.0) > 1e-2 {
		t.Errorf("Expected recommendation near 5.0, got %v", xRow.Recommended)
	}
	if math.Abs(xRow.Delta-(xRow.Recommended-3.0)) > 1e-9 {
		t.Errorf("Expected delta from baseline 3.0, got %v", xRow.Delta)
	}
	if sink.lastRun.IsZero() {
		t.Error("Expected last run to be recorded")
	}

	last, ok := s.tel.Cycles.Last()
	if !ok || last.Status != "success" {
		t.Errorf("Expected a success cycle record, got %+v", last)
	}
}

func TestService_RunOnceSkipsOnMissingData(t *testing.T) {
	sink := &fakeSink{}
	s := newTestService(t, &fakeData{values: map[string]float64{}}, sink, nil)

	_, err := s.RunOnce(context.Background())
	if err == nil || !strategy.IsInput(err) {
		t.Fatalf("Expected input error, got: %v", err)
	}
	if len(sink.saved) != 0 {
		t.Errorf("Expected nothing persisted, got %+v", sink.saved)
	}

	last, ok := s.tel.Cycles.Last()
	if !ok || last.Status != "skipped" {
		t.Errorf("Expected a skipped cycle record, got %+v", last)
	}
}

func TestService_RunOnceGuardrailBlock(t *testing.T) {
	tel := testTelemetry(t)
	policies, err := policy.NewEngine(tel.Logger)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	denyAll := `package optikiln.guardrails.frozen

import rego.v1

deny contains violation if {
	count(input.recommendations) > 0
	violation := {"message": "plant is frozen for maintenance", "severity": "error"}
}
`
	if err := policies.Add(policy.Policy{Name: "frozen", Severity: policy.SeverityError, Enabled: true, Rego: denyAll}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	sink := &fakeSink{}
	s := newTestService(t, &fakeData{values: map[string]float64{"x": 3.0}}, sink, policies)

	report, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !report.Blocked {
		t.Fatal("Expected report blocked by guardrails")
	}
	if len(sink.saved) != 0 {
		t.Errorf("Expected nothing persisted, got %+v", sink.saved)
	}

	last, ok := s.tel.Cycles.Last()
	if !ok || last.Status != "blocked" {
		t.Errorf("Expected a blocked cycle record, got %+v", last)
	}
}

func TestService_RunOnceDataSourceFailure(t *testing.T) {
	sink := &fakeSink{}
	s := newTestService(t, &fakeData{err: errors.New("connection refused")}, sink, nil)

	_, err := s.RunOnce(context.Background())
	if err == nil || !strategy.IsCollaborator(err) {
		t.Fatalf("Expected collaborator error, got: %v", err)
	}
}

func TestBuildRecommendations(t *testing.T) {
	dc := strategy.NewDataContext(map[string]strategy.VariableConfig{
		"a": {Type: strategy.VarTypeOperative, Threshold: floatPtr(1.0)},
		"b": {Type: strategy.VarTypeOperative, Threshold: floatPtr(1.0)},
	})
	dc.PopulateInitialData(map[string]float64{"a": 10.0})
	va, _ := dc.Variable("a")
	va.Recommended = nil
	vb, _ := dc.Variable("b")
	vb.Current = floatPtr(2.0)
	vb.Recommended = floatPtr(3.5)

	at := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	recs := buildRecommendations(dc, []string{"b", "a"}, 4, at)

	// a lost its recommendation slot, so only b produces a row.
	if len(recs) != 1 {
		t.Fatalf("Expected 1 row, got %+v", recs)
	}
	r := recs[0]
	if r.VariableID != "b" || r.Cycle != 4 || r.Current != 2.0 || r.Recommended != 3.5 || r.Delta != 1.5 {
		t.Errorf("Unexpected row: %+v", r)
	}
	if !r.CreatedAt.Equal(at) {
		t.Errorf("Expected created at %v, got %v", at, r.CreatedAt)
	}
}

func TestNonFiniteViolations(t *testing.T) {
	recs := []stores.Recommendation{
		{VariableID: "ok", Current: 1, Recommended: 2, Delta: 1},
		{VariableID: "nan", Current: 1, Recommended: math.NaN(), Delta: math.NaN()},
		{VariableID: "inf", Current: math.Inf(1), Recommended: 2, Delta: 1},
	}
	violations := nonFiniteViolations(recs)
	if len(violations) != 2 {
		t.Fatalf("Expected 2 violations, got %+v", violations)
	}
	if violations[0].Variable != "nan" || violations[1].Variable != "inf" {
		t.Errorf("Unexpected variables: %+v", violations)
	}
	if violations[0].Severity != policy.SeverityError {
		t.Errorf("Expected error severity, got %s", violations[0].Severity)
	}
}

func floatPtr(v float64) *float64 { return &v }
