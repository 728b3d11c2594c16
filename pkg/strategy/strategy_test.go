package strategy

import (
	"context"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testDeps() Deps {
	return Deps{Logger: zerolog.Nop()}
}

// countingMetrics records observations for assertion.
type countingMetrics struct {
	skills int
	cycles int
}

func (m *countingMetrics) SkillExecuted(string, Kind, time.Duration, error) { m.skills++ }
func (m *countingMetrics) CycleCompleted(time.Duration, error)             { m.cycles++ }

func TestStrategy_EndToEndOptimization(t *testing.T) {
	cfg := Config{
		Variables: map[string]VariableConfig{
			"x1":         {Type: VarTypeOperative, Threshold: ptr(3.0)},
			"x2":         {Type: VarTypeOperative, Threshold: ptr(3.0)},
			"total_cost": {Type: VarTypeCalculated},
		},
		Skills: map[string]SkillConfig{
			"cost_fn": {
				Class:   string(KindMathFunction),
				Formula: "(x1_dof - 5.0)**2 + (x2_dof - 5.0)**2",
				Inputs:  []string{"x1", "x2"},
				Outputs: []string{"total_cost"},
			},
			"optimize": {
				Class:        string(KindOptimization),
				Inputs:       []string{"x1", "x2"},
				CostSkill:    "cost_fn",
				CostVariable: "total_cost",
			},
		},
		Tasks: []TaskConfig{
			{Name: "Optimize", SkillSequence: []string{"optimize"}},
		},
	}

	s, err := New(context.Background(), cfg, testDeps())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	dc, err := s.RunCycle(context.Background(), map[string]float64{"x1": 3.0, "x2": 3.0})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Both variables search [0, 6]; the optimum at (5, 5) is interior.
	for _, id := range []string{"x1", "x2"} {
		v, _ := dc.Variable(id)
		if v.Recommended == nil {
			t.Fatalf("Expected recommendation for %s", id)
		}
		if math.Abs(*v.Recommended-5.0) > 1e-2 {
			t.Errorf("Expected %s recommendation near 5.0, got %v", id, *v.Recommended)
		}
		if v.CurrentOr(-1) != 3.0 {
			t.Errorf("Expected %s baseline preserved at 3.0, got %v", id, v.CurrentOr(-1))
		}
	}
}

func promotionConfig() Config {
	return Config{
		Variables: map[string]VariableConfig{
			"raw":      {Type: VarTypeInformative},
			"setpoint": {Type: VarTypeCalculated, Threshold: ptr(2.0)},
			"echo":     {Type: VarTypeCalculated},
		},
		Skills: map[string]SkillConfig{
			"derive_setpoint": {
				Class:   string(KindMathFunction),
				Formula: "raw_current * 2.0",
				Inputs:  []string{"raw"},
				Outputs: []string{"setpoint"},
			},
			"read_baseline": {
				Class:   string(KindMathFunction),
				Formula: "setpoint_current",
				Inputs:  []string{"setpoint"},
				Outputs: []string{"echo"},
			},
		},
		Tasks: []TaskConfig{
			{Name: "PreCalculateVariables", SkillSequence: []string{"derive_setpoint"}},
			{Name: "Report", SkillSequence: []string{"read_baseline"}},
		},
		PreCalculationTask: "PreCalculateVariables",
	}
}

func TestStrategy_PromotionAfterPreCalculationTask(t *testing.T) {
	s, err := New(context.Background(), promotionConfig(), testDeps())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	dc, err := s.RunCycle(context.Background(), map[string]float64{"raw": 21.0})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	setpoint, _ := dc.Variable("setpoint")
	if setpoint.CurrentOr(-1) != 42.0 {
		t.Errorf("Expected setpoint promoted to baseline 42.0, got %v", setpoint.CurrentOr(-1))
	}

	// read_baseline ran after promotion, so it observed the new baseline.
	echo, _ := dc.Variable("echo")
	if echo.DOFOr(-1) != 42.0 {
		t.Errorf("Expected post-promotion task to read 42.0, got %v", echo.DOFOr(-1))
	}
}

func TestStrategy_NoPromotionWithoutPreCalculationTask(t *testing.T) {
	cfg := promotionConfig()
	cfg.PreCalculationTask = ""

	s, err := New(context.Background(), cfg, testDeps())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	dc, err := s.RunCycle(context.Background(), map[string]float64{"raw": 21.0})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// The default-populated baseline stays 0.0; only the working value moved.
	setpoint, _ := dc.Variable("setpoint")
	if setpoint.CurrentOr(-1) != 0.0 {
		t.Errorf("Expected baseline untouched at 0.0, got %v", setpoint.CurrentOr(-1))
	}
	if setpoint.DOFOr(-1) != 42.0 {
		t.Errorf("Expected working value 42.0, got %v", setpoint.DOFOr(-1))
	}
}

func TestStrategy_OptimizableExcludesPreCalculationInputs(t *testing.T) {
	cfg := Config{
		Variables: map[string]VariableConfig{
			"consumed": {Type: VarTypeOperative, Threshold: ptr(1.0)},
			"free":     {Type: VarTypeOperative, Threshold: ptr(1.0)},
			"derived":  {Type: VarTypeCalculated},
			"info":     {Type: VarTypeInformative},
		},
		Skills: map[string]SkillConfig{
			"derive": {
				Class:   string(KindMathFunction),
				Formula: "consumed_current + info_current",
				Inputs:  []string{"consumed", "info"},
				Outputs: []string{"derived"},
			},
			"precalc": {
				Class:         string(KindComposition),
				SkillSequence: []string{"derive"},
			},
		},
		Tasks: []TaskConfig{
			{Name: "PreCalculateVariables", SkillSequence: []string{"precalc"}},
		},
		PreCalculationTask: "PreCalculateVariables",
	}

	s, err := New(context.Background(), cfg, testDeps())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// "consumed" is reached through the composition, so it is frozen even
	// though the task never names the inner skill directly.
	got := s.Optimizable()
	want := []string{"derived", "free"}
	if len(got) != len(want) {
		t.Fatalf("Expected optimizable %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected optimizable %v, got %v", want, got)
		}
	}
}

func TestStrategy_MissingInputsListedTogether(t *testing.T) {
	cfg := promotionConfig()
	cfg.Variables["extra"] = VariableConfig{Type: VarTypeOperative}
	s, err := New(context.Background(), cfg, testDeps())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	_, err = s.RunCycle(context.Background(), map[string]float64{})
	if err == nil {
		t.Fatal("Expected missing-input error")
	}
	if !IsInput(err) {
		t.Fatalf("Expected input error class, got: %v", err)
	}

	missing := MissingVariables(err)
	sort.Strings(missing)
	want := []string{"extra", "raw"}
	if len(missing) != len(want) {
		t.Fatalf("Expected missing %v, got %v", want, missing)
	}
	for i := range want {
		if missing[i] != want[i] {
			t.Errorf("Expected missing %v, got %v", want, missing)
		}
	}
}

func TestStrategy_BuildValidation(t *testing.T) {
	base := promotionConfig()

	t.Run("unknown skill class", func(t *testing.T) {
		cfg := promotionConfig()
		cfg.Skills["bad"] = SkillConfig{Class: "TimeTravel"}
		if _, err := New(context.Background(), cfg, testDeps()); err == nil || !IsConfig(err) {
			t.Errorf("Expected config error, got: %v", err)
		}
	})

	t.Run("undeclared variable", func(t *testing.T) {
		cfg := promotionConfig()
		cfg.Skills["bad"] = SkillConfig{
			Class:   string(KindMathFunction),
			Formula: "1 + 1",
			Inputs:  []string{"ghost"},
			Outputs: []string{"echo"},
		}
		if _, err := New(context.Background(), cfg, testDeps()); err == nil || !IsConfig(err) {
			t.Errorf("Expected config error, got: %v", err)
		}
	})

	t.Run("unknown task skill", func(t *testing.T) {
		cfg := promotionConfig()
		cfg.Tasks = append(cfg.Tasks, TaskConfig{Name: "Extra", SkillSequence: []string{"ghost"}})
		if _, err := New(context.Background(), cfg, testDeps()); err == nil || !IsConfig(err) {
			t.Errorf("Expected config error, got: %v", err)
		}
	})

	t.Run("pre-calculation task not in list", func(t *testing.T) {
		cfg := promotionConfig()
		cfg.PreCalculationTask = "NoSuchTask"
		if _, err := New(context.Background(), cfg, testDeps()); err == nil || !IsConfig(err) {
			t.Errorf("Expected config error, got: %v", err)
		}
	})

	t.Run("inference model without artifact store", func(t *testing.T) {
		cfg := promotionConfig()
		cfg.Skills["model"] = SkillConfig{
			Class:      string(KindInferenceModel),
			ModelPath:  "m.json",
			ScalerPath: "s.json",
			Outputs:    []string{"echo"},
		}
		if _, err := New(context.Background(), cfg, testDeps()); err == nil || !IsConfig(err) {
			t.Errorf("Expected config error, got: %v", err)
		}
	})

	// The unmodified base config still builds.
	if _, err := New(context.Background(), base, testDeps()); err != nil {
		t.Errorf("Expected base config to build, got: %v", err)
	}
}

func TestStrategy_MetricsObserved(t *testing.T) {
	metrics := &countingMetrics{}
	deps := testDeps()
	deps.Metrics = metrics

	s, err := New(context.Background(), promotionConfig(), deps)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := s.RunCycle(context.Background(), map[string]float64{"raw": 1.0}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if metrics.skills != 2 {
		t.Errorf("Expected 2 skill observations, got %d", metrics.skills)
	}
	if metrics.cycles != 1 {
		t.Errorf("Expected 1 cycle observation, got %d", metrics.cycles)
	}
}

func TestStrategy_CancelledContextAbortsCycle(t *testing.T) {
	s, err := New(context.Background(), promotionConfig(), testDeps())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.RunCycle(ctx, map[string]float64{"raw": 1.0}); err == nil {
		t.Fatal("Expected cancelled context to abort the cycle")
	}
}
