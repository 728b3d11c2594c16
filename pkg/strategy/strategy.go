package strategy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/optikiln/optikiln/pkg/artifacts"
)

// Metrics receives execution observations from a running strategy. The
// telemetry package provides a Prometheus-backed implementation; a nil
// Metrics in Deps observes nothing.
type Metrics interface {
	// SkillExecuted records one top-level skill execution.
	SkillExecuted(name string, kind Kind, duration time.Duration, err error)

	// CycleCompleted records one full cycle.
	CycleCompleted(duration time.Duration, err error)
}

// nopMetrics discards all observations.
type nopMetrics struct{}

func (nopMetrics) SkillExecuted(string, Kind, time.Duration, error) {}
func (nopMetrics) CycleCompleted(time.Duration, error)              {}

// Deps carries the collaborators a strategy needs.
type Deps struct {
	// Artifacts supplies inference model weights, scalers, and metadata.
	Artifacts artifacts.Store

	// Logger is the parent logger; skills derive child loggers from it.
	Logger zerolog.Logger

	// Metrics receives execution observations. Optional.
	Metrics Metrics
}

// task is a validated execution phase.
type task struct {
	name   string
	skills []Skill
}

// Strategy is a fully built, validated strategy: the variable catalogue, the
// instantiated skill registry, and the ordered task list. A Strategy is
// immutable after construction; per-cycle state lives in the DataContext
// each RunCycle creates and returns.
type Strategy struct {
	cfg         Config
	skills      map[string]Skill
	tasks       []task
	preCalcTask string
	optimizable map[string]bool
	logger      zerolog.Logger
	metrics     Metrics
}

// New builds a strategy from its configuration. Construction is two-pass:
// every skill is instantiated first, then skills holding named references
// (compositions, optimizations) are resolved against the full registry.
// Configuration problems surface here, never mid-cycle.
func New(ctx context.Context, cfg Config, deps Deps) (*Strategy, error) {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	s := &Strategy{
		cfg:         cfg,
		skills:      make(map[string]Skill, len(cfg.Skills)),
		preCalcTask: cfg.PreCalculationTask,
		logger:      deps.Logger.With().Str("component", "strategy").Logger(),
		metrics:     metrics,
	}

	for name, sc := range cfg.Skills {
		skill, err := s.buildSkill(ctx, name, sc, deps)
		if err != nil {
			return nil, err
		}
		if err := s.checkVariableRefs(skill); err != nil {
			return nil, err
		}
		s.skills[name] = skill
	}

	for _, skill := range s.skills {
		if r, ok := skill.(resolver); ok {
			if err := r.resolve(s.skills); err != nil {
				return nil, err
			}
		}
	}

	if err := s.buildTasks(); err != nil {
		return nil, err
	}
	s.computeOptimizable()
	for _, skill := range s.skills {
		if o, ok := skill.(*OptimizationSkill); ok {
			o.bindOptimizable(s.optimizable)
		}
	}

	s.logger.Info().
		Int("variables", len(cfg.Variables)).
		Int("skills", len(s.skills)).
		Int("tasks", len(s.tasks)).
		Int("optimizable", len(s.optimizable)).
		Msg("strategy built")
	return s, nil
}

// buildSkill dispatches construction on the configured class.
func (s *Strategy) buildSkill(ctx context.Context, name string, sc SkillConfig, deps Deps) (Skill, error) {
	kind := Kind(sc.Class)
	if !knownKinds[kind] {
		return nil, NewConfigError(fmt.Sprintf("unknown skill class %q", sc.Class), nil).WithSkill(name)
	}
	switch kind {
	case KindMathFunction:
		return NewMathFunction(name, sc, deps.Logger)
	case KindConstraint:
		return NewConstraint(name, sc, deps.Logger)
	case KindInferenceModel:
		if deps.Artifacts == nil {
			return nil, NewConfigError("inference model requires an artifact store", nil).WithSkill(name)
		}
		return NewInferenceModel(ctx, name, sc, deps.Artifacts, deps.Logger)
	case KindComposition:
		return NewCompositionSkill(name, sc, deps.Logger)
	default:
		return NewOptimizationSkill(name, sc, deps.Logger)
	}
}

// checkVariableRefs verifies every variable a skill names is declared.
func (s *Strategy) checkVariableRefs(skill Skill) error {
	for _, id := range append(append([]string{}, skill.Inputs()...), skill.Outputs()...) {
		if _, ok := s.cfg.Variables[id]; !ok {
			return NewConfigError(fmt.Sprintf("references undeclared variable %q", id), nil).
				WithSkill(skill.Name()).WithVariable(id)
		}
	}
	if o, ok := skill.(*OptimizationSkill); ok {
		if _, declared := s.cfg.Variables[o.costVariable]; !declared {
			return NewConfigError(fmt.Sprintf("references undeclared cost variable %q", o.costVariable), nil).
				WithSkill(skill.Name()).WithVariable(o.costVariable)
		}
	}
	return nil
}

// buildTasks resolves the task list against the skill registry and verifies
// the promotion task exists when configured.
func (s *Strategy) buildTasks() error {
	s.tasks = make([]task, 0, len(s.cfg.Tasks))
	found := s.preCalcTask == ""
	for _, tc := range s.cfg.Tasks {
		t := task{name: tc.Name}
		for _, name := range tc.SkillSequence {
			skill, ok := s.skills[name]
			if !ok {
				return NewConfigError(fmt.Sprintf("task %q references unknown skill %q", tc.Name, name), nil)
			}
			t.skills = append(t.skills, skill)
		}
		if tc.Name == s.preCalcTask {
			found = true
		}
		s.tasks = append(s.tasks, t)
	}
	if !found {
		return NewConfigError(fmt.Sprintf("pre-calculation task %q is not in the task list", s.preCalcTask), nil)
	}
	return nil
}

// computeOptimizable derives the set of variables the optimizer may move:
// every calculated variable plus every operative variable that is not
// consumed during pre-calculation. Inputs to the pre-calculation phase are
// frozen because moving them would invalidate the promoted baselines.
func (s *Strategy) computeOptimizable() {
	fixed := make(map[string]bool)
	if s.preCalcTask != "" {
		for _, t := range s.tasks {
			if t.name != s.preCalcTask {
				continue
			}
			for _, skill := range t.skills {
				s.collectInputs(skill, fixed, make(map[string]bool))
			}
		}
	}

	s.optimizable = make(map[string]bool)
	for id, vc := range s.cfg.Variables {
		switch vc.Type {
		case VarTypeCalculated:
			s.optimizable[id] = true
		case VarTypeOperative:
			if !fixed[id] {
				s.optimizable[id] = true
			}
		}
	}
}

// collectInputs gathers a skill's input ids, recursing through compositions
// so indirectly sequenced skills also freeze their inputs.
func (s *Strategy) collectInputs(skill Skill, into map[string]bool, seen map[string]bool) {
	if seen[skill.Name()] {
		return
	}
	seen[skill.Name()] = true
	for _, id := range skill.Inputs() {
		into[id] = true
	}
	if c, ok := skill.(*CompositionSkill); ok {
		for _, member := range c.Sequence() {
			s.collectInputs(member, into, seen)
		}
	}
}

// Optimizable returns the sorted ids of variables the optimizer may move.
func (s *Strategy) Optimizable() []string {
	ids := make([]string, 0, len(s.optimizable))
	for id := range s.optimizable {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// VariableIDs returns the sorted ids of variables declared with the given
// type.
func (s *Strategy) VariableIDs(t VarType) []string {
	var ids []string
	for id, vc := range s.cfg.Variables {
		if vc.Type == t {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// RequiredInputs returns the sorted ids of externally supplied variables a
// cycle cannot run without.
func (s *Strategy) RequiredInputs() []string {
	var ids []string
	for id, vc := range s.cfg.Variables {
		if vc.Type == VarTypeOperative || vc.Type == VarTypeInformative {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// RunCycle executes one full strategy cycle against a snapshot of live data
// and returns the resulting context. Every externally supplied variable must
// be present in data; absent ids are reported together in a single input
// error before any skill runs. After the pre-calculation task completes,
// calculated variables are promoted: their working values become the frozen
// baselines the optimizer searches around.
func (s *Strategy) RunCycle(ctx context.Context, data map[string]float64) (*DataContext, error) {
	start := time.Now()
	dc, err := s.runCycle(ctx, data)
	s.metrics.CycleCompleted(time.Since(start), err)
	return dc, err
}

func (s *Strategy) runCycle(ctx context.Context, data map[string]float64) (*DataContext, error) {
	var missing []string
	for _, id := range s.RequiredInputs() {
		if _, ok := data[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, NewInputError(missing)
	}

	dc := NewDataContext(s.cfg.Variables)
	dc.PopulateInitialData(data)

	for _, t := range s.tasks {
		tlog := s.logger.With().Str("task", t.name).Logger()
		tlog.Debug().Int("skills", len(t.skills)).Msg("task started")
		for _, skill := range t.skills {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			skillStart := time.Now()
			err := skill.Execute(ctx, dc)
			s.metrics.SkillExecuted(skill.Name(), skill.Kind(), time.Since(skillStart), err)
			if err != nil {
				tlog.Error().Err(err).Str("skill", skill.Name()).Msg("skill failed")
				return nil, err
			}
		}
		if t.name == s.preCalcTask && s.preCalcTask != "" {
			s.promote(dc)
			tlog.Debug().Msg("calculated variables promoted")
		}
	}
	return dc, nil
}

// promote freezes each calculated variable's working value as its baseline.
// From this point on the optimizer treats the value as the cycle's operating
// point and searches the threshold band around it.
func (s *Strategy) promote(dc *DataContext) {
	for _, v := range dc.Variables() {
		if v.Type == VarTypeCalculated {
			v.Current = ptr(v.DOFOr(0.0))
		}
	}
}
