package strategy

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/optimize"
)

const (
	// solverTolerance is the absolute objective convergence tolerance.
	solverTolerance = 1e-8

	// solverMaxIterations bounds the search.
	solverMaxIterations = 1000

	// boundsPenaltyWeight scales the quadratic out-of-bounds penalty added
	// to the objective for methods that step outside the box.
	boundsPenaltyWeight = 1e6
)

// OptimizationSkill runs a bounded local search over the optimizable subset
// of its inputs, minimizing the value a cost skill writes to the cost
// variable. On success the optimum is committed to the decision variables'
// DOF and Recommended slots; on failure the search error propagates and the
// Recommended slots keep their pre-search values.
type OptimizationSkill struct {
	baseSkill
	costSkillName string
	costVariable  string
	algorithm     string
	logger        zerolog.Logger

	costSkill   Skill
	optimizable map[string]bool
}

// NewOptimizationSkill creates an OptimizationSkill from its configuration.
// The cost skill name is resolved later; the optimizable variable set is
// bound by the strategy once promotion analysis is done.
func NewOptimizationSkill(name string, cfg SkillConfig, logger zerolog.Logger) (*OptimizationSkill, error) {
	if cfg.CostSkill == "" {
		return nil, NewConfigError("optimization requires a cost skill", nil).WithSkill(name)
	}
	if cfg.CostVariable == "" {
		return nil, NewConfigError("optimization requires a cost variable", nil).WithSkill(name)
	}
	algorithm := cfg.Algorithm
	if algorithm == "" {
		algorithm = "NelderMead"
	}
	if _, err := methodFor(algorithm); err != nil {
		return nil, NewConfigError(err.Error(), nil).WithSkill(name)
	}
	return &OptimizationSkill{
		baseSkill:     baseSkill{name: name, inputs: cfg.Inputs, outputs: cfg.Outputs},
		costSkillName: cfg.CostSkill,
		costVariable:  cfg.CostVariable,
		algorithm:     algorithm,
		logger:        logger.With().Str("skill", name).Logger(),
	}, nil
}

// Kind returns KindOptimization.
func (o *OptimizationSkill) Kind() Kind { return KindOptimization }

// resolve looks up the cost skill in the registry.
func (o *OptimizationSkill) resolve(registry map[string]Skill) error {
	s, ok := registry[o.costSkillName]
	if !ok {
		return NewConfigError(fmt.Sprintf("optimization references unknown cost skill %q", o.costSkillName), nil).WithSkill(o.name)
	}
	o.costSkill = s
	return nil
}

// bindOptimizable records the set of variable ids the search may move.
func (o *OptimizationSkill) bindOptimizable(set map[string]bool) {
	o.optimizable = set
}

// bound is the per-variable search box around the baseline.
type bound struct {
	id  string
	lo  float64
	hi  float64
	x0  float64
	v   *Variable
}

// Execute runs the search and commits the optimum. The decision set is the
// subset of the skill's inputs that is optimizable, in input order.
func (o *OptimizationSkill) Execute(ctx context.Context, dc *DataContext) error {
	if o.costSkill == nil {
		return NewConfigError("optimization executed before skill resolution", nil).WithSkill(o.name)
	}
	bounds, pinned, err := o.decisionBounds(dc)
	if err != nil {
		return err
	}
	if len(bounds) == 0 && len(pinned) == 0 {
		return NewSolverError("no optimizable decision variables", nil).WithSkill(o.name)
	}

	// Pinned variables hold their baseline for every objective evaluation.
	for _, b := range pinned {
		b.v.SetDOF(b.x0)
	}
	if len(bounds) == 0 {
		commitPinned(pinned)
		o.logger.Info().Int("pinned", len(pinned)).Msg("all decision variables pinned, search skipped")
		return nil
	}

	objective, evalErr := o.objective(ctx, dc, bounds)
	problem := optimize.Problem{Func: objective}
	method, _ := methodFor(o.algorithm)
	settings := &optimize.Settings{
		MajorIterations: solverMaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   solverTolerance,
			Iterations: 50,
		},
	}

	x0 := make([]float64, len(bounds))
	for i, b := range bounds {
		x0[i] = b.x0
	}

	result, err := optimize.Minimize(problem, x0, settings, method)
	if *evalErr != nil {
		return *evalErr
	}
	if err != nil {
		return NewSolverError("search failed", err).WithSkill(o.name)
	}
	if err := result.Status.Err(); err != nil {
		return NewSolverError("search did not converge", err).WithSkill(o.name)
	}

	// Re-evaluate at the clamped optimum so the context reflects the
	// committed point, then record the recommendations.
	final := clampPoint(result.X, bounds)
	objective(final)
	if *evalErr != nil {
		return *evalErr
	}
	for i, b := range bounds {
		b.v.SetDOF(final[i])
		b.v.Recommended = ptr(final[i])
	}
	commitPinned(pinned)
	o.logger.Info().Int("variables", len(bounds)).Int("pinned", len(pinned)).
		Float64("cost", result.F).
		Int("evaluations", result.FuncEvaluations).
		Int("iterations", result.MajorIterations).Msg("optimization converged")
	return nil
}

// commitPinned records each pinned variable's baseline as its recommendation.
func commitPinned(pinned []bound) {
	for _, b := range pinned {
		b.v.SetDOF(b.x0)
		b.v.Recommended = ptr(b.x0)
	}
}

// decisionBounds builds the search box. Each decision variable searches the
// threshold-sized interval centered on its baseline; a missing baseline or an
// undeclared threshold falls back to a default with a warning rather than
// aborting. A variable declared with threshold 0 is immovable: it is returned
// in pinned rather than the search set and stays at its baseline.
func (o *OptimizationSkill) decisionBounds(dc *DataContext) (bounds, pinned []bound, err error) {
	for _, id := range o.inputs {
		if !o.optimizable[id] {
			continue
		}
		v, err := dc.Variable(id)
		if err != nil {
			return nil, nil, err
		}
		center := 0.0
		if v.Current == nil {
			o.logger.Warn().Str("variable", id).Msg("decision variable has no baseline, centering bounds on 0")
		} else {
			center = *v.Current
		}
		if v.Threshold != nil && *v.Threshold <= 0 {
			pinned = append(pinned, bound{id: id, lo: center, hi: center, x0: center, v: v})
			continue
		}
		halfWidth := 1.0
		if v.Threshold == nil {
			o.logger.Warn().Str("variable", id).Msg("decision variable has no threshold, using half-width 1")
		} else {
			halfWidth = *v.Threshold
		}
		bounds = append(bounds, bound{
			id: id,
			lo: center - halfWidth,
			hi: center + halfWidth,
			x0: center,
			v:  v,
		})
	}
	return bounds, pinned, nil
}

// objective returns the search objective and a slot that captures the first
// fatal evaluation error. Each call projects the point into the box, writes
// it to the decision variables' DOF slots, runs the cost skill, and reads
// the cost variable. Out-of-box excursions add a quadratic penalty so the
// projected objective still slopes back toward the feasible region.
func (o *OptimizationSkill) objective(ctx context.Context, dc *DataContext, bounds []bound) (func(x []float64) float64, *error) {
	var fatal error
	fn := func(x []float64) float64 {
		if fatal != nil {
			return math.Inf(1)
		}
		penalty := 0.0
		for i, b := range bounds {
			v := x[i]
			if v < b.lo {
				penalty += (b.lo - v) * (b.lo - v)
				v = b.lo
			} else if v > b.hi {
				penalty += (v - b.hi) * (v - b.hi)
				v = b.hi
			}
			b.v.SetDOF(v)
		}
		if err := o.costSkill.Execute(ctx, dc); err != nil {
			fatal = NewSolverError("cost evaluation failed", err).WithSkill(o.name)
			return math.Inf(1)
		}
		cost, err := dc.Variable(o.costVariable)
		if err != nil {
			fatal = err
			return math.Inf(1)
		}
		return cost.DOFOr(0.0) + boundsPenaltyWeight*penalty
	}
	return fn, &fatal
}

// clampPoint projects a point into the search box.
func clampPoint(x []float64, bounds []bound) []float64 {
	out := make([]float64, len(x))
	for i, b := range bounds {
		out[i] = math.Min(math.Max(x[i], b.lo), b.hi)
	}
	return out
}

// methodFor maps an algorithm name to a search method.
func methodFor(name string) (optimize.Method, error) {
	switch name {
	case "NelderMead":
		return &optimize.NelderMead{}, nil
	case "LBFGS":
		return &optimize.LBFGS{}, nil
	case "CG":
		return &optimize.CG{}, nil
	default:
		return nil, fmt.Errorf("unknown optimization algorithm %q", name)
	}
}
