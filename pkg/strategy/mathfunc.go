package strategy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	starlarkmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
)

// MathFunction evaluates a user-supplied scalar expression against the
// current variable state and writes the result to its single output
// variable's DOF slot.
//
// Evaluation happens in a sandboxed Starlark interpreter: no I/O, no
// arbitrary code execution, arithmetic and the math module only. The skill is
// deliberately fail-soft: a malformed formula or evaluator error logs a
// warning and substitutes 0.0 so a single bad formula cannot abort a cycle.
type MathFunction struct {
	baseSkill
	formula string
	logger  zerolog.Logger
}

// NewMathFunction creates a MathFunction skill from its configuration.
func NewMathFunction(name string, cfg SkillConfig, logger zerolog.Logger) (*MathFunction, error) {
	if cfg.Formula == "" {
		return nil, NewConfigError("math function requires a formula", nil).WithSkill(name)
	}
	if len(cfg.Outputs) != 1 {
		return nil, NewConfigError("math function requires exactly one output variable", nil).WithSkill(name)
	}
	return &MathFunction{
		baseSkill: baseSkill{name: name, inputs: cfg.Inputs, outputs: cfg.Outputs},
		formula:   cfg.Formula,
		logger:    logger.With().Str("skill", name).Logger(),
	}, nil
}

// Kind returns KindMathFunction.
func (m *MathFunction) Kind() Kind { return KindMathFunction }

// Execute evaluates the formula and writes the result to the output
// variable's DOF value. Evaluation failures never propagate; the output is
// defaulted to 0.0 instead.
func (m *MathFunction) Execute(_ context.Context, dc *DataContext) error {
	env, err := m.symbols(dc)
	if err != nil {
		return err
	}

	result := 0.0
	value, evalErr := m.eval(env)
	if evalErr != nil {
		m.logger.Warn().Err(evalErr).Str("formula", m.formula).
			Msg("formula evaluation failed, substituting 0.0")
	} else {
		result = value
	}

	out, err := dc.Variable(m.outputs[0])
	if err != nil {
		return err
	}
	out.SetDOF(result)
	return nil
}

// symbols builds the evaluator environment. Each input variable contributes
// {id}_dof and {id}_current (nil slots read as 0.0), {id}_threshold when the
// threshold is nonzero, and the bare {id} as an alias for {id}_dof kept for
// backward compatibility with older strategy documents.
func (m *MathFunction) symbols(dc *DataContext) (starlark.StringDict, error) {
	env := starlark.StringDict{
		"math": starlarkmath.Module,
	}
	for _, id := range m.inputs {
		v, err := dc.Variable(id)
		if err != nil {
			return nil, err
		}
		if v.DOF == nil || v.Current == nil {
			m.logger.Warn().Str("variable", id).Msg("input has unset value slots, reading as 0.0")
		}
		dof := starlark.Float(v.DOFOr(0.0))
		env[id+"_dof"] = dof
		env[id+"_current"] = starlark.Float(v.CurrentOr(0.0))
		if th := v.ThresholdOr(0.0); th != 0.0 {
			env[id+"_threshold"] = starlark.Float(th)
		}
		env[id] = dof
	}
	return env, nil
}

// eval runs the expression in a fresh Starlark thread and coerces the result
// to a float. A None or non-numeric result is an evaluation error handled by
// the caller.
func (m *MathFunction) eval(env starlark.StringDict) (float64, error) {
	thread := &starlark.Thread{
		Name: m.name,
		Print: func(_ *starlark.Thread, _ string) {
			// Suppress print for sandboxing.
		},
	}
	value, err := starlark.Eval(thread, m.name, m.formula, env)
	if err != nil {
		return 0, err
	}
	switch v := value.(type) {
	case starlark.Float:
		return float64(v), nil
	case starlark.Int:
		f, _ := starlark.AsFloat(v)
		return f, nil
	case starlark.Bool:
		if v {
			return 1.0, nil
		}
		return 0.0, nil
	case starlark.NoneType:
		return 0, NewEvaluationError("formula evaluated to None", nil).WithSkill(m.name)
	default:
		return 0, NewEvaluationError(fmt.Sprintf("formula evaluated to non-numeric %s", value.Type()), nil).WithSkill(m.name)
	}
}
