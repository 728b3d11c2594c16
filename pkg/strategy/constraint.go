package strategy

import (
	"context"
	"math"

	"github.com/rs/zerolog"
)

// Constraint maps one input variable's DOF value to a score in [0, 1] and
// writes it to its single output variable's DOF slot. A value inside the
// operating band scores 1.0; outside the physical band it scores 0.0; between
// the two it ramps linearly.
type Constraint struct {
	baseSkill
	varMin float64
	varMax float64
	opMin  float64
	opMax  float64
	logger zerolog.Logger
}

// NewConstraint creates a Constraint skill from its configuration. The hard
// physical bounds default to ±Inf; the soft operating bounds default to the
// corresponding hard bound.
func NewConstraint(name string, cfg SkillConfig, logger zerolog.Logger) (*Constraint, error) {
	if len(cfg.Inputs) != 1 {
		return nil, NewConfigError("constraint requires exactly one input variable", nil).WithSkill(name)
	}
	if len(cfg.Outputs) != 1 {
		return nil, NewConfigError("constraint requires exactly one output variable", nil).WithSkill(name)
	}
	c := &Constraint{
		baseSkill: baseSkill{name: name, inputs: cfg.Inputs, outputs: cfg.Outputs},
		varMin:    math.Inf(-1),
		varMax:    math.Inf(1),
		logger:    logger.With().Str("skill", name).Logger(),
	}
	if cfg.VarMin != nil {
		c.varMin = *cfg.VarMin
	}
	if cfg.VarMax != nil {
		c.varMax = *cfg.VarMax
	}
	c.opMin = c.varMin
	c.opMax = c.varMax
	if cfg.OpMin != nil {
		c.opMin = *cfg.OpMin
	}
	if cfg.OpMax != nil {
		c.opMax = *cfg.OpMax
	}
	return c, nil
}

// Kind returns KindConstraint.
func (c *Constraint) Kind() Kind { return KindConstraint }

// Execute scores the input variable and writes the score to the output
// variable's DOF value. An unset input reads as 0.0 with a warning.
func (c *Constraint) Execute(_ context.Context, dc *DataContext) error {
	in, err := dc.Variable(c.inputs[0])
	if err != nil {
		return err
	}
	if in.DOF == nil {
		c.logger.Warn().Str("variable", in.ID).Msg("constraint input has unset dof value, reading as 0.0")
	}
	score := c.score(in.DOFOr(0.0))

	out, err := dc.Variable(c.outputs[0])
	if err != nil {
		return err
	}
	out.SetDOF(score)
	return nil
}

// score is the piecewise constraint function. The checks are order-sensitive:
// when an operating bound coincides with its physical bound there is no slack
// to ramp over, so those cases must short-circuit to 0.0 before the general
// ramps to avoid a zero division.
func (c *Constraint) score(value float64) float64 {
	if c.opMin == c.varMin && value < c.opMin {
		return 0.0
	}
	if c.opMax == c.varMax && value > c.opMax {
		return 0.0
	}
	switch {
	case c.opMin <= value && value <= c.opMax:
		return 1.0
	case value < c.opMin && c.opMin != c.varMin:
		return (value - c.varMin) / (c.opMin - c.varMin)
	case value > c.opMax && c.opMax != c.varMax:
		return (c.varMax - value) / (c.varMax - c.opMax)
	default:
		// Degenerate bound configurations fall through here.
		return 0.0
	}
}
