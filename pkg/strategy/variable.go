package strategy

import "fmt"

// VarType classifies a process variable. The type determines the
// default-population policy and whether the variable may enter the
// optimizer's decision set.
type VarType string

const (
	// VarTypeOperative is an externally supplied, optimizable variable.
	VarTypeOperative VarType = "Operative"

	// VarTypeInformative is an externally supplied, read-only variable.
	VarTypeInformative VarType = "Informative"

	// VarTypeCalculated is derived during the pre-calculation phase and
	// promoted to an optimizable baseline afterwards.
	VarTypeCalculated VarType = "Calculated"

	// VarTypeDelta is a change-from-baseline feature consumed by
	// inference models.
	VarTypeDelta VarType = "Delta"

	// VarTypePredicted holds a model prediction.
	VarTypePredicted VarType = "Predicted"

	// VarTypeConstraint holds a soft-constraint score in [0, 1].
	VarTypeConstraint VarType = "Constraint"
)

// graphDerived reports whether variables of this type are always computed by
// the skill graph and therefore default to zero when absent from live data.
func (t VarType) graphDerived() bool {
	switch t {
	case VarTypeDelta, VarTypePredicted, VarTypeConstraint, VarTypeCalculated:
		return true
	}
	return false
}

// Variable is a named, typed value holder with three value slots. Current is
// the per-cycle baseline, DOF is the working value mutated by skill execution
// and the optimizer search, and Recommended is the final chosen value for
// variables the optimizer searched over. All slots are nil until set.
type Variable struct {
	// ID is the unique variable id within a context.
	ID string

	// Type is the variable classification.
	Type VarType

	// Units is the engineering unit label, informational only.
	Units string

	// Threshold is the non-negative half-width used to build optimizer
	// search bounds. Nil means undeclared; an explicit zero means the
	// variable is immovable.
	Threshold *float64

	// Current is the observed or frozen baseline value for this cycle.
	Current *float64

	// DOF is the working value read and overwritten by skills.
	DOF *float64

	// Recommended is the final chosen value for optimized variables.
	Recommended *float64
}

// SetInitialValue seeds all three value slots identically for the start of a
// cycle.
func (v *Variable) SetInitialValue(value float64) {
	v.Current = ptr(value)
	v.DOF = ptr(value)
	v.Recommended = ptr(value)
}

// SetDOF overwrites the working value.
func (v *Variable) SetDOF(value float64) {
	v.DOF = ptr(value)
}

// DOFOr returns the working value, or def if it is unset.
func (v *Variable) DOFOr(def float64) float64 {
	if v.DOF == nil {
		return def
	}
	return *v.DOF
}

// CurrentOr returns the baseline value, or def if it is unset.
func (v *Variable) CurrentOr(def float64) float64 {
	if v.Current == nil {
		return def
	}
	return *v.Current
}

// ThresholdOr returns the threshold, or def if it is undeclared.
func (v *Variable) ThresholdOr(def float64) float64 {
	if v.Threshold == nil {
		return def
	}
	return *v.Threshold
}

// String returns a compact representation for logging.
func (v *Variable) String() string {
	return fmt.Sprintf("Variable(id=%s, current=%s, dof=%s, rec=%s)",
		v.ID, fmtSlot(v.Current), fmtSlot(v.DOF), fmtSlot(v.Recommended))
}

func fmtSlot(p *float64) string {
	if p == nil {
		return "nil"
	}
	return fmt.Sprintf("%.2f", *p)
}

func ptr(v float64) *float64 {
	return &v
}
