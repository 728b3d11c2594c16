package service

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/optikiln/optikiln/pkg/policy"
	"github.com/optikiln/optikiln/pkg/stores"
	"github.com/optikiln/optikiln/pkg/strategy"
)

// Report is the outcome of one optimization cycle.
type Report struct {
	// Cycle is the cycle number.
	Cycle uint64 `json:"cycle"`

	// Duration is the wall-clock cycle duration.
	Duration time.Duration `json:"duration"`

	// Recommendations is the post-processed result set, one row per
	// optimizable variable that received a recommendation.
	Recommendations []stores.Recommendation `json:"recommendations"`

	// Blocked is true when guardrails prevented persistence.
	Blocked bool `json:"blocked"`

	// Violations lists the guardrail findings, if any.
	Violations []policy.Violation `json:"violations,omitempty"`
}

// buildRecommendations extracts the persisted result rows from a completed
// cycle context: the recommended value, the baseline it moves from, and the
// delta between them, for every optimizable variable.
func buildRecommendations(dc *strategy.DataContext, optimizable []string, cycle uint64, at time.Time) []stores.Recommendation {
	sorted := append([]string(nil), optimizable...)
	sort.Strings(sorted)

	recs := make([]stores.Recommendation, 0, len(sorted))
	for _, id := range sorted {
		v, err := dc.Variable(id)
		if err != nil || v.Recommended == nil {
			continue
		}
		current := v.CurrentOr(0.0)
		recs = append(recs, stores.Recommendation{
			Cycle:       cycle,
			VariableID:  id,
			Current:     current,
			Recommended: *v.Recommended,
			Delta:       *v.Recommended - current,
			CreatedAt:   at,
		})
	}
	return recs
}

// nonFiniteViolations rejects rows carrying NaN or infinite values. These
// never reach the policy engine: rego input is JSON, which cannot encode
// them, and a non-finite setpoint must not be persisted regardless of
// policy configuration.
func nonFiniteViolations(recs []stores.Recommendation) []policy.Violation {
	var violations []policy.Violation
	for _, r := range recs {
		for _, v := range []float64{r.Current, r.Recommended, r.Delta} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				violations = append(violations, policy.Violation{
					Policy:   "finite-values",
					Message:  fmt.Sprintf("recommendation for %s is not a finite number", r.VariableID),
					Severity: policy.SeverityError,
					Variable: r.VariableID,
				})
				break
			}
		}
	}
	return violations
}

// policyInput converts a result set into the document guardrails evaluate,
// attaching each variable's threshold from the cycle context.
func policyInput(dc *strategy.DataContext, recs []stores.Recommendation, cycle uint64) policy.Input {
	input := policy.Input{Cycle: cycle}
	for _, r := range recs {
		threshold := 0.0
		if v, err := dc.Variable(r.VariableID); err == nil {
			threshold = v.ThresholdOr(0.0)
		}
		input.Recommendations = append(input.Recommendations, policy.RecommendationInput{
			VariableID:  r.VariableID,
			Current:     r.Current,
			Recommended: r.Recommended,
			Delta:       r.Delta,
			Threshold:   threshold,
		})
	}
	return input
}
