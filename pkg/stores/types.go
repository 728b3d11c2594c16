package stores

import "time"

// Sample is one observed value of a plant variable.
type Sample struct {
	// VariableID is the plant variable id.
	VariableID string `json:"variable_id"`

	// Value is the observed value.
	Value float64 `json:"value"`

	// ObservedAt is when the value was recorded.
	ObservedAt time.Time `json:"observed_at"`
}

// Recommendation is one variable's committed optimization result.
type Recommendation struct {
	// Cycle is the cycle number that produced the recommendation.
	Cycle uint64 `json:"cycle"`

	// VariableID is the recommended variable id.
	VariableID string `json:"variable_id"`

	// Current is the baseline the cycle started from.
	Current float64 `json:"current"`

	// Recommended is the value chosen by the optimizer.
	Recommended float64 `json:"recommended"`

	// Delta is the recommended move from the baseline.
	Delta float64 `json:"delta"`

	// CreatedAt is when the recommendation was persisted.
	CreatedAt time.Time `json:"created_at"`
}
