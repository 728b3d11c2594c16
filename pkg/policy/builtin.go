package policy

// BuiltinPolicies returns the guardrails shipped with the service.
func BuiltinPolicies() []Policy {
	return []Policy{
		thresholdBandPolicy(),
		immovableVariablePolicy(),
	}
}

// thresholdBandPolicy rejects recommendations that move a variable further
// from its baseline than its configured threshold allows. The engine bounds
// its search the same way, so a violation here means the configuration and
// the search disagree and the set should not reach operators.
func thresholdBandPolicy() Policy {
	return Policy{
		Name:        "threshold-band",
		Description: "Recommendations must stay within the threshold band around the baseline",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package optikiln.guardrails.threshold

import rego.v1

deny contains violation if {
	some rec in input.recommendations
	rec.threshold > 0
	abs(rec.recommended - rec.current) > rec.threshold + 0.000001
	violation := {
		"message": sprintf("recommendation for %s moves %.4f from baseline, threshold is %.4f", [rec.variable_id, abs(rec.recommended - rec.current), rec.threshold]),
		"severity": "error",
		"variable": rec.variable_id,
	}
}
`,
	}
}

// immovableVariablePolicy rejects any move of a variable whose threshold is
// zero.
func immovableVariablePolicy() Policy {
	return Policy{
		Name:        "immovable-variable",
		Description: "Variables without a threshold must not receive a move",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package optikiln.guardrails.immovable

import rego.v1

deny contains violation if {
	some rec in input.recommendations
	rec.threshold == 0
	rec.delta != 0
	violation := {
		"message": sprintf("variable %s has no threshold but was moved by %.4f", [rec.variable_id, rec.delta]),
		"severity": "error",
		"variable": rec.variable_id,
	}
}
`,
	}
}
