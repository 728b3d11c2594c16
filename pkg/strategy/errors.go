// Package strategy implements the optimization strategy engine: the typed
// per-cycle variable store (DataContext), the five skill kinds that operate on
// it, and the orchestrator that executes the configured task list and applies
// the variable promotion rules between optimization phases.
package strategy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of an engine error. The class
// decides whether a condition aborts the cycle or is absorbed at the skill
// boundary.
type ErrorClass string

const (
	// ErrorClassConfig indicates an invalid strategy configuration.
	// Raised at build time, before any cycle runs.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassInput indicates required live data is missing.
	// The cycle is aborted before any skill executes.
	ErrorClassInput ErrorClass = "input"

	// ErrorClassEvaluation indicates a recoverable evaluation failure
	// (bad formula, null value mid-graph). Skills absorb these and
	// substitute a default; they never propagate out of Execute.
	ErrorClassEvaluation ErrorClass = "evaluation"

	// ErrorClassSolver indicates the numerical optimizer failed to
	// converge. Fatal to the cycle, no partial results are committed.
	ErrorClassSolver ErrorClass = "solver"

	// ErrorClassCollaborator indicates an external collaborator (artifact
	// store, data source) is unavailable. Fatal to the cycle; the service
	// layer decides whether to retry on the next interval.
	ErrorClassCollaborator ErrorClass = "collaborator"
)

// Error represents a classified strategy engine error with context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Skill is the skill name that produced the error, if applicable.
	Skill string `json:"skill,omitempty"`

	// Variable is the variable id involved, if applicable.
	Variable string `json:"variable,omitempty"`

	// Missing lists every absent required variable for input errors.
	Missing []string `json:"missing,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)
	if e.Skill != "" {
		fmt.Fprintf(&b, " (skill=%s)", e.Skill)
	}
	if e.Variable != "" {
		fmt.Fprintf(&b, " (variable=%s)", e.Variable)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.Missing, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, err error) *Error {
	return &Error{Class: ErrorClassConfig, Message: message, Err: err}
}

// NewInputError creates a new missing-input error listing every absent
// required variable id.
func NewInputError(missing []string) *Error {
	return &Error{
		Class:   ErrorClassInput,
		Message: "required variables absent from live data",
		Missing: missing,
	}
}

// NewEvaluationError creates a new recoverable evaluation error.
func NewEvaluationError(message string, err error) *Error {
	return &Error{Class: ErrorClassEvaluation, Message: message, Err: err}
}

// NewSolverError creates a new solver non-convergence error.
func NewSolverError(message string, err error) *Error {
	return &Error{Class: ErrorClassSolver, Message: message, Err: err}
}

// NewCollaboratorError creates a new collaborator unavailability error.
func NewCollaboratorError(message string, err error) *Error {
	return &Error{Class: ErrorClassCollaborator, Message: message, Err: err}
}

// WithSkill adds skill context to an error.
func (e *Error) WithSkill(name string) *Error {
	e.Skill = name
	return e
}

// WithVariable adds variable context to an error.
func (e *Error) WithVariable(id string) *Error {
	e.Variable = id
	return e
}

// IsConfig returns true if the error is classified as a configuration error.
func IsConfig(err error) bool {
	return classOf(err) == ErrorClassConfig
}

// IsInput returns true if the error is classified as a missing-input error.
func IsInput(err error) bool {
	return classOf(err) == ErrorClassInput
}

// IsSolver returns true if the error is classified as a solver error.
func IsSolver(err error) bool {
	return classOf(err) == ErrorClassSolver
}

// IsCollaborator returns true if the error is classified as a collaborator error.
func IsCollaborator(err error) bool {
	return classOf(err) == ErrorClassCollaborator
}

// IsFatal returns true if the error aborts the cycle. Every class except
// evaluation is fatal; evaluation errors are absorbed at the skill boundary
// and should never reach callers of RunCycle.
func IsFatal(err error) bool {
	c := classOf(err)
	return c != "" && c != ErrorClassEvaluation
}

// MissingVariables returns the absent variable ids carried by a
// missing-input error, or nil for any other error.
func MissingVariables(err error) []string {
	var e *Error
	if errors.As(err, &e) && e.Class == ErrorClassInput {
		return e.Missing
	}
	return nil
}

func classOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}
