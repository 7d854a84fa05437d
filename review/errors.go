package review

import (
	"errors"
	"fmt"
)

// ErrSubmissionNotFound is returned when a submission ID is unknown.
var ErrSubmissionNotFound = errors.New("submission not found")

// ValidationError indicates a malformed field in a payload or request.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// OutOfRangeError indicates an index or position argument outside its valid
// bounds. The operation is rejected and state is unchanged.
type OutOfRangeError struct {
	// What names the argument, e.g. "from_position" or "item_index".
	What string

	// Value is the rejected argument.
	Value int

	// Min and Max bound the valid range, inclusive.
	Min, Max int
}

// Error implements the error interface.
func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [%d, %d]", e.What, e.Value, e.Min, e.Max)
}

// NoOpError indicates a request whose arguments would have no effect, such as
// repositioning a page onto its current slot. Treated as a user input mistake
// rather than silently succeeding.
type NoOpError struct {
	Op     string
	Detail string
}

// Error implements the error interface.
func (e *NoOpError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s would have no effect", e.Op)
	}
	return fmt.Sprintf("%s would have no effect: %s", e.Op, e.Detail)
}

// IllegalTransitionError indicates a phase status transition outside the
// legal set, most commonly approving a phase that is not completed.
type IllegalTransitionError struct {
	Phase Phase
	From  PhaseStatus
	To    PhaseStatus
}

// Error implements the error interface.
func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition: %s → %s", e.Phase, e.From, e.To)
}

// PersistenceError indicates the downstream write-through failed. The
// triggering in-memory change is not considered final; the caller retries the
// whole operation or discards.
type PersistenceError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// CapacityExceededError reports that a batch manifest grouped to more
// candidates than the configured cap. Ingestion proceeds for the accepted
// subset; Excluded counts the candidates left out.
type CapacityExceededError struct {
	Cap      int
	Excluded int
}

// Error implements the error interface.
func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("batch exceeds candidate cap %d: %d excluded", e.Cap, e.Excluded)
}
