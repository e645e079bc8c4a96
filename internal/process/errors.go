package process

import "errors"

// Error kinds for engine operations. Every failed precondition wraps exactly
// one of these so boundary layers can branch with errors.Is and map the kind
// to a transport status.
var (
	// ErrNotFound marks references to entities that do not exist or were
	// concurrently deleted.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyClosed marks operations against a terminal lifecycle state:
	// a closed process, a closed task, or a closed assignment.
	ErrAlreadyClosed = errors.New("already closed")
	// ErrAlreadyExists marks duplicate creation, such as a second assignment
	// for the same assignee on one task.
	ErrAlreadyExists = errors.New("already exists")
	// ErrUnsatisfiedPrecondition marks structural rule violations, such as
	// closing an assignment while predecessor tasks are still open.
	ErrUnsatisfiedPrecondition = errors.New("unsatisfied precondition")
	// ErrInvalidInput marks malformed domain data rejected before any
	// persistence attempt.
	ErrInvalidInput = errors.New("invalid input")
)
