package domain

import "fmt"

// Error types for consistent error handling across the backend.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
	Err       error
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

func (e *ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates bad local input. It is always raised before any
// external call is attempted. Message is user-facing.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrExtraction indicates the language model returned unusable output.
type ErrExtraction struct {
	Reason string
	Raw    string
}

func (e *ErrExtraction) Error() string {
	return fmt.Sprintf("extraction failed: %s", e.Reason)
}

// ErrPersistence indicates a read or write against the backing store failed.
type ErrPersistence struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *ErrPersistence) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("persistence %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("persistence %s %s failed: %v", e.Op, e.Kind, e.Err)
}

func (e *ErrPersistence) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates the user lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates a resource already exists (e.g. e-mail in use).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrAuthProvider carries a raw error code returned by the identity provider.
type ErrAuthProvider struct {
	Code string
}

func (e *ErrAuthProvider) Error() string {
	return fmt.Sprintf("identity provider error: %s", e.Code)
}
