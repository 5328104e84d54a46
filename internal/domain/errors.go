// Package domain defines error types for migration operations.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrResolution is matched by every name-resolution failure. A resolution
// error aborts the whole run.
var ErrResolution = errors.New("resolution failed")

// OperationError is a custom error type for operation failures
type OperationError struct {
	Operation string // The operation that failed (e.g., "get-definition")
	Message   string // Human-readable error message
	Cause     error  // Underlying error
}

func (e *OperationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s failed: %s (%v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// NotFoundError indicates a workspace or item name could not be resolved
type NotFoundError struct {
	Type       string // "workspace" or "item"
	Identifier string
	Reason     string
}

func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s not found: %s (%s)", e.Type, e.Identifier, e.Reason)
	}
	return fmt.Sprintf("%s not found: %s", e.Type, e.Identifier)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrResolution
}

// AmbiguousOrMissingTargetError indicates a storage-target name did not match
// exactly one item of the expected type
type AmbiguousOrMissingTargetError struct {
	Name        string
	Type        ItemType
	WorkspaceID string
	Matches     int
}

func (e *AmbiguousOrMissingTargetError) Error() string {
	if e.Matches == 0 {
		return fmt.Sprintf("no %s named %q in workspace %s", e.Type, e.Name, e.WorkspaceID)
	}
	return fmt.Sprintf("%d items of type %s named %q in workspace %s, expected exactly one", e.Matches, e.Type, e.Name, e.WorkspaceID)
}

func (e *AmbiguousOrMissingTargetError) Is(target error) bool {
	return target == ErrResolution
}

// StatusError indicates the catalog answered with an unexpected status code
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Operation, e.StatusCode)
	}
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Operation, e.StatusCode, body)
}

// ValidationError indicates input validation failed
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// ConflictError indicates another run already holds a resource
type ConflictError struct {
	Type       string // "run-lock"
	Identifier string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already held: %s", e.Type, e.Identifier)
}

// NewOperationError creates a new OperationError
func NewOperationError(operation, message string, cause error) *OperationError {
	return &OperationError{
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(typ, identifier, reason string) *NotFoundError {
	return &NotFoundError{
		Type:       typ,
		Identifier: identifier,
		Reason:     reason,
	}
}

// NewAmbiguousOrMissingTargetError creates a new AmbiguousOrMissingTargetError
func NewAmbiguousOrMissingTargetError(name string, typ ItemType, workspaceID string, matches int) *AmbiguousOrMissingTargetError {
	return &AmbiguousOrMissingTargetError{
		Name:        name,
		Type:        typ,
		WorkspaceID: workspaceID,
		Matches:     matches,
	}
}

// NewStatusError creates a new StatusError
func NewStatusError(operation string, statusCode int, body []byte) *StatusError {
	return &StatusError{
		Operation:  operation,
		StatusCode: statusCode,
		Body:       string(body),
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewConflictError creates a new ConflictError
func NewConflictError(typ, identifier string) *ConflictError {
	return &ConflictError{
		Type:       typ,
		Identifier: identifier,
	}
}
