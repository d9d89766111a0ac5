// Package apperrors defines the typed error taxonomy shared by the service
// layer and the HTTP response mapper.
package apperrors

import (
	"errors"
	"fmt"
)

// AuthorizationError means the caller's role or ownership does not permit the
// operation. Surfaced to the caller, never retried automatically.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return "not authorized: " + e.Reason
}

// NotAuthorized builds an AuthorizationError.
func NotAuthorized(format string, args ...any) error {
	return &AuthorizationError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidStateError means the appointment or consent sub-state machine is not
// in a state compatible with the requested operation. The reason carries the
// state-specific message the client should render.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string {
	return e.Reason
}

// InvalidState builds an InvalidStateError.
func InvalidState(format string, args ...any) error {
	return &InvalidStateError{Reason: fmt.Sprintf(format, args...)}
}

// InvalidTokenError means a presented consent token did not match or has
// expired. The message is deliberately generic: it must not reveal whether a
// token exists for the appointment.
type InvalidTokenError struct{}

func (e *InvalidTokenError) Error() string {
	return "invalid or expired chat history access token"
}

// InvalidToken builds an InvalidTokenError.
func InvalidToken() error {
	return &InvalidTokenError{}
}

// NotFoundError means the appointment or a referenced entity is absent.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// NotFound builds a NotFoundError for the named resource.
func NotFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

// UpstreamServiceError wraps a failure of an external collaborator (mail,
// calendar, decryption). For state-mutating flows the transition still
// commits and the error is only logged.
type UpstreamServiceError struct {
	Op  string
	Err error
}

func (e *UpstreamServiceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *UpstreamServiceError) Unwrap() error {
	return e.Err
}

// Upstream wraps err as an UpstreamServiceError for the named operation.
func Upstream(op string, err error) error {
	return &UpstreamServiceError{Op: op, Err: err}
}

// IsAuthorization reports whether err is an AuthorizationError.
func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}

// IsInvalidToken reports whether err is an InvalidTokenError.
func IsInvalidToken(err error) bool {
	var target *InvalidTokenError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
