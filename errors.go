package awsiot

import (
	"errors"
	"fmt"
)

// Sentinel errors for request/response operations - check with errors.Is().
var (
	// ErrTimeout is returned when no response arrives before the operation timeout.
	ErrTimeout = errors.New("operation timeout")

	// ErrClientClosed is returned when the client is closed while an operation is pending.
	ErrClientClosed = errors.New("client closed")

	// ErrNotConnected is returned when an operation requires an active connection.
	ErrNotConnected = errors.New("not connected")

	// ErrPublishFailed is returned when the request publish could not be sent.
	ErrPublishFailed = errors.New("publish failed")

	// ErrSubscribeFailed is returned when a response or stream subscription could not be established.
	ErrSubscribeFailed = errors.New("subscribe failed")

	// ErrSubscriptionBudget is returned when a subscription cannot fit in the configured budget.
	ErrSubscriptionBudget = errors.New("subscription budget exhausted")

	// ErrInvalidOptions is returned when request or stream options are malformed.
	ErrInvalidOptions = errors.New("invalid options")
)

// Sentinel errors for response handling - check with errors.Is().
var (
	// ErrPayloadParse is returned when a response payload is not valid JSON for its model.
	ErrPayloadParse = errors.New("payload parse error")

	// ErrInvalidResponsePath is returned when a response arrived on a topic the operation did not expect.
	ErrInvalidResponsePath = errors.New("invalid response path")

	// ErrModeledServiceError is returned when the service answered on a rejected topic.
	ErrModeledServiceError = errors.New("modeled service error")
)

// Sentinel errors for data model issues - check with errors.Is().
var (
	// ErrMissingField is returned when a field required to build a topic is absent.
	ErrMissingField = errors.New("missing required field")

	// ErrUnknownEnumValue is returned when a string does not name any variant of an enum.
	ErrUnknownEnumValue = errors.New("unknown enum value")
)

// MissingFieldError reports which request field was absent.
// Extract with errors.As().
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing required field: " + e.Field
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingField }

// NewMissingFieldError creates a new MissingFieldError.
func NewMissingFieldError(field string) *MissingFieldError {
	return &MissingFieldError{Field: field}
}

// ServiceError is the error result of a service operation.
// It is either modeled (the service rejected the request and the payload
// decoded into E) or unmodeled (transport, timeout or parse failure).
// Extract with errors.As().
type ServiceError[E any] struct {
	err     error
	modeled *E
}

// NewUnmodeledError wraps a transport or protocol failure.
func NewUnmodeledError[E any](err error) *ServiceError[E] {
	return &ServiceError[E]{err: err}
}

// NewModeledError wraps an error payload returned by the service.
func NewModeledError[E any](modeled *E) *ServiceError[E] {
	return &ServiceError[E]{err: ErrModeledServiceError, modeled: modeled}
}

func (e *ServiceError[E]) Error() string {
	if e.modeled != nil {
		if s, ok := any(e.modeled).(fmt.Stringer); ok {
			return "service error: " + s.String()
		}
		return "service error: " + e.err.Error()
	}
	return "service error: " + e.err.Error()
}

func (e *ServiceError[E]) Unwrap() error { return e.err }

// HasModeledError reports whether the service returned a modeled error payload.
func (e *ServiceError[E]) HasModeledError() bool {
	return e.modeled != nil
}

// ModeledError returns the decoded error payload, or nil for unmodeled errors.
func (e *ServiceError[E]) ModeledError() *E {
	return e.modeled
}
