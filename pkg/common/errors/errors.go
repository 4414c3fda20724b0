package errors

import (
	"errors"
	"fmt"
	"io"
)

// Common error types used across the sinkflow library

var (
	// ErrClosed indicates that an operation was attempted on a closed resource
	// or that the consuming side of a sink has gone away.
	ErrClosed = errors.New("resource is closed")

	// ErrNotReady indicates that an item was sent to a sink without a
	// preceding successful readiness check.
	ErrNotReady = errors.New("sink is not ready")

	// ErrEncode indicates that an item could not be serialized.
	ErrEncode = errors.New("encode failed")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCapacityExceeded indicates that a capacity limit was exceeded
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// ClosedError reports that a resource has been closed for good. It matches
// both ErrClosed and io.ErrClosedPipe, so code written against plain io
// writers sees the usual broken pipe condition.
type ClosedError struct {
	Resource string
	Cause    error
}

// NewClosedError creates a ClosedError for the named resource.
func NewClosedError(resource string, cause error) *ClosedError {
	return &ClosedError{Resource: resource, Cause: cause}
}

func (e *ClosedError) Error() string {
	if e.Cause != nil && !errors.Is(e.Cause, ErrClosed) {
		return fmt.Sprintf("%s: %s: %v", e.Resource, io.ErrClosedPipe, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Resource, io.ErrClosedPipe)
}

// Is reports whether target is ErrClosed or io.ErrClosedPipe.
func (e *ClosedError) Is(target error) bool {
	return target == ErrClosed || target == io.ErrClosedPipe
}

// Unwrap returns the underlying cause, if any.
func (e *ClosedError) Unwrap() error {
	return e.Cause
}

// EncodeError reports that an encoder rejected an item.
type EncodeError struct {
	Encoder string
	Cause   error
}

// NewEncodeError creates an EncodeError for the named encoder.
func NewEncodeError(encoder string, cause error) *EncodeError {
	return &EncodeError{Encoder: encoder, Cause: cause}
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Encoder, ErrEncode, e.Cause)
}

// Is reports whether target is ErrEncode.
func (e *EncodeError) Is(target error) bool {
	return target == ErrEncode
}

// Unwrap returns the underlying cause.
func (e *EncodeError) Unwrap() error {
	return e.Cause
}

// TransportError reports a failure in the transport behind a sink.
type TransportError struct {
	Transport string
	Op        string
	Cause     error
}

// NewTransportError creates a TransportError.
func NewTransportError(transport, op string, cause error) *TransportError {
	return &TransportError{Transport: transport, Op: op, Cause: cause}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Transport, e.Op, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ValidationError describes a configuration value that failed validation.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError without a hint.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint sets a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap returns ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// OperationError wraps a failure of a named operation in a module.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches extra context and returns the same error for chaining.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *OperationError) Unwrap() error {
	return e.Cause
}

// IsClosed returns true if the error reports a closed resource or consumer
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// IsPermanent returns true if the error leaves the resource unusable.
// Only closure is permanent; everything else can be retried by the caller.
func IsPermanent(err error) bool {
	return IsClosed(err)
}

// IsRetryable returns true if the error indicates a condition that might
// be resolved by retrying the operation
func IsRetryable(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	var te *TransportError
	return errors.Is(err, ErrTimeout) || errors.As(err, &te)
}

// IsTemporary returns true if the error indicates a temporary condition
func IsTemporary(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrCapacityExceeded)
}

// IsValidationError returns true if err is or wraps a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
