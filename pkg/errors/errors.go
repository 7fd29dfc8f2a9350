package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes
const (
	CodeNotFound       = "NOT_FOUND"
	CodeNetwork        = "NETWORK_ERROR"
	CodeDecode         = "DECODE_ERROR"
	CodeMalformedGraph = "MALFORMED_GRAPH"
	CodeValidation     = "VALIDATION_ERROR"
	CodeStorage        = "STORAGE_ERROR"
)

// ErrorKind classifies a failure for consumers that render fallback UI.
type ErrorKind string

const (
	KindNone           ErrorKind = ""
	KindNotFound       ErrorKind = "NotFound"
	KindNetwork        ErrorKind = "NetworkError"
	KindDecode         ErrorKind = "DecodeError"
	KindMalformedGraph ErrorKind = "MalformedGraph"
	KindValidation     ErrorKind = "Validation"
	KindStorage        ErrorKind = "Storage"
)

// String implements Stringer interface
func (k ErrorKind) String() string {
	if k == KindNone {
		return "None"
	}
	return string(k)
}

// Retryable reports whether a manual retry (invalidate + get) can change the outcome.
func (k ErrorKind) Retryable() bool {
	return k == KindNetwork
}

type PokedexError struct {
	Message    string
	Code       string
	Kind       ErrorKind
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *PokedexError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PokedexError) Unwrap() error {
	return e.Cause
}

// ErrorKind is promoted to the wrapper types so KindOf sees through them.
func (e *PokedexError) ErrorKind() ErrorKind {
	return e.Kind
}

func (e *PokedexError) WithCause(cause error) *PokedexError {
	e.Cause = cause
	return e
}

func newError(kind ErrorKind, code, message string, statusCode int, context map[string]any) *PokedexError {
	return &PokedexError{
		Message:    message,
		Code:       code,
		Kind:       kind,
		StatusCode: statusCode,
		Context:    context,
	}
}

// NewNotFoundError reports an absent resource or any non-2xx catalog answer.
func NewNotFoundError(message string, statusCode int, context map[string]any) *PokedexError {
	return newError(KindNotFound, CodeNotFound, message, statusCode, context)
}

// NewNetworkError reports a transport failure, timeout or open circuit.
func NewNetworkError(message string, context map[string]any, cause error) *PokedexError {
	return newError(KindNetwork, CodeNetwork, message, 503, context).WithCause(cause)
}

// NewDecodeError reports a response whose shape does not match the expected record.
func NewDecodeError(message string, context map[string]any, cause error) *PokedexError {
	return newError(KindDecode, CodeDecode, message, 502, context).WithCause(cause)
}

// NewMalformedGraphError reports an evolution graph that violates the acyclic/bounded guarantee.
func NewMalformedGraphError(message string, context map[string]any) *PokedexError {
	return newError(KindMalformedGraph, CodeMalformedGraph, message, 422, context)
}

type ValidationError struct {
	*PokedexError
	Field string
	Value any
}

func NewValidationError(message, field string, value any) *ValidationError {
	return &ValidationError{
		PokedexError: newError(KindValidation, CodeValidation, message, 400, map[string]any{
			"field": field,
			"value": value,
		}),
		Field: field,
		Value: value,
	}
}

type StorageError struct {
	*PokedexError
	Operation string
	Key       string
}

func NewStorageError(message, operation, key string, cause error) *StorageError {
	return &StorageError{
		PokedexError: newError(KindStorage, CodeStorage, message, 500, map[string]any{
			"operation": operation,
			"key":       key,
		}).WithCause(cause),
		Operation: operation,
		Key:       key,
	}
}

// KindOf returns the ErrorKind carried by err, or KindNone when err is nil or untyped.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var k interface{ ErrorKind() ErrorKind }
	if stderrors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindNone
}

// Is reports whether err carries the given kind.
func Is(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
