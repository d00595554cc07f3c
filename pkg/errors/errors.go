package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a requested document path does not exist
	ErrNotFound = errors.New("path not found")

	// ErrPermissionDenied indicates that a document path exists but cannot be read
	ErrPermissionDenied = errors.New("permission denied")

	// ErrMissingFrontmatter indicates that a document carries no metadata block
	ErrMissingFrontmatter = errors.New("missing frontmatter block")

	// ErrBoundsExceeded indicates that a run went past its configured resource bounds
	ErrBoundsExceeded = errors.New("processing bounds exceeded")

	// ErrNoDocuments indicates that every input document failed processing
	ErrNoDocuments = errors.New("no documents survived processing")

	// ErrRenderTimeout indicates that a template script exceeded its execution deadline
	ErrRenderTimeout = errors.New("render timed out")
)

// Error codes carried by structured pipeline errors.
const (
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodePathNotFound  = "PATH_NOT_FOUND"
	CodePermission    = "PERMISSION_DENIED"
	CodeRead          = "READ_FAILED"
	CodeExtraction    = "EXTRACTION_FAILED"
	CodeValidation    = "VALIDATION_FAILED"
	CodeBounds        = "BOUNDS_EXCEEDED"
	CodeAggregation   = "AGGREGATION_FAILED"
	CodeTransition    = "TRANSITION_REJECTED"
	CodeSchema        = "SCHEMA_INVALID"
	CodeRender        = "RENDER_FAILED"
	CodePublish       = "PUBLISH_FAILED"
)

// Error represents a structured pipeline error
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new structured error
func NewError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewConfigurationError reports invalid or incomplete configuration.
func NewConfigurationError(message string, err error) *Error {
	return NewError(CodeConfiguration, message, err)
}

// NewReadError reports a failed document read. The underlying error should be
// ErrNotFound or ErrPermissionDenied when the cause is known.
func NewReadError(path string, err error) *Error {
	code := CodeRead
	switch {
	case errors.Is(err, ErrNotFound):
		code = CodePathNotFound
	case errors.Is(err, ErrPermissionDenied):
		code = CodePermission
	}
	return NewError(code, fmt.Sprintf("failed to read %s", path), err)
}

// NewExtractionError reports a failed metadata-block extraction.
func NewExtractionError(path string, err error) *Error {
	return NewError(CodeExtraction, fmt.Sprintf("failed to extract frontmatter from %s", path), err)
}

// NewValidationError reports metadata that does not conform to the schema rules.
func NewValidationError(path string, err error) *Error {
	return NewError(CodeValidation, fmt.Sprintf("validation failed for %s", path), err)
}

// NewBoundsError reports a run halted by the resource bounds monitor.
func NewBoundsError(message string) *Error {
	return NewError(CodeBounds, message, ErrBoundsExceeded)
}

// NewAggregationError reports a failure while merging documents into the aggregate.
func NewAggregationError(message string, err error) *Error {
	return NewError(CodeAggregation, message, err)
}

// NewTransitionError reports an event rejected by the execution state machine.
func NewTransitionError(message string) *Error {
	return NewError(CodeTransition, message, nil)
}

// NewSchemaError reports an invalid schema definition.
func NewSchemaError(message string, err error) *Error {
	return NewError(CodeSchema, message, err)
}

// NewRenderError reports a failed output rendering.
func NewRenderError(message string, err error) *Error {
	return NewError(CodeRender, message, err)
}

// NewPublishError reports an event that could not be delivered to a sink.
func NewPublishError(message string, err error) *Error {
	return NewError(CodePublish, message, err)
}

// CodeOf returns the code of a structured error, or an empty string.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsNotFound checks if an error stems from a missing path
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || CodeOf(err) == CodePathNotFound
}

// IsPermissionDenied checks if an error stems from an unreadable path
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || CodeOf(err) == CodePermission
}

// IsBoundsExceeded checks if an error stems from a bounds violation
func IsBoundsExceeded(err error) bool {
	return errors.Is(err, ErrBoundsExceeded) || CodeOf(err) == CodeBounds
}

// IsTransitionRejected checks if an error stems from a rejected state transition
func IsTransitionRejected(err error) bool {
	return CodeOf(err) == CodeTransition
}

// IsConfiguration checks if an error stems from invalid configuration
func IsConfiguration(err error) bool {
	return CodeOf(err) == CodeConfiguration
}
