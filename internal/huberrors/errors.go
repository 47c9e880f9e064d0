// Package huberrors provides sentinel and custom error types for the application.
package huberrors

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrInvalidArgument is the sentinel for caller/programmer errors such as
// mismatched vector lengths or negative pagination. Never retried.
var ErrInvalidArgument = &InvalidArgumentError{}

// InvalidArgumentError is returned when an argument is outside its domain.
type InvalidArgumentError struct {
	Argument string
	Message  string
}

// NewInvalidArgumentError creates an InvalidArgumentError for the named argument.
func NewInvalidArgumentError(argument, message string) *InvalidArgumentError {
	return &InvalidArgumentError{Argument: argument, Message: message}
}

// Error implements the error interface.
func (e *InvalidArgumentError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Argument != "" {
		return "invalid argument: " + e.Argument
	}

	return "invalid argument"
}

// Is matches any *InvalidArgumentError and also *ValidationError, so HTTP
// handlers can treat both as client errors.
func (e *InvalidArgumentError) Is(target error) bool {
	switch target.(type) {
	case *InvalidArgumentError, *ValidationError:
		return true
	default:
		return false
	}
}

// ErrConfiguration is the sentinel for missing credentials or setup at construction time.
var ErrConfiguration = &ConfigurationError{}

// ConfigurationError is fatal: it is raised once at startup and never retried.
type ConfigurationError struct {
	Setting string
	Message string
}

// NewConfigurationError creates a ConfigurationError for the given setting.
func NewConfigurationError(setting, message string) *ConfigurationError {
	return &ConfigurationError{Setting: setting, Message: message}
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Setting != "" {
		return e.Setting + " is not configured"
	}

	return "configuration error"
}

// Is implements the error interface for error comparison.
func (e *ConfigurationError) Is(target error) bool {
	_, ok := target.(*ConfigurationError)

	return ok
}

// ErrUpstream is the sentinel for failed calls to an external service
// (embedding API, vector index, generation API).
var ErrUpstream = &UpstreamError{}

// UpstreamError wraps a non-success status, malformed payload or timeout from
// an external service.
type UpstreamError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

// NewUpstreamError creates an UpstreamError wrapping err.
func NewUpstreamError(service, message string, err error) *UpstreamError {
	return &UpstreamError{Service: service, Message: message, Err: err}
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "upstream call failed"
	}

	if e.Service != "" {
		msg = e.Service + ": " + msg
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison.
func (e *UpstreamError) Is(target error) bool {
	_, ok := target.(*UpstreamError)

	return ok
}

// ErrParse is the sentinel for generation output that matches no accepted shape.
// It is always recovered locally.
var ErrParse = &ParseError{}

// ParseError reports model output that could not be parsed.
type ParseError struct {
	Message string
	Err     error
}

// NewParseError creates a ParseError.
func NewParseError(message string, err error) *ParseError {
	return &ParseError{Message: message, Err: err}
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "parse error"
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is implements the error interface for error comparison.
func (e *ParseError) Is(target error) bool {
	_, ok := target.(*ParseError)

	return ok
}

// ErrRecommendationFailed is the sentinel for a recommendation request that
// could not be served (query embedding or candidate retrieval failed).
var ErrRecommendationFailed = &RecommendationFailedError{}

// RecommendationFailedError carries the underlying cause; errors.Is also
// matches the cause's sentinel (e.g. ErrUpstream, ErrConfiguration).
type RecommendationFailedError struct {
	Stage string
	Cause error
}

// NewRecommendationFailedError wraps cause for the given pipeline stage.
func NewRecommendationFailedError(stage string, cause error) *RecommendationFailedError {
	return &RecommendationFailedError{Stage: stage, Cause: cause}
}

// Error implements the error interface.
func (e *RecommendationFailedError) Error() string {
	msg := "recommendation failed"
	if e.Stage != "" {
		msg += " at " + e.Stage
	}

	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *RecommendationFailedError) Unwrap() error {
	return e.Cause
}

// Is implements the error interface for error comparison.
func (e *RecommendationFailedError) Is(target error) bool {
	_, ok := target.(*RecommendationFailedError)

	return ok
}

// ErrConflict is the sentinel for conflict errors (e.g. a backfill job already queued).
var ErrConflict = &ConflictError{}

// ConflictError is a sentinel error for resource conflicts.
type ConflictError struct {
	Message string
}

// NewConflictError creates a ConflictError with a custom message.
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "conflict"
}

// Is implements the error interface for error comparison.
func (e *ConflictError) Is(target error) bool {
	_, ok := target.(*ConflictError)

	return ok
}
