package errors

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// AppError is the application-level error carried from the domain and
// application layers up to the HTTP boundary.
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail returns the error with an extra caller-facing detail attached.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Error codes understood by clients of the pipeline service.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "RESOURCE_NOT_FOUND"
	CodeInvalidState    = "INVALID_STATE"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeConflict        = "CONFLICT"
	CodeInternalError   = "INTERNAL_ERROR"

	// Idempotency and assignment guards.
	CodeAlreadyAssigned  = "ALREADY_ASSIGNED"
	CodeAlreadyProcessed = "ALREADY_PROCESSED"
	CodeDuplicateProcess = "DUPLICATE_PROCESS"
	CodeInvalidSession   = "INVALID_SESSION"

	// Quantity checks.
	CodeInsufficientStock         = "INSUFFICIENT_STOCK"
	CodeInsufficientPersonalStock = "INSUFFICIENT_PERSONAL_STOCK"

	// Operator configuration errors, not caller errors.
	CodeUnknownRole            = "UNKNOWN_ROLE"
	CodeStageFlowNotConfigured = "STAGE_FLOW_NOT_CONFIGURED"
	CodeRedirectNotConfigured  = "REDIRECT_NOT_CONFIGURED"
)

// ErrValidation creates a validation error.
func ErrValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidationError,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// ErrNotFound creates a not-found error for a named resource.
func ErrNotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// ErrInvalidState creates an error for an operation attempted against the
// wrong lifecycle state.
func ErrInvalidState(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidState,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// ErrUnauthorized creates an authorization error (wrong role or wrong assignee).
func ErrUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// ErrConflict creates a generic conflict error.
func ErrConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// ErrAlreadyAssigned signals that a racing caller claimed the activity first.
func ErrAlreadyAssigned(message string) *AppError {
	return &AppError{
		Code:       CodeAlreadyAssigned,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// ErrAlreadyProcessed signals that a set-once decision was already taken.
func ErrAlreadyProcessed(message string) *AppError {
	return &AppError{
		Code:       CodeAlreadyProcessed,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// ErrDuplicateProcess signals a same-day duplicate unit registration.
func ErrDuplicateProcess(message string) *AppError {
	return &AppError{
		Code:       CodeDuplicateProcess,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// ErrInvalidSession signals a missing, mismatched, or already-used session token.
func ErrInvalidSession(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidSession,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// ErrInsufficientStock signals that global material stock cannot cover a request.
func ErrInsufficientStock(message string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// ErrInsufficientPersonalStock signals that an employee's held stock is short.
func ErrInsufficientPersonalStock(message string) *AppError {
	return &AppError{
		Code:       CodeInsufficientPersonalStock,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// ErrUnknownRole signals a role with no itemType/initial-stage profile.
func ErrUnknownRole(role string) *AppError {
	return &AppError{
		Code:       CodeUnknownRole,
		Message:    fmt.Sprintf("no pipeline profile configured for role %q", role),
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// ErrStageFlowNotConfigured signals missing stage flow configuration rows.
func ErrStageFlowNotConfigured(product, itemType string) *AppError {
	return &AppError{
		Code:       CodeStageFlowNotConfigured,
		Message:    fmt.Sprintf("no stage flow configured for product %q (%s)", product, itemType),
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// ErrRedirectNotConfigured signals a missing failure redirect row.
func ErrRedirectNotConfigured(product, itemType, reason string) *AppError {
	return &AppError{
		Code:       CodeRedirectNotConfigured,
		Message:    fmt.Sprintf("no failure redirect configured for product %q (%s) reason %q", product, itemType, reason),
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// ErrInternal creates an internal server error wrapping the cause.
func ErrInternal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternalError,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsAppError extracts an *AppError from an error chain.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsNotFound reports whether the error is a not-found AppError.
func IsNotFound(err error) bool {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Code == CodeNotFound
	}
	return false
}

// IsConflict reports whether the error carries any conflict-class code.
func IsConflict(err error) bool {
	appErr, ok := IsAppError(err)
	if !ok {
		return false
	}
	switch appErr.Code {
	case CodeConflict, CodeAlreadyAssigned, CodeAlreadyProcessed,
		CodeDuplicateProcess, CodeInvalidSession, CodeInvalidState,
		CodeInsufficientStock, CodeInsufficientPersonalStock:
		return true
	}
	return false
}

// sentinelMapping binds one domain sentinel to the AppError it maps to.
type sentinelMapping struct {
	sentinel error
	build    func(error) *AppError
}

var sentinelRegistry struct {
	mu       sync.RWMutex
	mappings []sentinelMapping
}

// RegisterSentinel binds a sentinel error to an AppError constructor so
// MapDomainError can classify it with errors.Is. Domain packages keep their
// own sentinel types; the owning layer registers them at init time.
func RegisterSentinel(sentinel error, build func(err error) *AppError) {
	sentinelRegistry.mu.Lock()
	defer sentinelRegistry.mu.Unlock()
	sentinelRegistry.mappings = append(sentinelRegistry.mappings, sentinelMapping{sentinel: sentinel, build: build})
}

// MapDomainError converts a raw domain error into an AppError by matching it
// against the registered sentinels, falling back to an internal error. This
// keeps the HTTP mapping in one place without inspecting error messages.
func MapDomainError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := IsAppError(err); ok {
		return appErr
	}

	sentinelRegistry.mu.RLock()
	defer sentinelRegistry.mu.RUnlock()
	for _, m := range sentinelRegistry.mappings {
		if errors.Is(err, m.sentinel) {
			return m.build(err)
		}
	}

	return ErrInternal("unexpected domain error", err)
}
