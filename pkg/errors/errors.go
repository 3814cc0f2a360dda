package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Standard error types
var (
	ErrNotFound               = errors.New("resource not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrBadRequest             = errors.New("bad request")
	ErrConflict               = errors.New("resource conflict")
	ErrInternal               = errors.New("internal server error")
	ErrValidation             = errors.New("validation error")
	ErrTokenExpired           = errors.New("token expired")
	ErrTokenInvalid           = errors.New("invalid token")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInsufficientMaterials  = errors.New("insufficient materials")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidLocation        = errors.New("invalid location")
	ErrConcurrencyConflict    = errors.New("concurrency conflict")
)

// Shortage is one line of an itemized availability failure.
type Shortage struct {
	ItemID    string          `json:"item_id"`
	ItemName  string          `json:"item_name,omitempty"`
	Required  decimal.Decimal `json:"required"`
	Available decimal.Decimal `json:"available"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// NewShortage builds a shortage line; shortfall is required minus available.
func NewShortage(itemID, itemName string, required, available decimal.Decimal) Shortage {
	return Shortage{
		ItemID:    itemID,
		ItemName:  itemName,
		Required:  required,
		Available: available,
		Shortfall: required.Sub(available),
	}
}

// AppError is an error that knows how it is rendered over HTTP.
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
	Shortages  []Shortage        `json:"shortages,omitempty"`
	Retryable  bool              `json:"retryable,omitempty"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails replaces the error details and returns e.
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

func newAppError(sentinel error, code string, status int, message string) *AppError {
	return &AppError{Err: sentinel, Code: code, StatusCode: status, Message: message}
}

func NotFound(resource string) *AppError {
	return newAppError(ErrNotFound, "NOT_FOUND", http.StatusNotFound, resource+" not found")
}

func Unauthorized(message string) *AppError {
	return newAppError(ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized, message)
}

func Forbidden(message string) *AppError {
	return newAppError(ErrForbidden, "FORBIDDEN", http.StatusForbidden, message)
}

// LocationMismatch is returned when the actor is bound to a different location
// than the one a transition must be performed at.
func LocationMismatch(required string) *AppError {
	e := newAppError(ErrForbidden, "LOCATION_MISMATCH", http.StatusForbidden,
		"actor is not assigned to the required location")
	return e.WithDetails(map[string]string{"required_location_id": required})
}

func BadRequest(message string) *AppError {
	return newAppError(ErrBadRequest, "BAD_REQUEST", http.StatusBadRequest, message)
}

func Conflict(message string) *AppError {
	return newAppError(ErrConflict, "CONFLICT", http.StatusConflict, message)
}

func Internal(message string) *AppError {
	return newAppError(ErrInternal, "INTERNAL_ERROR", http.StatusInternalServerError, message)
}

func Validation(details map[string]string) *AppError {
	return newAppError(ErrValidation, "VALIDATION_ERROR", http.StatusBadRequest, "validation failed").
		WithDetails(details)
}

// InvalidField is a Validation error for a single field.
func InvalidField(field, reason string) *AppError {
	return Validation(map[string]string{field: reason})
}

// InvalidAdjustment rejects a ledger adjustment that would break non-negativity.
func InvalidAdjustment(message string) *AppError {
	return newAppError(ErrValidation, "INVALID_ADJUSTMENT", http.StatusBadRequest, message)
}

// InsufficientStock lists every short line, not just the first.
func InsufficientStock(shortages ...Shortage) *AppError {
	e := newAppError(ErrInsufficientStock, "INSUFFICIENT_STOCK", http.StatusUnprocessableEntity,
		"insufficient stock available")
	e.Shortages = shortages
	return e
}

func InsufficientMaterials(shortages ...Shortage) *AppError {
	e := newAppError(ErrInsufficientMaterials, "INSUFFICIENT_MATERIALS", http.StatusUnprocessableEntity,
		"insufficient raw materials for production")
	e.Shortages = shortages
	return e
}

func InvalidStateTransition(entity, from, action string) *AppError {
	e := newAppError(ErrInvalidStateTransition, "INVALID_STATE_TRANSITION", http.StatusConflict,
		fmt.Sprintf("cannot %s %s in status %s", action, entity, from))
	return e.WithDetails(map[string]string{"status": from, "action": action})
}

func InvalidLocation(message string) *AppError {
	return newAppError(ErrInvalidLocation, "INVALID_LOCATION", http.StatusUnprocessableEntity, message)
}

// ConcurrencyConflict signals a lock wait timeout or serialization failure.
// Callers may retry the whole operation.
func ConcurrencyConflict(err error) *AppError {
	e := newAppError(fmt.Errorf("%w: %v", ErrConcurrencyConflict, err), "CONCURRENCY_CONFLICT",
		http.StatusConflict, "the resource is busy, please retry")
	e.Retryable = true
	return e
}

func TokenExpired() *AppError {
	return newAppError(ErrTokenExpired, "TOKEN_EXPIRED", http.StatusUnauthorized, "token has expired")
}

func TokenInvalid() *AppError {
	return newAppError(ErrTokenInvalid, "TOKEN_INVALID", http.StatusUnauthorized, "invalid token")
}

// IsRetryable reports whether err carries a retryable AppError.
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}
