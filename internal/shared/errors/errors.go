// Package errors provides application-level error types and helpers.
// Every failure that crosses a layer boundary is an *AppError whose Type
// decides how the HTTP layer answers and whether a caller may retry.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType classifies an AppError.
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation_error"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeUnauthorized   ErrorType = "unauthorized"
	ErrorTypeInternal       ErrorType = "internal_error"
	ErrorTypeBadRequest     ErrorType = "bad_request"
	ErrorTypeMalformed      ErrorType = "malformed_payload"
	ErrorTypeVerification   ErrorType = "verification_failed"
	ErrorTypeHistoryFetch   ErrorType = "history_fetch_failed"
	ErrorTypeUnknownEvent   ErrorType = "unknown_event_kind"
	ErrorTypePlanNotFound   ErrorType = "plan_not_found"
	ErrorTypeDuplicateTx    ErrorType = "duplicate_transaction"
	ErrorTypeStoreRejection ErrorType = "store_rejection"
)

// AppError is an error with a type, an HTTP status and optional details.
type AppError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    int       `json:"code"`
	Details string    `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func newAppError(t ErrorType, code int, message string, details []string) *AppError {
	return &AppError{
		Type:    t,
		Message: message,
		Code:    code,
		Details: strings.Join(details, "; "),
	}
}

func NewValidationError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeValidation, http.StatusBadRequest, message, details)
}

func NewNotFoundError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeNotFound, http.StatusNotFound, message, details)
}

func NewConflictError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeConflict, http.StatusConflict, message, details)
}

func NewUnauthorizedError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeUnauthorized, http.StatusUnauthorized, message, details)
}

func NewInternalError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeInternal, http.StatusInternalServerError, message, details)
}

func NewBadRequestError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeBadRequest, http.StatusBadRequest, message, details)
}

// NewMalformedPayloadError reports input that could not be decoded at all.
func NewMalformedPayloadError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeMalformed, http.StatusBadRequest, message, details)
}

// NewVerificationError reports a signature, certificate chain or store
// lookup that did not prove the payload authentic.
func NewVerificationError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeVerification, http.StatusBadRequest, message, details)
}

// NewHistoryFetchError reports a transport or upstream failure while
// talking to a store API. Callers may retry.
func NewHistoryFetchError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeHistoryFetch, http.StatusBadGateway, message, details)
}

func NewUnknownEventError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeUnknownEvent, http.StatusOK, message, details)
}

func NewPlanNotFoundError(message string, details ...string) *AppError {
	return newAppError(ErrorTypePlanNotFound, http.StatusNotFound, message, details)
}

// NewDuplicateTransactionError is returned by the ledger when a row for the
// transaction already exists. It signals success to idempotent callers.
func NewDuplicateTransactionError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeDuplicateTx, http.StatusOK, message, details)
}

// NewStoreRejectionError reports a store API answering that the purchase
// does not exist or is no longer valid.
func NewStoreRejectionError(message string, details ...string) *AppError {
	return newAppError(ErrorTypeStoreRejection, http.StatusBadRequest, message, details)
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts an AppError from the chain, or nil.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

func isType(err error, t ErrorType) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Type == t
}

func IsConflictError(err error) bool     { return isType(err, ErrorTypeConflict) }
func IsNotFoundError(err error) bool     { return isType(err, ErrorTypeNotFound) }
func IsValidationError(err error) bool   { return isType(err, ErrorTypeValidation) }
func IsMalformedPayload(err error) bool  { return isType(err, ErrorTypeMalformed) }
func IsVerificationError(err error) bool { return isType(err, ErrorTypeVerification) }
func IsHistoryFetchError(err error) bool { return isType(err, ErrorTypeHistoryFetch) }
func IsUnknownEventError(err error) bool { return isType(err, ErrorTypeUnknownEvent) }
func IsPlanNotFoundError(err error) bool { return isType(err, ErrorTypePlanNotFound) }
func IsDuplicateTransaction(err error) bool {
	return isType(err, ErrorTypeDuplicateTx)
}
func IsStoreRejection(err error) bool { return isType(err, ErrorTypeStoreRejection) }

// IsRetryable reports whether the caller should try the operation again later.
func IsRetryable(err error) bool {
	return IsHistoryFetchError(err) || IsConflictError(err)
}

// IsDuplicateError checks for a database unique-key violation.
func IsDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
