package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/psyprofile/psyprofile-backend/pkg/i18n"
)

// Standard error types
var (
	ErrNotFound        = errors.New("resource not found")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrBadRequest      = errors.New("bad request")
	ErrCanceled        = errors.New("request canceled")
	ErrInternal        = errors.New("internal server error")
	ErrValidation      = errors.New("validation error")
	ErrTokenExpired    = errors.New("token expired")
	ErrTokenInvalid    = errors.New("invalid token")
	ErrTooManyRequests = errors.New("too many requests")
)

// Pipeline error types. Each pipeline failure ends only the current operation.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtraction        = errors.New("extraction failed")
	ErrEmptyInput        = errors.New("empty input")
	ErrUpstream          = errors.New("upstream error")
	ErrExport            = errors.New("export failed")
)

// AppError represents an application error with context
type AppError struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	MessageKey string            `json:"-"` // i18n key for localization
	Params     map[string]string `json:"-"` // Parameters for i18n interpolation
	Code       string            `json:"code"`
	StatusCode int               `json:"status_code"`
	Details    map[string]string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Localize returns a localized version of the error message
func (e *AppError) Localize(ctx context.Context) string {
	if e.MessageKey == "" {
		return e.Message
	}
	return i18n.TFromContext(ctx, e.MessageKey, e.Params)
}

// New creates a new AppError
func New(code string, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// WithDetails adds details to an AppError
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// chain keeps the sentinel matchable while preserving the cause
func chain(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// Common error constructors

func NotFound(resource string) *AppError {
	return &AppError{
		Err:        ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		MessageKey: "errors.not_found",
		Params:     map[string]string{"resource": resource},
		StatusCode: http.StatusNotFound,
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
		MessageKey: "errors.unauthorized",
		StatusCode: http.StatusUnauthorized,
	}
}

func BadRequest(message string) *AppError {
	return &AppError{
		Err:        ErrBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		MessageKey: "errors.bad_request",
		Params:     map[string]string{"message": message},
		StatusCode: http.StatusBadRequest,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Err:        ErrInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		MessageKey: "errors.internal",
		StatusCode: http.StatusInternalServerError,
	}
}

func Validation(details map[string]string) *AppError {
	return &AppError{
		Err:        ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		MessageKey: "errors.validation_failed",
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

func TokenExpired() *AppError {
	return &AppError{
		Err:        ErrTokenExpired,
		Code:       "TOKEN_EXPIRED",
		Message:    "token has expired",
		MessageKey: "errors.token_expired",
		StatusCode: http.StatusUnauthorized,
	}
}

func TokenInvalid() *AppError {
	return &AppError{
		Err:        ErrTokenInvalid,
		Code:       "TOKEN_INVALID",
		Message:    "invalid token",
		MessageKey: "errors.token_invalid",
		StatusCode: http.StatusUnauthorized,
	}
}

func TooManyRequests() *AppError {
	return &AppError{
		Err:        ErrTooManyRequests,
		Code:       "TOO_MANY_REQUESTS",
		Message:    "too many requests, slow down",
		MessageKey: "errors.too_many_requests",
		StatusCode: http.StatusTooManyRequests,
	}
}

// StatusClientClosedRequest is the non-standard status logged when the caller
// went away before the response was written
const StatusClientClosedRequest = 499

// Canceled reports an operation abandoned because its request context ended
func Canceled(cause error) *AppError {
	return &AppError{
		Err:        chain(ErrCanceled, cause),
		Code:       "REQUEST_CANCELED",
		Message:    "request was canceled",
		MessageKey: "errors.request_canceled",
		StatusCode: StatusClientClosedRequest,
	}
}

// Pipeline error constructors

// UnsupportedFormat reports a file whose declared type is neither PDF nor DOCX
func UnsupportedFormat(declared string) *AppError {
	return &AppError{
		Err:        ErrUnsupportedFormat,
		Code:       "UNSUPPORTED_FORMAT",
		Message:    fmt.Sprintf("unsupported file type %q, expected pdf or docx", declared),
		MessageKey: "errors.unsupported_format",
		Params:     map[string]string{"format": declared},
		StatusCode: http.StatusUnsupportedMediaType,
	}
}

// ExtractionFailed reports a corrupt or unreadable document
func ExtractionFailed(message string, cause error) *AppError {
	return &AppError{
		Err:        chain(ErrExtraction, cause),
		Code:       "EXTRACTION_FAILED",
		Message:    message,
		MessageKey: "errors.extraction_failed",
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// EmptyInput reports that there is no text to build a prompt from
func EmptyInput(message string) *AppError {
	return &AppError{
		Err:        ErrEmptyInput,
		Code:       "EMPTY_INPUT",
		Message:    message,
		MessageKey: "errors.empty_input",
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// Upstream reports a failed, timed out or malformed model call
func Upstream(message string, cause error) *AppError {
	return &AppError{
		Err:        chain(ErrUpstream, cause),
		Code:       "UPSTREAM_ERROR",
		Message:    message,
		MessageKey: "errors.upstream",
		StatusCode: http.StatusBadGateway,
	}
}

// ExportFailed reports a profile that cannot be mapped into a deck
func ExportFailed(message string, cause error) *AppError {
	return &AppError{
		Err:        chain(ErrExport, cause),
		Code:       "EXPORT_FAILED",
		Message:    message,
		MessageKey: "errors.export_failed",
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// Is checks if the error matches a target error
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As attempts to convert an error to a specific type
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Code returns the AppError code of err, or INTERNAL_ERROR
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "INTERNAL_ERROR"
}
