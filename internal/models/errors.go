package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the JSON body of every non-2xx API reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Error codes carried in ErrorResponse.Code.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeRateLimited  = "RATE_LIMITED"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"

	CodeUsernameRequired    = "USERNAME_REQUIRED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
)

var codeStatus = map[string]int{
	CodeValidation:          fiber.StatusBadRequest,
	CodeUnauthorized:        fiber.StatusUnauthorized,
	CodeInsufficientBalance: fiber.StatusPaymentRequired,
	CodeForbidden:           fiber.StatusForbidden,
	CodeUsernameRequired:    fiber.StatusForbidden,
	CodeNotFound:            fiber.StatusNotFound,
	CodeConflict:            fiber.StatusConflict,
	CodeRateLimited:         fiber.StatusTooManyRequests,
	CodeInternal:            fiber.StatusInternalServerError,
	CodeUnavailable:         fiber.StatusServiceUnavailable,
}

// AppError is a domain failure with a stable code. Err, when set, is the
// underlying cause and is never shown to clients for internal errors.
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

// Status is the HTTP status for the error's code; unknown codes are 500.
func (e *AppError) Status() int {
	if s, ok := codeStatus[e.Code]; ok {
		return s
	}
	return fiber.StatusInternalServerError
}

func newError(code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

func NewNotFoundError(resource string, id any) *AppError {
	return newError(CodeNotFound, fmt.Sprintf("%s with ID %v not found", resource, id))
}

func NewValidationError(msg string) *AppError   { return newError(CodeValidation, msg) }
func NewUnauthorizedError(msg string) *AppError { return newError(CodeUnauthorized, msg) }
func NewForbiddenError(msg string) *AppError    { return newError(CodeForbidden, msg) }
func NewConflictError(msg string) *AppError     { return newError(CodeConflict, msg) }

// NewUsernameRequiredError blocks forum writes until username setup is done.
func NewUsernameRequiredError() *AppError {
	return newError(CodeUsernameRequired, "Choose a username before posting")
}

func NewInsufficientBalanceError(balance, required int64) *AppError {
	return newError(CodeInsufficientBalance,
		fmt.Sprintf("Insufficient balance: %d cents available, %d required", balance, required))
}

// NewUnavailableError reports a dependency the operation cannot run without.
func NewUnavailableError(msg string, err error) *AppError {
	return &AppError{Code: CodeUnavailable, Message: msg, Err: err}
}

func NewInternalError(err error) *AppError {
	return &AppError{Code: CodeInternal, Message: "Internal server error", Err: err}
}

// ErrorCode returns the AppError code carried by err, or "".
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// RespondWithError writes err as an ErrorResponse with the given status.
// Causes of internal errors stay out of the body.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	body := ErrorResponse{Error: err.Error()}
	var appErr *AppError
	if errors.As(err, &appErr) {
		body = ErrorResponse{Error: appErr.Message, Code: appErr.Code}
		if appErr.Err != nil && appErr.Code != CodeInternal {
			body.Details = appErr.Err.Error()
		}
	}
	return c.Status(status).JSON(body)
}
