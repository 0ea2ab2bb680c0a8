package common

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies a domain error so handlers can map it to a transport
// status without string matching.
type Kind string

const (
	KindValidation    Kind = "VALIDATION"
	KindStateConflict Kind = "STATE_CONFLICT"
	KindNotFound      Kind = "NOT_FOUND"
	KindOverpayment   Kind = "OVERPAYMENT"
	KindConcurrency   Kind = "CONCURRENCY"
)

// DomainError carries a kind plus a human-readable reason. Amounts are never
// silently corrected; ambiguous input surfaces as a VALIDATION error.
type DomainError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

func Validation(format string, args ...any) *DomainError {
	return &DomainError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func StateConflict(format string, args ...any) *DomainError {
	return &DomainError{Kind: KindStateConflict, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *DomainError {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Overpayment(format string, args ...any) *DomainError {
	return &DomainError{Kind: KindOverpayment, Message: fmt.Sprintf(format, args...)}
}

func Concurrency(err error) *DomainError {
	return &DomainError{Kind: KindConcurrency, Message: "stale state or lock contention, retry with fresh state", Err: err}
}

// KindOf extracts the Kind from an error chain, or "" for unclassified errors.
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// HTTPStatus maps an error kind to the status code handlers respond with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindNotFound:
		return fiber.StatusNotFound
	case KindStateConflict:
		return fiber.StatusConflict
	case KindOverpayment:
		return fiber.StatusUnprocessableEntity
	case KindConcurrency:
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
)

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func SuccessResponse(c *fiber.Ctx, statusCode int, data any) error {
	return c.Status(statusCode).JSON(fiber.Map{
		"status": "success",
		"data":   data,
	})
}

func ErrorResponse(c *fiber.Ctx, statusCode int, message string) error {
	return c.Status(statusCode).JSON(fiber.Map{
		"status":  "error",
		"message": message,
	})
}

// DomainErrorResponse renders a DomainError with its kind so callers can
// distinguish retryable from terminal failures.
func DomainErrorResponse(c *fiber.Ctx, err error) error {
	kind := KindOf(err)
	if kind == "" {
		return ErrorResponse(c, fiber.StatusInternalServerError, "internal server error")
	}
	var de *DomainError
	errors.As(err, &de)
	return c.Status(HTTPStatus(err)).JSON(fiber.Map{
		"status":  "error",
		"kind":    kind,
		"message": de.Message,
	})
}
