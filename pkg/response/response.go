package response

import (
	"github.com/gofiber/fiber/v2"

	"github.com/scribehook/api/internal/apperror"
)

// Error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeUpstreamError   = "UPSTREAM_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeServiceError    = "SERVICE_ERROR"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// FromError writes err using its apperror kind. Internal causes are never
// echoed to the client.
func FromError(c *fiber.Ctx, err error) error {
	e := apperror.As(err)

	var details interface{}
	if len(e.Details) > 0 {
		details = e.Details
	}
	return Error(c, e.HTTPStatus(), codeFor(e.Kind), e.Message, details)
}

func codeFor(kind apperror.Kind) string {
	switch kind {
	case apperror.KindAuthentication:
		return CodeUnauthorized
	case apperror.KindValidation:
		return CodeValidationError
	case apperror.KindNotFound:
		return CodeNotFound
	case apperror.KindUpstream:
		return CodeUpstreamError
	case apperror.KindTimeout:
		return CodeTimeout
	default:
		return CodeServiceError
	}
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}
