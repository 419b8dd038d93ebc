package api

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"library-lending/library"
)

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

var (
	errNotRenewable = errors.New("loan cannot be renewed")
	errNotReturned  = errors.New("loan is already returned")
)

// statusFor maps a domain error to an HTTP status.
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, library.ErrInvariantViolation):
		return fiber.StatusInternalServerError
	case errors.Is(err, library.ErrOutOfStock),
		errors.Is(err, library.ErrDuplicateReservation),
		errors.Is(err, library.ErrDuplicateLoan),
		errors.Is(err, library.ErrDuplicateReview),
		errors.Is(err, library.ErrBookAvailable),
		errors.Is(err, library.ErrUsernameTaken):
		return fiber.StatusConflict
	case errors.Is(err, library.ErrNotEligible), errors.Is(err, library.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, library.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, library.ErrInvalidCredentials):
		return fiber.StatusUnauthorized
	case errors.Is(err, library.ErrInvalidArgument),
		errors.Is(err, errNotRenewable),
		errors.Is(err, errNotReturned):
		return fiber.StatusBadRequest
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		body.Error = "validation failed"
		body.Fields = make(map[string]string, len(ve))
		for _, f := range ve {
			body.Fields[f.Field()] = f.Tag()
		}
	}
	if code >= fiber.StatusInternalServerError {
		s.log.ErrorContext(c.UserContext(), "request failed",
			slog.String("request_id", requestID(c)),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Any("error", err))
		body.Error = "internal server error"
	}
	return c.Status(code).JSON(body)
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("requestid").(string)
	return id
}
