package middleware

import (
	"github.com/gofiber/fiber/v2"

	"driveingest/internal/pkg/apperr"
	"driveingest/internal/pkg/logger"
	"driveingest/internal/pkg/response"
)

// statusForKind maps the stable error taxonomy (spec §7) onto HTTP status
// codes, generalizing the teacher's single fiber.Error-code mapper.
func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidInput:
		return fiber.StatusBadRequest
	case apperr.PermissionDenied:
		return fiber.StatusForbidden
	case apperr.NotFound:
		return fiber.StatusNotFound
	case apperr.FolderCapExceeded:
		return fiber.StatusUnprocessableEntity
	case apperr.EmptyFolder:
		return fiber.StatusUnprocessableEntity
	case apperr.QueueUnavailable, apperr.StoreUnavailable, apperr.VectorBackendUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler is the Fiber-wide error handler. Handlers return either a
// *apperr.Error (mapped below) or a *fiber.Error; anything else is a 500.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "An error occurred"

		if appErr, ok := err.(*apperr.Error); ok {
			code = statusForKind(appErr.Kind)
			message = appErr.Message
		} else if fe, ok := err.(*fiber.Error); ok {
			code = fe.Code
			message = fe.Message
		}

		logger.Error(logger.CategoryAPI, "error_handler", "request error occurred", err, map[string]interface{}{
			"status_code": code,
			"path":        c.Path(),
			"method":      c.Method(),
		})

		return response.ErrorResponse(c, code, message, err)
	}
}
