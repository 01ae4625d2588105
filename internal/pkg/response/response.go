// Package response formats the JSON envelope every handler in
// internal/interfaces/api returns, mirroring the teacher's
// pkg/utils response helpers (source not retrieved with the pack; rebuilt
// fresh in the same shape inferred from handler call sites).
package response

import "github.com/gofiber/fiber/v2"

type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func SuccessResponse(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(envelope{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func ErrorResponse(c *fiber.Ctx, code int, message string, err error) error {
	e := envelope{
		Success: false,
		Message: message,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return c.Status(code).JSON(e)
}
