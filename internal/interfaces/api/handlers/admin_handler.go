package handlers

import (
	"github.com/gofiber/fiber/v2"

	"driveingest/internal/pkg/config"
	"driveingest/internal/pkg/logger"
)

// AdminHandler gates the log-tailing endpoint behind a shared token, grounded
// on the teacher's log_handler.go admin-token check.
type AdminHandler struct {
	token string
}

func NewAdminHandler(cfg *config.Config) *AdminHandler {
	token := cfg.Admin.Token
	if token == "" {
		token = cfg.JWT.Secret
	}
	return &AdminHandler{token: token}
}

func (h *AdminHandler) authorized(c *fiber.Ctx) bool {
	token := c.Get("X-Admin-Token")
	if token == "" {
		token = c.Query("token")
	}
	return token != "" && token == h.token
}

// Logs serves the admin log-tailing endpoint.
func (h *AdminHandler) Logs(c *fiber.Ctx) error {
	if !h.authorized(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   "invalid admin token",
		})
	}

	opts := logger.ReadLogsOptions{
		Lines:    c.QueryInt("lines", 100),
		Level:    logger.Level(c.Query("level")),
		Category: logger.Category(c.Query("category")),
		Search:   c.Query("search"),
	}
	entries, err := logger.ReadLogs(opts)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": entries})
}
