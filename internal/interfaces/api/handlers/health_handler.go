package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"driveingest/internal/infrastructure/queue"
	"driveingest/internal/infrastructure/store"
)

// HealthHandler backs the Health endpoint of spec §6's Public API surface.
// Grounded on the teacher's health_handler.go component-checklist shape,
// narrowed to this domain's two dependencies (database, queue).
type HealthHandler struct {
	store store.Store
	queue *queue.Queue
}

func NewHealthHandler(st store.Store, q *queue.Queue) *HealthHandler {
	return &HealthHandler{store: st, queue: q}
}

type componentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Health reports database and queue connectivity plus a per-queue job count
// snapshot. It never errors: a failed component check is reflected in its
// own status field rather than the HTTP status, except that an overall
// "unhealthy" verdict returns 503.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	dbHealth := h.checkDatabase(ctx)
	queueHealth := h.checkQueue(ctx)

	status := "healthy"
	if dbHealth.Status != "ok" || queueHealth.Status != "ok" {
		status = "unhealthy"
	}

	body := fiber.Map{
		"status":   status,
		"database": dbHealth,
		"queue":    queueHealth,
	}
	if queueHealth.Status == "ok" {
		body["queueStats"] = h.queueStats(ctx)
	}

	code := fiber.StatusOK
	if status == "unhealthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(body)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) componentHealth {
	if err := h.store.Ping(ctx); err != nil {
		return componentHealth{Status: "error", Message: err.Error()}
	}
	return componentHealth{Status: "ok"}
}

func (h *HealthHandler) checkQueue(ctx context.Context) componentHealth {
	if err := h.queue.Ping(ctx); err != nil {
		return componentHealth{Status: "error", Message: err.Error()}
	}
	return componentHealth{Status: "ok"}
}

func (h *HealthHandler) queueStats(ctx context.Context) fiber.Map {
	stats := fiber.Map{}
	for _, name := range []string{queue.Folders, queue.Images} {
		counts, err := h.queue.PeekCounts(ctx, name)
		if err != nil {
			continue
		}
		stats[name] = fiber.Map{
			"pending":   counts.Pending,
			"active":    counts.Active,
			"completed": counts.Completed,
			"failed":    counts.Failed,
		}
	}
	return stats
}
