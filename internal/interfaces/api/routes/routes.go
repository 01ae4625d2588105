// Package routes wires the Handlers composition root into Fiber route
// groups, grounded on the teacher's interfaces/api/routes/routes.go
// top-level SetupRoutes function; every route is registered directly in
// the one SetupRoutes below.
package routes

import (
	"github.com/gofiber/fiber/v2"
	gofiberws "github.com/gofiber/websocket/v2"

	"driveingest/internal/interfaces/api/handlers"
	"driveingest/internal/interfaces/api/middleware"
	ws "driveingest/internal/interfaces/api/websocket"
	"driveingest/internal/pkg/config"
)

func SetupRoutes(app *fiber.App, h *handlers.Handlers, hub *ws.Hub, cfg *config.Config) {
	app.Get("/health", h.Health.Health)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "drive ingest and hybrid search API",
			"version": "1.0.0",
			"docs":    "/api/v1",
			"health":  "/health",
		})
	})

	api := app.Group("/api/v1")

	api.Post("/ingest", middleware.OptionalAuth(cfg.JWT.Secret), h.Ingest.Ingest)
	api.Post("/sync", h.Sync.Sync)
	api.Get("/folders/:folderId", h.Folder.List)
	api.Get("/search", h.Search.Search)
	api.Post("/retry", h.Retry.Retry)
	api.Get("/thumbnails/:driveFileId", h.Thumbnail.Thumbnail)

	admin := api.Group("/admin")
	admin.Get("/logs", h.Admin.Logs)

	wsHandler := ws.NewHandler(hub)
	app.Get("/ws", wsHandler.Upgrade, gofiberws.New(wsHandler.Serve))
}
