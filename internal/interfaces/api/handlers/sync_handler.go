package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"driveingest/internal/infrastructure/drive"
	"driveingest/internal/infrastructure/store"
	"driveingest/internal/pkg/apperr"
	"driveingest/internal/pkg/response"
	"driveingest/internal/sync"
)

type SyncHandler struct {
	engine *sync.Engine
	store  store.Store
}

func NewSyncHandler(e *sync.Engine, st store.Store) *SyncHandler {
	return &SyncHandler{engine: e, store: st}
}

type syncRequest struct {
	FolderID   uuid.UUID         `json:"folderId"`
	Credential *drive.Credential `json:"credential,omitempty"`
}

// Sync handles the Sync endpoint of spec §6's Public API surface.
func (h *SyncHandler) Sync(c *fiber.Ctx) error {
	var req syncRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.New(apperr.InvalidInput, "malformed request body", err)
	}
	if req.FolderID == uuid.Nil {
		return apperr.New(apperr.InvalidInput, "folderId is required", nil)
	}

	if _, err := h.store.GetFolder(c.UserContext(), req.FolderID); err != nil {
		return err
	}

	result, err := h.engine.Run(c.UserContext(), req.FolderID, req.Credential)
	if err != nil {
		return err
	}

	return response.SuccessResponse(c, "folder synced", fiber.Map{
		"added":   result.Added,
		"removed": result.Removed,
		"status":  result.Status,
		"totals": fiber.Map{
			"total":     result.Total,
			"processed": result.Processed,
		},
	})
}
