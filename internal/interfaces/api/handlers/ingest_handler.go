package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"driveingest/internal/infrastructure/drive"
	"driveingest/internal/ingest"
	"driveingest/internal/pkg/apperr"
	"driveingest/internal/pkg/response"
)

type IngestHandler struct {
	coordinator *ingest.Coordinator
}

func NewIngestHandler(c *ingest.Coordinator) *IngestHandler {
	return &IngestHandler{coordinator: c}
}

type ingestRequest struct {
	FolderURL  string            `json:"folderUrl"`
	Credential *drive.Credential `json:"credential,omitempty"`
}

// Ingest handles the Ingest endpoint of spec §6's Public API surface.
func (h *IngestHandler) Ingest(c *fiber.Ctx) error {
	var req ingestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.New(apperr.InvalidInput, "malformed request body", err)
	}
	if req.FolderURL == "" {
		return apperr.New(apperr.InvalidInput, "folderUrl is required", nil)
	}

	var ownerUserID *uuid.UUID
	if uid, ok := c.Locals("userID").(uuid.UUID); ok {
		ownerUserID = &uid
	}

	snapshot, err := h.coordinator.Ingest(c.UserContext(), req.FolderURL, ownerUserID, req.Credential)
	if err != nil {
		return err
	}
	return response.SuccessResponse(c, "folder ingested", snapshot)
}
