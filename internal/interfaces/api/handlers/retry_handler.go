package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"driveingest/internal/domain/models"
	"driveingest/internal/infrastructure/queue"
	"driveingest/internal/infrastructure/store"
	"driveingest/internal/pkg/apperr"
	"driveingest/internal/pkg/response"
)

const retryBatchSize = 5

type RetryHandler struct {
	store store.Store
	queue *queue.Queue
}

func NewRetryHandler(st store.Store, q *queue.Queue) *RetryHandler {
	return &RetryHandler{store: st, queue: q}
}

type retryRequest struct {
	ImageID  *uuid.UUID `json:"imageId,omitempty"`
	FolderID *uuid.UUID `json:"folderId,omitempty"`
}

// Retry handles the Retry endpoint of spec §6's Public API surface: either a
// single image or every failed image in a folder is reset to pending and
// re-enqueued. A bare folder filter on ResetImageToPending would reset every
// image regardless of status, so the folder path resets only images this
// handler has first confirmed are failed.
func (h *RetryHandler) Retry(c *fiber.Ctx) error {
	var req retryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.New(apperr.InvalidInput, "malformed request body", err)
	}

	switch {
	case req.ImageID != nil && req.FolderID != nil:
		return apperr.New(apperr.InvalidInput, "specify imageId or folderId, not both", nil)
	case req.ImageID != nil:
		return h.retryImage(c, *req.ImageID)
	case req.FolderID != nil:
		return h.retryFolder(c, *req.FolderID)
	default:
		return apperr.New(apperr.InvalidInput, "imageId or folderId is required", nil)
	}
}

func (h *RetryHandler) retryImage(c *fiber.Ctx, imageID uuid.UUID) error {
	image, err := h.store.GetImage(c.UserContext(), imageID)
	if err != nil {
		return err
	}

	if err := h.store.ResetImageToPending(c.UserContext(), store.ImageFilter{ImageID: &imageID}); err != nil {
		return err
	}
	if err := h.enqueueBatch(c.UserContext(), image.FolderID, []uuid.UUID{imageID}); err != nil {
		return err
	}

	return response.SuccessResponse(c, "image queued for retry", fiber.Map{"queuedCount": 1})
}

func (h *RetryHandler) retryFolder(c *fiber.Ctx, folderID uuid.UUID) error {
	if _, err := h.store.GetFolder(c.UserContext(), folderID); err != nil {
		return err
	}

	images, err := h.store.ListImagesByFolder(c.UserContext(), folderID)
	if err != nil {
		return err
	}

	var failed []uuid.UUID
	for _, img := range images {
		if img.Status == models.ImageStatusFailed {
			failed = append(failed, img.ID)
		}
	}

	for _, id := range failed {
		id := id
		if err := h.store.ResetImageToPending(c.UserContext(), store.ImageFilter{ImageID: &id}); err != nil {
			return err
		}
	}

	for batchStart := 0; batchStart < len(failed); batchStart += retryBatchSize {
		end := batchStart + retryBatchSize
		if end > len(failed) {
			end = len(failed)
		}
		if err := h.enqueueBatch(c.UserContext(), folderID, failed[batchStart:end]); err != nil {
			return err
		}
	}

	return response.SuccessResponse(c, "folder images queued for retry", fiber.Map{"queuedCount": len(failed)})
}

func (h *RetryHandler) enqueueBatch(ctx context.Context, folderID uuid.UUID, imageIDs []uuid.UUID) error {
	ids := make([]string, 0, len(imageIDs))
	for _, id := range imageIDs {
		ids = append(ids, id.String())
	}
	jobID := "retry:" + folderID.String() + ":" + time.Now().Format("20060102150405.000000000") + ":" + ids[0]
	payload := struct {
		FolderID string   `json:"folderId"`
		ImageIDs []string `json:"imageIds"`
	}{FolderID: folderID.String(), ImageIDs: ids}
	return h.queue.Enqueue(ctx, queue.Images, jobID, payload)
}
