package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"driveingest/internal/infrastructure/drive"
	"driveingest/internal/pkg/apperr"
)

const thumbnailCacheControl = "public, max-age=7200"

type ThumbnailHandler struct {
	drive *drive.Adapter
}

func NewThumbnailHandler(d *drive.Adapter) *ThumbnailHandler {
	return &ThumbnailHandler{drive: d}
}

// Thumbnail handles the Thumbnail endpoint of spec §6's Public API surface:
// proxies a freshly-resolved drive thumbnail, clamped to [32,1600] px, with a
// 2-hour public cache lifetime.
func (h *ThumbnailHandler) Thumbnail(c *fiber.Ctx) error {
	driveFileID := c.Params("driveFileId")
	if driveFileID == "" {
		return apperr.New(apperr.InvalidInput, "driveFileId is required", nil)
	}

	size := 220
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return apperr.New(apperr.InvalidInput, "size must be an integer", err)
		}
		size = parsed
	}

	data, contentType, err := h.drive.FetchThumbnail(c.UserContext(), driveFileID, size, nil)
	if err != nil {
		return err
	}

	if contentType != "" {
		c.Set(fiber.HeaderContentType, contentType)
	}
	c.Set(fiber.HeaderCacheControl, thumbnailCacheControl)
	return c.Send(data)
}
