package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"driveingest/internal/domain/models"
	"driveingest/internal/infrastructure/store"
	"driveingest/internal/pkg/apperr"
	"driveingest/internal/pkg/response"
	"driveingest/internal/search"
)

type FolderHandler struct {
	store store.Store
}

func NewFolderHandler(st store.Store) *FolderHandler {
	return &FolderHandler{store: st}
}

// imageView is one image list-endpoint entry, caption cleaned per spec §4.9/§9.
type imageView struct {
	ID           uuid.UUID          `json:"id"`
	Name         string             `json:"name"`
	MimeType     string             `json:"mimeType"`
	ThumbnailURL string             `json:"thumbnailUrl"`
	ViewURL      string             `json:"viewUrl"`
	Status       models.ImageStatus `json:"status"`
	Caption      string             `json:"caption,omitempty"`
	Tags         []string           `json:"tags,omitempty"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
}

// List handles the "List folder" endpoint of spec §6's Public API surface.
func (h *FolderHandler) List(c *fiber.Ctx) error {
	folderID, err := uuid.Parse(c.Params("folderId"))
	if err != nil {
		return apperr.New(apperr.InvalidInput, "folderId must be a uuid", err)
	}

	folder, err := h.store.GetFolder(c.UserContext(), folderID)
	if err != nil {
		return err
	}

	images, err := h.store.ListImagesByFolder(c.UserContext(), folderID)
	if err != nil {
		return err
	}

	views := make([]imageView, 0, len(images))
	for _, img := range images {
		view := imageView{
			ID:           img.ID,
			Name:         img.Name,
			MimeType:     img.MimeType,
			ThumbnailURL: img.ThumbnailURL,
			ViewURL:      img.ViewURL,
			Status:       img.Status,
			Tags:         img.TagList(),
		}
		if img.Caption != nil {
			view.Caption = search.CleanCaption(*img.Caption)
		}
		if img.ErrorMessage != nil {
			view.ErrorMessage = *img.ErrorMessage
		}
		views = append(views, view)
	}

	return response.SuccessResponse(c, "folder retrieved", fiber.Map{
		"folder": fiber.Map{
			"id":              folder.ID,
			"name":            folder.Name,
			"status":          folder.Status,
			"totalImages":     folder.TotalImages,
			"processedImages": folder.ProcessedImages,
			"createdAt":       folder.CreatedAt,
		},
		"images": views,
	})
}
