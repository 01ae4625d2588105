// Package ingest implements C10: validating a submitted folder URL, and
// either re-running Sync against an existing folder or bootstrapping a new
// one. Grounded on the teacher's application/serviceimpl layer (the
// orchestration-over-repositories shape that composes Drive, Store, and the
// Queue) generalized from the teacher's "share a folder" flow to this
// domain's ingest contract (spec §4.10).
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"driveingest/internal/domain/models"
	"driveingest/internal/infrastructure/drive"
	"driveingest/internal/infrastructure/queue"
	"driveingest/internal/infrastructure/store"
	"driveingest/internal/pkg/apperr"
	"driveingest/internal/pkg/logger"
	syncengine "driveingest/internal/sync"
)

// Snapshot is the folder view spec §4.10 step 5 / §6's Ingest endpoint returns.
type Snapshot struct {
	ID        uuid.UUID           `json:"id"`
	Status    models.FolderStatus `json:"status"`
	Name      string              `json:"name"`
	Total     int                 `json:"totalImages"`
	Processed int                 `json:"processedImages"`
	CreatedAt time.Time           `json:"createdAt"`
}

type Coordinator struct {
	store store.Store
	drive *drive.Adapter
	queue *queue.Queue
	sync  *syncengine.Engine

	maxImagesPerFolder int
}

func New(st store.Store, driveAdapter *drive.Adapter, q *queue.Queue, syncEngine *syncengine.Engine, maxImagesPerFolder int) *Coordinator {
	return &Coordinator{store: st, drive: driveAdapter, queue: q, sync: syncEngine, maxImagesPerFolder: maxImagesPerFolder}
}

// Ingest implements spec §4.10's full flow.
func (c *Coordinator) Ingest(ctx context.Context, folderURL string, ownerUserID *uuid.UUID, cred *drive.Credential) (*Snapshot, error) {
	driveFolderID, err := drive.ParseFolderURL(folderURL)
	if err != nil {
		return nil, err
	}

	existing, err := c.store.GetFolderByDriveID(ctx, driveFolderID)
	if err == nil {
		return c.ingestExisting(ctx, existing, ownerUserID, cred)
	}
	if !apperr.Is(err, apperr.NotFound) {
		return nil, err
	}

	return c.ingestNew(ctx, driveFolderID, folderURL, ownerUserID, cred)
}

func (c *Coordinator) ingestExisting(ctx context.Context, folder *models.Folder, ownerUserID *uuid.UUID, cred *drive.Credential) (*Snapshot, error) {
	if ownerUserID != nil && folder.OwnerUserID == nil {
		if err := c.store.LinkFolderOwner(ctx, folder.ID, *ownerUserID); err != nil {
			return nil, err
		}
	}

	if _, err := c.sync.Run(ctx, folder.ID, cred); err != nil {
		return nil, err
	}

	refreshed, err := c.store.GetFolder(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	return toSnapshot(refreshed), nil
}

func (c *Coordinator) ingestNew(ctx context.Context, driveFolderID, originURL string, ownerUserID *uuid.UUID, cred *drive.Credential) (*Snapshot, error) {
	listResult, err := c.drive.ListImagesRecursive(ctx, driveFolderID, cred)
	if err != nil {
		return nil, err
	}

	if c.maxImagesPerFolder > 0 && len(listResult.Images) > c.maxImagesPerFolder {
		return nil, apperr.New(apperr.FolderCapExceeded, fmt.Sprintf(
			"folder has %d images, exceeding the cap of %d", len(listResult.Images), c.maxImagesPerFolder), nil)
	}
	if len(listResult.Images) == 0 {
		return nil, apperr.New(apperr.EmptyFolder, "folder contains no supported images", nil)
	}

	folder, _, err := c.store.UpsertFolder(ctx, driveFolderID, listResult.FolderName, originURL, ownerUserID)
	if err != nil {
		return nil, err
	}

	rows := make([]*models.Image, 0, len(listResult.Images))
	for _, img := range listResult.Images {
		rows = append(rows, &models.Image{
			ID:              uuid.New(),
			FolderID:        folder.ID,
			DriveFileID:     img.DriveFileID,
			DriveFolderID:   img.DriveFolderID,
			DriveFolderPath: img.DriveFolderPath,
			Name:            img.Name,
			MimeType:        img.MimeType,
			ThumbnailURL:    img.ThumbnailURL,
			ViewURL:         img.ViewURL,
			VersionToken:    img.VersionToken,
			Status:          models.ImageStatusPending,
		})
	}
	if err := c.store.CreateImagesBulk(ctx, rows); err != nil {
		return nil, err
	}

	if _, err := c.store.UpdateFolderProgress(ctx, folder.ID); err != nil {
		return nil, err
	}

	jobID := fmt.Sprintf("folder:%s:%d", driveFolderID, time.Now().UnixMilli())
	payload := struct {
		FolderID   uuid.UUID         `json:"folderId"`
		Credential *drive.Credential `json:"credential,omitempty"`
	}{FolderID: folder.ID, Credential: cred}
	if err := c.queue.Enqueue(ctx, queue.Folders, jobID, payload); err != nil {
		return nil, err
	}

	logger.Ingest("new_folder_ingested", "new folder ingested", map[string]interface{}{
		"folderId": folder.ID.String(), "driveFolderId": driveFolderID, "images": len(rows),
	})

	refreshed, err := c.store.GetFolder(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	return toSnapshot(refreshed), nil
}

func toSnapshot(folder *models.Folder) *Snapshot {
	return &Snapshot{
		ID:        folder.ID,
		Status:    folder.Status,
		Name:      folder.Name,
		Total:     folder.TotalImages,
		Processed: folder.ProcessedImages,
		CreatedAt: folder.CreatedAt,
	}
}
