// Package store implements C4: persisting folders, images, and vectors,
// ensuring the vector extension/index, and issuing hybrid search queries.
// Grounded on the teacher's infrastructure/postgres package (GORM/Postgres
// wiring, pgvector raw-SQL similarity queries from face_repository_impl.go)
// generalized from face embeddings to image caption embeddings.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"driveingest/internal/domain/models"
)

// ImageFilter selects the target of ResetImageToPending: either a single
// image id or every image in a folder.
type ImageFilter struct {
	ImageID  *uuid.UUID
	FolderID *uuid.UUID
}

// FilenameSearchResult pairs an Image with its lexical similarity pseudo-score.
type FilenameSearchResult struct {
	Image      models.Image
	Similarity float64
}

// SimilarityResult pairs an Image with its cosine similarity score.
type SimilarityResult struct {
	Image      models.Image
	Similarity float64
}

// StatusCounts is the per-folder breakdown used to recompute progress.
type StatusCounts struct {
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
}

func (c StatusCounts) Total() int64 {
	return c.Pending + c.Processing + c.Completed + c.Failed
}

// Store is the transport-agnostic contract surface of C4 (spec §4.4).
type Store interface {
	UpsertFolder(ctx context.Context, driveFolderID, name, originURL string, ownerUserID *uuid.UUID) (folder *models.Folder, created bool, err error)
	GetFolder(ctx context.Context, folderID uuid.UUID) (*models.Folder, error)
	GetFolderByDriveID(ctx context.Context, driveFolderID string) (*models.Folder, error)
	LinkFolderOwner(ctx context.Context, folderID uuid.UUID, ownerUserID uuid.UUID) error

	// UpdateFolderProgress recomputes processed/total from row counts inside
	// one transaction (spec §4.4 concurrency rule) and returns the refreshed
	// counts; it does not itself decide status.
	UpdateFolderProgress(ctx context.Context, folderID uuid.UUID) (StatusCounts, error)
	SetFolderStatus(ctx context.Context, folderID uuid.UUID, status models.FolderStatus) error

	CreateImagesBulk(ctx context.Context, images []*models.Image) error
	GetImage(ctx context.Context, imageID uuid.UUID) (*models.Image, error)
	ListImagesByFolder(ctx context.Context, folderID uuid.UUID) ([]models.Image, error)
	ListPendingImages(ctx context.Context, folderID uuid.UUID, limit int) ([]models.Image, error)
	CountImagesByStatus(ctx context.Context, folderID uuid.UUID) (StatusCounts, error)
	DeleteImages(ctx context.Context, imageIDs []uuid.UUID) error

	SetImageProcessing(ctx context.Context, imageID uuid.UUID) error
	SetImageCompleted(ctx context.Context, imageID uuid.UUID, caption string, tags []string, vector []float32) error
	SetImageFailed(ctx context.Context, imageID uuid.UUID, errMessage string) error
	// ResetImageToPending MUST null caption/tags/vector/error atomically
	// (spec invariant #6).
	ResetImageToPending(ctx context.Context, filter ImageFilter) error

	SearchByFilename(ctx context.Context, folderID uuid.UUID, pattern string, limit int) ([]FilenameSearchResult, error)
	SearchBySimilarity(ctx context.Context, folderID uuid.UUID, queryVector []float32, limit int) ([]SimilarityResult, error)

	// EnsureVectorExtension creates the Postgres vector extension ahead of
	// AutoMigrate, which needs the type to exist to create the images table.
	EnsureVectorExtension(ctx context.Context) error

	// EnsureVectorInfra idempotently provisions the vector extension and ANN
	// index. Memoized per process; returns a VectorBackendUnavailable
	// *apperr.Error if the backend genuinely cannot support it.
	EnsureVectorInfra(ctx context.Context) error

	// StalledProcessingImages returns images stuck in `processing` longer
	// than the given age, for the Recovery Supervisor (C11).
	StalledProcessingImages(ctx context.Context, olderThan time.Duration) ([]models.Image, error)

	// FoldersWithPendingImagesNotProcessing supports the Recovery
	// Supervisor's folder reconciliation sweep (spec §4.11 step 3).
	FoldersWithPendingImagesNotProcessing(ctx context.Context) ([]models.Folder, error)

	// FoldersWithPendingImagesNotCompleted supports the Recovery
	// Supervisor's bulk requeue sweep (spec §4.11 step 5): every
	// non-completed folder with pending work, including status=processing.
	FoldersWithPendingImagesNotCompleted(ctx context.Context) ([]models.Folder, error)

	// Ping checks database connectivity for the Health endpoint (spec §6).
	Ping(ctx context.Context) error
}
