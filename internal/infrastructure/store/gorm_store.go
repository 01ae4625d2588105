package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"driveingest/internal/domain/models"
	"driveingest/internal/pkg/apperr"
	"driveingest/internal/pkg/logger"
)

// GormStore implements Store against Postgres via GORM, grounded on the
// teacher's infrastructure/postgres/*_repository_impl.go pattern: a thin
// struct wrapping *gorm.DB, context-scoped queries, raw SQL for the pgvector
// similarity query (driver-level vector binding is unreliable, spec §9).
type GormStore struct {
	db *gorm.DB

	vectorInfraOnce sync.Once
	vectorInfraErr  error
	vectorDim       int
}

func NewGormStore(db *gorm.DB, vectorDim int) *GormStore {
	return &GormStore{db: db, vectorDim: vectorDim}
}

func (s *GormStore) UpsertFolder(ctx context.Context, driveFolderID, name, originURL string, ownerUserID *uuid.UUID) (*models.Folder, bool, error) {
	var folder models.Folder
	err := s.db.WithContext(ctx).Where("drive_folder_id = ?", driveFolderID).First(&folder).Error
	if err == nil {
		return &folder, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, apperr.New(apperr.StoreUnavailable, "failed to look up folder", err)
	}

	folder = models.Folder{
		DriveFolderID: driveFolderID,
		Name:          name,
		OriginURL:     originURL,
		OwnerUserID:   ownerUserID,
		Status:        models.FolderStatusPending,
	}
	if err := s.db.WithContext(ctx).Create(&folder).Error; err != nil {
		return nil, false, apperr.New(apperr.StoreUnavailable, "failed to create folder", err)
	}
	return &folder, true, nil
}

func (s *GormStore) GetFolder(ctx context.Context, folderID uuid.UUID) (*models.Folder, error) {
	var folder models.Folder
	err := s.db.WithContext(ctx).Where("id = ?", folderID).First(&folder).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperr.NotFoundf("folder %s not found", folderID)
	}
	if err != nil {
		return nil, apperr.New(apperr.StoreUnavailable, "failed to load folder", err)
	}
	return &folder, nil
}

func (s *GormStore) GetFolderByDriveID(ctx context.Context, driveFolderID string) (*models.Folder, error) {
	var folder models.Folder
	err := s.db.WithContext(ctx).Where("drive_folder_id = ?", driveFolderID).First(&folder).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperr.NotFoundf("folder with drive id %s not found", driveFolderID)
	}
	if err != nil {
		return nil, apperr.New(apperr.StoreUnavailable, "failed to load folder", err)
	}
	return &folder, nil
}

func (s *GormStore) LinkFolderOwner(ctx context.Context, folderID, ownerUserID uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.Folder{}).
		Where("id = ? AND owner_user_id IS NULL", folderID).
		Update("owner_user_id", ownerUserID).Error
}

// UpdateFolderProgress recomputes processed/total from a single count query
// inside a transaction (spec §4.4: "the only cross-row invariant ...
// maintained by always recomputing processed from count(status=completed)
// inside the same transaction that updates the folder").
func (s *GormStore) UpdateFolderProgress(ctx context.Context, folderID uuid.UUID) (StatusCounts, error) {
	var counts StatusCounts
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := countImageStatuses(tx, folderID)
		if err != nil {
			return err
		}
		counts = c
		return tx.Model(&models.Folder{}).Where("id = ?", folderID).Updates(map[string]interface{}{
			"total_images":     counts.Total(),
			"processed_images": counts.Completed,
		}).Error
	})
	if err != nil {
		return StatusCounts{}, apperr.New(apperr.StoreUnavailable, "failed to update folder progress", err)
	}
	return counts, nil
}

func (s *GormStore) SetFolderStatus(ctx context.Context, folderID uuid.UUID, status models.FolderStatus) error {
	return s.db.WithContext(ctx).Model(&models.Folder{}).Where("id = ?", folderID).
		Update("status", status).Error
}

func (s *GormStore) CreateImagesBulk(ctx context.Context, images []*models.Image) error {
	if len(images) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(images, 50).Error; err != nil {
		return apperr.New(apperr.StoreUnavailable, "failed to bulk insert images", err)
	}
	return nil
}

func (s *GormStore) GetImage(ctx context.Context, imageID uuid.UUID) (*models.Image, error) {
	var image models.Image
	err := s.db.WithContext(ctx).Where("id = ?", imageID).First(&image).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperr.NotFoundf("image %s not found", imageID)
	}
	if err != nil {
		return nil, apperr.New(apperr.StoreUnavailable, "failed to load image", err)
	}
	return &image, nil
}

func (s *GormStore) ListImagesByFolder(ctx context.Context, folderID uuid.UUID) ([]models.Image, error) {
	var images []models.Image
	err := s.db.WithContext(ctx).Where("folder_id = ?", folderID).Order("name asc").Find(&images).Error
	if err != nil {
		return nil, apperr.New(apperr.StoreUnavailable, "failed to list images", err)
	}
	return images, nil
}

func (s *GormStore) ListPendingImages(ctx context.Context, folderID uuid.UUID, limit int) ([]models.Image, error) {
	var images []models.Image
	q := s.db.WithContext(ctx).Where("folder_id = ? AND status = ?", folderID, models.ImageStatusPending)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&images).Error; err != nil {
		return nil, apperr.New(apperr.StoreUnavailable, "failed to list pending images", err)
	}
	return images, nil
}

func (s *GormStore) CountImagesByStatus(ctx context.Context, folderID uuid.UUID) (StatusCounts, error) {
	counts, err := countImageStatuses(s.db.WithContext(ctx), folderID)
	if err != nil {
		return StatusCounts{}, apperr.New(apperr.StoreUnavailable, "failed to count images", err)
	}
	return counts, nil
}

func countImageStatuses(db *gorm.DB, folderID uuid.UUID) (StatusCounts, error) {
	type row struct {
		Status models.ImageStatus
		Count   int64
	}
	var rows []row
	if err := db.Model(&models.Image{}).
		Select("status, count(*) as count").
		Where("folder_id = ?", folderID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return StatusCounts{}, err
	}

	var c StatusCounts
	for _, r := range rows {
		switch r.Status {
		case models.ImageStatusPending:
			c.Pending = r.Count
		case models.ImageStatusProcessing:
			c.Processing = r.Count
		case models.ImageStatusCompleted:
			c.Completed = r.Count
		case models.ImageStatusFailed:
			c.Failed = r.Count
		}
	}
	return c, nil
}

func (s *GormStore) DeleteImages(ctx context.Context, imageIDs []uuid.UUID) error {
	if len(imageIDs) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("id IN ?", imageIDs).Delete(&models.Image{}).Error; err != nil {
		return apperr.New(apperr.StoreUnavailable, "failed to delete images", err)
	}
	return nil
}

func (s *GormStore) SetImageProcessing(ctx context.Context, imageID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.Image{}).
		Where("id = ? AND status != ?", imageID, models.ImageStatusProcessing).
		Updates(map[string]interface{}{"status": models.ImageStatusProcessing, "error_message": nil})
	if res.Error != nil {
		return apperr.New(apperr.StoreUnavailable, "failed to mark image processing", res.Error)
	}
	return nil
}

// SetImageCompleted performs the single atomic write of spec §4.7 step 6:
// status, caption, tags, vector, and updated_at together. The vector is
// bound as a pgvector.Vector parameter of one raw parameterized UPDATE,
// confined to this persistence-only method; a nil vector writes the other
// columns only and leaves caption_vec untouched.
func (s *GormStore) SetImageCompleted(ctx context.Context, imageID uuid.UUID, caption string, tags []string, vector []float32) error {
	tagStr := strings.Join(tags, ",")

	if vector == nil {
		return s.db.WithContext(ctx).Model(&models.Image{}).Where("id = ?", imageID).
			Updates(map[string]interface{}{
				"status":      models.ImageStatusCompleted,
				"caption":     caption,
				"tags":        tagStr,
				"updated_at":  time.Now(),
			}).Error
	}

	vec := pgvector.NewVector(vector)
	err := s.db.WithContext(ctx).Exec(
		`UPDATE images SET status = ?, caption = ?, tags = ?, caption_vec = ?, updated_at = ? WHERE id = ?`,
		models.ImageStatusCompleted, caption, tagStr, vec, time.Now(), imageID,
	).Error
	if err != nil {
		return apperr.New(apperr.StoreUnavailable, "failed to write completed image row", err)
	}
	return nil
}

func (s *GormStore) SetImageFailed(ctx context.Context, imageID uuid.UUID, errMessage string) error {
	err := s.db.WithContext(ctx).Model(&models.Image{}).Where("id = ?", imageID).
		Updates(map[string]interface{}{
			"status":        models.ImageStatusFailed,
			"error_message": errMessage,
		}).Error
	if err != nil {
		return apperr.New(apperr.StoreUnavailable, "failed to mark image failed", err)
	}
	return nil
}

// ResetImageToPending nulls caption/tags/vector/error atomically alongside
// the status write (spec invariant #6).
func (s *GormStore) ResetImageToPending(ctx context.Context, filter ImageFilter) error {
	q := s.db.WithContext(ctx).Model(&models.Image{})
	switch {
	case filter.ImageID != nil:
		q = q.Where("id = ?", *filter.ImageID)
	case filter.FolderID != nil:
		q = q.Where("folder_id = ?", *filter.FolderID)
	default:
		return apperr.InvalidInputf("ResetImageToPending requires an image or folder filter")
	}

	err := q.Updates(map[string]interface{}{
		"status":        models.ImageStatusPending,
		"caption":       nil,
		"tags":          nil,
		"caption_vec":   nil,
		"error_message": nil,
	}).Error
	if err != nil {
		return apperr.New(apperr.StoreUnavailable, "failed to reset image to pending", err)
	}
	return nil
}

// SearchByFilename ranks results (exact > prefix > substring), case
// insensitive, ties broken by name ascending (spec §4.4, §4.9, §8).
func (s *GormStore) SearchByFilename(ctx context.Context, folderID uuid.UUID, pattern string, limit int) ([]FilenameSearchResult, error) {
	like := "%" + pattern + "%"
	prefixLike := pattern + "%"

	var images []models.Image
	err := s.db.WithContext(ctx).
		Where("folder_id = ? AND name ILIKE ?", folderID, like).
		Order(gorm.Expr(`
			CASE
				WHEN lower(name) = lower(?) THEN 0
				WHEN name ILIKE ? THEN 1
				ELSE 2
			END, name ASC`, pattern, prefixLike)).
		Limit(limit).
		Find(&images).Error
	if err != nil {
		return nil, apperr.New(apperr.StoreUnavailable, "filename search failed", err)
	}

	lowerPattern := strings.ToLower(pattern)
	results := make([]FilenameSearchResult, 0, len(images))
	for _, img := range images {
		similarity := 0.6
		lowerName := strings.ToLower(img.Name)
		switch {
		case lowerName == lowerPattern:
			similarity = 1.0
		case strings.HasPrefix(lowerName, lowerPattern):
			similarity = 0.8
		}
		results = append(results, FilenameSearchResult{Image: img, Similarity: similarity})
	}
	return results, nil
}

// SearchBySimilarity orders by ascending cosine distance via pgvector's <=>
// operator, restricted to completed images with a non-null vector (spec §4.4).
func (s *GormStore) SearchBySimilarity(ctx context.Context, folderID uuid.UUID, queryVector []float32, limit int) ([]SimilarityResult, error) {
	vec := pgvector.NewVector(queryVector)

	rows, err := s.db.WithContext(ctx).Raw(`
		SELECT id, folder_id, drive_file_id, drive_folder_id, drive_folder_path,
			name, mime_type, thumbnail_url, view_url, status, caption, tags,
			caption_vec, error_message, created_at, updated_at,
			1 - (caption_vec <=> ?) as similarity
		FROM images
		WHERE folder_id = ? AND status = ? AND caption_vec IS NOT NULL
		ORDER BY caption_vec <=> ?
		LIMIT ?
	`, vec, folderID, models.ImageStatusCompleted, vec, limit).Rows()
	if err != nil {
		return nil, apperr.New(apperr.StoreUnavailable, "similarity search failed", err)
	}
	defer rows.Close()

	var results []SimilarityResult
	for rows.Next() {
		var img models.Image
		var similarity float64
		if err := rows.Scan(
			&img.ID, &img.FolderID, &img.DriveFileID, &img.DriveFolderID, &img.DriveFolderPath,
			&img.Name, &img.MimeType, &img.ThumbnailURL, &img.ViewURL, &img.Status, &img.Caption, &img.Tags,
			&img.CaptionVec, &img.ErrorMessage, &img.CreatedAt, &img.UpdatedAt,
			&similarity,
		); err != nil {
			return nil, apperr.New(apperr.StoreUnavailable, "failed to scan similarity row", err)
		}
		results = append(results, SimilarityResult{Image: img, Similarity: similarity})
	}
	return results, nil
}

// EnsureVectorExtension runs CREATE EXTENSION on its own, ahead of
// AutoMigrate: the images table's caption_vec column is tagged
// `gorm:"type:vector"`, so the Postgres vector type must exist before
// AutoMigrate ever issues its CREATE TABLE, not after. Safe to call more
// than once; CREATE EXTENSION IF NOT EXISTS is idempotent.
func (s *GormStore) EnsureVectorExtension(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		logger.StoreError("ensure_vector_extension", "vector extension unavailable", err, nil)
		return apperr.New(apperr.VectorBackendUnavailable, "vector extension is not available on this database", err)
	}
	return nil
}

// EnsureVectorInfra is memoized per process (sync.Once): the first caller
// pays the cost of sizing the column and building the HNSW index; everyone
// else gets the cached result, including a cached failure so a down backend
// doesn't retry every search. Must run after AutoMigrate has created the
// images table.
func (s *GormStore) EnsureVectorInfra(ctx context.Context) error {
	s.vectorInfraOnce.Do(func() {
		s.vectorInfraErr = s.ensureVectorInfra(ctx)
	})
	return s.vectorInfraErr
}

func (s *GormStore) ensureVectorInfra(ctx context.Context) error {
	if err := s.EnsureVectorExtension(ctx); err != nil {
		return err
	}

	alterSQL := fmt.Sprintf("ALTER TABLE images ALTER COLUMN caption_vec TYPE vector(%d)", s.vectorDim)
	if err := s.db.WithContext(ctx).Exec(alterSQL).Error; err != nil {
		logger.StoreError("ensure_vector_infra", "failed to size vector column", err, nil)
		return apperr.New(apperr.VectorBackendUnavailable, "failed to size the vector column", err)
	}

	indexSQL := `CREATE INDEX IF NOT EXISTS idx_images_caption_vec_hnsw ON images
		USING hnsw (caption_vec vector_cosine_ops) WITH (m = 16, ef_construction = 64)`
	if err := s.db.WithContext(ctx).Exec(indexSQL).Error; err != nil {
		logger.StoreError("ensure_vector_infra", "failed to create ANN index", err, nil)
		return apperr.New(apperr.VectorBackendUnavailable, "failed to create the ANN index", err)
	}

	return nil
}

func (s *GormStore) StalledProcessingImages(ctx context.Context, olderThan time.Duration) ([]models.Image, error) {
	var images []models.Image
	cutoff := time.Now().Add(-olderThan)
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.ImageStatusProcessing, cutoff).
		Find(&images).Error
	if err != nil {
		return nil, apperr.New(apperr.StoreUnavailable, "failed to list stalled images", err)
	}
	return images, nil
}

func (s *GormStore) FoldersWithPendingImagesNotProcessing(ctx context.Context) ([]models.Folder, error) {
	var folders []models.Folder
	err := s.db.WithContext(ctx).
		Where("status != ? AND id IN (SELECT folder_id FROM images WHERE status = ?)",
			models.FolderStatusProcessing, models.ImageStatusPending).
		Find(&folders).Error
	if err != nil {
		return nil, apperr.New(apperr.StoreUnavailable, "failed to list folders needing recovery", err)
	}
	return folders, nil
}

// FoldersWithPendingImagesNotCompleted returns every non-completed folder
// (status processing, pending, or failed) that has at least one pending
// image, for the Recovery Supervisor's bulk requeue step (spec §4.11 step
// 5). Unlike FoldersWithPendingImagesNotProcessing, this deliberately
// includes status=processing: a single image reset to pending by step 1
// (StalledProcessingImages) never changes its folder's own status, so that
// folder's retry would otherwise never get re-enqueued.
func (s *GormStore) FoldersWithPendingImagesNotCompleted(ctx context.Context) ([]models.Folder, error) {
	var folders []models.Folder
	err := s.db.WithContext(ctx).
		Where("status != ? AND id IN (SELECT folder_id FROM images WHERE status = ?)",
			models.FolderStatusCompleted, models.ImageStatusPending).
		Find(&folders).Error
	if err != nil {
		return nil, apperr.New(apperr.StoreUnavailable, "failed to list folders needing bulk requeue", err)
	}
	return folders, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return apperr.New(apperr.StoreUnavailable, "failed to get database handle", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return apperr.New(apperr.StoreUnavailable, "database ping failed", err)
	}
	return nil
}
