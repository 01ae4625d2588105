package ingest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"driveingest/internal/domain/models"
)

func TestToSnapshotCopiesFolderFields(t *testing.T) {
	createdAt := time.Now()
	folder := &models.Folder{
		ID:              uuid.New(),
		Status:          models.FolderStatusProcessing,
		Name:            "vacation photos",
		TotalImages:     10,
		ProcessedImages: 4,
		CreatedAt:       createdAt,
	}

	snap := toSnapshot(folder)

	assert.Equal(t, folder.ID, snap.ID)
	assert.Equal(t, folder.Status, snap.Status)
	assert.Equal(t, folder.Name, snap.Name)
	assert.Equal(t, folder.TotalImages, snap.Total)
	assert.Equal(t, folder.ProcessedImages, snap.Processed)
	assert.Equal(t, createdAt, snap.CreatedAt)
}
