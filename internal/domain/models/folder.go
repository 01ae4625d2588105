package models

import (
	"time"

	"github.com/google/uuid"
)

// FolderStatus is the lifecycle status of a Folder (spec §3).
type FolderStatus string

const (
	FolderStatusPending    FolderStatus = "pending"
	FolderStatusProcessing FolderStatus = "processing"
	FolderStatusCompleted  FolderStatus = "completed"
	FolderStatusFailed     FolderStatus = "failed"
)

// Folder is a drive folder under ingestion, identified externally by its
// drive folder id. total/processed are recomputed from Image row counts on
// every update (spec §4.4) — they are never hand-incremented.
type Folder struct {
	ID uuid.UUID `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`

	DriveFolderID string  `gorm:"uniqueIndex;not null"`
	Name          string  // set from the drive listing's folder name when the Ingest Coordinator creates the row
	OriginURL     string  `gorm:"not null"`
	OwnerUserID   *uuid.UUID `gorm:"type:uuid;index"`

	Status         FolderStatus `gorm:"default:'pending';index;not null"`
	TotalImages    int          `gorm:"default:0"`
	ProcessedImages int         `gorm:"default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Images []Image `gorm:"foreignKey:FolderID;constraint:OnDelete:CASCADE"`
	Owner  *User   `gorm:"foreignKey:OwnerUserID"`
}

func (Folder) TableName() string {
	return "folders"
}
