package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// ImageStatus is the lifecycle status of an Image (spec §3, §4.7).
type ImageStatus string

const (
	ImageStatusPending    ImageStatus = "pending"
	ImageStatusProcessing ImageStatus = "processing"
	ImageStatusCompleted  ImageStatus = "completed"
	ImageStatusFailed     ImageStatus = "failed"
)

// SupportedMimeTypes is the admitted image MIME set (spec §6). Anything else
// is skipped at listing time and rejected at processing time.
var SupportedMimeTypes = map[string]bool{
	"image/jpeg":    true,
	"image/png":     true,
	"image/gif":     true,
	"image/webp":    true,
	"image/bmp":     true,
	"image/svg+xml": true,
}

func IsSupportedMimeType(mime string) bool {
	return SupportedMimeTypes[mime]
}

// Image is one drive file under a Folder. caption/tags/captionVec are all
// non-null iff status is completed (spec invariant #3); resetting to pending
// nulls all three alongside the error message in the same write.
type Image struct {
	ID       uuid.UUID `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	FolderID uuid.UUID `gorm:"type:uuid;not null;index"`

	DriveFileID     string `gorm:"uniqueIndex;not null"`
	DriveFolderID   string `gorm:"index"`
	DriveFolderPath string // display-only grouping, populated during recursive listing

	Name         string `gorm:"not null"`
	MimeType     string `gorm:"not null"`
	ThumbnailURL string
	ViewURL      string

	SizeBytes     *int64
	Checksum      string
	DriveModifiedAt *time.Time
	VersionToken  string // used to build the image job idempotency key

	Status ImageStatus `gorm:"default:'pending';index;not null"`

	Caption    *string
	Tags       *string // comma-separated
	CaptionVec *pgvector.Vector `gorm:"type:vector"`
	ErrorMessage *string

	CreatedAt time.Time
	UpdatedAt time.Time

	Folder Folder `gorm:"foreignKey:FolderID"`
}

func (Image) TableName() string {
	return "images"
}

// TagList splits the stored comma-separated tag string back into a slice.
func (i *Image) TagList() []string {
	if i.Tags == nil || *i.Tags == "" {
		return nil
	}
	out := []string{}
	start := 0
	s := *i.Tags
	for idx := 0; idx <= len(s); idx++ {
		if idx == len(s) || s[idx] == ',' {
			if idx > start {
				out = append(out, s[start:idx])
			}
			start = idx + 1
		}
	}
	return out
}
