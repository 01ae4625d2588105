package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanReceipt is optional dedup/sharing bookkeeping (spec §3): a (user,
// drive-folder) pair with a scan timestamp and an optional deletion marker.
// Not required by the ingestion-to-search core; kept for sharing/dedup
// features layered on top of it.
type ScanReceipt struct {
	ID            uuid.UUID  `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;index"`
	DriveFolderID string     `gorm:"not null;index"`
	ScannedAt     time.Time  `gorm:"not null"`
	DeletedAt     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	User User `gorm:"foreignKey:UserID"`
}

func (ScanReceipt) TableName() string {
	return "scan_receipts"
}

// TableConstraints mirrors the teacher's UserFolderAccess uniqueness pattern:
// one active receipt per user per drive folder.
func (ScanReceipt) TableConstraints() string {
	return "UNIQUE(user_id, drive_folder_id)"
}
