package models

import (
	"time"

	"github.com/google/uuid"
)

// User is optional bookkeeping (spec §3): an opaque id plus an external auth
// id, used only to resolve the "owning user" for a Folder and to carry a
// per-request drive credential. Folders weakly reference User — a Folder
// outlives its owner's row on user deletion.
type User struct {
	ID         uuid.UUID `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	ExternalAuthID string `gorm:"uniqueIndex;not null"`
	Email      string    `gorm:"uniqueIndex"`

	DriveAccessToken  string
	DriveRefreshToken string
	DriveTokenExpiry  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time

	Folders []Folder `gorm:"foreignKey:OwnerUserID"`
}

func (User) TableName() string {
	return "users"
}
