package models

import "time"

// Auth provider tags. A user's tag determines which credential path is valid:
// manual requires a password hash, google requires a federated subject.
const (
	ProviderManual = "manual"
	ProviderGoogle = "google"
)

// User model. Email is normalized to lower case before storage and is the
// unique lookup key for every authentication path.
type User struct {
	ID           uint `gorm:"primaryKey"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Name         string    `gorm:"size:255;not null"`
	Email        string    `gorm:"size:255;not null;uniqueIndex"`
	PasswordHash string    `gorm:"size:128"` // empty for pure federated accounts
	AuthProvider string    `gorm:"size:16;not null;default:manual"`
	GoogleSub    string    `gorm:"size:128"`
	ParentName   string    `gorm:"size:255"`
	ParentEmail  string    `gorm:"size:255"`
	ParentPhone  string    `gorm:"size:64"`
	Sessions     []Session `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE;"`
}
