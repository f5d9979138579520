package models

import "time"

// Session binds the hash of an issued refresh token to a user. The raw token
// never touches the database. Rotation deletes the row and creates a new one;
// a session is never updated in place.
type Session struct {
	ID               string `gorm:"primaryKey;size:36"` // server-generated UUID, unrelated to the user id
	CreatedAt        time.Time
	UserID           uint      `gorm:"index;not null"`
	RefreshTokenHash string    `gorm:"size:128;not null"`
	ExpiresAt        time.Time `gorm:"index;not null"`
	UserAgent        string    `gorm:"size:512"`
	IPAddress        string    `gorm:"size:64"`
}
