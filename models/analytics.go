package models

import "time"

// Analytics is a per-message risk datapoint, kept separate from the chat log
// so it can be queried without the message bodies.
type Analytics struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UserID    *uint     `gorm:"index"`
	Date      time.Time `gorm:"index;not null"`
	RiskScore float64   `gorm:"not null;default:0"`
	Keywords  string    `gorm:"size:512"`
}
