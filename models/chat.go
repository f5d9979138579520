package models

import "time"

// Chat records one exchange with the conversational service. UserID is nil
// for anonymous messages.
type Chat struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UserID    *uint   `gorm:"index"`
	Message   string  `gorm:"type:text;not null"`
	Reply     string  `gorm:"type:text;not null"`
	RiskScore float64 `gorm:"not null;default:0"`
	RiskFlags string  `gorm:"size:512"` // comma-joined matched keywords
}
