package model

import "time"

// DefaultSummaryTime is the HH:MM wall-clock time new users receive their daily summary at.
const DefaultSummaryTime = "07:00"

// User owns events, todo items and tags. Deleting a user removes all of them.
type User struct {
	ID           uint    `gorm:"primaryKey"`
	Username     string  `gorm:"uniqueIndex;not null"`
	Email        *string `gorm:"uniqueIndex"`
	PasswordHash string
	FullName     string
	IsActive     bool   `gorm:"not null"`
	SummaryTime  string `gorm:"size:5;not null"`
	TelegramID   *int64 `gorm:"uniqueIndex"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Events []Event    `gorm:"constraint:OnDelete:CASCADE;"`
	Todos  []TodoItem `gorm:"constraint:OnDelete:CASCADE;"`
	Tags   []Tag      `gorm:"constraint:OnDelete:CASCADE;"`
}
