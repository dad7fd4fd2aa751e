package model

import (
	"strings"
	"time"
)

// Priority is the importance of a todo item.
type Priority string

const (
	PriorityHigh Priority = "HIGH"
	PriorityLow  Priority = "LOW"
)

// ParsePriority maps "high" in any casing to PriorityHigh and everything else to PriorityLow.
func ParsePriority(raw string) Priority {
	if strings.EqualFold(strings.TrimSpace(raw), string(PriorityHigh)) {
		return PriorityHigh
	}
	return PriorityLow
}

// TodoItem is a task with an optional deadline.
type TodoItem struct {
	ID              uint   `gorm:"primaryKey"`
	UserID          uint   `gorm:"index;not null"`
	Title           string `gorm:"index"`
	Description     string
	Deadline        *time.Time `gorm:"index"`
	IsCompleted     bool       `gorm:"default:false"`
	Priority        Priority   `gorm:"size:8;not null"`
	AddedToCalendar bool       `gorm:"default:false"`
	EventID         *uint
	CreatedAt       time.Time
	UpdatedAt       time.Time

	Reminders []TodoReminder `gorm:"foreignKey:TodoItemID;constraint:OnDelete:CASCADE;"`
}

// TodoReminder fires MinutesBefore minutes ahead of its todo's deadline.
type TodoReminder struct {
	ID            uint `gorm:"primaryKey"`
	TodoItemID    uint `gorm:"index;not null"`
	MinutesBefore int
	IsSent        bool `gorm:"default:false"`

	TodoItem *TodoItem
}

// FireAt is the instant the reminder becomes due.
func (r TodoReminder) FireAt(deadline time.Time) time.Time {
	return deadline.Add(-time.Duration(r.MinutesBefore) * time.Minute)
}
