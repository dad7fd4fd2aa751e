package model

import "time"

// DefaultTagColor is used when a tag is created without a color.
const DefaultTagColor = "#3498db"

// Tag labels events. Names are unique per user.
type Tag struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"index:idx_user_tag_name,unique;not null"`
	Name      string `gorm:"index:idx_user_tag_name,unique;not null"`
	Color     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Event is a calendar entry. Start and end are stored as naive UTC wall-clock
// instants (see Normalize); ICSUID identifies the event across ICS round-trips
// and is never regenerated once assigned.
type Event struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"index;uniqueIndex:idx_user_ics_uid;not null"`
	Title       string `gorm:"index"`
	Description string
	StartTime   time.Time `gorm:"index"`
	EndTime     time.Time `gorm:"index"`
	Location    string
	IsAllDay    bool   `gorm:"default:false"`
	ICSUID      string `gorm:"column:ics_uid;uniqueIndex:idx_user_ics_uid"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Reminders []Reminder `gorm:"constraint:OnDelete:CASCADE;"`
	Tags      []Tag      `gorm:"many2many:event_tags;constraint:OnDelete:CASCADE;"`
}

// TagNames returns the names of the attached tags in attachment order.
func (e *Event) TagNames() []string {
	names := make([]string, 0, len(e.Tags))
	for _, tag := range e.Tags {
		names = append(names, tag.Name)
	}
	return names
}

// Reminder fires MinutesBefore minutes ahead of its event's start.
// IsSent only ever moves from false to true.
type Reminder struct {
	ID            uint `gorm:"primaryKey"`
	EventID       uint `gorm:"index;not null"`
	MinutesBefore int
	IsSent        bool `gorm:"default:false"`

	Event *Event
}

// FireAt is the instant the reminder becomes due.
func (r Reminder) FireAt(start time.Time) time.Time {
	return start.Add(-time.Duration(r.MinutesBefore) * time.Minute)
}
