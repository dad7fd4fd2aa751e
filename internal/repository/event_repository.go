package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"daily-calendar/internal/model"
)

// EventFilter narrows ListByUser. Zero values disable a bound.
type EventFilter struct {
	From  *time.Time // events ending at or after From
	To    *time.Time // events starting at or before To
	TagID *uint
}

// EventRepository handles events, their reminders and tag links.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *EventRepository) WithTx(tx *gorm.DB) *EventRepository {
	return &EventRepository{db: tx}
}

// Create inserts the event with its reminders and links to already persisted tags.
func (r *EventRepository) Create(ctx context.Context, event *model.Event) error {
	if err := r.db.WithContext(ctx).Omit("Tags.*").Create(event).Error; err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (r *EventRepository) preloaded(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Reminders", func(db *gorm.DB) *gorm.DB { return db.Order("reminders.id ASC") }).
		Preload("Tags", func(db *gorm.DB) *gorm.DB { return db.Order("tags.id ASC") })
}

func (r *EventRepository) FindByID(ctx context.Context, userID, eventID uint) (*model.Event, error) {
	var event model.Event
	if err := r.preloaded(ctx).Where("user_id = ? AND id = ?", userID, eventID).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// FindByUID looks an event up by its ICS identity within one user's calendar.
// It returns (nil, nil) when no such event exists.
func (r *EventRepository) FindByUID(ctx context.Context, userID uint, uid string) (*model.Event, error) {
	var event model.Event
	err := r.preloaded(ctx).Where("user_id = ? AND ics_uid = ?", userID, uid).First(&event).Error
	switch {
	case err == nil:
		return &event, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("find event by uid: %w", err)
	}
}

func (r *EventRepository) ListByUser(ctx context.Context, userID uint, filter EventFilter) ([]model.Event, error) {
	q := r.preloaded(ctx).Where("events.user_id = ?", userID)
	if filter.From != nil {
		q = q.Where("events.end_time >= ?", model.Normalize(*filter.From))
	}
	if filter.To != nil {
		q = q.Where("events.start_time <= ?", model.Normalize(*filter.To))
	}
	if filter.TagID != nil {
		q = q.Where("events.id IN (?)", r.db.Table("event_tags").Select("event_id").Where("tag_id = ?", *filter.TagID))
	}
	var events []model.Event
	if err := q.Order("events.start_time ASC, events.id ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ListStartingBetween returns events with from <= start < to.
func (r *EventRepository) ListStartingBetween(ctx context.Context, userID uint, from, to time.Time) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND start_time >= ? AND start_time < ?", userID, model.Normalize(from), model.Normalize(to)).
		Order("start_time ASC, id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Save writes the event's own columns. Reminders and tags are managed separately.
func (r *EventRepository) Save(ctx context.Context, event *model.Event) error {
	if err := r.db.WithContext(ctx).Omit("Reminders", "Tags").Save(event).Error; err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// SetUID persists an ICS identity assigned after creation.
func (r *EventRepository) SetUID(ctx context.Context, eventID uint, uid string) error {
	if err := r.db.WithContext(ctx).Model(&model.Event{}).Where("id = ?", eventID).Update("ics_uid", uid).Error; err != nil {
		return fmt.Errorf("set event uid: %w", err)
	}
	return nil
}

// ReplaceReminders discards every reminder of the event and creates fresh unsent
// ones with the given offsets.
func (r *EventRepository) ReplaceReminders(ctx context.Context, eventID uint, minutes []int) ([]model.Reminder, error) {
	db := r.db.WithContext(ctx)
	if err := db.Where("event_id = ?", eventID).Delete(&model.Reminder{}).Error; err != nil {
		return nil, fmt.Errorf("delete reminders: %w", err)
	}
	reminders := make([]model.Reminder, 0, len(minutes))
	for _, m := range minutes {
		reminders = append(reminders, model.Reminder{EventID: eventID, MinutesBefore: m})
	}
	if len(reminders) == 0 {
		return reminders, nil
	}
	if err := db.Create(&reminders).Error; err != nil {
		return nil, fmt.Errorf("create reminders: %w", err)
	}
	return reminders, nil
}

// ResetReminders marks every reminder of the event unsent again.
func (r *EventRepository) ResetReminders(ctx context.Context, eventID uint) error {
	if err := r.db.WithContext(ctx).Model(&model.Reminder{}).Where("event_id = ?", eventID).Update("is_sent", false).Error; err != nil {
		return fmt.Errorf("reset reminders: %w", err)
	}
	return nil
}

// ReplaceTags sets the event's tag links to exactly tags.
func (r *EventRepository) ReplaceTags(ctx context.Context, event *model.Event, tags []model.Tag) error {
	if err := r.db.WithContext(ctx).Exec("DELETE FROM event_tags WHERE event_id = ?", event.ID).Error; err != nil {
		return fmt.Errorf("clear event tags: %w", err)
	}
	event.Tags = nil
	return r.AttachTags(ctx, event, tags)
}

// AttachTags links tags the event does not carry yet. Already linked tags are left alone.
func (r *EventRepository) AttachTags(ctx context.Context, event *model.Event, tags []model.Tag) error {
	linked := make(map[uint]bool, len(event.Tags))
	for _, tag := range event.Tags {
		linked[tag.ID] = true
	}
	db := r.db.WithContext(ctx)
	for _, tag := range tags {
		if linked[tag.ID] {
			continue
		}
		if err := db.Exec("INSERT INTO event_tags (event_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING", event.ID, tag.ID).Error; err != nil {
			return fmt.Errorf("attach tag %q: %w", tag.Name, err)
		}
		linked[tag.ID] = true
		event.Tags = append(event.Tags, tag)
	}
	return nil
}

// Delete removes the event together with its reminders and tag links.
func (r *EventRepository) Delete(ctx context.Context, userID, eventID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var event model.Event
		if err := tx.Where("user_id = ? AND id = ?", userID, eventID).First(&event).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", event.ID).Delete(&model.Reminder{}).Error; err != nil {
			return fmt.Errorf("delete reminders: %w", err)
		}
		if err := tx.Exec("DELETE FROM event_tags WHERE event_id = ?", event.ID).Error; err != nil {
			return fmt.Errorf("delete event tags: %w", err)
		}
		if err := tx.Delete(&event).Error; err != nil {
			return fmt.Errorf("delete event: %w", err)
		}
		return nil
	})
}

// PendingReminders returns unsent reminders whose event starts after now.
// A positive lookahead further limits the scan to events starting within
// (now, now+lookahead]; zero or negative scans every future event.
func (r *EventRepository) PendingReminders(ctx context.Context, now time.Time, lookahead time.Duration) ([]model.Reminder, error) {
	now = model.Normalize(now)
	q := r.db.WithContext(ctx).
		Joins("JOIN events ON events.id = reminders.event_id").
		Where("reminders.is_sent = ? AND events.start_time > ?", false, now)
	if lookahead > 0 {
		q = q.Where("events.start_time <= ?", now.Add(lookahead))
	}
	var reminders []model.Reminder
	if err := q.Preload("Event").Order("events.start_time ASC, reminders.id ASC").Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("pending reminders: %w", err)
	}
	return reminders, nil
}

// MarkReminderSent flips is_sent once. It reports false when the reminder was
// already sent or no longer exists.
func (r *EventRepository) MarkReminderSent(ctx context.Context, reminderID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("id = ? AND is_sent = ?", reminderID, false).
		Update("is_sent", true)
	if res.Error != nil {
		return false, fmt.Errorf("mark reminder sent: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}
