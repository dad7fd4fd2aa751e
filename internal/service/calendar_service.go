package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"daily-calendar/internal/ics"
	"daily-calendar/internal/model"
	"daily-calendar/internal/repository"
)

// DefaultEventReminders applies when an event is created without explicit reminders.
var DefaultEventReminders = []int{15}

// EventInput represents data required to create or replace an event.
type EventInput struct {
	Title       string
	Description string
	Location    string
	StartTime   time.Time
	EndTime     time.Time
	IsAllDay    bool
	TagIDs      []uint
	// Reminders lists minutes-before offsets. Nil means the default on create
	// and "keep the current set" on update.
	Reminders []int
}

// CalendarService wraps event business logic and ICS interchange.
type CalendarService struct {
	db                *gorm.DB
	events            *repository.EventRepository
	tags              *repository.TagRepository
	clock             Clock
	resetOnReschedule bool
}

func NewCalendarService(db *gorm.DB, events *repository.EventRepository, tags *repository.TagRepository, clock Clock, resetOnReschedule bool) *CalendarService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &CalendarService{db: db, events: events, tags: tags, clock: clock, resetOnReschedule: resetOnReschedule}
}

func validateEvent(input EventInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return invalid("title", "is required")
	}
	if input.StartTime.IsZero() {
		return invalid("start_time", "is required")
	}
	if input.EndTime.IsZero() {
		return invalid("end_time", "is required")
	}
	if input.EndTime.Before(input.StartTime) {
		return invalid("end_time", "must not be before start_time")
	}
	for _, m := range input.Reminders {
		if m < 0 {
			return invalid("reminders", "minutes before must not be negative")
		}
	}
	return nil
}

// resolveTags loads every requested tag of the user and fails if any is unknown.
func resolveTags(ctx context.Context, repo *repository.TagRepository, userID uint, ids []uint) ([]model.Tag, error) {
	unique := make([]uint, 0, len(ids))
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	tags, err := repo.FindByIDs(ctx, userID, unique)
	if err != nil {
		return nil, err
	}
	if len(tags) != len(unique) {
		return nil, fmt.Errorf("tag: %w", ErrNotFound)
	}
	return tags, nil
}

func (s *CalendarService) CreateEvent(ctx context.Context, userID uint, input EventInput) (*model.Event, error) {
	if err := validateEvent(input); err != nil {
		return nil, err
	}
	reminders := input.Reminders
	if reminders == nil {
		reminders = DefaultEventReminders
	}

	var created *model.Event
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tags, err := resolveTags(ctx, s.tags.WithTx(tx), userID, input.TagIDs)
		if err != nil {
			return err
		}
		event := model.Event{
			UserID:      userID,
			Title:       strings.TrimSpace(input.Title),
			Description: input.Description,
			Location:    input.Location,
			StartTime:   input.StartTime,
			EndTime:     input.EndTime,
			IsAllDay:    input.IsAllDay,
			ICSUID:      uuid.NewString(),
			Reminders:   buildReminders(reminders),
			Tags:        tags,
		}
		if err := s.events.WithTx(tx).Create(ctx, &event); err != nil {
			return err
		}
		created = &event
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetEvent(ctx, userID, created.ID)
}

func buildReminders(minutes []int) []model.Reminder {
	out := make([]model.Reminder, 0, len(minutes))
	for _, m := range minutes {
		out = append(out, model.Reminder{MinutesBefore: m})
	}
	return out
}

func (s *CalendarService) GetEvent(ctx context.Context, userID, eventID uint) (*model.Event, error) {
	event, err := s.events.FindByID(ctx, userID, eventID)
	if err != nil {
		return nil, notFound(err, "event")
	}
	return event, nil
}

func (s *CalendarService) ListEvents(ctx context.Context, userID uint, filter repository.EventFilter) ([]model.Event, error) {
	if filter.TagID != nil {
		if _, err := s.tags.FindByID(ctx, userID, *filter.TagID); err != nil {
			return nil, notFound(err, "tag")
		}
	}
	return s.events.ListByUser(ctx, userID, filter)
}

// UpdateEvent replaces the event's fields and tags. Reminders are replaced
// only when input carries them; otherwise moving the start resets the sent
// flags if the service was configured to.
func (s *CalendarService) UpdateEvent(ctx context.Context, userID, eventID uint, input EventInput) (*model.Event, error) {
	if err := validateEvent(input); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		events := s.events.WithTx(tx)
		event, err := events.FindByID(ctx, userID, eventID)
		if err != nil {
			return notFound(err, "event")
		}
		tags, err := resolveTags(ctx, s.tags.WithTx(tx), userID, input.TagIDs)
		if err != nil {
			return err
		}

		rescheduled := !model.Normalize(input.StartTime).Equal(event.StartTime)
		event.Title = strings.TrimSpace(input.Title)
		event.Description = input.Description
		event.Location = input.Location
		event.StartTime = input.StartTime
		event.EndTime = input.EndTime
		event.IsAllDay = input.IsAllDay
		if err := events.Save(ctx, event); err != nil {
			return err
		}
		if err := events.ReplaceTags(ctx, event, tags); err != nil {
			return err
		}

		switch {
		case input.Reminders != nil:
			_, err = events.ReplaceReminders(ctx, event.ID, input.Reminders)
		case rescheduled && s.resetOnReschedule:
			err = events.ResetReminders(ctx, event.ID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetEvent(ctx, userID, eventID)
}

func (s *CalendarService) DeleteEvent(ctx context.Context, userID, eventID uint) error {
	return notFound(s.events.Delete(ctx, userID, eventID), "event")
}

// ExportICS renders one event as an ICS document. The first export of an event
// without an identity assigns and stores one.
func (s *CalendarService) ExportICS(ctx context.Context, userID, eventID uint) (string, error) {
	event, err := s.GetEvent(ctx, userID, eventID)
	if err != nil {
		return "", err
	}
	hadUID := event.ICSUID != ""
	body := ics.Encode(event, s.clock.Now())
	if !hadUID {
		if err := s.events.SetUID(ctx, event.ID, event.ICSUID); err != nil {
			return "", err
		}
	}
	return body, nil
}

// ImportICS upserts every VEVENT of body into the user's calendar, keyed by
// UID. The import is atomic: any failing component rolls back the whole file.
func (s *CalendarService) ImportICS(ctx context.Context, userID uint, body []byte) ([]model.Event, error) {
	parsed, err := ics.Parse(body)
	if err != nil {
		return nil, &ImportError{Component: -1, Err: err}
	}

	ids := make([]uint, 0, len(parsed))
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		events := s.events.WithTx(tx)
		tags := s.tags.WithTx(tx)
		for i, item := range parsed {
			id, err := importEvent(ctx, events, tags, userID, item)
			if err != nil {
				return &ImportError{Component: i, UID: item.UID, Err: err}
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]model.Event, 0, len(ids))
	for _, id := range ids {
		event, err := s.GetEvent(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *event)
	}
	log.Printf("[info] imported %d event(s) for user %d", len(out), userID)
	return out, nil
}

func importEvent(ctx context.Context, events *repository.EventRepository, tags *repository.TagRepository, userID uint, item ics.ParsedEvent) (uint, error) {
	if item.End.Before(item.Start) {
		return 0, invalid("DTEND", "before DTSTART")
	}

	event, err := events.FindByUID(ctx, userID, item.UID)
	if err != nil {
		return 0, err
	}

	if event == nil {
		event = &model.Event{
			UserID:    userID,
			ICSUID:    item.UID,
			Reminders: buildReminders(item.AlarmMinutes),
		}
		applyParsed(event, item)
		if err := events.Create(ctx, event); err != nil {
			return 0, err
		}
	} else {
		applyParsed(event, item)
		if err := events.Save(ctx, event); err != nil {
			return 0, err
		}
		if _, err := events.ReplaceReminders(ctx, event.ID, item.AlarmMinutes); err != nil {
			return 0, err
		}
	}

	resolved := make([]model.Tag, 0, len(item.Categories))
	for _, name := range item.Categories {
		tag, err := tags.GetOrCreate(ctx, userID, name)
		if err != nil {
			return 0, err
		}
		if tag != nil {
			resolved = append(resolved, *tag)
		}
	}
	if err := events.AttachTags(ctx, event, resolved); err != nil {
		return 0, err
	}
	return event.ID, nil
}

func applyParsed(event *model.Event, item ics.ParsedEvent) {
	event.Title = item.Summary
	event.Description = item.Description
	event.Location = item.Location
	event.StartTime = item.Start
	event.EndTime = item.End
	event.IsAllDay = item.AllDay
}
