package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"daily-calendar/internal/model"
	"daily-calendar/internal/repository"
)

// DefaultLookahead is the scan window ahead of now for reminder parents.
const DefaultLookahead = 5 * time.Minute

// ScannerConfig tunes a ReminderScanner.
type ScannerConfig struct {
	// Lookahead limits reminder scans to parents starting or due within
	// (now, now+Lookahead]. A reminder whose offset exceeds the window is only
	// seen once its parent enters it. Zero scans every future parent and fires
	// each reminder exactly at start minus offset.
	Lookahead time.Duration
	// Location is the wall clock summary times are matched against.
	Location *time.Location
}

// ReminderScanner runs the periodic scan for due reminders and daily summaries.
type ReminderScanner struct {
	events    *repository.EventRepository
	todos     *repository.TodoRepository
	users     *repository.UserRepository
	summaries *SummaryService
	notifier  Notifier
	clock     Clock
	metrics   *Metrics
	lookahead time.Duration
	loc       *time.Location

	mu          sync.Mutex
	lastSummary map[uint]string
}

func NewReminderScanner(
	events *repository.EventRepository,
	todos *repository.TodoRepository,
	users *repository.UserRepository,
	summaries *SummaryService,
	notifier Notifier,
	clock Clock,
	metrics *Metrics,
	cfg ScannerConfig,
) *ReminderScanner {
	if clock == nil {
		clock = SystemClock{}
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if cfg.Lookahead < 0 {
		cfg.Lookahead = 0
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ReminderScanner{
		events:      events,
		todos:       todos,
		users:       users,
		summaries:   summaries,
		notifier:    notifier,
		clock:       clock,
		metrics:     metrics,
		lookahead:   cfg.Lookahead,
		loc:         cfg.Location,
		lastSummary: make(map[uint]string),
	}
}

// RunTick performs one scan: event reminders, todo reminders, then daily
// summaries. A failing reminder or user is logged and skipped; nothing is
// returned to the caller.
func (s *ReminderScanner) RunTick(ctx context.Context) {
	started := time.Now()
	now := model.Normalize(s.clock.Now())

	s.scanEventReminders(ctx, now)
	s.scanTodoReminders(ctx, now)
	s.scanSummaries(ctx, now)

	s.metrics.ObserveTick(time.Since(started))
}

func (s *ReminderScanner) scanEventReminders(ctx context.Context, now time.Time) {
	reminders, err := s.events.PendingReminders(ctx, now, s.lookahead)
	if err != nil {
		log.Printf("[error] event reminder scan: %v", err)
		s.metrics.UnitFailed("event")
		return
	}
	for _, reminder := range reminders {
		if ctx.Err() != nil {
			return
		}
		if reminder.Event == nil || reminder.FireAt(reminder.Event.StartTime).After(now) {
			continue
		}
		if err := s.fireEventReminder(ctx, reminder, now); err != nil {
			log.Printf("[error] event reminder %d: %v", reminder.ID, err)
			s.metrics.UnitFailed("event")
		}
	}
}

func (s *ReminderScanner) fireEventReminder(ctx context.Context, reminder model.Reminder, now time.Time) error {
	event := reminder.Event
	body := fmt.Sprintf("%s starts at %s", event.Title, event.StartTime.In(s.loc).Format("15:04"))
	if left := untilLabel(event.StartTime.Sub(now)); left != "" {
		body += " (" + left + ")"
	}
	if loc := strings.TrimSpace(event.Location); loc != "" {
		body += "\nLocation: " + loc
	}

	err := s.notifier.Notify(ctx, Notification{
		UserID:  event.UserID,
		Kind:    NotifyEventReminder,
		Subject: "Reminder: " + event.Title,
		Body:    body,
		At:      event.StartTime,
	})
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	marked, err := s.events.MarkReminderSent(ctx, reminder.ID)
	if err != nil {
		return err
	}
	if marked {
		s.metrics.ReminderFired("event")
	}
	return nil
}

func (s *ReminderScanner) scanTodoReminders(ctx context.Context, now time.Time) {
	reminders, err := s.todos.PendingReminders(ctx, now, s.lookahead)
	if err != nil {
		log.Printf("[error] todo reminder scan: %v", err)
		s.metrics.UnitFailed("todo")
		return
	}
	for _, reminder := range reminders {
		if ctx.Err() != nil {
			return
		}
		todo := reminder.TodoItem
		if todo == nil || todo.Deadline == nil || reminder.FireAt(*todo.Deadline).After(now) {
			continue
		}
		if err := s.fireTodoReminder(ctx, reminder, now); err != nil {
			log.Printf("[error] todo reminder %d: %v", reminder.ID, err)
			s.metrics.UnitFailed("todo")
		}
	}
}

func (s *ReminderScanner) fireTodoReminder(ctx context.Context, reminder model.TodoReminder, now time.Time) error {
	todo := reminder.TodoItem
	deadline := *todo.Deadline
	body := fmt.Sprintf("%s is due at %s", todo.Title, deadline.In(s.loc).Format("15:04"))
	if left := untilLabel(deadline.Sub(now)); left != "" {
		body += " (" + left + ")"
	}
	if todo.Priority == model.PriorityHigh {
		body = iconHighPriority + " " + body
	}

	err := s.notifier.Notify(ctx, Notification{
		UserID:  todo.UserID,
		Kind:    NotifyTodoReminder,
		Subject: "Todo due: " + todo.Title,
		Body:    body,
		At:      deadline,
	})
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	marked, err := s.todos.MarkReminderSent(ctx, reminder.ID)
	if err != nil {
		return err
	}
	if marked {
		s.metrics.ReminderFired("todo")
	}
	return nil
}

// scanSummaries fires a user's summary when the local wall-clock minute equals
// their summary time. A missed minute is not caught up later.
func (s *ReminderScanner) scanSummaries(ctx context.Context, now time.Time) {
	users, err := s.users.ListActive(ctx)
	if err != nil {
		log.Printf("[error] summary scan: %v", err)
		s.metrics.UnitFailed("summary")
		return
	}

	local := now.In(s.loc)
	day := local.Format("2006-01-02")
	for i := range users {
		if ctx.Err() != nil {
			return
		}
		user := &users[i]
		hour, minute, err := model.ParseClock(user.SummaryTime)
		if err != nil {
			log.Printf("[error] summary time of user %d: %v", user.ID, err)
			s.metrics.UnitFailed("summary")
			continue
		}
		if local.Hour() != hour || local.Minute() != minute || s.summarySent(user.ID, day) {
			continue
		}
		if err := s.sendSummary(ctx, user, now); err != nil {
			log.Printf("[error] summary for user %d: %v", user.ID, err)
			s.metrics.UnitFailed("summary")
			continue
		}
		s.markSummarySent(user.ID, day)
	}
}

func (s *ReminderScanner) sendSummary(ctx context.Context, user *model.User, now time.Time) error {
	text, err := s.summaries.DailySummary(ctx, user, now)
	if err != nil {
		return err
	}
	if err := s.notifier.Notify(ctx, Notification{
		UserID:  user.ID,
		Kind:    NotifySummary,
		Subject: "Daily summary",
		Body:    text,
	}); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	s.metrics.SummarySent()
	return nil
}

func (s *ReminderScanner) summarySent(userID uint, day string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSummary[userID] == day
}

func (s *ReminderScanner) markSummarySent(userID uint, day string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSummary[userID] = day
}

func untilLabel(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	switch {
	case minutes <= 0:
		return ""
	case minutes == 1:
		return "in 1 minute"
	case minutes < 60:
		return fmt.Sprintf("in %d minutes", minutes)
	case minutes%60 == 0:
		return fmt.Sprintf("in %dh", minutes/60)
	default:
		return fmt.Sprintf("in %dh%02dm", minutes/60, minutes%60)
	}
}
