package service

import (
	"context"
	"errors"
	"log"
	"time"
)

// NotificationKind tells a sink what triggered a notification.
type NotificationKind string

const (
	NotifyEventReminder NotificationKind = "event_reminder"
	NotifyTodoReminder  NotificationKind = "todo_reminder"
	NotifySummary       NotificationKind = "summary"
)

// Notification is one message for one user.
type Notification struct {
	UserID  uint
	Kind    NotificationKind
	Subject string
	Body    string
	// At is the instant the underlying event starts or the todo is due; zero for summaries.
	At time.Time
}

// Notifier delivers notifications. A returned error leaves the reminder
// unsent so the next tick retries it.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the standard logger.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	log.Printf("[info] notify user %d (%s): %s\n%s", n.UserID, n.Kind, n.Subject, n.Body)
	return nil
}

// FanoutNotifier delivers to every sink and joins their errors.
type FanoutNotifier []Notifier

func (f FanoutNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
