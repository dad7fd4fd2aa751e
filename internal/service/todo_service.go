package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"daily-calendar/internal/model"
	"daily-calendar/internal/repository"
)

var (
	// DefaultTodoReminders applies to todos created with a deadline and no explicit reminders.
	DefaultTodoReminders = []int{60}
	// calendarCopyReminders is attached to the event created by AddToCalendar.
	calendarCopyReminders = []int{15}
)

// TodoInput represents data required to create or replace a todo item.
type TodoInput struct {
	Title       string
	Description string
	Deadline    *time.Time
	Priority    model.Priority
	// Reminders lists minutes-before offsets. Nil means the default on create
	// and "keep the current set" on update.
	Reminders []int
}

// TodoService wraps todo business logic.
type TodoService struct {
	db                *gorm.DB
	todos             *repository.TodoRepository
	events            *repository.EventRepository
	clock             Clock
	loc               *time.Location
	resetOnReschedule bool
}

func NewTodoService(db *gorm.DB, todos *repository.TodoRepository, events *repository.EventRepository, clock Clock, loc *time.Location, resetOnReschedule bool) *TodoService {
	if clock == nil {
		clock = SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &TodoService{db: db, todos: todos, events: events, clock: clock, loc: loc, resetOnReschedule: resetOnReschedule}
}

func validateTodo(input TodoInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return invalid("title", "is required")
	}
	switch input.Priority {
	case "", model.PriorityHigh, model.PriorityLow:
	default:
		return invalid("priority", "must be HIGH or LOW")
	}
	for _, m := range input.Reminders {
		if m < 0 {
			return invalid("reminders", "minutes before must not be negative")
		}
	}
	return nil
}

func buildTodoReminders(minutes []int) []model.TodoReminder {
	out := make([]model.TodoReminder, 0, len(minutes))
	for _, m := range minutes {
		out = append(out, model.TodoReminder{MinutesBefore: m})
	}
	return out
}

func (s *TodoService) CreateTodo(ctx context.Context, userID uint, input TodoInput) (*model.TodoItem, error) {
	if err := validateTodo(input); err != nil {
		return nil, err
	}
	reminders := input.Reminders
	if reminders == nil && input.Deadline != nil {
		reminders = DefaultTodoReminders
	}

	todo := model.TodoItem{
		UserID:      userID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Deadline:    input.Deadline,
		Priority:    input.Priority,
		Reminders:   buildTodoReminders(reminders),
	}
	if err := s.todos.Create(ctx, &todo); err != nil {
		return nil, err
	}
	return s.GetTodo(ctx, userID, todo.ID)
}

func (s *TodoService) GetTodo(ctx context.Context, userID, todoID uint) (*model.TodoItem, error) {
	todo, err := s.todos.FindByID(ctx, userID, todoID)
	if err != nil {
		return nil, notFound(err, "todo")
	}
	return todo, nil
}

func (s *TodoService) ListTodos(ctx context.Context, userID uint, filter repository.TodoFilter) ([]model.TodoItem, error) {
	switch filter.Sort {
	case "", repository.TodoSortCreated, repository.TodoSortAlphabetical, repository.TodoSortDeadline, repository.TodoSortPriority:
	default:
		return nil, invalid("sort", "unknown order "+string(filter.Sort))
	}
	return s.todos.ListByUser(ctx, userID, filter)
}

// Today lists items due today, plus items without deadline created today.
func (s *TodoService) Today(ctx context.Context, userID uint) ([]model.TodoItem, error) {
	start, end := dayBounds(s.clock.Now(), s.loc)
	return s.todos.ListDueOrCreatedBetween(ctx, userID, start, end)
}

// UpdateTodo replaces the item's fields. Reminders are replaced when input
// carries them.
func (s *TodoService) UpdateTodo(ctx context.Context, userID, todoID uint, input TodoInput) (*model.TodoItem, error) {
	if err := validateTodo(input); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		todos := s.todos.WithTx(tx)
		todo, err := todos.FindByID(ctx, userID, todoID)
		if err != nil {
			return notFound(err, "todo")
		}

		rescheduled := !sameInstant(todo.Deadline, model.NormalizePtr(input.Deadline))
		todo.Title = strings.TrimSpace(input.Title)
		todo.Description = input.Description
		todo.Deadline = input.Deadline
		todo.Priority = input.Priority
		if err := todos.Save(ctx, todo); err != nil {
			return err
		}

		switch {
		case input.Reminders != nil:
			_, err = todos.ReplaceReminders(ctx, todo.ID, input.Reminders)
		case rescheduled && s.resetOnReschedule:
			err = todos.ResetReminders(ctx, todo.ID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetTodo(ctx, userID, todoID)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Toggle flips the completion flag.
func (s *TodoService) Toggle(ctx context.Context, userID, todoID uint) (*model.TodoItem, error) {
	todo, err := s.GetTodo(ctx, userID, todoID)
	if err != nil {
		return nil, err
	}
	if err := s.todos.SetCompleted(ctx, todo, !todo.IsCompleted); err != nil {
		return nil, err
	}
	return todo, nil
}

func (s *TodoService) DeleteTodo(ctx context.Context, userID, todoID uint) error {
	return notFound(s.todos.Delete(ctx, userID, todoID), "todo")
}

// AddToCalendar copies the item into the calendar as a one-hour event starting
// at its deadline. An item already copied returns the existing event.
func (s *TodoService) AddToCalendar(ctx context.Context, userID, todoID uint) (*model.Event, error) {
	var eventID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		todos := s.todos.WithTx(tx)
		events := s.events.WithTx(tx)

		todo, err := todos.FindByID(ctx, userID, todoID)
		if err != nil {
			return notFound(err, "todo")
		}
		if todo.Deadline == nil {
			return invalid("deadline", "todo has no deadline")
		}
		if todo.AddedToCalendar && todo.EventID != nil {
			if _, err := events.FindByID(ctx, userID, *todo.EventID); err == nil {
				eventID = *todo.EventID
				return nil
			}
		}

		event := model.Event{
			UserID:      userID,
			Title:       todo.Title,
			Description: todo.Description,
			StartTime:   *todo.Deadline,
			EndTime:     todo.Deadline.Add(time.Hour),
			ICSUID:      uuid.NewString(),
			Reminders:   buildReminders(calendarCopyReminders),
		}
		if err := events.Create(ctx, &event); err != nil {
			return err
		}
		if err := todos.LinkEvent(ctx, todo, event.ID); err != nil {
			return err
		}
		eventID = event.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	event, err := s.events.FindByID(ctx, userID, eventID)
	if err != nil {
		return nil, notFound(err, "event")
	}
	return event, nil
}

// dayBounds returns the UTC instants of the local day containing t.
func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}
