package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"daily-calendar/internal/extraction"
	"daily-calendar/internal/model"
	"daily-calendar/internal/repository"
)

const (
	untitledEvent = "Untitled Event"
	untitledTodo  = "Untitled Todo"
)

// Materialized holds whichever entity an intent produced.
type Materialized struct {
	Event *model.Event
	Todo  *model.TodoItem
}

// Materializer persists extracted intents as events or todo items. It applies
// defaults instead of rejecting incomplete input, and never deduplicates:
// materializing the same intent twice yields two entities.
type Materializer struct {
	events *repository.EventRepository
	todos  *repository.TodoRepository
	parser *DateParser
	clock  Clock
}

func NewMaterializer(events *repository.EventRepository, todos *repository.TodoRepository, parser *DateParser, clock Clock) *Materializer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Materializer{events: events, todos: todos, parser: parser, clock: clock}
}

func (m *Materializer) Materialize(ctx context.Context, intent extraction.Intent, user *model.User) (Materialized, error) {
	switch intent.Kind {
	case extraction.KindEvent:
		event, err := m.materializeEvent(ctx, intent, user)
		return Materialized{Event: event}, err
	case extraction.KindTodo:
		todo, err := m.materializeTodo(ctx, intent, user)
		return Materialized{Todo: todo}, err
	default:
		return Materialized{}, invalid("type", "unknown intent kind "+string(intent.Kind))
	}
}

func (m *Materializer) materializeEvent(ctx context.Context, intent extraction.Intent, user *model.User) (*model.Event, error) {
	title := intent.String("title")
	if title == "" {
		title = untitledEvent
	}

	start, ok := m.parser.Parse(intent.String("start_time"))
	if !ok {
		start = model.Normalize(m.clock.Now())
	}
	end, ok := m.parser.Parse(intent.String("end_time"))
	if !ok {
		end = start.Add(time.Hour)
	}
	if end.Before(start) {
		log.Printf("[warn] materialize event %q for user %d: end %s before start %s", title, user.ID, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	event := model.Event{
		UserID:      user.ID,
		Title:       title,
		Description: intent.String("description"),
		Location:    intent.String("location"),
		StartTime:   start,
		EndTime:     end,
		IsAllDay:    intent.Bool("is_all_day"),
		ICSUID:      uuid.NewString(),
		Reminders:   buildReminders(DefaultEventReminders),
	}
	if err := m.events.Create(ctx, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (m *Materializer) materializeTodo(ctx context.Context, intent extraction.Intent, user *model.User) (*model.TodoItem, error) {
	title := intent.String("title")
	if title == "" {
		title = untitledTodo
	}

	todo := model.TodoItem{
		UserID:      user.ID,
		Title:       title,
		Description: intent.String("description"),
		Priority:    model.ParsePriority(intent.String("priority")),
	}
	if deadline, ok := m.parser.Parse(intent.String("deadline")); ok {
		todo.Deadline = &deadline
		todo.Reminders = buildTodoReminders(DefaultTodoReminders)
	}
	if err := m.todos.Create(ctx, &todo); err != nil {
		return nil, err
	}
	return &todo, nil
}
