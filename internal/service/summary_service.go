package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"daily-calendar/internal/extraction"
	"daily-calendar/internal/model"
	"daily-calendar/internal/repository"
)

const (
	iconHighPriority = "⚠️"
	upcomingDays     = 7
)

const enhanceInstruction = "You are a helpful assistant that writes friendly, motivating daily summaries of a user's calendar and tasks. " +
	"Keep every item from the summary, keep it concise, and do not invent anything."

// SummaryService builds human-readable summaries for daily notifications.
type SummaryService struct {
	events   *repository.EventRepository
	todos    *repository.TodoRepository
	rewriter extraction.Rewriter
	enhance  bool
	loc      *time.Location
}

// NewSummaryService returns a builder that polishes summaries with rewriter
// when enhance is set. A nil rewriter disables enhancement.
func NewSummaryService(events *repository.EventRepository, todos *repository.TodoRepository, rewriter extraction.Rewriter, enhance bool, loc *time.Location) *SummaryService {
	if loc == nil {
		loc = time.UTC
	}
	return &SummaryService{events: events, todos: todos, rewriter: rewriter, enhance: enhance && rewriter != nil, loc: loc}
}

// DailySummary lists today's events, tasks due today, overdue tasks and tasks
// due within the next week.
func (s *SummaryService) DailySummary(ctx context.Context, user *model.User, now time.Time) (string, error) {
	dayStart, dayEnd := dayBounds(now, s.loc)
	upcomingEnd := dayEnd.AddDate(0, 0, upcomingDays)

	events, err := s.eventsOn(ctx, user.ID, now)
	if err != nil {
		return "", fmt.Errorf("list today's events: %w", err)
	}
	todos, err := s.todos.ListIncomplete(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("list open todos: %w", err)
	}

	var dueToday, overdue, upcoming []model.TodoItem
	for _, todo := range todos {
		if todo.Deadline == nil {
			continue
		}
		d := *todo.Deadline
		switch {
		case d.Before(dayStart):
			overdue = append(overdue, todo)
		case d.Before(dayEnd):
			dueToday = append(dueToday, todo)
		case d.Before(upcomingEnd):
			upcoming = append(upcoming, todo)
		}
	}

	var builder strings.Builder
	name := user.FullName
	if name == "" {
		name = user.Username
	}
	builder.WriteString(fmt.Sprintf("📋 Daily summary for %s\n", name))
	builder.WriteString(fmt.Sprintf("🗓 %s\n", now.In(s.loc).Format("Monday, January 2, 2006")))

	builder.WriteString("\n📅 Events today\n")
	if len(events) == 0 {
		builder.WriteString("— no events scheduled\n")
	}
	for _, event := range events {
		builder.WriteString(s.formatEvent(event))
	}

	builder.WriteString("\n✅ Tasks due today\n")
	if len(dueToday) == 0 {
		builder.WriteString("— nothing due today\n")
	}
	for _, todo := range dueToday {
		builder.WriteString(s.formatTodo(todo, "15:04"))
	}

	if len(overdue) > 0 {
		builder.WriteString("\n⏰ Overdue\n")
		for _, todo := range overdue {
			builder.WriteString(s.formatTodo(todo, "Jan 2"))
		}
	}

	if len(upcoming) > 0 {
		builder.WriteString(fmt.Sprintf("\n🔜 Upcoming (next %d days)\n", upcomingDays))
		for _, todo := range upcoming {
			builder.WriteString(s.formatTodo(todo, "Mon, Jan 2"))
		}
	}

	summary := strings.TrimSpace(builder.String())
	if !s.enhance {
		return summary, nil
	}

	enhanced, err := s.rewriter.Rewrite(ctx, enhanceInstruction, summary)
	if err != nil {
		log.Printf("[warn] enhance summary for user %d: %v", user.ID, err)
		return summary, nil
	}
	return enhanced, nil
}

// eventsOn returns the events of the local day containing now. All-day events
// are stored at UTC midnight of their date, so they match on that date rather
// than on the local day's instants.
func (s *SummaryService) eventsOn(ctx context.Context, userID uint, now time.Time) ([]model.Event, error) {
	dayStart, dayEnd := dayBounds(now, s.loc)
	local := now.In(s.loc)
	dateStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	dateEnd := dateStart.AddDate(0, 0, 1)

	from, to := dayStart, dayEnd
	if dateStart.Before(from) {
		from = dateStart
	}
	if dateEnd.After(to) {
		to = dateEnd
	}
	candidates, err := s.events.ListStartingBetween(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	events := candidates[:0]
	for _, event := range candidates {
		start := event.StartTime.UTC()
		lo, hi := dayStart, dayEnd
		if event.IsAllDay {
			lo, hi = dateStart, dateEnd
		}
		if !start.Before(lo) && start.Before(hi) {
			events = append(events, event)
		}
	}
	return events, nil
}

func (s *SummaryService) formatEvent(event model.Event) string {
	var sb strings.Builder
	if event.IsAllDay {
		sb.WriteString("• All day")
	} else {
		sb.WriteString("• " + event.StartTime.In(s.loc).Format("15:04"))
	}
	sb.WriteString(" " + strings.TrimSpace(event.Title))
	if loc := strings.TrimSpace(event.Location); loc != "" {
		sb.WriteString(fmt.Sprintf(" (%s)", loc))
	}
	sb.WriteByte('\n')
	return sb.String()
}

func (s *SummaryService) formatTodo(todo model.TodoItem, layout string) string {
	var sb strings.Builder
	sb.WriteString("• ")
	if todo.Priority == model.PriorityHigh {
		sb.WriteString(iconHighPriority + " ")
	}
	sb.WriteString(strings.TrimSpace(todo.Title))
	if todo.Deadline != nil {
		sb.WriteString(fmt.Sprintf(" (due %s)", todo.Deadline.In(s.loc).Format(layout)))
	}
	sb.WriteByte('\n')
	return sb.String()
}
