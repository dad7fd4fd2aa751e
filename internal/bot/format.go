package bot

import (
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"daily-calendar/internal/extraction"
	"daily-calendar/internal/model"
	"daily-calendar/internal/service"
)

const (
	btnConfirm    = "✅ Save"
	btnCancel     = "↩️ Skip"
	btnConfirmAll = "✅ Save all"
	btnCancelAll  = "↩️ Skip all"
	iconEvent     = "📅"
	iconTodo      = "📝"
	iconPriority  = "⚠️"
)

func escape(s string) string {
	return html.EscapeString(s)
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(title)
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

// describeIntent renders an intent before it is saved, using the raw
// extracted values.
func describeIntent(intent extraction.Intent) string {
	title := intent.String("title")
	switch intent.Kind {
	case extraction.KindEvent:
		if title == "" {
			title = "Untitled Event"
		}
		line := fmt.Sprintf("%s <b>%s</b>", iconEvent, escape(title))
		if start := intent.String("start_time"); start != "" {
			line += " · " + escape(start)
		}
		if loc := intent.String("location"); loc != "" {
			line += " · " + escape(loc)
		}
		return line
	case extraction.KindTodo:
		if title == "" {
			title = "Untitled Todo"
		}
		line := fmt.Sprintf("%s <b>%s</b>", iconTodo, escape(title))
		if model.ParsePriority(intent.String("priority")) == model.PriorityHigh {
			line = iconPriority + " " + line
		}
		if deadline := intent.String("deadline"); deadline != "" {
			line += " · due " + escape(deadline)
		}
		return line
	default:
		return escape(string(intent.Kind))
	}
}

func proposalText(reply string, p *proposal) string {
	var builder strings.Builder
	if reply = strings.TrimSpace(reply); reply != "" {
		builder.WriteString(escape(reply))
		builder.WriteString("\n\n")
	}
	builder.WriteString("<b>Save these?</b>\n")
	for i, intent := range p.intents {
		if intent == nil {
			continue
		}
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, describeIntent(*intent)))
	}
	return strings.TrimSpace(builder.String())
}

func proposalKeyboard(p *proposal) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, intent := range p.intents {
		if intent == nil {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s %d · %s", btnConfirm, i+1, shortTitle(intent.String("title"), 20)), fmt.Sprintf("%s%d", cbConfirmPrefix, i)),
			tgbotapi.NewInlineKeyboardButtonData(btnCancel, fmt.Sprintf("%s%d", cbCancelPrefix, i)),
		))
	}
	if p.pending() > 1 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnConfirmAll, cbConfirmAll),
			tgbotapi.NewInlineKeyboardButtonData(btnCancelAll, cbCancelAll),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) savedLine(saved service.Materialized) string {
	switch {
	case saved.Event != nil:
		return "Saved " + strings.TrimSuffix(b.formatEvent(*saved.Event), "\n")
	case saved.Todo != nil:
		return "Saved " + strings.TrimSuffix(b.formatTodo(*saved.Todo), "\n")
	default:
		return "Nothing to save."
	}
}

func (b *Bot) formatEvent(event model.Event) string {
	start := event.StartTime.In(b.deps.Location)
	when := start.Format("Mon, Jan 2 15:04")
	if event.IsAllDay {
		when = event.StartTime.UTC().Format("Mon, Jan 2") + " (all day)"
	}
	line := fmt.Sprintf("%s <b>#%d</b> %s · %s", iconEvent, event.ID, escape(event.Title), when)
	if event.Location != "" {
		line += " · " + escape(event.Location)
	}
	return line + "\n"
}

func (b *Bot) formatTodo(todo model.TodoItem) string {
	icon := iconTodo
	if todo.IsCompleted {
		icon = "✅"
	}
	line := fmt.Sprintf("%s <b>#%d</b> %s", icon, todo.ID, escape(todo.Title))
	if todo.Priority == model.PriorityHigh {
		line = iconPriority + " " + line
	}
	if todo.Deadline != nil {
		line += " · due " + todo.Deadline.In(b.deps.Location).Format("Mon, Jan 2 15:04")
	}
	if todo.AddedToCalendar {
		line += " · " + iconEvent
	}
	return line + "\n"
}
