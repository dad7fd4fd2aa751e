package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"daily-calendar/internal/extraction"
	"daily-calendar/internal/model"
	"daily-calendar/internal/repository"
	"daily-calendar/internal/service"
)

const (
	cbConfirmPrefix = "confirm:"
	cbCancelPrefix  = "cancel:"
	cbConfirmAll    = "confirm:all"
	cbCancelAll     = "cancel:all"
)

// maxICSUpload caps the size of an .ics document accepted for import.
const maxICSUpload = 1 << 20

// api is the part of tgbotapi.BotAPI the bot uses.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Deps are the services the bot drives.
type Deps struct {
	Users        *service.UserService
	Chat         *service.ChatService
	Materializer *service.Materializer
	Calendar     *service.CalendarService
	Todos        *service.TodoService
	Summaries    *service.SummaryService
	Clock        service.Clock
	Location     *time.Location
}

// proposal is the set of intents awaiting confirmation for one Telegram user.
// A consumed slot is nil.
type proposal struct {
	intents []*extraction.Intent
}

func (p *proposal) pending() int {
	n := 0
	for _, intent := range p.intents {
		if intent != nil {
			n++
		}
	}
	return n
}

// Bot aggregates the Telegram API with the calendar services. It is also a
// service.Notifier delivering reminders and summaries to linked users.
type Bot struct {
	api       api
	deps      Deps
	http      *http.Client
	proposals map[int64]*proposal
	mu        sync.Mutex
}

func New(token string, deps Deps) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", botAPI.Self.UserName)

	return newBot(botAPI, deps), nil
}

func newBot(client api, deps Deps) *Bot {
	if deps.Clock == nil {
		deps.Clock = service.SystemClock{}
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Bot{
		api:       client,
		deps:      deps,
		http:      &http.Client{Timeout: 30 * time.Second},
		proposals: make(map[int64]*proposal),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	botAPI, ok := b.api.(*tgbotapi.BotAPI)
	if !ok {
		return errors.New("bot: polling needs a live telegram client")
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := botAPI.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		botAPI.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}

	return ctx.Err()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
			log.Printf("[error] handle callback: %v", err)
		}
	case update.Message != nil:
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			return
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			log.Printf("[error] handle message: %v", err)
		}
	}
}

// Notify implements service.Notifier. Users without a linked Telegram
// account are skipped.
func (b *Bot) Notify(ctx context.Context, n service.Notification) error {
	user, err := b.deps.Users.Get(ctx, n.UserID)
	if err != nil {
		return fmt.Errorf("telegram notify: %w", err)
	}
	if user.TelegramID == nil {
		return nil
	}

	var text string
	if n.Kind == service.NotifySummary {
		text = escape(n.Body)
	} else {
		text = fmt.Sprintf("🔔 <b>%s</b>\n%s", escape(n.Subject), escape(n.Body))
	}
	if err := b.sendText(*user.TelegramID, text); err != nil {
		return fmt.Errorf("telegram notify user %d: %w", user.ID, err)
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if msg.Document != nil {
		return b.handleDocument(ctx, msg)
	}

	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	return b.handleChat(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "summary":
		return b.handleSummary(ctx, msg)
	case "summarytime":
		return b.handleSummaryTime(ctx, msg)
	case "events":
		return b.handleEvents(ctx, msg)
	case "todos":
		return b.handleTodos(ctx, msg)
	case "today":
		return b.handleToday(ctx, msg)
	case "toggle":
		return b.handleToggle(ctx, msg)
	case "tocalendar":
		return b.handleToCalendar(ctx, msg)
	case "export":
		return b.handleExport(ctx, msg)
	case "reset":
		return b.handleReset(ctx, msg)
	case "cancel":
		b.clearProposal(msg.From.ID)
		return b.sendText(msg.Chat.ID, "↩️ Pending suggestions discarded.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.ensureUser(ctx, msg.From); err != nil {
		return err
	}

	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf(
		"👋 Hi, %s!\n<b>I keep your calendar and your todo list.</b>\n\n"+
			"Just tell me what you need, for example <i>lunch with Anna tomorrow at 13:00</i> "+
			"or <i>remind me to pay rent by Friday</i>, and confirm what I suggest.\n\n"+
			"Send /help for the list of commands.",
		escape(name),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"• /events — events in the next 7 days\n" +
		"• /todos — open todo items\n" +
		"• /today — todo items for today\n" +
		"• /toggle &lt;id&gt; — mark a todo done or open again\n" +
		"• /tocalendar &lt;id&gt; — put a todo with a deadline on the calendar\n" +
		"• /export &lt;id&gt; — download an event as .ics\n" +
		"• /summary — today's summary right now\n" +
		"• /summarytime HH:MM — when the daily summary arrives\n" +
		"• /reset — forget our conversation\n" +
		"• /cancel — discard pending suggestions\n\n" +
		"Send an .ics file to import its events."
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleChat(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	reply, err := b.deps.Chat.Send(ctx, user.ID, msg.Text)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}

	if len(reply.Intents) == 0 {
		return b.sendText(msg.Chat.ID, escape(reply.Reply))
	}

	p := &proposal{intents: make([]*extraction.Intent, len(reply.Intents))}
	for i := range reply.Intents {
		p.intents[i] = &reply.Intents[i]
	}
	b.setProposal(msg.From.ID, p)
	log.Printf("[info] proposed %d intent(s) to user=%d", len(reply.Intents), user.ID)

	return b.sendWithReplyMarkup(msg.Chat.ID, proposalText(reply.Reply, p), proposalKeyboard(p))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("[warn] callback ack: %v", err)
	}

	data := cb.Data
	log.Printf("[info] callback %q from user=%d", data, cb.From.ID)

	switch {
	case data == cbConfirmAll:
		return b.confirmIntents(ctx, cb, -1)
	case data == cbCancelAll:
		b.clearProposal(cb.From.ID)
		return b.refreshProposal(cb, nil, "↩️ Nothing saved.")
	case strings.HasPrefix(data, cbConfirmPrefix):
		idx, err := parseIndex(data, cbConfirmPrefix)
		if err != nil {
			return nil
		}
		return b.confirmIntents(ctx, cb, idx)
	case strings.HasPrefix(data, cbCancelPrefix):
		idx, err := parseIndex(data, cbCancelPrefix)
		if err != nil {
			return nil
		}
		p := b.takeIntent(cb.From.ID, idx)
		return b.refreshProposal(cb, p, "↩️ Skipped.")
	default:
		return nil
	}
}

// confirmIntents materializes the intent at idx, or every pending one when idx is negative.
func (b *Bot) confirmIntents(ctx context.Context, cb *tgbotapi.CallbackQuery, idx int) error {
	user, err := b.ensureUser(ctx, cb.From)
	if err != nil {
		return err
	}

	var chosen []*extraction.Intent
	var p *proposal
	if idx < 0 {
		chosen = b.takeAll(cb.From.ID)
	} else {
		var intent *extraction.Intent
		p, intent = b.takeIntentValue(cb.From.ID, idx)
		if intent != nil {
			chosen = append(chosen, intent)
		}
	}
	if len(chosen) == 0 {
		return b.refreshProposal(cb, p, "This suggestion is no longer pending.")
	}

	var lines []string
	for _, intent := range chosen {
		saved, err := b.deps.Materializer.Materialize(ctx, *intent, user)
		if err != nil {
			log.Printf("[error] materialize %s for user=%d: %v", intent.Kind, user.ID, err)
			lines = append(lines, userMessage(err))
			continue
		}
		lines = append(lines, b.savedLine(saved))
	}
	return b.refreshProposal(cb, p, strings.Join(lines, "\n"))
}

// refreshProposal rewrites the proposal's keyboard to the still pending
// intents and reports text.
func (b *Bot) refreshProposal(cb *tgbotapi.CallbackQuery, p *proposal, text string) error {
	markup := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	if p != nil && p.pending() > 0 {
		markup = proposalKeyboard(p)
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID, markup)
	if _, err := b.api.Request(edit); err != nil {
		log.Printf("[warn] edit proposal keyboard: %v", err)
	}
	return b.sendText(cb.Message.Chat.ID, text)
}

func (b *Bot) handleSummary(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	text, err := b.deps.Summaries.DailySummary(ctx, user, b.deps.Clock.Now())
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Could not build the summary: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, escape(text))
}

func (b *Bot) handleSummaryTime(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Your daily summary arrives at %s. Change it with /summarytime 08:30", user.SummaryTime))
	}
	value, err := b.deps.Users.SetSummaryTime(ctx, user.ID, args)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("⏰ Daily summary moved to %s.", value))
}

func (b *Bot) handleEvents(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	now := b.deps.Clock.Now()
	to := now.Add(7 * 24 * time.Hour)
	events, err := b.deps.Calendar.ListEvents(ctx, user.ID, repository.EventFilter{From: &now, To: &to})
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	if len(events) == 0 {
		return b.sendText(msg.Chat.ID, "📅 Nothing on the calendar for the next 7 days.")
	}

	var builder strings.Builder
	builder.WriteString("📅 <b>Next 7 days</b>\n")
	for _, event := range events {
		builder.WriteString(b.formatEvent(event))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleTodos(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	open := false
	todos, err := b.deps.Todos.ListTodos(ctx, user.ID, repository.TodoFilter{Completed: &open, Sort: repository.TodoSortDeadline})
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	return b.sendTodoList(msg.Chat.ID, "✅ <b>Open todo items</b>", "Your todo list is empty.", todos)
}

func (b *Bot) handleToday(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	todos, err := b.deps.Todos.Today(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	return b.sendTodoList(msg.Chat.ID, "🗓 <b>Today</b>", "Nothing for today.", todos)
}

func (b *Bot) sendTodoList(chatID int64, header, empty string, todos []model.TodoItem) error {
	if len(todos) == 0 {
		return b.sendText(chatID, empty)
	}
	var builder strings.Builder
	builder.WriteString(header)
	builder.WriteByte('\n')
	for _, todo := range todos {
		builder.WriteString(b.formatTodo(todo))
	}
	return b.sendText(chatID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleToggle(ctx context.Context, msg *tgbotapi.Message) error {
	id, err := commandID(msg)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the todo number: /toggle 12")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	todo, err := b.deps.Todos.Toggle(ctx, user.ID, id)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	if todo.IsCompleted {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ «%s» done.", escape(todo.Title)))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("🔄 «%s» is open again.", escape(todo.Title)))
}

func (b *Bot) handleToCalendar(ctx context.Context, msg *tgbotapi.Message) error {
	id, err := commandID(msg)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the todo number: /tocalendar 12")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	event, err := b.deps.Todos.AddToCalendar(ctx, user.ID, id)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	return b.sendText(msg.Chat.ID, "📅 On the calendar:\n"+b.formatEvent(*event))
}

func (b *Bot) handleExport(ctx context.Context, msg *tgbotapi.Message) error {
	id, err := commandID(msg)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Give the event number: /export 7")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	body, err := b.deps.Calendar.ExportICS(ctx, user.ID, id)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("event-%d.ics", id),
		Bytes: []byte(body),
	})
	_, err = b.api.Send(doc)
	return err
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) error {
	doc := msg.Document
	if !strings.HasSuffix(strings.ToLower(doc.FileName), ".ics") {
		return b.sendText(msg.Chat.ID, "I can only import .ics files.")
	}
	if doc.FileSize > maxICSUpload {
		return b.sendText(msg.Chat.ID, "This file is too large to import.")
	}
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}

	body, err := b.download(ctx, doc.FileID)
	if err != nil {
		log.Printf("[error] download %s for user=%d: %v", doc.FileName, user.ID, err)
		return b.sendText(msg.Chat.ID, "Could not download the file, please try again.")
	}

	events, err := b.deps.Calendar.ImportICS(ctx, user.ID, body)
	if err != nil {
		return b.sendText(msg.Chat.ID, userMessage(err))
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📥 Imported %d event(s) from %s.", len(events), escape(doc.FileName)))
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxICSUpload))
}

func (b *Bot) handleReset(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	b.deps.Chat.Reset(user.ID)
	b.clearProposal(msg.From.ID)
	return b.sendText(msg.Chat.ID, "🧹 Conversation cleared.")
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User) (*model.User, error) {
	fullName := strings.TrimSpace(from.FirstName + " " + from.LastName)
	return b.deps.Users.EnsureTelegramUser(ctx, from.ID, from.UserName, fullName)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) setProposal(userID int64, p *proposal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.proposals[userID] = p
}

func (b *Bot) clearProposal(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.proposals, userID)
}

// takeIntent removes the intent at idx and returns what is left of the proposal.
func (b *Bot) takeIntent(userID int64, idx int) *proposal {
	p, _ := b.takeIntentValue(userID, idx)
	return p
}

func (b *Bot) takeIntentValue(userID int64, idx int) (*proposal, *extraction.Intent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.proposals[userID]
	if !ok || idx < 0 || idx >= len(p.intents) {
		return p, nil
	}
	intent := p.intents[idx]
	p.intents[idx] = nil
	if p.pending() == 0 {
		delete(b.proposals, userID)
	}
	return p, intent
}

func (b *Bot) takeAll(userID int64) []*extraction.Intent {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.proposals[userID]
	if !ok {
		return nil
	}
	delete(b.proposals, userID)
	var out []*extraction.Intent
	for _, intent := range p.intents {
		if intent != nil {
			out = append(out, intent)
		}
	}
	return out
}

func commandID(msg *tgbotapi.Message) (uint, error) {
	args := strings.TrimPrefix(strings.TrimSpace(msg.CommandArguments()), "#")
	id, err := strconv.ParseUint(args, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", args)
	}
	return uint(id), nil
}

func parseIndex(data, prefix string) (int, error) {
	return strconv.Atoi(strings.TrimPrefix(data, prefix))
}

// userMessage turns a service error into something safe to show in chat.
func userMessage(err error) string {
	var validation *service.ValidationError
	var importErr *service.ImportError
	switch {
	case errors.As(err, &validation):
		return "⚠️ " + escape(validation.Error())
	case errors.As(err, &importErr):
		return "⚠️ " + escape(importErr.Error())
	case errors.Is(err, service.ErrNotFound):
		return "Not found."
	default:
		log.Printf("[error] %v", err)
		return "Something went wrong, please try again later."
	}
}
