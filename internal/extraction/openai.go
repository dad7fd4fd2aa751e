package extraction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/kaptinlin/jsonrepair"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second

	toolExtractTodo  = "extract_todo_item"
	toolExtractEvent = "extract_calendar_event"
)

const systemPrompt = `You are the assistant of a personal calendar and todo app.
Your job is to help the user manage their schedule and tasks.
Today is %s.

If the user's message describes:
1. A task or todo item - call extract_todo_item.
2. An event or meeting - call extract_calendar_event.
Call a tool once per item when the message describes several.
Remember previous messages in the conversation and respond conversationally.`

const acknowledgePrompt = "Acknowledge the items you identified in a natural, conversational way. " +
	"Only ask whether to add them when that is clearly appropriate."

// OpenAIConfig configures an OpenAI-compatible chat completions provider.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	// Now supplies the date put into the system prompt.
	Now func() time.Time
}

// OpenAIService extracts intents through tool calls against any
// OpenAI-compatible endpoint (OpenAI, Together, OpenRouter, Ollama...).
type OpenAIService struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	now     func() time.Time
}

func NewOpenAIService(cfg OpenAIConfig) *OpenAIService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &OpenAIService{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  client,
		now:     now,
	}
}

type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Tools       []tool        `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

var extractionTools = []tool{
	{
		Type: "function",
		Function: toolFunction{
			Name:        toolExtractTodo,
			Description: "Extract a todo item from the user message",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":       stringProp("The title of the todo item"),
					"description": stringProp("Optional description"),
					"deadline":    stringProp("The deadline in ISO format (YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS)"),
					"priority":    map[string]any{"type": "string", "enum": []string{"high", "low"}, "description": "Priority level"},
				},
				"required": []string{"title"},
			},
		},
	},
	{
		Type: "function",
		Function: toolFunction{
			Name:        toolExtractEvent,
			Description: "Extract a calendar event from the user message",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":       stringProp("The title of the event"),
					"description": stringProp("Optional description"),
					"start_time":  stringProp("The start time in ISO format (YYYY-MM-DDTHH:MM:SS)"),
					"end_time":    stringProp("The end time in ISO format (YYYY-MM-DDTHH:MM:SS)"),
					"location":    stringProp("Optional location"),
					"is_all_day":  map[string]any{"type": "boolean", "description": "Whether this is an all-day event"},
				},
				"required": []string{"title", "start_time"},
			},
		},
	},
}

// Extract sends history plus message to the model and converts every tool
// call into an Intent.
func (s *OpenAIService) Extract(ctx context.Context, message string, history []Message) (Result, error) {
	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: fmt.Sprintf(systemPrompt, s.now().Format("Monday, 2006-01-02 15:04"))})
	for _, turn := range history {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: RoleUser, Content: message})

	reply, err := s.complete(ctx, chatRequest{
		Model:       s.model,
		Messages:    messages,
		Temperature: 0.7,
		Tools:       extractionTools,
		ToolChoice:  "auto",
	})
	if err != nil {
		return Result{}, err
	}

	intents := make([]Intent, 0, len(reply.ToolCalls))
	for _, call := range reply.ToolCalls {
		intent, ok := toIntent(call)
		if !ok {
			log.Printf("[warn] extraction: skip tool call %q", call.Function.Name)
			continue
		}
		intents = append(intents, intent)
	}

	text := strings.TrimSpace(reply.Content)
	if text == "" && len(intents) > 0 {
		text = s.acknowledge(ctx, messages, len(intents))
	}
	if text == "" {
		text = "I couldn't understand your request. Please try rephrasing."
	}
	return Result{Reply: text, Intents: intents}, nil
}

// acknowledge asks the model for a friendly reply about the extracted items.
// It falls back to a canned sentence when the follow-up call fails.
func (s *OpenAIService) acknowledge(ctx context.Context, messages []chatMessage, count int) string {
	followUp := append(append([]chatMessage(nil), messages...),
		chatMessage{Role: RoleAssistant, Content: fmt.Sprintf("I've identified %d item(s) in your message.", count)},
		chatMessage{Role: RoleUser, Content: acknowledgePrompt},
	)
	reply, err := s.complete(ctx, chatRequest{Model: s.model, Messages: followUp, Temperature: 0.7})
	if err != nil {
		log.Printf("[warn] extraction: acknowledgement call failed: %v", err)
		return fmt.Sprintf("I found %d item(s) in your message. Would you like to add them?", count)
	}
	return strings.TrimSpace(reply.Content)
}

// Rewrite asks the model to rephrase text following instruction.
func (s *OpenAIService) Rewrite(ctx context.Context, instruction, text string) (string, error) {
	reply, err := s.complete(ctx, chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: instruction},
			{Role: RoleUser, Content: text},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(reply.Content)
	if out == "" {
		return "", &ServiceError{Provider: s.model, Err: fmt.Errorf("empty completion")}
	}
	return out, nil
}

func (s *OpenAIService) complete(ctx context.Context, req chatRequest) (chatMessage, error) {
	fail := func(err error) (chatMessage, error) {
		return chatMessage{}, &ServiceError{Provider: s.model, Err: err}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fail(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fail(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fail(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return fail(fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(raw), 200)))
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fail(fmt.Errorf("decode response: %w", err))
	}
	if decoded.Error != nil {
		return fail(fmt.Errorf("api error: %s", decoded.Error.Message))
	}
	if len(decoded.Choices) == 0 {
		return fail(fmt.Errorf("no choices in response"))
	}
	return decoded.Choices[0].Message, nil
}

func toIntent(call toolCall) (Intent, bool) {
	var kind Kind
	switch call.Function.Name {
	case toolExtractTodo:
		kind = KindTodo
	case toolExtractEvent:
		kind = KindEvent
	default:
		return Intent{}, false
	}

	fields, err := decodeArguments(call.Function.Arguments)
	if err != nil {
		log.Printf("[warn] extraction: %s arguments: %v", call.Function.Name, err)
		return Intent{}, false
	}
	return Intent{Kind: kind, Fields: fields}, true
}

// decodeArguments parses tool-call arguments, repairing malformed JSON
// (trailing commas, single quotes, truncated objects) before giving up.
func decodeArguments(args string) (map[string]any, error) {
	args = strings.TrimSpace(args)
	if args == "" {
		return map[string]any{}, nil
	}
	fields := map[string]any{}
	if err := json.Unmarshal([]byte(args), &fields); err == nil {
		return fields, nil
	}
	repaired, err := jsonrepair.JSONRepair(args)
	if err != nil {
		return nil, fmt.Errorf("repair arguments: %w", err)
	}
	fields = map[string]any{}
	if err := json.Unmarshal([]byte(repaired), &fields); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return fields, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
