// Package extraction defines the boundary between the planner and the language
// model that turns free text into structured todo and event intents.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxHistoryTurns bounds how many prior turns are handed to a Service.
const MaxHistoryTurns = 10

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Kind tells which domain object an intent describes.
type Kind string

const (
	KindTodo  Kind = "todo"
	KindEvent Kind = "event"
)

// Intent is a structured extraction result. Field names follow the wire
// schema shared with the model: title, description, deadline, start_time,
// end_time, priority, location, is_all_day.
type Intent struct {
	Kind   Kind           `json:"type"`
	Fields map[string]any `json:"data"`
}

// String returns the trimmed string value of key, or "" when absent or not a string.
func (i Intent) String(key string) string {
	v, ok := i.Fields[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return ""
	}
}

// Bool returns the boolean value of key. The strings "true"/"yes"/"1" count as true.
func (i Intent) Bool(key string) bool {
	switch val := i.Fields[key].(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "1":
			return true
		}
	}
	return false
}

// Result is what a Service produced for one message.
type Result struct {
	Reply   string
	Intents []Intent
}

// Service maps a message plus recent history to a reply and zero or more intents.
// Implementations must not mutate history.
type Service interface {
	Extract(ctx context.Context, message string, history []Message) (Result, error)
}

// Rewriter rephrases text; used to polish daily summaries.
type Rewriter interface {
	Rewrite(ctx context.Context, instruction, text string) (string, error)
}

// ServiceError reports an upstream failure of a provider.
type ServiceError struct {
	Provider string
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

type disabled struct{}

// Disabled returns a Service and Rewriter that always fail with a ServiceError.
// It stands in when no provider is configured.
func Disabled() interface {
	Service
	Rewriter
} {
	return disabled{}
}

var errNotConfigured = errors.New("the AI service is not configured")

func (disabled) Extract(context.Context, string, []Message) (Result, error) {
	return Result{}, &ServiceError{Provider: "disabled", Err: errNotConfigured}
}

func (disabled) Rewrite(context.Context, string, string) (string, error) {
	return "", &ServiceError{Provider: "disabled", Err: errNotConfigured}
}
