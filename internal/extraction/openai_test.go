package extraction

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *OpenAIService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIService(OpenAIConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "test-model",
		Now:     func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) },
	})
}

func writeCompletion(t *testing.T, w http.ResponseWriter, msg map[string]any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
		"choices": []any{map[string]any{"message": msg}},
	}))
}

func toolCallJSON(name, args string) map[string]any {
	return map[string]any{
		"id":   "call_" + name,
		"type": "function",
		"function": map[string]any{
			"name":      name,
			"arguments": args,
		},
	}
}

func TestExtractMultipleToolCalls(t *testing.T) {
	var captured chatRequest
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		writeCompletion(t, w, map[string]any{
			"role":    "assistant",
			"content": "Got it, two things.",
			"tool_calls": []any{
				toolCallJSON(toolExtractTodo, `{"title":"Buy milk","priority":"high"}`),
				toolCallJSON(toolExtractEvent, `{"title":"Dentist","start_time":"2024-05-02T10:00:00"}`),
			},
		})
	})

	history := []Message{{RoleUser, "earlier"}, {RoleAssistant, "ok"}}
	res, err := svc.Extract(t.Context(), "buy milk and dentist tomorrow at 10", history)
	require.NoError(t, err)

	assert.Equal(t, "Got it, two things.", res.Reply)
	require.Len(t, res.Intents, 2)
	assert.Equal(t, KindTodo, res.Intents[0].Kind)
	assert.Equal(t, "Buy milk", res.Intents[0].String("title"))
	assert.Equal(t, KindEvent, res.Intents[1].Kind)
	assert.Equal(t, "2024-05-02T10:00:00", res.Intents[1].String("start_time"))

	require.Len(t, captured.Messages, 4)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Contains(t, captured.Messages[0].Content, "2024-05-01")
	assert.Equal(t, "earlier", captured.Messages[1].Content)
	assert.Equal(t, "buy milk and dentist tomorrow at 10", captured.Messages[3].Content)
	assert.Len(t, captured.Tools, 2)
	assert.Equal(t, "test-model", captured.Model)
}

func TestExtractRepairsArgumentsAndAcknowledges(t *testing.T) {
	var calls atomic.Int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeCompletion(t, w, map[string]any{
				"role":       "assistant",
				"content":    "",
				"tool_calls": []any{toolCallJSON(toolExtractTodo, `{'title': 'Call mom',}`)},
			})
			return
		}
		writeCompletion(t, w, map[string]any{"role": "assistant", "content": "I'll remember to call mom."})
	})

	res, err := svc.Extract(t.Context(), "remind me to call mom", nil)
	require.NoError(t, err)
	require.Len(t, res.Intents, 1)
	assert.Equal(t, "Call mom", res.Intents[0].String("title"))
	assert.Equal(t, "I'll remember to call mom.", res.Reply)
	assert.Equal(t, int32(2), calls.Load())
}

func TestExtractSkipsUnknownTools(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(t, w, map[string]any{
			"role":       "assistant",
			"content":    "Hello!",
			"tool_calls": []any{toolCallJSON("get_weather", `{}`)},
		})
	})

	res, err := svc.Extract(t.Context(), "hi", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Intents)
	assert.Equal(t, "Hello!", res.Reply)
}

func TestExtractHTTPErrorIsServiceError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := svc.Extract(t.Context(), "hi", nil)
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "test-model", svcErr.Provider)
	assert.Contains(t, err.Error(), "429")
}

func TestRewrite(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Empty(t, req.Tools)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "be friendly", req.Messages[0].Content)
		writeCompletion(t, w, map[string]any{"role": "assistant", "content": " Good morning! "})
	})

	out, err := svc.Rewrite(t.Context(), "be friendly", "summary")
	require.NoError(t, err)
	assert.Equal(t, "Good morning!", out)
}

func TestDecodeArguments(t *testing.T) {
	fields, err := decodeArguments("")
	require.NoError(t, err)
	assert.Empty(t, fields)

	fields, err = decodeArguments(`{"title": "Trip", "is_all_day": true`)
	require.NoError(t, err)
	assert.Equal(t, "Trip", fields["title"])
	assert.Equal(t, true, fields["is_all_day"])
}
