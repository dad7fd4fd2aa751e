package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily-calendar/internal/extraction"
)

type scriptedExtractor struct {
	histories [][]extraction.Message
	result    extraction.Result
	err       error
}

func (s *scriptedExtractor) Extract(_ context.Context, message string, history []extraction.Message) (extraction.Result, error) {
	s.histories = append(s.histories, history)
	if s.err != nil {
		return extraction.Result{}, s.err
	}
	res := s.result
	if res.Reply == "" {
		res.Reply = "echo: " + message
	}
	return res, nil
}

func newChat(t *testing.T, extractor extraction.Service, metrics *Metrics) *ChatService {
	t.Helper()
	sessions, err := extraction.NewSessionStore(16, extraction.DefaultHistoryLimit)
	require.NoError(t, err)
	return NewChatService(extractor, sessions, metrics)
}

func TestChatCapsHistoryPassedToProvider(t *testing.T) {
	extractor := &scriptedExtractor{}
	chat := newChat(t, extractor, nil)

	for i := 0; i < 12; i++ {
		_, err := chat.Send(context.Background(), 1, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
	}

	require.Len(t, extractor.histories, 12)
	assert.Empty(t, extractor.histories[0])
	assert.Len(t, extractor.histories[1], 2)
	last := extractor.histories[11]
	require.Len(t, last, extraction.MaxHistoryTurns)
	assert.Equal(t, "echo: message 10", last[len(last)-1].Content)
	assert.Equal(t, extraction.RoleAssistant, last[len(last)-1].Role)
	assert.Equal(t, "message 6", last[0].Content, "only the most recent turns are sent")
}

func TestChatKeepsUsersApart(t *testing.T) {
	extractor := &scriptedExtractor{}
	chat := newChat(t, extractor, nil)

	_, err := chat.Send(context.Background(), 1, "alice here")
	require.NoError(t, err)
	_, err = chat.Send(context.Background(), 2, "bob here")
	require.NoError(t, err)
	assert.Empty(t, extractor.histories[1])

	chat.Reset(1)
	_, err = chat.Send(context.Background(), 1, "again")
	require.NoError(t, err)
	assert.Empty(t, extractor.histories[2])
}

func TestChatReturnsIntents(t *testing.T) {
	intents := []extraction.Intent{
		{Kind: extraction.KindTodo, Fields: map[string]any{"title": "a"}},
		{Kind: extraction.KindEvent, Fields: map[string]any{"title": "b"}},
	}
	chat := newChat(t, &scriptedExtractor{result: extraction.Result{Reply: "Two items", Intents: intents}}, nil)

	reply, err := chat.Send(context.Background(), 1, "do a and b")
	require.NoError(t, err)
	assert.Equal(t, "Two items", reply.Reply)
	assert.Equal(t, intents, reply.Intents)
}

func TestChatDegradesOnProviderFailure(t *testing.T) {
	extractor := &scriptedExtractor{err: &extraction.ServiceError{Provider: "test", Err: errors.New("timeout")}}
	registry := prometheus.NewRegistry()
	metrics := MustNewMetrics(registry)
	chat := newChat(t, extractor, metrics)

	reply, err := chat.Send(context.Background(), 1, "hello")
	require.NoError(t, err)
	assert.Empty(t, reply.Intents)
	assert.Contains(t, reply.Reply, "I'm sorry, I encountered an error")
	assert.Contains(t, reply.Reply, "timeout")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.extractions.WithLabelValues("error")))

	extractor.err = nil
	_, err = chat.Send(context.Background(), 1, "again")
	require.NoError(t, err)
	require.Len(t, extractor.histories[1], 2, "the failed turn stays in the session")
	assert.Equal(t, reply.Reply, extractor.histories[1][1].Content)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	chat := newChat(t, &scriptedExtractor{}, nil)
	_, err := chat.Send(context.Background(), 1, "   ")
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}
