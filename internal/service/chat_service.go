package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"daily-calendar/internal/extraction"
)

// ChatReply is the assistant's answer plus the intents it proposed.
type ChatReply struct {
	Reply   string
	Intents []extraction.Intent
}

// ChatService runs one conversation turn against the extraction provider.
type ChatService struct {
	extractor extraction.Service
	sessions  *extraction.SessionStore
	metrics   *Metrics
}

func NewChatService(extractor extraction.Service, sessions *extraction.SessionStore, metrics *Metrics) *ChatService {
	return &ChatService{extractor: extractor, sessions: sessions, metrics: metrics}
}

// Send hands message and the last extraction.MaxHistoryTurns turns to the
// provider. Provider failures never surface as errors: the reply carries an
// apology and no intents.
func (s *ChatService) Send(ctx context.Context, userID uint, message string) (ChatReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return ChatReply{}, invalid("message", "is empty")
	}

	session := s.sessions.Get(userID)
	history := session.Recent(extraction.MaxHistoryTurns)
	session.Append(extraction.RoleUser, message)

	result, err := s.extractor.Extract(ctx, message, history)
	if err != nil {
		log.Printf("[warn] chat for user %d: %v", userID, err)
		s.metrics.ObserveExtraction(err)
		reply := fmt.Sprintf("I'm sorry, I encountered an error: %v", err)
		session.Append(extraction.RoleAssistant, reply)
		return ChatReply{Reply: reply}, nil
	}
	s.metrics.ObserveExtraction(nil)

	session.Append(extraction.RoleAssistant, result.Reply)
	return ChatReply{Reply: result.Reply, Intents: result.Intents}, nil
}

// Reset forgets the user's conversation.
func (s *ChatService) Reset(userID uint) {
	s.sessions.Reset(userID)
}
