package extraction

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultHistoryLimit is the number of turns a Session keeps.
const DefaultHistoryLimit = 20

// Session is the conversation context of one user. It lives in memory only
// and is lost when the process restarts.
type Session struct {
	mu    sync.Mutex
	limit int
	turns []Message
}

// Append records a turn, dropping the oldest ones beyond the session limit.
func (s *Session) Append(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Message{Role: role, Content: content})
	if over := len(s.turns) - s.limit; over > 0 {
		s.turns = append([]Message(nil), s.turns[over:]...)
	}
}

// Recent returns a copy of the last n turns, oldest first.
func (s *Session) Recent(n int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.turns) {
		n = len(s.turns)
	}
	out := make([]Message, n)
	copy(out, s.turns[len(s.turns)-n:])
	return out
}

// Len reports the number of stored turns.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// SessionStore keeps one Session per user, evicting the least recently used
// sessions once maxSessions is reached.
type SessionStore struct {
	mu    sync.Mutex
	cache *lru.Cache[uint, *Session]
	limit int
}

func NewSessionStore(maxSessions, historyLimit int) (*SessionStore, error) {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	cache, err := lru.New[uint, *Session](maxSessions)
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	return &SessionStore{cache: cache, limit: historyLimit}, nil
}

// Get returns the user's session, creating an empty one if needed.
func (s *SessionStore) Get(userID uint) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.cache.Get(userID); ok {
		return session
	}
	session := &Session{limit: s.limit}
	s.cache.Add(userID, session)
	return session
}

// Reset forgets the user's conversation.
func (s *SessionStore) Reset(userID uint) {
	s.cache.Remove(userID)
}
