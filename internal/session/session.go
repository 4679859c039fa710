// Package session keeps the short-lived conversational state of a chat:
// which multi-step flow it is in and what has been collected so far.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	FlowNewCompany = "new_company"
	FlowComment    = "comment"
)

type Session struct {
	ID        string            `json:"id"`
	ChatID    int64             `json:"chat_id"`
	Flow      string            `json:"flow"`
	Step      string            `json:"step"`
	Data      map[string]string `json:"data,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
}

func New(chatID int64, flow, step string, ttl time.Duration, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Flow:      flow,
		Step:      step,
		Data:      map[string]string{},
		ExpiresAt: now.Add(ttl),
	}
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

func (s *Session) Set(key, value string) {
	if s.Data == nil {
		s.Data = map[string]string{}
	}
	s.Data[key] = value
}

// Store persists one session per chat. Get returns nil, nil when the chat
// has no session or it has expired.
type Store interface {
	Get(ctx context.Context, chatID int64) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, chatID int64) error
}

// MemoryStore is used by tests and by local runs without Redis.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]Session
	now      func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{sessions: map[int64]Session{}, now: now}
}

func (m *MemoryStore) Get(_ context.Context, chatID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[chatID]
	if !ok {
		return nil, nil
	}
	if s.Expired(m.now()) {
		delete(m.sessions, chatID)
		return nil, nil
	}
	s.Data = copyData(s.Data)
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	cp.Data = copyData(s.Data)
	m.sessions[s.ChatID] = cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
	return nil
}

func copyData(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
