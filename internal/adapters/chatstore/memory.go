package chatstore

import (
	"context"
	"sort"
	"sync"

	model "github.com/okian/queryai/internal/domain/model"
)

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	window int
	convos map[string][]model.ChatMessage
	closed bool
}

// NewMemory creates an empty in-process store.
func NewMemory(opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{window: o.window, convos: make(map[string][]model.ChatMessage)}
}

func (m *Memory) Append(_ context.Context, userID string, msgs ...model.ChatMessage) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if len(msgs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	convo := append(m.convos[userID], msgs...)
	if len(convo) > m.window {
		convo = append([]model.ChatMessage(nil), convo[len(convo)-m.window:]...)
	}
	m.convos[userID] = convo
	return nil
}

func (m *Memory) History(_ context.Context, userID string) ([]model.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]model.ChatMessage, len(m.convos[userID]))
	copy(out, m.convos[userID])
	return out, nil
}

func (m *Memory) Clear(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.convos[userID]
	delete(m.convos, userID)
	return ok, nil
}

func (m *Memory) Users(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	users := make([]string, 0, len(m.convos))
	for id := range m.convos {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.convos = nil
	return nil
}
