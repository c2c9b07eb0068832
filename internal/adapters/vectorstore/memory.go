package vectorstore

import (
	"context"
	"sync"

	model "github.com/okian/queryai/internal/domain/model"
)

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	chunks map[string]model.Chunk
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{chunks: make(map[string]model.Chunk)}
}

func (m *Memory) Add(ctx context.Context, chunks []model.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(chunks); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, query []float32, k int, minScore float64) ([]model.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	candidates := make([]model.Chunk, 0, len(m.chunks))
	for _, c := range m.chunks {
		candidates = append(candidates, c)
	}
	m.mu.RUnlock()

	return rank(query, candidates, k, minScore), nil
}

func (m *Memory) HasDocument(_ context.Context, documentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrClosed
	}
	for _, c := range m.chunks {
		if c.DocumentID == documentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.chunks = nil
	return nil
}
