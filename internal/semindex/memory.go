package semindex

import (
	"context"
	"sync"
)

// MemoryIndex is the in-process cache used when no PostgreSQL DSN is
// configured. Vectors last for the process lifetime only.
type MemoryIndex struct {
	mu   sync.RWMutex
	vecs map[memKey][]float32
}

type memKey struct {
	model string
	text  string
}

// NewMemoryIndex creates an empty in-process index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vecs: make(map[memKey][]float32)}
}

func (m *MemoryIndex) Lookup(_ context.Context, model, text string) ([]float32, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vec, ok := m.vecs[memKey{model, text}]
	return vec, ok, nil
}

func (m *MemoryIndex) Store(_ context.Context, model, text string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vecs[memKey{model, text}] = vec
	return nil
}
