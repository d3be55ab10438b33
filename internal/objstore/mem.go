package objstore

import (
	"context"
	"fmt"
	"sync"
)

// Mem is an in-memory Store used by tests and by the null scope.
type Mem struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// FailPut, when set, makes every Put return this error. Lets tests
	// exercise the durable-write-failure path.
	FailPut error
}

// NewMem returns an empty in-memory store.
func NewMem() *Mem {
	return &Mem{objects: make(map[string][]byte)}
}

func (m *Mem) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: mem://%s", ErrNotExist, key)
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

func (m *Mem) Put(ctx context.Context, key string, body []byte) error {
	if m.FailPut != nil {
		return m.FailPut
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(body))
	copy(cp, body)
	m.objects[key] = cp
	return nil
}

// Seed stores an object without going through Put, bypassing FailPut.
func (m *Mem) Seed(key string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = body
}
