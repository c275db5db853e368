package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store for tests and single-node runs without
// an external broker. State is copied through JSON on the way in and out so
// callers never share mutable maps with the store.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string][]byte
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string][]byte)}
}

// Load returns the persisted state for a thread, or ErrNotFound.
func (m *MemoryStore) Load(_ context.Context, threadID string) (*State, error) {
	if threadID == "" {
		return nil, errors.New("thread id is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.New("store is closed")
	}

	raw, ok := m.states[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decoding checkpoint for %s: %w", threadID, err)
	}
	return &st, nil
}

// Save persists the state for a thread.
func (m *MemoryStore) Save(_ context.Context, threadID string, state *State) error {
	if threadID == "" {
		return errors.New("thread id is required")
	}
	if state == nil {
		return errors.New("state is required")
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding checkpoint for %s: %w", threadID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("store is closed")
	}
	m.states[threadID] = raw
	return nil
}

// Delete removes a thread's state.
func (m *MemoryStore) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("store is closed")
	}
	delete(m.states, threadID)
	return nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
