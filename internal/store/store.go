// Package store persists entities as JSON documents keyed by id.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
)

var ErrNotFound = errors.New("document not found")

// Store is the persistence port used by every service. Values are copied in
// and out, so callers never share memory with the stored document.
type Store[V any] interface {
	Get(ctx context.Context, id string) (V, error)
	// GetMany returns the documents that exist among ids, in ids order.
	GetMany(ctx context.Context, ids []string) ([]V, error)
	Put(ctx context.Context, id string, v V) error
	Delete(ctx context.Context, id string) error
	// List returns every document ordered by id.
	List(ctx context.Context) ([]V, error)
}

type Memory[V any] struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{docs: make(map[string][]byte)}
}

func (m *Memory[V]) Get(_ context.Context, id string) (V, error) {
	m.mu.RLock()
	body, ok := m.docs[id]
	m.mu.RUnlock()

	var v V
	if !ok {
		return v, ErrNotFound
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, err
	}
	return v, nil
}

func (m *Memory[V]) GetMany(ctx context.Context, ids []string) ([]V, error) {
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		v, err := m.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (m *Memory[V]) Put(_ context.Context, id string, v V) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.docs[id] = body
	m.mu.Unlock()
	return nil
}

func (m *Memory[V]) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[id]; !ok {
		return ErrNotFound
	}
	delete(m.docs, id)
	return nil
}

func (m *Memory[V]) List(_ context.Context) ([]V, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.docs))
	bodies := make(map[string][]byte, len(m.docs))
	for id, b := range m.docs {
		ids = append(ids, id)
		bodies[id] = b
	}
	m.mu.RUnlock()

	slices.Sort(ids)
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		var v V
		if err := json.Unmarshal(bodies[id], &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
