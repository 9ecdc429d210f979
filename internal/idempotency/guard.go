// Package idempotency remembers which client-supplied keys have already
// produced a result, so a retried request returns the original result instead
// of repeating its side effects.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KeyPayment = "idem:payment:%s"

	pending = "pending"
)

// Guard records the outcome of keyed requests.
//
// Claim reserves key for the caller. When the key was already claimed it
// returns the stored result and false; the result is empty while the first
// request is still running.
type Guard interface {
	Claim(ctx context.Context, key string) (prior string, claimed bool, err error)
	Complete(ctx context.Context, key, result string) error
	Abandon(ctx context.Context, key string) error
}

type entry struct {
	value     string
	expiresAt time.Time
}

type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *Memory) Claim(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expiresAt) {
		return result(e.value), false, nil
	}
	m.entries[key] = entry{value: pending, expiresAt: now.Add(m.ttl)}
	return "", true, nil
}

func (m *Memory) Complete(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{value: value, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Abandon(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Claim(ctx context.Context, key string) (string, bool, error) {
	ok, err := r.client.SetNX(ctx, key, pending, r.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("claim %s: %w", key, err)
	}
	if ok {
		return "", true, nil
	}

	value, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET.
		return r.Claim(ctx, key)
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return result(value), false, nil
}

func (r *Redis) Complete(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Abandon(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("abandon %s: %w", key, err)
	}
	return nil
}

func result(v string) string {
	if v == pending {
		return ""
	}
	return v
}
