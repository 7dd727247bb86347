// Package idempotency records which deliveries have already been handled so
// at-least-once transports (Pub/Sub, processor webhooks) apply each one once.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the subset of the Redis client a marker needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager writes one SETNX marker per (scope, id) that lives for ttl. A zero
// ttl keeps markers forever.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMarkProcessed reports whether consumer already handled eventID and
// marks it handled otherwise. Markers live under evt:processed:<consumer>.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	scope, id, err := consumerKey(consumer, eventID)
	if err != nil {
		return false, err
	}
	return m.mark(ctx, scope, id)
}

// Delete clears the consumer marker so a redelivery is handled again.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	scope, id, err := consumerKey(consumer, eventID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, m.store.IdempotencyKey(scope, id))
}

// Scoped returns a Guard for string identifiers such as processor event ids.
func (m *Manager) Scoped(scope string) (*Guard, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &Guard{manager: m, scope: scope}, nil
}

func (m *Manager) mark(ctx context.Context, scope, id string) (bool, error) {
	key := m.store.IdempotencyKey(scope, id)
	set, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency marker %s: %w", key, err)
	}
	return !set, nil
}

func consumerKey(consumer string, eventID uuid.UUID) (string, string, error) {
	if strings.TrimSpace(consumer) == "" {
		return "", "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", "", errors.New("event id is required")
	}
	return "evt:processed:" + consumer, eventID.String(), nil
}

// Guard dedupes string identifiers under a single scope.
type Guard struct {
	manager *Manager
	scope   string
}

// CheckAndMark reports whether id was already seen and marks it otherwise.
func (g *Guard) CheckAndMark(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("event id is required")
	}
	return g.manager.mark(ctx, g.scope, id)
}

func (g *Guard) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("event id is required")
	}
	return g.manager.store.Del(ctx, g.manager.store.IdempotencyKey(g.scope, id))
}
