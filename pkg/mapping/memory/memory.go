// Package memory provides an in-process mapping store, used by tests and by
// one-shot CLI runs that do not need links to outlive the process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentstation/syncbridge/pkg/errors"
	"github.com/agentstation/syncbridge/pkg/mapping"
)

// Store is a concurrent-safe in-memory mapping store.
type Store struct {
	mu       sync.RWMutex
	mappings map[int64]*mapping.ObjectMapping
	nextID   int64
	now      func() time.Time
	locker   *mapping.KeyedLocker
	clears   int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for DateCreated.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		mappings: map[int64]*mapping.ObjectMapping{},
		now:      func() time.Time { return time.Now().UTC() },
		locker:   mapping.NewKeyedLocker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ mapping.Store = (*Store)(nil)

func (s *Store) find(match func(*mapping.ObjectMapping) bool, object, id string) (*mapping.ObjectMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*mapping.ObjectMapping
	for _, id := range s.sortedIDs() {
		if m := s.mappings[id]; match(m) {
			candidates = append(candidates, m)
		}
	}
	picked := mapping.Pick(candidates)
	if picked == nil {
		return nil, errors.NewObjectNotFoundError(object, id)
	}
	cp := *picked
	return &cp, nil
}

func (s *Store) sortedIDs() []int64 {
	ids := make([]int64, 0, len(s.mappings))
	for id := range s.mappings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// InternalObject implements mapping.Store.
func (s *Store) InternalObject(_ context.Context, integration, integrationObjectName, integrationObjectID, internalObjectName string) (*mapping.ObjectMapping, error) {
	return s.find(func(m *mapping.ObjectMapping) bool {
		return m.Integration == integration &&
			m.IntegrationObjectName == integrationObjectName &&
			m.IntegrationObjectID == integrationObjectID &&
			m.InternalObjectName == internalObjectName
	}, integrationObjectName, integrationObjectID)
}

// IntegrationObject implements mapping.Store.
func (s *Store) IntegrationObject(_ context.Context, integration, internalObjectName, internalObjectID, integrationObjectName string) (*mapping.ObjectMapping, error) {
	return s.find(func(m *mapping.ObjectMapping) bool {
		return m.Integration == integration &&
			m.InternalObjectName == internalObjectName &&
			m.InternalObjectID == internalObjectID &&
			m.IntegrationObjectName == integrationObjectName
	}, internalObjectName, internalObjectID)
}

// FindByIntegrationObject implements mapping.Store.
func (s *Store) FindByIntegrationObject(_ context.Context, integration, integrationObjectName, integrationObjectID string) (*mapping.ObjectMapping, error) {
	return s.find(func(m *mapping.ObjectMapping) bool {
		return m.Integration == integration &&
			m.IntegrationObjectName == integrationObjectName &&
			m.IntegrationObjectID == integrationObjectID
	}, integrationObjectName, integrationObjectID)
}

// Save implements mapping.Store.
func (s *Store) Save(_ context.Context, m *mapping.ObjectMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !m.IsDeleted {
		for id, existing := range s.mappings {
			if id != m.ID && !existing.IsDeleted && existing.Key() == m.Key() {
				return errors.NewValidationError("mapping", m.Key(), "a live mapping already exists")
			}
		}
	}

	if m.ID == 0 {
		s.nextID++
		m.ID = s.nextID
		if m.DateCreated.IsZero() {
			m.DateCreated = s.now()
		}
	} else if _, ok := s.mappings[m.ID]; !ok {
		return errors.NewObjectNotFoundError("mapping", "")
	}
	cp := *m
	s.mappings[m.ID] = &cp
	return nil
}

// UpdateIntegrationObject implements mapping.Store.
func (s *Store) UpdateIntegrationObject(_ context.Context, integration, oldObjectName, oldObjectID, newObjectName, newObjectID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.mappings {
		if m.Integration == integration && !m.IsDeleted &&
			m.IntegrationObjectName == oldObjectName && m.IntegrationObjectID == oldObjectID {
			m.IntegrationObjectName = newObjectName
			m.IntegrationObjectID = newObjectID
			n++
		}
	}
	return n, nil
}

// MarkAsDeleted implements mapping.Store.
func (s *Store) MarkAsDeleted(_ context.Context, integration string, side mapping.Side, objectName, objectID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.mappings {
		if m.Integration != integration || m.IsDeleted {
			continue
		}
		var hit bool
		switch side {
		case mapping.SideInternal:
			hit = m.InternalObjectName == objectName && m.InternalObjectID == objectID
		case mapping.SideIntegration:
			hit = m.IntegrationObjectName == objectName && m.IntegrationObjectID == objectID
		default:
			return 0, errors.NewValidationError("side", side, "unknown mapping side")
		}
		if hit {
			m.IsDeleted = true
			n++
		}
	}
	return n, nil
}

// List implements mapping.Store.
func (s *Store) List(_ context.Context, filter mapping.Filter) ([]*mapping.ObjectMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*mapping.ObjectMapping
	for _, id := range s.sortedIDs() {
		if m := s.mappings[id]; filter.Matches(m) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Clear implements mapping.Store. The memory store keeps no separate cache,
// so it only counts calls.
func (s *Store) Clear() {
	s.mu.Lock()
	s.clears++
	s.mu.Unlock()
}

// Clears returns how many times Clear was called.
func (s *Store) Clears() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clears
}

// Lock implements mapping.Store.
func (s *Store) Lock(ctx context.Context, integration string) (func(), error) {
	return s.locker.Lock(ctx, integration)
}
