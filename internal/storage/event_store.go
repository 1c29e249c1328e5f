package storage

import (
	"context"
	"sync"

	"github.com/radiusdt/dynaq/internal/models"
)

// InMemoryEventStore provides in-memory storage for events.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[string]*models.TrackingEvent

	// project_id -> set of event ids
	byProject map[string]map[string]struct{}
}

// NewInMemoryEventStore creates a new in-memory event store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		events:    make(map[string]*models.TrackingEvent),
		byProject: make(map[string]map[string]struct{}),
	}
}

func (s *InMemoryEventStore) SaveEvent(ctx context.Context, e *models.TrackingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.events[e.ID] = &cp

	ids, ok := s.byProject[e.ProjectID]
	if !ok {
		ids = make(map[string]struct{})
		s.byProject[e.ProjectID] = ids
	}
	ids[e.ID] = struct{}{}

	return nil
}

func (s *InMemoryEventStore) GetEvent(ctx context.Context, id string) (*models.TrackingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (s *InMemoryEventStore) DeleteEvent(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[id]
	if !ok {
		return false, nil
	}
	delete(s.events, id)
	if ids := s.byProject[e.ProjectID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(s.byProject, e.ProjectID)
		}
	}
	return true, nil
}

func (s *InMemoryEventStore) ListEvents(ctx context.Context, q EventQuery) ([]*models.TrackingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.TrackingEvent, 0)
	for id := range s.byProject[q.ProjectID] {
		e := s.events[id]
		if e != nil && q.Match(e) {
			cp := *e
			result = append(result, &cp)
		}
	}
	sortNewestFirst(result)
	return result, nil
}

func (s *InMemoryEventStore) Ping(ctx context.Context) error {
	return nil
}
