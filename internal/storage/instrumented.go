package storage

import (
	"context"
	"time"

	"github.com/radiusdt/dynaq/internal/metrics"
	"github.com/radiusdt/dynaq/internal/models"
)

// InstrumentedEventStore records latency and failures of every call to the
// wrapped store.
type InstrumentedEventStore struct {
	inner   EventStore
	backend string
	metrics *metrics.Metrics
}

func NewInstrumentedEventStore(inner EventStore, backend string, m *metrics.Metrics) *InstrumentedEventStore {
	return &InstrumentedEventStore{inner: inner, backend: backend, metrics: m}
}

func (s *InstrumentedEventStore) observe(op string, start time.Time, err error) {
	s.metrics.RecordStoreOp(s.backend, op, time.Since(start), err)
}

func (s *InstrumentedEventStore) SaveEvent(ctx context.Context, e *models.TrackingEvent) error {
	start := time.Now()
	err := s.inner.SaveEvent(ctx, e)
	s.observe("save", start, err)
	return err
}

func (s *InstrumentedEventStore) GetEvent(ctx context.Context, id string) (*models.TrackingEvent, error) {
	start := time.Now()
	e, err := s.inner.GetEvent(ctx, id)
	s.observe("get", start, err)
	return e, err
}

func (s *InstrumentedEventStore) DeleteEvent(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	ok, err := s.inner.DeleteEvent(ctx, id)
	s.observe("delete", start, err)
	return ok, err
}

func (s *InstrumentedEventStore) ListEvents(ctx context.Context, q EventQuery) ([]*models.TrackingEvent, error) {
	start := time.Now()
	events, err := s.inner.ListEvents(ctx, q)
	s.observe("list", start, err)
	return events, err
}

func (s *InstrumentedEventStore) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}
