package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/radiusdt/dynaq/internal/metrics"
	"github.com/radiusdt/dynaq/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newEvent(id, project string, offset time.Duration) *models.TrackingEvent {
	return &models.TrackingEvent{
		ID:        id,
		EventType: models.EventAdClick,
		EventID:   "e-" + id,
		ProjectID: project,
		Timestamp: base.Add(offset),
	}
}

func ids(events []*models.TrackingEvent) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func newBadgerStore(t *testing.T) *BadgerEventStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBadgerEventStore(db)
}

func newRedisStore(t *testing.T) *RedisEventStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisEventStore(client, "test:")
}

func eventStores(t *testing.T) map[string]EventStore {
	return map[string]EventStore{
		"memory": NewInMemoryEventStore(),
		"badger": newBadgerStore(t),
		"redis":  newRedisStore(t),
	}
}

func TestEventStore_SaveGetDelete(t *testing.T) {
	for name, store := range eventStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e := newEvent("a", "p1", 0)
			e.AdID = "ad-1"
			e.SessionID = "s-1"
			e.Metadata = map[string]string{"page": "/home"}

			require.NoError(t, store.SaveEvent(ctx, e))

			got, err := store.GetEvent(ctx, "a")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "p1", got.ProjectID)
			assert.Equal(t, "ad-1", got.AdID)
			assert.Equal(t, "/home", got.Metadata["page"])
			assert.True(t, base.Equal(got.Timestamp))

			deleted, err := store.DeleteEvent(ctx, "a")
			require.NoError(t, err)
			assert.True(t, deleted)

			got, err = store.GetEvent(ctx, "a")
			require.NoError(t, err)
			assert.Nil(t, got)

			events, err := store.ListEvents(ctx, EventQuery{ProjectID: "p1"})
			require.NoError(t, err)
			assert.Empty(t, events)
		})
	}
}

func TestEventStore_DeleteMissing(t *testing.T) {
	for name, store := range eventStores(t) {
		t.Run(name, func(t *testing.T) {
			deleted, err := store.DeleteEvent(context.Background(), "nope")
			require.NoError(t, err)
			assert.False(t, deleted)
		})
	}
}

func TestEventStore_ListByProjectNewestFirst(t *testing.T) {
	for name, store := range eventStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.SaveEvent(ctx, newEvent("old", "p1", -2*time.Hour)))
			require.NoError(t, store.SaveEvent(ctx, newEvent("new", "p1", time.Hour)))
			require.NoError(t, store.SaveEvent(ctx, newEvent("mid", "p1", 0)))
			require.NoError(t, store.SaveEvent(ctx, newEvent("other", "p2", 0)))
			// shares a prefix with p1
			require.NoError(t, store.SaveEvent(ctx, newEvent("prefixed", "p10", 0)))

			events, err := store.ListEvents(ctx, EventQuery{ProjectID: "p1"})
			require.NoError(t, err)
			assert.Equal(t, []string{"new", "mid", "old"}, ids(events))
		})
	}
}

func TestEventStore_ListInclusiveRange(t *testing.T) {
	for name, store := range eventStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"d0", "d1", "d2", "d3", "d4"} {
				require.NoError(t, store.SaveEvent(ctx, newEvent(id, "p1", time.Duration(i)*24*time.Hour)))
			}

			from := base.Add(24 * time.Hour)
			to := base.Add(3 * 24 * time.Hour)

			events, err := store.ListEvents(ctx, EventQuery{ProjectID: "p1", From: &from, To: &to})
			require.NoError(t, err)
			assert.Equal(t, []string{"d3", "d2", "d1"}, ids(events))

			events, err = store.ListEvents(ctx, EventQuery{ProjectID: "p1", From: &from})
			require.NoError(t, err)
			assert.Equal(t, []string{"d4", "d3", "d2", "d1"}, ids(events))

			events, err = store.ListEvents(ctx, EventQuery{ProjectID: "p1", To: &from})
			require.NoError(t, err)
			assert.Equal(t, []string{"d1", "d0"}, ids(events))
		})
	}
}

func TestEventStore_ListSubMillisecondBounds(t *testing.T) {
	for name, store := range eventStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.SaveEvent(ctx, newEvent("early", "p1", 100*time.Microsecond)))
			require.NoError(t, store.SaveEvent(ctx, newEvent("late", "p1", 900*time.Microsecond)))

			from := base.Add(500 * time.Microsecond)
			events, err := store.ListEvents(ctx, EventQuery{ProjectID: "p1", From: &from})
			require.NoError(t, err)
			assert.Equal(t, []string{"late"}, ids(events))

			events, err = store.ListEvents(ctx, EventQuery{ProjectID: "p1", To: &from})
			require.NoError(t, err)
			assert.Equal(t, []string{"early"}, ids(events))
		})
	}
}

func TestEventStore_ListByAdAndSurvey(t *testing.T) {
	for name, store := range eventStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ad := newEvent("ad", "p1", 0)
			ad.AdID = "a1"
			survey := newEvent("survey", "p1", time.Minute)
			survey.EventType = models.EventSurveySubmit
			survey.SurveyID = "s1"
			otherProject := newEvent("ad-p2", "p2", 0)
			otherProject.AdID = "a1"

			for _, e := range []*models.TrackingEvent{ad, survey, otherProject} {
				require.NoError(t, store.SaveEvent(ctx, e))
			}

			events, err := store.ListEvents(ctx, EventQuery{ProjectID: "p1", AdID: "a1"})
			require.NoError(t, err)
			assert.Equal(t, []string{"ad"}, ids(events))

			events, err = store.ListEvents(ctx, EventQuery{ProjectID: "p1", SurveyID: "s1"})
			require.NoError(t, err)
			assert.Equal(t, []string{"survey"}, ids(events))

			events, err = store.ListEvents(ctx, EventQuery{ProjectID: "p3"})
			require.NoError(t, err)
			assert.NotNil(t, events)
			assert.Empty(t, events)
		})
	}
}

func TestEventStore_Ping(t *testing.T) {
	for name, store := range eventStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, store.Ping(context.Background()))
		})
	}
}

func TestBadgerEventStore_PingAfterClose(t *testing.T) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	store := NewBadgerEventStore(db)
	require.NoError(t, db.Close())

	assert.Error(t, store.Ping(context.Background()))
}

func TestRedisEventStore_ListSkipsDanglingIndex(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := NewRedisEventStore(client, "")
	ctx := context.Background()

	require.NoError(t, store.SaveEvent(ctx, newEvent("kept", "p1", 0)))
	require.NoError(t, store.SaveEvent(ctx, newEvent("gone", "p1", time.Second)))
	mr.Del("event:gone")

	events, err := store.ListEvents(ctx, EventQuery{ProjectID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, ids(events))
}

func TestRedisEventStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewRedisEventStore(client, "")
	mr.Close()

	err := store.SaveEvent(context.Background(), newEvent("x", "p1", 0))
	assert.Error(t, err)
	assert.Error(t, store.Ping(context.Background()))
}

func TestInstrumentedEventStore(t *testing.T) {
	m := metrics.NewMetrics("dynaq", nil)
	store := NewInstrumentedEventStore(NewInMemoryEventStore(), "memory", m)
	ctx := context.Background()

	require.NoError(t, store.SaveEvent(ctx, newEvent("a", "p1", 0)))
	_, err := store.GetEvent(ctx, "a")
	require.NoError(t, err)
	_, err = store.ListEvents(ctx, EventQuery{ProjectID: "p1"})
	require.NoError(t, err)
	ok, err := store.DeleteEvent(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 4, testutil.CollectAndCount(m.StoreLatency))
	assert.Equal(t, 0, testutil.CollectAndCount(m.StoreErrors))
}

func TestEventQueryMatch(t *testing.T) {
	from := base.Add(-time.Hour)
	to := base.Add(time.Hour)
	e := newEvent("a", "p1", 0)
	e.AdID = "a1"

	tests := []struct {
		name string
		q    EventQuery
		want bool
	}{
		{"project only", EventQuery{ProjectID: "p1"}, true},
		{"wrong project", EventQuery{ProjectID: "p2"}, false},
		{"ad match", EventQuery{ProjectID: "p1", AdID: "a1"}, true},
		{"ad mismatch", EventQuery{ProjectID: "p1", AdID: "a2"}, false},
		{"survey mismatch", EventQuery{ProjectID: "p1", SurveyID: "s1"}, false},
		{"in range", EventQuery{ProjectID: "p1", From: &from, To: &to}, true},
		{"from equals timestamp", EventQuery{ProjectID: "p1", From: &base}, true},
		{"to equals timestamp", EventQuery{ProjectID: "p1", To: &base}, true},
		{"before range", EventQuery{ProjectID: "p1", From: &to}, false},
		{"after range", EventQuery{ProjectID: "p1", To: &from}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.Match(e))
		})
	}
}
