package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/radiusdt/dynaq/internal/metrics"
	"github.com/radiusdt/dynaq/internal/models"
	"github.com/radiusdt/dynaq/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockEventStore struct {
	mock.Mock
}

func (m *mockEventStore) SaveEvent(ctx context.Context, e *models.TrackingEvent) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockEventStore) GetEvent(ctx context.Context, id string) (*models.TrackingEvent, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*models.TrackingEvent)
	return e, args.Error(1)
}

func (m *mockEventStore) DeleteEvent(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockEventStore) ListEvents(ctx context.Context, q storage.EventQuery) ([]*models.TrackingEvent, error) {
	args := m.Called(ctx, q)
	events, _ := args.Get(0).([]*models.TrackingEvent)
	return events, args.Error(1)
}

func (m *mockEventStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type stubGeo struct {
	country string
	err     error
}

func (g stubGeo) Country(ip string) (string, error) {
	return g.country, g.err
}

func newTestService(store storage.EventStore) *Service {
	return NewService(store, zap.NewNop(), metrics.NewMetrics("test", nil))
}

func TestTrackEvent_Success(t *testing.T) {
	store := storage.NewInMemoryEventStore()
	svc := newTestService(store)
	fixed := time.Date(2024, 5, 1, 8, 30, 0, 0, time.FixedZone("X", 3600))
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	resp, err := svc.TrackEvent(ctx, &models.TrackEventRequest{
		EventType: "ad_click",
		EventID:   "e1",
		ProjectID: "p1",
		AdID:      "a1",
		SessionID: "s1",
		Metadata:  map[string]string{"source": "widget"},
	})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	require.NotEmpty(t, resp.EventID)

	got, err := svc.GetEventByID(ctx, resp.EventID)
	require.NoError(t, err)
	assert.Equal(t, models.EventAdClick, got.EventType)
	assert.Equal(t, "e1", got.EventID)
	assert.Equal(t, "a1", got.AdID)
	assert.Equal(t, "widget", got.Metadata["source"])
	assert.Equal(t, time.UTC, got.Timestamp.Location())
	assert.True(t, fixed.Equal(got.Timestamp))

	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.EventsIngested.WithLabelValues("ad_click")))
}

func TestTrackEvent_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     models.TrackEventRequest
		field   string
		message string
	}{
		{
			name:    "missing event type",
			req:     models.TrackEventRequest{EventID: "e1", ProjectID: "p1"},
			field:   "EventType",
			message: "EventType is required",
		},
		{
			name:    "missing event id",
			req:     models.TrackEventRequest{EventType: "ad_click", ProjectID: "p1"},
			field:   "EventId",
			message: "EventId is required",
		},
		{
			name:    "missing project id",
			req:     models.TrackEventRequest{EventType: "ad_click", EventID: "e1"},
			field:   "ProjectId",
			message: "ProjectId is required",
		},
		{
			name:    "everything missing reports event type first",
			req:     models.TrackEventRequest{},
			field:   "EventType",
			message: "EventType is required",
		},
		{
			name:    "missing id wins over bad type",
			req:     models.TrackEventRequest{EventType: "bogus", ProjectID: "p1"},
			field:   "EventId",
			message: "EventId is required",
		},
		{
			name:    "bogus event type",
			req:     models.TrackEventRequest{EventType: "bogus", EventID: "e1", ProjectID: "p1"},
			field:   "EventType",
			message: "Invalid EventType. Must be one of: ad_impression, ad_click, survey_impression, survey_submit",
		},
		{
			name:    "dashboard-only type",
			req:     models.TrackEventRequest{EventType: "survey_start", EventID: "e1", ProjectID: "p1"},
			field:   "EventType",
			message: "Invalid EventType. Must be one of: ad_impression, ad_click, survey_impression, survey_submit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewInMemoryEventStore()
			svc := newTestService(store)
			ctx := context.Background()

			resp, err := svc.TrackEvent(ctx, &tt.req)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Error)
			assert.Empty(t, resp.EventID)

			if tt.req.ProjectID != "" {
				events, err := store.ListEvents(ctx, storage.EventQuery{ProjectID: tt.req.ProjectID})
				require.NoError(t, err)
				assert.Empty(t, events, "rejected events must not be stored")
			}
		})
	}
}

func TestTrackEvent_StorageFailure(t *testing.T) {
	store := new(mockEventStore)
	cause := errors.New("connection refused")
	store.On("SaveEvent", mock.Anything, mock.Anything).Return(cause)

	svc := newTestService(store)
	resp, err := svc.TrackEvent(context.Background(), &models.TrackEventRequest{
		EventType: "ad_impression", EventID: "e1", ProjectID: "p1",
	})

	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.ErrorIs(t, err, cause)
	assert.False(t, resp.Success)
	assert.Equal(t, GenericTrackError, resp.Error)
	assert.NotContains(t, resp.Error, "connection refused")
	assert.Equal(t, 1.0, testutil.ToFloat64(svc.metrics.IngestRejections.WithLabelValues("storage")))
	store.AssertExpectations(t)
}

func TestTrackEvent_DuplicateEventIDStoresTwoRecords(t *testing.T) {
	// eventId is a correlation token, not an idempotency key. If dedup is
	// ever added this test must change.
	store := storage.NewInMemoryEventStore()
	svc := newTestService(store)
	ctx := context.Background()
	req := &models.TrackEventRequest{EventType: "ad_click", EventID: "dup", ProjectID: "p1"}

	first, err := svc.TrackEvent(ctx, req)
	require.NoError(t, err)
	second, err := svc.TrackEvent(ctx, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.EventID, second.EventID)
	events, err := svc.GetEventsByProject(ctx, "p1", nil, nil)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestTrackEvent_ProjectVerification(t *testing.T) {
	catalog := storage.NewInMemoryCatalogRepo()
	catalog.UpsertProject(&models.Project{ID: "p1", Name: "Known", IsActive: true})
	svc := newTestService(storage.NewInMemoryEventStore()).WithProjectVerification(catalog)
	ctx := context.Background()

	resp, err := svc.TrackEvent(ctx, &models.TrackEventRequest{EventType: "ad_click", EventID: "e1", ProjectID: "p1"})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	resp, err = svc.TrackEvent(ctx, &models.TrackEventRequest{EventType: "ad_click", EventID: "e2", ProjectID: "ghost"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Project not found", resp.Error)
}

func TestTrackEvent_GeoEnrichment(t *testing.T) {
	ctx := context.Background()
	store := storage.NewInMemoryEventStore()
	svc := newTestService(store).WithGeo(stubGeo{country: "DE"})

	resp, err := svc.TrackEvent(ctx, &models.TrackEventRequest{
		EventType: "ad_impression", EventID: "e1", ProjectID: "p1", IPAddress: "81.2.69.160",
	})
	require.NoError(t, err)
	got, err := svc.GetEventByID(ctx, resp.EventID)
	require.NoError(t, err)
	assert.Equal(t, "DE", got.Country)

	failing := newTestService(store).WithGeo(stubGeo{err: errors.New("not found")})
	resp, err = failing.TrackEvent(ctx, &models.TrackEventRequest{
		EventType: "ad_impression", EventID: "e2", ProjectID: "p1", IPAddress: "10.0.0.1",
	})
	require.NoError(t, err)
	got, err = failing.GetEventByID(ctx, resp.EventID)
	require.NoError(t, err)
	assert.Empty(t, got.Country)
}

func TestGetEventsByProject_Range(t *testing.T) {
	store := storage.NewInMemoryEventStore()
	svc := newTestService(store)
	ctx := context.Background()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ts := day.AddDate(0, 0, i)
		svc.now = func() time.Time { return ts }
		_, err := svc.TrackEvent(ctx, &models.TrackEventRequest{EventType: "ad_impression", EventID: "e", ProjectID: "p1"})
		require.NoError(t, err)
	}
	svc.now = func() time.Time { return day }
	_, err := svc.TrackEvent(ctx, &models.TrackEventRequest{EventType: "ad_impression", EventID: "e", ProjectID: "p2"})
	require.NoError(t, err)

	all, err := svc.GetEventsByProject(ctx, "p1", nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	from := day.AddDate(0, 0, 1)
	to := day.AddDate(0, 0, 3)
	ranged, err := svc.GetEventsByProject(ctx, "p1", &from, &to)
	require.NoError(t, err)
	require.Len(t, ranged, 3)
	assert.True(t, to.Equal(ranged[0].Timestamp))
	assert.True(t, from.Equal(ranged[2].Timestamp))
	for _, e := range ranged {
		assert.Equal(t, "p1", e.ProjectID)
	}

	_, err = svc.GetEventsByProject(ctx, "", nil, nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "ProjectId is required", verr.Message)
}

func TestGetEventsByAdAndSurvey(t *testing.T) {
	store := storage.NewInMemoryEventStore()
	svc := newTestService(store)
	ctx := context.Background()

	for _, req := range []*models.TrackEventRequest{
		{EventType: "ad_click", EventID: "1", ProjectID: "p1", AdID: "a1"},
		{EventType: "ad_click", EventID: "2", ProjectID: "p2", AdID: "a1"},
		{EventType: "survey_submit", EventID: "3", ProjectID: "p1", SurveyID: "s1"},
	} {
		_, err := svc.TrackEvent(ctx, req)
		require.NoError(t, err)
	}

	byAd, err := svc.GetEventsByAd(ctx, "a1", "p1")
	require.NoError(t, err)
	require.Len(t, byAd, 1)
	assert.Equal(t, "1", byAd[0].EventID)

	bySurvey, err := svc.GetEventsBySurvey(ctx, "s1", "p1")
	require.NoError(t, err)
	require.Len(t, bySurvey, 1)
	assert.Equal(t, "3", bySurvey[0].EventID)

	_, err = svc.GetEventsByAd(ctx, "a1", "")
	assert.EqualError(t, err, "ProjectId is required")
	_, err = svc.GetEventsBySurvey(ctx, "", "p1")
	assert.EqualError(t, err, "SurveyId is required")
}

func TestGetEventByID_NotFound(t *testing.T) {
	svc := newTestService(storage.NewInMemoryEventStore())

	_, err := svc.GetEventByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteEvent(t *testing.T) {
	svc := newTestService(storage.NewInMemoryEventStore())
	ctx := context.Background()

	resp, err := svc.TrackEvent(ctx, &models.TrackEventRequest{EventType: "ad_click", EventID: "e1", ProjectID: "p1"})
	require.NoError(t, err)

	deleted, err := svc.DeleteEvent(ctx, resp.EventID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = svc.GetEventByID(ctx, resp.EventID)
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err = svc.DeleteEvent(ctx, resp.EventID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestQueries_StorageFailure(t *testing.T) {
	store := new(mockEventStore)
	cause := errors.New("timeout")
	store.On("ListEvents", mock.Anything, mock.Anything).Return(nil, cause)
	store.On("GetEvent", mock.Anything, "x").Return(nil, cause)
	store.On("DeleteEvent", mock.Anything, "x").Return(false, cause)

	svc := newTestService(store)
	ctx := context.Background()
	var serr *StorageError

	_, err := svc.GetEventsByProject(ctx, "p1", nil, nil)
	assert.ErrorAs(t, err, &serr)
	_, err = svc.GetEventByID(ctx, "x")
	assert.ErrorAs(t, err, &serr)
	assert.NotErrorIs(t, err, ErrNotFound)
	_, err = svc.DeleteEvent(ctx, "x")
	assert.ErrorIs(t, err, cause)

	store.AssertExpectations(t)
}
