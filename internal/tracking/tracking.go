package tracking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/dynaq/internal/metrics"
	"github.com/radiusdt/dynaq/internal/models"
	"github.com/radiusdt/dynaq/internal/storage"
	"go.uber.org/zap"
)

// GenericTrackError is the caller-facing message for storage failures.
const GenericTrackError = "An error occurred while tracking the event"

// GeoResolver maps a client IP address to an ISO country code.
type GeoResolver interface {
	Country(ip string) (string, error)
}

// Service ingests tracking events and answers event queries.
type Service struct {
	store   storage.EventStore
	logger  *zap.Logger
	metrics *metrics.Metrics

	// optional
	catalog storage.CatalogRepo
	geo     GeoResolver

	now   func() time.Time
	newID func() string
}

// NewService creates a tracking service. m may be nil.
func NewService(store storage.EventStore, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// WithProjectVerification rejects events whose project is absent from
// catalog.
func (s *Service) WithProjectVerification(catalog storage.CatalogRepo) *Service {
	s.catalog = catalog
	return s
}

// WithGeo enables country enrichment from the client IP address.
func (s *Service) WithGeo(geo GeoResolver) *Service {
	s.geo = geo
	return s
}

func validateRequest(req *models.TrackEventRequest) *ValidationError {
	if req.EventType == "" {
		return required("EventType")
	}
	if req.EventID == "" {
		return required("EventId")
	}
	if req.ProjectID == "" {
		return required("ProjectId")
	}
	if !models.EventType(req.EventType).Valid() {
		return &ValidationError{
			Field:   "EventType",
			Message: "Invalid EventType. Must be one of: " + models.EventTypeList(),
		}
	}
	return nil
}

// TrackEvent validates and stores one event. The response is always
// populated; err is a *ValidationError or *StorageError when Success is
// false.
func (s *Service) TrackEvent(ctx context.Context, req *models.TrackEventRequest) (models.TrackEventResponse, error) {
	if verr := validateRequest(req); verr != nil {
		return s.reject(verr)
	}

	if s.catalog != nil {
		project, err := s.catalog.GetProject(ctx, req.ProjectID)
		if err != nil {
			return s.storageFailure(req, &StorageError{Op: "lookup project", Err: err})
		}
		if project == nil {
			return s.reject(&ValidationError{Field: "ProjectId", Message: "Project not found"})
		}
	}

	event := &models.TrackingEvent{
		ID:        s.newID(),
		EventType: models.EventType(req.EventType),
		EventID:   req.EventID,
		ProjectID: req.ProjectID,
		AdID:      req.AdID,
		SurveyID:  req.SurveyID,
		SessionID: req.SessionID,
		UserAgent: req.UserAgent,
		IPAddress: req.IPAddress,
		Timestamp: s.now().UTC(),
	}
	if len(req.Metadata) > 0 {
		event.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			event.Metadata[k] = v
		}
	}
	s.enrichGeo(event)

	if err := s.store.SaveEvent(ctx, event); err != nil {
		return s.storageFailure(req, &StorageError{Op: "save event", Err: err})
	}

	s.metrics.RecordIngested(string(event.EventType))
	s.logger.Info("event tracked",
		zap.String("event_type", string(event.EventType)),
		zap.String("project_id", event.ProjectID),
		zap.String("id", event.ID),
		zap.Time("timestamp", event.Timestamp),
	)

	return models.TrackEventResponse{Success: true, EventID: event.ID}, nil
}

func (s *Service) enrichGeo(e *models.TrackingEvent) {
	if s.geo == nil || e.IPAddress == "" {
		return
	}
	country, err := s.geo.Country(e.IPAddress)
	if err != nil {
		s.logger.Debug("geo lookup failed", zap.String("ip", e.IPAddress), zap.Error(err))
		return
	}
	e.Country = country
}

func (s *Service) reject(verr *ValidationError) (models.TrackEventResponse, error) {
	s.metrics.RecordRejection("validation")
	s.logger.Debug("event rejected",
		zap.String("field", verr.Field),
		zap.String("reason", verr.Message),
	)
	return models.TrackEventResponse{Success: false, Error: verr.Message}, verr
}

func (s *Service) storageFailure(req *models.TrackEventRequest, serr *StorageError) (models.TrackEventResponse, error) {
	s.metrics.RecordRejection("storage")
	s.logger.Error("failed to track event",
		zap.String("event_type", req.EventType),
		zap.String("project_id", req.ProjectID),
		zap.Error(serr),
	)
	return models.TrackEventResponse{Success: false, Error: GenericTrackError}, serr
}

// =============================================
// Queries
// =============================================

// GetEventsByProject returns the project's events, newest first. Nil bounds
// do not filter; set bounds are inclusive.
func (s *Service) GetEventsByProject(ctx context.Context, projectID string, from, to *time.Time) ([]*models.TrackingEvent, error) {
	if projectID == "" {
		return nil, required("ProjectId")
	}
	return s.list(ctx, storage.EventQuery{ProjectID: projectID, From: from, To: to})
}

// GetEventsByAd returns events for adID within projectID, newest first.
func (s *Service) GetEventsByAd(ctx context.Context, adID, projectID string) ([]*models.TrackingEvent, error) {
	if adID == "" {
		return nil, required("AdId")
	}
	if projectID == "" {
		return nil, required("ProjectId")
	}
	return s.list(ctx, storage.EventQuery{ProjectID: projectID, AdID: adID})
}

// GetEventsBySurvey returns events for surveyID within projectID, newest
// first.
func (s *Service) GetEventsBySurvey(ctx context.Context, surveyID, projectID string) ([]*models.TrackingEvent, error) {
	if surveyID == "" {
		return nil, required("SurveyId")
	}
	if projectID == "" {
		return nil, required("ProjectId")
	}
	return s.list(ctx, storage.EventQuery{ProjectID: projectID, SurveyID: surveyID})
}

func (s *Service) list(ctx context.Context, q storage.EventQuery) ([]*models.TrackingEvent, error) {
	events, err := s.store.ListEvents(ctx, q)
	if err != nil {
		s.logger.Error("failed to list events",
			zap.String("project_id", q.ProjectID),
			zap.Error(err),
		)
		return nil, &StorageError{Op: "list events", Err: err}
	}
	return events, nil
}

// GetEventByID returns ErrNotFound when no event has the given id.
func (s *Service) GetEventByID(ctx context.Context, id string) (*models.TrackingEvent, error) {
	if id == "" {
		return nil, required("Id")
	}
	e, err := s.store.GetEvent(ctx, id)
	if err != nil {
		s.logger.Error("failed to get event", zap.String("id", id), zap.Error(err))
		return nil, &StorageError{Op: "get event", Err: err}
	}
	if e == nil {
		return nil, ErrNotFound
	}
	return e, nil
}

// DeleteEvent removes an event and reports whether it existed.
func (s *Service) DeleteEvent(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, required("Id")
	}
	deleted, err := s.store.DeleteEvent(ctx, id)
	if err != nil {
		s.logger.Error("failed to delete event", zap.String("id", id), zap.Error(err))
		return false, &StorageError{Op: "delete event", Err: err}
	}
	if deleted {
		s.logger.Info("event deleted", zap.String("id", id))
	}
	return deleted, nil
}

// Ping checks the event store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
