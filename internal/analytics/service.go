package analytics

import (
	"context"
	"time"

	"github.com/radiusdt/dynaq/internal/metrics"
	"github.com/radiusdt/dynaq/internal/models"
	"github.com/radiusdt/dynaq/internal/storage"
	"go.uber.org/zap"
)

// EventSource is the subset of the tracking service analytics reads from.
type EventSource interface {
	GetEventsByProject(ctx context.Context, projectID string, from, to *time.Time) ([]*models.TrackingEvent, error)
}

// Service loads a project's events and catalog and aggregates them.
type Service struct {
	events  EventSource
	catalog storage.CatalogRepo
	logger  *zap.Logger
	metrics *metrics.Metrics

	now func() time.Time
}

// NewService creates an analytics service. catalog and m may be nil.
func NewService(events EventSource, catalog storage.CatalogRepo, logger *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		events:  events,
		catalog: catalog,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// AdsReport is the per-ad breakdown of a project.
type AdsReport struct {
	ProjectID        string       `json:"projectId"`
	TotalImpressions int          `json:"totalImpressions"`
	TotalClicks      int          `json:"totalClicks"`
	ClickRate        float64      `json:"clickRate"`
	ActiveAds        int          `json:"activeAds"` // ads with at least one event
	Ads              []AdStats    `json:"ads"`
	Daily            []DailyCount `json:"daily"`
}

// SurveysReport is the per-survey breakdown of a project.
type SurveysReport struct {
	ProjectID        string        `json:"projectId"`
	TotalImpressions int           `json:"totalImpressions"`
	TotalSubmissions int           `json:"totalSubmissions"`
	CompletionRate   float64       `json:"completionRate"`
	ActiveSurveys    int           `json:"activeSurveys"`
	Surveys          []SurveyStats `json:"surveys"`
	Daily            []DailyCount  `json:"daily"`
}

// DailyCount holds one day's impressions and interactions (clicks for ads,
// submissions for surveys).
type DailyCount struct {
	Date         string `json:"date"`
	Impressions  int    `json:"impressions"`
	Interactions int    `json:"interactions"`
}

// asOf anchors the day windows: the upper bound of the query if given,
// otherwise the current time.
func (s *Service) asOf(to *time.Time) time.Time {
	if to != nil {
		return *to
	}
	return s.now()
}

// Overview aggregates the project's events within [from, to].
func (s *Service) Overview(ctx context.Context, projectID string, from, to *time.Time) (*Overview, error) {
	events, err := s.events.GetEventsByProject(ctx, projectID, from, to)
	if err != nil {
		return nil, err
	}
	ads, surveys := s.loadCatalog(ctx, projectID)
	s.metrics.RecordAggregation(len(events))

	return Aggregate(projectID, events, ads, surveys, s.asOf(to)), nil
}

// Ads reports impressions and clicks per ad within [from, to].
func (s *Service) Ads(ctx context.Context, projectID string, from, to *time.Time) (*AdsReport, error) {
	events, err := s.events.GetEventsByProject(ctx, projectID, from, to)
	if err != nil {
		return nil, err
	}
	ads, _ := s.loadCatalog(ctx, projectID)
	s.metrics.RecordAggregation(len(events))

	r := &AdsReport{ProjectID: projectID, Ads: AdPerformance(events, ads)}
	for _, a := range r.Ads {
		r.TotalImpressions += a.Impressions
		r.TotalClicks += a.Clicks
		if a.Impressions+a.Clicks > 0 {
			r.ActiveAds++
		}
	}
	r.ClickRate = Rate(r.TotalClicks, r.TotalImpressions)
	r.Daily = daily(events, s.asOf(to), TimelineDays, models.EventAdImpression, models.EventAdClick)
	return r, nil
}

// Surveys reports impressions and submissions per survey within [from, to].
func (s *Service) Surveys(ctx context.Context, projectID string, from, to *time.Time) (*SurveysReport, error) {
	events, err := s.events.GetEventsByProject(ctx, projectID, from, to)
	if err != nil {
		return nil, err
	}
	_, surveys := s.loadCatalog(ctx, projectID)
	s.metrics.RecordAggregation(len(events))

	r := &SurveysReport{ProjectID: projectID, Surveys: SurveyPerformance(events, surveys)}
	for _, sv := range r.Surveys {
		r.TotalImpressions += sv.Impressions
		r.TotalSubmissions += sv.Submissions
		if sv.Impressions+sv.Submissions > 0 {
			r.ActiveSurveys++
		}
	}
	r.CompletionRate = Rate(r.TotalSubmissions, r.TotalImpressions)
	r.Daily = daily(events, s.asOf(to), TimelineDays, models.EventSurveyImpression, models.EventSurveySubmit)
	return r, nil
}

// loadCatalog logs catalog failures and returns whatever it could load.
// Missing entries get id-derived titles in the reports.
func (s *Service) loadCatalog(ctx context.Context, projectID string) ([]*models.Ad, []*models.Survey) {
	if s.catalog == nil {
		return nil, nil
	}

	ads, err := s.catalog.ListAdsByProject(ctx, projectID)
	if err != nil {
		s.logger.Warn("failed to load ads for analytics",
			zap.String("project_id", projectID),
			zap.Error(err),
		)
		ads = nil
	}
	surveys, err := s.catalog.ListSurveysByProject(ctx, projectID)
	if err != nil {
		s.logger.Warn("failed to load surveys for analytics",
			zap.String("project_id", projectID),
			zap.Error(err),
		)
		surveys = nil
	}
	return ads, surveys
}

func daily(events []*models.TrackingEvent, asOf time.Time, n int, impression, interaction models.EventType) []DailyCount {
	days := dayKeys(asOf, n)
	out := make([]DailyCount, n)
	index := make(map[string]int, n)
	for i, d := range days {
		out[i].Date = d.Format(dateLayout)
		index[out[i].Date] = i
	}

	for _, e := range events {
		i, ok := index[dateKey(e.Timestamp)]
		if !ok {
			continue
		}
		switch e.EventType {
		case impression:
			out[i].Impressions++
		case interaction:
			out[i].Interactions++
		}
	}
	return out
}
