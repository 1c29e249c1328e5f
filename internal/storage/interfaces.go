package storage

import (
	"context"
	"sort"
	"time"

	"github.com/radiusdt/dynaq/internal/models"
)

// =============================================
// EVENT STORE
// =============================================

// EventStore persists tracking events keyed by their generated ID, with a
// secondary index by (project, timestamp).
type EventStore interface {
	SaveEvent(ctx context.Context, e *models.TrackingEvent) error
	// GetEvent returns nil, nil when no event has the given ID.
	GetEvent(ctx context.Context, id string) (*models.TrackingEvent, error)
	// DeleteEvent reports whether an event existed.
	DeleteEvent(ctx context.Context, id string) (bool, error)
	// ListEvents returns every event matching q, newest first.
	ListEvents(ctx context.Context, q EventQuery) ([]*models.TrackingEvent, error)
	Ping(ctx context.Context) error
}

// EventQuery selects events of one project. Empty fields and nil bounds do
// not filter. Bounds are inclusive.
type EventQuery struct {
	ProjectID string
	AdID      string
	SurveyID  string
	From      *time.Time
	To        *time.Time
}

// Match reports whether e satisfies every filter in q.
func (q EventQuery) Match(e *models.TrackingEvent) bool {
	if e.ProjectID != q.ProjectID {
		return false
	}
	if q.AdID != "" && e.AdID != q.AdID {
		return false
	}
	if q.SurveyID != "" && e.SurveyID != q.SurveyID {
		return false
	}
	if q.From != nil && e.Timestamp.Before(*q.From) {
		return false
	}
	if q.To != nil && e.Timestamp.After(*q.To) {
		return false
	}
	return true
}

func sortNewestFirst(events []*models.TrackingEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}

// =============================================
// CATALOG REPOSITORY
// =============================================

// CatalogRepo is read-only access to projects, ads and surveys.
type CatalogRepo interface {
	// GetProject returns nil, nil when the project does not exist.
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListAdsByProject(ctx context.Context, projectID string) ([]*models.Ad, error)
	ListSurveysByProject(ctx context.Context, projectID string) ([]*models.Survey, error)
}
