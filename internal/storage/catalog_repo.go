package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/radiusdt/dynaq/internal/models"
)

// InMemoryCatalogRepo holds projects, ads and surveys in memory. The Upsert
// methods seed it; the tracking pipeline only reads.
type InMemoryCatalogRepo struct {
	mu       sync.RWMutex
	projects map[string]*models.Project
	ads      map[string]*models.Ad
	surveys  map[string]*models.Survey
}

func NewInMemoryCatalogRepo() *InMemoryCatalogRepo {
	return &InMemoryCatalogRepo{
		projects: make(map[string]*models.Project),
		ads:      make(map[string]*models.Ad),
		surveys:  make(map[string]*models.Survey),
	}
}

func (r *InMemoryCatalogRepo) UpsertProject(p *models.Project) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.projects[p.ID] = p
}

func (r *InMemoryCatalogRepo) UpsertAd(a *models.Ad) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ads[a.ID] = a
}

func (r *InMemoryCatalogRepo) UpsertSurvey(s *models.Survey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surveys[s.ID] = s
}

func (r *InMemoryCatalogRepo) GetProject(ctx context.Context, id string) (*models.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[id]
	if !ok {
		return nil, nil
	}
	return p, nil
}

func (r *InMemoryCatalogRepo) ListAdsByProject(ctx context.Context, projectID string) ([]*models.Ad, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Ad
	for _, a := range r.ads {
		if a.ProjectID == projectID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *InMemoryCatalogRepo) ListSurveysByProject(ctx context.Context, projectID string) ([]*models.Survey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Survey
	for _, s := range r.surveys {
		if s.ProjectID == projectID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}
