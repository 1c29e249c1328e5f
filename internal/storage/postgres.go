package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/dynaq/internal/models"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ads (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		title TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS ads_project_idx ON ads (project_id)`,
	`CREATE TABLE IF NOT EXISTS surveys (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		title TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS surveys_project_idx ON surveys (project_id)`,
	`CREATE TABLE IF NOT EXISTS tracking_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		event_id TEXT NOT NULL,
		project_id TEXT NOT NULL,
		ad_id TEXT,
		survey_id TEXT,
		session_id TEXT,
		user_agent TEXT,
		ip_address TEXT,
		country TEXT,
		metadata JSONB,
		timestamp TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS tracking_events_project_ts_idx ON tracking_events (project_id, timestamp DESC)`,
}

// EnsureSchema creates the catalog and event tables if they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// =============================================
// EVENTS
// =============================================

// PostgresEventStore implements EventStore using PostgreSQL.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

const eventColumns = `id, event_type, event_id, project_id, ad_id, survey_id, session_id,
	user_agent, ip_address, country, metadata, timestamp`

func (s *PostgresEventStore) SaveEvent(ctx context.Context, e *models.TrackingEvent) error {
	var metadata []byte
	if len(e.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(e.Metadata); err != nil {
			return fmt.Errorf("failed to encode metadata: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO tracking_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, string(e.EventType), e.EventID, e.ProjectID,
		nullString(e.AdID), nullString(e.SurveyID), nullString(e.SessionID),
		nullString(e.UserAgent), nullString(e.IPAddress), nullString(e.Country),
		metadata, e.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

func scanEvent(row pgx.Row) (*models.TrackingEvent, error) {
	var e models.TrackingEvent
	var eventType string
	var adID, surveyID, sessionID, userAgent, ip, country *string
	var metadata []byte

	err := row.Scan(&e.ID, &eventType, &e.EventID, &e.ProjectID,
		&adID, &surveyID, &sessionID, &userAgent, &ip, &country,
		&metadata, &e.Timestamp)
	if err != nil {
		return nil, err
	}

	e.EventType = models.EventType(eventType)
	e.AdID = derefString(adID)
	e.SurveyID = derefString(surveyID)
	e.SessionID = derefString(sessionID)
	e.UserAgent = derefString(userAgent)
	e.IPAddress = derefString(ip)
	e.Country = derefString(country)
	e.Timestamp = e.Timestamp.UTC()
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &e, nil
}

func (s *PostgresEventStore) GetEvent(ctx context.Context, id string) (*models.TrackingEvent, error) {
	e, err := scanEvent(s.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM tracking_events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

func (s *PostgresEventStore) DeleteEvent(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tracking_events WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresEventStore) ListEvents(ctx context.Context, q EventQuery) ([]*models.TrackingEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM tracking_events
		WHERE project_id = $1
		  AND ($2::text IS NULL OR ad_id = $2)
		  AND ($3::text IS NULL OR survey_id = $3)
		  AND ($4::timestamptz IS NULL OR timestamp >= $4)
		  AND ($5::timestamptz IS NULL OR timestamp <= $5)
		ORDER BY timestamp DESC
	`, q.ProjectID, nullString(q.AdID), nullString(q.SurveyID), q.From, q.To)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	result := make([]*models.TrackingEvent, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return result, nil
}

func (s *PostgresEventStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// =============================================
// CATALOG
// =============================================

// PostgresCatalogRepo implements CatalogRepo using PostgreSQL.
type PostgresCatalogRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresCatalogRepo(pool *pgxpool.Pool) *PostgresCatalogRepo {
	return &PostgresCatalogRepo{pool: pool}
}

func (r *PostgresCatalogRepo) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, is_active, created_at FROM projects WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.IsActive, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

func (r *PostgresCatalogRepo) ListAdsByProject(ctx context.Context, projectID string) ([]*models.Ad, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, title, is_active, created_at
		FROM ads WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ads: %w", err)
	}
	defer rows.Close()

	var ads []*models.Ad
	for rows.Next() {
		var a models.Ad
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Title, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		ads = append(ads, &a)
	}
	return ads, rows.Err()
}

func (r *PostgresCatalogRepo) ListSurveysByProject(ctx context.Context, projectID string) ([]*models.Survey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project_id, title, is_active, created_at
		FROM surveys WHERE project_id = $1 ORDER BY created_at
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list surveys: %w", err)
	}
	defer rows.Close()

	var surveys []*models.Survey
	for rows.Next() {
		var s models.Survey
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.Title, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		surveys = append(surveys, &s)
	}
	return surveys, rows.Err()
}
