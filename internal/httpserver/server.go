package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/radiusdt/dynaq/internal/analytics"
	"github.com/radiusdt/dynaq/internal/config"
	"github.com/radiusdt/dynaq/internal/database"
	"github.com/radiusdt/dynaq/internal/metrics"
	"github.com/radiusdt/dynaq/internal/middleware"
	"github.com/radiusdt/dynaq/internal/storage"
	"github.com/radiusdt/dynaq/internal/tracking"
	"go.uber.org/zap"
)

// Dependencies holds all external dependencies for the server. Backends
// that are nil fall back to in-memory storage.
type Dependencies struct {
	DB     *database.PostgresDB
	Redis  *database.RedisDB
	Badger *database.BadgerDB

	// Catalog overrides the configured catalog driver when set.
	Catalog storage.CatalogRepo
	Geo     tracking.GeoResolver

	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Server wraps HTTP handlers and the tracking services.
type Server struct {
	tracking  *tracking.Service
	analytics *analytics.Service
	backends  []database.Backend
	logger    *zap.Logger
	config    *config.Config
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	cfg := deps.Config

	backend, store := newEventStore(deps)
	if deps.Metrics != nil {
		store = storage.NewInstrumentedEventStore(store, backend, deps.Metrics)
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = newCatalog(deps)
	}

	trackingSvc := tracking.NewService(store, deps.Logger, deps.Metrics)
	if cfg.Tracking.VerifyProject {
		trackingSvc.WithProjectVerification(catalog)
	}
	if deps.Geo != nil {
		trackingSvc.WithGeo(deps.Geo)
	}

	s := &Server{
		tracking:  trackingSvc,
		analytics: analytics.NewService(trackingSvc, catalog, deps.Logger, deps.Metrics),
		backends:  deps.backends(),
		logger:    deps.Logger,
		config:    cfg,
	}

	deps.Logger.Info("event store ready", zap.String("backend", backend))

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Tracking.TrustedProxies); err != nil {
		deps.Logger.Warn("invalid trusted proxies, trusting none", zap.Error(err))
		_ = router.SetTrustedProxies(nil)
	}
	if deps.Metrics != nil {
		router.Use(middleware.Metrics(deps.Metrics))
	}
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	router.GET("/health", s.handleHealth)
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		router.GET(cfg.Metrics.Path, gin.WrapH(deps.Metrics.Handler()))
	}

	api := router.Group("/api/tracking")
	{
		api.POST("/events", s.handleTrackEvent)
		api.GET("/events/project/:projectId", s.handleEventsByProject)
		api.GET("/events/ad/:adId", s.handleEventsByAd)
		api.GET("/events/survey/:surveyId", s.handleEventsBySurvey)
		api.GET("/events/:id", s.handleGetEvent)
		api.DELETE("/events/:id", s.handleDeleteEvent)

		api.GET("/analytics/:projectId", s.handleOverview)
		api.GET("/analytics/:projectId/ads", s.handleAdsReport)
		api.GET("/analytics/:projectId/surveys", s.handleSurveysReport)
	}

	var handler http.Handler = router
	handler = middleware.NewLoggingMiddleware(deps.Logger, cfg.Metrics.Path).Handler(handler)
	handler = middleware.NewRecoveryMiddleware(deps.Logger).Handler(handler)

	return handler
}

func (deps *Dependencies) backends() []database.Backend {
	conns := database.Connections{Postgres: deps.DB, Redis: deps.Redis, Badger: deps.Badger}
	return conns.Backends()
}

func newEventStore(deps *Dependencies) (string, storage.EventStore) {
	switch deps.Config.Storage.Driver {
	case config.DriverRedis:
		if deps.Redis != nil {
			return config.DriverRedis, storage.NewRedisEventStore(deps.Redis.Client, deps.Config.Storage.RedisKeyPrefix)
		}
	case config.DriverBadger:
		if deps.Badger != nil {
			return config.DriverBadger, storage.NewBadgerEventStore(deps.Badger.DB)
		}
	case config.DriverPostgres:
		if deps.DB != nil {
			return config.DriverPostgres, storage.NewPostgresEventStore(deps.DB.Pool)
		}
	case config.DriverMemory:
		return config.DriverMemory, storage.NewInMemoryEventStore()
	}

	deps.Logger.Warn("event store backend not available, using in-memory storage",
		zap.String("driver", deps.Config.Storage.Driver),
	)
	return config.DriverMemory, storage.NewInMemoryEventStore()
}

func newCatalog(deps *Dependencies) storage.CatalogRepo {
	if deps.Config.Catalog.Driver == config.DriverPostgres {
		if deps.DB != nil {
			return storage.NewPostgresCatalogRepo(deps.DB.Pool)
		}
		deps.Logger.Warn("PostgreSQL not available, using in-memory catalog")
	}
	return storage.NewInMemoryCatalogRepo()
}

// ============================================
// Helpers
// ============================================

type errorBody struct {
	Error string `json:"error"`
}

func errorResponse(c *gin.Context, msg string, code int) {
	c.JSON(code, errorBody{Error: msg})
}

// writeError maps service errors to HTTP responses.
func (s *Server) writeError(c *gin.Context, err error) {
	var verr *tracking.ValidationError
	switch {
	case errors.As(err, &verr):
		errorResponse(c, verr.Message, http.StatusBadRequest)
	case errors.Is(err, tracking.ErrNotFound):
		errorResponse(c, "Event not found", http.StatusNotFound)
	default:
		s.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		errorResponse(c, "An error occurred while processing the request", http.StatusInternalServerError)
	}
}

type healthBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// GET /health
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := healthBody{Status: "ok"}
	if err := s.tracking.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.String("backend", "event_store"), zap.Error(err))
		body.Status = "unavailable"
	}

	for _, b := range s.backends {
		if body.Checks == nil {
			body.Checks = make(map[string]string, len(s.backends))
		}
		if err := b.Health(ctx); err != nil {
			s.logger.Warn("health check failed", zap.String("backend", b.Name()), zap.Error(err))
			body.Checks[b.Name()] = err.Error()
			body.Status = "unavailable"
			continue
		}
		body.Checks[b.Name()] = "ok"
	}

	code := http.StatusOK
	if body.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, body)
}
