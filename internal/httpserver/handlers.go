package httpserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/radiusdt/dynaq/internal/models"
	"github.com/radiusdt/dynaq/internal/tracking"
)

const dateOnly = "2006-01-02"

// parseDate accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func parseDate(v string, upper bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateOnly, v)
	if err != nil {
		return nil, err
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// dateRange reads fromDate and toDate from the query string. It writes the
// 400 response itself and returns ok=false when either is malformed.
func dateRange(c *gin.Context) (from, to *time.Time, ok bool) {
	from, err := parseDate(c.Query("fromDate"), false)
	if err != nil {
		errorResponse(c, "Invalid fromDate", http.StatusBadRequest)
		return nil, nil, false
	}
	to, err = parseDate(c.Query("toDate"), true)
	if err != nil {
		errorResponse(c, "Invalid toDate", http.StatusBadRequest)
		return nil, nil, false
	}
	return from, to, true
}

// POST /api/tracking/events
func (s *Server) handleTrackEvent(c *gin.Context) {
	var req models.TrackEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.TrackEventResponse{
			Success: false,
			Error:   "Invalid request body",
		})
		return
	}

	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}
	if req.IPAddress == "" {
		req.IPAddress = c.ClientIP()
	}

	resp, err := s.tracking.TrackEvent(c.Request.Context(), &req)
	if err != nil {
		var verr *tracking.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, resp)
			return
		}
		errorResponse(c, resp.Error, http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GET /api/tracking/events/project/:projectId?fromDate=&toDate=
func (s *Server) handleEventsByProject(c *gin.Context) {
	from, to, ok := dateRange(c)
	if !ok {
		return
	}

	events, err := s.tracking.GetEventsByProject(c.Request.Context(), c.Param("projectId"), from, to)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// GET /api/tracking/events/ad/:adId?projectId=
func (s *Server) handleEventsByAd(c *gin.Context) {
	events, err := s.tracking.GetEventsByAd(c.Request.Context(), c.Param("adId"), c.Query("projectId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// GET /api/tracking/events/survey/:surveyId?projectId=
func (s *Server) handleEventsBySurvey(c *gin.Context) {
	events, err := s.tracking.GetEventsBySurvey(c.Request.Context(), c.Param("surveyId"), c.Query("projectId"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// GET /api/tracking/events/:id
func (s *Server) handleGetEvent(c *gin.Context) {
	event, err := s.tracking.GetEventByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// DELETE /api/tracking/events/:id
func (s *Server) handleDeleteEvent(c *gin.Context) {
	deleted, err := s.tracking.DeleteEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	if !deleted {
		s.writeError(c, tracking.ErrNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

// GET /api/tracking/analytics/:projectId?fromDate=&toDate=
func (s *Server) handleOverview(c *gin.Context) {
	from, to, ok := dateRange(c)
	if !ok {
		return
	}

	overview, err := s.analytics.Overview(c.Request.Context(), c.Param("projectId"), from, to)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// GET /api/tracking/analytics/:projectId/ads
func (s *Server) handleAdsReport(c *gin.Context) {
	from, to, ok := dateRange(c)
	if !ok {
		return
	}

	report, err := s.analytics.Ads(c.Request.Context(), c.Param("projectId"), from, to)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /api/tracking/analytics/:projectId/surveys
func (s *Server) handleSurveysReport(c *gin.Context) {
	from, to, ok := dateRange(c)
	if !ok {
		return
	}

	report, err := s.analytics.Surveys(c.Request.Context(), c.Param("projectId"), from, to)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
