package models

import (
	"strings"
	"time"
)

// ===========================================
// EVENT TYPES
// ===========================================

type EventType string

const (
	EventAdImpression     EventType = "ad_impression"
	EventAdClick          EventType = "ad_click"
	EventSurveyImpression EventType = "survey_impression"
	EventSurveySubmit     EventType = "survey_submit"
)

// EventTypes lists every accepted event type in validation-message order.
var EventTypes = []EventType{
	EventAdImpression,
	EventAdClick,
	EventSurveyImpression,
	EventSurveySubmit,
}

// Valid reports whether t is one of the accepted event types.
func (t EventType) Valid() bool {
	for _, et := range EventTypes {
		if t == et {
			return true
		}
	}
	return false
}

// IsAd reports whether the event concerns an ad.
func (t EventType) IsAd() bool {
	return strings.HasPrefix(string(t), "ad_")
}

// IsSurvey reports whether the event concerns a survey.
func (t EventType) IsSurvey() bool {
	return strings.HasPrefix(string(t), "survey_")
}

// EventTypeList joins the accepted types for error messages.
func EventTypeList() string {
	names := make([]string, len(EventTypes))
	for i, et := range EventTypes {
		names[i] = string(et)
	}
	return strings.Join(names, ", ")
}

// ===========================================
// TRACKING EVENT
// ===========================================

// TrackingEvent is one recorded user interaction. It is never mutated after
// it has been stored.
type TrackingEvent struct {
	ID        string    `json:"id"`
	EventType EventType `json:"eventType"`
	EventID   string    `json:"eventId"`
	ProjectID string    `json:"projectId"`
	Timestamp time.Time `json:"timestamp"`

	AdID      string `json:"adId,omitempty"`
	SurveyID  string `json:"surveyId,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	// Request info
	UserAgent string `json:"userAgent,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	Country   string `json:"country,omitempty"` // ISO code

	Metadata map[string]string `json:"metadata,omitempty"`
}

// TrackEventRequest is the ingestion payload.
type TrackEventRequest struct {
	EventType string            `json:"eventType"`
	EventID   string            `json:"eventId"`
	ProjectID string            `json:"projectId"`
	AdID      string            `json:"adId,omitempty"`
	SurveyID  string            `json:"surveyId,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	UserAgent string            `json:"userAgent,omitempty"`
	IPAddress string            `json:"ipAddress,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TrackEventResponse is returned for every ingestion attempt.
type TrackEventResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	EventID string `json:"eventId,omitempty"`
}
