// Package client is a Go client for the DynaQ tracking HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/radiusdt/dynaq/internal/analytics"
	"github.com/radiusdt/dynaq/internal/models"
)

type (
	TrackEventRequest  = models.TrackEventRequest
	TrackEventResponse = models.TrackEventResponse
	TrackingEvent      = models.TrackingEvent
	Overview           = analytics.Overview
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("client: not found")

// APIError is a non-2xx response other than 404.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: status %d: %s", e.StatusCode, e.Message)
}

// Client talks to a DynaQ server. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries uint64
	interval   time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetries sets how many times reads are retried after a transport error
// or a 5xx response, and the initial wait between attempts. Writes are
// never retried.
func WithRetries(n uint64, interval time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = n
		c.interval = interval
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		interval:   100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TrackEvent posts a single event. Validation failures come back as a
// response with Success false and an *APIError.
func (c *Client) TrackEvent(ctx context.Context, req TrackEventRequest) (TrackEventResponse, error) {
	var resp TrackEventResponse
	status, body, err := c.do(ctx, http.MethodPost, "/api/tracking/events", nil, req)
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(body, &resp); err != nil && status < 300 {
		return resp, fmt.Errorf("client: decode response: %w", err)
	}
	if status >= 300 {
		if resp.Error == "" {
			resp.Error = errorMessage(body)
		}
		return resp, &APIError{StatusCode: status, Message: resp.Error}
	}
	return resp, nil
}

func (c *Client) GetEventsByProject(ctx context.Context, projectID string, from, to *time.Time) ([]*TrackingEvent, error) {
	var events []*TrackingEvent
	err := c.get(ctx, "/api/tracking/events/project/"+url.PathEscape(projectID), dateQuery(from, to), &events)
	return events, err
}

func (c *Client) GetEventsByAd(ctx context.Context, adID, projectID string) ([]*TrackingEvent, error) {
	var events []*TrackingEvent
	err := c.get(ctx, "/api/tracking/events/ad/"+url.PathEscape(adID), url.Values{"projectId": {projectID}}, &events)
	return events, err
}

func (c *Client) GetEventsBySurvey(ctx context.Context, surveyID, projectID string) ([]*TrackingEvent, error) {
	var events []*TrackingEvent
	err := c.get(ctx, "/api/tracking/events/survey/"+url.PathEscape(surveyID), url.Values{"projectId": {projectID}}, &events)
	return events, err
}

func (c *Client) GetEvent(ctx context.Context, id string) (*TrackingEvent, error) {
	var event TrackingEvent
	if err := c.get(ctx, "/api/tracking/events/"+url.PathEscape(id), nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// DeleteEvent reports whether the event existed.
func (c *Client) DeleteEvent(ctx context.Context, id string) (bool, error) {
	status, body, err := c.do(ctx, http.MethodDelete, "/api/tracking/events/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return false, err
	}
	switch {
	case status == http.StatusNotFound:
		return false, nil
	case status >= 300:
		return false, &APIError{StatusCode: status, Message: errorMessage(body)}
	}
	return true, nil
}

func (c *Client) GetAnalytics(ctx context.Context, projectID string, from, to *time.Time) (*Overview, error) {
	var overview Overview
	if err := c.get(ctx, "/api/tracking/analytics/"+url.PathEscape(projectID), dateQuery(from, to), &overview); err != nil {
		return nil, err
	}
	return &overview, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.interval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)

	return backoff.Retry(func() error {
		status, body, err := c.do(ctx, http.MethodGet, path, query, nil)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		switch {
		case status == http.StatusNotFound:
			return backoff.Permanent(ErrNotFound)
		case status >= 500:
			return &APIError{StatusCode: status, Message: errorMessage(body)}
		case status >= 300:
			return backoff.Permanent(&APIError{StatusCode: status, Message: errorMessage(body)})
		}
		if err := json.Unmarshal(body, out); err != nil {
			return backoff.Permanent(fmt.Errorf("client: decode response: %w", err))
		}
		return nil
	}, policy)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any) (int, []byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("client: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("client: read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}

func dateQuery(from, to *time.Time) url.Values {
	q := url.Values{}
	if from != nil {
		q.Set("fromDate", from.UTC().Format(time.RFC3339Nano))
	}
	if to != nil {
		q.Set("toDate", to.UTC().Format(time.RFC3339Nano))
	}
	return q
}
