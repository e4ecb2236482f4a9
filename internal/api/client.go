// Package api is the HTTP surface of the BAZI analysis backend: chart
// computation, streaming analysis, the synchronous fallback, health, and
// the auxiliary readings. Every failure leaving this package is an
// *APIError so callers can branch on Kind.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"baziai/internal/logging"
	"baziai/internal/metric"
	"baziai/internal/report"
)

// Config configures the backend client.
type Config struct {
	BaseURL   string
	AuthToken string        // default bearer token; per-request tokens override
	Language  string        // default report language
	Timeout   time.Duration // per-call budget for synchronous endpoints
	Metrics   *metric.Set   // nil disables instrumentation
}

// DefaultClientConfig returns sensible defaults for a local backend.
func DefaultClientConfig() Config {
	return Config{
		BaseURL:  "http://localhost:8000",
		Language: "en",
		Timeout:  60 * time.Second,
	}
}

// Client talks to one backend. The underlying http.Client carries no
// global timeout: the streaming endpoint runs for minutes, so deadlines
// come from per-call contexts and the shortest one in the chain wins.
type Client struct {
	baseURL    string
	authToken  string
	language   string
	timeout    time.Duration
	metrics    *metric.Set
	httpClient *http.Client
}

// NewClient creates a client with default config for the given base URL.
func NewClient(baseURL string) *Client {
	cfg := DefaultClientConfig()
	cfg.BaseURL = baseURL
	return NewClientWithConfig(cfg)
}

// NewClientWithConfig creates a client with custom config.
func NewClientWithConfig(cfg Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authToken:  cfg.AuthToken,
		language:   cfg.Language,
		timeout:    cfg.Timeout,
		metrics:    cfg.Metrics,
		httpClient: &http.Client{},
	}
}

// AnalysisRequest identifies one person and reading. The session retains
// it verbatim so the synchronous fallback replays exactly what streamed.
// AuthToken rides the Authorization header, never the body.
type AnalysisRequest struct {
	BirthDate    string `json:"birth_date"` // YYYY-MM-DD
	BirthHour    int    `json:"birth_hour"` // 0-23
	Gender       string `json:"gender"`     // male | female
	Language     string `json:"language,omitempty"`
	CalendarType string `json:"calendar_type,omitempty"` // solar | lunar
	IsLeapMonth  bool   `json:"is_leap_month,omitempty"`

	AuthToken string `json:"-"`
}

// withDefaults fills request fields the client carries defaults for.
func (c *Client) withDefaults(req AnalysisRequest) AnalysisRequest {
	if req.Language == "" {
		req.Language = c.language
	}
	if req.CalendarType == "" {
		req.CalendarType = "solar"
	}
	return req
}

// ChartResponse is the chart endpoint's document. The computed fields
// stay opaque JSON; Raw preserves the exact response bytes for storage.
type ChartResponse struct {
	Success            bool            `json:"success"`
	FourPillars        json.RawMessage `json:"four_pillars,omitempty"`
	DayMaster          json.RawMessage `json:"day_master,omitempty"`
	Elements           json.RawMessage `json:"elements,omitempty"`
	AgePeriods         json.RawMessage `json:"age_periods,omitempty"`
	StrongestTenGod    json.RawMessage `json:"strongest_ten_god,omitempty"`
	AnnualLuck         json.RawMessage `json:"annual_luck,omitempty"`
	SeasonalStrength   json.RawMessage `json:"seasonal_strength,omitempty"`
	Deities            json.RawMessage `json:"deities,omitempty"`
	UseGod             json.RawMessage `json:"use_god,omitempty"`
	PillarInteractions json.RawMessage `json:"pillar_interactions,omitempty"`
	Error              string          `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// FetchChart computes the BAZI chart without running the AI analysis.
// This is the FetchingChart phase of a session.
func (c *Client) FetchChart(ctx context.Context, req AnalysisRequest) (*ChartResponse, error) {
	body, err := c.postJSON(ctx, "/api/bazi-chart", c.withDefaults(req), req.AuthToken)
	if err != nil {
		return nil, err
	}

	var chart ChartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, &APIError{Kind: KindUpstream, Message: "malformed chart document", Err: err}
	}
	if !chart.Success {
		msg := chart.Error
		if msg == "" {
			msg = "chart computation failed"
		}
		return nil, &APIError{Kind: KindUpstream, Message: msg}
	}
	chart.Raw = body
	return &chart, nil
}

// AnalyzeSync runs the whole analysis in one request and returns the
// complete document. The session uses it as the fallback when the stream
// breaks; it is also the right call for non-interactive consumers.
func (c *Client) AnalyzeSync(ctx context.Context, req AnalysisRequest) (report.Document, error) {
	body, err := c.postJSON(ctx, "/api/analyze-sync", c.withDefaults(req), req.AuthToken)
	if err != nil {
		return report.Document{}, err
	}
	doc, err := ParseSyncDocument(body)
	if err != nil {
		return report.Document{}, &APIError{Kind: KindUpstream, Message: "malformed analysis document", Err: err}
	}
	return doc, nil
}

// HealthStatus is the health endpoint's document.
type HealthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// Health checks backend liveness.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to create request: %w", err))
	}
	c.setHeaders(httpReq, "")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, Classify(fmt.Errorf("health request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}

	var status HealthStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, &APIError{Kind: KindUpstream, Message: "malformed health document", Err: err}
	}
	return &status, nil
}

// BirthInfo identifies one person in multi-person readings.
type BirthInfo struct {
	BirthDate    string `json:"birth_date"`
	BirthHour    int    `json:"birth_hour"`
	Gender       string `json:"gender"`
	CalendarType string `json:"calendar_type,omitempty"`
	IsLeapMonth  bool   `json:"is_leap_month,omitempty"`
}

// CompatibilityRequest asks for a two-person comparison reading.
type CompatibilityRequest struct {
	Person1  BirthInfo `json:"person1"`
	Person2  BirthInfo `json:"person2"`
	Language string    `json:"language,omitempty"`

	AuthToken string `json:"-"`
}

// Compatibility runs a synchronous two-person comparison. The result
// document stays opaque; rendering decides how deep to look.
func (c *Client) Compatibility(ctx context.Context, req CompatibilityRequest) (json.RawMessage, error) {
	if req.Language == "" {
		req.Language = c.language
	}
	return c.postJSON(ctx, "/api/compatibility", req, req.AuthToken)
}

// DailyForecastRequest asks for a forecast reading. TargetDate empty
// means today.
type DailyForecastRequest struct {
	BirthDate  string `json:"birth_date"`
	BirthHour  int    `json:"birth_hour"`
	Gender     string `json:"gender"`
	TargetDate string `json:"target_date,omitempty"`
	Language   string `json:"language,omitempty"`

	AuthToken string `json:"-"`
}

// DailyForecast runs a synchronous daily forecast reading.
func (c *Client) DailyForecast(ctx context.Context, req DailyForecastRequest) (json.RawMessage, error) {
	if req.Language == "" {
		req.Language = c.language
	}
	return c.postJSON(ctx, "/api/daily-forecast", req, req.AuthToken)
}

// postJSON runs one synchronous POST and returns the response body.
// Failures come back classified.
func (c *Client) postJSON(ctx context.Context, path string, payload interface{}, authToken string) ([]byte, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to create request: %w", err))
	}
	c.setHeaders(httpReq, authToken)

	timer := logging.StartTimer(logging.CategoryAPI, "POST "+path)
	resp, err := c.httpClient.Do(httpReq)
	timer.Stop()
	if err != nil {
		return nil, Classify(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		logging.APIWarn("POST %s returned %d", path, resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests {
			c.metrics.RateLimitHit()
		}
		return nil, statusError(resp.StatusCode, body)
	}
	return body, nil
}

// CloseIdleConnections releases kept-alive backend connections.
// Long-lived consumers call it on shutdown.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// callContext derives the per-call deadline for synchronous endpoints.
// The streaming endpoint never goes through here; its lifetime belongs
// to the session.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) setHeaders(req *http.Request, authToken string) {
	req.Header.Set("Content-Type", "application/json")
	token := authToken
	if token == "" {
		token = c.authToken
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// statusError classifies a non-200 response. 429 is quota exhaustion and
// carries whatever usage numbers the body held; everything else is an
// upstream failure with the body text as detail.
func statusError(statusCode int, body []byte) *APIError {
	if statusCode == http.StatusTooManyRequests {
		info := parseRateLimit(body)
		return &APIError{
			Kind:       KindRateLimited,
			StatusCode: statusCode,
			Message:    "daily analysis limit reached",
			RateLimit:  &info,
		}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > 300 {
		msg = msg[:300]
	}
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	return &APIError{Kind: KindUpstream, StatusCode: statusCode, Message: msg}
}
