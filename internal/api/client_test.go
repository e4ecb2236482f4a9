package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithConfig(Config{
		BaseURL:   server.URL,
		AuthToken: "test-token",
		Language:  "en",
		Timeout:   5 * time.Second,
	})
}

func TestFetchChart(t *testing.T) {
	var gotAuth, gotContentType string
	var gotReq AnalysisRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/bazi-chart" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"four_pillars":{"year":"甲子","day":"丙寅"},"day_master":{"stem":"丙"}}`))
	})

	chart, err := client.FetchChart(context.Background(), AnalysisRequest{
		BirthDate: "1990-05-15",
		BirthHour: 14,
		Gender:    "male",
	})
	if err != nil {
		t.Fatalf("FetchChart: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotReq.BirthDate != "1990-05-15" || gotReq.BirthHour != 14 || gotReq.Gender != "male" {
		t.Errorf("request = %+v", gotReq)
	}
	// Client-level defaults fill in what the caller omitted.
	if gotReq.Language != "en" {
		t.Errorf("language not defaulted: %q", gotReq.Language)
	}
	if gotReq.CalendarType != "solar" {
		t.Errorf("calendar_type not defaulted: %q", gotReq.CalendarType)
	}

	if !chart.Success {
		t.Error("Success should be true")
	}
	if string(chart.DayMaster) != `{"stem":"丙"}` {
		t.Errorf("DayMaster = %s", chart.DayMaster)
	}
	if len(chart.Raw) == 0 {
		t.Error("Raw should preserve the response bytes")
	}
}

func TestFetchChartBackendFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"invalid birth date"}`))
	})

	_, err := client.FetchChart(context.Background(), AnalysisRequest{BirthDate: "bogus"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want *APIError, got %v", err)
	}
	if apiErr.Kind != KindUpstream {
		t.Errorf("Kind = %s, want upstream", apiErr.Kind)
	}
	if apiErr.Message != "invalid birth date" {
		t.Errorf("Message = %q", apiErr.Message)
	}
}

func TestFetchChartRateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate_limited","used":3,"limit":3,"remaining":0}`))
	})

	_, err := client.FetchChart(context.Background(), AnalysisRequest{BirthDate: "1990-05-15"})
	if !IsRateLimited(err) {
		t.Fatalf("want rate-limit error, got %v", err)
	}
	info := RateLimitFrom(err)
	if info.Used != 3 || info.Limit != 3 {
		t.Errorf("RateLimitFrom = %+v, want {3 3}", info)
	}
}

func TestRequestTokenOverridesClientToken(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"success":true}`))
	})

	_, err := client.FetchChart(context.Background(), AnalysisRequest{
		BirthDate: "1990-05-15",
		AuthToken: "per-request-token",
	})
	if err != nil {
		t.Fatalf("FetchChart: %v", err)
	}
	if gotAuth != "Bearer per-request-token" {
		t.Errorf("Authorization = %q, want per-request token", gotAuth)
	}
}

func TestNoAuthHeaderWhenUnconfigured(t *testing.T) {
	var gotAuth string
	var seen bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		seen = true
		w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL)
	if _, err := client.FetchChart(context.Background(), AnalysisRequest{BirthDate: "1990-05-15"}); err != nil {
		t.Fatalf("FetchChart: %v", err)
	}
	if !seen {
		t.Fatal("handler never ran")
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want unset", gotAuth)
	}
}

func TestAnalyzeSync(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/analyze-sync" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"bazi_chart": {"success": true, "four_pillars": {"year": "甲子"}},
			"sections": {
				"five_elements": {"text": "wood dominates this chart", "is_locked": false},
				"career": {"text": "steady climb through middle age", "is_locked": true},
				"age_periods_timeline": {"periods": [{"age": 3, "pillar": "辛未"}]},
				"health": "guard the liver in spring"
			},
			"insights": {"text": "a year of renewal", "is_locked": true}
		}`))
	})

	doc, err := client.AnalyzeSync(context.Background(), AnalysisRequest{BirthDate: "1990-05-15", BirthHour: 14, Gender: "male"})
	if err != nil {
		t.Fatalf("AnalyzeSync: %v", err)
	}
	if len(doc.Chart) == 0 {
		t.Error("chart missing")
	}

	fe := doc.Sections["five_elements"]
	if fe.Content == nil || *fe.Content != "wood dominates this chart" || fe.Locked {
		t.Errorf("five_elements = %+v", fe)
	}
	career := doc.Sections["career"]
	if career.Content == nil || !career.Locked {
		t.Errorf("career = %+v", career)
	}
	// Object-valued sections survive as compact JSON text.
	tl := doc.Sections["age_periods_timeline"]
	if tl.Content == nil || *tl.Content != `{"periods":[{"age":3,"pillar":"辛未"}]}` {
		t.Errorf("age_periods_timeline = %v", tl.Content)
	}
	// Bare-string sections are accepted too.
	health := doc.Sections["health"]
	if health.Content == nil || *health.Content != "guard the liver in spring" {
		t.Errorf("health = %+v", health)
	}

	if doc.Insights.Text != "a year of renewal" || !doc.Insights.Locked {
		t.Errorf("insights = %+v", doc.Insights)
	}
}

func TestAnalyzeSyncMalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway error</html>"))
	})

	_, err := client.AnalyzeSync(context.Background(), AnalysisRequest{BirthDate: "1990-05-15"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != KindUpstream {
		t.Fatalf("want upstream error, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"status":"healthy","service":"bazi-ai","version":"1.0.0"}`))
	})

	status, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if status.Status != "healthy" || status.Service != "bazi-ai" || status.Version != "1.0.0" {
		t.Errorf("status = %+v", status)
	}
}

func TestCompatibility(t *testing.T) {
	var gotReq CompatibilityRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/compatibility" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"success":true,"score":78,"summary":"wood feeds fire"}`))
	})

	raw, err := client.Compatibility(context.Background(), CompatibilityRequest{
		Person1:  BirthInfo{BirthDate: "1990-05-15", BirthHour: 14, Gender: "male"},
		Person2:  BirthInfo{BirthDate: "1992-08-03", BirthHour: 9, Gender: "female"},
		Language: "en",
	})
	if err != nil {
		t.Fatalf("Compatibility: %v", err)
	}
	if gotReq.Person1.BirthDate != "1990-05-15" || gotReq.Person2.BirthDate != "1992-08-03" {
		t.Errorf("request = %+v", gotReq)
	}
	var parsed struct {
		Score int `json:"score"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Score != 78 {
		t.Errorf("response = %s (err %v)", raw, err)
	}
}

func TestDailyForecast(t *testing.T) {
	var gotReq DailyForecastRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/daily-forecast" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"success":true,"date":"2025-03-01","advice":"avoid signing contracts"}`))
	})

	raw, err := client.DailyForecast(context.Background(), DailyForecastRequest{
		BirthDate:  "1990-05-15",
		BirthHour:  14,
		Gender:     "male",
		TargetDate: "2025-03-01",
	})
	if err != nil {
		t.Fatalf("DailyForecast: %v", err)
	}
	if gotReq.TargetDate != "2025-03-01" {
		t.Errorf("target_date = %q", gotReq.TargetDate)
	}
	if len(raw) == 0 {
		t.Error("empty response")
	}
}

func TestSyncCallTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)

	client := NewClientWithConfig(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := client.FetchChart(context.Background(), AnalysisRequest{BirthDate: "1990-05-15"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Kind != KindTimeout {
		t.Fatalf("want timeout error, got %v", err)
	}
}
