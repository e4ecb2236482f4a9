package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindTransport:   "transport",
		KindRateLimited: "rate_limited",
		KindUpstream:    "upstream",
		KindTimeout:     "timeout",
		KindCanceled:    "canceled",
		Kind(99):        "unknown",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}

	t.Run("passthrough", func(t *testing.T) {
		orig := &APIError{Kind: KindRateLimited, RateLimit: &RateLimitInfo{Used: 3, Limit: 3}}
		if got := Classify(orig); got != orig {
			t.Errorf("Classify should pass an APIError through, got %#v", got)
		}
		// Also when wrapped.
		wrapped := fmt.Errorf("fallback failed: %w", orig)
		if got := Classify(wrapped); got != orig {
			t.Errorf("Classify should unwrap to the APIError, got %#v", got)
		}
	})

	t.Run("deadline", func(t *testing.T) {
		err := fmt.Errorf("request failed: %w", context.DeadlineExceeded)
		got := Classify(err)
		if got.Kind != KindTimeout {
			t.Errorf("Kind = %s, want timeout", got.Kind)
		}
		if !errors.Is(got, context.DeadlineExceeded) {
			t.Error("classified error should still match the cause")
		}
	})

	t.Run("canceled", func(t *testing.T) {
		err := fmt.Errorf("request failed: %w", context.Canceled)
		if got := Classify(err); got.Kind != KindCanceled {
			t.Errorf("Kind = %s, want canceled", got.Kind)
		}
	})

	t.Run("default transport", func(t *testing.T) {
		if got := Classify(errors.New("connection reset")); got.Kind != KindTransport {
			t.Errorf("Kind = %s, want transport", got.Kind)
		}
	})
}

func TestAPIErrorMessage(t *testing.T) {
	rl := &APIError{
		Kind:      KindRateLimited,
		Message:   "daily analysis limit reached",
		RateLimit: &RateLimitInfo{Used: 3, Limit: 3},
	}
	if got := rl.Error(); got != "rate_limited: daily analysis limit reached (3/3 used)" {
		t.Errorf("Error() = %q", got)
	}

	up := &APIError{Kind: KindUpstream, Message: "internal server error"}
	if got := up.Error(); got != "upstream: internal server error" {
		t.Errorf("Error() = %q", got)
	}

	tr := &APIError{Kind: KindTransport, Err: errors.New("dial tcp: refused")}
	if got := tr.Error(); got != "transport: dial tcp: refused" {
		t.Errorf("Error() = %q", got)
	}

	bare := &APIError{Kind: KindCanceled}
	if got := bare.Error(); got != "canceled" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsRateLimited(t *testing.T) {
	rl := &APIError{Kind: KindRateLimited}
	if !IsRateLimited(rl) {
		t.Error("direct rate-limit error should match")
	}
	if !IsRateLimited(fmt.Errorf("chart fetch: %w", rl)) {
		t.Error("wrapped rate-limit error should match")
	}
	if IsRateLimited(&APIError{Kind: KindTransport}) {
		t.Error("transport error should not match")
	}
	if IsRateLimited(errors.New("plain")) {
		t.Error("plain error should not match")
	}
}

func TestRateLimitFrom(t *testing.T) {
	rl := &APIError{Kind: KindRateLimited, RateLimit: &RateLimitInfo{Used: 2, Limit: 3}}
	info := RateLimitFrom(fmt.Errorf("wrapped: %w", rl))
	if info == nil || info.Used != 2 || info.Limit != 3 {
		t.Errorf("RateLimitFrom = %+v, want {2 3}", info)
	}

	// A rate-limit error without numbers yields the zero info, not nil.
	info = RateLimitFrom(&APIError{Kind: KindRateLimited})
	if info == nil || info.Used != 0 || info.Limit != 0 {
		t.Errorf("RateLimitFrom = %+v, want zero info", info)
	}

	if RateLimitFrom(&APIError{Kind: KindUpstream}) != nil {
		t.Error("non-quota error should yield nil")
	}
}

func TestParseRateLimit(t *testing.T) {
	info := parseRateLimit([]byte(`{"error":"rate_limited","used":3,"limit":3,"remaining":0}`))
	if info.Used != 3 || info.Limit != 3 {
		t.Errorf("parseRateLimit = %+v, want {3 3}", info)
	}

	if info := parseRateLimit(nil); info.Used != 0 || info.Limit != 0 {
		t.Errorf("empty body should yield zero info, got %+v", info)
	}
	if info := parseRateLimit([]byte("<html>too many requests</html>")); info.Used != 0 || info.Limit != 0 {
		t.Errorf("malformed body should yield zero info, got %+v", info)
	}
}

func TestStatusError(t *testing.T) {
	err := statusError(http.StatusTooManyRequests, []byte(`{"error":"rate_limited","used":3,"limit":3}`))
	if err.Kind != KindRateLimited {
		t.Fatalf("Kind = %s, want rate_limited", err.Kind)
	}
	if err.RateLimit.Used != 3 || err.RateLimit.Limit != 3 {
		t.Errorf("RateLimit = %+v", err.RateLimit)
	}

	err = statusError(http.StatusInternalServerError, []byte("analysis engine crashed"))
	if err.Kind != KindUpstream || err.Message != "analysis engine crashed" {
		t.Errorf("got %s / %q", err.Kind, err.Message)
	}

	err = statusError(http.StatusBadGateway, nil)
	if err.Message != "Bad Gateway" {
		t.Errorf("empty body should fall back to status text, got %q", err.Message)
	}

	err = statusError(http.StatusInternalServerError, []byte(strings.Repeat("x", 1000)))
	if len(err.Message) != 300 {
		t.Errorf("long body should be truncated to 300, got %d", len(err.Message))
	}
}
