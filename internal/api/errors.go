package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies a failed endpoint call. The session layer branches on
// it: quota exhaustion must never trigger the synchronous fallback, and
// cancellation must stay silent.
type Kind int

const (
	// KindTransport is a network-level failure: dial, reset, broken stream.
	KindTransport Kind = iota
	// KindRateLimited is quota exhaustion, HTTP 429 with a usage body.
	KindRateLimited
	// KindUpstream is a backend-reported failure: non-200 status or an
	// in-band error frame.
	KindUpstream
	// KindTimeout means a deadline expired before the call finished.
	KindTimeout
	// KindCanceled means the caller abandoned the call.
	KindCanceled
)

// String returns the lowercase name used in logs and transcripts.
func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRateLimited:
		return "rate_limited"
	case KindUpstream:
		return "upstream"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// RateLimitInfo mirrors the 429 body the backend sends:
// {"error":"rate_limited","used":N,"limit":N,"remaining":0}.
// Zero values mean the body was absent or unparseable.
type RateLimitInfo struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

// APIError is a classified endpoint failure.
type APIError struct {
	Kind       Kind
	StatusCode int    // zero when no HTTP response arrived
	Message    string // human-readable detail, backend text where available
	RateLimit  *RateLimitInfo
	Err        error // underlying cause, when any
}

func (e *APIError) Error() string {
	switch {
	case e.Kind == KindRateLimited && e.RateLimit != nil:
		return fmt.Sprintf("%s: %s (%d/%d used)", e.Kind, e.Message, e.RateLimit.Used, e.RateLimit.Limit)
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Classify wraps any failure into an *APIError. Existing classifications
// pass through untouched; context errors map to timeout and canceled;
// everything else is a transport failure. Classification runs before any
// fallback decision.
func Classify(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &APIError{Kind: KindTimeout, Message: "deadline exceeded", Err: err}
	case errors.Is(err, context.Canceled):
		return &APIError{Kind: KindCanceled, Err: err}
	default:
		return &APIError{Kind: KindTransport, Err: err}
	}
}

// IsRateLimited reports whether err classifies as quota exhaustion.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited
}

// RateLimitFrom extracts usage numbers from a rate-limit error, nil for
// anything else.
func RateLimitFrom(err error) *RateLimitInfo {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited {
		if apiErr.RateLimit != nil {
			return apiErr.RateLimit
		}
		return &RateLimitInfo{}
	}
	return nil
}

// parseRateLimit decodes a 429 body. A missing or malformed body yields
// the zero info rather than an error; the status code already told us
// everything that matters.
func parseRateLimit(body []byte) RateLimitInfo {
	var info RateLimitInfo
	if len(body) == 0 {
		return info
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return RateLimitInfo{}
	}
	return info
}
