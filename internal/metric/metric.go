// Package metric exposes the client core's Prometheus instrumentation.
// All record methods are safe on a nil *Set, so callers never need to
// guard the disabled case.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "baziai"

// Set holds the collectors for one client instance. Host applications
// embedding the client register it into their own registry; passing a nil
// Registerer disables instrumentation entirely.
type Set struct {
	sessionsStarted prometheus.Counter
	sessionsEnded   *prometheus.CounterVec
	streamEvents    *prometheus.CounterVec
	droppedFrames   prometheus.Counter
	fallbacks       prometheus.Counter
	rateLimitHits   prometheus.Counter
	sessionSeconds  prometheus.Histogram
}

// NewSet builds and registers the collectors. Returns nil when reg is nil.
func NewSet(reg prometheus.Registerer) *Set {
	if reg == nil {
		return nil
	}

	s := &Set{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Analysis sessions submitted.",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Analysis sessions that reached a terminal state, by outcome.",
		}, []string{"outcome"}), // completed, failed, rate_limited, stopped
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Interpreted stream events, by wire type.",
		}, []string{"type"}),
		droppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_dropped_frames_total",
			Help:      "Data frames that yielded no event (malformed or unknown type).",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallbacks_total",
			Help:      "Synchronous fallbacks attempted after a stream failure.",
		}),
		rateLimitHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Requests refused with the daily quota exhausted.",
		}),
		sessionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Wall time from submit to terminal state.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}

	reg.MustRegister(
		s.sessionsStarted,
		s.sessionsEnded,
		s.streamEvents,
		s.droppedFrames,
		s.fallbacks,
		s.rateLimitHits,
		s.sessionSeconds,
	)
	return s
}

// SessionStarted records one submit.
func (s *Set) SessionStarted() {
	if s == nil {
		return
	}
	s.sessionsStarted.Inc()
}

// SessionEnded records a terminal transition and the session's duration.
func (s *Set) SessionEnded(outcome string, d time.Duration) {
	if s == nil {
		return
	}
	s.sessionsEnded.WithLabelValues(outcome).Inc()
	s.sessionSeconds.Observe(d.Seconds())
}

// StreamEvent records one interpreted event by wire type.
func (s *Set) StreamEvent(kind string) {
	if s == nil {
		return
	}
	s.streamEvents.WithLabelValues(kind).Inc()
}

// DroppedFrame records a data frame the interpreter could not use.
func (s *Set) DroppedFrame() {
	if s == nil {
		return
	}
	s.droppedFrames.Inc()
}

// Fallback records one synchronous replay attempt.
func (s *Set) Fallback() {
	if s == nil {
		return
	}
	s.fallbacks.Inc()
}

// RateLimitHit records a quota refusal from any endpoint.
func (s *Set) RateLimitHit() {
	if s == nil {
		return
	}
	s.rateLimitHits.Inc()
}
