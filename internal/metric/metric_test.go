package metric

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilSetIsSafe(t *testing.T) {
	var s *Set
	s.SessionStarted()
	s.SessionEnded("completed", time.Second)
	s.StreamEvent("section")
	s.DroppedFrame()
	s.Fallback()
	s.RateLimitHit()
}

func TestNewSetNilRegistry(t *testing.T) {
	if NewSet(nil) != nil {
		t.Error("nil registry should disable metrics")
	}
}

func TestCountersRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewSet(reg)

	s.SessionStarted()
	s.SessionStarted()
	s.SessionEnded("completed", 2*time.Second)
	s.SessionEnded("failed", time.Second)
	s.StreamEvent("section")
	s.StreamEvent("section")
	s.StreamEvent("complete")
	s.DroppedFrame()
	s.Fallback()
	s.RateLimitHit()

	if got := testutil.ToFloat64(s.sessionsStarted); got != 2 {
		t.Errorf("sessions_started = %v", got)
	}
	if got := testutil.ToFloat64(s.sessionsEnded.WithLabelValues("completed")); got != 1 {
		t.Errorf("sessions_ended{completed} = %v", got)
	}
	if got := testutil.ToFloat64(s.streamEvents.WithLabelValues("section")); got != 2 {
		t.Errorf("stream_events{section} = %v", got)
	}
	if got := testutil.ToFloat64(s.droppedFrames); got != 1 {
		t.Errorf("dropped_frames = %v", got)
	}
	if got := testutil.ToFloat64(s.fallbacks); got != 1 {
		t.Errorf("fallbacks = %v", got)
	}
	if got := testutil.ToFloat64(s.rateLimitHits); got != 1 {
		t.Errorf("rate_limit_hits = %v", got)
	}
}

func TestRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewSet(reg)
	s.SessionStarted()
	s.SessionEnded("completed", time.Second)
	s.StreamEvent("section")
	s.DroppedFrame()
	s.Fallback()
	s.RateLimitHit()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 7 {
		names := make([]string, 0, len(families))
		for _, f := range families {
			names = append(names, f.GetName())
		}
		t.Errorf("got %d families: %v", len(families), names)
	}
}
