// Package stream decodes the analysis event stream: raw byte chunks are
// reassembled into lines by LineFramer, and ParseLine interprets each line
// as one of the closed set of Event variants. The package never touches
// the network; it is fed by the API client and consumed by the session.
package stream

import "encoding/json"

// Event is one interpreted frame from the analysis stream. The set of
// variants is closed; consumers switch on the concrete type.
type Event interface {
	kind() string
}

// Kind returns the wire-level type tag of an event, for logging.
func Kind(e Event) string { return e.kind() }

// ChartEvent carries the computed BAZI chart. The payload stays opaque
// JSON; rendering layers decide how deep to look.
type ChartEvent struct {
	Data json.RawMessage
}

// SectionEvent carries one report section update. Content is nil when the
// frame carried no content (locked placeholder or generation failure).
type SectionEvent struct {
	Key     string
	Content *string
	Locked  bool
	Err     string // per-section failure message, empty when the section generated cleanly
}

// InsightDeltaEvent carries one incremental chunk of the final narrative.
type InsightDeltaEvent struct {
	Text string
}

// InsightLockedEvent replaces the final narrative with a free-tier preview.
type InsightLockedEvent struct {
	Preview string
}

// CompleteEvent marks the stream finished. Everything after it is noise.
type CompleteEvent struct{}

// ErrorEvent carries an in-band backend failure notice.
type ErrorEvent struct {
	Message string
}

func (ChartEvent) kind() string         { return "bazi_chart" }
func (SectionEvent) kind() string       { return "section" }
func (InsightDeltaEvent) kind() string  { return "insight" }
func (InsightLockedEvent) kind() string { return "insight_locked" }
func (CompleteEvent) kind() string      { return "complete" }
func (ErrorEvent) kind() string         { return "error" }
