package stream

import (
	"bytes"
	"encoding/json"
	"strings"

	"baziai/internal/logging"
)

// Event frames arrive as "data: " + JSON. Blank separator lines and
// anything else without the marker are not events.
const dataPrefix = "data: "

// IsDataLine reports whether the line carries the event marker. A marked
// line that ParseLine still rejects was a dropped frame, not separator
// noise.
func IsDataLine(line string) bool {
	return strings.HasPrefix(line, dataPrefix)
}

// wireFrame is the superset of fields any event frame can carry. The
// "type" discriminant selects which ones matter.
type wireFrame struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	Key      string          `json:"key,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
	IsLocked bool            `json:"is_locked,omitempty"`
	Error    string          `json:"error,omitempty"`
	Text     string          `json:"text,omitempty"`
	Preview  string          `json:"preview,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// ParseLine interprets one framed line. ok is false for separator lines,
// frames of unknown type, and malformed payloads; none of those abort the
// stream, the line is simply dropped.
func ParseLine(line string) (Event, bool) {
	if !strings.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	payload := strings.TrimPrefix(line, dataPrefix)

	var frame wireFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		logging.StreamWarn("skipping malformed frame: %v", err)
		return nil, false
	}

	switch frame.Type {
	case "bazi_chart":
		return ChartEvent{Data: frame.Data}, true
	case "section":
		if frame.Key == "" {
			logging.StreamWarn("skipping section frame without key")
			return nil, false
		}
		return SectionEvent{
			Key:     frame.Key,
			Content: NormalizeContent(frame.Content),
			Locked:  frame.IsLocked,
			Err:     frame.Error,
		}, true
	case "insight":
		return InsightDeltaEvent{Text: frame.Text}, true
	case "insight_locked":
		return InsightLockedEvent{Preview: frame.Preview}, true
	case "complete":
		return CompleteEvent{}, true
	case "error":
		return ErrorEvent{Message: frame.Message}, true
	default:
		logging.StreamWarn("skipping frame of unknown type %q", frame.Type)
		return nil, false
	}
}

// NormalizeContent flattens the wire's loose content field. Most sections
// send a string, but structured ones (the age-periods timeline) send an
// object; those are kept as their compact JSON text. null and absent both
// mean no content. The synchronous document decoder applies the same rule.
func NormalizeContent(raw json.RawMessage) *string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil
		}
		return &s
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return nil
	}
	s := compact.String()
	return &s
}
