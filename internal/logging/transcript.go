package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TranscriptEventType tags one entry in the session transcript.
type TranscriptEventType string

const (
	TranscriptSessionStart TranscriptEventType = "session_start"
	TranscriptStateChange  TranscriptEventType = "state_change"
	TranscriptStreamEvent  TranscriptEventType = "stream_event"
	TranscriptParseSkip    TranscriptEventType = "parse_skip"
	TranscriptFallback     TranscriptEventType = "fallback"
	TranscriptRateLimit    TranscriptEventType = "rate_limit"
	TranscriptSessionEnd   TranscriptEventType = "session_end"
)

// TranscriptEntry is one JSONL line in the transcript file. Replaying a
// transcript reproduces the exact event order a session observed, which is
// usually all the debugging a stream bug needs.
type TranscriptEntry struct {
	Timestamp int64                  `json:"ts"` // Unix milliseconds
	Event     TranscriptEventType    `json:"event"`
	SessionID string                 `json:"session"`
	Detail    string                 `json:"detail,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

var (
	transcriptFile *os.File
	transcriptMu   sync.Mutex
)

// InitTranscript opens the transcript file. No-op unless debug mode is on.
func InitTranscript() error {
	optsMu.RLock()
	debug := opts.Debug
	optsMu.RUnlock()
	if !debug || logsDir == "" {
		return nil
	}

	transcriptMu.Lock()
	defer transcriptMu.Unlock()
	if transcriptFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(logsDir, fmt.Sprintf("%s_transcript.jsonl", date))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	transcriptFile = file
	return nil
}

// CloseTranscript closes the transcript file. Call at shutdown.
func CloseTranscript() {
	transcriptMu.Lock()
	defer transcriptMu.Unlock()
	if transcriptFile != nil {
		transcriptFile.Close()
		transcriptFile = nil
	}
}

// Transcript records entries scoped to one session.
type Transcript struct {
	sessionID string
}

// TranscriptFor returns a recorder bound to the given session ID.
func TranscriptFor(sessionID string) *Transcript {
	return &Transcript{sessionID: sessionID}
}

type transcriptCtxKey struct{}

// WithTranscript attaches the session's transcript to a context, letting
// layers below the session (the stream scanner) record into it without
// knowing about sessions.
func WithTranscript(ctx context.Context, t *Transcript) context.Context {
	return context.WithValue(ctx, transcriptCtxKey{}, t)
}

// TranscriptFrom extracts the transcript riding the context, or nil. All
// Transcript methods accept a nil receiver, so the result can be used
// unchecked.
func TranscriptFrom(ctx context.Context) *Transcript {
	t, _ := ctx.Value(transcriptCtxKey{}).(*Transcript)
	return t
}

// Record appends one entry. Safe to call on a nil receiver and with the
// transcript unopened.
func (t *Transcript) Record(event TranscriptEventType, detail string, fields map[string]interface{}) {
	if t == nil {
		return
	}
	transcriptMu.Lock()
	defer transcriptMu.Unlock()
	if transcriptFile == nil {
		return
	}

	entry := TranscriptEntry{
		Timestamp: time.Now().UnixMilli(),
		Event:     event,
		SessionID: t.sessionID,
		Detail:    detail,
		Fields:    fields,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	transcriptFile.Write(append(data, '\n'))
}

// SessionStart records submission of a new analysis.
func (t *Transcript) SessionStart(birthDate string, language string) {
	t.Record(TranscriptSessionStart, "", map[string]interface{}{
		"birth_date": birthDate,
		"language":   language,
	})
}

// StateChange records one state-machine transition.
func (t *Transcript) StateChange(from, to string) {
	t.Record(TranscriptStateChange, fmt.Sprintf("%s -> %s", from, to), nil)
}

// StreamEvent records receipt of one interpreted event.
func (t *Transcript) StreamEvent(eventType string, key string) {
	fields := map[string]interface{}{"type": eventType}
	if key != "" {
		fields["key"] = key
	}
	t.Record(TranscriptStreamEvent, "", fields)
}

// ParseSkip records a malformed frame that was dropped.
func (t *Transcript) ParseSkip(line string) {
	if len(line) > 200 {
		line = line[:200]
	}
	t.Record(TranscriptParseSkip, line, nil)
}

// Fallback records the switch to the synchronous endpoint.
func (t *Transcript) Fallback(reason string) {
	t.Record(TranscriptFallback, reason, nil)
}

// RateLimit records a quota rejection.
func (t *Transcript) RateLimit(used, limit int) {
	t.Record(TranscriptRateLimit, "", map[string]interface{}{
		"used": used, "limit": limit,
	})
}

// SessionEnd records the terminal state and total duration.
func (t *Transcript) SessionEnd(state string, duration time.Duration) {
	t.Record(TranscriptSessionEnd, state, map[string]interface{}{
		"duration_ms": duration.Milliseconds(),
	})
}
