package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"baziai/internal/report"
	"baziai/internal/stream"
)

// syncEnvelope is the synchronous endpoint's top-level document.
type syncEnvelope struct {
	BaziChart json.RawMessage            `json:"bazi_chart"`
	Sections  map[string]json.RawMessage `json:"sections"`
	Insights  json.RawMessage            `json:"insights"`
}

// sectionPayload is the wrapped shape of one section or insights value.
// Older backends sent bare strings instead; both are accepted.
type sectionPayload struct {
	Text     json.RawMessage `json:"text"`
	Content  json.RawMessage `json:"content"`
	IsLocked bool            `json:"is_locked"`
	Error    string          `json:"error"`
}

// isEnvelope distinguishes the {text, is_locked} wrapper from a section
// whose content is itself an object (the age-periods timeline).
func (p sectionPayload) isEnvelope() bool {
	return p.Text != nil || p.Content != nil || p.IsLocked || p.Error != ""
}

// ParseSyncDocument decodes the synchronous analysis document into the
// bulk-write shape the store applies wholesale.
func ParseSyncDocument(body []byte) (report.Document, error) {
	var env syncEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return report.Document{}, fmt.Errorf("failed to parse document: %w", err)
	}

	doc := report.Document{
		Chart:    env.BaziChart,
		Sections: make(map[string]report.SectionRecord, len(env.Sections)),
	}
	for key, raw := range env.Sections {
		doc.Sections[key] = parseSectionValue(raw)
	}
	doc.Insights = parseInsightsValue(env.Insights)
	return doc, nil
}

func parseSectionValue(raw json.RawMessage) report.SectionRecord {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var payload sectionPayload
		if err := json.Unmarshal(trimmed, &payload); err == nil && payload.isEnvelope() {
			content := payload.Text
			if content == nil {
				content = payload.Content
			}
			return report.SectionRecord{
				Content: stream.NormalizeContent(content),
				Locked:  payload.IsLocked,
				Error:   payload.Error,
			}
		}
	}
	return report.SectionRecord{Content: stream.NormalizeContent(raw)}
}

func parseInsightsValue(raw json.RawMessage) report.Insights {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return report.Insights{}
	}

	if trimmed[0] == '{' {
		var payload sectionPayload
		if err := json.Unmarshal(trimmed, &payload); err == nil && payload.isEnvelope() {
			text := ""
			if s := stream.NormalizeContent(payload.Text); s != nil {
				text = *s
			}
			return report.Insights{Text: text, Locked: payload.IsLocked}
		}
	}

	if s := stream.NormalizeContent(raw); s != nil {
		return report.Insights{Text: *s}
	}
	return report.Insights{}
}
