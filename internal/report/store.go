package report

import (
	"encoding/json"
	"sync"

	"baziai/internal/logging"
)

// SectionRecord is the progressive state of one report section.
type SectionRecord struct {
	Content *string `json:"content"`
	Locked  bool    `json:"locked"`
	Error   string  `json:"error,omitempty"`
}

// Done reports whether the record holds a final outcome for this session:
// either content arrived or the section failed.
func (r SectionRecord) Done() bool {
	return r.Content != nil || r.Error != ""
}

// Insights is the final narrative. When Locked, Text holds the free-tier
// preview instead of the full narrative.
type Insights struct {
	Text   string `json:"text"`
	Locked bool   `json:"locked"`
}

// Document is a complete reading delivered in one piece, the shape the
// synchronous endpoint returns. Applying one replaces everything.
type Document struct {
	Chart    json.RawMessage
	Sections map[string]SectionRecord
	Insights Insights
}

// Snapshot is a consistent copy of the store for readers. Mutating a
// snapshot never touches the store.
type Snapshot struct {
	Chart    json.RawMessage
	Sections map[string]SectionRecord
	Insights Insights
	Complete bool
	Progress float64
}

// Store accumulates one session's reading. All mutators take the write
// lock; a session has a single producer at any instant, so the lock is
// for readers, not for producer coordination.
type Store struct {
	mu       sync.RWMutex
	chart    json.RawMessage
	sections map[string]SectionRecord
	insights Insights
	complete bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sections: make(map[string]SectionRecord)}
}

// SetChart records the computed chart.
func (s *Store) SetChart(raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chart = append(json.RawMessage(nil), raw...)
}

// Upsert merges one section update. Content, when present, replaces
// unconditionally (latest write wins). Locked is monotonic: once true it
// survives later events. A non-empty error is recorded and kept until a
// bulk ApplyDocument; stream events never clear it.
func (s *Store) Upsert(key string, content *string, locked bool, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.sections[key]
	if content != nil {
		v := *content
		rec.Content = &v
	}
	if locked {
		rec.Locked = true
	}
	if errMsg != "" {
		rec.Error = errMsg
		logging.Get(logging.CategoryReport).Warn("section %s failed: %s", key, errMsg)
	}
	s.sections[key] = rec
}

// AppendInsight adds one narrative delta. Deltas after a lock are
// ignored; the preview is terminal for the session.
func (s *Store) AppendInsight(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insights.Locked {
		return
	}
	s.insights.Text += text
}

// LockInsights replaces the narrative with its free-tier preview.
func (s *Store) LockInsights(preview string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insights = Insights{Text: preview, Locked: true}
}

// MarkComplete records that the producing stream finished cleanly.
func (s *Store) MarkComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complete = true
}

// ApplyDocument is the fallback's single bulk write: chart, sections, and
// insights are replaced wholesale, stream-era section errors included,
// and the reading is complete.
func (s *Store) ApplyDocument(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chart = append(json.RawMessage(nil), doc.Chart...)
	s.sections = make(map[string]SectionRecord, len(doc.Sections))
	for key, rec := range doc.Sections {
		if rec.Content != nil {
			v := *rec.Content
			rec.Content = &v
		}
		s.sections[key] = rec
	}
	s.insights = doc.Insights
	s.complete = true
}

// Done reports whether a section holds a final outcome.
func (s *Store) Done(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sections[key].Done()
}

// Complete reports whether the reading finished.
func (s *Store) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.complete
}

// Progress returns done tracked units over all tracked units, in [0, 1].
// Sections outside the catalog do not count; with a single producer the
// value never decreases.
func (s *Store) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progressLocked()
}

func (s *Store) progressLocked() float64 {
	done := 0
	if len(s.chart) > 0 {
		done++
	}
	for _, key := range sectionCatalog {
		if s.sections[key].Done() {
			done++
		}
	}
	if s.insightsDoneLocked() {
		done++
	}
	return float64(done) / float64(TrackedUnits())
}

func (s *Store) insightsDoneLocked() bool {
	return s.insights.Locked || s.insights.Text != "" || s.complete
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sections := make(map[string]SectionRecord, len(s.sections))
	for key, rec := range s.sections {
		if rec.Content != nil {
			v := *rec.Content
			rec.Content = &v
		}
		sections[key] = rec
	}

	return Snapshot{
		Chart:    append(json.RawMessage(nil), s.chart...),
		Sections: sections,
		Insights: s.insights,
		Complete: s.complete,
		Progress: s.progressLocked(),
	}
}
