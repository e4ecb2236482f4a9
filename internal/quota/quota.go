// Package quota remembers the last quota refusal the backend reported, so
// the CLI can answer "how much is left today" without spending a request.
package quota

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status is the last usage report seen on a 429 response. The backend
// resets quotas daily; ObservedAt lets callers judge staleness.
type Status struct {
	Used       int       `json:"used"`
	Limit      int       `json:"limit"`
	ObservedAt time.Time `json:"observed_at"`
}

// Exhausted reports whether the observation said the quota was spent.
func (s Status) Exhausted() bool {
	return s.Limit > 0 && s.Used >= s.Limit
}

// Remaining returns the analyses left at observation time, never negative.
func (s Status) Remaining() int {
	if r := s.Limit - s.Used; r > 0 {
		return r
	}
	return 0
}

// SameDay reports whether the observation happened on the given local day.
// Observations from a previous day are stale; the backend has already
// reset the counter.
func (s Status) SameDay(now time.Time) bool {
	oy, om, od := s.ObservedAt.Local().Date()
	ny, nm, nd := now.Local().Date()
	return oy == ny && om == nm && od == nd
}

// File persists the status as a small JSON document.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a store backed by the given path. Nothing is touched
// until the first Record.
func NewFile(path string) *File {
	return &File{path: path}
}

// Record overwrites the stored status with a fresh observation.
func (f *File) Record(used, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create quota dir: %w", err)
	}
	data, err := json.MarshalIndent(Status{Used: used, Limit: limit, ObservedAt: time.Now()}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0644)
}

// Load returns the stored status. ok is false when nothing was ever
// recorded; a corrupt file is an error, not a silent zero.
func (f *File) Load() (Status, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return Status{}, false, nil
	}
	if err != nil {
		return Status{}, false, err
	}

	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return Status{}, false, fmt.Errorf("failed to parse quota file: %w", err)
	}
	return s, true, nil
}

// Clear forgets the stored observation.
func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
