// Package history persists completed readings in a local SQLite database
// so past analyses survive restarts and stay inspectable offline.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"baziai/internal/api"
	"baziai/internal/report"
)

// ErrNotFound is returned when no reading has the requested id.
var ErrNotFound = errors.New("reading not found")

// Reading is one completed analysis as stored: the request that produced
// it, the chart document, and the resolved sections and insights.
type Reading struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Request   api.AnalysisRequest
	Chart     json.RawMessage
	Sections  map[string]report.SectionRecord
	Insights  report.Insights
	Locked    bool
}

// Summary is the list row: enough to recognize a reading without
// loading the full document.
type Summary struct {
	ID        uuid.UUID
	CreatedAt time.Time
	BirthDate string
	BirthHour int
	Gender    string
	Language  string
}

// Store wraps the readings database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := s.db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return fmt.Errorf("failed to set journal_mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		birth_date TEXT NOT NULL,
		birth_hour INTEGER NOT NULL,
		gender TEXT NOT NULL,
		language TEXT NOT NULL,
		request TEXT NOT NULL,
		chart TEXT,
		sections TEXT NOT NULL,
		insights TEXT NOT NULL,
		locked INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_readings_created ON readings(created_at);
	CREATE INDEX IF NOT EXISTS idx_readings_birth ON readings(birth_date);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create readings table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a reading. Saving the same id again replaces the previous
// row, so re-running a session does not duplicate history.
func (s *Store) Save(ctx context.Context, r Reading) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	reqJSON, err := json.Marshal(r.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	sectionsJSON, err := json.Marshal(r.Sections)
	if err != nil {
		return fmt.Errorf("failed to marshal sections: %w", err)
	}
	insightsJSON, err := json.Marshal(r.Insights)
	if err != nil {
		return fmt.Errorf("failed to marshal insights: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO readings
		 (id, created_at, birth_date, birth_hour, gender, language, request, chart, sections, insights, locked)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.CreatedAt.UTC(), r.Request.BirthDate, r.Request.BirthHour,
		r.Request.Gender, r.Request.Language, string(reqJSON), string(r.Chart),
		string(sectionsJSON), string(insightsJSON), boolToInt(r.Locked),
	)
	if err != nil {
		return fmt.Errorf("failed to save reading: %w", err)
	}
	return nil
}

// List returns the newest readings first.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, birth_date, birth_hour, gender, language
		 FROM readings ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var id string
		if err := rows.Scan(&id, &sum.CreatedAt, &sum.BirthDate, &sum.BirthHour, &sum.Gender, &sum.Language); err != nil {
			continue
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		sum.ID = parsed
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Get loads one full reading.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Reading, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, request, chart, sections, insights, locked
		 FROM readings WHERE id = ?`, id.String())

	var r Reading
	var idStr, reqJSON, sectionsJSON, insightsJSON string
	var chart sql.NullString
	var locked int
	if err := row.Scan(&idStr, &r.CreatedAt, &reqJSON, &chart, &sectionsJSON, &insightsJSON, &locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Reading{}, ErrNotFound
		}
		return Reading{}, fmt.Errorf("failed to load reading: %w", err)
	}

	parsed, err := uuid.Parse(idStr)
	if err != nil {
		return Reading{}, fmt.Errorf("corrupt reading id %q: %w", idStr, err)
	}
	r.ID = parsed
	r.Locked = locked != 0
	if chart.Valid && chart.String != "" {
		r.Chart = json.RawMessage(chart.String)
	}
	if err := json.Unmarshal([]byte(reqJSON), &r.Request); err != nil {
		return Reading{}, fmt.Errorf("corrupt reading request: %w", err)
	}
	if err := json.Unmarshal([]byte(sectionsJSON), &r.Sections); err != nil {
		return Reading{}, fmt.Errorf("corrupt reading sections: %w", err)
	}
	if err := json.Unmarshal([]byte(insightsJSON), &r.Insights); err != nil {
		return Reading{}, fmt.Errorf("corrupt reading insights: %w", err)
	}
	return r, nil
}

// FindByPrefix resolves a reading id from a full UUID string or a
// prefix of one. A prefix matching more than one reading is an error.
func (s *Store) FindByPrefix(ctx context.Context, prefix string) (uuid.UUID, error) {
	if id, err := uuid.Parse(prefix); err == nil {
		return id, nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM readings WHERE id LIKE ? LIMIT 2",
		strings.ToLower(prefix)+"%")
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up reading: %w", err)
	}
	defer rows.Close()

	var matches []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			continue
		}
		parsed, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		matches = append(matches, parsed)
	}
	if err := rows.Err(); err != nil {
		return uuid.Nil, err
	}

	switch len(matches) {
	case 0:
		return uuid.Nil, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return uuid.Nil, fmt.Errorf("id prefix %q is ambiguous", prefix)
	}
}

// Delete removes one reading.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM readings WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete reading: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
