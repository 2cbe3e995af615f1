// Package history keeps a local record of update checks, downloads and
// installs in a SQLite database.
//
// Each Store belongs to one run of the program and stamps every entry with a
// run identifier, so entries from overlapping sessions stay distinguishable.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	appErrors "skylight/internal/errors"
	"skylight/internal/update"
)

// DefaultLimit is the number of entries Recent returns when given no limit.
const DefaultLimit = 20

const schema = `
CREATE TABLE IF NOT EXISTS update_events (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	type          TEXT NOT NULL,
	phase         TEXT NOT NULL,
	version       TEXT NOT NULL DEFAULT '',
	path          TEXT NOT NULL DEFAULT '',
	transferred   INTEGER NOT NULL DEFAULT 0,
	total         INTEGER NOT NULL DEFAULT 0,
	error_kind    TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	recorded_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_update_events_recorded_at ON update_events(recorded_at);
`

// Entry is one recorded pipeline event.
type Entry struct {
	ID           string    `json:"id"`
	RunID        string    `json:"run_id"`
	Type         string    `json:"type"`
	Phase        string    `json:"phase"`
	Version      string    `json:"version,omitempty"`
	Path         string    `json:"path,omitempty"`
	Transferred  uint64    `json:"transferred,omitempty"`
	Total        uint64    `json:"total,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// Failed reports whether the entry records an error.
func (e Entry) Failed() bool {
	return e.ErrorKind != "" || e.Type == string(update.EventError)
}

// Store persists update events. It implements update.Recorder.
type Store struct {
	db    *sql.DB
	path  string
	runID string
	now   func() time.Time
}

var _ update.Recorder = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source for events that carry none.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRunID fixes the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(s *Store) {
		if strings.TrimSpace(id) != "" {
			s.runID = id
		}
	}
}

// Open creates or opens the history database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, appErrors.New(appErrors.CodeStorage, "history path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("create history dir: %v", err), err)
	}

	db, err := sql.Open("sqlite", buildDSN(trimmed))
	if err != nil {
		return nil, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("open history db: %v", err), err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("ping history db: %v", err), err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("migrate history db: %v", err), err)
	}

	s := &Store{
		db:    db,
		path:  trimmed,
		runID: uuid.NewString(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// buildDSN creates a WAL DSN with a busy timeout for the given path.
func buildDSN(path string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(path),
	}
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(3000)")
	u.RawQuery = q.Encode()
	return u.String()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// RunID returns the identifier stamped on this run's entries.
func (s *Store) RunID() string { return s.runID }

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores ev. Download progress ticks are not persisted.
func (s *Store) Record(ctx context.Context, ev update.Event) error {
	if ev.Type == "" || ev.Type == update.EventDownload {
		return nil
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	var kind, message string
	if ev.Err != nil {
		kind = string(ev.Err.Kind)
		message = ev.Err.Message
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO update_events
			(id, run_id, type, phase, version, path, transferred, total, error_kind, error_message, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.NewString(), s.runID, string(ev.Type), ev.Phase.String(), ev.Version, ev.Path,
		int64(ev.Progress.Transferred), int64(ev.Progress.Total), kind, message, at.UTC().UnixNano(),
	)
	if err != nil {
		return appErrors.New(appErrors.CodeStorage, fmt.Sprintf("record %s event: %v", ev.Type, err), err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, type, phase, version, path, transferred, total, error_kind, error_message, recorded_at
		FROM update_events
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("query history: %v", err), err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		var (
			e                  Entry
			transferred, total int64
			recordedAt         int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &e.Phase, &e.Version, &e.Path,
			&transferred, &total, &e.ErrorKind, &e.ErrorMessage, &recordedAt); err != nil {
			return nil, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("scan history entry: %v", err), err)
		}
		e.Transferred = uint64(transferred)
		e.Total = uint64(total)
		e.RecordedAt = time.Unix(0, recordedAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("read history: %v", err), err)
	}
	return entries, nil
}

// LastCheckedAt returns when a check last completed, successfully or not.
// The zero time means no check has been recorded.
func (s *Store) LastCheckedAt(ctx context.Context) (time.Time, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(recorded_at)
		FROM update_events
		WHERE type IN (?, ?) OR phase = ?
	`, string(update.EventAvailable), string(update.EventNotAvailable), update.PhaseCheckFailed.String()).Scan(&last)
	if err != nil {
		return time.Time{}, appErrors.New(appErrors.CodeStorage, fmt.Sprintf("query last check: %v", err), err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return time.Unix(0, last.Int64).UTC(), nil
}
