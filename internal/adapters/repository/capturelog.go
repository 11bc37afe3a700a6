package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// createdAtLayout is fixed-width so created_at sorts lexically.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

// CaptureRecord is one classified capture in the audit log.
type CaptureRecord struct {
	ID            string    `json:"id"`
	ImagePath     string    `json:"image_path"`
	Reason        string    `json:"reason"`
	Identity      string    `json:"identity,omitempty"`
	State         string    `json:"state,omitempty"`
	Distance      string    `json:"distance,omitempty"`
	TopClass      string    `json:"top_class,omitempty"`
	TopConfidence float64   `json:"top_confidence"`
	Count         int       `json:"count"`
	CreatedAt     time.Time `json:"created_at"`
}

// CaptureLog indexes classified captures in SQLite so recent activity can be
// listed without scanning the image directory.
type CaptureLog struct {
	db *sql.DB
}

// OpenCaptureLog opens (or creates) the SQLite database at path.
func OpenCaptureLog(ctx context.Context, path string) (*CaptureLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrCaptureLog, path, err)
	}
	// one writer; also keeps a ":memory:" database alive across calls
	db.SetMaxOpenConns(1)
	l, err := NewCaptureLog(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// NewCaptureLog wraps an open database and ensures the schema exists.
func NewCaptureLog(ctx context.Context, db *sql.DB) (*CaptureLog, error) {
	l := &CaptureLog{db: db}
	if err := l.migrate(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *CaptureLog) migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS captures (
		id TEXT PRIMARY KEY,
		image_path TEXT NOT NULL,
		reason TEXT NOT NULL,
		identity TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		distance TEXT NOT NULL DEFAULT '',
		top_class TEXT NOT NULL DEFAULT '',
		top_confidence REAL NOT NULL DEFAULT 0,
		prediction_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`
	if _, err := l.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%w: migrate: %v", ErrCaptureLog, err)
	}
	index := `CREATE INDEX IF NOT EXISTS captures_created_at ON captures (created_at)`
	if _, err := l.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("%w: migrate: %v", ErrCaptureLog, err)
	}
	return nil
}

// Record inserts one capture row.
func (l *CaptureLog) Record(ctx context.Context, r CaptureRecord) error {
	query := `INSERT INTO captures (
		id, image_path, reason, identity, state, distance, top_class, top_confidence, prediction_count, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := l.db.ExecContext(ctx, query,
		r.ID, r.ImagePath, r.Reason, r.Identity, r.State, r.Distance,
		r.TopClass, r.TopConfidence, r.Count, r.CreatedAt.UTC().Format(createdAtLayout),
	)
	if err != nil {
		return fmt.Errorf("%w: insert %s: %v", ErrCaptureLog, r.ID, err)
	}
	return nil
}

// Recent returns up to limit rows, newest first.
func (l *CaptureLog) Recent(ctx context.Context, limit int) ([]CaptureRecord, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	query := `
	SELECT id, image_path, reason, identity, state, distance, top_class, top_confidence, prediction_count, created_at
	FROM captures
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?`
	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrCaptureLog, err)
	}
	defer func() { _ = rows.Close() }()

	out := []CaptureRecord{}
	for rows.Next() {
		var (
			r       CaptureRecord
			created string
		)
		if err := rows.Scan(&r.ID, &r.ImagePath, &r.Reason, &r.Identity, &r.State, &r.Distance,
			&r.TopClass, &r.TopConfidence, &r.Count, &created); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrCaptureLog, err)
		}
		if t, err := time.Parse(createdAtLayout, created); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", ErrCaptureLog, err)
	}
	return out, nil
}

// Count returns the number of recorded captures.
func (l *CaptureLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM captures`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrCaptureLog, err)
	}
	return n, nil
}

// Close closes the underlying database.
func (l *CaptureLog) Close() error {
	return l.db.Close()
}
