package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"torfetch/internal/model"
)

// dbFileName is the SQLite file created inside the database directory.
const dbFileName = "torfetch.db"

// AttemptDB stores one row per fetch attempt. Rows are append-only: the
// engine writes them as attempts resolve and never updates them.
//
// Design decision: attempt history lives in its own SQLite file instead
// of the JSON tracker document. The tracker is the engine's hot decision
// state and must stay a plain forward-compatible JSON mapping; the
// history grows without bound and needs indexed queries.
type AttemptDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures AttemptDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent
	// performance. Recommended: parallel workers record attempts while
	// the status command reads.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates an AttemptDB in the specified directory.
// If CreateIfNotExists is false and the database doesn't exist, an
// error is returned.
func Open(dbDir string, opts Options) (*AttemptDB, error) {
	dbPath := filepath.Join(dbDir, dbFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating
	// new files, mode=rwc allows creation.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	adb := &AttemptDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := adb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return adb, nil
}

// Close closes the database connection.
func (adb *AttemptDB) Close() error {
	return adb.db.Close()
}

// Path returns the database file path.
func (adb *AttemptDB) Path() string {
	return adb.dbPath
}

// createTables creates the database schema if it doesn't exist.
func (adb *AttemptDB) createTables() error {
	schema := `
	-- One row per fetch attempt, append-only
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		video_id TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		identity TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error_class TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_video ON attempts(video_id);
	CREATE INDEX IF NOT EXISTS idx_attempts_identity ON attempts(identity);
	CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at);
	`

	_, err := adb.db.ExecContext(context.Background(), schema)
	return err
}

// Record appends one attempt row.
func (adb *AttemptDB) Record(ctx context.Context, attempt model.FetchAttempt) error {
	query := `
	INSERT INTO attempts (video_id, attempt, identity, outcome, error_class, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := adb.db.ExecContext(ctx, query,
		attempt.VideoID,
		attempt.Number,
		attempt.Identity,
		string(attempt.Outcome),
		attempt.ErrorClass,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

// Attempts returns the recorded attempts for a video, oldest first.
func (adb *AttemptDB) Attempts(ctx context.Context, videoID string) ([]model.FetchAttempt, error) {
	query := `
	SELECT video_id, attempt, identity, outcome, error_class
	FROM attempts
	WHERE video_id = ?
	ORDER BY id
	`

	rows, err := adb.db.QueryContext(ctx, query, videoID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []model.FetchAttempt
	for rows.Next() {
		var a model.FetchAttempt
		var outcome string
		var errorClass sql.NullString
		if err := rows.Scan(&a.VideoID, &a.Number, &a.Identity, &outcome, &errorClass); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Outcome = model.Outcome(outcome)
		a.ErrorClass = errorClass.String
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// RecentFailures returns the identities with failed attempts recorded
// in the given window, most recent first, capped at limit.
func (adb *AttemptDB) RecentFailures(ctx context.Context, window time.Duration, limit int) ([]string, error) {
	since := time.Now().UTC().Add(-window).Format(time.RFC3339)

	query := `
	SELECT DISTINCT identity
	FROM attempts
	WHERE outcome = ? AND created_at >= ?
	ORDER BY id DESC
	LIMIT ?
	`

	rows, err := adb.db.QueryContext(ctx, query, string(model.OutcomeFailure), since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent failures: %w", err)
	}
	defer rows.Close()

	var identities []string
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

// CountByOutcome returns how many attempts recorded each outcome.
func (adb *AttemptDB) CountByOutcome(ctx context.Context) (map[model.Outcome]int, error) {
	query := `SELECT outcome, COUNT(*) FROM attempts GROUP BY outcome`

	rows, err := adb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[model.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}
