// Package history keeps a SQLite record of every admitted download job.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one row of the jobs table
type Record struct {
	JobID       string
	URL         string
	State       string
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Title       string
	Channel     string
	Duration    time.Duration
	Path        string
	Error       string
}

// Summary aggregates the table
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Running   int
}

// Database manages the SQLite job history
type Database struct {
	db   *sql.DB
	path string
}

// NewDatabase opens (creating if needed) the history database at dbPath
func NewDatabase(dbPath string) (*Database, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	database := &Database{
		db:   db,
		path: dbPath,
	}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return database, nil
}

func (d *Database) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		state TEXT NOT NULL,
		submitted_at INTEGER NOT NULL,
		started_at INTEGER NOT NULL DEFAULT 0,
		finished_at INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL DEFAULT '',
		channel TEXT NOT NULL DEFAULT '',
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		path TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_submitted ON jobs(submitted_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Path returns the database file location
func (d *Database) Path() string {
	return d.path
}

// Start records an admitted job as running
func (d *Database) Start(jobID, url string, submittedAt, startedAt time.Time) error {
	query := `
	INSERT INTO jobs (id, url, state, submitted_at, started_at)
	VALUES (?, ?, 'running', ?, ?)
	ON CONFLICT(id) DO UPDATE SET state = 'running', started_at = excluded.started_at`

	if _, err := d.db.Exec(query, jobID, url, toMillis(submittedAt), toMillis(startedAt)); err != nil {
		return fmt.Errorf("failed to record job start: %w", err)
	}
	return nil
}

// Finish stores the outcome of a job. state is "succeeded" or "failed".
// Unknown job IDs are ignored.
func (d *Database) Finish(jobID, state string, finishedAt time.Time, title, channel, path string, duration time.Duration, errText string) error {
	query := `
	UPDATE jobs
	SET state = ?, finished_at = ?, title = ?, channel = ?, path = ?,
	    duration_seconds = ?, error = ?
	WHERE id = ?`

	_, err := d.db.Exec(query, state, toMillis(finishedAt), title, channel, path,
		int64(duration/time.Second), errText, jobID)
	if err != nil {
		return fmt.Errorf("failed to record job outcome: %w", err)
	}
	return nil
}

// Get returns one record, or sql.ErrNoRows
func (d *Database) Get(jobID string) (*Record, error) {
	row := d.db.QueryRow(selectColumns+` WHERE id = ?`, jobID)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (d *Database) Recent(limit int) ([]Record, error) {
	query := selectColumns + ` ORDER BY submitted_at DESC, rowid DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Summarize counts jobs by state
func (d *Database) Summarize() (Summary, error) {
	var s Summary
	query := `
	SELECT COUNT(*),
	       COALESCE(SUM(CASE WHEN state = 'succeeded' THEN 1 ELSE 0 END), 0),
	       COALESCE(SUM(CASE WHEN state = 'failed' THEN 1 ELSE 0 END), 0),
	       COALESCE(SUM(CASE WHEN state = 'running' THEN 1 ELSE 0 END), 0)
	FROM jobs`
	if err := d.db.QueryRow(query).Scan(&s.Total, &s.Succeeded, &s.Failed, &s.Running); err != nil {
		return Summary{}, fmt.Errorf("failed to summarize history: %w", err)
	}
	return s, nil
}

// AbandonRunning marks jobs left running by an earlier process as failed
func (d *Database) AbandonRunning(at time.Time) (int64, error) {
	res, err := d.db.Exec(`UPDATE jobs SET state = 'failed', finished_at = ?, error = 'interrupted' WHERE state = 'running'`, toMillis(at))
	if err != nil {
		return 0, fmt.Errorf("failed to close abandoned jobs: %w", err)
	}
	return res.RowsAffected()
}

// Cleanup removes records submitted before cutoff
func (d *Database) Cleanup(cutoff time.Time) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM jobs WHERE submitted_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup history: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

const selectColumns = `
	SELECT id, url, state, submitted_at, started_at, finished_at,
	       title, channel, duration_seconds, path, error
	FROM jobs`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var submitted, started, finished, seconds int64
	err := s.Scan(&rec.JobID, &rec.URL, &rec.State, &submitted, &started, &finished,
		&rec.Title, &rec.Channel, &seconds, &rec.Path, &rec.Error)
	if err != nil {
		return nil, err
	}
	rec.SubmittedAt = fromMillis(submitted)
	rec.StartedAt = fromMillis(started)
	rec.FinishedAt = fromMillis(finished)
	rec.Duration = time.Duration(seconds) * time.Second
	return &rec, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
