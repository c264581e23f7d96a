package driver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/znelson/joblog/app/store"
	"github.com/znelson/joblog/app/store/enums"
)

// Local is the persistent on-device driver, a single sqlite file holding the
// jobs table plus a free-form metadata table. It survives restarts and is
// private to the device. Concurrent writers from separate processes are not
// coordinated beyond sqlite's own file locking.
type Local struct {
	db *sqlx.DB
}

// dbJob is the row shape for the jobs table. Status history is stored as a
// JSON text column to keep the append-only log opaque to the schema.
type dbJob struct {
	ID          string `db:"id"`
	Title       string `db:"title"`
	Company     string `db:"company"`
	Link        string `db:"link"`
	Status      string `db:"status"`
	DateApplied string `db:"date_applied"`
	Notes       string `db:"notes"`
	Tags        string `db:"tags"`
	History     string `db:"status_history"`
	SortIndex   int    `db:"sort_index"`
}

// NewLocal opens (creating if needed) the sqlite file and initializes the
// schema.
func NewLocal(dbPath string) (*Local, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to set WAL mode: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	res := &Local{db: db}
	if err := res.initialize(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("%w (also failed to close db: %v)", err, closeErr)
		}
		return nil, err
	}
	return res, nil
}

func (l *Local) initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			company TEXT NOT NULL,
			link TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			date_applied TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '',
			status_history TEXT NOT NULL DEFAULT '[]',
			sort_index INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, query := range queries {
		if _, err := l.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Mode returns the local mode tag.
func (l *Local) Mode() enums.Mode { return enums.ModeLocal }

// LoadJobs returns all persisted jobs in insertion order.
func (l *Local) LoadJobs(ctx context.Context) ([]store.Job, error) {
	var rows []dbJob
	err := l.db.SelectContext(ctx, &rows,
		`SELECT id, title, company, link, status, date_applied, notes, tags, status_history, sort_index
		 FROM jobs ORDER BY sort_index`)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}

	jobs := make([]store.Job, 0, len(rows))
	for _, row := range rows {
		job, err := row.toJob()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// CreateJob persists a new job, assigning a time-based id if the draft
// lacks one.
func (l *Local) CreateJob(ctx context.Context, draft store.Job) (store.Job, error) {
	if draft.ID == "" {
		draft.ID = generateID()
	}
	var next sql.NullInt64
	if err := l.db.GetContext(ctx, &next, `SELECT MAX(sort_index)+1 FROM jobs`); err != nil {
		return store.Job{}, fmt.Errorf("failed to pick sort index: %w", err)
	}

	row, err := toDBJob(draft, int(next.Int64))
	if err != nil {
		return store.Job{}, err
	}
	_, err = l.db.NamedExecContext(ctx,
		`INSERT INTO jobs (id, title, company, link, status, date_applied, notes, tags, status_history, sort_index)
		 VALUES (:id, :title, :company, :link, :status, :date_applied, :notes, :tags, :status_history, :sort_index)`, row)
	if err != nil {
		return store.Job{}, fmt.Errorf("failed to insert job %s: %w", draft.ID, err)
	}
	return draft, nil
}

// UpdateJob replaces all fields of the job matching id, keeping the stored
// id authoritative.
func (l *Local) UpdateJob(ctx context.Context, id store.ID, patch store.Job) (store.Job, error) {
	patch.ID = id
	row, err := toDBJob(patch, 0)
	if err != nil {
		return store.Job{}, err
	}
	res, err := l.db.NamedExecContext(ctx,
		`UPDATE jobs SET title=:title, company=:company, link=:link, status=:status,
		 date_applied=:date_applied, notes=:notes, tags=:tags, status_history=:status_history
		 WHERE id=:id`, row)
	if err != nil {
		return store.Job{}, fmt.Errorf("failed to update job %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return store.Job{}, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return store.Job{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	return patch, nil
}

// DeleteJob removes the job matching id; deleting an absent id is fine.
func (l *Local) DeleteJob(ctx context.Context, id store.ID) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM jobs WHERE id=?`, string(id)); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	return nil
}

// Reset in local mode clears user data to empty, there is no seed to
// restore. Metadata survives a reset.
func (l *Local) Reset(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("failed to reset jobs: %w", err)
	}
	return nil
}

// Clear wipes jobs and metadata fully.
func (l *Local) Clear(ctx context.Context) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("failed to clear jobs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM meta`); err != nil {
		return fmt.Errorf("failed to clear meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clear: %w", err)
	}
	return nil
}

// ExportData returns the current persisted state as a bundle.
func (l *Local) ExportData(ctx context.Context) (store.Bundle, error) {
	jobs, err := l.LoadJobs(ctx)
	if err != nil {
		return store.Bundle{}, err
	}
	return store.Bundle{Version: store.DataVersion, Jobs: jobs}, nil
}

// ImportData replaces all persisted records with the bundle's jobs in a
// single transaction.
func (l *Local) ImportData(ctx context.Context, bundle store.Bundle) error {
	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("failed to drop existing jobs: %w", err)
	}
	for idx, job := range bundle.Jobs {
		row, err := toDBJob(job, idx)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx,
			`INSERT INTO jobs (id, title, company, link, status, date_applied, notes, tags, status_history, sort_index)
			 VALUES (:id, :title, :company, :link, :status, :date_applied, :notes, :tags, :status_history, :sort_index)`, row)
		if err != nil {
			return fmt.Errorf("failed to import job %s: %w", job.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

// GetMeta reads a metadata value, empty string when the key is absent.
func (l *Local) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := l.db.GetContext(ctx, &value, `SELECT value FROM meta WHERE key=?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read meta %q: %w", key, err)
	}
	return value, nil
}

// SetMeta upserts a metadata value.
func (l *Local) SetMeta(ctx context.Context, key, value string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write meta %q: %w", key, err)
	}
	return nil
}

// Close closes the database connection.
func (l *Local) Close() error {
	return l.db.Close()
}

func toDBJob(job store.Job, sortIndex int) (dbJob, error) {
	history := job.StatusHistory
	if history == nil {
		history = []store.StatusEntry{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return dbJob{}, fmt.Errorf("failed to encode history for job %s: %w", job.ID, err)
	}
	return dbJob{
		ID:          string(job.ID),
		Title:       job.Title,
		Company:     job.Company,
		Link:        job.Link,
		Status:      string(job.Status),
		DateApplied: job.DateApplied,
		Notes:       job.Notes,
		Tags:        job.Tags,
		History:     string(data),
		SortIndex:   sortIndex,
	}, nil
}

func (r dbJob) toJob() (store.Job, error) {
	var history []store.StatusEntry
	if err := json.Unmarshal([]byte(r.History), &history); err != nil {
		return store.Job{}, fmt.Errorf("failed to decode history for job %s: %w", r.ID, err)
	}
	if history == nil {
		history = []store.StatusEntry{}
	}
	return store.Job{
		ID:            store.ID(r.ID),
		Title:         r.Title,
		Company:       r.Company,
		Link:          r.Link,
		Status:        enums.Status(r.Status),
		DateApplied:   r.DateApplied,
		Notes:         r.Notes,
		Tags:          r.Tags,
		StatusHistory: history,
	}, nil
}
