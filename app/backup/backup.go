// Package backup writes periodic JSON snapshots of the store to a
// directory and records the last-backup timestamp in the store's metadata.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/robfig/cron/v3"

	"github.com/znelson/joblog/app/export"
	"github.com/znelson/joblog/app/store"
)

// LastBackupKey is the metadata key holding the RFC3339 timestamp of the
// most recent successful backup.
const LastBackupKey = "last_backup"

// Exporter is the subset of the store the backup worker needs.
type Exporter interface {
	ExportData(ctx context.Context) (store.Bundle, error)
	SetMeta(ctx context.Context, key, value string) error
}

// Backup runs scheduled bundle exports.
type Backup struct {
	Exporter Exporter
	Dir      string
	Schedule string // standard cron spec, e.g. "0 3 * * *"
}

// Run blocks until the context is done, firing a backup on the schedule.
func (b *Backup) Run(ctx context.Context) error {
	if err := os.MkdirAll(b.Dir, 0o700); err != nil {
		return fmt.Errorf("failed to make backup dir %s: %w", b.Dir, err)
	}

	c := cron.New()
	id, err := c.AddFunc(b.Schedule, func() {
		if err := b.Once(ctx); err != nil {
			log.Printf("[WARN] scheduled backup failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to parse backup schedule %q: %w", b.Schedule, err)
	}
	log.Printf("[INFO] backup scheduled %q to %s, next run %v", b.Schedule, b.Dir, c.Entry(id).Schedule.Next(time.Now()))

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Once performs a single backup: export, write the dated file, record the
// timestamp.
func (b *Backup) Once(ctx context.Context) error {
	bundle, err := b.Exporter.ExportData(ctx)
	if err != nil {
		return fmt.Errorf("failed to export for backup: %w", err)
	}

	now := time.Now()
	path := filepath.Join(b.Dir, fmt.Sprintf("joblog-backup-%s.json", now.Format("2006-01-02")))
	if err := export.WriteBundle(path, bundle); err != nil {
		return err
	}

	if err := b.Exporter.SetMeta(ctx, LastBackupKey, now.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record backup timestamp: %w", err)
	}
	log.Printf("[INFO] backup saved %d jobs to %s", len(bundle.Jobs), path)
	return nil
}
