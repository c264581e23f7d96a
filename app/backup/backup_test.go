package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/znelson/joblog/app/export"
	"github.com/znelson/joblog/app/store"
	"github.com/znelson/joblog/app/store/enums"
)

type fakeExporter struct {
	bundle  store.Bundle
	err     error
	meta    map[string]string
	exports int
}

func (f *fakeExporter) ExportData(context.Context) (store.Bundle, error) {
	f.exports++
	if f.err != nil {
		return store.Bundle{}, f.err
	}
	return f.bundle, nil
}

func (f *fakeExporter) SetMeta(_ context.Context, key, value string) error {
	if f.meta == nil {
		f.meta = map[string]string{}
	}
	f.meta[key] = value
	return nil
}

func goodBundle() store.Bundle {
	return store.Bundle{Version: store.DataVersion, Jobs: []store.Job{
		{ID: "1", Title: "dev", Company: "acme", Status: enums.StatusApplied,
			DateApplied: "2025-05-01",
			StatusHistory: []store.StatusEntry{
				{Status: enums.StatusApplied, Date: "2025-05-01"},
			}},
	}}
}

func TestBackup_Once(t *testing.T) {
	dir := t.TempDir()
	exp := &fakeExporter{bundle: goodBundle()}
	b := &Backup{Exporter: exp, Dir: dir}

	require.NoError(t, b.Once(context.Background()))

	path := filepath.Join(dir, fmt.Sprintf("joblog-backup-%s.json", time.Now().Format("2006-01-02")))
	bundle, err := export.ReadBundle(path)
	require.NoError(t, err)
	assert.True(t, store.EqualJobs(goodBundle().Jobs, bundle.Jobs))

	stamp, ok := exp.meta[LastBackupKey]
	require.True(t, ok, "timestamp recorded")
	_, err = time.Parse(time.RFC3339, stamp)
	assert.NoError(t, err)
}

func TestBackup_OnceExportFailure(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("driver down")
	exp := &fakeExporter{err: boom}
	b := &Backup{Exporter: exp, Dir: dir}

	require.ErrorIs(t, b.Once(context.Background()), boom)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no file written on failure")
	assert.Empty(t, exp.meta, "no timestamp on failure")
}

func TestBackup_OnceInvalidBundle(t *testing.T) {
	bad := goodBundle()
	bad.Version = 9
	b := &Backup{Exporter: &fakeExporter{bundle: bad}, Dir: t.TempDir()}

	err := b.Once(context.Background())
	var verr *store.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestBackup_RunBadSchedule(t *testing.T) {
	b := &Backup{Exporter: &fakeExporter{bundle: goodBundle()}, Dir: t.TempDir(), Schedule: "not cron"}
	err := b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule")
}

func TestBackup_RunFiresOnSchedule(t *testing.T) {
	dir := t.TempDir()
	exp := &fakeExporter{bundle: goodBundle()}
	b := &Backup{Exporter: exp, Dir: dir, Schedule: "@every 100ms"}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, b.Run(ctx))

	assert.GreaterOrEqual(t, exp.exports, 1, "at least one scheduled export fired")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestBackup_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &Backup{Exporter: &fakeExporter{bundle: goodBundle()}, Dir: t.TempDir(), Schedule: "0 3 * * *"}

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop on cancelled context")
	}
}
