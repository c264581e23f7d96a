package driver

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/znelson/joblog/app/dates"
	"github.com/znelson/joblog/app/store"
	"github.com/znelson/joblog/app/store/enums"
)

//go:embed seed.json
var seedData []byte

// seedSpread is the day-by-day count distribution applied to the most
// recent seed jobs on seeding: 3 jobs dated today, 2 yesterday, 2 two days
// ago, 1 three days ago. Purely cosmetic, keeps demo data looking fresh.
var seedSpread = []int{3, 2, 2, 1}

// Demo is the ephemeral demo-mode driver, session-scoped in-memory storage
// seeded from the bundled sample set on first read or explicit reset.
// Everything is gone when the process ends.
type Demo struct {
	mu     sync.Mutex
	seed   []store.Job
	jobs   []store.Job
	meta   map[string]string
	seeded bool
}

// NewDemo creates the demo driver. A nil seed falls back to the bundled
// sample dataset.
func NewDemo(seed []store.Job) *Demo {
	if seed == nil {
		seed = SeedJobs()
	}
	return &Demo{seed: store.CloneJobs(seed), meta: map[string]string{}}
}

// SeedJobs returns the bundled sample dataset.
func SeedJobs() []store.Job {
	var jobs []store.Job
	if err := json.Unmarshal(seedData, &jobs); err != nil {
		// embedded data, can only fail if the bundled file is broken
		log.Printf("[ERROR] failed to parse bundled seed data: %v", err)
		return []store.Job{}
	}
	return jobs
}

// Mode returns the demo mode tag.
func (d *Demo) Mode() enums.Mode { return enums.ModeDemo }

// LoadJobs returns the session's jobs, seeding first if the session has no
// prior data.
func (d *Demo) LoadJobs(context.Context) ([]store.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureSeeded()
	return store.CloneJobs(d.jobs), nil
}

// CreateJob adds a new job, assigning a time-based id when the draft lacks
// one.
func (d *Demo) CreateJob(_ context.Context, draft store.Job) (store.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureSeeded()
	if draft.ID == "" {
		draft.ID = generateID()
	}
	d.jobs = append(d.jobs, draft.Clone())
	return draft, nil
}

// UpdateJob replaces fields on the job matching id, keeping the stored id.
func (d *Demo) UpdateJob(_ context.Context, id store.ID, patch store.Job) (store.Job, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureSeeded()
	for i := range d.jobs {
		if d.jobs[i].ID == id {
			patch.ID = id
			d.jobs[i] = patch.Clone()
			return patch, nil
		}
	}
	return store.Job{}, fmt.Errorf("update %s: %w", id, ErrNotFound)
}

// DeleteJob removes the job matching id, absent ids are fine.
func (d *Demo) DeleteJob(_ context.Context, id store.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureSeeded()
	filtered := d.jobs[:0]
	for _, job := range d.jobs {
		if job.ID != id {
			filtered = append(filtered, job)
		}
	}
	d.jobs = filtered
	return nil
}

// Reset restores the canonical seed data and drops metadata.
func (d *Demo) Reset(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = shiftSeed(store.CloneJobs(d.seed))
	d.meta = map[string]string{}
	d.seeded = true
	return nil
}

// Clear wipes all session data. The next read seeds again, same as a fresh
// session.
func (d *Demo) Clear(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = nil
	d.meta = map[string]string{}
	d.seeded = false
	return nil
}

// ExportData returns the session's current jobs as a bundle.
func (d *Demo) ExportData(ctx context.Context) (store.Bundle, error) {
	jobs, err := d.LoadJobs(ctx)
	if err != nil {
		return store.Bundle{}, err
	}
	return store.Bundle{Version: store.DataVersion, Jobs: jobs}, nil
}

// ImportData replaces the session's jobs with the bundle's.
func (d *Demo) ImportData(_ context.Context, bundle store.Bundle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = store.CloneJobs(bundle.Jobs)
	d.seeded = true
	return nil
}

// GetMeta reads a session metadata value, empty when absent.
func (d *Demo) GetMeta(_ context.Context, key string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.meta[key], nil
}

// SetMeta writes a session metadata value.
func (d *Demo) SetMeta(_ context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.meta[key] = value
	return nil
}

// ensureSeeded populates jobs from the seed when the session has no prior
// data. Callers hold d.mu.
func (d *Demo) ensureSeeded() {
	if d.seeded {
		return
	}
	d.jobs = shiftSeed(store.CloneJobs(d.seed))
	d.seeded = true
}

// shiftSeed date-shifts the sample set so the most recent entries align
// with today in a most-recent-heavy spread, and each shifted job's history
// moves by the same delta to stay internally consistent. Jobs beyond the
// spread and jobs with unparseable dates stay untouched.
func shiftSeed(jobs []store.Job) []store.Job {
	// most recent first, stable for equal dates
	sort.SliceStable(jobs, func(i, j int) bool {
		return dates.ToUTCMillis(jobs[i].DateApplied) > dates.ToUTCMillis(jobs[j].DateApplied)
	})

	today := time.Now()
	idx := 0
	for dayOffset, count := range seedSpread {
		target := today.AddDate(0, 0, -dayOffset).Format("2006-01-02")
		for n := 0; n < count && idx < len(jobs); n++ {
			shiftJob(&jobs[idx], target)
			idx++
		}
	}
	return jobs
}

// shiftJob moves a job's date_applied to target and every history date by
// the same number of days.
func shiftJob(job *store.Job, target string) {
	origMs := dates.ToUTCMillis(job.DateApplied)
	targetMs := dates.ToUTCMillis(target)
	if origMs == 0 || targetMs == 0 {
		return
	}
	deltaDays := int((targetMs - origMs) / (24 * int64(time.Hour/time.Millisecond)))

	job.DateApplied = target
	for i, entry := range job.StatusHistory {
		if t, err := time.ParseInLocation("2006-01-02", entry.Date, time.UTC); err == nil {
			job.StatusHistory[i].Date = t.AddDate(0, 0, deltaDays).Format("2006-01-02")
		}
	}
}
