// Package store implements the storage layer of joblog: the job record
// schema with boundary validation, and the Store orchestrating an in-memory
// working set on top of an interchangeable backing driver.
package store

import (
	"context"
	"fmt"
	"sync"

	log "github.com/go-pkgz/lgr"

	"github.com/znelson/joblog/app/store/enums"
)

// Driver defines the capability set every backing store variant implements.
// Callers never see which variant is active beyond the Mode tag. Drivers are
// authoritative on ids; operations unsupported by a variant fail with
// driver.ErrUnsupported.
type Driver interface {
	LoadJobs(ctx context.Context) ([]Job, error)
	CreateJob(ctx context.Context, draft Job) (Job, error)
	UpdateJob(ctx context.Context, id ID, patch Job) (Job, error)
	DeleteJob(ctx context.Context, id ID) error
	Reset(ctx context.Context) error
	Clear(ctx context.Context) error
	ExportData(ctx context.Context) (Bundle, error)
	ImportData(ctx context.Context, bundle Bundle) error
	GetMeta(ctx context.Context, key string) (string, error)
	SetMeta(ctx context.Context, key, value string) error
	Mode() enums.Mode
}

// Listener receives a fresh snapshot after every successful mutation or
// reload. There is no replay of the current value on subscribe; callers
// needing the initial value use Load or GetSnapshot.
type Listener func(jobs []Job)

// Store owns the in-memory working set of jobs for one driver. It lazily
// initializes from the driver on first use, serializes driver-touching
// operations, and commits to memory only after the driver call succeeds, so
// a failed mutation leaves prior state untouched. A store instance is bound
// to one driver for its lifetime; switching modes means a new instance.
type Store struct {
	driver Driver

	opMu sync.Mutex // serializes initialization and mutations

	mu          sync.RWMutex // guards jobs, initialized, subscribers
	jobs        []Job
	initialized bool
	subscribers map[int]Listener
	nextSubID   int
}

// New creates a store bound to a driver. No driver call happens until the
// first Load or mutation.
func New(driver Driver) *Store {
	return &Store{driver: driver, subscribers: map[int]Listener{}}
}

// Mode returns the active driver's mode tag.
func (s *Store) Mode() enums.Mode { return s.driver.Mode() }

// Load ensures the working set is initialized from the driver and returns a
// deep copy of it.
func (s *Store) Load(ctx context.Context) ([]Job, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

// GetSnapshot returns a deep copy of the current working set without
// touching the driver. Before the first load it is empty.
func (s *Store) GetSnapshot() []Job {
	return s.snapshot()
}

// Subscribe registers a listener called with a fresh snapshot after every
// successful mutation or reload. It returns the unsubscribe function.
func (s *Store) Subscribe(listener Listener) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = listener
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// Reload discards the working set and re-reads it from the driver.
func (s *Store) Reload(ctx context.Context) ([]Job, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.loadFromDriver(ctx); err != nil {
		return nil, err
	}
	s.notify()
	return s.snapshot(), nil
}

// CreateJob persists a new job through the driver and inserts the driver's
// authoritative record into the working set.
func (s *Store) CreateJob(ctx context.Context, draft Job) (Job, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.ensureInitialized(ctx); err != nil {
		return Job{}, err
	}

	created, err := s.driver.CreateJob(ctx, draft.Clone())
	if err != nil {
		return Job{}, err
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, created.Clone())
	s.mu.Unlock()
	s.notify()
	return created.Clone(), nil
}

// UpdateJob persists changed fields through the driver and replaces the
// matching record in the working set. Driver failures, including not-found,
// propagate unmodified and leave the working set untouched.
func (s *Store) UpdateJob(ctx context.Context, id ID, patch Job) (Job, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.ensureInitialized(ctx); err != nil {
		return Job{}, err
	}

	updated, err := s.driver.UpdateJob(ctx, id, patch.Clone())
	if err != nil {
		return Job{}, err
	}

	s.mu.Lock()
	for i := range s.jobs {
		if s.jobs[i].ID == updated.ID {
			s.jobs[i] = updated.Clone()
			break
		}
	}
	s.mu.Unlock()
	s.notify()
	return updated.Clone(), nil
}

// DeleteJob removes a job through the driver and drops it from the working
// set. Deleting an absent id is not an error.
func (s *Store) DeleteJob(ctx context.Context, id ID) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := s.ensureInitialized(ctx); err != nil {
		return err
	}

	if err := s.driver.DeleteJob(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	filtered := s.jobs[:0]
	for _, job := range s.jobs {
		if job.ID != id {
			filtered = append(filtered, job)
		}
	}
	s.jobs = filtered
	s.mu.Unlock()
	s.notify()
	return nil
}

// Reset restores the driver's canonical state (seed for demo, empty for
// local) and reloads the working set from it.
func (s *Store) Reset(ctx context.Context) ([]Job, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.driver.Reset(ctx); err != nil {
		return nil, err
	}
	if err := s.loadFromDriver(ctx); err != nil {
		return nil, err
	}
	s.notify()
	return s.snapshot(), nil
}

// Clear wipes all records through the driver and empties the working set.
func (s *Store) Clear(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.driver.Clear(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.jobs = []Job{}
	s.initialized = true
	s.mu.Unlock()
	s.notify()
	return nil
}

// ExportData returns the driver's current authoritative state as a
// validated bundle. The remote driver re-fetches so exports are never stale.
func (s *Store) ExportData(ctx context.Context) (Bundle, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	bundle, err := s.driver.ExportData(ctx)
	if err != nil {
		return Bundle{}, err
	}
	if err := ValidateBundle(bundle); err != nil {
		return Bundle{}, fmt.Errorf("export produced invalid bundle: %w", err)
	}
	return bundle, nil
}

// ImportData validates a bundle, replaces all driver records with its jobs,
// and swaps the working set to match. Drivers that forbid import (remote)
// fail before any state changes.
func (s *Store) ImportData(ctx context.Context, bundle Bundle) ([]Job, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := ValidateBundle(bundle); err != nil {
		return nil, err
	}
	if err := s.driver.ImportData(ctx, bundle); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.jobs = CloneJobs(bundle.Jobs)
	s.initialized = true
	s.mu.Unlock()
	s.notify()
	return s.snapshot(), nil
}

// GetMeta reads a free-form per-mode metadata value, empty when untracked.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	return s.driver.GetMeta(ctx, key)
}

// SetMeta writes a free-form per-mode metadata value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	return s.driver.SetMeta(ctx, key, value)
}

// ensureInitialized performs the lazy first load. Callers hold opMu, which
// makes initialization single-flight: a second caller waits on the same
// in-flight load instead of issuing another.
func (s *Store) ensureInitialized(ctx context.Context) error {
	s.mu.RLock()
	done := s.initialized
	s.mu.RUnlock()
	if done {
		return nil
	}
	if err := s.loadFromDriver(ctx); err != nil {
		return err
	}
	s.notify()
	return nil
}

// loadFromDriver reads and validates the full job list from the driver.
// Invalid driver responses never enter the working set.
func (s *Store) loadFromDriver(ctx context.Context) error {
	jobs, err := s.driver.LoadJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load jobs from %s driver: %w", s.driver.Mode(), err)
	}
	if err := ValidateJobs(jobs); err != nil {
		return err
	}

	s.mu.Lock()
	s.jobs = CloneJobs(jobs)
	s.initialized = true
	s.mu.Unlock()
	return nil
}

func (s *Store) snapshot() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return CloneJobs(s.jobs)
}

// notify calls every subscriber with a fresh snapshot. Listeners run outside
// the state lock so they may call back into the store.
func (s *Store) notify() {
	snapshot := s.snapshot()
	s.mu.RLock()
	listeners := make([]Listener, 0, len(s.subscribers))
	for _, l := range s.subscribers {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if x := recover(); x != nil {
					log.Printf("[WARN] subscriber panicked: %v", x)
				}
			}()
			l(snapshot)
		}()
	}
}
