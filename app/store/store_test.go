package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/znelson/joblog/app/store/enums"
)

// fakeDriver is an in-memory Driver with per-call failure injection.
type fakeDriver struct {
	jobs []Job
	meta map[string]string

	loadCalls int
	failNext  error // returned by the next driver call, then cleared
}

func newFakeDriver(jobs ...Job) *fakeDriver {
	return &fakeDriver{jobs: CloneJobs(jobs), meta: map[string]string{}}
}

func (f *fakeDriver) fail() error {
	err := f.failNext
	f.failNext = nil
	return err
}

func (f *fakeDriver) LoadJobs(context.Context) ([]Job, error) {
	f.loadCalls++
	if err := f.fail(); err != nil {
		return nil, err
	}
	return CloneJobs(f.jobs), nil
}

func (f *fakeDriver) CreateJob(_ context.Context, draft Job) (Job, error) {
	if err := f.fail(); err != nil {
		return Job{}, err
	}
	draft.ID = ID("100")
	f.jobs = append(f.jobs, draft.Clone())
	return draft, nil
}

func (f *fakeDriver) UpdateJob(_ context.Context, id ID, patch Job) (Job, error) {
	if err := f.fail(); err != nil {
		return Job{}, err
	}
	for i := range f.jobs {
		if f.jobs[i].ID == id {
			patch.ID = id
			f.jobs[i] = patch.Clone()
			return patch, nil
		}
	}
	return Job{}, errors.New("no such job")
}

func (f *fakeDriver) DeleteJob(_ context.Context, id ID) error {
	if err := f.fail(); err != nil {
		return err
	}
	kept := f.jobs[:0]
	for _, job := range f.jobs {
		if job.ID != id {
			kept = append(kept, job)
		}
	}
	f.jobs = kept
	return nil
}

func (f *fakeDriver) Reset(context.Context) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.jobs = []Job{validJob()}
	return nil
}

func (f *fakeDriver) Clear(context.Context) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.jobs = nil
	return nil
}

func (f *fakeDriver) ExportData(context.Context) (Bundle, error) {
	if err := f.fail(); err != nil {
		return Bundle{}, err
	}
	return Bundle{Version: DataVersion, Jobs: CloneJobs(f.jobs)}, nil
}

func (f *fakeDriver) ImportData(_ context.Context, bundle Bundle) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.jobs = CloneJobs(bundle.Jobs)
	return nil
}

func (f *fakeDriver) GetMeta(_ context.Context, key string) (string, error) {
	return f.meta[key], nil
}

func (f *fakeDriver) SetMeta(_ context.Context, key, value string) error {
	f.meta[key] = value
	return nil
}

func (f *fakeDriver) Mode() enums.Mode { return enums.ModeDemo }

func twoJobs() []Job {
	a := validJob()
	b := validJob()
	b.ID, b.Title, b.DateApplied = "2", "sre", "2025-05-03"
	b.StatusHistory = []StatusEntry{{Status: enums.StatusApplied, Date: "2025-05-03"}}
	return []Job{a, b}
}

func TestStore_LoadLazy(t *testing.T) {
	driver := newFakeDriver(twoJobs()...)
	s := New(driver)

	assert.Equal(t, 0, driver.loadCalls, "no driver call before first use")
	assert.Empty(t, s.GetSnapshot())

	jobs, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.Equal(t, 1, driver.loadCalls)

	_, err = s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, driver.loadCalls, "second load served from memory")
}

func TestStore_LoadRejectsInvalidDriverData(t *testing.T) {
	bad := validJob()
	bad.DateApplied = "yesterday"
	s := New(newFakeDriver(bad))

	_, err := s.Load(context.Background())
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, s.GetSnapshot(), "invalid data never enters the working set")
}

func TestStore_SnapshotIsolation(t *testing.T) {
	s := New(newFakeDriver(twoJobs()...))
	jobs, err := s.Load(context.Background())
	require.NoError(t, err)

	jobs[0].Title = "mutated"
	jobs[0].StatusHistory[0].Status = enums.StatusOffer

	fresh := s.GetSnapshot()
	assert.Equal(t, "dev", fresh[0].Title)
	assert.Equal(t, enums.StatusApplied, fresh[0].StatusHistory[0].Status)
}

func TestStore_CreateJob(t *testing.T) {
	s := New(newFakeDriver(twoJobs()...))
	draft := validJob()
	draft.ID, draft.Title = "", "platform"

	created, err := s.CreateJob(context.Background(), draft)
	require.NoError(t, err)
	assert.Equal(t, ID("100"), created.ID, "driver assigns the id")
	assert.Len(t, s.GetSnapshot(), 3)
}

func TestStore_MutationFailureLeavesStateUntouched(t *testing.T) {
	driver := newFakeDriver(twoJobs()...)
	s := New(driver)
	before, err := s.Load(context.Background())
	require.NoError(t, err)

	boom := errors.New("disk full")

	driver.failNext = boom
	_, err = s.CreateJob(context.Background(), validJob())
	require.ErrorIs(t, err, boom)
	assert.True(t, EqualJobs(before, s.GetSnapshot()))

	driver.failNext = boom
	patch := validJob()
	patch.Title = "changed"
	_, err = s.UpdateJob(context.Background(), "1", patch)
	require.ErrorIs(t, err, boom)
	assert.True(t, EqualJobs(before, s.GetSnapshot()))

	driver.failNext = boom
	require.ErrorIs(t, s.DeleteJob(context.Background(), "1"), boom)
	assert.True(t, EqualJobs(before, s.GetSnapshot()))

	driver.failNext = boom
	_, err = s.ImportData(context.Background(), Bundle{Version: DataVersion, Jobs: twoJobs()})
	require.ErrorIs(t, err, boom)
	assert.True(t, EqualJobs(before, s.GetSnapshot()))
}

func TestStore_UpdateJob(t *testing.T) {
	s := New(newFakeDriver(twoJobs()...))
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	patch := validJob()
	patch.Title = "senior dev"
	updated, err := s.UpdateJob(context.Background(), "1", patch)
	require.NoError(t, err)
	assert.Equal(t, "senior dev", updated.Title)

	snap := s.GetSnapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "senior dev", snap[0].Title)
	assert.Equal(t, "sre", snap[1].Title)
}

func TestStore_DeleteJob(t *testing.T) {
	s := New(newFakeDriver(twoJobs()...))
	require.NoError(t, s.DeleteJob(context.Background(), "1"))

	snap := s.GetSnapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, ID("2"), snap[0].ID)

	// absent id is not an error
	require.NoError(t, s.DeleteJob(context.Background(), "999"))
	assert.Len(t, s.GetSnapshot(), 1)
}

func TestStore_Subscribe(t *testing.T) {
	s := New(newFakeDriver(twoJobs()...))

	var calls [][]Job
	unsubscribe := s.Subscribe(func(jobs []Job) { calls = append(calls, jobs) })
	assert.Empty(t, calls, "no replay on subscribe")

	_, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, calls, 1, "initial load notifies")
	assert.Len(t, calls[0], 2)

	require.NoError(t, s.DeleteJob(context.Background(), "1"))
	require.Len(t, calls, 2)
	assert.Len(t, calls[1], 1)

	unsubscribe()
	require.NoError(t, s.DeleteJob(context.Background(), "2"))
	assert.Len(t, calls, 2, "no calls after unsubscribe")
}

func TestStore_SubscriberPanicRecovered(t *testing.T) {
	s := New(newFakeDriver(twoJobs()...))
	s.Subscribe(func([]Job) { panic("listener bug") })

	var got []Job
	s.Subscribe(func(jobs []Job) { got = jobs })

	_, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, 2, "panicking listener does not starve the rest")
}

func TestStore_ResetAndClear(t *testing.T) {
	driver := newFakeDriver(twoJobs()...)
	s := New(driver)
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	jobs, err := s.Reset(context.Background())
	require.NoError(t, err)
	assert.Len(t, jobs, 1, "reset restores the driver's canonical state")

	require.NoError(t, s.Clear(context.Background()))
	assert.Empty(t, s.GetSnapshot())
	assert.Equal(t, 2, driver.loadCalls, "clear does not trigger a reload")
}

func TestStore_ExportImportRoundTrip(t *testing.T) {
	source := New(newFakeDriver(twoJobs()...))
	bundle, err := source.ExportData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DataVersion, bundle.Version)
	require.Len(t, bundle.Jobs, 2)

	target := New(newFakeDriver())
	imported, err := target.ImportData(context.Background(), bundle)
	require.NoError(t, err)
	assert.True(t, EqualJobs(bundle.Jobs, imported))

	reexported, err := target.ExportData(context.Background())
	require.NoError(t, err)
	assert.True(t, EqualJobs(bundle.Jobs, reexported.Jobs))
}

func TestStore_ImportRejectsBadBundle(t *testing.T) {
	driver := newFakeDriver(twoJobs()...)
	s := New(driver)
	before, err := s.Load(context.Background())
	require.NoError(t, err)

	_, err = s.ImportData(context.Background(), Bundle{Version: 7, Jobs: twoJobs()})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, EqualJobs(before, s.GetSnapshot()), "driver never touched on invalid bundle")
	assert.Len(t, driver.jobs, 2)
}

func TestStore_Meta(t *testing.T) {
	s := New(newFakeDriver())
	ctx := context.Background()

	val, err := s.GetMeta(ctx, "last_backup")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, s.SetMeta(ctx, "last_backup", "2025-05-12T10:00:00Z"))
	val, err = s.GetMeta(ctx, "last_backup")
	require.NoError(t, err)
	assert.Equal(t, "2025-05-12T10:00:00Z", val)
}
