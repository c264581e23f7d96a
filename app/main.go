package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater"
	"github.com/go-pkgz/repeater/strategy"
	"github.com/umputun/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/znelson/joblog/app/backup"
	"github.com/znelson/joblog/app/dates"
	"github.com/znelson/joblog/app/export"
	"github.com/znelson/joblog/app/history"
	"github.com/znelson/joblog/app/store"
	"github.com/znelson/joblog/app/store/driver"
	"github.com/znelson/joblog/app/store/enums"
	"github.com/znelson/joblog/app/tags"
)

var opts struct {
	Mode   string `long:"mode" env:"JOBLOG_MODE" choice:"demo" choice:"local" choice:"admin" default:"demo" description:"storage mode"`
	DBFile string `long:"db" env:"JOBLOG_DB" default:"joblog.db" description:"sqlite file for local mode"`

	Admin struct {
		URL string `long:"url" env:"URL" description:"remote API base url"`
		Key string `long:"key" env:"KEY" description:"admin API key, forces admin mode"`
	} `group:"admin" namespace:"admin" env-namespace:"JOBLOG_ADMIN"`

	Demo struct {
		SeedFile string `long:"seed-file" env:"SEED_FILE" description:"override bundled demo seed (json or yaml)"`
	} `group:"demo" namespace:"demo" env-namespace:"JOBLOG_DEMO"`

	Backup struct {
		Dir      string `long:"dir" env:"DIR" default:"backups" description:"backup directory"`
		Schedule string `long:"schedule" env:"SCHEDULE" description:"cron spec for scheduled backups, empty runs once"`
	} `group:"backup" namespace:"backup" env-namespace:"JOBLOG_BACKUP"`

	Repeater struct {
		Attempts int           `long:"attempts" env:"ATTEMPTS" default:"1" description:"how many times to repeat failed remote calls"`
		Duration time.Duration `long:"duration" env:"DURATION" default:"1s" description:"initial duration"`
		Factor   float64       `long:"factor" env:"FACTOR" default:"3" description:"backoff factor"`
		Jitter   bool          `long:"jitter" env:"JITTER" description:"jitter"`
	} `group:"repeater" namespace:"repeater" env-namespace:"JOBLOG_REPEATER"`

	// job fields for add/update
	ID         string `long:"id" description:"job id for update/rm"`
	Title      string `long:"title" description:"job title"`
	Company    string `long:"company" description:"company name"`
	Link       string `long:"link" description:"posting url (http/https)"`
	Status     string `long:"status" description:"status: Applied, Interviewing, Offer or Rejected"`
	Date       string `long:"date" description:"date applied, YYYY-MM-DD"`
	Notes      string `long:"notes" description:"free-form notes"`
	Tags       string `long:"tags" description:"comma-separated tags"`
	Rounds     int    `long:"rounds" description:"interview round delta for update, e.g. 1 or -1"`
	RoundDate  string `long:"round-date" description:"date for an added interview round"`
	OfferDate  string `long:"offer-date" description:"date the offer was received"`
	RejectDate string `long:"reject-date" description:"date of the rejection"`

	File string `short:"f" long:"file" description:"file for export/import, .json or .csv"`

	LogEnabled bool   `long:"log" env:"JOBLOG_LOG" description:"enable logging"`
	LogFile    string `long:"log-file" env:"JOBLOG_LOG_FILE" description:"log to rotating file instead of stdout"`
	Dbg        bool   `long:"dbg" env:"JOBLOG_DEBUG" description:"debug mode"`
}

var revision = "unknown"

func main() {
	fmt.Printf("joblog %s\n", revision)

	p := flags.NewParser(&opts, flags.Default)
	p.Usage = "[OPTIONS] command (list|add|update|rm|export|import|reset|clear|backup)"
	args, err := p.Parse()
	if err != nil {
		os.Exit(2)
	}
	setupLogs(opts.LogEnabled, opts.Dbg, opts.LogFile)

	defer func() {
		if x := recover(); x != nil {
			log.Printf("[WARN] run time panic:\n%v", x)
			panic(x)
		}
	}()

	if len(args) != 1 {
		fmt.Println("expected exactly one command: list, add, update, rm, export, import, reset, clear or backup")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	signals(cancel) // handle SIGQUIT and SIGTERM

	st, err := makeStore()
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	if err := run(ctx, st, args[0]); err != nil {
		log.Fatalf("[ERROR] command %s failed: %v", args[0], err)
	}
}

// makeStore resolves the mode and builds the store bound to its driver. An
// admin key forces admin mode regardless of the mode flag, matching how a
// credentialed entry URL behaves in other clients.
func makeStore() (*store.Store, error) {
	mode, err := enums.ParseMode(opts.Mode)
	if err != nil {
		return nil, err
	}
	if opts.Admin.Key != "" {
		mode = enums.ModeAdmin
	}

	cfg := driver.Config{Mode: mode, APIURL: opts.Admin.URL, APIKey: opts.Admin.Key, DBPath: opts.DBFile}
	if mode == enums.ModeDemo && opts.Demo.SeedFile != "" {
		seed, err := driver.LoadSeedFile(opts.Demo.SeedFile)
		if err != nil {
			return nil, err
		}
		cfg.Seed = seed
	}

	drv, err := driver.New(cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("[DEBUG] store created in %s mode", mode)
	return store.New(drv), nil
}

func run(ctx context.Context, st *store.Store, command string) error {
	switch command {
	case "list":
		return cmdList(ctx, st)
	case "add":
		return cmdAdd(ctx, st)
	case "update":
		return cmdUpdate(ctx, st)
	case "rm":
		if opts.ID == "" {
			return fmt.Errorf("rm requires --id")
		}
		return withRetry(ctx, st, func() error { return st.DeleteJob(ctx, store.ID(opts.ID)) })
	case "export":
		return cmdExport(ctx, st)
	case "import":
		return cmdImport(ctx, st)
	case "reset":
		return withRetry(ctx, st, func() error { _, err := st.Reset(ctx); return err })
	case "clear":
		return withRetry(ctx, st, func() error { return st.Clear(ctx) })
	case "backup":
		return cmdBackup(ctx, st)
	}
	return fmt.Errorf("unknown command %q", command)
}

func cmdList(ctx context.Context, st *store.Store) error {
	var jobs []store.Job
	err := withRetry(ctx, st, func() error {
		var e error
		jobs, e = st.Load(ctx)
		return e
	})
	if err != nil {
		return err
	}
	store.SortJobs(jobs)

	fmt.Printf("%-14s %-26s %-18s %-12s %-10s %-7s %s\n", "ID", "TITLE", "COMPANY", "STATUS", "APPLIED", "ROUNDS", "TAGS")
	for _, job := range jobs {
		fmt.Printf("%-14s %-26s %-18s %-12s %-10s %-7d %s\n", job.ID, truncate(job.Title, 26), truncate(job.Company, 18),
			job.Status, job.DateApplied, store.InterviewRounds(job.StatusHistory), job.Tags)
		if link, ok := store.SafeLink(job.Link); ok {
			fmt.Printf("               %s\n", link)
		}
	}
	fmt.Printf("%d job(s), %s mode\n", len(jobs), st.Mode())

	if last, err := st.GetMeta(ctx, backup.LastBackupKey); err == nil && last != "" {
		fmt.Printf("last backup: %s\n", last)
	}
	return nil
}

func cmdAdd(ctx context.Context, st *store.Store) error {
	if opts.Title == "" || opts.Company == "" {
		return fmt.Errorf("add requires --title and --company")
	}

	status := enums.StatusApplied
	if opts.Status != "" {
		var err error
		if status, err = enums.ParseStatus(opts.Status); err != nil {
			return err
		}
	}
	date, err := resolveDate(opts.Date, "date applied", st.Mode())
	if err != nil {
		return err
	}

	draft := store.Job{
		Title:         opts.Title,
		Company:       opts.Company,
		Link:          opts.Link,
		Status:        status,
		DateApplied:   date,
		Notes:         opts.Notes,
		Tags:          tags.Join(tags.Parse(opts.Tags)),
		StatusHistory: []store.StatusEntry{{Status: status, Date: date}},
	}

	var created store.Job
	err = withRetry(ctx, st, func() error {
		var e error
		created, e = st.CreateJob(ctx, draft)
		return e
	})
	if err != nil {
		return err
	}
	fmt.Printf("created %s at %s (%s)\n", created.Title, created.Company, created.ID)
	return nil
}

func cmdUpdate(ctx context.Context, st *store.Store) error {
	if opts.ID == "" {
		return fmt.Errorf("update requires --id")
	}
	if _, err := st.Load(ctx); err != nil {
		return err
	}

	// latest driver-backed record, never an edited copy
	var current store.Job
	found := false
	for _, job := range st.GetSnapshot() {
		if job.ID == store.ID(opts.ID) {
			current, found = job, true
			break
		}
	}
	if !found {
		return fmt.Errorf("job %s: %w", opts.ID, driver.ErrNotFound)
	}

	patch, err := buildPatch(current, st.Mode())
	if err != nil {
		return err
	}

	var updated store.Job
	err = withRetry(ctx, st, func() error {
		var e error
		updated, e = st.UpdateJob(ctx, current.ID, patch)
		return e
	})
	if err != nil {
		return err
	}
	fmt.Printf("updated %s at %s, status %s, %d round(s)\n", updated.Title, updated.Company,
		updated.Status, store.InterviewRounds(updated.StatusHistory))
	return nil
}

// buildPatch layers the provided flags over the current record and
// reconciles the status history with the planned changes.
func buildPatch(current store.Job, mode enums.Mode) (store.Job, error) {
	patch := current.Clone()
	if opts.Title != "" {
		patch.Title = opts.Title
	}
	if opts.Company != "" {
		patch.Company = opts.Company
	}
	if opts.Link != "" {
		patch.Link = opts.Link
	}
	if opts.Notes != "" {
		patch.Notes = opts.Notes
	}
	if opts.Tags != "" {
		patch.Tags = tags.Join(tags.Parse(opts.Tags))
	}
	if opts.Status != "" {
		status, err := enums.ParseStatus(opts.Status)
		if err != nil {
			return store.Job{}, err
		}
		patch.Status = status
	}
	if opts.Date != "" {
		date, err := resolveDate(opts.Date, "date applied", mode)
		if err != nil {
			return store.Job{}, err
		}
		patch.DateApplied = date
	}

	next, err := history.Apply(current.StatusHistory, history.Change{
		Status:     patch.Status,
		PrevStatus: current.Status,
		RoundDelta: opts.Rounds,
		RoundDate:  orToday(opts.RoundDate),
		OfferDate:  orToday(opts.OfferDate),
		RejectDate: orToday(opts.RejectDate),
		Privileged: mode == enums.ModeAdmin,
	})
	if err != nil {
		return store.Job{}, err
	}
	patch.StatusHistory = next
	return patch, nil
}

func cmdExport(ctx context.Context, st *store.Store) error {
	if opts.File == "" {
		return fmt.Errorf("export requires --file")
	}

	var bundle store.Bundle
	err := withRetry(ctx, st, func() error {
		var e error
		bundle, e = st.ExportData(ctx)
		return e
	})
	if err != nil {
		return err
	}

	if strings.HasSuffix(strings.ToLower(opts.File), ".csv") {
		jobs := store.CloneJobs(bundle.Jobs)
		store.SortJobs(jobs)
		fh, err := os.Create(opts.File) //nolint:gosec // path comes from the user's own cli invocation
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.File, err)
		}
		if err := export.WriteCSV(fh, jobs); err != nil {
			_ = fh.Close()
			return err
		}
		if err := fh.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", opts.File, err)
		}
		fmt.Printf("exported %d job(s) to %s\n", len(jobs), opts.File)
		return nil
	}

	if err := export.WriteBundle(opts.File, bundle); err != nil {
		return err
	}
	fmt.Printf("exported %d job(s) to %s\n", len(bundle.Jobs), opts.File)
	return nil
}

func cmdImport(ctx context.Context, st *store.Store) error {
	if opts.File == "" {
		return fmt.Errorf("import requires --file")
	}
	bundle, err := export.ReadBundle(opts.File)
	if err != nil {
		return err
	}
	jobs, err := st.ImportData(ctx, bundle)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d job(s) from %s\n", len(jobs), opts.File)
	return nil
}

func cmdBackup(ctx context.Context, st *store.Store) error {
	b := &backup.Backup{Exporter: st, Dir: opts.Backup.Dir, Schedule: opts.Backup.Schedule}
	if opts.Backup.Schedule == "" {
		return b.Once(ctx)
	}
	return b.Run(ctx)
}

// resolveDate normalizes a user-supplied date, empty means today. Admin
// mode falls back to today on anything invalid; other modes are blocked.
func resolveDate(value, label string, mode enums.Mode) (string, error) {
	if value == "" {
		return dates.TodayLocal(), nil
	}
	if normalized := dates.Normalize(value); normalized != "" {
		return normalized, nil
	}
	if mode == enums.ModeAdmin {
		return dates.TodayLocal(), nil
	}
	return "", fmt.Errorf("%s must be a valid date (YYYY-MM-DD), got %q", label, value)
}

// orToday substitutes today for unset optional date flags.
func orToday(value string) string {
	if value == "" {
		return dates.TodayLocal()
	}
	return value
}

// withRetry wraps remote-mode calls in the configured repeater. Local and
// demo calls run once; retrying is a caller concern and never happens
// inside the store itself.
func withRetry(ctx context.Context, st *store.Store, fun func() error) error {
	if st.Mode() != enums.ModeAdmin || opts.Repeater.Attempts <= 1 {
		return fun()
	}
	rptr := repeater.New(&strategy.Backoff{Repeats: opts.Repeater.Attempts, Duration: opts.Repeater.Duration,
		Factor: opts.Repeater.Factor, Jitter: opts.Repeater.Jitter})
	return rptr.Do(ctx, fun, driver.ErrUnsupported, driver.ErrNotFound)
}

func truncate(str string, n int) string {
	if len(str) <= n {
		return str
	}
	return str[:n-3] + "..."
}

func setupLogs(enabled, dbg bool, logFile string) {
	if !enabled {
		log.Setup(log.Out(io.Discard), log.Err(io.Discard))
		return
	}

	logOpts := []log.Option{log.Msec}
	if dbg {
		logOpts = []log.Option{log.Debug, log.Msec, log.CallerFunc, log.CallerPkg, log.CallerFile}
	}
	if logFile != "" {
		rotated := &lumberjack.Logger{Filename: logFile, MaxSize: 10, MaxBackups: 3, MaxAge: 30}
		logOpts = append(logOpts, log.Out(rotated), log.Err(rotated))
	}
	log.Setup(logOpts...)
}

func signals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	go func() {
		stacktrace := make([]byte, 8192)
		for sig := range sigChan {
			if sig == syscall.SIGQUIT { // catch SIGQUIT and print stack traces
				length := runtime.Stack(stacktrace, true)
				fmt.Println(string(stacktrace[:length]))
				continue
			}
			cancel() // terminate on SIGTERM
		}
	}()
	signal.Notify(sigChan, syscall.SIGQUIT, syscall.SIGTERM)
}
