// Package driver provides the three interchangeable backing stores for the
// job tracker: a remote API client (admin), a persistent on-device sqlite
// store (local), and an ephemeral seeded in-memory store (demo). All three
// satisfy the store.Driver capability set.
package driver

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/znelson/joblog/app/store"
	"github.com/znelson/joblog/app/store/enums"
)

// sentinel errors shared by all driver variants
var (
	// ErrNotFound means the update target does not exist in the backing
	// store. Deletes are idempotent and never return it.
	ErrNotFound = errors.New("job not found")

	// ErrUnsupported means the operation is not valid for the active
	// driver, e.g. import or clear against the remote API.
	ErrUnsupported = errors.New("operation not supported for this mode")
)

// Config selects and parameterizes a driver variant. Mode and credential
// are passed explicitly at construction so tests can build arbitrary
// configurations without ambient environment lookups.
type Config struct {
	Mode enums.Mode

	// admin mode
	APIURL string
	APIKey string

	// local mode
	DBPath string

	// demo mode, nil seed falls back to the bundled sample set
	Seed []store.Job
}

// New constructs the driver for the configured mode.
func New(cfg Config) (store.Driver, error) {
	switch cfg.Mode {
	case enums.ModeAdmin:
		if cfg.APIURL == "" {
			return nil, fmt.Errorf("admin mode requires an API URL")
		}
		return NewRemote(cfg.APIURL, cfg.APIKey), nil
	case enums.ModeLocal:
		return NewLocal(cfg.DBPath)
	case enums.ModeDemo:
		return NewDemo(cfg.Seed), nil
	}
	return nil, fmt.Errorf("unknown mode %q", cfg.Mode)
}

// generateID makes a time-based numeric id with a random tie-breaker, so
// two creations in the same millisecond can't collide client-side. Numeric
// ids keep the id-descending sort tie-break meaningful.
func generateID() store.ID {
	n := time.Now().UnixMilli() + rand.Int64N(1000) //nolint:gosec // not used for security
	return store.ID(strconv.FormatInt(n, 10))
}
