// Package enums provides the closed enumeration types shared across the
// storage layer: the application status lifecycle and the operating mode
// selecting which driver backs the store.
package enums

import "fmt"

// Status is the current lifecycle state of a tracked application. The wire
// and storage format is the capitalized string form, matching the values
// history entries carry. History entries themselves are not restricted to
// this set, so unknown statuses parse-fail but still round-trip as strings.
type Status string

// known application statuses
const (
	StatusApplied      Status = "Applied"
	StatusInterviewing Status = "Interviewing"
	StatusOffer        Status = "Offer"
	StatusRejected     Status = "Rejected"
)

// AllStatuses lists the known statuses in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusApplied, StatusInterviewing, StatusOffer, StatusRejected}
}

// ParseStatus converts a string to a known Status, failing on anything
// outside the closed set.
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// Terminal reports if the status ends the normal application flow.
func (s Status) Terminal() bool {
	return s == StatusOffer || s == StatusRejected
}

// String returns the wire form of the status.
func (s Status) String() string { return string(s) }

// Mode selects the active storage driver. Exactly one mode is active per
// store instance; switching modes means constructing a new store.
type Mode string

// operating modes
const (
	ModeDemo  Mode = "demo"  // ephemeral, seeded, session-scoped
	ModeLocal Mode = "local" // persistent on-device sqlite
	ModeAdmin Mode = "admin" // remote API with admin credential
)

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDemo, ModeLocal, ModeAdmin:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid mode %q", s)
}

// String returns the mode name.
func (m Mode) String() string { return string(m) }
