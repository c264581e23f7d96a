// Package history implements the status-history reconciliation performed on
// every job save: it merges a status change, a planned interview-round
// delta, and terminal-status dating into the job's existing append-only log
// without duplicating terminal entries or losing data.
package history

import (
	"fmt"

	"github.com/znelson/joblog/app/dates"
	"github.com/znelson/joblog/app/store"
	"github.com/znelson/joblog/app/store/enums"
)

// Change describes the edit being saved against a job. PrevStatus is the
// job's current persisted status; Status is the proposed one. RoundDelta is
// the planned interview-round change captured during editing; a positive
// delta honors at most one round per save.
type Change struct {
	Status     enums.Status
	PrevStatus enums.Status

	RoundDelta int
	RoundDate  string // date for a newly added round

	OfferDate  string // date for a newly reached Offer
	RejectDate string // date for a newly reached Rejected

	// Privileged callers (admin context) may proceed with an invalid date,
	// defaulting to today. Non-privileged callers are blocked instead.
	Privileged bool
}

// Apply merges the change into the job's last-known persisted history and
// returns the next history. The input must be the driver's latest copy, not
// a possibly-stale client one, to avoid regressions from concurrent edits.
// The input slice is never mutated. On a date validation failure nothing is
// written and the error carries the offending field.
func Apply(current []store.StatusEntry, ch Change) ([]store.StatusEntry, error) {
	next := make([]store.StatusEntry, len(current))
	copy(next, current)

	// a status change to anything outside the specially-handled set gets a
	// plain dated entry; Interviewing and terminal statuses are covered by
	// the round delta and terminal steps below
	if ch.Status != ch.PrevStatus && !special(ch.Status) {
		next = append(next, store.StatusEntry{Status: ch.Status, Date: dates.TodayLocal()})
	}

	if ch.RoundDelta > 0 {
		// at most one round added per save
		date, err := ensureDate(ch.RoundDate, "interview round date", ch.Privileged)
		if err != nil {
			return nil, err
		}
		next = append(next, store.StatusEntry{Status: enums.StatusInterviewing, Date: date})
	} else if ch.RoundDelta < 0 {
		next = removeRounds(next, -ch.RoundDelta)
	}

	// terminal statuses get exactly one dated entry, and only if none exists
	// yet in either the original or the history as mutated so far, so
	// repeated saves never stack duplicates
	if ch.Status.Terminal() {
		if !hasStatus(current, ch.Status) && !hasStatus(next, ch.Status) {
			raw, label := ch.OfferDate, "offer date"
			if ch.Status == enums.StatusRejected {
				raw, label = ch.RejectDate, "rejection date"
			}
			date, err := ensureDate(raw, label, ch.Privileged)
			if err != nil {
				return nil, err
			}
			next = append(next, store.StatusEntry{Status: ch.Status, Date: date})
		}
	}

	return next, nil
}

// special reports statuses whose history entries are managed by dedicated
// reconciliation steps rather than the generic status-change append.
func special(s enums.Status) bool {
	return s == enums.StatusInterviewing || s.Terminal()
}

func hasStatus(history []store.StatusEntry, status enums.Status) bool {
	for _, e := range history {
		if e.Status == status {
			return true
		}
	}
	return false
}

// removeRounds drops up to n most-recently-appended Interviewing entries,
// scanning from the end. Fewer available than requested is not an error.
func removeRounds(history []store.StatusEntry, n int) []store.StatusEntry {
	for ; n > 0; n-- {
		idx := -1
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Status == enums.StatusInterviewing {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		history = append(history[:idx], history[idx+1:]...)
	}
	return history
}

// ensureDate normalizes a caller-supplied date. Privileged callers fall
// back to today on invalid input; everyone else gets a validation failure
// and the save is aborted with no partial write.
func ensureDate(value, label string, privileged bool) (string, error) {
	if normalized := dates.Normalize(value); normalized != "" {
		return normalized, nil
	}
	if privileged {
		return dates.TodayLocal(), nil
	}
	return "", &store.ValidationError{Issues: []store.Issue{{
		Path:   label,
		Reason: fmt.Sprintf("must be a valid date (YYYY-MM-DD), got %q", value),
	}}}
}
