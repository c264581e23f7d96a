package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/znelson/joblog/app/dates"
	"github.com/znelson/joblog/app/store/enums"
)

// ID is an opaque job identifier, stable across updates and assigned by the
// driver at creation time. The remote service issues numeric ids while local
// drivers issue time-based numeric strings, so the wire form accepts both a
// JSON number and a JSON string. Numeric ids marshal back as numbers to keep
// the remote contract intact.
type ID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *ID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("failed to decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("failed to decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as JSON numbers and anything else as a string.
func (id ID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Numeric returns the id as int64, 0 for non-numeric ids. Used as the sort
// tie-breaker so newer time-based ids win between equal dates.
func (id ID) Numeric() int64 {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// StatusEntry is a single dated event in a job's status history.
type StatusEntry struct {
	Status enums.Status `json:"status"`
	Date   string       `json:"date"`
}

// Job is a tracked application record. Tags stay in their delimited string
// form as the stable storage format; StatusHistory is an append-only log of
// dated status events distinct from the current Status field.
type Job struct {
	ID            ID            `json:"id"`
	Title         string        `json:"title"`
	Company       string        `json:"company"`
	Link          string        `json:"link,omitempty"`
	Status        enums.Status  `json:"status"`
	DateApplied   string        `json:"date_applied"`
	Notes         string        `json:"notes,omitempty"`
	Tags          string        `json:"tags,omitempty"`
	StatusHistory []StatusEntry `json:"status_history"`
}

// Clone returns a deep, independent copy of the job.
func (j Job) Clone() Job {
	res := j
	if j.StatusHistory != nil {
		res.StatusHistory = make([]StatusEntry, len(j.StatusHistory))
		copy(res.StatusHistory, j.StatusHistory)
	}
	return res
}

// CloneJobs deep-copies a job list. Callers holding the result can never
// mutate store-owned state.
func CloneJobs(jobs []Job) []Job {
	if jobs == nil {
		return []Job{}
	}
	res := make([]Job, len(jobs))
	for i, j := range jobs {
		res[i] = j.Clone()
	}
	return res
}

// EqualJobs compares two job lists deeply, tolerating nil vs empty history.
func EqualJobs(a, b []Job) bool {
	norm := func(jobs []Job) []Job {
		res := CloneJobs(jobs)
		for i := range res {
			if res[i].StatusHistory == nil {
				res[i].StatusHistory = []StatusEntry{}
			}
		}
		return res
	}
	ab, err := json.Marshal(norm(a))
	if err != nil {
		return false
	}
	bb, err := json.Marshal(norm(b))
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// SortJobs orders jobs by date applied descending, then numeric id
// descending. Jobs with malformed dates compare as instant 0 and sink to
// the end.
func SortJobs(jobs []Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		di, dj := dates.ToUTCMillis(jobs[i].DateApplied), dates.ToUTCMillis(jobs[j].DateApplied)
		if di != dj {
			return di > dj
		}
		return jobs[i].ID.Numeric() > jobs[j].ID.Numeric()
	})
}

// InterviewRounds counts Interviewing entries in a history log.
func InterviewRounds(history []StatusEntry) int {
	count := 0
	for _, e := range history {
		if e.Status == enums.StatusInterviewing {
			count++
		}
	}
	return count
}

// SafeLink validates a job link as http/https before it is surfaced
// anywhere clickable. Links are untrusted input; anything else is dropped.
func SafeLink(link string) (string, bool) {
	if link == "" {
		return "", false
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}
