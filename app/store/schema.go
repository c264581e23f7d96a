package store

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/znelson/joblog/app/dates"
)

// DataVersion is the current export bundle schema version. Bundles carrying
// any other version are rejected on import.
const DataVersion = 1

//go:embed schema.json
var bundleSchemaData []byte

// BundleSchema returns the JSON schema describing the export bundle format,
// generated by app/store/internal/schema.
func BundleSchema() []byte { return bundleSchemaData }

// Bundle is the versioned export/import payload.
type Bundle struct {
	Version int   `json:"version" jsonschema:"enum=1"`
	Jobs    []Job `json:"jobs"`
}

// Issue is a single machine-readable validation violation.
type Issue struct {
	Path   string // json-ish path to the offending field, e.g. jobs[2].date_applied
	Reason string
}

// ValidationError reports schema violations for data crossing a boundary:
// driver responses entering the store, import files, and export bundles.
type ValidationError struct {
	Issues []Issue
}

// Error joins all violations into a single message.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = fmt.Sprintf("%s: %s", issue.Path, issue.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// ValidateJob checks a single job record: id present, strict date shape for
// date_applied and every history entry. Status values are not restricted to
// the known set, matching the wire schema.
func ValidateJob(job Job) error {
	issues := validateJobAt(job, "")
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// ValidateJobs checks a full job list, e.g. a driver load response.
func ValidateJobs(jobs []Job) error {
	var issues []Issue
	for i, job := range jobs {
		issues = append(issues, validateJobAt(job, fmt.Sprintf("jobs[%d].", i))...)
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// ValidateBundle checks an export bundle: exact version match plus every job.
func ValidateBundle(bundle Bundle) error {
	var issues []Issue
	if bundle.Version != DataVersion {
		issues = append(issues, Issue{Path: "version",
			Reason: fmt.Sprintf("must be %d, got %d", DataVersion, bundle.Version)})
	}
	for i, job := range bundle.Jobs {
		issues = append(issues, validateJobAt(job, fmt.Sprintf("jobs[%d].", i))...)
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validateJobAt(job Job, prefix string) []Issue {
	var issues []Issue
	if job.ID == "" {
		issues = append(issues, Issue{Path: prefix + "id", Reason: "required"})
	}
	if !dates.IsValid(job.DateApplied) {
		issues = append(issues, Issue{Path: prefix + "date_applied",
			Reason: fmt.Sprintf("must be YYYY-MM-DD, got %q", job.DateApplied)})
	}
	for i, entry := range job.StatusHistory {
		if !dates.IsValid(entry.Date) {
			issues = append(issues, Issue{Path: fmt.Sprintf("%sstatus_history[%d].date", prefix, i),
				Reason: fmt.Sprintf("must be YYYY-MM-DD, got %q", entry.Date)})
		}
	}
	return issues
}
