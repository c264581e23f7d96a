package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/znelson/joblog/app/store"
	"github.com/znelson/joblog/app/store/enums"
)

// Remote is the admin-mode driver talking to the external job service over
// HTTP. It keeps no local persistence; the service is the source of truth.
// The admin credential travels both as headers and as a query parameter
// because historical clients use either form.
type Remote struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRemote creates the admin-mode driver for the given service URL.
func NewRemote(baseURL, apiKey string) *Remote {
	return &Remote{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Mode returns the admin mode tag.
func (r *Remote) Mode() enums.Mode { return enums.ModeAdmin }

// LoadJobs fetches the full job list from the service.
func (r *Remote) LoadJobs(ctx context.Context) ([]store.Job, error) {
	return r.fetchJobs(ctx)
}

// CreateJob posts a new job; the service assigns the id.
func (r *Remote) CreateJob(ctx context.Context, draft store.Job) (store.Job, error) {
	var created store.Job
	if err := r.call(ctx, http.MethodPost, "/jobs/", draft, &created); err != nil {
		return store.Job{}, err
	}
	return created, nil
}

// UpdateJob replaces the job matching id on the service.
func (r *Remote) UpdateJob(ctx context.Context, id store.ID, patch store.Job) (store.Job, error) {
	var updated store.Job
	if err := r.call(ctx, http.MethodPut, "/jobs/"+url.PathEscape(string(id)), patch, &updated); err != nil {
		return store.Job{}, err
	}
	return updated, nil
}

// DeleteJob removes the job matching id; a 404 from the service is treated
// as success to keep deletes idempotent.
func (r *Remote) DeleteJob(ctx context.Context, id store.ID) error {
	err := r.call(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(string(id)), nil, nil)
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return err
	}
	return nil
}

// Reset is a no-op, there is no seed concept server-side.
func (r *Remote) Reset(context.Context) error { return nil }

// Clear is not exposed for the remote service by design.
func (r *Remote) Clear(context.Context) error {
	return fmt.Errorf("clear in admin mode: %w", ErrUnsupported)
}

// ExportData re-fetches from the service so the exported view always
// matches the server, never a stale local copy.
func (r *Remote) ExportData(ctx context.Context) (store.Bundle, error) {
	jobs, err := r.fetchJobs(ctx)
	if err != nil {
		return store.Bundle{}, err
	}
	return store.Bundle{Version: store.DataVersion, Jobs: jobs}, nil
}

// ImportData always fails, admin mode is not a valid import target.
func (r *Remote) ImportData(context.Context, store.Bundle) error {
	return fmt.Errorf("import in admin mode: %w", ErrUnsupported)
}

// GetMeta returns empty, metadata is not tracked server-side.
func (r *Remote) GetMeta(context.Context, string) (string, error) { return "", nil }

// SetMeta is a no-op, metadata is not tracked server-side.
func (r *Remote) SetMeta(context.Context, string, string) error { return nil }

func (r *Remote) fetchJobs(ctx context.Context) ([]store.Job, error) {
	var jobs []store.Job
	if err := r.call(ctx, http.MethodGet, "/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	if jobs == nil {
		jobs = []store.Job{}
	}
	return jobs, nil
}

// statusError carries a non-2xx response code so callers can special-case
// not-found while still seeing the response body in the message.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func isStatus(err error, code int) bool {
	var se *statusError
	return errors.As(err, &se) && se.code == code
}

// call performs a single JSON request against the service.
func (r *Remote) call(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.apiKey != "" {
		// both header and query forms, historical clients differ
		req.Header.Set("X-Admin-Key", r.apiKey)
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
		q := req.URL.Query()
		q.Set("key", r.apiKey)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound && method == http.MethodPut {
		return fmt.Errorf("update %s: %w", path, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response from %s %s: %w", method, path, err)
		}
	}
	return nil
}
