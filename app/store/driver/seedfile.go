package driver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/znelson/joblog/app/store"
)

// LoadSeedFile reads a user-supplied demo seed, either a JSON array of jobs
// or the YAML equivalent, selected by file extension. The records go
// through the same validation as any other boundary.
func LoadSeedFile(path string) ([]store.Job, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the user's own cli invocation
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yml" || ext == ".yaml" {
		// yaml goes through a generic decode and back to json so the job
		// wire tags apply
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse yaml seed %s: %w", path, err)
		}
		if data, err = json.Marshal(raw); err != nil {
			return nil, fmt.Errorf("failed to convert yaml seed %s: %w", path, err)
		}
	}

	var jobs []store.Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("failed to parse seed %s: %w", path, err)
	}
	if err := store.ValidateJobs(jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}
