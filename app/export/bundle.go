package export

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/znelson/joblog/app/store"
)

// WriteBundle validates and writes a bundle as an indented JSON file.
func WriteBundle(path string, bundle store.Bundle) error {
	if err := store.ValidateBundle(bundle); err != nil {
		return err
	}
	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write bundle to %s: %w", path, err)
	}
	return nil
}

// ReadBundle parses and validates a bundle file. Wrong version or malformed
// records fail with a ValidationError before anything reaches the store.
func ReadBundle(path string) (store.Bundle, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the user's own cli invocation
	if err != nil {
		return store.Bundle{}, fmt.Errorf("failed to read bundle from %s: %w", path, err)
	}
	var bundle store.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return store.Bundle{}, fmt.Errorf("failed to parse bundle %s: %w", path, err)
	}
	if err := store.ValidateBundle(bundle); err != nil {
		return store.Bundle{}, err
	}
	return bundle, nil
}
