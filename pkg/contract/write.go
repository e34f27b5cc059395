package contract

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFile writes the pact to dir using the canonical file name. When a
// pact file for the same parties already exists and overwrite is false, the
// documents are merged: interactions with the same description and provider
// states are replaced, the rest are kept.
func WriteFile(pact *Pact, dir string, overwrite bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating pact directory: %w", err)
	}

	path := filepath.Join(dir, pact.FileName())
	out := pact

	if !overwrite {
		existing, err := LoadFile(path)
		switch {
		case err == nil:
			merged, err := existing.Merge(pact)
			if err != nil {
				return "", fmt.Errorf("merging with existing pact %s: %w", path, err)
			}
			out = merged
		case errors.Is(err, fs.ErrNotExist):
			// First write for this pair.
		default:
			return "", err
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding pact: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing pact file: %w", err)
	}
	return path, nil
}
