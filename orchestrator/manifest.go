package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ManifestName is the file SplitRecording writes next to the chunks.
const ManifestName = "chunks.json"

// ManifestEntry places one chunk file in the source recording. Silence
// between chunks is not exported, so session time and source time drift
// apart by the silence skipped so far.
type ManifestEntry struct {
	File  string  `json:"file"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// WriteManifest stores entries as dir/chunks.json.
func WriteManifest(dir string, entries []ManifestEntry) error {
	if entries == nil {
		entries = []ManifestEntry{}
	}
	if err := writeJSON(filepath.Join(dir, ManifestName), entries); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest returns the entries of dir/chunks.json keyed by file name.
// A missing manifest yields nil and no error.
func ReadManifest(dir string) (map[string]ManifestEntry, error) {
	b, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var entries []ManifestEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	out := make(map[string]ManifestEntry, len(entries))
	for _, e := range entries {
		out[e.File] = e
	}
	return out, nil
}
