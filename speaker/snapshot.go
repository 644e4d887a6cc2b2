package speaker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// SnapshotVersion is the current on-disk snapshot format.
const SnapshotVersion = 1

// Snapshot is the serialised form of a Registry. A registry lives for one
// run; snapshots exist only when a caller asks for one.
type Snapshot struct {
	Version  int             `json:"version" msgpack:"version"`
	Speakers []SpeakerRecord `json:"speakers" msgpack:"speakers"`
}

// SpeakerRecord is one speaker of a Snapshot with its embedding history in
// resolution order.
type SpeakerRecord struct {
	ID         string      `json:"id" msgpack:"id"`
	Embeddings [][]float64 `json:"embeddings" msgpack:"embeddings"`
}

// Snapshot returns a deep copy of the registry state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := Snapshot{Version: SnapshotVersion, Speakers: make([]SpeakerRecord, len(r.speakers))}
	for i, s := range r.speakers {
		rec := SpeakerRecord{ID: s.ID, Embeddings: make([][]float64, len(s.History))}
		for j, e := range s.History {
			rec.Embeddings[j] = e.Clone()
		}
		snap.Speakers[i] = rec
	}
	return snap
}

// Restore rebuilds a registry from snap. New speakers continue the id
// sequence after the restored ones.
func Restore(snap Snapshot) (*Registry, error) {
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("registry snapshot: unsupported version %d", snap.Version)
	}
	r := NewRegistry()
	for i, rec := range snap.Speakers {
		if want := "S" + strconv.Itoa(i+1); rec.ID != want {
			return nil, fmt.Errorf("registry snapshot: speaker %d has id %q, want %q", i, rec.ID, want)
		}
		if len(rec.Embeddings) == 0 {
			return nil, fmt.Errorf("registry snapshot: speaker %s has no embeddings", rec.ID)
		}
		s := &Speaker{ID: rec.ID}
		for _, e := range rec.Embeddings {
			if r.dim == 0 {
				r.dim = len(e)
			}
			if len(e) != r.dim {
				return nil, fmt.Errorf("registry snapshot: speaker %s: %w", rec.ID, ErrDimensionMismatch)
			}
			if _, err := norm(e); err != nil {
				return nil, fmt.Errorf("registry snapshot: speaker %s: %w", rec.ID, err)
			}
			s.History = append(s.History, Embedding(e).Clone())
		}
		r.speakers = append(r.speakers, s)
		r.byID[s.ID] = s
	}
	return r, nil
}

// SaveSnapshot writes snap to path atomically. Files ending in .msgpack are
// written as MessagePack, anything else as indented JSON.
func SaveSnapshot(path string, snap Snapshot) error {
	var (
		data []byte
		err  error
	)
	if isMsgpack(path) {
		data, err = msgpack.Marshal(snap)
	} else {
		data, err = json.MarshalIndent(snap, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal registry snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write registry snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write registry snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	if isMsgpack(path) {
		err = msgpack.Unmarshal(data, &snap)
	} else {
		err = json.Unmarshal(data, &snap)
	}
	if err != nil {
		return snap, fmt.Errorf("parse registry snapshot %s: %w", filepath.Base(path), err)
	}
	return snap, nil
}

func isMsgpack(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".msgpack" || ext == ".mp"
}
