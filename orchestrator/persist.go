package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/maastricht-university/speaker-timeline/speaker"
	"github.com/maastricht-university/speaker-timeline/timeline"
)

// SpeakerSummary is the per-speaker part of a session report.
type SpeakerSummary struct {
	ID         string  `json:"id"`
	Embeddings int     `json:"embeddings"`
	Words      int     `json:"words"`
	Share      float64 `json:"speaking_share"`
}

// Report is written next to timeline.json for every session.
type Report struct {
	SessionID     string           `json:"session_id"`
	RunID         string           `json:"run_id"`
	ChunkDir      string           `json:"chunk_dir"`
	GeneratedAt   time.Time        `json:"generated_at"`
	Duration      float64          `json:"duration"`
	Chunks        []ChunkInfo      `json:"chunks"`
	Speakers      []SpeakerSummary `json:"speakers"`
	SkippedTurns  int              `json:"skipped_turns"`
	SkippedChunks int              `json:"skipped_chunks"`
	Failures      []TurnFailure    `json:"failures"`
	Stats         timeline.Stats   `json:"stats"`
}

// Persisted lists the files written for a session.
type Persisted struct {
	SessionID    string
	Dir          string
	TimelinePath string
	ReportPath   string
}

// mkSessionDir creates session_<timestamp>_<run> under outputsRoot. It
// fails rather than reuse an existing directory.
func mkSessionDir(outputsRoot, runID string) (string, string, error) {
	ts := time.Now().Format("20060102-150405")
	sid := "session_" + ts
	if len(runID) > 8 {
		runID = runID[:8]
	}
	if runID != "" {
		sid += "_" + runID
	}
	if err := os.MkdirAll(outputsRoot, 0o755); err != nil {
		return "", "", err
	}
	dir := filepath.Join(outputsRoot, sid)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", "", err
	}
	return sid, dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// NewReport summarises res for the session report.
func NewReport(res *Result, chunkDir string) Report {
	st := timeline.Aggregate(res.Tokens)
	rep := Report{
		RunID:         res.SessionID,
		ChunkDir:      chunkDir,
		GeneratedAt:   time.Now(),
		Duration:      res.Offset,
		Chunks:        res.Chunks,
		SkippedTurns:  res.SkippedTurns,
		SkippedChunks: res.SkippedChunks,
		Failures:      res.Failures,
		Stats:         st,
	}
	if rep.Failures == nil {
		rep.Failures = []TurnFailure{}
	}
	var speakers []speaker.Speaker
	if res.Registry != nil {
		speakers = res.Registry.Speakers()
	}
	for _, s := range speakers {
		rep.Speakers = append(rep.Speakers, SpeakerSummary{
			ID:         s.ID,
			Embeddings: len(s.History),
			Words:      st.Words[s.ID],
			Share:      st.SpeakingShare[s.ID],
		})
	}
	return rep
}

// Persist writes timeline.json and report.json into a fresh
// session_<timestamp>_<run> directory under outputsRoot.
func Persist(outputsRoot, chunkDir string, res *Result) (Persisted, error) {
	sid, outDir, err := mkSessionDir(outputsRoot, res.SessionID)
	if err != nil {
		return Persisted{}, fmt.Errorf("session dir: %w", err)
	}
	out := Persisted{
		SessionID:    sid,
		Dir:          outDir,
		TimelinePath: filepath.Join(outDir, "timeline.json"),
		ReportPath:   filepath.Join(outDir, "report.json"),
	}
	if err := timeline.WriteFile(out.TimelinePath, res.Tokens); err != nil {
		return Persisted{}, err
	}
	rep := NewReport(res, chunkDir)
	rep.SessionID = sid
	if err := writeJSON(out.ReportPath, rep); err != nil {
		return Persisted{}, fmt.Errorf("write report: %w", err)
	}
	return out, nil
}
