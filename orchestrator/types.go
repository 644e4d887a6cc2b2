package orchestrator

import (
	"context"
	"errors"

	"github.com/maastricht-university/speaker-timeline/audio"
	"github.com/maastricht-university/speaker-timeline/clients"
	"github.com/maastricht-university/speaker-timeline/speaker"
	"github.com/maastricht-university/speaker-timeline/timeline"
)

// ErrNoChunks is returned when the chunk directory holds no audio files.
var ErrNoChunks = errors.New("no audio chunks found")

type Diarizer interface {
	Diarize(ctx context.Context, w audio.Waveform) ([]clients.Turn, error)
}
type Embedder interface {
	Embed(ctx context.Context, w audio.Waveform) (speaker.Embedding, error)
}
type Recognizer interface {
	Recognize(ctx context.Context, w audio.Waveform) ([]timeline.Word, error)
}

// Models bundles the external collaborators a Pipeline drives.
type Models struct {
	Diarizer   Diarizer
	Embedder   Embedder
	Recognizer Recognizer
}

// Failure stages recorded in TurnFailure.Stage.
const (
	StageDiarize   = "diarize"
	StageSlice     = "slice"
	StageEmbed     = "embed"
	StageRecognize = "recognize"
	StageResolve   = "resolve"
)

// TurnFailure records a turn (or, with Turn == -1, a whole chunk's
// diarization) that produced no words.
type TurnFailure struct {
	Chunk string  `json:"chunk"`
	Turn  int     `json:"turn"`
	Label string  `json:"label,omitempty"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Stage string  `json:"stage"`
	Err   string  `json:"error"`
}

// ChunkInfo describes how one chunk was merged.
type ChunkInfo struct {
	Index    int     `json:"index"`
	Source   string  `json:"source"`
	Offset   float64 `json:"offset"` // session time at which the chunk starts
	Duration float64 `json:"duration"`
	Turns    int     `json:"turns"`
	Merged   int     `json:"merged"`
	Words    int     `json:"words"`

	// SourceStart is where the chunk begins in the split recording, known
	// only when the chunk directory carries a manifest.
	SourceStart *float64 `json:"source_start,omitempty"`
}

// Result is the outcome of one Run.
type Result struct {
	SessionID     string
	Tokens        []timeline.WordToken
	Chunks        []ChunkInfo
	Failures      []TurnFailure
	SkippedTurns  int
	SkippedChunks int // chunks whose diarization failed
	Offset        float64
	Registry      *speaker.Registry
}

// fetched holds the external model output for one chunk, produced ahead of
// the merge step.
type fetched struct {
	path    string
	wave    audio.Waveform
	turns   []fetchedTurn
	diarErr error
	err     error // the chunk could not be loaded
}

type fetchedTurn struct {
	turn  clients.Turn
	emb   speaker.Embedding
	words []timeline.Word
	stage string
	err   error
}
