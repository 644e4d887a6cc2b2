// Package timeline turns per-chunk, per-turn recognizer output into one
// word-level transcript on a single session clock.
package timeline

import (
	"sort"
)

// Word is a recognized word with times relative to its turn's audio.
type Word struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Turn is a diarizer turn after speaker resolution. Start and End are
// relative to the chunk.
type Turn struct {
	Speaker string // global speaker id
	Label   string // diarizer's local label
	Start   float64
	End     float64
	Words   []Word
}

// Chunk is everything merged for one audio chunk.
type Chunk struct {
	Source   string  // chunk identifier written to WordToken.Audio
	Duration float64 // seconds of audio in the chunk
	Turns    []Turn  // in turn-start order
}

// WordToken is one word on the session clock.
type WordToken struct {
	Speaker string  `json:"speaker"`
	Word    string  `json:"word"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Audio   string  `json:"audio"`
}

// MergeChunk places the words of c on the session clock. offset is the
// session time at which c starts; the returned offset is where the next chunk
// starts and always equals offset + c.Duration, whatever the turns held.
func MergeChunk(c Chunk, offset float64) ([]WordToken, float64) {
	var out []WordToken
	for _, t := range c.Turns {
		base := offset + t.Start
		for _, w := range t.Words {
			out = append(out, WordToken{
				Speaker: t.Speaker,
				Word:    w.Text,
				Start:   base + w.Start,
				End:     base + w.End,
				Audio:   c.Source,
			})
		}
	}
	return out, offset + c.Duration
}

// Merger accumulates chunks in order and owns the running offset.
type Merger struct {
	offset float64
	chunks int
	tokens []WordToken
}

// Offset returns the session time at which the next chunk will start.
func (m *Merger) Offset() float64 { return m.offset }

// Chunks returns how many chunks have been merged.
func (m *Merger) Chunks() int { return m.chunks }

// Merge appends the words of c and advances the offset by c.Duration.
// It returns the tokens added for c.
func (m *Merger) Merge(c Chunk) []WordToken {
	toks, next := MergeChunk(c, m.offset)
	m.tokens = append(m.tokens, toks...)
	m.offset = next
	m.chunks++
	return toks
}

// Tokens returns a copy of all merged tokens ordered by start time.
// Chunk and turn order already yield this order; the stable sort only
// reorders tokens from overlapping turns.
func (m *Merger) Tokens() []WordToken {
	out := make([]WordToken, len(m.tokens))
	copy(out, m.tokens)
	SortByStart(out)
	return out
}

// SortByStart orders tokens by start time, keeping the order of equal starts.
func SortByStart(tokens []WordToken) {
	sort.SliceStable(tokens, func(i, j int) bool { return tokens[i].Start < tokens[j].Start })
}
