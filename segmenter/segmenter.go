// Package segmenter splits a long recording into bounded chunks at silences.
package segmenter

import (
	"errors"
	"fmt"

	"github.com/maastricht-university/speaker-timeline/audio"
)

var (
	// ErrEmptyWaveform is returned for a waveform with no samples or no sample rate.
	ErrEmptyWaveform = errors.New("segmenter: empty waveform")
	// ErrInvalidOptions is returned when Options cannot produce bounded chunks.
	ErrInvalidOptions = errors.New("segmenter: invalid options")
)

// Options configures Segment. Lengths are seconds, the threshold is dBFS.
type Options struct {
	MinSilenceLen      float64
	SilenceThresholdDB float64
	MinSegmentLen      float64
	MaxChunkLen        float64
}

func (o Options) validate() error {
	if o.MinSilenceLen <= 0 || o.MaxChunkLen <= 0 || o.MinSegmentLen < 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidOptions, o)
	}
	return nil
}

// Chunk is a contiguous piece of the source waveform.
type Chunk struct {
	Index int
	Start float64 // seconds into the source
	End   float64
	Audio audio.Waveform
}

// Duration returns the chunk length in seconds.
func (c Chunk) Duration() float64 { return c.Audio.Duration() }

// Segment detects silence in w and splits it with Split.
func Segment(w audio.Waveform, opts Options) ([]Chunk, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if w.Len() == 0 || w.SampleRate <= 0 {
		return nil, ErrEmptyWaveform
	}
	silences := audio.DetectSilence(w, opts.MinSilenceLen, opts.SilenceThresholdDB)
	return Split(w, silences, opts), nil
}

type span struct{ a, b int }

// Split cuts w between the given silence intervals. Speech pieces shorter
// than MinSegmentLen are dropped, pieces longer than MaxChunkLen are cut
// into equal parts. When every piece is dropped the whole waveform is
// returned as a single chunk so that no input is ever lost entirely.
func Split(w audio.Waveform, silences []audio.Interval, opts Options) []Chunk {
	total := w.Len()
	minN := int(opts.MinSegmentLen * float64(w.SampleRate))
	maxN := int(opts.MaxChunkLen * float64(w.SampleRate))
	if maxN < 1 {
		maxN = 1
	}

	var pieces []span
	keep := func(a, b int) {
		if b > a && b-a >= minN {
			pieces = append(pieces, span{a, b})
		}
	}
	cursor := 0
	for _, s := range silences {
		i, j := w.Index(s.Start), w.Index(s.End)
		if i < cursor {
			i = cursor
		}
		keep(cursor, i)
		if j > cursor {
			cursor = j
		}
	}
	keep(cursor, total)
	if len(pieces) == 0 {
		pieces = []span{{0, total}}
	}

	var out []Chunk
	emit := func(a, b int) {
		out = append(out, Chunk{
			Index: len(out),
			Start: float64(a) / float64(w.SampleRate),
			End:   float64(b) / float64(w.SampleRate),
			Audio: w.Span(a, b),
		})
	}
	for _, p := range pieces {
		n := p.b - p.a
		if n <= maxN {
			emit(p.a, p.b)
			continue
		}
		parts := (n + maxN - 1) / maxN
		width := (n + parts - 1) / parts
		for a := p.a; a < p.b; a += width {
			emit(a, min(a+width, p.b))
		}
	}
	return out
}
