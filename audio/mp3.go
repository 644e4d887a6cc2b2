package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	shine "github.com/braheezy/shine-mp3/pkg/mp3"
	"github.com/hajimehoshi/go-mp3"
)

// shineFrame is the number of samples per channel in one MPEG-1 Layer III frame.
const shineFrame = 1152

// DecodeMP3 decodes an MP3 stream to mono at its native rate.
// go-mp3 always yields 16-bit little-endian stereo.
func DecodeMP3(r io.Reader) (Waveform, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return Waveform{}, fmt.Errorf("mp3 decoder: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil && err != io.ErrUnexpectedEOF {
		return Waveform{}, fmt.Errorf("mp3 decode: %w", err)
	}

	frames := len(pcm) / 4
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(pcm[i*4:]))
		r := int16(binary.LittleEndian.Uint16(pcm[i*4+2:]))
		mono[i] = (float32(l) + float32(r)) / 2 / 32768
	}
	return Waveform{Samples: mono, SampleRate: dec.SampleRate()}, nil
}

// EncodeMP3 writes w as mono MP3 with shine. The tail is zero-padded to a
// whole frame, so the decoded file can be up to one frame longer than w.
func EncodeMP3(dst io.Writer, w Waveform) error {
	buf := make([]int16, len(w.Samples), len(w.Samples)+shineFrame)
	for i, s := range w.Samples {
		buf[i] = toInt16(s)
	}
	for len(buf)%shineFrame != 0 {
		buf = append(buf, 0)
	}
	ew := &errWriter{w: dst}
	enc := shine.NewEncoder(w.SampleRate, 1)
	enc.Write(ew, buf)
	if ew.err != nil {
		return fmt.Errorf("mp3 encode: %w", ew.err)
	}
	return nil
}

// errWriter keeps the first write error, which shine does not surface.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}
