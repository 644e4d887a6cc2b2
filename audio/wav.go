package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

var errNotWAV = errors.New("not a RIFF/WAVE stream")

// DecodeWAV reads an integer PCM RIFF/WAVE stream (8/16/24/32-bit) and
// returns it downmixed to mono at its native rate.
func DecodeWAV(r io.Reader) (Waveform, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		b, err := io.ReadAll(r)
		if err != nil {
			return Waveform{}, fmt.Errorf("wav read: %w", err)
		}
		rs = bytes.NewReader(b)
	}

	d := wav.NewDecoder(rs)
	if !d.IsValidFile() {
		// well-formed headers with no PCM data
		if d.Err() == nil && d.NumChans > 0 && d.BitDepth >= 8 && d.SampleRate > 0 {
			return Waveform{SampleRate: int(d.SampleRate)}, nil
		}
		if err := d.Err(); err != nil {
			return Waveform{}, fmt.Errorf("%w: %v", errNotWAV, err)
		}
		return Waveform{}, errNotWAV
	}
	if d.WavAudioFormat != wavFormatPCM && d.WavAudioFormat != wavFormatExtensible {
		return Waveform{}, fmt.Errorf("wav: unsupported format tag %d", d.WavAudioFormat)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Waveform{}, fmt.Errorf("wav data: %w", err)
	}
	samples, err := normalize(buf)
	if err != nil {
		return Waveform{}, err
	}
	return Waveform{Samples: downmix(samples, int(d.NumChans)), SampleRate: int(d.SampleRate)}, nil
}

// normalize maps integer PCM to [-1, 1). 8-bit WAV is unsigned.
func normalize(buf *goaudio.IntBuffer) ([]float32, error) {
	depth := buf.SourceBitDepth
	if depth < 8 || depth > 32 {
		return nil, fmt.Errorf("wav: unsupported bits per sample %d", depth)
	}
	out := make([]float32, len(buf.Data))
	if depth == 8 {
		for i, v := range buf.Data {
			out[i] = (float32(v) - 128) / 128
		}
		return out, nil
	}
	scale := float32(int64(1) << (depth - 1))
	for i, v := range buf.Data {
		out[i] = float32(v) / scale
	}
	return out, nil
}

// EncodeWAV writes w as a 16-bit mono PCM WAVE stream. Writers that cannot
// seek are fed from an in-memory copy.
func EncodeWAV(dst io.Writer, w Waveform) error {
	if ws, ok := dst.(io.WriteSeeker); ok {
		return encodeWAV(ws, w)
	}
	var sb seekBuffer
	if err := encodeWAV(&sb, w); err != nil {
		return err
	}
	if _, err := dst.Write(sb.buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return nil
}

func encodeWAV(ws io.WriteSeeker, w Waveform) error {
	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		data[i] = int(toInt16(s))
	}
	enc := wav.NewEncoder(ws, w.SampleRate, 16, 1, wavFormatPCM)
	err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: w.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	})
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}

// seekBuffer is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch the chunk sizes once the data is written.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.buf) {
		b.buf = append(b.buf, make([]byte, end-len(b.buf))...)
	}
	n := copy(b.buf[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("seek: negative position")
	}
	b.pos = int(abs)
	return abs, nil
}
