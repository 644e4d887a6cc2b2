package orchestrator

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/maastricht-university/speaker-timeline/audio"
	cfg "github.com/maastricht-university/speaker-timeline/config"
	"github.com/maastricht-university/speaker-timeline/segmenter"
)

func TestChunkName(t *testing.T) {
	tests := []struct {
		i, n   int
		format string
		want   string
	}{
		{0, 3, "wav", "chunk_000.wav"},
		{7, 10, ".mp3", "chunk_007.mp3"},
		{12, 1500, "mp3", "chunk_0012.mp3"},
		{999, 1000, "wav", "chunk_999.wav"},
	}
	for _, tt := range tests {
		if got := ChunkName(tt.i, tt.n, tt.format); got != tt.want {
			t.Errorf("ChunkName(%d, %d, %q) = %q, want %q", tt.i, tt.n, tt.format, got, tt.want)
		}
	}
}

func TestSplitRecording(t *testing.T) {
	const rate = 8000
	// 10 s of signal, 2 s of digital silence, 10 s of signal
	s := make([]float32, 22*rate)
	for i := range s {
		if i < 10*rate || i >= 12*rate {
			s[i] = 0.5
		}
	}
	dir := t.TempDir()
	input := filepath.Join(dir, "meeting.wav")
	if err := audio.Save(input, audio.Waveform{Samples: s, SampleRate: rate}); err != nil {
		t.Fatal(err)
	}

	c := cfg.Default()
	c.Audio.SampleRate = rate
	out := filepath.Join(dir, "chunks")
	paths, err := SplitRecording(input, out, c, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d chunks, want 2", len(paths))
	}
	if filepath.Base(paths[0]) != "chunk_000.wav" || filepath.Base(paths[1]) != "chunk_001.wav" {
		t.Errorf("paths = %v", paths)
	}

	listed, err := ListChunks(out)
	if err != nil {
		t.Fatal(err)
	}
	total := 0.0
	for _, p := range listed {
		w, err := audio.Load(p, rate)
		if err != nil {
			t.Fatal(err)
		}
		total += w.Duration()
	}
	if total < 19.9 || total > 20.1 {
		t.Errorf("chunks hold %.2fs of audio, want about 20s", total)
	}

	// the skipped gap shows up as the difference between source and session time
	m, err := ReadManifest(out)
	if err != nil {
		t.Fatal(err)
	}
	second, ok := m["chunk_001.wav"]
	if len(m) != 2 || !ok {
		t.Fatalf("manifest = %+v", m)
	}
	if second.Start < 11.9 || second.Start > 12.1 || second.End < 21.9 {
		t.Errorf("chunk_001 spans [%v,%v], want about [12,22]", second.Start, second.End)
	}
}

func TestSplitRecordingEmpty(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "empty.wav")
	if err := audio.Save(input, audio.Waveform{SampleRate: 16000}); err != nil {
		t.Fatal(err)
	}
	_, err := SplitRecording(input, filepath.Join(dir, "chunks"), cfg.Default(), quietLogger())
	if !errors.Is(err, segmenter.ErrEmptyWaveform) {
		t.Errorf("err = %v, want ErrEmptyWaveform", err)
	}
}
