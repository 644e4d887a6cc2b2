package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	resampling "github.com/tphakala/go-audio-resampling"
)

// SupportedExt reports whether path has an extension Load can decode.
func SupportedExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".mp3":
		return true
	}
	return false
}

// Load decodes a .wav or .mp3 file to mono and resamples it to targetRate.
// A targetRate of 0 keeps the native rate.
func Load(path string, targetRate int) (Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return Waveform{}, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var w Waveform
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		w, err = DecodeWAV(f)
	case ".mp3":
		w, err = DecodeMP3(f)
	default:
		return Waveform{}, fmt.Errorf("unsupported audio extension %q", ext)
	}
	if err != nil {
		return Waveform{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if targetRate > 0 && targetRate != w.SampleRate {
		return Resample(w, targetRate)
	}
	return w, nil
}

// Resample converts w to rate using a high quality polyphase resampler.
func Resample(w Waveform, rate int) (Waveform, error) {
	if rate == w.SampleRate || len(w.Samples) == 0 {
		return Waveform{Samples: w.Samples, SampleRate: rate}, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(w.SampleRate),
		OutputRate: float64(rate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return Waveform{}, fmt.Errorf("create resampler: %w", err)
	}
	in := make([]float64, len(w.Samples))
	for i, s := range w.Samples {
		in[i] = float64(s)
	}
	out, err := rs.Process(in)
	if err != nil {
		return Waveform{}, fmt.Errorf("resample %d->%d: %w", w.SampleRate, rate, err)
	}
	samples := make([]float32, len(out))
	for i, s := range out {
		samples[i] = float32(s)
	}
	return Waveform{Samples: samples, SampleRate: rate}, nil
}

// Save writes w to path, choosing the encoder from the extension.
func Save(path string, w Waveform) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		err = EncodeWAV(f, w)
	case ".mp3":
		err = EncodeMP3(f, w)
	default:
		err = fmt.Errorf("unsupported audio extension %q", ext)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
