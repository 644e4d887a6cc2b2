// Package audio loads recordings into mono waveforms, finds silence in them
// and writes chunk files back out.
package audio

import (
	"math"
)

// Waveform is mono PCM audio with samples normalised to [-1, 1].
// A Waveform is never mutated after loading; Slice shares the backing array.
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Len returns the number of samples.
func (w Waveform) Len() int { return len(w.Samples) }

// Duration returns the length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Index converts a time in seconds to a sample index clamped to [0, Len()].
func (w Waveform) Index(t float64) int {
	i := int(math.Round(t * float64(w.SampleRate)))
	if i < 0 {
		return 0
	}
	if i > len(w.Samples) {
		return len(w.Samples)
	}
	return i
}

// Slice returns the samples in [start, end) seconds.
func (w Waveform) Slice(start, end float64) Waveform {
	i, j := w.Index(start), w.Index(end)
	if j < i {
		j = i
	}
	return Waveform{Samples: w.Samples[i:j], SampleRate: w.SampleRate}
}

// Span returns the samples in [i, j) by index.
func (w Waveform) Span(i, j int) Waveform {
	return Waveform{Samples: w.Samples[i:j], SampleRate: w.SampleRate}
}

// DBFS returns the RMS level of samples in dB relative to full scale.
// Digital silence yields -Inf.
func DBFS(samples []float32) float64 {
	if len(samples) == 0 {
		return math.Inf(-1)
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}

func toInt16(s float32) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(s * 32767)
}

func downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	n := len(interleaved) / channels
	mono := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
