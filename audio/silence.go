package audio

// frameSeconds is the analysis window used for silence detection.
const frameSeconds = 0.01

// Interval is a half-open [Start, End) span in seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End - Start.
func (iv Interval) Duration() float64 { return iv.End - iv.Start }

// DetectSilence returns the maximal runs of 10 ms frames whose level is at or
// below thresholdDB, keeping only runs at least minSilenceLen seconds long.
// Intervals are ordered and never overlap.
func DetectSilence(w Waveform, minSilenceLen, thresholdDB float64) []Interval {
	if w.SampleRate <= 0 || len(w.Samples) == 0 {
		return nil
	}
	frame := int(float64(w.SampleRate) * frameSeconds)
	if frame < 1 {
		frame = 1
	}
	minSamples := int(minSilenceLen * float64(w.SampleRate))

	var out []Interval
	runStart := -1
	flush := func(end int) {
		if runStart >= 0 && end-runStart >= minSamples && end > runStart {
			out = append(out, Interval{
				Start: float64(runStart) / float64(w.SampleRate),
				End:   float64(end) / float64(w.SampleRate),
			})
		}
		runStart = -1
	}
	for i := 0; i < len(w.Samples); i += frame {
		j := min(i+frame, len(w.Samples))
		if DBFS(w.Samples[i:j]) <= thresholdDB {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		flush(i)
	}
	flush(len(w.Samples))
	return out
}
