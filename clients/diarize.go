package clients

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/maastricht-university/speaker-timeline/audio"
)

// Turn is one diarizer turn with chunk-relative times.
type Turn struct {
	Label string  `json:"speaker"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type DiarizeResp struct {
	Turns       []Turn `json:"turns"`
	NumSpeakers int    `json:"num_speakers"`
}

// Diarizer calls the diarization sidecar's /diarize endpoint.
type Diarizer struct {
	h   *HTTP
	url string
}

func NewDiarizer(h *HTTP, url string) *Diarizer { return &Diarizer{h: h, url: url} }

// Diarize returns the turns found in w ordered by start time. Turns of
// different speakers may overlap.
func (d *Diarizer) Diarize(ctx context.Context, w audio.Waveform) ([]Turn, error) {
	var out DiarizeResp
	fields := map[string]string{"sample_rate": strconv.Itoa(w.SampleRate)}
	if err := d.h.postWAV(ctx, d.url+"/diarize", w, fields, &out); err != nil {
		return nil, modelErr("diarizer", err)
	}
	for _, t := range out.Turns {
		if t.End <= t.Start {
			return nil, modelErr("diarizer", fmt.Errorf("turn %q has empty span [%v,%v]", t.Label, t.Start, t.End))
		}
	}
	sort.SliceStable(out.Turns, func(i, j int) bool { return out.Turns[i].Start < out.Turns[j].Start })
	return out.Turns, nil
}
