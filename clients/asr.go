package clients

import (
	"context"
	"fmt"

	"github.com/maastricht-university/speaker-timeline/audio"
	"github.com/maastricht-university/speaker-timeline/timeline"
)

// ASRWord is one recognized word with excerpt-relative seconds.
type ASRWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ASRResp is the /transcribe reply.
type ASRResp struct {
	Words    []ASRWord `json:"words"`
	Language string    `json:"language"`
}

// Recognizer calls the speech recognition sidecar's /transcribe endpoint.
type Recognizer struct {
	h   *HTTP
	url string
}

func NewRecognizer(h *HTTP, url string) *Recognizer { return &Recognizer{h: h, url: url} }

// Recognize returns word timestamps relative to the start of w.
func (r *Recognizer) Recognize(ctx context.Context, w audio.Waveform) ([]timeline.Word, error) {
	var out ASRResp
	if err := r.h.postWAV(ctx, r.url+"/transcribe", w, map[string]string{"timestamps": "word"}, &out); err != nil {
		return nil, modelErr("asr", err)
	}
	dur := w.Duration()
	words := make([]timeline.Word, 0, len(out.Words))
	for _, aw := range out.Words {
		if aw.Start < 0 || aw.End < aw.Start {
			return nil, modelErr("asr", fmt.Errorf("word %q has invalid span [%v,%v]", aw.Word, aw.Start, aw.End))
		}
		// recognizers round; keep the word inside the excerpt
		words = append(words, timeline.Word{Text: aw.Word, Start: min(aw.Start, dur), End: min(aw.End, dur)})
	}
	return words, nil
}
