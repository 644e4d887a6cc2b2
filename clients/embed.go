package clients

import (
	"context"
	"errors"

	"github.com/maastricht-university/speaker-timeline/audio"
	"github.com/maastricht-university/speaker-timeline/speaker"
)

type EmbedResp struct {
	Embedding []float64 `json:"embedding"`
}

// Embedder calls the speaker embedding sidecar's /embed endpoint.
type Embedder struct {
	h   *HTTP
	url string
}

func NewEmbedder(h *HTTP, url string) *Embedder { return &Embedder{h: h, url: url} }

// Embed returns the voice embedding of w.
func (e *Embedder) Embed(ctx context.Context, w audio.Waveform) (speaker.Embedding, error) {
	var out EmbedResp
	if err := e.h.postWAV(ctx, e.url+"/embed", w, nil, &out); err != nil {
		return nil, modelErr("embedder", err)
	}
	if len(out.Embedding) == 0 {
		return nil, modelErr("embedder", errors.New("empty embedding"))
	}
	return speaker.Embedding(out.Embedding), nil
}
