// Package clients talks to the external model sidecars: diarizer, speaker
// embedder, speech recognizer and the summarizing language model.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/maastricht-university/speaker-timeline/audio"
)

type HTTP struct{ c *http.Client }

func NewHTTP(timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTP{c: &http.Client{Timeout: timeout}}
}

// ModelError is returned for any failure of an external model call.
type ModelError struct {
	Model string // diarizer, embedder, asr, llm
	Err   error
}

func (e *ModelError) Error() string { return e.Model + ": " + e.Err.Error() }
func (e *ModelError) Unwrap() error { return e.Err }

func modelErr(model string, err error) error {
	if err == nil {
		return nil
	}
	return &ModelError{Model: model, Err: err}
}

// postWAV uploads w as a 16-bit WAV form file and decodes the JSON reply into out.
func (h *HTTP) postWAV(ctx context.Context, url string, w audio.Waveform, fields map[string]string, out any) error {
	var b bytes.Buffer
	mw := multipart.NewWriter(&b)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return err
	}
	if err := audio.EncodeWAV(fw, w); err != nil {
		return err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &b)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, string(bytes.TrimSpace(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
