// Package summary asks a language model to pick key timestamps from a merged
// timeline and write a Markdown summary of the session.
package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/speaker-timeline/timeline"
)

// ErrNoJSON is returned when a model reply holds no JSON object.
var ErrNoJSON = errors.New("summary: no JSON object in model reply")

// Generator produces a completion for a prompt.
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Result is the model's answer.
type Result struct {
	SummaryMD          string    `json:"summary_md"`
	SelectedTimestamps []float64 `json:"selected_timestamps"`
}

// Extract returns the text from the first '{' to the last '}' of raw.
func Extract(raw string) (string, error) {
	i := strings.IndexByte(raw, '{')
	j := strings.LastIndexByte(raw, '}')
	if i < 0 || j < i {
		return "", ErrNoJSON
	}
	return raw[i : j+1], nil
}

// Parse extracts the JSON object from raw and decodes it, repairing
// malformed JSON when plain decoding fails with a syntax error.
func Parse(raw string) (Result, error) {
	obj, err := Extract(raw)
	if err != nil {
		return Result{}, err
	}
	var r Result
	err = json.Unmarshal([]byte(obj), &r)
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		fixed, rerr := jsonrepair.JSONRepair(obj)
		if rerr != nil {
			return Result{}, fmt.Errorf("repair model reply: %w", rerr)
		}
		r = Result{}
		err = json.Unmarshal([]byte(fixed), &r)
	}
	if err != nil {
		return Result{}, fmt.Errorf("decode model reply: %w", err)
	}
	return r, nil
}

// Clean sorts and de-duplicates the selected timestamps, drops the ones
// outside [0, end] and keeps at most maxImages of them. end <= 0 disables
// the upper bound.
func (r *Result) Clean(end float64, maxImages int) {
	out := r.SelectedTimestamps[:0]
	for _, ts := range r.SelectedTimestamps {
		if math.IsNaN(ts) || ts < 0 || (end > 0 && ts > end) {
			continue
		}
		out = append(out, ts)
	}
	sort.Float64s(out)
	uniq := out[:0]
	for i, ts := range out {
		if i == 0 || ts != out[i-1] {
			uniq = append(uniq, ts)
		}
	}
	if maxImages > 0 && len(uniq) > maxImages {
		uniq = uniq[:maxImages]
	}
	if uniq == nil {
		uniq = []float64{}
	}
	r.SelectedTimestamps = uniq
}

// FramePath is where the frame for timestamp ts is expected to live.
func FramePath(ts float64) string {
	return fmt.Sprintf("frames/frame_%d.jpg", int(ts))
}

// LinkFrames rewrites image placeholders written with the raw timestamp,
// e.g. frames/frame_12.5.jpg, to FramePath.
func LinkFrames(md string, timestamps []float64) string {
	for _, ts := range timestamps {
		want := "(" + FramePath(ts) + ")"
		for _, form := range []string{
			strconv.FormatFloat(ts, 'f', -1, 64),
			strconv.FormatFloat(ts, 'f', 1, 64),
			strconv.FormatFloat(ts, 'f', 2, 64),
		} {
			md = strings.ReplaceAll(md, "(frames/frame_"+form+".jpg)", want)
		}
	}
	return md
}

// Session is one summarization round trip.
type Session struct {
	Prompt string
	Raw    string // the JSON object extracted from the reply
	Result Result
}

// Summarize prompts gen with the dialogue of tokens and parses the reply.
func Summarize(ctx context.Context, gen Generator, tokens []timeline.WordToken, maxImages int, log logrus.FieldLogger) (*Session, error) {
	s := &Session{Prompt: BuildPrompt(tokens, maxImages)}
	log.WithFields(logrus.Fields{"words": len(tokens), "prompt_bytes": len(s.Prompt)}).Info("requesting summary")

	reply, err := gen.Complete(ctx, s.Prompt)
	if err != nil {
		return nil, err
	}
	if s.Raw, err = Extract(reply); err != nil {
		return nil, err
	}
	if s.Result, err = Parse(s.Raw); err != nil {
		return nil, err
	}
	end := 0.0
	for _, tk := range tokens {
		end = math.Max(end, tk.End)
	}
	s.Result.Clean(end, maxImages)
	s.Result.SummaryMD = LinkFrames(s.Result.SummaryMD, s.Result.SelectedTimestamps)
	log.WithField("timestamps", len(s.Result.SelectedTimestamps)).Info("summary received")
	return s, nil
}

// Files lists what Write produced.
type Files struct {
	Prompt     string
	Raw        string
	Summary    string
	Timestamps string
}

// Write stores the prompt, the raw reply, the Markdown summary and the
// selected timestamps in dir.
func (s *Session) Write(dir string) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, err
	}
	f := Files{
		Prompt:     filepath.Join(dir, "summary_prompt.md"),
		Raw:        filepath.Join(dir, "raw_llm_output.json"),
		Summary:    filepath.Join(dir, "session_summary.md"),
		Timestamps: filepath.Join(dir, "selected_timestamps.json"),
	}
	ts, err := json.MarshalIndent(s.Result.SelectedTimestamps, "", "  ")
	if err != nil {
		return Files{}, err
	}
	for path, body := range map[string][]byte{
		f.Prompt:     []byte(s.Prompt),
		f.Raw:        []byte(s.Raw),
		f.Summary:    []byte(s.Result.SummaryMD),
		f.Timestamps: ts,
	} {
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return Files{}, fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
	}
	return f, nil
}
