package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/speaker-timeline/audio"
	"github.com/maastricht-university/speaker-timeline/clients"
	cfg "github.com/maastricht-university/speaker-timeline/config"
	"github.com/maastricht-university/speaker-timeline/speaker"
	"github.com/maastricht-university/speaker-timeline/timeline"
)

const testRate = 100

// chunkWave returns a waveform whose samples encode idx*1000 + whole second,
// so a fake model can tell which chunk and turn it was handed.
func chunkWave(idx int, seconds float64) audio.Waveform {
	s := make([]float32, int(seconds*testRate))
	for i := range s {
		s[i] = float32(idx*1000 + i/testRate)
	}
	return audio.Waveform{Samples: s, SampleRate: testRate}
}

func key(chunk, second int) int { return chunk*1000 + second }

type fakeModels struct {
	turns   map[int][]clients.Turn
	diarErr map[int]error
	delay   map[int]time.Duration
	embs    map[int]speaker.Embedding
	embErr  map[int]error
	recErr  map[int]error

	inflight, peak atomic.Int32
}

func (f *fakeModels) Diarize(ctx context.Context, w audio.Waveform) ([]clients.Turn, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	idx := int(w.Samples[0]) / 1000
	if d := f.delay[idx]; d > 0 {
		time.Sleep(d)
	}
	if err := f.diarErr[idx]; err != nil {
		return nil, err
	}
	return append([]clients.Turn(nil), f.turns[idx]...), nil
}

func (f *fakeModels) Embed(ctx context.Context, w audio.Waveform) (speaker.Embedding, error) {
	k := int(w.Samples[0])
	if err := f.embErr[k]; err != nil {
		return nil, err
	}
	e, ok := f.embs[k]
	if !ok {
		return nil, fmt.Errorf("no embedding for %d", k)
	}
	return e, nil
}

func (f *fakeModels) Recognize(ctx context.Context, w audio.Waveform) ([]timeline.Word, error) {
	if err := f.recErr[int(w.Samples[0])]; err != nil {
		return nil, err
	}
	return []timeline.Word{{Text: fmt.Sprintf("w%d", int(w.Samples[0])), Start: 0.1, End: 0.5}}, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.ErrorLevel)
	return l
}

// setup writes placeholder chunk files and returns a pipeline whose loader
// serves the given durations instead of decoding them.
func setup(t *testing.T, f *fakeModels, durs ...float64) (*Pipeline, string) {
	t.Helper()
	dir := t.TempDir()
	waves := map[string]audio.Waveform{}
	for i, d := range durs {
		path := filepath.Join(dir, ChunkName(i, len(durs), "wav"))
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		waves[path] = chunkWave(i, d)
	}
	c := cfg.Default()
	c.Orchestrator.Prefetch = 2
	p := NewWithModels(c, Models{Diarizer: f, Embedder: f, Recognizer: f}, quietLogger())
	p.load = func(path string) (audio.Waveform, error) {
		w, ok := waves[path]
		if !ok {
			return audio.Waveform{}, fmt.Errorf("unexpected chunk %s", path)
		}
		return w, nil
	}
	return p, dir
}

func TestRunResolvesSpeakersAcrossChunks(t *testing.T) {
	f := &fakeModels{
		turns: map[int][]clients.Turn{
			0: {{Label: "SPEAKER_01", Start: 6, End: 10}, {Label: "SPEAKER_00", Start: 0, End: 5}},
			1: {{Label: "SPEAKER_00", Start: 1, End: 4}, {Label: "SPEAKER_01", Start: 5, End: 8}},
		},
		embs: map[int]speaker.Embedding{
			key(0, 0): {1, 0, 0},
			key(0, 6): {0, 1, 0},
			key(1, 1): {0.92, 0.39, 0},
			key(1, 5): {0, 0, 0},
		},
	}
	p, dir := setup(t, f, 30, 20)

	res, err := p.Run(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.SkippedTurns != 1 {
		t.Errorf("SkippedTurns = %d, want 1", res.SkippedTurns)
	}
	if len(res.Failures) != 1 || res.Failures[0].Stage != StageResolve || res.Failures[0].Label != "SPEAKER_01" {
		t.Errorf("Failures = %+v", res.Failures)
	}
	if res.Registry.Len() != 2 {
		t.Errorf("registry has %d speakers, want 2", res.Registry.Len())
	}
	if res.Offset != 50 {
		t.Errorf("Offset = %v, want 50", res.Offset)
	}

	want := []struct {
		speaker, word string
		start         float64
	}{
		{"S1", "w0", 0.1},
		{"S2", "w6", 6.1},
		{"S1", "w1001", 31.1},
	}
	if len(res.Tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(res.Tokens), len(want), res.Tokens)
	}
	for i, w := range want {
		tk := res.Tokens[i]
		if tk.Speaker != w.speaker || tk.Word != w.word || !approx(tk.Start, w.start) {
			t.Errorf("token %d = %+v, want %s %s @%v", i, tk, w.speaker, w.word, w.start)
		}
	}
	if filepath.Base(res.Tokens[2].Audio) != "chunk_001.wav" {
		t.Errorf("audio = %q", res.Tokens[2].Audio)
	}
	if res.SessionID == "" {
		t.Error("empty session id")
	}
}

func TestRunOffsetIsSumOfDurations(t *testing.T) {
	durs := []float64{12, 7, 9, 3}
	f := &fakeModels{turns: map[int][]clients.Turn{}, embs: map[int]speaker.Embedding{}}
	for i := range durs {
		f.turns[i] = []clients.Turn{{Label: "A", Start: 1, End: 2}}
		f.embs[key(i, 1)] = speaker.Embedding{1, 1}
	}
	p, dir := setup(t, f, durs...)

	res, err := p.Run(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	sum := 0.0
	for i, ch := range res.Chunks {
		if !approx(ch.Offset, sum) {
			t.Errorf("chunk %d offset = %v, want %v", i, ch.Offset, sum)
		}
		sum += durs[i]
	}
	if !approx(res.Offset, sum) {
		t.Errorf("Offset = %v, want %v", res.Offset, sum)
	}
	for i := 1; i < len(res.Tokens); i++ {
		if res.Tokens[i].Start < res.Tokens[i-1].Start {
			t.Errorf("token %d starts before token %d", i, i-1)
		}
	}
	if res.Registry.Len() != 1 {
		t.Errorf("registry has %d speakers, want 1", res.Registry.Len())
	}
}

func TestRunConsumesInChunkOrder(t *testing.T) {
	const n = 6
	f := &fakeModels{
		turns: map[int][]clients.Turn{},
		embs:  map[int]speaker.Embedding{},
		delay: map[int]time.Duration{0: 60 * time.Millisecond, 1: 30 * time.Millisecond},
	}
	durs := make([]float64, n)
	for i := range durs {
		durs[i] = 5
		f.turns[i] = []clients.Turn{{Label: "A", Start: 0, End: 2}}
		e := make(speaker.Embedding, n)
		e[i] = 1
		f.embs[key(i, 0)] = e
	}
	p, dir := setup(t, f, durs...)

	res, err := p.Run(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tokens) != n {
		t.Fatalf("got %d tokens, want %d", len(res.Tokens), n)
	}
	for i, tk := range res.Tokens {
		if want := fmt.Sprintf("S%d", i+1); tk.Speaker != want {
			t.Errorf("token %d speaker = %s, want %s", i, tk.Speaker, want)
		}
	}
	if peak := f.peak.Load(); peak > 2 {
		t.Errorf("%d chunks fetched at once, prefetch is 2", peak)
	}
}

func TestRunDiarizeFailureKeepsAlignment(t *testing.T) {
	f := &fakeModels{
		turns: map[int][]clients.Turn{
			0: {{Label: "A", Start: 0, End: 1}},
			2: {{Label: "A", Start: 2, End: 3}},
		},
		diarErr: map[int]error{1: &clients.ModelError{Model: "diarizer", Err: errors.New("503")}},
		embs: map[int]speaker.Embedding{
			key(0, 0): {1, 0},
			key(2, 2): {1, 0.1},
		},
	}
	p, dir := setup(t, f, 10, 10, 10)

	res, err := p.Run(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.SkippedChunks != 1 || res.SkippedTurns != 0 {
		t.Errorf("skipped chunks = %d, turns = %d", res.SkippedChunks, res.SkippedTurns)
	}
	if len(res.Failures) != 1 || res.Failures[0].Stage != StageDiarize || res.Failures[0].Turn != -1 {
		t.Errorf("Failures = %+v", res.Failures)
	}
	if len(res.Tokens) != 2 || !approx(res.Tokens[1].Start, 22.1) {
		t.Errorf("tokens = %+v", res.Tokens)
	}
	if res.Offset != 30 {
		t.Errorf("Offset = %v, want 30", res.Offset)
	}
}

func TestRunEmbedFailureSkipsTurn(t *testing.T) {
	f := &fakeModels{
		turns: map[int][]clients.Turn{0: {{Label: "A", Start: 0, End: 1}, {Label: "B", Start: 2, End: 4}}},
		embs:  map[int]speaker.Embedding{key(0, 2): {0, 1}},
		embErr: map[int]error{
			key(0, 0): &clients.ModelError{Model: "embedder", Err: errors.New("timeout")},
		},
	}
	p, dir := setup(t, f, 10)

	res, err := p.Run(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.SkippedTurns != 1 || res.Failures[0].Stage != StageEmbed {
		t.Errorf("SkippedTurns = %d, Failures = %+v", res.SkippedTurns, res.Failures)
	}
	if len(res.Tokens) != 1 || res.Tokens[0].Speaker != "S1" {
		t.Errorf("tokens = %+v", res.Tokens)
	}
}

func TestRunRecognizeFailureSkipsTurn(t *testing.T) {
	f := &fakeModels{
		turns: map[int][]clients.Turn{
			0: {{Label: "A", Start: 0, End: 2}, {Label: "B", Start: 3, End: 5}},
			1: {{Label: "B", Start: 1, End: 2}},
		},
		embs: map[int]speaker.Embedding{
			key(0, 0): {1, 0},
			key(0, 3): {0, 1},
			key(1, 1): {0, 1},
		},
		recErr: map[int]error{
			key(0, 3): &clients.ModelError{Model: "asr", Err: errors.New("CUDA out of memory")},
		},
	}
	p, dir := setup(t, f, 10, 10)

	res, err := p.Run(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.SkippedTurns != 1 || len(res.Failures) != 1 || res.Failures[0].Stage != StageRecognize {
		t.Fatalf("SkippedTurns = %d, Failures = %+v", res.SkippedTurns, res.Failures)
	}
	if res.Failures[0].Label != "B" || res.Failures[0].Start != 3 {
		t.Errorf("failure = %+v", res.Failures[0])
	}
	// the failed turn allocated no id, so B's next turn becomes S2
	if res.Registry.Len() != 2 {
		t.Errorf("registry has %d speakers, want 2", res.Registry.Len())
	}
	if len(res.Tokens) != 2 {
		t.Fatalf("tokens = %+v", res.Tokens)
	}
	if tk := res.Tokens[1]; tk.Speaker != "S2" || !approx(tk.Start, 11.1) {
		t.Errorf("token 1 = %+v, want S2 @11.1", tk)
	}
	if res.Offset != 20 || res.Chunks[0].Merged != 1 || res.Chunks[0].Turns != 2 {
		t.Errorf("Offset = %v, chunk 0 = %+v", res.Offset, res.Chunks[0])
	}
}

func TestRunRecordsSourceStart(t *testing.T) {
	f := &fakeModels{}
	p, dir := setup(t, f, 10, 10)
	if err := WriteManifest(dir, []ManifestEntry{
		{File: "chunk_000.wav", Start: 0, End: 10},
		{File: "chunk_001.wav", Start: 12, End: 22},
	}); err != nil {
		t.Fatal(err)
	}

	res, err := p.Run(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Chunks) != 2 || res.Chunks[1].SourceStart == nil {
		t.Fatalf("chunks = %+v", res.Chunks)
	}
	if got := *res.Chunks[1].SourceStart; got != 12 || res.Chunks[1].Offset != 10 {
		t.Errorf("chunk 1 source start = %v, session offset = %v", got, res.Chunks[1].Offset)
	}
}

func TestRunTurnOutsideChunk(t *testing.T) {
	f := &fakeModels{turns: map[int][]clients.Turn{0: {{Label: "A", Start: 20, End: 25}}}}
	p, dir := setup(t, f, 10)

	res, err := p.Run(context.Background(), dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.SkippedTurns != 1 || res.Failures[0].Stage != StageSlice {
		t.Errorf("SkippedTurns = %d, Failures = %+v", res.SkippedTurns, res.Failures)
	}
}

func TestRunSeededRegistry(t *testing.T) {
	reg, err := speaker.Restore(speaker.Snapshot{
		Version:  speaker.SnapshotVersion,
		Speakers: []speaker.SpeakerRecord{{ID: "S1", Embeddings: [][]float64{{0, 1}}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeModels{
		turns: map[int][]clients.Turn{0: {{Label: "A", Start: 0, End: 1}, {Label: "B", Start: 1, End: 2}}},
		embs:  map[int]speaker.Embedding{key(0, 0): {1, 0}, key(0, 1): {0.1, 1}},
	}
	p, dir := setup(t, f, 5)

	res, err := p.Run(context.Background(), dir, reg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tokens[0].Speaker != "S2" || res.Tokens[1].Speaker != "S1" {
		t.Errorf("tokens = %+v", res.Tokens)
	}
	if res.Registry != reg || reg.Len() != 2 {
		t.Errorf("seeded registry not reused, len %d", reg.Len())
	}
}

func TestRunLoadFailureIsFatal(t *testing.T) {
	f := &fakeModels{}
	p, dir := setup(t, f, 5)
	p.load = func(string) (audio.Waveform, error) { return audio.Waveform{}, errors.New("truncated RIFF") }

	if _, err := p.Run(context.Background(), dir, nil); err == nil {
		t.Fatal("Run succeeded on an unreadable chunk")
	}
}

func TestRunNoChunks(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := NewWithModels(cfg.Default(), Models{}, quietLogger())
	_, err := p.Run(context.Background(), dir, nil)
	if !errors.Is(err, ErrNoChunks) {
		t.Errorf("err = %v, want ErrNoChunks", err)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	c := cfg.Default()
	c.Speakers.SimilarityThreshold = 2
	p := NewWithModels(c, Models{}, quietLogger())
	if _, err := p.Run(context.Background(), t.TempDir(), nil); !errors.Is(err, cfg.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestRunCancelled(t *testing.T) {
	f := &fakeModels{
		turns: map[int][]clients.Turn{0: {{Label: "A", Start: 0, End: 1}}},
		delay: map[int]time.Duration{0: 50 * time.Millisecond},
	}
	p, dir := setup(t, f, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Run(ctx, dir, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestListChunks(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"chunk_001.MP3", "chunk_000.wav", "cover.png", "chunk_002.wav"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "chunk_003.wav"), 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := ListChunks(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, p := range got {
		names = append(names, filepath.Base(p))
	}
	want := []string{"chunk_000.wav", "chunk_001.MP3", "chunk_002.wav"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("ListChunks = %v, want %v", names, want)
	}

	if _, err := ListChunks(filepath.Join(dir, "missing")); err == nil || errors.Is(err, ErrNoChunks) {
		t.Errorf("missing dir err = %v", err)
	}
}

func TestPersist(t *testing.T) {
	reg := speaker.NewRegistry()
	if _, err := reg.Resolve(speaker.Embedding{1, 0}, 0.75); err != nil {
		t.Fatal(err)
	}
	res := &Result{
		SessionID: "run-1",
		Tokens: []timeline.WordToken{
			{Speaker: "S1", Word: "hello", Start: 0.1, End: 0.5, Audio: "chunk_000.wav"},
		},
		Chunks:       []ChunkInfo{{Index: 0, Source: "chunk_000.wav", Duration: 10, Turns: 2, Merged: 1, Words: 1}},
		Failures:     []TurnFailure{{Chunk: "chunk_000.wav", Turn: 1, Stage: StageResolve, Err: "degenerate"}},
		SkippedTurns: 1,
		Offset:       10,
		Registry:     reg,
	}
	out, err := Persist(t.TempDir(), "audioChunks", res)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(out.Dir) != out.SessionID {
		t.Errorf("dir %s does not match session %s", out.Dir, out.SessionID)
	}
	toks, err := timeline.ReadFile(out.TimelinePath)
	if err != nil {
		t.Fatal(err)
	}
	if len(toks) != 1 || toks[0].Word != "hello" {
		t.Errorf("timeline = %+v", toks)
	}

	b, err := os.ReadFile(out.ReportPath)
	if err != nil {
		t.Fatal(err)
	}
	var rep Report
	if err := json.Unmarshal(b, &rep); err != nil {
		t.Fatal(err)
	}
	if rep.RunID != "run-1" || rep.SkippedTurns != 1 || len(rep.Failures) != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Speakers) != 1 || rep.Speakers[0].ID != "S1" || rep.Speakers[0].Words != 1 || rep.Speakers[0].Share != 1 {
		t.Errorf("speakers = %+v", rep.Speakers)
	}
}

func TestPersistSameSecondRuns(t *testing.T) {
	root := t.TempDir()
	a := &Result{SessionID: "aaaaaaaa-1111", Tokens: []timeline.WordToken{{Speaker: "S1", Word: "first"}}}
	b := &Result{SessionID: "bbbbbbbb-2222", Tokens: []timeline.WordToken{{Speaker: "S1", Word: "second"}}}

	pa, err := Persist(root, "chunks", a)
	if err != nil {
		t.Fatal(err)
	}
	pb, err := Persist(root, "chunks", b)
	if err != nil {
		t.Fatal(err)
	}
	if pa.Dir == pb.Dir {
		t.Fatalf("both runs wrote to %s", pa.Dir)
	}
	toks, err := timeline.ReadFile(pa.TimelinePath)
	if err != nil {
		t.Fatal(err)
	}
	if len(toks) != 1 || toks[0].Word != "first" {
		t.Errorf("first run's timeline = %+v", toks)
	}

	// the same run persisted twice within a second must not overwrite
	if again, err := Persist(root, "chunks", a); err == nil && again.Dir == pa.Dir {
		t.Errorf("second persist reused %s", pa.Dir)
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
