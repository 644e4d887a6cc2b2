package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/speaker-timeline/audio"
	"github.com/maastricht-university/speaker-timeline/clients"
	cfg "github.com/maastricht-university/speaker-timeline/config"
	"github.com/maastricht-university/speaker-timeline/speaker"
	"github.com/maastricht-university/speaker-timeline/timeline"
)

type Pipeline struct {
	cfg    *cfg.Root
	models Models
	load   func(path string) (audio.Waveform, error)
	log    logrus.FieldLogger
}

// NewPipeline wires the HTTP model clients from c.
func NewPipeline(c *cfg.Root, log logrus.FieldLogger) *Pipeline {
	s := c.Services
	return NewWithModels(c, Models{
		Diarizer:   clients.NewDiarizer(clients.NewHTTP(cfg.DurSeconds(s.Diarization.Timeout)), s.Diarization.URL),
		Embedder:   clients.NewEmbedder(clients.NewHTTP(cfg.DurSeconds(s.Embedding.Timeout)), s.Embedding.URL),
		Recognizer: clients.NewRecognizer(clients.NewHTTP(cfg.DurSeconds(s.ASR.Timeout)), s.ASR.URL),
	}, log)
}

// NewWithModels builds a pipeline around the given collaborators.
func NewWithModels(c *cfg.Root, m Models, log logrus.FieldLogger) *Pipeline {
	if log == nil {
		log = logrus.StandardLogger()
	}
	rate := c.Audio.SampleRate
	return &Pipeline{
		cfg:    c,
		models: m,
		load:   func(path string) (audio.Waveform, error) { return audio.Load(path, rate) },
		log:    log,
	}
}

// ListChunks returns the .wav/.mp3 files in dir sorted by name. Chunk names
// must sort in time order.
func ListChunks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !audio.SupportedExt(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoChunks, dir)
	}
	sort.Strings(out)
	return out, nil
}

// Run processes every chunk in chunkDir and returns the merged timeline.
// reg may be nil for a fresh session registry.
//
// External model calls for up to orchestrator.prefetch chunks run ahead of
// the merge step, but speaker resolution and offset bookkeeping happen on
// this goroutine in chunk order and, within a chunk, in turn-start order.
// Failed turns are skipped and recorded; only a missing chunk directory or
// an unreadable chunk aborts the run.
func (p *Pipeline) Run(ctx context.Context, chunkDir string, reg *speaker.Registry) (*Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	paths, err := ListChunks(chunkDir)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		reg = speaker.NewRegistry()
	}

	res := &Result{SessionID: uuid.NewString(), Registry: reg}
	log := p.log.WithField("session", res.SessionID)
	log.WithField("chunks", len(paths)).Info("session started")

	manifest, err := ReadManifest(chunkDir)
	if err != nil {
		log.WithError(err).Warn("ignoring chunk manifest")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	pf := p.prefetch(ctx, paths)

	var merger timeline.Merger
	for i := range paths {
		f, err := pf.next(ctx, i)
		if err != nil {
			return nil, err
		}
		if f.err != nil {
			return nil, f.err
		}
		info := p.merge(log, i, f, reg, &merger, res)
		if e, ok := manifest[filepath.Base(f.path)]; ok {
			start := e.Start
			info.SourceStart = &start
		}
		res.Chunks = append(res.Chunks, info)
	}

	res.Tokens = merger.Tokens()
	res.Offset = merger.Offset()
	log.WithFields(logrus.Fields{
		"words":    len(res.Tokens),
		"speakers": reg.Len(),
		"skipped":  res.SkippedTurns,
		"duration": fmt.Sprintf("%.2fs", res.Offset),
	}).Info("session finished")
	return res, nil
}

// merge resolves the speakers of one fetched chunk and appends its words.
func (p *Pipeline) merge(log logrus.FieldLogger, idx int, f fetched, reg *speaker.Registry, m *timeline.Merger, res *Result) ChunkInfo {
	info := ChunkInfo{
		Index:    idx,
		Source:   f.path,
		Offset:   m.Offset(),
		Duration: f.wave.Duration(),
		Turns:    len(f.turns),
	}
	clog := log.WithField("chunk", filepath.Base(f.path))

	if f.diarErr != nil {
		res.SkippedChunks++
		res.Failures = append(res.Failures, TurnFailure{
			Chunk: f.path, Turn: -1, End: info.Duration, Stage: StageDiarize, Err: f.diarErr.Error(),
		})
		clog.WithError(f.diarErr).Warn("diarization failed, chunk contributes no words")
	}

	var turns []timeline.Turn
	for ti, ft := range f.turns {
		tlog := clog.WithFields(logrus.Fields{"turn": ti, "label": ft.turn.Label})
		stage, err := ft.stage, ft.err
		var r speaker.Resolution
		if err == nil {
			stage = StageResolve
			r, err = reg.Resolve(ft.emb, p.cfg.Speakers.SimilarityThreshold)
		}
		if err != nil {
			res.SkippedTurns++
			res.Failures = append(res.Failures, TurnFailure{
				Chunk: f.path, Turn: ti, Label: ft.turn.Label,
				Start: ft.turn.Start, End: ft.turn.End,
				Stage: stage, Err: err.Error(),
			})
			tlog.WithError(err).WithField("stage", stage).Warn("turn skipped")
			continue
		}
		if r.Created {
			tlog.WithField("speaker", r.ID).Info("new global speaker")
		} else {
			tlog.WithFields(logrus.Fields{"speaker": r.ID, "score": fmt.Sprintf("%.3f", r.Score)}).Debug("matched global speaker")
		}
		turns = append(turns, timeline.Turn{
			Speaker: r.ID,
			Label:   ft.turn.Label,
			Start:   ft.turn.Start,
			End:     ft.turn.End,
			Words:   ft.words,
		})
	}

	toks := m.Merge(timeline.Chunk{Source: f.path, Duration: info.Duration, Turns: turns})
	info.Merged = len(turns)
	info.Words = len(toks)
	clog.WithFields(logrus.Fields{
		"offset": fmt.Sprintf("%.2fs", info.Offset),
		"turns":  info.Turns,
		"merged": info.Merged,
		"words":  info.Words,
	}).Info("chunk merged")
	return info
}

// prefetcher runs external model calls for upcoming chunks while the
// consumer merges earlier ones. Each chunk has its own result channel so
// results are consumed in chunk order whatever order they finish in.
type prefetcher struct {
	slots chan struct{}
	out   []chan fetched
}

// prefetch starts fetching paths in order, keeping at most
// orchestrator.prefetch chunks fetched but not yet consumed.
func (p *Pipeline) prefetch(ctx context.Context, paths []string) *prefetcher {
	pf := &prefetcher{
		slots: make(chan struct{}, max(p.cfg.Orchestrator.Prefetch, 1)),
		out:   make([]chan fetched, len(paths)),
	}
	for i := range pf.out {
		pf.out[i] = make(chan fetched, 1)
	}
	go func() {
		for i, path := range paths {
			select {
			case pf.slots <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func() { pf.out[i] <- p.fetch(ctx, path) }()
		}
	}()
	return pf
}

// next blocks until chunk i has been fetched and frees its slot.
func (pf *prefetcher) next(ctx context.Context, i int) (fetched, error) {
	select {
	case f := <-pf.out[i]:
		<-pf.slots
		return f, nil
	case <-ctx.Done():
		return fetched{}, ctx.Err()
	}
}

// fetch loads one chunk and runs all external models on it.
func (p *Pipeline) fetch(ctx context.Context, path string) fetched {
	f := fetched{path: path}
	w, err := p.load(path)
	if err != nil {
		f.err = fmt.Errorf("load chunk %s: %w", filepath.Base(path), err)
		return f
	}
	f.wave = w

	turns, err := p.models.Diarizer.Diarize(ctx, w)
	if err != nil {
		f.diarErr = err
		return f
	}
	sort.SliceStable(turns, func(i, j int) bool { return turns[i].Start < turns[j].Start })

	f.turns = make([]fetchedTurn, len(turns))
	workers := make(chan struct{}, max(p.cfg.Orchestrator.TurnWorkers, 1))
	var wg sync.WaitGroup
	for i, t := range turns {
		wg.Add(1)
		workers <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-workers }()
			f.turns[i] = p.fetchTurn(ctx, w, t)
		}()
	}
	wg.Wait()
	return f
}

func (p *Pipeline) fetchTurn(ctx context.Context, w audio.Waveform, t clients.Turn) fetchedTurn {
	ft := fetchedTurn{turn: t}
	seg := w.Slice(t.Start, t.End)
	if seg.Len() == 0 {
		ft.stage, ft.err = StageSlice, errors.New("turn lies outside the chunk audio")
		return ft
	}
	if ft.emb, ft.err = p.models.Embedder.Embed(ctx, seg); ft.err != nil {
		ft.stage = StageEmbed
		return ft
	}
	if ft.words, ft.err = p.models.Recognizer.Recognize(ctx, seg); ft.err != nil {
		ft.stage = StageRecognize
	}
	return ft
}
