package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/speaker-timeline/audio"
	cfg "github.com/maastricht-university/speaker-timeline/config"
	"github.com/maastricht-university/speaker-timeline/segmenter"
)

// SegmenterOptions converts the config section into segmenter options.
func SegmenterOptions(s cfg.Segmenter) segmenter.Options {
	return segmenter.Options{
		MinSilenceLen:      s.MinSilenceLen,
		SilenceThresholdDB: s.SilenceThresholdDB,
		MinSegmentLen:      s.MinSegmentLen,
		MaxChunkLen:        s.MaxChunkLen,
	}
}

// ChunkName returns the file name of chunk i out of n. Names are zero padded
// to at least three digits so that name order is time order.
func ChunkName(i, n int, format string) string {
	width := max(3, len(strconv.Itoa(n-1)))
	return fmt.Sprintf("chunk_%0*d.%s", width, i, strings.TrimPrefix(format, "."))
}

// SplitRecording segments the recording at input and writes the chunks to
// outDir. It returns the written paths in time order.
func SplitRecording(input, outDir string, c *cfg.Root, log logrus.FieldLogger) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	w, err := audio.Load(input, c.Audio.SampleRate)
	if err != nil {
		return nil, err
	}
	chunks, err := segmenter.Segment(w, SegmenterOptions(c.Segmenter))
	if err != nil {
		return nil, fmt.Errorf("segment %s: %w", filepath.Base(input), err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(chunks))
	manifest := make([]ManifestEntry, 0, len(chunks))
	for _, ch := range chunks {
		path := filepath.Join(outDir, ChunkName(ch.Index, len(chunks), c.Audio.ChunkFormat))
		if err := audio.Save(path, ch.Audio); err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"chunk": filepath.Base(path),
			"start": fmt.Sprintf("%.2fs", ch.Start),
			"end":   fmt.Sprintf("%.2fs", ch.End),
		}).Debug("chunk written")
		paths = append(paths, path)
		manifest = append(manifest, ManifestEntry{File: filepath.Base(path), Start: ch.Start, End: ch.End})
	}
	if err := WriteManifest(outDir, manifest); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"input":    input,
		"chunks":   len(paths),
		"duration": fmt.Sprintf("%.2fs", w.Duration()),
	}).Info("recording split")
	return paths, nil
}
