package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate when a required option is missing or out of range.
var ErrInvalid = errors.New("invalid config")

type Service struct {
	URL     string `yaml:"url"`
	Timeout int    `yaml:"timeout"` // seconds
}
type Services struct {
	Diarization Service `yaml:"diarization"`
	Embedding   Service `yaml:"embedding"`
	ASR         Service `yaml:"asr"`
}
type Audio struct {
	SampleRate  int    `yaml:"sample_rate"`
	ChunkFormat string `yaml:"chunk_format"` // wav | mp3
}

// Segmenter holds the silence splitting options. Lengths are seconds.
type Segmenter struct {
	MinSilenceLen      float64 `yaml:"min_silence_len"`
	SilenceThresholdDB float64 `yaml:"silence_threshold_db"`
	MinSegmentLen      float64 `yaml:"min_segment_len"`
	MaxChunkLen        float64 `yaml:"max_chunk_len"`
}
type Speakers struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}
type LLM struct {
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxImages int    `yaml:"max_images"`
	MaxTokens int    `yaml:"max_tokens"`
}
type Orchestrator struct {
	Prefetch    int `yaml:"prefetch"`     // chunks fetched ahead of the merge step
	TurnWorkers int `yaml:"turn_workers"` // concurrent external calls per chunk
}
type Root struct {
	Pipeline struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
		LogLvl  string `yaml:"log_level"`
	} `yaml:"pipeline"`
	Audio        Audio        `yaml:"audio"`
	Segmenter    Segmenter    `yaml:"segmenter"`
	Speakers     Speakers     `yaml:"speakers"`
	Services     Services     `yaml:"services"`
	LLM          LLM          `yaml:"llm"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Paths        struct {
		Chunks  string `yaml:"chunks"`
		Outputs string `yaml:"outputs"`
	} `yaml:"paths"`
}

// Default returns the configuration used when no file overrides a value.
func Default() *Root {
	var c Root
	c.Pipeline.Name = "speaker-timeline"
	c.Pipeline.Version = "0.1.0"
	c.Pipeline.LogLvl = "info"
	c.Audio = Audio{SampleRate: 16000, ChunkFormat: "wav"}
	c.Segmenter = Segmenter{
		MinSilenceLen:      1.5,
		SilenceThresholdDB: -60,
		MinSegmentLen:      1,
		MaxChunkLen:        300,
	}
	c.Speakers.SimilarityThreshold = 0.75
	c.Services = Services{
		Diarization: Service{URL: "http://localhost:8388", Timeout: 300},
		Embedding:   Service{URL: "http://localhost:8389", Timeout: 60},
		ASR:         Service{URL: "http://localhost:8390", Timeout: 120},
	}
	c.LLM = LLM{Model: "scb10x/typhoon2.1-gemma3-12b", MaxImages: 10, MaxTokens: 2048}
	c.Orchestrator = Orchestrator{Prefetch: 2, TurnWorkers: 4}
	c.Paths.Chunks = "audioChunks"
	c.Paths.Outputs = "outputs"
	return &c
}

// Load decodes the YAML config at path on top of Default. With an empty path
// it tries config/<CONFIG_ENV>/config.yaml and then ./config.yaml; when none
// of them exists the defaults are returned.
func Load(path string) (*Root, error) {
	cfg := Default()
	guess := []string{path}
	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		guess = []string{
			filepath.Join("config", env, "config.yaml"),
			"config.yaml",
		}
	}
	for _, p := range guess {
		f, err := os.Open(p)
		if err != nil {
			if os.IsNotExist(err) && path == "" {
				continue
			}
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", p, err)
		}
		return cfg, nil
	}
	return cfg, nil
}

// NewViper returns a viper instance reading TIMELINE_* environment variables,
// e.g. TIMELINE_SPEAKERS_SIMILARITY_THRESHOLD.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("TIMELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Overlay copies every key set in v (env or changed flag) onto c.
func (c *Root) Overlay(v *viper.Viper) {
	floats := map[string]*float64{
		"segmenter.min_silence_len":      &c.Segmenter.MinSilenceLen,
		"segmenter.silence_threshold_db": &c.Segmenter.SilenceThresholdDB,
		"segmenter.min_segment_len":      &c.Segmenter.MinSegmentLen,
		"segmenter.max_chunk_len":        &c.Segmenter.MaxChunkLen,
		"speakers.similarity_threshold":  &c.Speakers.SimilarityThreshold,
	}
	ints := map[string]*int{
		"audio.sample_rate":            &c.Audio.SampleRate,
		"llm.max_images":               &c.LLM.MaxImages,
		"llm.max_tokens":               &c.LLM.MaxTokens,
		"orchestrator.prefetch":        &c.Orchestrator.Prefetch,
		"orchestrator.turn_workers":    &c.Orchestrator.TurnWorkers,
		"services.diarization.timeout": &c.Services.Diarization.Timeout,
		"services.embedding.timeout":   &c.Services.Embedding.Timeout,
		"services.asr.timeout":         &c.Services.ASR.Timeout,
	}
	strs := map[string]*string{
		"pipeline.log_level":       &c.Pipeline.LogLvl,
		"audio.chunk_format":       &c.Audio.ChunkFormat,
		"services.diarization.url": &c.Services.Diarization.URL,
		"services.embedding.url":   &c.Services.Embedding.URL,
		"services.asr.url":         &c.Services.ASR.URL,
		"llm.base_url":             &c.LLM.BaseURL,
		"llm.api_key":              &c.LLM.APIKey,
		"llm.model":                &c.LLM.Model,
		"paths.chunks":             &c.Paths.Chunks,
		"paths.outputs":            &c.Paths.Outputs,
	}
	for k, p := range floats {
		if v.IsSet(k) {
			*p = v.GetFloat64(k)
		}
	}
	for k, p := range ints {
		if v.IsSet(k) {
			*p = v.GetInt(k)
		}
	}
	for k, p := range strs {
		if v.IsSet(k) {
			*p = v.GetString(k)
		}
	}
}

// Validate checks the options the segmenter and the speaker registry depend on.
func (c *Root) Validate() error {
	s := c.Segmenter
	switch {
	case s.MinSilenceLen <= 0:
		return fmt.Errorf("%w: segmenter.min_silence_len must be > 0, got %v", ErrInvalid, s.MinSilenceLen)
	case s.SilenceThresholdDB > 0:
		return fmt.Errorf("%w: segmenter.silence_threshold_db must be <= 0 dBFS, got %v", ErrInvalid, s.SilenceThresholdDB)
	case s.MinSegmentLen < 0:
		return fmt.Errorf("%w: segmenter.min_segment_len must be >= 0, got %v", ErrInvalid, s.MinSegmentLen)
	case s.MaxChunkLen <= 0:
		return fmt.Errorf("%w: segmenter.max_chunk_len must be > 0, got %v", ErrInvalid, s.MaxChunkLen)
	case c.Speakers.SimilarityThreshold < -1 || c.Speakers.SimilarityThreshold > 1:
		return fmt.Errorf("%w: speakers.similarity_threshold must be in [-1, 1], got %v", ErrInvalid, c.Speakers.SimilarityThreshold)
	case c.Audio.SampleRate <= 0:
		return fmt.Errorf("%w: audio.sample_rate must be > 0, got %d", ErrInvalid, c.Audio.SampleRate)
	}
	return nil
}

func DurSeconds(n int) time.Duration { return time.Duration(n) * time.Second }
