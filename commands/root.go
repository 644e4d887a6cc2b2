package commands

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	cfg "github.com/maastricht-university/speaker-timeline/config"
)

var (
	// Global flags
	configPath string

	// env and flag overlay, applied on top of the YAML config
	v = cfg.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Speaker-attributed word timelines for long recordings",
	Long: `timeline - split long recordings, resolve speakers across chunks and
assemble a single word-level timeline.

Typical session:
  timeline split meeting.mp3            # writes audioChunks/chunk_000.wav ...
  timeline run audioChunks              # writes outputs/session_<ts>_<run>/timeline.json
  timeline summarize outputs/session_20250101-120000_1f0c2a9b/timeline.json

Configuration is read from --config, config/<CONFIG_ENV>/config.yaml or
./config.yaml. Any key can be overridden with TIMELINE_<SECTION>_<KEY>,
e.g. TIMELINE_SPEAKERS_SIMILARITY_THRESHOLD=0.8.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	bindFlags(rootCmd, map[string]string{"log-level": "pipeline.log_level"})

	rootCmd.AddCommand(splitCmd, runCmd, summarizeCmd, versionCmd)
}

// bindFlags maps flag names of cmd onto config keys. Only flags set on the
// command line override the file.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for name, key := range keys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			f = cmd.PersistentFlags().Lookup(name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			panic(fmt.Sprintf("bind --%s: %v", name, err))
		}
	}
}

// setup loads the configuration and builds the logger for a command.
func setup() (*cfg.Root, *logrus.Logger, error) {
	c, err := cfg.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	c.Overlay(v)
	log, err := newLogger(c.Pipeline.LogLvl)
	if err != nil {
		return nil, nil, err
	}
	return c, log, nil
}

func newLogger(level string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: pipeline.log_level: %v", cfg.ErrInvalid, err)
	}
	log.SetLevel(lvl)
	return log, nil
}
