package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maastricht-university/speaker-timeline/orchestrator"
	"github.com/maastricht-university/speaker-timeline/speaker"
	"github.com/maastricht-university/speaker-timeline/timeline"
)

var (
	runRegistryIn  string
	runRegistryOut string
	runOut         string
)

var runCmd = &cobra.Command{
	Use:   "run [chunk-dir]",
	Short: "Build the speaker-attributed timeline of a chunk directory",
	Long: `Diarize, embed and transcribe every chunk in name order, resolve local
speaker labels to session-wide ids and merge the words into one timeline.

Results go to <paths.outputs>/session_<timestamp>_<run>/: timeline.json,
report.json and registry.json. Turns that fail are skipped and listed in
the report.

A registry snapshot from an earlier run can seed the speaker ids with
--registry-in. Snapshots ending in .msgpack are binary, others JSON.

Examples:
  timeline run
  timeline run audioChunks --out merged_transcript.json
  timeline run day2/ --registry-in outputs/session_20250101-120000_1f0c2a9b/registry.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, log, err := setup()
		if err != nil {
			return err
		}
		dir := c.Paths.Chunks
		if len(args) > 0 {
			dir = args[0]
		}

		var reg *speaker.Registry
		if runRegistryIn != "" {
			snap, err := speaker.LoadSnapshot(runRegistryIn)
			if err != nil {
				return err
			}
			if reg, err = speaker.Restore(snap); err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"path": runRegistryIn, "speakers": reg.Len()}).Info("registry restored")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := orchestrator.NewPipeline(c, log).Run(ctx, dir, reg)
		if err != nil {
			return err
		}
		saved, err := orchestrator.Persist(c.Paths.Outputs, dir, res)
		if err != nil {
			return err
		}
		snap := res.Registry.Snapshot()
		if err := speaker.SaveSnapshot(filepath.Join(saved.Dir, "registry.json"), snap); err != nil {
			return err
		}
		if runRegistryOut != "" {
			if err := speaker.SaveSnapshot(runRegistryOut, snap); err != nil {
				return err
			}
		}
		if runOut != "" {
			if err := timeline.WriteFile(runOut, res.Tokens); err != nil {
				return err
			}
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Session:   %s\n", saved.SessionID)
		fmt.Fprintf(w, "Duration:  %.2fs over %d chunks\n", res.Offset, len(res.Chunks))
		fmt.Fprintf(w, "Speakers:  %d\n", res.Registry.Len())
		fmt.Fprintf(w, "Words:     %d\n", len(res.Tokens))
		fmt.Fprintf(w, "Skipped:   %d turns, %d chunks\n", res.SkippedTurns, res.SkippedChunks)
		fmt.Fprintf(w, "Timeline:  %s\n", saved.TimelinePath)
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runRegistryIn, "registry-in", "", "seed the speaker registry from a snapshot")
	f.StringVar(&runRegistryOut, "registry-out", "", "also write the final registry snapshot here")
	f.StringVarP(&runOut, "out", "o", "", "also write the timeline here")
	f.Float64("similarity-threshold", 0, "cosine similarity needed to reuse a speaker id")
	f.Int("prefetch", 0, "chunks fetched ahead of the merge step")
	f.Int("turn-workers", 0, "concurrent model calls per chunk")
	bindFlags(runCmd, map[string]string{
		"similarity-threshold": "speakers.similarity_threshold",
		"prefetch":             "orchestrator.prefetch",
		"turn-workers":         "orchestrator.turn_workers",
	})
}
