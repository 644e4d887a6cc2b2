package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/speaker-timeline/orchestrator"
)

var splitOut string

var splitCmd = &cobra.Command{
	Use:   "split <recording>",
	Short: "Split a recording into chunks at silences",
	Long: `Split a .wav or .mp3 recording at silent gaps and write the pieces as
chunk_000.<format>, chunk_001.<format>, ... so that name order is time order.

Pieces shorter than --min-segment-len are dropped and pieces longer than
--max-chunk-len are cut into equal parts.

Examples:
  timeline split meeting.mp3
  timeline split meeting.wav -o chunks --max-chunk-len 240 --format mp3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, log, err := setup()
		if err != nil {
			return err
		}
		out := splitOut
		if out == "" {
			out = c.Paths.Chunks
		}
		paths, err := orchestrator.SplitRecording(args[0], out, c, log)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d chunks written to %s\n", len(paths), out)
		return nil
	},
}

func init() {
	f := splitCmd.Flags()
	f.StringVarP(&splitOut, "out", "o", "", "chunk directory (default paths.chunks)")
	f.Float64("min-silence-len", 0, "minimum silence length in seconds")
	f.Float64("threshold-db", 0, "silence threshold in dBFS")
	f.Float64("min-segment-len", 0, "minimum chunk length in seconds")
	f.Float64("max-chunk-len", 0, "maximum chunk length in seconds")
	f.String("format", "", "chunk format (wav or mp3)")
	bindFlags(splitCmd, map[string]string{
		"min-silence-len": "segmenter.min_silence_len",
		"threshold-db":    "segmenter.silence_threshold_db",
		"min-segment-len": "segmenter.min_segment_len",
		"max-chunk-len":   "segmenter.max_chunk_len",
		"format":          "audio.chunk_format",
	})
}
