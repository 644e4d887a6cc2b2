package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/speaker-timeline/clients"
	"github.com/maastricht-university/speaker-timeline/summary"
	"github.com/maastricht-university/speaker-timeline/timeline"
)

var summarizeOut string

var summarizeCmd = &cobra.Command{
	Use:   "summarize <timeline.json>",
	Short: "Summarize a timeline with a language model",
	Long: `Render the timeline as dialogue, ask an OpenAI-compatible chat model to
pick the key moments and write a Markdown summary.

Writes summary_prompt.md, raw_llm_output.json, session_summary.md and
selected_timestamps.json next to the timeline unless --out-dir is given.

Examples:
  timeline summarize outputs/session_20250101-120000_1f0c2a9b/timeline.json
  TIMELINE_LLM_API_KEY=... timeline summarize merged_transcript.json --model gpt-4o-mini`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, log, err := setup()
		if err != nil {
			return err
		}
		tokens, err := timeline.ReadFile(args[0])
		if err != nil {
			return err
		}
		out := summarizeOut
		if out == "" {
			out = filepath.Dir(args[0])
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		llm := clients.NewLLM(c.LLM.BaseURL, c.LLM.APIKey, c.LLM.Model, c.LLM.MaxTokens)
		s, err := summary.Summarize(ctx, llm, tokens, c.LLM.MaxImages, log.WithField("model", c.LLM.Model))
		if err != nil {
			return err
		}
		files, err := s.Write(out)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Summary:    %s\nTimestamps: %v\n", files.Summary, s.Result.SelectedTimestamps)
		return nil
	},
}

func init() {
	f := summarizeCmd.Flags()
	f.StringVarP(&summarizeOut, "out-dir", "o", "", "output directory (default: next to the timeline)")
	f.String("model", "", "chat model name")
	f.String("base-url", "", "OpenAI-compatible API base URL")
	f.Int("max-images", 0, "maximum number of key moments")
	bindFlags(summarizeCmd, map[string]string{
		"model":      "llm.model",
		"base-url":   "llm.base_url",
		"max-images": "llm.max_images",
	})
}
