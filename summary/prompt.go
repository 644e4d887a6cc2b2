package summary

import (
	"fmt"
	"strings"

	"github.com/maastricht-university/speaker-timeline/timeline"
)

const promptTemplate = `
You will:
1. Read the transcript
2. Select the BEST timestamps where images should be extracted from the video
   - max %d
   - choose timestamps that represent KEY MOMENTS:
       * speaker changes
       * important content
       * emotional reactions
       * slide transitions
3. Produce a FINAL Markdown summary that includes:
   - Executive Summary
   - Speaker highlights
   - Timeline summary
   - Markdown placeholders for images like:

        ![Image at {ts}s](frames/frame_{ts}.jpg)
   - Final Summary

4. Output JSON ONLY in this schema:

{
  "summary_md": ".... markdown here ...",
  "selected_timestamps": [1.23, 5.88, 28.10]
}

--------------------------
TRANSCRIPT:
%s
--------------------------

Select timestamps + produce summary now.
`

// BuildPrompt renders tokens as dialogue lines and embeds them in the
// timestamp selection prompt. tokens are sorted by start on a copy.
func BuildPrompt(tokens []timeline.WordToken, maxImages int) string {
	sorted := append([]timeline.WordToken(nil), tokens...)
	timeline.SortByStart(sorted)
	p := fmt.Sprintf(promptTemplate, maxImages, timeline.Dialogue(sorted))
	return strings.Replace(p, "\n", "", 1)
}
