package channels

import (
	"fmt"
	"strings"
	"time"

	"github.com/basket/chatdigest/internal/archive"
	"github.com/basket/chatdigest/internal/retrieval"
	"github.com/basket/chatdigest/internal/summarize"
)

const helpText = `Hello! I log group messages and summarize them on demand.

Commands:
- /summarize <option> - Summarize messages
- /sync - Fetch recent messages (messages sent after the bot was added)
- /history - Show the last few summaries for this chat

Time-based options:
- 12hr (Last 12 hours)
- 18hr (Last 18 hours)
- 1day (Last 24 hours)
- 2days (Last 2 days)
- 1week (Last 7 days)

Count-based options:
- last <number> (Last N messages)
- Example: /summarize last 50

Note: bots can only access messages sent after they were added to the group.`

const usageText = `Use:
- /summarize <time_option> (e.g. /summarize 1day)
- /summarize last <number> (e.g. /summarize last 50)`

// parseSummarizeArgs resolves the /summarize argument string to a
// selection rule. Bad arguments come back as *retrieval.ValidationError.
func parseSummarizeArgs(args string) (retrieval.Rule, error) {
	fields := strings.Fields(args)
	switch {
	case len(fields) >= 2 && strings.EqualFold(fields[0], "last"):
		return retrieval.ParseCount(fields[1])
	case len(fields) == 1:
		return retrieval.ParseOption(fields[0])
	default:
		return retrieval.Rule{}, &retrieval.ValidationError{Detail: "invalid format"}
	}
}

func formatSummary(result summarize.Result) string {
	return fmt.Sprintf("*Summary for %s:*\n\n_%s_", result.Label, result.Body)
}

func formatHistory(summaries []archive.Summary) string {
	var b strings.Builder
	b.WriteString("*Recent summaries:*\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "\n- %s (%d messages, %s)\n  _%s_\n",
			s.Label, s.MsgCount, s.CreatedAt.Format(time.DateOnly), snippet(s.Body, 200))
	}
	return b.String()
}

// snippet cuts s to at most n runes, appending an ellipsis when cut.
func snippet(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
