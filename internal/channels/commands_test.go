package channels

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/basket/chatdigest/internal/archive"
	"github.com/basket/chatdigest/internal/retrieval"
	"github.com/basket/chatdigest/internal/summarize"
)

func TestParseSummarizeArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      string
		wantHours int
		wantCount int
		wantErr   bool
	}{
		{"time option", "1day", 24, 0, false},
		{"week option", "1week", 168, 0, false},
		{"count option", "last 50", 0, 50, false},
		{"count case-insensitive", "Last 50", 0, 50, false},
		{"count max", "last 10000", 0, 10000, false},
		{"count over max", "last 10001", 0, 0, true},
		{"count zero", "last 0", 0, 0, true},
		{"count garbage", "last many", 0, 0, true},
		{"unknown option", "3days", 0, 0, true},
		{"no args", "", 0, 0, true},
		{"too many args", "1day extra", 0, 0, true},
		{"bare last", "last", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := parseSummarizeArgs(tt.args)
			if tt.wantErr {
				var verr *retrieval.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("err = %v, want ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSummarizeArgs(%q): %v", tt.args, err)
			}
			if rule.Hours != tt.wantHours || rule.Count != tt.wantCount {
				t.Errorf("rule = %+v, want hours=%d count=%d", rule, tt.wantHours, tt.wantCount)
			}
		})
	}
}

func TestFormatSummary(t *testing.T) {
	got := formatSummary(summarize.Result{Label: "1day", Body: "things happened"})
	if !strings.Contains(got, "Summary for 1day") {
		t.Errorf("label missing: %q", got)
	}
	if !strings.Contains(got, "things happened") {
		t.Errorf("body missing: %q", got)
	}
}

func TestFormatHistory(t *testing.T) {
	summaries := []archive.Summary{
		{Label: "1day", Body: "first", MsgCount: 10, CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		{Label: "last 50 messages", Body: strings.Repeat("long ", 100), MsgCount: 50, CreatedAt: time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC)},
	}
	got := formatHistory(summaries)
	if !strings.Contains(got, "1day (10 messages, 2026-03-01)") {
		t.Errorf("first entry malformed: %q", got)
	}
	if !strings.Contains(got, "…") {
		t.Error("long body not cut to a snippet")
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("short", 10); got != "short" {
		t.Errorf("snippet(short) = %q", got)
	}
	if got := snippet("abcdefghij", 4); got != "abcd…" {
		t.Errorf("snippet = %q", got)
	}
}
