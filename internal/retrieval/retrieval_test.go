package retrieval

import (
	"errors"
	"testing"
	"time"

	"github.com/basket/chatdigest/internal/msglog"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)

func rec(chatID int64, text string, age time.Duration) msglog.Record {
	return msglog.Record{ChatID: chatID, Text: text, Date: now.Add(-age)}
}

func texts(records []msglog.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Text)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQueryTimeWindow(t *testing.T) {
	log := []msglog.Record{
		rec(1, "old", 30*time.Hour),
		rec(1, "recent", 2*time.Hour),
		rec(2, "other chat", time.Hour),
		rec(1, "fresh", 10*time.Minute),
	}

	got := Query(log, 1, ByTimeWindow(24), now)
	if !equal(texts(got), []string{"recent", "fresh"}) {
		t.Errorf("got %v, want [recent fresh]", texts(got))
	}

	// Window bounds are inclusive on both ends.
	edge := []msglog.Record{
		rec(1, "exactly 24h", 24*time.Hour),
		{ChatID: 1, Text: "exactly now", Date: now},
	}
	got = Query(edge, 1, ByTimeWindow(24), now)
	if len(got) != 2 {
		t.Errorf("inclusive bounds: got %v", texts(got))
	}

	// A huge window converges to the whole partition.
	got = Query(log, 1, ByTimeWindow(1000000), now)
	if len(got) != 3 {
		t.Errorf("huge window: got %d records, want 3", len(got))
	}
}

func TestQueryTrailingCount(t *testing.T) {
	log := []msglog.Record{
		rec(5, "hi", 2*time.Second),
		rec(5, "there", time.Second),
		rec(5, "bye", 0),
	}

	got := Query(log, 5, ByTrailingCount(2), now)
	if !equal(texts(got), []string{"there", "bye"}) {
		t.Errorf("got %v, want [there bye]", texts(got))
	}

	// n larger than the partition returns everything, still ascending.
	got = Query(log, 5, ByTrailingCount(100), now)
	if !equal(texts(got), []string{"hi", "there", "bye"}) {
		t.Errorf("got %v, want [hi there bye]", texts(got))
	}
}

func TestQueryLegacyRecords(t *testing.T) {
	log := []msglog.Record{
		{Legacy: true, Text: "legacy", Date: now.Add(-time.Hour)},
		rec(7, "mine", 30*time.Minute),
		rec(8, "theirs", 20*time.Minute),
	}

	got := Query(log, 7, ByTimeWindow(24), now)
	if !equal(texts(got), []string{"legacy", "mine"}) {
		t.Errorf("got %v, want [legacy mine]", texts(got))
	}
}

func TestQueryEmpty(t *testing.T) {
	if got := Query(nil, 1, ByTimeWindow(24), now); len(got) != 0 {
		t.Errorf("nil log: got %d records", len(got))
	}
	log := []msglog.Record{rec(2, "elsewhere", time.Hour)}
	if got := Query(log, 1, ByTrailingCount(5), now); len(got) != 0 {
		t.Errorf("no matching chat: got %d records", len(got))
	}
}

func TestParseOption(t *testing.T) {
	tests := []struct {
		opt       string
		wantHours int
		wantErr   bool
	}{
		{"12hr", 12, false},
		{"18hr", 18, false},
		{"1day", 24, false},
		{"2days", 48, false},
		{"1week", 168, false},
		{"3days", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.opt, func(t *testing.T) {
			rule, err := ParseOption(tt.opt)
			if tt.wantErr {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("ParseOption(%q) err = %v, want ValidationError", tt.opt, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseOption(%q): %v", tt.opt, err)
			}
			if rule.Hours != tt.wantHours {
				t.Errorf("hours = %d, want %d", rule.Hours, tt.wantHours)
			}
		})
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		raw       string
		wantCount int
		wantErr   bool
	}{
		{"1", 1, false},
		{"50", 50, false},
		{"10000", 10000, false},
		{"10001", 0, true},
		{"0", 0, true},
		{"-5", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			rule, err := ParseCount(tt.raw)
			if tt.wantErr {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("ParseCount(%q) err = %v, want ValidationError", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCount(%q): %v", tt.raw, err)
			}
			if rule.Count != tt.wantCount {
				t.Errorf("count = %d, want %d", rule.Count, tt.wantCount)
			}
		})
	}
}

func TestRuleLabel(t *testing.T) {
	if got := ByTrailingCount(50).Label(); got != "last 50 messages" {
		t.Errorf("count label = %q", got)
	}
	if got := ByTimeWindow(24).Label(); got != "1day" {
		t.Errorf("time label = %q", got)
	}
	if got := ByTimeWindow(3).Label(); got != "last 3 hours" {
		t.Errorf("fallback label = %q", got)
	}
}
