// Package retrieval selects ordered slices of the message log, either
// by trailing time window or by trailing message count.
package retrieval

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/basket/chatdigest/internal/msglog"
)

// MaxCount caps count-based selection. Larger requests are a
// validation error, not a store error.
const MaxCount = 10000

// TimeOptions maps the user-facing time options to window hours.
var TimeOptions = map[string]int{
	"12hr":  12,
	"18hr":  18,
	"1day":  24,
	"2days": 48,
	"1week": 168,
}

// ValidationError reports bad selection arguments. It is replied to the
// requester directly and never logged as a system fault.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return e.Detail
}

// Rule is a tagged selection variant: exactly one of the two kinds is
// active. Constructed per request, never persisted.
type Rule struct {
	// Hours is the window size for time-based selection; zero when the
	// rule is count-based.
	Hours int

	// Count is the trailing message count; zero when the rule is
	// time-based.
	Count int
}

// ByTimeWindow returns a rule selecting records from the last h hours.
func ByTimeWindow(h int) Rule {
	return Rule{Hours: h}
}

// ByTrailingCount returns a rule selecting the n most recent records.
func ByTrailingCount(n int) Rule {
	return Rule{Count: n}
}

// Label returns the display label used in summary replies.
func (r Rule) Label() string {
	if r.Count > 0 {
		return fmt.Sprintf("last %d messages", r.Count)
	}
	for opt, h := range TimeOptions {
		if h == r.Hours {
			return opt
		}
	}
	return fmt.Sprintf("last %d hours", r.Hours)
}

// ParseOption resolves a time option like "1day" to a rule.
func ParseOption(opt string) (Rule, error) {
	hours, ok := TimeOptions[opt]
	if !ok {
		return Rule{}, &ValidationError{Detail: fmt.Sprintf("unknown time option %q", opt)}
	}
	return ByTimeWindow(hours), nil
}

// ParseCount resolves a "last <n>" argument to a rule.
func ParseCount(raw string) (Rule, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return Rule{}, &ValidationError{Detail: fmt.Sprintf("count must be a positive number, got %q", raw)}
	}
	if n > MaxCount {
		return Rule{}, &ValidationError{Detail: fmt.Sprintf("maximum count is %d messages", MaxCount)}
	}
	return ByTrailingCount(n), nil
}

// Query returns the records of chatID selected by rule, ascending by
// date. Legacy records (no chat_id) belong to every partition. An empty
// result is a valid outcome.
func Query(records []msglog.Record, chatID int64, rule Rule, now time.Time) []msglog.Record {
	var partition []msglog.Record
	for _, rec := range records {
		if rec.Legacy || rec.ChatID == chatID {
			partition = append(partition, rec)
		}
	}

	var selected []msglog.Record
	if rule.Count > 0 {
		sort.SliceStable(partition, func(i, j int) bool {
			return partition[i].Date.After(partition[j].Date)
		})
		if len(partition) > rule.Count {
			partition = partition[:rule.Count]
		}
		selected = partition
	} else {
		start := now.Add(-time.Duration(rule.Hours) * time.Hour)
		for _, rec := range partition {
			if !rec.Date.Before(start) && !rec.Date.After(now) {
				selected = append(selected, rec)
			}
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Date.Before(selected[j].Date)
	})
	return selected
}
