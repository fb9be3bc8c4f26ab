package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds all chatdigest metric instruments.
type Metrics struct {
	MessagesLogged    metric.Int64Counter
	SyncedMessages    metric.Int64Counter
	SummarizeDuration metric.Float64Histogram
	SummarizeErrors   metric.Int64Counter
	Truncations       metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.MessagesLogged, err = meter.Int64Counter("chatdigest.messages.logged",
		metric.WithDescription("Messages appended to the log (duplicates excluded)"),
	)
	if err != nil {
		return nil, err
	}

	m.SyncedMessages, err = meter.Int64Counter("chatdigest.messages.synced",
		metric.WithDescription("Messages added by backfill sync"),
	)
	if err != nil {
		return nil, err
	}

	m.SummarizeDuration, err = meter.Float64Histogram("chatdigest.summarize.duration",
		metric.WithDescription("Summarizer call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.SummarizeErrors, err = meter.Int64Counter("chatdigest.summarize.errors",
		metric.WithDescription("Failed summarizer calls by cause"),
	)
	if err != nil {
		return nil, err
	}

	m.Truncations, err = meter.Int64Counter("chatdigest.summarize.truncations",
		metric.WithDescription("Prompt blocks cut to the character limit"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
