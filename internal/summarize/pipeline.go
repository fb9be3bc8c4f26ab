// Package summarize turns a retrieved slice of the message log into a
// bounded prompt and a user-facing summary via an external service.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/basket/chatdigest/internal/msglog"
	obs "github.com/basket/chatdigest/internal/otel"
)

// MaxPromptChars bounds the joined message block handed to the
// summarizer. Anything longer is cut to exactly this many characters;
// the cut is silent to the summarizer but logged here since it changes
// summary fidelity.
const MaxPromptChars = 200000

const promptTemplate = `Please provide a concise summary of the following group chat messages.
Focus on the main topics, key points, and important information discussed.

Messages:
%s

Summary:`

// Result is the outcome of one summarize request. Transient, never
// stored by the pipeline itself.
type Result struct {
	Label string
	Body  string
}

// Config holds the pipeline dependencies.
type Config struct {
	Engine  Engine
	Logger  *slog.Logger
	Metrics *obs.Metrics
	Tracer  trace.Tracer

	// CallTimeout bounds the remote call. Zero means no timeout; a
	// deadline hit surfaces as a RemoteError, not a distinct state.
	CallTimeout time.Duration
}

// Pipeline assembles prompts and maps summarizer failures to typed
// errors. It performs a single attempt per request, no retries.
type Pipeline struct {
	engine  Engine
	logger  *slog.Logger
	metrics *obs.Metrics
	tracer  trace.Tracer
	timeout time.Duration
}

func NewPipeline(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = nooptrace.NewTracerProvider().Tracer(obs.TracerName)
	}
	return &Pipeline{
		engine:  cfg.Engine,
		logger:  logger,
		metrics: cfg.Metrics,
		tracer:  tracer,
		timeout: cfg.CallTimeout,
	}
}

// Run summarizes records (already ascending by date) under the given
// display label. Returns ErrNoContent when there is nothing to
// summarize and *RemoteError when the external call fails.
func (p *Pipeline) Run(ctx context.Context, records []msglog.Record, label string) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "summarize.run", trace.WithAttributes(
		attribute.String("label", label),
		attribute.Int("records", len(records)),
	))
	defer span.End()

	block := joinTexts(records)
	if strings.TrimSpace(block) == "" {
		return Result{}, ErrNoContent
	}

	if runes := []rune(block); len(runes) > MaxPromptChars {
		block = string(runes[:MaxPromptChars])
		p.logger.Warn("message block truncated for summarizer",
			"label", label, "limit", MaxPromptChars)
		if p.metrics != nil {
			p.metrics.Truncations.Add(ctx, 1)
		}
	}

	prompt := fmt.Sprintf(promptTemplate, block)

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := p.engine.Summarize(callCtx, prompt)
	if p.metrics != nil {
		p.metrics.SummarizeDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		rerr := remoteError(err)
		p.countError(ctx, rerr.Cause)
		span.RecordError(rerr)
		span.SetStatus(codes.Error, string(rerr.Cause))
		return Result{}, rerr
	}

	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		rerr := &RemoteError{Cause: CauseEmptyResponse, Detail: "empty response from summarizer"}
		p.countError(ctx, rerr.Cause)
		span.RecordError(rerr)
		span.SetStatus(codes.Error, string(rerr.Cause))
		return Result{}, rerr
	}

	return Result{Label: label, Body: trimmed}, nil
}

func (p *Pipeline) countError(ctx context.Context, cause Cause) {
	if p.metrics == nil {
		return
	}
	p.metrics.SummarizeErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("cause", string(cause))))
}

// joinTexts concatenates record texts in their given order, separated
// by single spaces.
func joinTexts(records []msglog.Record) string {
	parts := make([]string, 0, len(records))
	for _, rec := range records {
		parts = append(parts, rec.Text)
	}
	return strings.Join(parts, " ")
}
