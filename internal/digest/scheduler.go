// Package digest runs scheduled chat digests: at each cron firing the
// trailing window of a chat is summarized and posted back to it.
package digest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/basket/chatdigest/internal/config"
	"github.com/basket/chatdigest/internal/summarize"
)

// cronParser parses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Target produces and delivers digests. The Telegram channel implements
// both sides.
type Target interface {
	Digest(ctx context.Context, chatID int64, hours int) (string, error)
	Post(chatID int64, text string)
}

// Config holds the scheduler dependencies.
type Config struct {
	Target   Target
	Entries  []config.DigestConfig
	Logger   *slog.Logger
	Interval time.Duration // tick interval; defaults to 1 minute if zero
}

type entry struct {
	cfg     config.DigestConfig
	nextRun time.Time
}

// Scheduler ticks at a fixed interval and fires any digest whose cron
// schedule has come due.
type Scheduler struct {
	target   Target
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	entries []entry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a Scheduler with the given config. Entries with
// an unparsable cron expression are dropped with an error log.
func NewScheduler(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		target:   cfg.Target,
		logger:   logger,
		interval: interval,
	}
	s.SetEntries(cfg.Entries)
	return s
}

// SetEntries replaces the schedule set. Called at startup and on config
// hot-reload.
func (s *Scheduler) SetEntries(configs []config.DigestConfig) {
	now := time.Now()
	entries := make([]entry, 0, len(configs))
	for _, c := range configs {
		next, err := NextRunTime(c.Cron, now)
		if err != nil {
			s.logger.Error("digest: invalid cron expression, entry dropped",
				"chat_id", c.ChatID, "cron", c.Cron, "error", err)
			continue
		}
		entries = append(entries, entry{cfg: c, nextRun: next})
	}
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()
}

// Start begins the scheduler loop in a background goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("digest scheduler started", "interval", s.interval)
}

// Stop cancels the scheduler loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("digest scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, time.Now())
		}
	}
}

// tick fires every due entry and advances its next-run time.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var due []config.DigestConfig
	for i := range s.entries {
		if !s.entries[i].nextRun.After(now) {
			due = append(due, s.entries[i].cfg)
			next, err := NextRunTime(s.entries[i].cfg.Cron, now)
			if err != nil {
				// Parsed once already at SetEntries; should not happen.
				s.logger.Error("digest: failed to compute next run", "cron", s.entries[i].cfg.Cron, "error", err)
				continue
			}
			s.entries[i].nextRun = next
		}
	}
	s.mu.Unlock()

	for _, c := range due {
		s.fire(ctx, c)
	}
}

func (s *Scheduler) fire(ctx context.Context, c config.DigestConfig) {
	body, err := s.target.Digest(ctx, c.ChatID, c.Hours)
	if err != nil {
		if errors.Is(err, summarize.ErrNoContent) {
			s.logger.Info("digest: nothing to summarize", "chat_id", c.ChatID, "hours", c.Hours)
			return
		}
		s.logger.Error("digest failed", "chat_id", c.ChatID, "hours", c.Hours, "error", err)
		return
	}
	s.target.Post(c.ChatID, body)
	s.logger.Info("digest posted", "chat_id", c.ChatID, "hours", c.Hours)
}

// NextRunTime parses the cron expression and returns the next run time after the given time.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
