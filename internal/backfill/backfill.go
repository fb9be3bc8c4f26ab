// Package backfill pulls recently buffered transport messages into the
// message log through the same dedup path as live ingestion. The
// transport bounds what is visible: messages sent before the bot
// joined a chat can never be recovered.
package backfill

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/basket/chatdigest/internal/msglog"
)

// Incoming is the explicit transport message shape. The adapter only
// builds a log record when Text is present and the message is not a
// command.
type Incoming struct {
	ChatID    int64
	UserID    int64
	Username  string
	Text      string
	Date      time.Time
	IsCommand bool
}

// Source provides the transport's bounded batch of recent messages.
type Source interface {
	RecentMessages(ctx context.Context) ([]Incoming, error)
}

// Adapter feeds transport messages into the store.
type Adapter struct {
	source Source
	store  *msglog.Store
	logger *slog.Logger
}

func NewAdapter(source Source, store *msglog.Store, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{source: source, store: store, logger: logger}
}

// Sync pulls the transport's recent batch and appends every plain text
// message belonging to chatID. It returns the count of records actually
// added (duplicates excluded). A bad candidate is skipped, never fatal;
// only a total transport failure returns an error, and callers treat
// even that as a degraded outcome rather than raising further.
func (a *Adapter) Sync(ctx context.Context, chatID int64) (int, error) {
	batch, err := a.source.RecentMessages(ctx)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, msg := range batch {
		if msg.ChatID != chatID {
			continue
		}
		if msg.IsCommand || strings.HasPrefix(msg.Text, "/") {
			continue
		}
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}

		username := msg.Username
		if username == "" {
			username = "Unknown"
		}
		rec := msglog.Record{
			UserID:   msg.UserID,
			Username: username,
			ChatID:   msg.ChatID,
			Text:     msg.Text,
			Date:     msg.Date.Truncate(time.Second),
		}

		ok, err := a.store.Append(rec)
		if err != nil {
			a.logger.Warn("sync: skipping candidate", "chat_id", chatID, "error", err)
			continue
		}
		if ok {
			added++
		}
	}

	a.logger.Info("sync completed", "chat_id", chatID, "candidates", len(batch), "added", added)
	return added, nil
}
