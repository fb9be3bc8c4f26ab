package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/basket/chatdigest/internal/archive"
	"github.com/basket/chatdigest/internal/backfill"
	"github.com/basket/chatdigest/internal/msglog"
	obs "github.com/basket/chatdigest/internal/otel"
	"github.com/basket/chatdigest/internal/retrieval"
	"github.com/basket/chatdigest/internal/summarize"
)

// syncBatchLimit is what a single getUpdates call may return. Telegram
// caps it at 100; messages sent before the bot joined are unreachable.
const syncBatchLimit = 100

// TelegramChannel implements the Channel interface for Telegram. It is
// the sole event source: live messages, summarize requests, and sync
// requests all arrive through its long-poll loop, one at a time.
type TelegramChannel struct {
	token    string
	store    *msglog.Store
	pipeline *summarize.Pipeline
	archive  *archive.Store
	logger   *slog.Logger
	metrics  *obs.Metrics
	bot      *tgbotapi.BotAPI

	adapter *backfill.Adapter
}

// Config holds the channel dependencies.
type Config struct {
	Token    string
	Store    *msglog.Store
	Pipeline *summarize.Pipeline
	Archive  *archive.Store
	Logger   *slog.Logger
	Metrics  *obs.Metrics
}

// NewTelegramChannel creates a new Telegram channel. The channel itself
// serves as the backfill source: /sync pulls the transport's recent
// update buffer back through the store's dedup path.
func NewTelegramChannel(cfg Config) *TelegramChannel {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	t := &TelegramChannel{
		token:    cfg.Token,
		store:    cfg.Store,
		pipeline: cfg.Pipeline,
		archive:  cfg.Archive,
		logger:   logger,
		metrics:  cfg.Metrics,
	}
	t.adapter = backfill.NewAdapter(t, cfg.Store, logger)
	return t
}

func (t *TelegramChannel) Name() string {
	return "telegram"
}

func (t *TelegramChannel) Start(ctx context.Context) error {
	var err error
	t.bot, err = tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}

	t.logger.Info("telegram bot started", "user", t.bot.Self.UserName)

	// Reconnection loop with exponential backoff.
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := t.bot.GetUpdatesChan(u)

		pollErr := t.pollUpdates(ctx, updates)

		// Always clean up the old polling goroutine before reconnecting.
		t.bot.StopReceivingUpdates()

		if pollErr != nil {
			t.logger.Warn("telegram poll disconnected, reconnecting", "error", pollErr, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		// pollUpdates returned nil means ctx was cancelled.
		return nil
	}
}

// pollUpdates reads from the update channel until ctx is done, the channel
// closes, or no updates arrive within 2x the long-poll timeout (stall detection).
// Returns nil on context cancellation, or an error to trigger reconnection.
func (t *TelegramChannel) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	// tgbotapi uses a 60s long-poll timeout. If we see nothing for 2.5 minutes,
	// the connection is likely dead (the library blocks rather than closing the channel).
	const stallTimeout = 150 * time.Second

	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}

			// Reset stall timer on every received update (including empty long-poll returns).
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			if update.Message != nil {
				t.handleMessage(ctx, update.Message)
			}

		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

func isGroup(chat *tgbotapi.Chat) bool {
	return chat != nil && (chat.IsGroup() || chat.IsSuperGroup())
}

func (t *TelegramChannel) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Text == "" {
		return
	}

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			t.reply(msg.Chat.ID, helpText)
		case "summarize":
			t.handleSummarize(ctx, msg)
		case "sync":
			t.handleSync(ctx, msg)
		case "history":
			t.handleHistory(ctx, msg)
		}
		return
	}

	// Live ingestion: log plain group text through the dedup path.
	if !isGroup(msg.Chat) {
		return
	}
	t.logLiveMessage(ctx, msg)
}

func (t *TelegramChannel) logLiveMessage(ctx context.Context, msg *tgbotapi.Message) {
	var userID int64
	username := "Unknown"
	if msg.From != nil {
		userID = msg.From.ID
		if msg.From.UserName != "" {
			username = msg.From.UserName
		}
	}

	rec := msglog.Record{
		UserID:   userID,
		Username: username,
		ChatID:   msg.Chat.ID,
		Text:     msg.Text,
		Date:     time.Now().Truncate(time.Second),
	}
	added, err := t.store.Append(rec)
	if err != nil {
		t.logger.Error("failed to log message", "chat_id", msg.Chat.ID, "error", err)
		return
	}
	if added {
		t.logger.Info("message logged", "chat_id", msg.Chat.ID, "user_id", userID, "user_name", username)
		if t.metrics != nil {
			t.metrics.MessagesLogged.Add(ctx, 1)
		}
	}
}

func (t *TelegramChannel) handleSummarize(ctx context.Context, msg *tgbotapi.Message) {
	reqID := uuid.NewString()
	chatID := msg.Chat.ID

	rule, err := parseSummarizeArgs(msg.CommandArguments())
	if err != nil {
		var verr *retrieval.ValidationError
		if errors.As(err, &verr) {
			t.reply(chatID, verr.Detail+"\n\n"+usageText)
			return
		}
		t.reply(chatID, usageText)
		return
	}
	label := rule.Label()

	records, err := t.store.Load()
	if err != nil {
		if errors.Is(err, msglog.ErrStoreCorrupt) {
			t.logger.Error("message log unreadable", "request_id", reqID, "error", err)
			t.reply(chatID, "The message log could not be read. Summaries are unavailable until it is repaired.")
			return
		}
		t.logger.Error("failed to load message log", "request_id", reqID, "error", err)
		t.reply(chatID, "An error occurred while reading the message log.")
		return
	}
	if len(records) == 0 {
		t.reply(chatID, "No messages found. The message log is empty. Start chatting in the group to log messages.")
		return
	}

	selected := retrieval.Query(records, chatID, rule, time.Now())
	if len(selected) == 0 {
		if rule.Count > 0 {
			t.reply(chatID, "No messages found in this group.")
		} else {
			t.reply(chatID, "No messages found in the selected time range.")
		}
		return
	}

	t.logger.Info("summarize request", "request_id", reqID, "chat_id", chatID, "label", label, "records", len(selected))

	result, err := t.pipeline.Run(ctx, selected, label)
	if err != nil {
		switch {
		case errors.Is(err, summarize.ErrNoContent):
			t.reply(chatID, "No valid messages found.")
		default:
			var rerr *summarize.RemoteError
			if errors.As(err, &rerr) {
				t.logger.Error("summarization failed", "request_id", reqID, "cause", string(rerr.Cause), "error", err)
				t.reply(chatID, fmt.Sprintf("Error generating summary: %s", rerr.Detail))
			} else {
				t.logger.Error("summarization failed", "request_id", reqID, "error", err)
				t.reply(chatID, "Error generating summary.")
			}
		}
		return
	}

	if t.archive != nil {
		if err := t.archive.Save(ctx, chatID, result.Label, result.Body, len(selected)); err != nil {
			t.logger.Warn("failed to archive summary", "request_id", reqID, "error", err)
		}
	}

	t.replyMarkdown(chatID, formatSummary(result))
}

func (t *TelegramChannel) handleSync(ctx context.Context, msg *tgbotapi.Message) {
	if !isGroup(msg.Chat) {
		t.reply(msg.Chat.ID, "This command can only be used in groups.")
		return
	}
	chatID := msg.Chat.ID
	t.reply(chatID, "Syncing messages... This may take a moment.")

	added, err := t.adapter.Sync(ctx, chatID)
	if err != nil {
		// Degraded, not fatal: the transport buffer was unreachable but
		// live logging keeps working.
		t.logger.Warn("sync degraded", "chat_id", chatID, "error", err)
		t.reply(chatID,
			"Sync completed with limitations.\n\n"+
				"Note: bots can only access messages sent after they were added to the group. "+
				"All new messages are logged automatically going forward.")
		return
	}
	if t.metrics != nil && added > 0 {
		t.metrics.SyncedMessages.Add(ctx, int64(added))
	}

	if added > 0 {
		t.reply(chatID, fmt.Sprintf("Synced %d messages to the log.", added))
		return
	}
	t.reply(chatID,
		"No new messages found to sync.\n\n"+
			"Note: bots can only access messages sent after they were added to the group. "+
			"Messages sent before the bot was added cannot be retrieved.")
}

func (t *TelegramChannel) handleHistory(ctx context.Context, msg *tgbotapi.Message) {
	if t.archive == nil {
		t.reply(msg.Chat.ID, "Summary history is not enabled.")
		return
	}
	summaries, err := t.archive.Recent(ctx, msg.Chat.ID, 5)
	if err != nil {
		t.logger.Error("failed to load summary history", "chat_id", msg.Chat.ID, "error", err)
		t.reply(msg.Chat.ID, "Could not load summary history.")
		return
	}
	if len(summaries) == 0 {
		t.reply(msg.Chat.ID, "No summaries yet. Run /summarize first.")
		return
	}
	t.replyMarkdown(msg.Chat.ID, formatHistory(summaries))
}

// RecentMessages implements backfill.Source over the transport's
// getUpdates buffer.
func (t *TelegramChannel) RecentMessages(ctx context.Context) ([]backfill.Incoming, error) {
	cfg := tgbotapi.UpdateConfig{Limit: syncBatchLimit, Timeout: 1}
	updates, err := t.bot.GetUpdates(cfg)
	if err != nil {
		return nil, fmt.Errorf("getUpdates: %w", err)
	}

	batch := make([]backfill.Incoming, 0, len(updates))
	for _, u := range updates {
		msg := u.Message
		if msg == nil || !isGroup(msg.Chat) || msg.Text == "" {
			continue
		}
		in := backfill.Incoming{
			ChatID:    msg.Chat.ID,
			Text:      msg.Text,
			Date:      time.Unix(int64(msg.Date), 0),
			IsCommand: msg.IsCommand(),
		}
		if msg.From != nil {
			in.UserID = msg.From.ID
			in.Username = msg.From.UserName
		}
		batch = append(batch, in)
	}
	return batch, nil
}

// Digest implements digest.Target: summarize the trailing window of a
// chat for the scheduled digest path.
func (t *TelegramChannel) Digest(ctx context.Context, chatID int64, hours int) (string, error) {
	records, err := t.store.Load()
	if err != nil {
		return "", err
	}
	rule := retrieval.ByTimeWindow(hours)
	selected := retrieval.Query(records, chatID, rule, time.Now())

	result, err := t.pipeline.Run(ctx, selected, rule.Label())
	if err != nil {
		return "", err
	}
	if t.archive != nil {
		if err := t.archive.Save(ctx, chatID, result.Label, result.Body, len(selected)); err != nil {
			t.logger.Warn("failed to archive digest", "chat_id", chatID, "error", err)
		}
	}
	return formatSummary(result), nil
}

// Post implements digest.Target.
func (t *TelegramChannel) Post(chatID int64, text string) {
	t.replyMarkdown(chatID, text)
}

func (t *TelegramChannel) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("failed to send telegram reply", "error", err)
	}
}

// replyMarkdown sends a markdown-formatted message.
func (t *TelegramChannel) replyMarkdown(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("failed to send telegram markdown reply", "error", err)
	}
}
