package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"

	"github.com/basket/chatdigest/internal/archive"
	"github.com/basket/chatdigest/internal/channels"
	"github.com/basket/chatdigest/internal/config"
	"github.com/basket/chatdigest/internal/digest"
	"github.com/basket/chatdigest/internal/msglog"
	otelPkg "github.com/basket/chatdigest/internal/otel"
	"github.com/basket/chatdigest/internal/summarize"
	"github.com/basket/chatdigest/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage of %s:

  %s                          Start the bot (logs to file, banner on terminal)
  %s -daemon                  Start the bot with logs mirrored to stdout

FLAGS:
`, os.Args[0], os.Args[0], os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
ENVIRONMENT VARIABLES:
  CHATDIGEST_HOME         Data directory (default: ~/.chatdigest)
  TELEGRAM_BOT_TOKEN      Required: Telegram bot API token
  GOOGLE_API_KEY          Gemini API key (GEMINI_API_KEY also accepted)
  GEMINI_MODEL            Override the summarizer model name
`)
}

func main() {
	_ = godotenv.Load()

	daemon := flag.Bool("daemon", false, "mirror logs to stdout instead of file-only")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Println("chatdigest", Version)
		return
	}

	// Quiet logs (file-only) on an interactive terminal so the banner
	// stays readable; -daemon forces them onto stdout for supervisors.
	interactive := isatty.IsTerminal(os.Stdout.Fd()) && !*daemon
	quietLogs := interactive

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fatalStartup(nil, "E_CONFIG_LOAD", err)
	}

	logger, closer, err := telemetry.NewLogger(cfg.HomeDir, cfg.LogLevel, quietLogs)
	if err != nil {
		fatalStartup(nil, "E_LOGGER_INIT", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)
	logger.Info("startup phase", "phase", "config_loaded", "home", cfg.HomeDir)

	if !cfg.Telegram.Enabled {
		fatalStartup(logger, "E_CHANNEL_DISABLED", fmt.Errorf("telegram.enabled is false; nothing to run"))
	}
	if cfg.Telegram.Token == "" {
		fatalStartup(logger, "E_TELEGRAM_TOKEN", fmt.Errorf("telegram token not set (TELEGRAM_BOT_TOKEN or telegram.token in config.yaml)"))
	}

	// Initialize OpenTelemetry (no-op when disabled, zero overhead).
	otelProvider, err := otelPkg.Init(ctx, cfg.Telemetry)
	if err != nil {
		fatalStartup(logger, "E_OTEL_INIT", err)
	}
	defer otelProvider.Shutdown(context.Background())

	metrics, err := otelPkg.NewMetrics(otelProvider.Meter)
	if err != nil {
		fatalStartup(logger, "E_METRICS_INIT", err)
	}

	store := msglog.NewStore(cfg.LogFilePath())
	logger.Info("startup phase", "phase", "message_log_ready", "path", store.Path())

	arch, err := archive.Open(cfg.ArchivePath())
	if err != nil {
		fatalStartup(logger, "E_ARCHIVE_OPEN", err)
	}
	defer arch.Close()
	logger.Info("startup phase", "phase", "archive_ready", "path", cfg.ArchivePath())

	var engine summarize.Engine
	if cfg.Summarizer.APIKey != "" {
		genkitEngine, err := summarize.NewGenkitEngine(ctx, cfg.Summarizer.APIKey, cfg.Summarizer.Model)
		if err != nil {
			fatalStartup(logger, "E_SUMMARIZER_INIT", err)
		}
		engine = genkitEngine
		logger.Info("startup phase", "phase", "summarizer_ready", "model", cfg.Summarizer.Model)
	} else {
		engine = summarize.StaticEngine{}
		logger.Warn("no summarizer API key configured; /summarize will return a placeholder")
	}

	pipeline := summarize.NewPipeline(summarize.Config{
		Engine:      engine,
		Logger:      logger,
		Metrics:     metrics,
		Tracer:      otelProvider.Tracer,
		CallTimeout: cfg.CallTimeout(),
	})

	channel := channels.NewTelegramChannel(channels.Config{
		Token:    cfg.Telegram.Token,
		Store:    store,
		Pipeline: pipeline,
		Archive:  arch,
		Logger:   logger,
		Metrics:  metrics,
	})

	scheduler := digest.NewScheduler(digest.Config{
		Target:  channel,
		Entries: cfg.Digests,
		Logger:  logger,
	})
	scheduler.Start(ctx)
	defer scheduler.Stop()
	if len(cfg.Digests) > 0 {
		logger.Info("startup phase", "phase", "digests_scheduled", "count", len(cfg.Digests))
	}

	watcher := config.NewWatcher(cfg.HomeDir, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable; edits to config.yaml need a restart", "error", err)
	} else {
		go reloadLoop(ctx, watcher, scheduler, logger)
	}

	if interactive {
		fmt.Printf("chatdigest %s — logging to %s\n", Version, cfg.HomeDir)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- channel.Start(ctx)
	}()
	logger.Info("startup phase", "phase", "channel_started", "channel", channel.Name())

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			fatalStartup(logger, "E_CHANNEL_RUN", err)
		}
	}
	logger.Info("shutdown complete")
}

// reloadLoop re-reads config.yaml on change and applies the settings
// that can take effect without a restart.
func reloadLoop(ctx context.Context, watcher *config.Watcher, scheduler *digest.Scheduler, logger *slog.Logger) {
	// Coalesce editor write bursts.
	const settle = 500 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events():
			if !ok {
				return
			}
			time.Sleep(settle)
			drainEvents(watcher)
			cfg, err := config.Load()
			if err != nil {
				logger.Warn("config reload failed; keeping previous settings", "path", ev.Path, "error", err)
				continue
			}
			scheduler.SetEntries(cfg.Digests)
			logger.Info("config reloaded", "digests", len(cfg.Digests))
		}
	}
}

func drainEvents(watcher *config.Watcher) {
	for {
		select {
		case _, ok := <-watcher.Events():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func fatalStartup(logger *slog.Logger, reasonCode string, err error) {
	message := ""
	if err != nil {
		message = err.Error()
	}
	if logger != nil {
		logger.Error("startup failure", "reason_code", reasonCode, "error", message)
	} else {
		fmt.Fprintf(
			os.Stderr,
			`{"timestamp":"%s","level":"ERROR","component":"chatdigest","msg":"startup failure","reason_code":%q,"error":%q}`+"\n",
			time.Now().UTC().Format(time.RFC3339Nano),
			reasonCode,
			message,
		)
	}
	os.Exit(1)
}
