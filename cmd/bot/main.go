package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tonvote/votebot/internal/config"
	"github.com/tonvote/votebot/internal/health"
	"github.com/tonvote/votebot/internal/notifier"
	"github.com/tonvote/votebot/internal/poller"
	"github.com/tonvote/votebot/internal/reporter"
	"github.com/tonvote/votebot/internal/schedule"
	"github.com/tonvote/votebot/internal/storage"
	"github.com/tonvote/votebot/internal/telegram"
	"github.com/tonvote/votebot/internal/tonvote"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()

	if cfg.BotToken == "" {
		log.Error("BOT_TOKEN is required")
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	// Initialize TON Vote client
	voteAPI := tonvote.NewClient(cfg.APIBaseURL)
	log.Info("ton vote client initialized", "base_url", cfg.APIBaseURL)

	// Initialize message composer
	composer := notifier.NewComposer(cfg.AppURL)

	// Initialize telegram bot
	bot, err := telegram.New(cfg, store, composer, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	log.Info("telegram bot initialized")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start health server
	healthServer := health.NewServer(store, log)
	go func() {
		if err := healthServer.Start(ctx, cfg.HealthPort); err != nil && err != http.ErrServerClosed {
			log.Error("health server", "error", err)
		}
	}()

	// Start lifecycle poller
	scheduler := schedule.New(log)
	lifecyclePoller := poller.New(store, voteAPI, bot, composer, scheduler, cfg.PollInterval, log)
	go lifecyclePoller.Start(ctx)

	// Start digest reporter
	digestReporter := reporter.New(store, voteAPI, bot, composer, cfg.DigestInterval, log)
	go digestReporter.Start(ctx)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	bot.Start(ctx)

	// Drain armed timers before exit
	scheduler.Wait()
}
