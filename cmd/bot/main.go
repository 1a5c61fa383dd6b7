package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"release_alert_bot/internal/app"
	"release_alert_bot/internal/infra/config"
	idb "release_alert_bot/internal/infra/database"
	"release_alert_bot/internal/infra/logger"
	imeta "release_alert_bot/internal/infra/metadata"
	"release_alert_bot/internal/infra/scheduler"
	"release_alert_bot/internal/infra/telegram"
	"release_alert_bot/migrations"

	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	mainLogger := logger.Get().WithField("component", "main")
	mainLogger.WithField("environment", cfg.Environment).Info("Release alert bot starting")

	// Database
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()

	if err := idb.RunMigrations(db, migrations.Files); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply database migrations")
	}
	mainLogger.Info("Database connection established and migrations applied")

	alertRepo := idb.NewPostgresAlertRepository(db)

	// Metadata gateway
	gateway := imeta.NewTMDBClient(
		cfg.TMDBBaseURL,
		cfg.TMDBAPIKey,
		cfg.GatewayTimeout,
		logger.Get().WithField("component", "tmdb"),
	)

	// Telegram bot. The HTTP client timeout bounds every delivery attempt.
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		Client: &http.Client{Timeout: cfg.DeliveryTimeout},
		OnError: func(err error, c telebot.Context) {
			entry := logger.Get().WithField("component", "telebot").WithError(err)
			if c != nil && c.Sender() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID)
			}
			entry.Error("Telegram handler error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}
	telegramClient := telegram.NewTelebotAdapter(bot)

	// Services
	subscriptionService := app.NewSubscriptionServiceImpl(
		alertRepo,
		gateway,
		logger.Get().WithField("component", "subscriptions"),
		cfg.GatewayTimeout,
	)
	reconcileService := app.NewReconcileServiceImpl(
		alertRepo,
		gateway,
		telegramClient,
		logger.Get().WithField("component", "reconciler"),
		cfg.GatewayTimeout,
		cfg.SweepParallelism,
	)

	// Scheduler
	sweepScheduler := scheduler.NewSweepScheduler(
		reconcileService,
		logger.Get().WithField("component", "scheduler"),
		cfg.CronSpecSweep,
		cfg.CronSpecCleanup,
	)
	if err := sweepScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start sweep scheduler")
	}

	// Handlers
	handlerCtx, cancelHandlers := context.WithCancel(context.Background())
	defer cancelHandlers()
	handlerLogger := logger.Get().WithField("component", "handlers")
	telegram.RegisterInlineHandlers(handlerCtx, bot, subscriptionService, handlerLogger)
	telegram.RegisterBotCommands(handlerCtx, bot, subscriptionService, handlerLogger)

	mainLogger.Info("Application setup complete. Bot and scheduler are starting...")
	go bot.Start()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLogger.Info("Shutting down application...")
	bot.Stop()
	sweepScheduler.Stop()
	cancelHandlers()
	mainLogger.Info("Application shut down gracefully")
}
