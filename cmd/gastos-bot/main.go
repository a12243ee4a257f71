package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"gastos/internal/amqp"
	"gastos/internal/cache"
	"gastos/internal/cli"
	apphttp "gastos/internal/http"
	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/services"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentBot)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext()
	defer stop()

	store := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Backend close failed", log.FieldError, err.Error())
		}
	}()

	m := metrics.New()
	tg := cli.NewTelegramClient(logger, cfg)

	bot, err := services.NewBotService(services.BotDependencies{
		Records: store.Store,
		Chats:   store.Store,
		Sender:  tg,
		Metrics: m,
		Logger:  logger,
	}, services.SettingsFromConfig(cfg))
	if err != nil {
		logger.Error("Failed to build bot service", log.FieldError, err.Error())
		return 1
	}

	caches := cache.NewManager(logger)
	caches.Register(bot.Cache())
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	opts := apphttp.Options{
		Addr:          ":" + cfg.Port,
		WebhookSecret: cfg.TelegramWebhookSecret,
		ReportsToken:  cfg.ReportsAPIToken,
		RateLimit:     ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMin},
		Bot:           bot,
		Metrics:       m,
		Logger:        logger,
	}
	if store.Pinger != nil {
		opts.Store = store.Pinger
	}
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			// The webhook still works; /reports/run answers 503.
			logger.Warn("AMQP unavailable, on-demand reports disabled", log.FieldError, err.Error())
		} else {
			defer client.Close()
			opts.Publisher = client
		}
	}
	if cfg.TelegramWebhookSecret == "" {
		logger.Warn("TELEGRAM_WEBHOOK_SECRET is not set; webhook requests are not authenticated")
	}

	srv := apphttp.NewServer(opts)

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
	}()

	logger.Info("Starting gastos-bot", "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		return 1
	}
	logger.Info("Server stopped gracefully")
	return 0
}
