// Package cli holds the start-up steps shared by cmd/send-summary,
// cmd/report-worker and cmd/gastos-bot.
package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gastos/internal/backend"
	"gastos/internal/chart"
	"gastos/internal/config"
	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/services"
	"gastos/internal/telegram"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(component string) *log.Logger {
	logger := log.New(log.ConfigFromEnv(component))
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it. Every bad
// item is logged on its own line before the process exits with status 1.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, p := range verr.Problems {
				logger.Error("Invalid configuration",
					"item", p.Item,
					log.FieldReason, p.Reason,
					log.FieldErrorType, log.ErrorTypeConfiguration)
			}
		}
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg
}

// OpenBackend opens the configured stores or exits the process.
func OpenBackend(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.BackendResult {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize backend",
			log.FieldBackend, cfg.DataBackend,
			log.FieldError, err.Error())
		os.Exit(1)
	}
	return result
}

// NewTelegramClient authorizes the bot token or exits the process.
func NewTelegramClient(logger *log.Logger, cfg *config.Config) *telegram.Client {
	client, err := telegram.NewClient(telegram.Options{
		Token:    cfg.TelegramBotToken,
		Endpoint: cfg.TelegramAPIEndpoint,
		Timeout:  cfg.DeliveryTimeout,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize Telegram client",
			log.FieldErrorType, log.ErrorTypeDelivery,
			log.FieldError, err.Error())
		os.Exit(1)
	}
	return client
}

// NewSummaryService wires the monthly report pipeline over an opened backend.
func NewSummaryService(logger *log.Logger, cfg *config.Config, b *backend.BackendResult, sender services.Sender, m *metrics.Metrics) *services.SummaryService {
	svc, err := services.NewSummaryService(services.Dependencies{
		Records:  b.Store,
		Ledger:   b.Ledger,
		Chats:    b.Store,
		Renderer: chart.NewRenderer(logger),
		Sender:   sender,
		Archive:  b.Archive,
		Metrics:  m,
		Logger:   logger,
	}, services.SettingsFromConfig(cfg))
	if err != nil {
		logger.Error("Failed to build summary service", log.FieldError, err.Error())
		os.Exit(1)
	}
	return svc
}

// ServeMetrics exposes m on addr until ctx is done. It is a no-op when
// addr is empty.
func ServeMetrics(ctx context.Context, logger *log.Logger, addr string, m *metrics.Metrics) {
	if addr == "" || m == nil {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Info("Metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", log.FieldError, err.Error())
		}
	}()
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
