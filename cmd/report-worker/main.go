package main

import (
	"context"
	"errors"
	"os"

	"gastos/internal/amqp"
	"gastos/internal/cli"
	"gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/worker"
)

func main() {
	os.Exit(run())
}

func run() int {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext()
	defer stop()

	logger.Info("Starting report-worker",
		log.FieldBackend, cfg.DataBackend,
		"cron", cfg.ReportCron,
		"timezone", cfg.Timezone,
		"amqp_enabled", cfg.AMQPURL != "")

	store := cli.OpenBackend(ctx, logger, cfg)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Backend close failed", log.FieldError, err.Error())
		}
	}()

	m := metrics.New()
	cli.ServeMetrics(ctx, logger, metricsAddr(cfg.MetricsPort), m)

	tg := cli.NewTelegramClient(logger, cfg)
	svc := cli.NewSummaryService(logger, cfg, store, tg, m)

	scheduler, err := worker.NewScheduler(cfg.ReportCron, cfg.Location(), svc, logger)
	if err != nil {
		logger.Error("Invalid report schedule", "cron", cfg.ReportCron, log.FieldError, err.Error())
		return 1
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled, running the scheduler only")
		<-ctx.Done()
		logger.Info("Shutdown signal received")
		return 0
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		return 1
	}
	defer client.Close()

	reports := worker.NewReportWorker(svc, logger)
	if err := client.ConsumeReportRequests(ctx, reports.HandleReportRequest); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Report request consumption stopped", log.FieldError, err.Error())
		return 1
	}
	logger.Info("Shutdown signal received")
	return 0
}

func metricsAddr(port string) string {
	if port == "" {
		return ""
	}
	return ":" + port
}
