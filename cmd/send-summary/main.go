package main

import (
	"context"
	"flag"
	"os"
	"time"

	"gastos/internal/cli"
	"gastos/internal/log"
	"gastos/internal/services"
)

func main() {
	os.Exit(run())
}

func run() int {
	period := flag.String("period", "", `month to report as "YYYY-MM" (default: previous month)`)
	force := flag.Bool("force", false, "send outside the monthly window and ignore the ledger")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext()
	defer stop()

	logger.Info("Starting send-summary",
		log.FieldBackend, cfg.DataBackend,
		"timezone", cfg.Timezone)

	trig := services.Trigger{
		Source:      services.SourceCron,
		Force:       cfg.ForceSend || *force,
		Now:         time.Now(),
		PeriodKey:   *period,
		RequestedBy: "send-summary",
	}
	gates := services.DefaultGates(services.SettingsFromConfig(cfg).Window())

	return cli.RunGated(ctx, logger, gates, trig, func(ctx context.Context) (cli.Runner, func()) {
		store := cli.OpenBackend(ctx, logger, cfg)
		tg := cli.NewTelegramClient(logger, cfg)
		svc := cli.NewSummaryService(logger, cfg, store, tg, nil)
		return svc, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Backend close failed", log.FieldError, err.Error())
			}
		}
	})
}
