package worker

import (
	"context"
	"errors"
	"fmt"

	"gastos/internal/amqp"
	"gastos/internal/log"
	"gastos/internal/services"
)

// Runner runs one report. *services.SummaryService implements it.
type Runner interface {
	Run(ctx context.Context, trig services.Trigger) services.Outcome
}

var _ Runner = (*services.SummaryService)(nil)

// ReportWorker turns queued report requests into report runs
type ReportWorker struct {
	runner Runner
	logger *log.Logger
}

func NewReportWorker(runner Runner, logger *log.Logger) *ReportWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &ReportWorker{
		runner: runner,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleReportRequest runs the requested report. Only fetch failures are
// returned so the message is redelivered; every other outcome is final.
func (w *ReportWorker) HandleReportRequest(ctx context.Context, msg *amqp.ReportRequest) error {
	out := w.runner.Run(ctx, services.Trigger{
		Source:      services.SourceQueue,
		Force:       msg.Force,
		PeriodKey:   msg.Period,
		RequestedBy: msg.RequestedBy,
	})

	w.logger.InfoContext(ctx, "Report request processed",
		log.FieldRunID, out.RunID,
		log.FieldState, string(out.State),
		log.FieldReason, out.Reason,
		"requested_by", msg.RequestedBy)

	var ferr *services.FetchError
	if out.State == services.StateFailed && errors.As(out.Err, &ferr) {
		return fmt.Errorf("report run %s: %w", out.RunID, out.Err)
	}
	return nil
}
