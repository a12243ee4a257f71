package cli

import (
	"context"

	"gastos/internal/log"
	"gastos/internal/services"
)

// Runner is satisfied by *services.SummaryService.
type Runner interface {
	Run(ctx context.Context, trig services.Trigger) services.Outcome
}

// RunGated checks trig against its gate before build is called. A trigger
// outside the delivery window returns 0 without opening the backend or the
// Telegram client. The result is the process exit status.
func RunGated(ctx context.Context, logger *log.Logger, gates services.GateRegistry, trig services.Trigger, build func(context.Context) (Runner, func())) int {
	gate, err := gates.For(trig.Source)
	if err != nil {
		logger.Error("Cannot gate trigger", log.FieldError, err.Error())
		return 1
	}
	if !gate.ShouldRun(trig) {
		logger.Info("Outside delivery window, nothing to send",
			log.FieldTrigger, string(trig.Source),
			log.FieldReason, services.ReasonOutsideWindow,
			"now", trig.Now.Format("2006-01-02 15:04 MST"))
		return 0
	}

	runner, closeFn := build(ctx)
	defer closeFn()

	if out := runner.Run(ctx, trig); out.State == services.StateFailed {
		return 1
	}
	return 0
}
