package services

import (
	"context"
	"errors"
	"fmt"

	"gastos/internal/chart"
	"gastos/internal/config"
	"gastos/internal/log"
	"gastos/internal/telegram"
)

// FetchError wraps a record store failure for one period.
type FetchError struct {
	Period string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch records for %s: %v", e.Period, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// errorType maps an error to the log error category.
func errorType(err error) string {
	var (
		fetchErr    *FetchError
		renderErr   *chart.RenderError
		deliveryErr *telegram.DeliveryError
		configErr   *config.ConfigError
	)
	switch {
	case errors.As(err, &configErr):
		return log.ErrorTypeConfiguration
	case errors.Is(err, context.DeadlineExceeded):
		return log.ErrorTypeTimeout
	case errors.As(err, &fetchErr):
		return log.ErrorTypeFetch
	case errors.As(err, &renderErr):
		return log.ErrorTypeRender
	case errors.As(err, &deliveryErr):
		return log.ErrorTypeDelivery
	default:
		return log.ErrorTypeInternal
	}
}

// asDeliveryError keeps the delivery taxonomy when a Sender returns a bare error.
func asDeliveryError(err error, op string, chatID int64) error {
	var derr *telegram.DeliveryError
	if errors.As(err, &derr) {
		return err
	}
	return &telegram.DeliveryError{Op: op, ChatID: chatID, Err: err}
}

// deliveryOp returns the failed Telegram method, falling back to op.
func deliveryOp(err error, op string) string {
	var derr *telegram.DeliveryError
	if errors.As(err, &derr) && derr.Op != "" {
		return derr.Op
	}
	return op
}
