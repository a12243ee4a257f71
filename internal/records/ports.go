// Package records declares the ports the report pipeline uses to reach the
// expense store, the delivery ledger and the registered chat.
package records

import (
	"context"
	"errors"
	"time"

	"gastos/internal/core"
)

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("not found")

// Ports for outbound adapters.
type (
	// RecordReader returns every record whose createdAt falls within the
	// inclusive [start, end] range.
	RecordReader interface {
		FetchRecords(ctx context.Context, start, end time.Time) ([]core.Record, error)
	}

	// RecordWriter stores a record. Only the development stores implement it;
	// production records are written by the mobile app.
	RecordWriter interface {
		AddRecord(ctx context.Context, r core.Record) error
	}

	// DeliveryLedger remembers which periods were already delivered.
	DeliveryLedger interface {
		// LastDelivery returns ErrNotFound when the period was never marked.
		LastDelivery(ctx context.Context, periodKey string) (core.DeliveryMark, error)
		// MarkDelivered writes mark, replacing any mark for the period.
		MarkDelivered(ctx context.Context, mark core.DeliveryMark) error
		// ClaimDelivery writes mark only if the period has no mark yet, and
		// reports whether it did. The check and the write are one atomic
		// store operation.
		ClaimDelivery(ctx context.Context, mark core.DeliveryMark) (bool, error)
		// ReleaseDelivery removes the period's mark if it is still the
		// claim written by runID. Anything else is left in place.
		ReleaseDelivery(ctx context.Context, periodKey, runID string) error
	}

	// ChatStore keeps the chat registered through /start.
	ChatStore interface {
		// ChatBinding returns ErrNotFound when no chat has registered.
		ChatBinding(ctx context.Context) (core.ChatBinding, error)
		SaveChatBinding(ctx context.Context, b core.ChatBinding) error
	}

	// Store is implemented by every backend.
	Store interface {
		RecordReader
		DeliveryLedger
		ChatStore
	}
)

// Delivered reports whether ledger holds a delivery mark for periodKey.
// Pending claims do not count. Lookup errors other than ErrNotFound are
// returned.
func Delivered(ctx context.Context, ledger DeliveryLedger, periodKey string) (bool, error) {
	if ledger == nil {
		return false, nil
	}
	mark, err := ledger.LastDelivery(ctx, periodKey)
	switch {
	case err == nil:
		return !mark.Claimed(), nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
