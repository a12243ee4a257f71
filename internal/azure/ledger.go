package azure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/records"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
)

const ledgerPartition = "delivery"

var _ records.DeliveryLedger = (*TableLedger)(nil)

// TableLedger stores one entity per delivered period, keyed by period key.
type TableLedger struct {
	client *aztables.Client
	table  string
	logger *log.Logger
}

func NewTableLedger(ctx context.Context, serviceURL, table string, logger *log.Logger) (*TableLedger, error) {
	if serviceURL == "" {
		return nil, fmt.Errorf("table service url is required")
	}
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentStorage)

	var svc *aztables.ServiceClient
	if isLocal(serviceURL) {
		logger.InfoContext(ctx, "Using Azurite credentials for ledger table")
		name, key := azuriteCredentials()
		cred, err := aztables.NewSharedKeyCredential(name, key)
		if err != nil {
			return nil, fmt.Errorf("create shared key credential: %w", err)
		}
		svc, err = aztables.NewServiceClientWithSharedKey(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("create table service client with shared key: %w", err)
		}
	} else {
		cred, err := newDefaultAzureCredential()
		if err != nil {
			return nil, fmt.Errorf("create default azure credential: %w", err)
		}
		svc, err = aztables.NewServiceClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("create table service client: %w", err)
		}
	}

	if _, err := svc.CreateTable(ctx, table, nil); err != nil && !hasErrorCode(err, "TableAlreadyExists") {
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}

	logger.InfoContext(ctx, "Ledger table ready", "table", table)
	return &TableLedger{client: svc.NewClient(table), table: table, logger: logger}, nil
}

func (l *TableLedger) LastDelivery(ctx context.Context, periodKey string) (core.DeliveryMark, error) {
	resp, err := l.client.GetEntity(ctx, ledgerPartition, periodKey, nil)
	if err != nil {
		if isNotFound(err) {
			return core.DeliveryMark{}, records.ErrNotFound
		}
		return core.DeliveryMark{}, fmt.Errorf("get ledger entity %s: %w", periodKey, err)
	}
	return decodeMarkEntity(resp.Value)
}

func (l *TableLedger) MarkDelivered(ctx context.Context, mark core.DeliveryMark) error {
	if err := mark.Validate(); err != nil {
		return err
	}
	entity, err := encodeMarkEntity(mark)
	if err != nil {
		return err
	}
	if _, err := l.client.UpsertEntity(ctx, entity, nil); err != nil {
		return fmt.Errorf("upsert ledger entity %s: %w", mark.PeriodKey, err)
	}
	return nil
}

// ClaimDelivery inserts the entity; the table service answers 409 when the
// period already has one.
func (l *TableLedger) ClaimDelivery(ctx context.Context, mark core.DeliveryMark) (bool, error) {
	if err := mark.Validate(); err != nil {
		return false, err
	}
	entity, err := encodeMarkEntity(mark)
	if err != nil {
		return false, err
	}
	if _, err := l.client.AddEntity(ctx, entity, nil); err != nil {
		if isConflict(err) {
			return false, nil
		}
		return false, fmt.Errorf("add ledger entity %s: %w", mark.PeriodKey, err)
	}
	return true, nil
}

// ReleaseDelivery deletes the claim only if its ETag is unchanged since it
// was read.
func (l *TableLedger) ReleaseDelivery(ctx context.Context, periodKey, runID string) error {
	resp, err := l.client.GetEntity(ctx, ledgerPartition, periodKey, nil)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("get ledger entity %s: %w", periodKey, err)
	}
	mark, err := decodeMarkEntity(resp.Value)
	if err != nil {
		return err
	}
	if !mark.Claimed() || mark.RunID != runID {
		return nil
	}
	etag := resp.ETag
	_, err = l.client.DeleteEntity(ctx, ledgerPartition, periodKey, &aztables.DeleteEntityOptions{IfMatch: &etag})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete ledger entity %s: %w", periodKey, err)
	}
	return nil
}

type markEntity struct {
	PartitionKey string
	RowKey       string
	Label        string
	State        string
	RunID        string
	DeliveredAt  string
}

func encodeMarkEntity(mark core.DeliveryMark) ([]byte, error) {
	b, err := json.Marshal(markEntity{
		PartitionKey: ledgerPartition,
		RowKey:       mark.PeriodKey,
		Label:        mark.Label,
		State:        mark.State,
		RunID:        mark.RunID,
		DeliveredAt:  mark.DeliveredAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("encode ledger entity: %w", err)
	}
	return b, nil
}

func decodeMarkEntity(raw []byte) (core.DeliveryMark, error) {
	var e markEntity
	if err := json.Unmarshal(raw, &e); err != nil {
		return core.DeliveryMark{}, fmt.Errorf("decode ledger entity: %w", err)
	}
	m := core.DeliveryMark{
		PeriodKey: e.RowKey,
		Label:     e.Label,
		State:     e.State,
		RunID:     e.RunID,
	}
	if t, err := time.Parse(time.RFC3339Nano, e.DeliveredAt); err == nil {
		m.DeliveredAt = t
	}
	return m, nil
}
