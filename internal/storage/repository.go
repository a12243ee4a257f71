package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/records"

	_ "modernc.org/sqlite"
)

var (
	_ records.Store        = (*SQLiteRepository)(nil)
	_ records.RecordWriter = (*SQLiteRepository)(nil)
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	logger  *log.Logger
}

func NewSQLiteRepository(dbPath string, logger *log.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		logger:  logger.WithComponent(log.ComponentStorage),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection for readiness probes.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// AddRecord implements records.RecordWriter
func (r *SQLiteRepository) AddRecord(ctx context.Context, rec core.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	id, err := r.queries.CreateRecord(ctx, CreateRecordParams{
		ExternalID:  rec.ID,
		Category:    string(rec.Category),
		Amount:      rec.Amount.String(),
		Description: rec.Description,
		UserName:    rec.Contributor.Name,
		UserID:      rec.Contributor.UserID,
		CreatedAtMs: rec.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}

	r.logger.DebugContext(ctx, "Record saved to SQLite",
		"id", id,
		"category", rec.Category,
		"amount", rec.Amount.String())
	return nil
}

// FetchRecords implements records.RecordReader
func (r *SQLiteRepository) FetchRecords(ctx context.Context, start, end time.Time) ([]core.Record, error) {
	rows, err := r.queries.GetRecordsInRange(ctx, GetRecordsInRangeParams{
		StartMs: start.UnixMilli(),
		EndMs:   end.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("get records in range: %w", err)
	}

	out := make([]core.Record, len(rows))
	for i, row := range rows {
		out[i] = recordFromRow(row)
	}
	return out, nil
}

func recordFromRow(row RecordRow) core.Record {
	id := row.ExternalID
	if id == "" {
		id = fmt.Sprintf("%d", row.ID)
	}
	return core.Record{
		ID:          id,
		Category:    core.Category(row.Category),
		Amount:      core.CoerceAmount(row.Amount),
		Description: row.Description,
		Contributor: core.Contributor{Name: row.UserName, UserID: row.UserID},
		CreatedAt:   time.UnixMilli(row.CreatedAtMs).UTC(),
	}
}

// LastDelivery implements records.DeliveryLedger
func (r *SQLiteRepository) LastDelivery(ctx context.Context, periodKey string) (core.DeliveryMark, error) {
	row, err := r.queries.GetDelivery(ctx, periodKey)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DeliveryMark{}, records.ErrNotFound
	}
	if err != nil {
		return core.DeliveryMark{}, fmt.Errorf("get delivery %s: %w", periodKey, err)
	}
	return core.DeliveryMark{
		PeriodKey:   row.PeriodKey,
		Label:       row.Label,
		State:       row.State,
		RunID:       row.RunID,
		DeliveredAt: time.UnixMilli(row.DeliveredAtMs).UTC(),
	}, nil
}

// MarkDelivered implements records.DeliveryLedger
func (r *SQLiteRepository) MarkDelivered(ctx context.Context, mark core.DeliveryMark) error {
	if err := mark.Validate(); err != nil {
		return err
	}
	err := r.queries.UpsertDelivery(ctx, DeliveryRow{
		PeriodKey:     mark.PeriodKey,
		Label:         mark.Label,
		State:         mark.State,
		RunID:         mark.RunID,
		DeliveredAtMs: mark.DeliveredAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("upsert delivery %s: %w", mark.PeriodKey, err)
	}
	return nil
}

// ClaimDelivery implements records.DeliveryLedger
func (r *SQLiteRepository) ClaimDelivery(ctx context.Context, mark core.DeliveryMark) (bool, error) {
	if err := mark.Validate(); err != nil {
		return false, err
	}
	n, err := r.queries.InsertDelivery(ctx, DeliveryRow{
		PeriodKey:     mark.PeriodKey,
		Label:         mark.Label,
		State:         mark.State,
		RunID:         mark.RunID,
		DeliveredAtMs: mark.DeliveredAt.UnixMilli(),
	})
	if err != nil {
		return false, fmt.Errorf("claim delivery %s: %w", mark.PeriodKey, err)
	}
	return n == 1, nil
}

// ReleaseDelivery implements records.DeliveryLedger
func (r *SQLiteRepository) ReleaseDelivery(ctx context.Context, periodKey, runID string) error {
	if err := r.queries.DeleteDeliveryInState(ctx, periodKey, runID, core.MarkStateClaimed); err != nil {
		return fmt.Errorf("release delivery %s: %w", periodKey, err)
	}
	return nil
}

// ChatBinding implements records.ChatStore
func (r *SQLiteRepository) ChatBinding(ctx context.Context) (core.ChatBinding, error) {
	row, err := r.queries.GetChatBinding(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ChatBinding{}, records.ErrNotFound
	}
	if err != nil {
		return core.ChatBinding{}, fmt.Errorf("get chat binding: %w", err)
	}
	return core.ChatBinding{
		ChatID:    row.ChatID,
		UserID:    row.UserID,
		FirstName: row.FirstName,
		UpdatedAt: time.UnixMilli(row.UpdatedAtMs).UTC(),
	}, nil
}

// SaveChatBinding implements records.ChatStore
func (r *SQLiteRepository) SaveChatBinding(ctx context.Context, b core.ChatBinding) error {
	if err := b.Validate(); err != nil {
		return err
	}
	err := r.queries.UpsertChatBinding(ctx, ChatBindingRow{
		ChatID:      b.ChatID,
		UserID:      b.UserID,
		FirstName:   b.FirstName,
		UpdatedAtMs: b.UpdatedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("upsert chat binding: %w", err)
	}
	return nil
}
