// Package postgres implements the record store, delivery ledger and chat
// binding on PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/records"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	_ records.Store        = (*Store)(nil)
	_ records.RecordWriter = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
    id          BIGSERIAL PRIMARY KEY,
    external_id TEXT          NOT NULL DEFAULT '',
    category    TEXT          NOT NULL,
    amount      NUMERIC(14,2) NOT NULL DEFAULT 0,
    description TEXT          NOT NULL DEFAULT '',
    user_name   TEXT          NOT NULL DEFAULT '',
    user_id     TEXT          NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ   NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at);

CREATE TABLE IF NOT EXISTS deliveries (
    period_key   TEXT PRIMARY KEY,
    label        TEXT        NOT NULL DEFAULT '',
    state        TEXT        NOT NULL DEFAULT '',
    run_id       TEXT        NOT NULL DEFAULT '',
    delivered_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_binding (
    id         SMALLINT PRIMARY KEY CHECK (id = 1),
    chat_id    BIGINT      NOT NULL,
    user_id    BIGINT      NOT NULL DEFAULT 0,
    first_name TEXT        NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL
);
`

type Store struct {
	pool   *pgxpool.Pool
	logger *log.Logger
}

// Open connects to databaseURL and makes sure the schema exists.
func Open(ctx context.Context, databaseURL string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Discard()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	logger = logger.WithComponent(log.ComponentStorage)
	logger.InfoContext(ctx, "Postgres store ready", "max_conns", pool.Config().MaxConns)
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) AddRecord(ctx context.Context, r core.Record) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	query := `
		INSERT INTO records (external_id, category, amount, description, user_name, user_id, created_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		r.ID,
		string(r.Category),
		r.Amount.String(),
		r.Description,
		r.Contributor.Name,
		r.Contributor.UserID,
		r.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *Store) FetchRecords(ctx context.Context, start, end time.Time) ([]core.Record, error) {
	query := `
		SELECT id, external_id, category, amount::text, description, user_name, user_id, created_at
		FROM records
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []core.Record
	for rows.Next() {
		var (
			id                                 int64
			externalID, category, amount, desc string
			userName, userID                   string
			createdAt                          time.Time
		)
		if err := rows.Scan(&id, &externalID, &category, &amount, &desc, &userName, &userID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if externalID == "" {
			externalID = fmt.Sprintf("%d", id)
		}
		out = append(out, core.Record{
			ID:          externalID,
			Category:    core.Category(category),
			Amount:      core.CoerceAmount(amount),
			Description: desc,
			Contributor: core.Contributor{Name: userName, UserID: userID},
			CreatedAt:   createdAt.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *Store) LastDelivery(ctx context.Context, periodKey string) (core.DeliveryMark, error) {
	query := `
		SELECT period_key, label, state, run_id, delivered_at
		FROM deliveries
		WHERE period_key = $1`

	var m core.DeliveryMark
	err := s.pool.QueryRow(ctx, query, periodKey).Scan(&m.PeriodKey, &m.Label, &m.State, &m.RunID, &m.DeliveredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.DeliveryMark{}, records.ErrNotFound
		}
		return core.DeliveryMark{}, fmt.Errorf("get delivery %s: %w", periodKey, err)
	}
	m.DeliveredAt = m.DeliveredAt.UTC()
	return m, nil
}

func (s *Store) MarkDelivered(ctx context.Context, mark core.DeliveryMark) error {
	if err := mark.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO deliveries (period_key, label, state, run_id, delivered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (period_key) DO UPDATE SET
			label = EXCLUDED.label,
			state = EXCLUDED.state,
			run_id = EXCLUDED.run_id,
			delivered_at = EXCLUDED.delivered_at`
	if _, err := s.pool.Exec(ctx, query, mark.PeriodKey, mark.Label, mark.State, mark.RunID, mark.DeliveredAt.UTC()); err != nil {
		return fmt.Errorf("upsert delivery %s: %w", mark.PeriodKey, err)
	}
	return nil
}

func (s *Store) ClaimDelivery(ctx context.Context, mark core.DeliveryMark) (bool, error) {
	if err := mark.Validate(); err != nil {
		return false, err
	}
	query := `
		INSERT INTO deliveries (period_key, label, state, run_id, delivered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (period_key) DO NOTHING`
	tag, err := s.pool.Exec(ctx, query, mark.PeriodKey, mark.Label, mark.State, mark.RunID, mark.DeliveredAt.UTC())
	if err != nil {
		return false, fmt.Errorf("claim delivery %s: %w", mark.PeriodKey, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleaseDelivery(ctx context.Context, periodKey, runID string) error {
	query := `DELETE FROM deliveries WHERE period_key = $1 AND run_id = $2 AND state = $3`
	if _, err := s.pool.Exec(ctx, query, periodKey, runID, core.MarkStateClaimed); err != nil {
		return fmt.Errorf("release delivery %s: %w", periodKey, err)
	}
	return nil
}

func (s *Store) ChatBinding(ctx context.Context) (core.ChatBinding, error) {
	query := `SELECT chat_id, user_id, first_name, updated_at FROM chat_binding WHERE id = 1`

	var b core.ChatBinding
	err := s.pool.QueryRow(ctx, query).Scan(&b.ChatID, &b.UserID, &b.FirstName, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return core.ChatBinding{}, records.ErrNotFound
		}
		return core.ChatBinding{}, fmt.Errorf("get chat binding: %w", err)
	}
	return b, nil
}

func (s *Store) SaveChatBinding(ctx context.Context, b core.ChatBinding) error {
	if err := b.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO chat_binding (id, chat_id, user_id, first_name, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			chat_id = EXCLUDED.chat_id,
			user_id = EXCLUDED.user_id,
			first_name = EXCLUDED.first_name,
			updated_at = EXCLUDED.updated_at`
	if _, err := s.pool.Exec(ctx, query, b.ChatID, b.UserID, b.FirstName, b.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("upsert chat binding: %w", err)
	}
	return nil
}
