package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type RecordRow struct {
	ID          int64
	ExternalID  string
	Category    string
	Amount      string
	Description string
	UserName    string
	UserID      string
	CreatedAtMs int64
}

type DeliveryRow struct {
	PeriodKey     string
	Label         string
	State         string
	RunID         string
	DeliveredAtMs int64
}

type ChatBindingRow struct {
	ChatID      int64
	UserID      int64
	FirstName   string
	UpdatedAtMs int64
}

const createRecord = `
INSERT INTO records (external_id, category, amount, description, user_name, user_id, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING id
`

type CreateRecordParams struct {
	ExternalID  string
	Category    string
	Amount      string
	Description string
	UserName    string
	UserID      string
	CreatedAtMs int64
}

func (q *Queries) CreateRecord(ctx context.Context, arg CreateRecordParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createRecord,
		arg.ExternalID,
		arg.Category,
		arg.Amount,
		arg.Description,
		arg.UserName,
		arg.UserID,
		arg.CreatedAtMs,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const getRecordsInRange = `
SELECT id, external_id, category, amount, description, user_name, user_id, created_at_ms
FROM records
WHERE created_at_ms >= ? AND created_at_ms <= ?
ORDER BY created_at_ms, id
`

type GetRecordsInRangeParams struct {
	StartMs int64
	EndMs   int64
}

func (q *Queries) GetRecordsInRange(ctx context.Context, arg GetRecordsInRangeParams) ([]RecordRow, error) {
	rows, err := q.db.QueryContext(ctx, getRecordsInRange, arg.StartMs, arg.EndMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecordRow
	for rows.Next() {
		var i RecordRow
		if err := rows.Scan(
			&i.ID,
			&i.ExternalID,
			&i.Category,
			&i.Amount,
			&i.Description,
			&i.UserName,
			&i.UserID,
			&i.CreatedAtMs,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getDelivery = `
SELECT period_key, label, state, run_id, delivered_at_ms
FROM deliveries
WHERE period_key = ?
`

func (q *Queries) GetDelivery(ctx context.Context, periodKey string) (DeliveryRow, error) {
	row := q.db.QueryRowContext(ctx, getDelivery, periodKey)
	var i DeliveryRow
	err := row.Scan(
		&i.PeriodKey,
		&i.Label,
		&i.State,
		&i.RunID,
		&i.DeliveredAtMs,
	)
	return i, err
}

const upsertDelivery = `
INSERT INTO deliveries (period_key, label, state, run_id, delivered_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(period_key) DO UPDATE SET
    label = excluded.label,
    state = excluded.state,
    run_id = excluded.run_id,
    delivered_at_ms = excluded.delivered_at_ms
`

func (q *Queries) UpsertDelivery(ctx context.Context, arg DeliveryRow) error {
	_, err := q.db.ExecContext(ctx, upsertDelivery,
		arg.PeriodKey,
		arg.Label,
		arg.State,
		arg.RunID,
		arg.DeliveredAtMs,
	)
	return err
}

const insertDelivery = `
INSERT INTO deliveries (period_key, label, state, run_id, delivered_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(period_key) DO NOTHING
`

// InsertDelivery returns the number of inserted rows: 0 when the period
// already has a row.
func (q *Queries) InsertDelivery(ctx context.Context, arg DeliveryRow) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertDelivery,
		arg.PeriodKey,
		arg.Label,
		arg.State,
		arg.RunID,
		arg.DeliveredAtMs,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteDeliveryInState = `
DELETE FROM deliveries
WHERE period_key = ? AND run_id = ? AND state = ?
`

func (q *Queries) DeleteDeliveryInState(ctx context.Context, periodKey, runID, state string) error {
	_, err := q.db.ExecContext(ctx, deleteDeliveryInState, periodKey, runID, state)
	return err
}

const getChatBinding = `
SELECT chat_id, user_id, first_name, updated_at_ms
FROM chat_binding
WHERE id = 1
`

func (q *Queries) GetChatBinding(ctx context.Context) (ChatBindingRow, error) {
	row := q.db.QueryRowContext(ctx, getChatBinding)
	var i ChatBindingRow
	err := row.Scan(
		&i.ChatID,
		&i.UserID,
		&i.FirstName,
		&i.UpdatedAtMs,
	)
	return i, err
}

const upsertChatBinding = `
INSERT INTO chat_binding (id, chat_id, user_id, first_name, updated_at_ms)
VALUES (1, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    chat_id = excluded.chat_id,
    user_id = excluded.user_id,
    first_name = excluded.first_name,
    updated_at_ms = excluded.updated_at_ms
`

func (q *Queries) UpsertChatBinding(ctx context.Context, arg ChatBindingRow) error {
	_, err := q.db.ExecContext(ctx, upsertChatBinding,
		arg.ChatID,
		arg.UserID,
		arg.FirstName,
		arg.UpdatedAtMs,
	)
	return err
}
