package recurring

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists recurring templates.
type Repository interface {
	Create(ctx context.Context, t Transaction) (Transaction, error)
	// Update replaces the schedulable fields and the payload, clearing any
	// recorded error.
	Update(ctx context.Context, t Transaction) (Transaction, error)
	Get(ctx context.Context, firmID, id int64) (Transaction, error)
	List(ctx context.Context, firmID int64) ([]Transaction, error)
	// ListDue returns active templates whose next run is at or before now,
	// across all firms. Defect-flagged rows are excluded; they stay out of
	// the schedule until an operator repairs the template.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Transaction, error)
	SetStatus(ctx context.Context, firmID, id int64, status Status) error
	// Advance moves next_run forward, stamps last_generated_at and clears
	// any recorded error.
	Advance(ctx context.Context, id int64, nextRun, generatedAt time.Time) error
	RecordError(ctx context.Context, id int64, kind, message string) error
	UpdateTemplate(ctx context.Context, firmID, id int64, tpl Template) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const recurringColumns = `id, firm_id, name, transaction_type, frequency, anchor_day, next_run, status, template, last_generated_at, last_error, last_error_kind, created_at, updated_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var tplJSON []byte
	err := row.Scan(&t.ID, &t.FirmID, &t.Name, &t.Type, &t.Frequency, &t.AnchorDay,
		&t.NextRun, &t.Status, &tplJSON, &t.LastGeneratedAt,
		&t.LastError, &t.LastErrorKind, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	if err := json.Unmarshal(tplJSON, &t.Template); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

func (r *repository) Create(ctx context.Context, t Transaction) (Transaction, error) {
	tplJSON, err := json.Marshal(t.Template)
	if err != nil {
		return Transaction{}, err
	}
	row := r.db.QueryRow(ctx, `INSERT INTO recurring_transactions
(firm_id, name, transaction_type, frequency, anchor_day, next_run, status, template)
VALUES ($1,$2,$3,$4,$5,$6,'ACTIVE',$7) RETURNING `+recurringColumns,
		t.FirmID, t.Name, t.Type, t.Frequency, t.AnchorDay, t.NextRun, tplJSON)
	return scanTransaction(row)
}

func (r *repository) Update(ctx context.Context, t Transaction) (Transaction, error) {
	tplJSON, err := json.Marshal(t.Template)
	if err != nil {
		return Transaction{}, err
	}
	row := r.db.QueryRow(ctx, `UPDATE recurring_transactions
SET name=$3, frequency=$4, anchor_day=$5, next_run=$6, template=$7,
last_error='', last_error_kind='', updated_at=NOW()
WHERE firm_id=$1 AND id=$2 RETURNING `+recurringColumns,
		t.FirmID, t.ID, t.Name, t.Frequency, t.AnchorDay, t.NextRun, tplJSON)
	return scanTransaction(row)
}

func (r *repository) Get(ctx context.Context, firmID, id int64) (Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `SELECT `+recurringColumns+`
FROM recurring_transactions WHERE firm_id=$1 AND id=$2`, firmID, id))
}

func (r *repository) List(ctx context.Context, firmID int64) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+recurringColumns+`
FROM recurring_transactions WHERE firm_id=$1 ORDER BY id`, firmID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repository) ListDue(ctx context.Context, now time.Time, limit int) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+recurringColumns+`
FROM recurring_transactions
WHERE status='ACTIVE' AND next_run <= $1 AND COALESCE(last_error_kind,'') <> 'defect'
ORDER BY next_run
LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) SetStatus(ctx context.Context, firmID, id int64, status Status) error {
	cmd, err := r.db.Exec(ctx, `UPDATE recurring_transactions SET status=$3, updated_at=NOW()
WHERE firm_id=$1 AND id=$2`, firmID, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Advance(ctx context.Context, id int64, nextRun, generatedAt time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE recurring_transactions
SET next_run=$2, last_generated_at=$3, last_error='', last_error_kind='', updated_at=NOW()
WHERE id=$1`, id, nextRun, generatedAt)
	return err
}

func (r *repository) RecordError(ctx context.Context, id int64, kind, message string) error {
	_, err := r.db.Exec(ctx, `UPDATE recurring_transactions
SET last_error=$3, last_error_kind=$2, updated_at=NOW()
WHERE id=$1`, id, kind, message)
	return err
}

func (r *repository) UpdateTemplate(ctx context.Context, firmID, id int64, tpl Template) error {
	tplJSON, err := json.Marshal(tpl)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE recurring_transactions
SET template=$3, last_error='', last_error_kind='', updated_at=NOW()
WHERE firm_id=$1 AND id=$2`, firmID, id, tplJSON)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
