package retainers

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelworks/gavelworks/internal/ledger/journals"
	"github.com/gavelworks/gavelworks/internal/platform/db"
)

// Repository exposes retainer reads and the transactional surface that ties
// balance changes to their journal postings.
type Repository interface {
	Get(ctx context.Context, firmID, clientID int64) (Retainer, error)
	List(ctx context.Context, firmID int64) ([]Retainer, error)
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
}

// TxRepository runs inside one transaction. Journals returns the journal
// engine bound to the same transaction so a posting and the balance change it
// explains commit or roll back together.
type TxRepository interface {
	EnsureForUpdate(ctx context.Context, firmID, clientID int64) (Retainer, error)
	GetForUpdate(ctx context.Context, firmID, clientID int64) (Retainer, error)
	SetBalance(ctx context.Context, id, balance int64) error
	SetStatus(ctx context.Context, id int64, status Status) error
	Journals() journals.TxRepository
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const retainerColumns = `id, firm_id, client_id, balance, status, created_at, updated_at`

func scanRetainer(row pgx.Row) (Retainer, error) {
	var ret Retainer
	err := row.Scan(&ret.ID, &ret.FirmID, &ret.ClientID, &ret.Balance, &ret.Status, &ret.CreatedAt, &ret.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Retainer{}, ErrNotFound
		}
		return Retainer{}, err
	}
	return ret, nil
}

func (r *repository) Get(ctx context.Context, firmID, clientID int64) (Retainer, error) {
	return scanRetainer(r.db.QueryRow(ctx, `SELECT `+retainerColumns+`
FROM retainers WHERE firm_id=$1 AND client_id=$2`, firmID, clientID))
}

func (r *repository) List(ctx context.Context, firmID int64) ([]Retainer, error) {
	rows, err := r.db.Query(ctx, `SELECT `+retainerColumns+`
FROM retainers WHERE firm_id=$1 ORDER BY client_id`, firmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Retainer
	for rows.Next() {
		var ret Retainer
		if err := rows.Scan(&ret.ID, &ret.FirmID, &ret.ClientID, &ret.Balance, &ret.Status, &ret.CreatedAt, &ret.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, ret)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx, journals: journals.NewTxRepository(tx)})
	})
}

type txRepository struct {
	tx       pgx.Tx
	journals journals.TxRepository
}

func (r *txRepository) Journals() journals.TxRepository {
	return r.journals
}

// EnsureForUpdate creates the retainer row on first use, then locks it.
func (r *txRepository) EnsureForUpdate(ctx context.Context, firmID, clientID int64) (Retainer, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO retainers (firm_id, client_id, balance, status)
VALUES ($1,$2,0,'ACTIVE') ON CONFLICT (firm_id, client_id) DO NOTHING`, firmID, clientID); err != nil {
		return Retainer{}, err
	}
	return r.GetForUpdate(ctx, firmID, clientID)
}

func (r *txRepository) GetForUpdate(ctx context.Context, firmID, clientID int64) (Retainer, error) {
	return scanRetainer(r.tx.QueryRow(ctx, `SELECT `+retainerColumns+`
FROM retainers WHERE firm_id=$1 AND client_id=$2 FOR UPDATE`, firmID, clientID))
}

func (r *txRepository) SetBalance(ctx context.Context, id, balance int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE retainers SET balance=$2, updated_at=NOW() WHERE id=$1`, id, balance)
	return err
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE retainers SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	return err
}
