package mappings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelworks/gavelworks/internal/ledger/shared"
)

// Repository resolves posting keys to account ids.
type Repository interface {
	Get(ctx context.Context, firmID int64, key string) (AccountMapping, error)
	Upsert(ctx context.Context, mapping AccountMapping) error
	List(ctx context.Context, firmID int64) ([]AccountMapping, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, firmID int64, key string) (AccountMapping, error) {
	var m AccountMapping
	err := r.db.QueryRow(ctx, `SELECT firm_id, key, account_id, created_at, updated_at
FROM account_mappings WHERE firm_id=$1 AND key=$2`, firmID, key).
		Scan(&m.FirmID, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, shared.ErrMappingNotFound
		}
		return AccountMapping{}, err
	}
	return m, nil
}

func (r *repository) Upsert(ctx context.Context, mapping AccountMapping) error {
	_, err := r.db.Exec(ctx, `INSERT INTO account_mappings (firm_id, key, account_id)
VALUES ($1,$2,$3)
ON CONFLICT (firm_id, key) DO UPDATE SET account_id=EXCLUDED.account_id, updated_at=NOW()`,
		mapping.FirmID, mapping.Key, mapping.AccountID)
	return err
}

func (r *repository) List(ctx context.Context, firmID int64) ([]AccountMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT firm_id, key, account_id, created_at, updated_at
FROM account_mappings WHERE firm_id=$1 ORDER BY key`, firmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.FirmID, &m.Key, &m.AccountID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
