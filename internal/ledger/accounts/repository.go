package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelworks/gavelworks/internal/ledger/shared"
)

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	Create(ctx context.Context, in CreateInput) (Account, error)
	List(ctx context.Context, firmID int64) ([]Account, error)
	ListByTypes(ctx context.Context, firmID int64, types ...AccountType) ([]Account, error)
	ListAll(ctx context.Context) ([]Account, error)
	GetByID(ctx context.Context, firmID, id int64) (Account, error)
	SumPostedLines(ctx context.Context, accountID int64, asOf time.Time) (debits, credits int64, err error)
	HasPostingsInOpenPeriod(ctx context.Context, accountID int64) (bool, error)
	SetActive(ctx context.Context, firmID, id int64, active bool) error
	RecomputeBalance(ctx context.Context, accountID int64) (int64, error)
	SetBalance(ctx context.Context, accountID, balance int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, firm_id, code, name, type, subtype, parent_id, is_active, current_balance, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.FirmID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.ParentID, &a.IsActive, &a.CurrentBalance, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *repository) Create(ctx context.Context, in CreateInput) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (firm_id, code, name, type, subtype, parent_id, is_active, current_balance)
VALUES ($1,$2,$3,$4,$5,$6,TRUE,0) RETURNING `+accountColumns,
		in.FirmID, in.Code, in.Name, in.Type, in.Subtype, in.ParentID)
	account, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_accounts_firm_code" {
			return Account{}, shared.ErrDuplicateCode
		}
		return Account{}, err
	}
	return account, nil
}

func (r *repository) List(ctx context.Context, firmID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE firm_id=$1 ORDER BY code`, firmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *repository) ListByTypes(ctx context.Context, firmID int64, types ...AccountType) ([]Account, error) {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE firm_id=$1 AND type=ANY($2) ORDER BY code`, firmID, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *repository) ListAll(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY firm_id, code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *repository) GetByID(ctx context.Context, firmID, id int64) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE firm_id=$1 AND id=$2`, firmID, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

// SumPostedLines totals the posted journal lines touching the account up to
// and including asOf. Void entries and their reversals both stay in the sum;
// they cancel out by construction.
func (r *repository) SumPostedLines(ctx context.Context, accountID int64, asOf time.Time) (int64, int64, error) {
	var debits, credits int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(jl.debit),0), COALESCE(SUM(jl.credit),0)
FROM journal_lines jl
JOIN journal_entries je ON je.id = jl.je_id
WHERE jl.account_id=$1 AND je.date <= $2`, accountID, asOf).Scan(&debits, &credits)
	if err != nil {
		return 0, 0, err
	}
	return debits, credits, nil
}

func (r *repository) HasPostingsInOpenPeriod(ctx context.Context, accountID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM journal_lines jl
JOIN journal_entries je ON je.id = jl.je_id
JOIN periods p ON p.firm_id = je.firm_id AND je.date BETWEEN p.start_date AND p.end_date
WHERE jl.account_id=$1 AND p.status='OPEN')`, accountID).Scan(&exists)
	return exists, err
}

func (r *repository) SetActive(ctx context.Context, firmID, id int64, active bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET is_active=$3, updated_at=NOW() WHERE firm_id=$1 AND id=$2`, firmID, id, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

// RecomputeBalance replays every journal line for the account and returns the
// signed balance on the account's normal side.
func (r *repository) RecomputeBalance(ctx context.Context, accountID int64) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(
CASE WHEN a.type IN ('ASSET','EXPENSE') THEN jl.debit - jl.credit ELSE jl.credit - jl.debit END),0)
FROM journal_lines jl
JOIN journal_entries je ON je.id = jl.je_id
JOIN accounts a ON a.id = jl.account_id
WHERE jl.account_id=$1`, accountID).Scan(&balance)
	return balance, err
}

func (r *repository) SetBalance(ctx context.Context, accountID, balance int64) error {
	_, err := r.db.Exec(ctx, `UPDATE accounts SET current_balance=$2, updated_at=NOW() WHERE id=$1`, accountID, balance)
	return err
}
