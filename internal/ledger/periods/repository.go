package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelworks/gavelworks/internal/ledger/shared"
)

// Repository encapsulates DB operations for fiscal periods.
type Repository interface {
	FindCoveringPeriod(ctx context.Context, firmID int64, date time.Time) (Period, error)
	ListYear(ctx context.Context, firmID int64, year int) ([]Period, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a transaction. The overlap
// check lives here so it shares the insert's transaction; the exclusion
// constraint on the table backstops races the snapshot cannot see.
type TxRepository interface {
	RangeConflict(ctx context.Context, firmID int64, start, end time.Time) (bool, error)
	InsertPeriods(ctx context.Context, periods []Period) error
	GetPeriodForUpdate(ctx context.Context, firmID, periodID int64) (Period, error)
	HasOpenPeriodBefore(ctx context.Context, firmID int64, start time.Time) (bool, error)
	UpdateStatus(ctx context.Context, periodID int64, status PeriodStatus, lockedBy *int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, firm_id, fiscal_year, sequence, start_date, end_date, status, closed_at, locked_by, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.FirmID, &p.FiscalYear, &p.Sequence, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.LockedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// FindCoveringPeriod returns the period containing the date regardless of
// status; the caller decides whether its state permits posting.
func (r *repository) FindCoveringPeriod(ctx context.Context, firmID int64, date time.Time) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods
WHERE firm_id=$1 AND $2 BETWEEN start_date AND end_date LIMIT 1`, firmID, date)
	period, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, err
	}
	return period, nil
}

func (r *repository) ListYear(ctx context.Context, firmID int64, year int) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM periods
WHERE firm_id=$1 AND fiscal_year=$2 ORDER BY sequence`, firmID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) RangeConflict(ctx context.Context, firmID int64, start, end time.Time) (bool, error) {
	var conflict bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM periods WHERE firm_id=$1 AND start_date <= $3 AND end_date >= $2)`, firmID, start, end).Scan(&conflict)
	return conflict, err
}

func (r *txRepository) InsertPeriods(ctx context.Context, periods []Period) error {
	for _, p := range periods {
		if _, err := r.tx.Exec(ctx, `INSERT INTO periods (firm_id, fiscal_year, sequence, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5,$6)`, p.FirmID, p.FiscalYear, p.Sequence, p.StartDate, p.EndDate, p.Status); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && (pgErr.ConstraintName == "ex_periods_firm_range" || pgErr.ConstraintName == "uq_periods_firm_year_seq") {
				return shared.ErrYearExists
			}
			return err
		}
	}
	return nil
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, firmID, periodID int64) (Period, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE firm_id=$1 AND id=$2 FOR UPDATE`, firmID, periodID)
	period, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrPeriodNotFound
		}
		return Period{}, err
	}
	return period, nil
}

func (r *txRepository) HasOpenPeriodBefore(ctx context.Context, firmID int64, start time.Time) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM periods WHERE firm_id=$1 AND start_date < $2 AND status='OPEN')`, firmID, start).Scan(&exists)
	return exists, err
}

func (r *txRepository) UpdateStatus(ctx context.Context, periodID int64, status PeriodStatus, lockedBy *int64) error {
	var closedAt any
	if status == PeriodStatusClosed {
		closedAt = time.Now()
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE periods SET status=$2, closed_at=COALESCE($3, closed_at), locked_by=COALESCE($4, locked_by), updated_at=NOW() WHERE id=$1`,
		periodID, status, closedAt, lockedBy)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrPeriodNotFound
	}
	return nil
}
