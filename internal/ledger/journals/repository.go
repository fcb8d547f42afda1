package journals

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gavelworks/gavelworks/internal/ledger/accounts"
	"github.com/gavelworks/gavelworks/internal/ledger/periods"
	"github.com/gavelworks/gavelworks/internal/ledger/shared"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	List(ctx context.Context, firmID int64, filter ListFilter) ([]JournalEntry, error)
	Count(ctx context.Context, firmID int64, filter ListFilter) (int, error)
	GetWithLines(ctx context.Context, firmID, entryID int64) (JournalEntry, []JournalLine, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the posting operations available within a transaction.
// Period and account reads are duplicated here from their home repositories
// because the invariant checks must share the posting transaction.
type TxRepository interface {
	FindCoveringPeriodForUpdate(ctx context.Context, firmID int64, date time.Time) (periods.Period, error)
	GetAccountForUpdate(ctx context.Context, firmID, accountID int64) (accounts.Account, error)
	UpdateAccountBalance(ctx context.Context, accountID, balance int64) error
	InsertJournalEntry(ctx context.Context, in PostingInput, periodID int64) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error
	GetJournalWithLines(ctx context.Context, firmID, entryID int64) (JournalEntry, []JournalLine, error)
	UpdateJournalStatus(ctx context.Context, entryID int64, status JournalStatus) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, firm_id, number, period_id, date, source_type, source_id, memo, posted_by, posted_at, status, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.FirmID, &e.Number, &e.PeriodID, &e.Date, &e.SourceType, &e.SourceID, &e.Memo, &e.PostedBy, &e.PostedAt, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func appendFilter(query *strings.Builder, args []any, filter ListFilter) []any {
	if filter.SourceType != "" {
		args = append(args, filter.SourceType)
		query.WriteString(` AND source_type=$` + itoa(len(args)))
	}
	if filter.SourceID != nil {
		args = append(args, *filter.SourceID)
		query.WriteString(` AND source_id=$` + itoa(len(args)))
	}
	if filter.AccountID != 0 {
		args = append(args, filter.AccountID)
		query.WriteString(` AND id IN (SELECT je_id FROM journal_lines WHERE account_id=$` + itoa(len(args)) + `)`)
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query.WriteString(` AND date >= $` + itoa(len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query.WriteString(` AND date <= $` + itoa(len(args)))
	}
	return args
}

func (r *repository) List(ctx context.Context, firmID int64, filter ListFilter) ([]JournalEntry, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT ` + entryColumns + ` FROM journal_entries WHERE firm_id=$1`)
	args := appendFilter(&query, []any{firmID}, filter)
	query.WriteString(` ORDER BY number DESC`)
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	args = append(args, limit)
	query.WriteString(` LIMIT $` + itoa(len(args)))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query.WriteString(` OFFSET $` + itoa(len(args)))
	}

	rows, err := r.db.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) Count(ctx context.Context, firmID int64, filter ListFilter) (int, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT COUNT(*) FROM journal_entries WHERE firm_id=$1`)
	args := appendFilter(&query, []any{firmID}, filter)
	var total int
	if err := r.db.QueryRow(ctx, query.String(), args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repository) GetWithLines(ctx context.Context, firmID, entryID int64) (JournalEntry, []JournalLine, error) {
	return getJournalWithLines(ctx, r.db, firmID, entryID)
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := NewTxRepository(tx)
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open transaction so other modules (retainers) can
// run a posting inside their own atomic unit.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) FindCoveringPeriodForUpdate(ctx context.Context, firmID int64, date time.Time) (periods.Period, error) {
	var p periods.Period
	err := r.tx.QueryRow(ctx, `SELECT id, firm_id, fiscal_year, sequence, start_date, end_date, status, closed_at, locked_by, created_at, updated_at
FROM periods WHERE firm_id=$1 AND $2 BETWEEN start_date AND end_date LIMIT 1 FOR UPDATE`, firmID, date).
		Scan(&p.ID, &p.FirmID, &p.FiscalYear, &p.Sequence, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedAt, &p.LockedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, shared.ErrPeriodNotFound
		}
		return periods.Period{}, err
	}
	return p, nil
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, firmID, accountID int64) (accounts.Account, error) {
	var a accounts.Account
	err := r.tx.QueryRow(ctx, `SELECT id, firm_id, code, name, type, subtype, parent_id, is_active, current_balance, created_at, updated_at
FROM accounts WHERE firm_id=$1 AND id=$2 FOR UPDATE`, firmID, accountID).
		Scan(&a.ID, &a.FirmID, &a.Code, &a.Name, &a.Type, &a.Subtype, &a.ParentID, &a.IsActive, &a.CurrentBalance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.Account{}, shared.ErrAccountNotFound
		}
		return accounts.Account{}, err
	}
	return a, nil
}

func (r *txRepository) UpdateAccountBalance(ctx context.Context, accountID, balance int64) error {
	_, err := r.tx.Exec(ctx, `UPDATE accounts SET current_balance=$2, updated_at=NOW() WHERE id=$1`, accountID, balance)
	return err
}

// InsertJournalEntry runs under a savepoint. A unique violation on the source
// key aborts the current transaction server-side; callers that treat a replay
// as success (retainer postings) still need the enclosing transaction to
// commit, so the failed insert is rolled back to the savepoint first.
func (r *txRepository) InsertJournalEntry(ctx context.Context, in PostingInput, periodID int64) (JournalEntry, error) {
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return JournalEntry{}, err
	}
	row := sp.QueryRow(ctx, `INSERT INTO journal_entries (firm_id, period_id, date, source_type, source_id, memo, posted_by, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,'POSTED') RETURNING id, number, posted_at, created_at, updated_at`,
		in.FirmID, periodID, in.Date, in.SourceType, in.SourceID, in.Memo, in.PostedBy)
	var entry JournalEntry
	entry.FirmID = in.FirmID
	entry.PeriodID = periodID
	entry.Date = in.Date
	entry.SourceType = in.SourceType
	entry.SourceID = in.SourceID
	entry.Memo = in.Memo
	entry.PostedBy = in.PostedBy
	entry.Status = JournalStatusPosted
	if err := row.Scan(&entry.ID, &entry.Number, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		_ = sp.Rollback(ctx)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_journal_entries_source" {
			return JournalEntry{}, shared.ErrSourceConflict
		}
		return JournalEntry{}, err
	}
	if err := sp.Commit(ctx); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (je_id, account_id, debit, credit)
VALUES ($1,$2,$3,$4)`, entryID, line.AccountID, line.Debit, line.Credit); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, firmID, entryID int64) (JournalEntry, []JournalLine, error) {
	return getJournalWithLines(ctx, r.tx, firmID, entryID)
}

func (r *txRepository) UpdateJournalStatus(ctx context.Context, entryID int64, status JournalStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, updated_at=NOW() WHERE id=$1`, entryID, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getJournalWithLines(ctx context.Context, q queryer, firmID, entryID int64) (JournalEntry, []JournalLine, error) {
	entry, err := scanEntry(q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE firm_id=$1 AND id=$2`, firmID, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, nil, shared.ErrJournalNotFound
		}
		return JournalEntry{}, nil, err
	}
	rows, err := q.Query(ctx, `SELECT id, je_id, account_id, debit, credit, created_at
FROM journal_lines WHERE je_id=$1 ORDER BY id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountID, &line.Debit, &line.Credit, &line.CreatedAt); err != nil {
			return JournalEntry{}, nil, err
		}
		lines = append(lines, line)
	}
	return entry, lines, rows.Err()
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
