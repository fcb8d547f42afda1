package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for billing documents.
type Repository interface {
	CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, firmID, id int64) (Invoice, error)
	FindInvoiceByNumber(ctx context.Context, firmID int64, number string) (Invoice, error)
	MarkInvoiceSent(ctx context.Context, firmID, id int64, at time.Time) error
	ApplyPayment(ctx context.Context, p Payment, invoiceStatus InvoiceStatus, paidAt *time.Time) (Payment, error)

	CreateBill(ctx context.Context, b Bill) (Bill, error)
	GetBill(ctx context.Context, firmID, id int64) (Bill, error)
	FindBillByNumber(ctx context.Context, firmID int64, number string) (Bill, error)
	UpdateBillStatus(ctx context.Context, firmID, id int64, status BillStatus, at time.Time) error

	CreateExpense(ctx context.Context, e Expense) (Expense, error)
	GetExpense(ctx context.Context, firmID, id int64) (Expense, error)
	ApproveExpense(ctx context.Context, firmID, id int64, at time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const invoiceColumns = `id, firm_id, client_id, number, total, amount_paid, status, issued_at, sent_at, paid_at, created_at, updated_at`

func (r *repository) CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO invoices (firm_id, client_id, number, total, amount_paid, status, issued_at)
VALUES ($1,$2,$3,$4,0,'DRAFT',$5) RETURNING `+invoiceColumns,
		inv.FirmID, inv.ClientID, inv.Number, inv.Total, inv.IssuedAt)
	return scanInvoice(row)
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.FirmID, &inv.ClientID, &inv.Number, &inv.Total, &inv.AmountPaid, &inv.Status, &inv.IssuedAt, &inv.SentAt, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *repository) GetInvoice(ctx context.Context, firmID, id int64) (Invoice, error) {
	return scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE firm_id=$1 AND id=$2`, firmID, id))
}

func (r *repository) FindInvoiceByNumber(ctx context.Context, firmID int64, number string) (Invoice, error) {
	return scanInvoice(r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE firm_id=$1 AND number=$2`, firmID, number))
}

func (r *repository) MarkInvoiceSent(ctx context.Context, firmID, id int64, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE invoices SET status='SENT', sent_at=$3, updated_at=NOW()
WHERE firm_id=$1 AND id=$2 AND status='DRAFT'`, firmID, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

// ApplyPayment inserts the payment row and bumps the invoice in one
// transaction. The ledger posting has already committed by the time this
// runs; a duplicate reference means a retried request, not new money.
func (r *repository) ApplyPayment(ctx context.Context, p Payment, invoiceStatus InvoiceStatus, paidAt *time.Time) (Payment, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Payment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `INSERT INTO payments (firm_id, invoice_id, reference, amount, received_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
		p.FirmID, p.InvoiceID, p.Reference, p.Amount, p.ReceivedAt)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_payments_firm_reference" {
			return Payment{}, ErrDuplicateReference
		}
		return Payment{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE invoices SET amount_paid = amount_paid + $3, status=$4, paid_at=COALESCE($5, paid_at), updated_at=NOW()
WHERE firm_id=$1 AND id=$2`, p.FirmID, p.InvoiceID, p.Amount, invoiceStatus, paidAt); err != nil {
		return Payment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Payment{}, err
	}
	return p, nil
}

const billColumns = `id, firm_id, vendor_id, number, category, total, status, received_at, approved_at, paid_at, created_at, updated_at`

func (r *repository) CreateBill(ctx context.Context, b Bill) (Bill, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO bills (firm_id, vendor_id, number, category, total, status, received_at)
VALUES ($1,$2,$3,$4,$5,'DRAFT',$6) RETURNING `+billColumns,
		b.FirmID, b.VendorID, b.Number, b.Category, b.Total, b.ReceivedAt)
	return scanBill(row)
}

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.FirmID, &b.VendorID, &b.Number, &b.Category, &b.Total, &b.Status, &b.ReceivedAt, &b.ApprovedAt, &b.PaidAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, ErrNotFound
		}
		return Bill{}, err
	}
	return b, nil
}

func (r *repository) GetBill(ctx context.Context, firmID, id int64) (Bill, error) {
	return scanBill(r.db.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE firm_id=$1 AND id=$2`, firmID, id))
}

func (r *repository) FindBillByNumber(ctx context.Context, firmID int64, number string) (Bill, error) {
	return scanBill(r.db.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE firm_id=$1 AND number=$2`, firmID, number))
}

func (r *repository) UpdateBillStatus(ctx context.Context, firmID, id int64, status BillStatus, at time.Time) error {
	var query string
	switch status {
	case BillStatusApproved:
		query = `UPDATE bills SET status='APPROVED', approved_at=$3, updated_at=NOW() WHERE firm_id=$1 AND id=$2 AND status='DRAFT'`
	case BillStatusPaid:
		query = `UPDATE bills SET status='PAID', paid_at=$3, updated_at=NOW() WHERE firm_id=$1 AND id=$2 AND status='APPROVED'`
	default:
		return ErrInvalidStatus
	}
	cmd, err := r.db.Exec(ctx, query, firmID, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}

const expenseColumns = `id, firm_id, category, amount, paid, status, incurred_at, approved_at, created_at, updated_at`

func (r *repository) CreateExpense(ctx context.Context, e Expense) (Expense, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO expenses (firm_id, category, amount, paid, status, incurred_at)
VALUES ($1,$2,$3,$4,'DRAFT',$5) RETURNING `+expenseColumns,
		e.FirmID, e.Category, e.Amount, e.Paid, e.IncurredAt)
	return scanExpense(row)
}

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.FirmID, &e.Category, &e.Amount, &e.Paid, &e.Status, &e.IncurredAt, &e.ApprovedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, err
	}
	return e, nil
}

func (r *repository) GetExpense(ctx context.Context, firmID, id int64) (Expense, error) {
	return scanExpense(r.db.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE firm_id=$1 AND id=$2`, firmID, id))
}

func (r *repository) ApproveExpense(ctx context.Context, firmID, id int64, at time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE expenses SET status='APPROVED', approved_at=$3, updated_at=NOW()
WHERE firm_id=$1 AND id=$2 AND status='DRAFT'`, firmID, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvalidStatus
	}
	return nil
}
