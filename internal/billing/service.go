package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

// Service drives the billing document lifecycle. Every transition that has a
// financial effect first posts to the ledger via the hook; status only flips
// after the posting succeeds, so a crashed request leaves the document in its
// prior state and a retry re-posts idempotently.
type Service struct {
	repo  Repository
	hook  LedgerHook
	audit AuditPort
	now   func() time.Time
}

// AuditPort records billing lifecycle actions.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

func NewService(repo Repository, hook LedgerHook, audit AuditPort) *Service {
	return &Service{repo: repo, hook: hook, audit: audit, now: time.Now}
}

// WithNow overrides the service clock for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateInvoiceInput carries invoice creation fields.
type CreateInvoiceInput struct {
	ClientID int64     `json:"client_id" validate:"required"`
	Number   string    `json:"number" validate:"required"`
	Total    int64     `json:"total" validate:"required,gt=0"`
	IssuedAt time.Time `json:"issued_at" validate:"required"`
}

func (s *Service) CreateInvoice(ctx context.Context, actor internalShared.Actor, in CreateInvoiceInput) (Invoice, error) {
	inv, err := s.repo.CreateInvoice(ctx, Invoice{
		FirmID:   actor.FirmID,
		ClientID: in.ClientID,
		Number:   in.Number,
		Total:    in.Total,
		IssuedAt: in.IssuedAt,
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("create invoice: %w", err)
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		FirmID: actor.FirmID, ActorID: actor.ID,
		Action: "invoice.create", Entity: "invoice", EntityID: strconv.FormatInt(inv.ID, 10),
	})
	return inv, nil
}

func (s *Service) GetInvoice(ctx context.Context, firmID, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, firmID, id)
}

// FindInvoiceByNumber looks an invoice up by its firm-unique number. The
// recurring scheduler uses it to recover a document created by a run that
// crashed before posting.
func (s *Service) FindInvoiceByNumber(ctx context.Context, firmID int64, number string) (Invoice, error) {
	return s.repo.FindInvoiceByNumber(ctx, firmID, number)
}

// SendInvoice posts the receivable and marks the invoice SENT.
func (s *Service) SendInvoice(ctx context.Context, actor internalShared.Actor, id int64) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, actor.FirmID, id)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != InvoiceStatusDraft {
		return Invoice{}, ErrInvalidStatus
	}
	sentAt := s.now().UTC()
	if err := s.hook.HandleInvoiceSent(ctx, InvoiceSentEvent{
		ID: inv.ID, FirmID: inv.FirmID, ClientID: inv.ClientID,
		Number: inv.Number, Total: inv.Total, SentAt: sentAt, ActorID: actor.ID,
	}); err != nil {
		return Invoice{}, fmt.Errorf("post invoice %d: %w", inv.ID, err)
	}
	if err := s.repo.MarkInvoiceSent(ctx, actor.FirmID, id, sentAt); err != nil {
		return Invoice{}, err
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		FirmID: actor.FirmID, ActorID: actor.ID,
		Action: "invoice.send", Entity: "invoice", EntityID: strconv.FormatInt(inv.ID, 10),
	})
	return s.repo.GetInvoice(ctx, actor.FirmID, id)
}

// RecordPaymentInput carries payment capture fields. Reference must be unique
// per firm; retries with the same reference are treated as already applied.
type RecordPaymentInput struct {
	Reference  string    `json:"reference" validate:"required"`
	Amount     int64     `json:"amount" validate:"required,gt=0"`
	ReceivedAt time.Time `json:"received_at" validate:"required"`
}

// RecordPayment posts cash against the receivable, then applies the payment
// row and invoice rollup. A duplicate reference after a successful posting is
// a retried request and returns the invoice unchanged.
func (s *Service) RecordPayment(ctx context.Context, actor internalShared.Actor, invoiceID int64, in RecordPaymentInput) (Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, actor.FirmID, invoiceID)
	if err != nil {
		return Invoice{}, err
	}
	if inv.Status != InvoiceStatusSent {
		return Invoice{}, ErrInvalidStatus
	}
	if inv.AmountPaid+in.Amount > inv.Total {
		return Invoice{}, ErrOverpayment
	}
	if err := s.hook.HandlePaymentReceived(ctx, PaymentReceivedEvent{
		FirmID: actor.FirmID, InvoiceID: invoiceID, Reference: in.Reference,
		Amount: in.Amount, ReceivedAt: in.ReceivedAt, ActorID: actor.ID,
	}); err != nil {
		return Invoice{}, fmt.Errorf("post payment %q: %w", in.Reference, err)
	}

	status := InvoiceStatusSent
	var paidAt *time.Time
	if inv.AmountPaid+in.Amount == inv.Total {
		status = InvoiceStatusPaid
		now := s.now().UTC()
		paidAt = &now
	}
	_, err = s.repo.ApplyPayment(ctx, Payment{
		FirmID: actor.FirmID, InvoiceID: invoiceID,
		Reference: in.Reference, Amount: in.Amount, ReceivedAt: in.ReceivedAt,
	}, status, paidAt)
	if err != nil && !errors.Is(err, ErrDuplicateReference) {
		return Invoice{}, err
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		FirmID: actor.FirmID, ActorID: actor.ID,
		Action: "invoice.payment", Entity: "invoice", EntityID: strconv.FormatInt(invoiceID, 10),
		Meta: map[string]any{"reference": in.Reference, "amount": in.Amount},
	})
	return s.repo.GetInvoice(ctx, actor.FirmID, invoiceID)
}

// CreateBillInput carries vendor bill creation fields.
type CreateBillInput struct {
	VendorID   int64     `json:"vendor_id" validate:"required"`
	Number     string    `json:"number" validate:"required"`
	Category   string    `json:"category" validate:"required"`
	Total      int64     `json:"total" validate:"required,gt=0"`
	ReceivedAt time.Time `json:"received_at" validate:"required"`
}

func (s *Service) CreateBill(ctx context.Context, actor internalShared.Actor, in CreateBillInput) (Bill, error) {
	b, err := s.repo.CreateBill(ctx, Bill{
		FirmID:     actor.FirmID,
		VendorID:   in.VendorID,
		Number:     in.Number,
		Category:   in.Category,
		Total:      in.Total,
		ReceivedAt: in.ReceivedAt,
	})
	if err != nil {
		return Bill{}, fmt.Errorf("create bill: %w", err)
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		FirmID: actor.FirmID, ActorID: actor.ID,
		Action: "bill.create", Entity: "bill", EntityID: strconv.FormatInt(b.ID, 10),
	})
	return b, nil
}

func (s *Service) GetBill(ctx context.Context, firmID, id int64) (Bill, error) {
	return s.repo.GetBill(ctx, firmID, id)
}

// FindBillByNumber looks a bill up by its firm-unique number.
func (s *Service) FindBillByNumber(ctx context.Context, firmID int64, number string) (Bill, error) {
	return s.repo.FindBillByNumber(ctx, firmID, number)
}

// ApproveBill posts the expense accrual and marks the bill APPROVED.
func (s *Service) ApproveBill(ctx context.Context, actor internalShared.Actor, id int64) (Bill, error) {
	b, err := s.repo.GetBill(ctx, actor.FirmID, id)
	if err != nil {
		return Bill{}, err
	}
	if b.Status != BillStatusDraft {
		return Bill{}, ErrInvalidStatus
	}
	approvedAt := s.now().UTC()
	if err := s.hook.HandleBillApproved(ctx, BillApprovedEvent{
		ID: b.ID, FirmID: b.FirmID, VendorID: b.VendorID, Number: b.Number,
		Category: b.Category, Total: b.Total, ApprovedAt: approvedAt, ActorID: actor.ID,
	}); err != nil {
		return Bill{}, fmt.Errorf("post bill %d: %w", b.ID, err)
	}
	if err := s.repo.UpdateBillStatus(ctx, actor.FirmID, id, BillStatusApproved, approvedAt); err != nil {
		return Bill{}, err
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		FirmID: actor.FirmID, ActorID: actor.ID,
		Action: "bill.approve", Entity: "bill", EntityID: strconv.FormatInt(b.ID, 10),
	})
	return s.repo.GetBill(ctx, actor.FirmID, id)
}

// PayBill posts cash against the payable and marks the bill PAID.
func (s *Service) PayBill(ctx context.Context, actor internalShared.Actor, id int64) (Bill, error) {
	b, err := s.repo.GetBill(ctx, actor.FirmID, id)
	if err != nil {
		return Bill{}, err
	}
	if b.Status != BillStatusApproved {
		return Bill{}, ErrInvalidStatus
	}
	paidAt := s.now().UTC()
	if err := s.hook.HandleBillPaid(ctx, BillPaidEvent{
		FirmID: b.FirmID, BillID: b.ID, Amount: b.Total, PaidAt: paidAt, ActorID: actor.ID,
	}); err != nil {
		return Bill{}, fmt.Errorf("post bill payment %d: %w", b.ID, err)
	}
	if err := s.repo.UpdateBillStatus(ctx, actor.FirmID, id, BillStatusPaid, paidAt); err != nil {
		return Bill{}, err
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		FirmID: actor.FirmID, ActorID: actor.ID,
		Action: "bill.pay", Entity: "bill", EntityID: strconv.FormatInt(b.ID, 10),
	})
	return s.repo.GetBill(ctx, actor.FirmID, id)
}

// CreateExpenseInput carries expense creation fields.
type CreateExpenseInput struct {
	Category   string    `json:"category" validate:"required"`
	Amount     int64     `json:"amount" validate:"required,gt=0"`
	Paid       bool      `json:"paid"`
	IncurredAt time.Time `json:"incurred_at" validate:"required"`
}

func (s *Service) CreateExpense(ctx context.Context, actor internalShared.Actor, in CreateExpenseInput) (Expense, error) {
	e, err := s.repo.CreateExpense(ctx, Expense{
		FirmID:     actor.FirmID,
		Category:   in.Category,
		Amount:     in.Amount,
		Paid:       in.Paid,
		IncurredAt: in.IncurredAt,
	})
	if err != nil {
		return Expense{}, fmt.Errorf("create expense: %w", err)
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		FirmID: actor.FirmID, ActorID: actor.ID,
		Action: "expense.create", Entity: "expense", EntityID: strconv.FormatInt(e.ID, 10),
	})
	return e, nil
}

func (s *Service) GetExpense(ctx context.Context, firmID, id int64) (Expense, error) {
	return s.repo.GetExpense(ctx, firmID, id)
}

// ApproveExpense posts the expense and marks it APPROVED.
func (s *Service) ApproveExpense(ctx context.Context, actor internalShared.Actor, id int64) (Expense, error) {
	e, err := s.repo.GetExpense(ctx, actor.FirmID, id)
	if err != nil {
		return Expense{}, err
	}
	if e.Status != ExpenseStatusDraft {
		return Expense{}, ErrInvalidStatus
	}
	approvedAt := s.now().UTC()
	if err := s.hook.HandleExpenseApproved(ctx, ExpenseApprovedEvent{
		ID: e.ID, FirmID: e.FirmID, Category: e.Category, Amount: e.Amount,
		Paid: e.Paid, ApprovedAt: approvedAt, ActorID: actor.ID,
	}); err != nil {
		return Expense{}, fmt.Errorf("post expense %d: %w", e.ID, err)
	}
	if err := s.repo.ApproveExpense(ctx, actor.FirmID, id, approvedAt); err != nil {
		return Expense{}, err
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		FirmID: actor.FirmID, ActorID: actor.ID,
		Action: "expense.approve", Entity: "expense", EntityID: strconv.FormatInt(e.ID, 10),
	})
	return s.repo.GetExpense(ctx, actor.FirmID, id)
}
