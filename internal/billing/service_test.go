package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

type stubRepo struct {
	invoices map[int64]Invoice
	bills    map[int64]Bill
	expenses map[int64]Expense
	payments map[string]Payment
	nextID   int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		invoices: map[int64]Invoice{},
		bills:    map[int64]Bill{},
		expenses: map[int64]Expense{},
		payments: map[string]Payment{},
		nextID:   1,
	}
}

func (s *stubRepo) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *stubRepo) CreateInvoice(_ context.Context, inv Invoice) (Invoice, error) {
	inv.ID = s.id()
	inv.Status = InvoiceStatusDraft
	s.invoices[inv.ID] = inv
	return inv, nil
}

func (s *stubRepo) GetInvoice(_ context.Context, firmID, id int64) (Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok || inv.FirmID != firmID {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (s *stubRepo) FindInvoiceByNumber(_ context.Context, firmID int64, number string) (Invoice, error) {
	for _, inv := range s.invoices {
		if inv.FirmID == firmID && inv.Number == number {
			return inv, nil
		}
	}
	return Invoice{}, ErrNotFound
}

func (s *stubRepo) MarkInvoiceSent(_ context.Context, firmID, id int64, at time.Time) error {
	inv, ok := s.invoices[id]
	if !ok || inv.FirmID != firmID || inv.Status != InvoiceStatusDraft {
		return ErrInvalidStatus
	}
	inv.Status = InvoiceStatusSent
	inv.SentAt = &at
	s.invoices[id] = inv
	return nil
}

func (s *stubRepo) ApplyPayment(_ context.Context, p Payment, status InvoiceStatus, paidAt *time.Time) (Payment, error) {
	if _, ok := s.payments[p.Reference]; ok {
		return Payment{}, ErrDuplicateReference
	}
	p.ID = s.id()
	s.payments[p.Reference] = p
	inv := s.invoices[p.InvoiceID]
	inv.AmountPaid += p.Amount
	inv.Status = status
	if paidAt != nil {
		inv.PaidAt = paidAt
	}
	s.invoices[p.InvoiceID] = inv
	return p, nil
}

func (s *stubRepo) CreateBill(_ context.Context, b Bill) (Bill, error) {
	b.ID = s.id()
	b.Status = BillStatusDraft
	s.bills[b.ID] = b
	return b, nil
}

func (s *stubRepo) GetBill(_ context.Context, firmID, id int64) (Bill, error) {
	b, ok := s.bills[id]
	if !ok || b.FirmID != firmID {
		return Bill{}, ErrNotFound
	}
	return b, nil
}

func (s *stubRepo) FindBillByNumber(_ context.Context, firmID int64, number string) (Bill, error) {
	for _, b := range s.bills {
		if b.FirmID == firmID && b.Number == number {
			return b, nil
		}
	}
	return Bill{}, ErrNotFound
}

func (s *stubRepo) UpdateBillStatus(_ context.Context, firmID, id int64, status BillStatus, at time.Time) error {
	b, ok := s.bills[id]
	if !ok || b.FirmID != firmID {
		return ErrInvalidStatus
	}
	b.Status = status
	switch status {
	case BillStatusApproved:
		b.ApprovedAt = &at
	case BillStatusPaid:
		b.PaidAt = &at
	}
	s.bills[id] = b
	return nil
}

func (s *stubRepo) CreateExpense(_ context.Context, e Expense) (Expense, error) {
	e.ID = s.id()
	e.Status = ExpenseStatusDraft
	s.expenses[e.ID] = e
	return e, nil
}

func (s *stubRepo) GetExpense(_ context.Context, firmID, id int64) (Expense, error) {
	e, ok := s.expenses[id]
	if !ok || e.FirmID != firmID {
		return Expense{}, ErrNotFound
	}
	return e, nil
}

func (s *stubRepo) ApproveExpense(_ context.Context, firmID, id int64, at time.Time) error {
	e, ok := s.expenses[id]
	if !ok || e.FirmID != firmID || e.Status != ExpenseStatusDraft {
		return ErrInvalidStatus
	}
	e.Status = ExpenseStatusApproved
	e.ApprovedAt = &at
	s.expenses[id] = e
	return nil
}

type stubHook struct {
	err      error
	invoices []InvoiceSentEvent
	payments []PaymentReceivedEvent
	expenses []ExpenseApprovedEvent
	approved []BillApprovedEvent
	paid     []BillPaidEvent
}

func (h *stubHook) HandleInvoiceSent(_ context.Context, evt InvoiceSentEvent) error {
	if h.err != nil {
		return h.err
	}
	h.invoices = append(h.invoices, evt)
	return nil
}

func (h *stubHook) HandlePaymentReceived(_ context.Context, evt PaymentReceivedEvent) error {
	if h.err != nil {
		return h.err
	}
	h.payments = append(h.payments, evt)
	return nil
}

func (h *stubHook) HandleExpenseApproved(_ context.Context, evt ExpenseApprovedEvent) error {
	if h.err != nil {
		return h.err
	}
	h.expenses = append(h.expenses, evt)
	return nil
}

func (h *stubHook) HandleBillApproved(_ context.Context, evt BillApprovedEvent) error {
	if h.err != nil {
		return h.err
	}
	h.approved = append(h.approved, evt)
	return nil
}

func (h *stubHook) HandleBillPaid(_ context.Context, evt BillPaidEvent) error {
	if h.err != nil {
		return h.err
	}
	h.paid = append(h.paid, evt)
	return nil
}

type stubAudit struct{ logs []internalShared.AuditLog }

func (a *stubAudit) Record(_ context.Context, log internalShared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

var testActor = internalShared.Actor{ID: 7, FirmID: 1}

func newTestService(t *testing.T) (*Service, *stubRepo, *stubHook) {
	t.Helper()
	repo := newStubRepo()
	hook := &stubHook{}
	svc := NewService(repo, hook, &stubAudit{}).WithNow(func() time.Time {
		return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	})
	return svc, repo, hook
}

func seedInvoice(t *testing.T, svc *Service, total int64) Invoice {
	t.Helper()
	inv, err := svc.CreateInvoice(context.Background(), testActor, CreateInvoiceInput{
		ClientID: 42, Number: "INV-001", Total: total,
		IssuedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return inv
}

func TestSendInvoicePostsThenFlipsStatus(t *testing.T) {
	svc, _, hook := newTestService(t)
	inv := seedInvoice(t, svc, 50000)

	sent, err := svc.SendInvoice(context.Background(), testActor, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusSent, sent.Status)
	require.Len(t, hook.invoices, 1)
	assert.Equal(t, int64(50000), hook.invoices[0].Total)
}

func TestSendInvoiceHookFailureLeavesDraft(t *testing.T) {
	svc, repo, hook := newTestService(t)
	inv := seedInvoice(t, svc, 50000)
	hook.err = errors.New("ledger unavailable")

	_, err := svc.SendInvoice(context.Background(), testActor, inv.ID)
	require.Error(t, err)
	assert.Equal(t, InvoiceStatusDraft, repo.invoices[inv.ID].Status)
}

func TestRecordPaymentPartialThenFull(t *testing.T) {
	svc, _, hook := newTestService(t)
	inv := seedInvoice(t, svc, 100000)
	_, err := svc.SendInvoice(context.Background(), testActor, inv.ID)
	require.NoError(t, err)

	got, err := svc.RecordPayment(context.Background(), testActor, inv.ID, RecordPaymentInput{
		Reference: "PMT-1", Amount: 40000, ReceivedAt: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusSent, got.Status)
	assert.Equal(t, int64(40000), got.AmountPaid)

	got, err = svc.RecordPayment(context.Background(), testActor, inv.ID, RecordPaymentInput{
		Reference: "PMT-2", Amount: 60000, ReceivedAt: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	assert.Len(t, hook.payments, 2)
}

func TestRecordPaymentRejectsOverpayment(t *testing.T) {
	svc, _, hook := newTestService(t)
	inv := seedInvoice(t, svc, 100000)
	_, err := svc.SendInvoice(context.Background(), testActor, inv.ID)
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), testActor, inv.ID, RecordPaymentInput{
		Reference: "PMT-1", Amount: 150000, ReceivedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ErrOverpayment)
	assert.Empty(t, hook.payments, "no posting attempted for a rejected payment")
}

func TestRecordPaymentDuplicateReferenceIsIdempotent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	inv := seedInvoice(t, svc, 100000)
	_, err := svc.SendInvoice(context.Background(), testActor, inv.ID)
	require.NoError(t, err)

	_, err = svc.RecordPayment(context.Background(), testActor, inv.ID, RecordPaymentInput{
		Reference: "PMT-1", Amount: 40000, ReceivedAt: time.Now(),
	})
	require.NoError(t, err)

	got, err := svc.RecordPayment(context.Background(), testActor, inv.ID, RecordPaymentInput{
		Reference: "PMT-1", Amount: 40000, ReceivedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(40000), got.AmountPaid)
	assert.Len(t, repo.payments, 1)
}

func TestApproveBillHookFailureLeavesDraft(t *testing.T) {
	svc, repo, hook := newTestService(t)
	b, err := svc.CreateBill(context.Background(), testActor, CreateBillInput{
		VendorID: 9, Number: "BILL-7", Category: "software", Total: 25000,
		ReceivedAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	hook.err = errors.New("period closed")

	_, err = svc.ApproveBill(context.Background(), testActor, b.ID)
	require.Error(t, err)
	assert.Equal(t, BillStatusDraft, repo.bills[b.ID].Status)
}

func TestBillLifecycle(t *testing.T) {
	svc, _, hook := newTestService(t)
	b, err := svc.CreateBill(context.Background(), testActor, CreateBillInput{
		VendorID: 9, Number: "BILL-7", Category: "software", Total: 25000,
		ReceivedAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, err = svc.PayBill(context.Background(), testActor, b.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus, "draft bill cannot be paid")

	b, err = svc.ApproveBill(context.Background(), testActor, b.ID)
	require.NoError(t, err)
	assert.Equal(t, BillStatusApproved, b.Status)

	b, err = svc.PayBill(context.Background(), testActor, b.ID)
	require.NoError(t, err)
	assert.Equal(t, BillStatusPaid, b.Status)
	require.Len(t, hook.paid, 1)
	assert.Equal(t, int64(25000), hook.paid[0].Amount)
}

func TestApproveExpenseCarriesPaidFlag(t *testing.T) {
	svc, _, hook := newTestService(t)
	e, err := svc.CreateExpense(context.Background(), testActor, CreateExpenseInput{
		Category: "travel", Amount: 12000, Paid: true,
		IncurredAt: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	e, err = svc.ApproveExpense(context.Background(), testActor, e.ID)
	require.NoError(t, err)
	assert.Equal(t, ExpenseStatusApproved, e.Status)
	require.Len(t, hook.expenses, 1)
	assert.True(t, hook.expenses[0].Paid)

	_, err = svc.ApproveExpense(context.Background(), testActor, e.ID)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
