package billing

import (
	"context"
	"time"
)

// InvoiceSentEvent captures details required to post an invoice to the ledger.
type InvoiceSentEvent struct {
	ID       int64
	FirmID   int64
	ClientID int64
	Number   string
	Total    int64
	SentAt   time.Time
	ActorID  int64
}

// PaymentReceivedEvent describes a payment against an invoice. Reference is
// the caller-supplied payment reference and doubles as the idempotence key,
// so a retried capture never posts twice.
type PaymentReceivedEvent struct {
	FirmID     int64
	InvoiceID  int64
	Reference  string
	Amount     int64
	ReceivedAt time.Time
	ActorID    int64
}

// ExpenseApprovedEvent describes an approved expense. Paid selects the credit
// side: cash when already paid, accounts payable otherwise.
type ExpenseApprovedEvent struct {
	ID         int64
	FirmID     int64
	Category   string
	Amount     int64
	Paid       bool
	ApprovedAt time.Time
	ActorID    int64
}

// BillApprovedEvent describes an approved vendor bill.
type BillApprovedEvent struct {
	ID         int64
	FirmID     int64
	VendorID   int64
	Number     string
	Category   string
	Total      int64
	ApprovedAt time.Time
	ActorID    int64
}

// BillPaidEvent describes settlement of an approved bill.
type BillPaidEvent struct {
	FirmID  int64
	BillID  int64
	Amount  int64
	PaidAt  time.Time
	ActorID int64
}

// LedgerHook receives billing domain events for ledger integration. The hook
// must be idempotent per event id; the billing service only flips document
// status after the hook returns success.
type LedgerHook interface {
	HandleInvoiceSent(ctx context.Context, evt InvoiceSentEvent) error
	HandlePaymentReceived(ctx context.Context, evt PaymentReceivedEvent) error
	HandleExpenseApproved(ctx context.Context, evt ExpenseApprovedEvent) error
	HandleBillApproved(ctx context.Context, evt BillApprovedEvent) error
	HandleBillPaid(ctx context.Context, evt BillPaidEvent) error
}
