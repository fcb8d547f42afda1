// Package billing holds the lean source documents the ledger reacts to:
// invoices, payments, expenses and bills. The surrounding platform keeps the
// richer CRM data; only the fields the posting adapters need live here.
package billing

import (
	"errors"
	"time"
)

// InvoiceStatus enumerates the invoice lifecycle.
type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "DRAFT"
	InvoiceStatusSent  InvoiceStatus = "SENT"
	InvoiceStatusPaid  InvoiceStatus = "PAID"
)

// BillStatus enumerates the vendor bill lifecycle.
type BillStatus string

const (
	BillStatusDraft    BillStatus = "DRAFT"
	BillStatusApproved BillStatus = "APPROVED"
	BillStatusPaid     BillStatus = "PAID"
)

// ExpenseStatus enumerates the expense lifecycle.
type ExpenseStatus string

const (
	ExpenseStatusDraft    ExpenseStatus = "DRAFT"
	ExpenseStatusApproved ExpenseStatus = "APPROVED"
)

// Invoice is a client invoice. Total is minor currency units.
type Invoice struct {
	ID         int64
	FirmID     int64
	ClientID   int64
	Number     string
	Total      int64
	AmountPaid int64
	Status     InvoiceStatus
	IssuedAt   time.Time
	SentAt     *time.Time
	PaidAt     *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Payment records money received against an invoice. Reference is unique per
// firm and keys the ledger posting.
type Payment struct {
	ID         int64
	FirmID     int64
	InvoiceID  int64
	Reference  string
	Amount     int64
	ReceivedAt time.Time
	CreatedAt  time.Time
}

// ErrDuplicateReference indicates a payment reference was already recorded.
var ErrDuplicateReference = errors.New("billing: payment reference already recorded")

// Bill is a vendor bill. Category selects the expense account mapping.
type Bill struct {
	ID         int64
	FirmID     int64
	VendorID   int64
	Number     string
	Category   string
	Total      int64
	Status     BillStatus
	ReceivedAt time.Time
	ApprovedAt *time.Time
	PaidAt     *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Expense is a firm expense. Paid expenses credit cash directly; unpaid ones
// credit accounts payable.
type Expense struct {
	ID         int64
	FirmID     int64
	Category   string
	Amount     int64
	Paid       bool
	Status     ExpenseStatus
	IncurredAt time.Time
	ApprovedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

var (
	// ErrNotFound indicates a missing document.
	ErrNotFound = errors.New("billing: document not found")
	// ErrInvalidStatus indicates the document is not in the required state.
	ErrInvalidStatus = errors.New("billing: invalid document status")
	// ErrOverpayment indicates a payment exceeding the invoice remainder.
	ErrOverpayment = errors.New("billing: payment exceeds invoice balance")
)
