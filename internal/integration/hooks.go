// Package integration turns billing document events into journal postings.
// Each handler resolves the firm's account mappings, builds a balanced entry
// and posts it with a source id derived deterministically from the document,
// so replaying an event is a no-op.
package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gavelworks/gavelworks/internal/billing"
	"github.com/gavelworks/gavelworks/internal/ledger/journals"
	"github.com/gavelworks/gavelworks/internal/ledger/mappings"
	"github.com/gavelworks/gavelworks/internal/ledger/shared"
)

// Poster is the journal engine surface the hooks need.
type Poster interface {
	Post(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error)
}

// MetricsPort counts adapter defects.
type MetricsPort interface {
	RecordAdapterDefect(sourceType string)
}

// Hooks implements billing.LedgerHook against the journal engine.
type Hooks struct {
	poster   Poster
	mappings mappings.Repository
	logger   *slog.Logger
	metrics  MetricsPort
}

func NewHooks(logger *slog.Logger, poster Poster, mapRepo mappings.Repository, metrics MetricsPort) *Hooks {
	return &Hooks{poster: poster, mappings: mapRepo, logger: logger, metrics: metrics}
}

var _ billing.LedgerHook = (*Hooks)(nil)

// Source type names recorded on journal entries.
const (
	SourceInvoiceSent     = "invoice_sent"
	SourcePaymentReceived = "payment_received"
	SourceExpenseApproved = "expense_approved"
	SourceBillApproved    = "bill_approved"
	SourceBillPaid        = "bill_paid"
)

// sourceID derives a stable uuid for a document event. The same document
// always yields the same id, which is what makes retries idempotent.
func sourceID(sourceType string, parts ...any) uuid.UUID {
	seed := sourceType
	for _, p := range parts {
		seed += fmt.Sprintf(":%v", p)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed))
}

func (h *Hooks) post(ctx context.Context, input journals.PostingInput) error {
	_, err := h.poster.Post(ctx, input)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, shared.ErrAlreadyPosted):
		// Replay of an event whose posting already committed.
		h.logger.Info("posting already applied",
			slog.String("source_type", input.SourceType),
			slog.String("source_id", input.SourceID.String()))
		return nil
	case errors.Is(err, shared.ErrUnbalanced), errors.Is(err, shared.ErrTooFewLines):
		// An adapter built a bad entry. That is a code defect, not an
		// operational condition.
		h.logger.Error("adapter produced invalid entry",
			slog.String("source_type", input.SourceType),
			slog.Any("error", err))
		if h.metrics != nil {
			h.metrics.RecordAdapterDefect(input.SourceType)
		}
		return err
	default:
		return err
	}
}

func (h *Hooks) resolve(ctx context.Context, firmID int64, key string) (int64, error) {
	m, err := h.mappings.Get(ctx, firmID, key)
	if err != nil {
		return 0, fmt.Errorf("resolve mapping %q: %w", key, err)
	}
	return m.AccountID, nil
}

// HandleInvoiceSent debits accounts receivable and credits service revenue.
func (h *Hooks) HandleInvoiceSent(ctx context.Context, evt billing.InvoiceSentEvent) error {
	ar, err := h.resolve(ctx, evt.FirmID, mappings.KeyAccountsReceivable)
	if err != nil {
		return err
	}
	revenue, err := h.resolve(ctx, evt.FirmID, mappings.KeyServiceRevenue)
	if err != nil {
		return err
	}
	return h.post(ctx, journals.PostingInput{
		FirmID:     evt.FirmID,
		Date:       evt.SentAt,
		SourceType: SourceInvoiceSent,
		SourceID:   sourceID(SourceInvoiceSent, evt.ID),
		Memo:       fmt.Sprintf("Invoice %s sent", evt.Number),
		PostedBy:   evt.ActorID,
		Lines: []journals.PostingLineInput{
			{AccountID: ar, Debit: evt.Total},
			{AccountID: revenue, Credit: evt.Total},
		},
	})
}

// HandlePaymentReceived debits operating cash and credits accounts
// receivable. The payment reference keys the posting, so recapturing the
// same reference cannot double-count cash.
func (h *Hooks) HandlePaymentReceived(ctx context.Context, evt billing.PaymentReceivedEvent) error {
	cash, err := h.resolve(ctx, evt.FirmID, mappings.KeyOperatingCash)
	if err != nil {
		return err
	}
	ar, err := h.resolve(ctx, evt.FirmID, mappings.KeyAccountsReceivable)
	if err != nil {
		return err
	}
	return h.post(ctx, journals.PostingInput{
		FirmID:     evt.FirmID,
		Date:       evt.ReceivedAt,
		SourceType: SourcePaymentReceived,
		SourceID:   sourceID(SourcePaymentReceived, evt.FirmID, evt.Reference),
		Memo:       fmt.Sprintf("Payment %s received", evt.Reference),
		PostedBy:   evt.ActorID,
		Lines: []journals.PostingLineInput{
			{AccountID: cash, Debit: evt.Amount},
			{AccountID: ar, Credit: evt.Amount},
		},
	})
}

// HandleExpenseApproved debits the category expense account and credits cash
// when the expense was already paid out, accounts payable otherwise.
func (h *Hooks) HandleExpenseApproved(ctx context.Context, evt billing.ExpenseApprovedEvent) error {
	expense, err := h.resolve(ctx, evt.FirmID, mappings.ExpenseCategoryKey(evt.Category))
	if err != nil {
		return err
	}
	creditKey := mappings.KeyAccountsPayable
	if evt.Paid {
		creditKey = mappings.KeyOperatingCash
	}
	credit, err := h.resolve(ctx, evt.FirmID, creditKey)
	if err != nil {
		return err
	}
	return h.post(ctx, journals.PostingInput{
		FirmID:     evt.FirmID,
		Date:       evt.ApprovedAt,
		SourceType: SourceExpenseApproved,
		SourceID:   sourceID(SourceExpenseApproved, evt.ID),
		Memo:       fmt.Sprintf("Expense approved (%s)", evt.Category),
		PostedBy:   evt.ActorID,
		Lines: []journals.PostingLineInput{
			{AccountID: expense, Debit: evt.Amount},
			{AccountID: credit, Credit: evt.Amount},
		},
	})
}

// HandleBillApproved accrues the vendor bill: debit the category expense,
// credit accounts payable.
func (h *Hooks) HandleBillApproved(ctx context.Context, evt billing.BillApprovedEvent) error {
	expense, err := h.resolve(ctx, evt.FirmID, mappings.ExpenseCategoryKey(evt.Category))
	if err != nil {
		return err
	}
	ap, err := h.resolve(ctx, evt.FirmID, mappings.KeyAccountsPayable)
	if err != nil {
		return err
	}
	return h.post(ctx, journals.PostingInput{
		FirmID:     evt.FirmID,
		Date:       evt.ApprovedAt,
		SourceType: SourceBillApproved,
		SourceID:   sourceID(SourceBillApproved, evt.ID),
		Memo:       fmt.Sprintf("Bill %s approved", evt.Number),
		PostedBy:   evt.ActorID,
		Lines: []journals.PostingLineInput{
			{AccountID: expense, Debit: evt.Total},
			{AccountID: ap, Credit: evt.Total},
		},
	})
}

// HandleBillPaid settles the payable: debit accounts payable, credit cash.
func (h *Hooks) HandleBillPaid(ctx context.Context, evt billing.BillPaidEvent) error {
	ap, err := h.resolve(ctx, evt.FirmID, mappings.KeyAccountsPayable)
	if err != nil {
		return err
	}
	cash, err := h.resolve(ctx, evt.FirmID, mappings.KeyOperatingCash)
	if err != nil {
		return err
	}
	return h.post(ctx, journals.PostingInput{
		FirmID:     evt.FirmID,
		Date:       evt.PaidAt,
		SourceType: SourceBillPaid,
		SourceID:   sourceID(SourceBillPaid, evt.FirmID, evt.BillID),
		Memo:       fmt.Sprintf("Bill %d paid", evt.BillID),
		PostedBy:   evt.ActorID,
		Lines: []journals.PostingLineInput{
			{AccountID: ap, Debit: evt.Amount},
			{AccountID: cash, Credit: evt.Amount},
		},
	})
}
