package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gavelworks/gavelworks/internal/billing"
	"github.com/gavelworks/gavelworks/internal/ledger/shared"
	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

// DocumentPort is the billing surface the scheduler drives. Generated
// documents go through the same create/send/approve lifecycle as hand-entered
// ones, so the ledger posting happens through the usual adapter and carries
// the usual idempotence key.
type DocumentPort interface {
	CreateInvoice(ctx context.Context, actor internalShared.Actor, in billing.CreateInvoiceInput) (billing.Invoice, error)
	SendInvoice(ctx context.Context, actor internalShared.Actor, id int64) (billing.Invoice, error)
	FindInvoiceByNumber(ctx context.Context, firmID int64, number string) (billing.Invoice, error)
	CreateBill(ctx context.Context, actor internalShared.Actor, in billing.CreateBillInput) (billing.Bill, error)
	ApproveBill(ctx context.Context, actor internalShared.Actor, id int64) (billing.Bill, error)
	FindBillByNumber(ctx context.Context, firmID int64, number string) (billing.Bill, error)
}

// MetricsPort counts scheduler outcomes.
type MetricsPort interface {
	RecordRecurringGenerated()
	RecordRecurringFailed(kind string)
}

// AuditPort records template lifecycle actions.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service owns recurring templates and generates their occurrences. Document
// numbers derive from the template and the run date, so a tick that crashes
// mid-generation and reruns picks up the document it already created instead
// of minting a second one.
type Service struct {
	repo    Repository
	docs    DocumentPort
	logger  *slog.Logger
	metrics MetricsPort
	audit   AuditPort
	now     func() time.Time
}

func NewService(logger *slog.Logger, repo Repository, docs DocumentPort, metrics MetricsPort, audit AuditPort) *Service {
	return &Service{repo: repo, docs: docs, logger: logger, metrics: metrics, audit: audit, now: time.Now}
}

// WithNow overrides the clock for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateInput carries template creation fields. StartDate seeds the first run
// and fixes the anchor day for month-based cadences.
type CreateInput struct {
	Name      string          `json:"name" validate:"required"`
	Type      TransactionType `json:"transaction_type" validate:"required"`
	Frequency Frequency       `json:"frequency" validate:"required"`
	StartDate time.Time       `json:"start_date" validate:"required"`
	Template  Template        `json:"template" validate:"required"`
}

func (in CreateInput) validate() error {
	if !in.Type.Valid() {
		return fmt.Errorf("recurring: unknown transaction type %q", in.Type)
	}
	if !in.Frequency.Valid() {
		return fmt.Errorf("recurring: unknown frequency %q", in.Frequency)
	}
	return validateTemplate(in.Type, in.Template)
}

// validateTemplate enforces the per-type payload shape at creation time,
// keeping obvious defects out of the schedule.
func validateTemplate(typ TransactionType, tpl Template) error {
	if tpl.Total <= 0 {
		return errors.New("recurring: template total must be positive")
	}
	if tpl.NumberPrefix == "" {
		return errors.New("recurring: template number prefix required")
	}
	switch typ {
	case TypeInvoice:
		if tpl.ClientID == 0 {
			return errors.New("recurring: invoice template missing client")
		}
	case TypeBill:
		if tpl.VendorID == 0 {
			return errors.New("recurring: bill template missing vendor")
		}
		if tpl.Category == "" {
			return errors.New("recurring: bill template missing category")
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor internalShared.Actor, in CreateInput) (Transaction, error) {
	if err := in.validate(); err != nil {
		return Transaction{}, err
	}
	t, err := s.repo.Create(ctx, Transaction{
		FirmID:    actor.FirmID,
		Name:      in.Name,
		Type:      in.Type,
		Frequency: in.Frequency,
		AnchorDay: in.StartDate.Day(),
		NextRun:   in.StartDate,
		Template:  in.Template,
	})
	if err != nil {
		return Transaction{}, fmt.Errorf("create recurring template: %w", err)
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		FirmID: actor.FirmID, ActorID: actor.ID,
		Action: "recurring.create", Entity: "recurring_transaction",
		EntityID: strconv.FormatInt(t.ID, 10), At: s.now(),
	})
	return t, nil
}

// UpdateInput carries the fields an existing template can change. Type is
// fixed at creation; a different document kind means a new template.
// StartDate reseeds the schedule, fixing both the next run and the anchor day.
type UpdateInput struct {
	Name      string    `json:"name" validate:"required"`
	Frequency Frequency `json:"frequency" validate:"required"`
	StartDate time.Time `json:"start_date" validate:"required"`
	Template  Template  `json:"template" validate:"required"`
}

func (s *Service) Update(ctx context.Context, actor internalShared.Actor, id int64, in UpdateInput) (Transaction, error) {
	t, err := s.repo.Get(ctx, actor.FirmID, id)
	if err != nil {
		return Transaction{}, err
	}
	if t.Status == StatusCancelled {
		return Transaction{}, fmt.Errorf("%w: cancelled template cannot change", ErrInvalidTransition)
	}
	if !in.Frequency.Valid() {
		return Transaction{}, fmt.Errorf("recurring: unknown frequency %q", in.Frequency)
	}
	if err := validateTemplate(t.Type, in.Template); err != nil {
		return Transaction{}, err
	}
	t.Name = in.Name
	t.Frequency = in.Frequency
	t.AnchorDay = in.StartDate.Day()
	t.NextRun = in.StartDate
	t.Template = in.Template
	updated, err := s.repo.Update(ctx, t)
	if err != nil {
		return Transaction{}, fmt.Errorf("update recurring template: %w", err)
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		FirmID: actor.FirmID, ActorID: actor.ID,
		Action: "recurring.update", Entity: "recurring_transaction",
		EntityID: strconv.FormatInt(id, 10), At: s.now(),
	})
	return updated, nil
}

func (s *Service) Get(ctx context.Context, firmID, id int64) (Transaction, error) {
	return s.repo.Get(ctx, firmID, id)
}

func (s *Service) List(ctx context.Context, firmID int64) ([]Transaction, error) {
	return s.repo.List(ctx, firmID)
}

func (s *Service) Pause(ctx context.Context, actor internalShared.Actor, id int64) error {
	return s.transition(ctx, actor, id, StatusPaused, "recurring.pause")
}

func (s *Service) Resume(ctx context.Context, actor internalShared.Actor, id int64) error {
	return s.transition(ctx, actor, id, StatusActive, "recurring.resume")
}

// Cancel retires the template permanently. Cancelled templates cannot be
// resumed.
func (s *Service) Cancel(ctx context.Context, actor internalShared.Actor, id int64) error {
	return s.transition(ctx, actor, id, StatusCancelled, "recurring.cancel")
}

func (s *Service) transition(ctx context.Context, actor internalShared.Actor, id int64, to Status, action string) error {
	t, err := s.repo.Get(ctx, actor.FirmID, id)
	if err != nil {
		return err
	}
	if !t.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, t.Status, to)
	}
	if err := s.repo.SetStatus(ctx, actor.FirmID, id, to); err != nil {
		return err
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		FirmID: actor.FirmID, ActorID: actor.ID,
		Action: action, Entity: "recurring_transaction",
		EntityID: strconv.FormatInt(id, 10), At: s.now(),
	})
	return nil
}

// RepairTemplate replaces a defect-flagged template's payload and puts it
// back on the schedule.
func (s *Service) RepairTemplate(ctx context.Context, actor internalShared.Actor, id int64, tpl Template) error {
	t, err := s.repo.Get(ctx, actor.FirmID, id)
	if err != nil {
		return err
	}
	if err := validateTemplate(t.Type, tpl); err != nil {
		return err
	}
	return s.repo.UpdateTemplate(ctx, actor.FirmID, id, tpl)
}

// ProcessDue generates every occurrence due at now. It is driven by the
// scheduler tick and returns the number of documents generated.
func (s *Service) ProcessDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.repo.ListDue(ctx, now, 500)
	if err != nil {
		return 0, fmt.Errorf("list due templates: %w", err)
	}
	var generated int
	for _, t := range due {
		// A template behind schedule catches up one occurrence per
		// iteration until its next run passes now.
		for !t.NextRun.After(now) {
			if err := s.generateOne(ctx, &t); err != nil {
				break
			}
			generated++
		}
	}
	return generated, nil
}

// Generate builds the template's next occurrence on demand, regardless of
// tick timing. The template must be active.
func (s *Service) Generate(ctx context.Context, firmID, id int64) (Transaction, error) {
	t, err := s.repo.Get(ctx, firmID, id)
	if err != nil {
		return Transaction{}, err
	}
	if t.Status != StatusActive {
		return Transaction{}, ErrNotActive
	}
	if err := s.generateOne(ctx, &t); err != nil {
		return t, err
	}
	return s.repo.Get(ctx, firmID, id)
}

// generateOne builds and posts the occurrence at t.NextRun, then advances the
// template in memory and in store.
func (s *Service) generateOne(ctx context.Context, t *Transaction) error {
	runDate := t.NextRun
	// Generated documents belong to the firm but no human actor.
	actor := internalShared.Actor{FirmID: t.FirmID}

	var err error
	switch t.Type {
	case TypeInvoice:
		err = s.generateInvoice(ctx, actor, t, runDate)
	case TypeBill:
		err = s.generateBill(ctx, actor, t, runDate)
	default:
		err = fmt.Errorf("recurring: unknown transaction type %q", t.Type)
	}
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrPeriodClosed), errors.Is(err, shared.ErrPeriodLocked), errors.Is(err, shared.ErrPeriodNotFound):
		// Operational conflict. The row stays due and retries on the next
		// tick; an accountant reopening the period unblocks it.
		s.fail(ctx, t, ErrorKindConflict, err)
		return err
	default:
		// Anything else means the template builds a document the engine
		// rejects. Flag it off the schedule.
		s.fail(ctx, t, ErrorKindDefect, err)
		return err
	}

	next := t.Frequency.NextAfter(runDate, t.AnchorDay)
	generatedAt := s.now().UTC()
	if err := s.repo.Advance(ctx, t.ID, next, generatedAt); err != nil {
		return fmt.Errorf("advance template %d: %w", t.ID, err)
	}
	t.NextRun = next
	t.LastGeneratedAt = &generatedAt
	if s.metrics != nil {
		s.metrics.RecordRecurringGenerated()
	}
	return nil
}

// generateInvoice creates the occurrence's invoice if a prior run did not
// already, then sends it, which posts the receivable. An invoice found
// already past DRAFT was fully handled by a run that crashed before the
// template advanced; treat it as success.
func (s *Service) generateInvoice(ctx context.Context, actor internalShared.Actor, t *Transaction, runDate time.Time) error {
	number := occurrenceNumber(t, runDate)
	inv, err := s.docs.FindInvoiceByNumber(ctx, t.FirmID, number)
	if errors.Is(err, billing.ErrNotFound) {
		inv, err = s.docs.CreateInvoice(ctx, actor, billing.CreateInvoiceInput{
			ClientID: t.Template.ClientID,
			Number:   number,
			Total:    t.Template.Total,
			IssuedAt: runDate,
		})
	}
	if err != nil {
		return err
	}
	if inv.Status != billing.InvoiceStatusDraft {
		return nil
	}
	_, err = s.docs.SendInvoice(ctx, actor, inv.ID)
	return err
}

func (s *Service) generateBill(ctx context.Context, actor internalShared.Actor, t *Transaction, runDate time.Time) error {
	number := occurrenceNumber(t, runDate)
	b, err := s.docs.FindBillByNumber(ctx, t.FirmID, number)
	if errors.Is(err, billing.ErrNotFound) {
		b, err = s.docs.CreateBill(ctx, actor, billing.CreateBillInput{
			VendorID:   t.Template.VendorID,
			Number:     number,
			Category:   t.Template.Category,
			Total:      t.Template.Total,
			ReceivedAt: runDate,
		})
	}
	if err != nil {
		return err
	}
	if b.Status != billing.BillStatusDraft {
		return nil
	}
	_, err = s.docs.ApproveBill(ctx, actor, b.ID)
	return err
}

func (s *Service) fail(ctx context.Context, t *Transaction, kind string, cause error) {
	s.logger.Error("recurring generation failed",
		slog.Int64("template_id", t.ID),
		slog.String("kind", kind),
		slog.Any("error", cause))
	if s.metrics != nil {
		s.metrics.RecordRecurringFailed(kind)
	}
	if err := s.repo.RecordError(ctx, t.ID, kind, cause.Error()); err != nil {
		s.logger.Error("record template error", slog.Any("error", err))
	}
}

// occurrenceNumber is the firm-unique document number for one occurrence.
func occurrenceNumber(t *Transaction, runDate time.Time) string {
	return fmt.Sprintf("%s-%s", t.Template.NumberPrefix, runDate.UTC().Format("2006-01-02"))
}
