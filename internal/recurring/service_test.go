package recurring

import (
	"context"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavelworks/gavelworks/internal/billing"
	"github.com/gavelworks/gavelworks/internal/ledger/shared"
	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

type stubRepo struct {
	templates map[int64]*Transaction
	nextID    int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{templates: map[int64]*Transaction{}, nextID: 1}
}

func (s *stubRepo) Create(_ context.Context, t Transaction) (Transaction, error) {
	t.ID = s.nextID
	t.Status = StatusActive
	s.nextID++
	s.templates[t.ID] = &t
	return t, nil
}

func (s *stubRepo) Update(_ context.Context, t Transaction) (Transaction, error) {
	cur, ok := s.templates[t.ID]
	if !ok || cur.FirmID != t.FirmID {
		return Transaction{}, ErrNotFound
	}
	cur.Name = t.Name
	cur.Frequency = t.Frequency
	cur.AnchorDay = t.AnchorDay
	cur.NextRun = t.NextRun
	cur.Template = t.Template
	cur.LastError = ""
	cur.LastErrorKind = ""
	return *cur, nil
}

func (s *stubRepo) Get(_ context.Context, firmID, id int64) (Transaction, error) {
	t, ok := s.templates[id]
	if !ok || t.FirmID != firmID {
		return Transaction{}, ErrNotFound
	}
	return *t, nil
}

func (s *stubRepo) List(_ context.Context, firmID int64) ([]Transaction, error) {
	var out []Transaction
	for _, t := range s.templates {
		if t.FirmID == firmID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRepo) ListDue(_ context.Context, now time.Time, _ int) ([]Transaction, error) {
	var out []Transaction
	for _, t := range s.templates {
		if t.Status == StatusActive && !t.NextRun.After(now) && t.LastErrorKind != ErrorKindDefect {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRun.Before(out[j].NextRun) })
	return out, nil
}

func (s *stubRepo) SetStatus(_ context.Context, firmID, id int64, status Status) error {
	t, ok := s.templates[id]
	if !ok || t.FirmID != firmID {
		return ErrNotFound
	}
	t.Status = status
	return nil
}

func (s *stubRepo) Advance(_ context.Context, id int64, nextRun, generatedAt time.Time) error {
	t := s.templates[id]
	t.NextRun = nextRun
	t.LastGeneratedAt = &generatedAt
	t.LastError = ""
	t.LastErrorKind = ""
	return nil
}

func (s *stubRepo) RecordError(_ context.Context, id int64, kind, message string) error {
	t := s.templates[id]
	t.LastError = message
	t.LastErrorKind = kind
	return nil
}

func (s *stubRepo) UpdateTemplate(_ context.Context, firmID, id int64, tpl Template) error {
	t, ok := s.templates[id]
	if !ok || t.FirmID != firmID {
		return ErrNotFound
	}
	t.Template = tpl
	t.LastError = ""
	t.LastErrorKind = ""
	return nil
}

// stubDocs fakes the billing lifecycle. Documents are keyed by their
// firm-unique number; sendErr and approveErr inject posting failures.
type stubDocs struct {
	invoices   map[int64]billing.Invoice
	bills      map[int64]billing.Bill
	nextID     int64
	sendErr    error
	approveErr error
	creates    int
	sends      int
	approves   int
}

func newStubDocs() *stubDocs {
	return &stubDocs{invoices: map[int64]billing.Invoice{}, bills: map[int64]billing.Bill{}, nextID: 1}
}

func (s *stubDocs) CreateInvoice(_ context.Context, actor internalShared.Actor, in billing.CreateInvoiceInput) (billing.Invoice, error) {
	s.creates++
	inv := billing.Invoice{
		ID: s.nextID, FirmID: actor.FirmID, ClientID: in.ClientID,
		Number: in.Number, Total: in.Total, Status: billing.InvoiceStatusDraft, IssuedAt: in.IssuedAt,
	}
	s.nextID++
	s.invoices[inv.ID] = inv
	return inv, nil
}

func (s *stubDocs) SendInvoice(_ context.Context, actor internalShared.Actor, id int64) (billing.Invoice, error) {
	s.sends++
	if s.sendErr != nil {
		return billing.Invoice{}, s.sendErr
	}
	inv := s.invoices[id]
	inv.Status = billing.InvoiceStatusSent
	s.invoices[id] = inv
	return inv, nil
}

func (s *stubDocs) FindInvoiceByNumber(_ context.Context, firmID int64, number string) (billing.Invoice, error) {
	for _, inv := range s.invoices {
		if inv.FirmID == firmID && inv.Number == number {
			return inv, nil
		}
	}
	return billing.Invoice{}, billing.ErrNotFound
}

func (s *stubDocs) CreateBill(_ context.Context, actor internalShared.Actor, in billing.CreateBillInput) (billing.Bill, error) {
	s.creates++
	b := billing.Bill{
		ID: s.nextID, FirmID: actor.FirmID, VendorID: in.VendorID,
		Number: in.Number, Category: in.Category, Total: in.Total,
		Status: billing.BillStatusDraft, ReceivedAt: in.ReceivedAt,
	}
	s.nextID++
	s.bills[b.ID] = b
	return b, nil
}

func (s *stubDocs) ApproveBill(_ context.Context, actor internalShared.Actor, id int64) (billing.Bill, error) {
	s.approves++
	if s.approveErr != nil {
		return billing.Bill{}, s.approveErr
	}
	b := s.bills[id]
	b.Status = billing.BillStatusApproved
	s.bills[id] = b
	return b, nil
}

func (s *stubDocs) FindBillByNumber(_ context.Context, firmID int64, number string) (billing.Bill, error) {
	for _, b := range s.bills {
		if b.FirmID == firmID && b.Number == number {
			return b, nil
		}
	}
	return billing.Bill{}, billing.ErrNotFound
}

type stubMetrics struct {
	generated int
	failed    map[string]int
}

func newStubMetrics() *stubMetrics {
	return &stubMetrics{failed: map[string]int{}}
}

func (m *stubMetrics) RecordRecurringGenerated()         { m.generated++ }
func (m *stubMetrics) RecordRecurringFailed(kind string) { m.failed[kind]++ }

type stubAudit struct{ logs []internalShared.AuditLog }

func (a *stubAudit) Record(_ context.Context, log internalShared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

const firmID = 7

var actor = internalShared.Actor{ID: 42, FirmID: firmID}

func date2(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(repo *stubRepo, docs *stubDocs, metrics *stubMetrics) *Service {
	svc := NewService(slog.Default(), repo, docs, metrics, &stubAudit{})
	return svc.WithNow(func() time.Time { return date2(2024, 2, 1) })
}

func invoiceTemplate() CreateInput {
	return CreateInput{
		Name:      "Monthly retainer billing",
		Type:      TypeInvoice,
		Frequency: FrequencyMonthly,
		StartDate: date2(2024, 2, 1),
		Template:  Template{ClientID: 12, NumberPrefix: "RET-12", Total: 250000},
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(newStubRepo(), newStubDocs(), newStubMetrics())
	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"unknown type", func(in *CreateInput) { in.Type = "PAYROLL" }},
		{"unknown frequency", func(in *CreateInput) { in.Frequency = "HOURLY" }},
		{"zero total", func(in *CreateInput) { in.Template.Total = 0 }},
		{"missing prefix", func(in *CreateInput) { in.Template.NumberPrefix = "" }},
		{"invoice without client", func(in *CreateInput) { in.Template.ClientID = 0 }},
		{"bill without vendor", func(in *CreateInput) {
			in.Type = TypeBill
			in.Template = Template{Category: "rent", NumberPrefix: "RENT", Total: 90000}
		}},
		{"bill without category", func(in *CreateInput) {
			in.Type = TypeBill
			in.Template = Template{VendorID: 3, NumberPrefix: "RENT", Total: 90000}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := invoiceTemplate()
			tc.mutate(&in)
			_, err := svc.Create(context.Background(), actor, in)
			assert.Error(t, err)
		})
	}
}

func TestUpdateReschedulesTemplate(t *testing.T) {
	repo := newStubRepo()
	docs := newStubDocs()
	svc := newTestService(repo, docs, newStubMetrics())

	created, err := svc.Create(context.Background(), actor, invoiceTemplate())
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), actor, created.ID, UpdateInput{
		Name:      "Quarterly retainer billing",
		Frequency: FrequencyQuarterly,
		StartDate: date2(2024, 3, 15),
		Template:  Template{ClientID: 12, NumberPrefix: "RET-12Q", Total: 750000},
	})
	require.NoError(t, err)
	assert.Equal(t, "Quarterly retainer billing", updated.Name)
	assert.Equal(t, FrequencyQuarterly, updated.Frequency)
	assert.Equal(t, 15, updated.AnchorDay)
	assert.Equal(t, date2(2024, 3, 15), updated.NextRun)
	assert.Equal(t, int64(750000), updated.Template.Total)

	// Generation follows the new schedule and payload.
	n, err := svc.ProcessDue(context.Background(), date2(2024, 3, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	inv, err := docs.FindInvoiceByNumber(context.Background(), firmID, "RET-12Q-2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, int64(750000), inv.Total)

	after, err := svc.Get(context.Background(), firmID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, date2(2024, 6, 15), after.NextRun)
}

func TestUpdateValidatesAgainstTemplateType(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, newStubDocs(), newStubMetrics())

	created, err := svc.Create(context.Background(), actor, invoiceTemplate())
	require.NoError(t, err)

	// An invoice template cannot lose its client or pick up an unknown
	// cadence.
	_, err = svc.Update(context.Background(), actor, created.ID, UpdateInput{
		Name: "Broken", Frequency: FrequencyMonthly, StartDate: date2(2024, 3, 1),
		Template: Template{NumberPrefix: "RET-12", Total: 250000},
	})
	assert.Error(t, err)
	_, err = svc.Update(context.Background(), actor, created.ID, UpdateInput{
		Name: "Broken", Frequency: "HOURLY", StartDate: date2(2024, 3, 1),
		Template: Template{ClientID: 12, NumberPrefix: "RET-12", Total: 250000},
	})
	assert.Error(t, err)

	after, err := svc.Get(context.Background(), firmID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Monthly retainer billing", after.Name)
}

func TestUpdateCancelledTemplateRefused(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, newStubDocs(), newStubMetrics())

	created, err := svc.Create(context.Background(), actor, invoiceTemplate())
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(context.Background(), actor, created.ID))

	_, err = svc.Update(context.Background(), actor, created.ID, UpdateInput{
		Name: "Back again", Frequency: FrequencyMonthly, StartDate: date2(2024, 3, 1),
		Template: Template{ClientID: 12, NumberPrefix: "RET-12", Total: 250000},
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestProcessDueGeneratesExactlyOnce(t *testing.T) {
	repo := newStubRepo()
	docs := newStubDocs()
	metrics := newStubMetrics()
	svc := newTestService(repo, docs, metrics)

	created, err := svc.Create(context.Background(), actor, invoiceTemplate())
	require.NoError(t, err)

	n, err := svc.ProcessDue(context.Background(), date2(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	inv, err := docs.FindInvoiceByNumber(context.Background(), firmID, "RET-12-2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusSent, inv.Status)
	assert.Equal(t, int64(250000), inv.Total)

	after, err := svc.Get(context.Background(), firmID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, date2(2024, 3, 1), after.NextRun)
	require.NotNil(t, after.LastGeneratedAt)
	assert.Equal(t, 1, metrics.generated)

	// The same tick run again generates nothing.
	n, err = svc.ProcessDue(context.Background(), date2(2024, 2, 1))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, docs.creates)
}

func TestProcessDueCatchesUpMissedOccurrences(t *testing.T) {
	repo := newStubRepo()
	docs := newStubDocs()
	svc := newTestService(repo, docs, newStubMetrics())

	in := invoiceTemplate()
	in.StartDate = date2(2024, 1, 1)
	_, err := svc.Create(context.Background(), actor, in)
	require.NoError(t, err)

	n, err := svc.ProcessDue(context.Background(), date2(2024, 3, 5))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, docs.creates)
	for _, number := range []string{"RET-12-2024-01-01", "RET-12-2024-02-01", "RET-12-2024-03-01"} {
		_, err := docs.FindInvoiceByNumber(context.Background(), firmID, number)
		assert.NoError(t, err, number)
	}
}

func TestProcessDuePeriodClosedStaysDue(t *testing.T) {
	repo := newStubRepo()
	docs := newStubDocs()
	metrics := newStubMetrics()
	svc := newTestService(repo, docs, metrics)

	created, err := svc.Create(context.Background(), actor, invoiceTemplate())
	require.NoError(t, err)

	docs.sendErr = shared.ErrPeriodClosed
	n, err := svc.ProcessDue(context.Background(), date2(2024, 2, 1))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, metrics.failed[ErrorKindConflict])

	after, err := svc.Get(context.Background(), firmID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, date2(2024, 2, 1), after.NextRun)
	assert.Equal(t, ErrorKindConflict, after.LastErrorKind)

	// Reopening the period unblocks the next tick. The document created by
	// the failed run is reused, not duplicated.
	docs.sendErr = nil
	n, err = svc.ProcessDue(context.Background(), date2(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, docs.creates)

	after, err = svc.Get(context.Background(), firmID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, date2(2024, 3, 1), after.NextRun)
	assert.Empty(t, after.LastErrorKind)
}

func TestProcessDueDefectTakesRowOffSchedule(t *testing.T) {
	repo := newStubRepo()
	docs := newStubDocs()
	metrics := newStubMetrics()
	svc := newTestService(repo, docs, metrics)

	created, err := svc.Create(context.Background(), actor, invoiceTemplate())
	require.NoError(t, err)

	docs.sendErr = shared.ErrUnbalanced
	_, err = svc.ProcessDue(context.Background(), date2(2024, 2, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.failed[ErrorKindDefect])

	after, err := svc.Get(context.Background(), firmID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, ErrorKindDefect, after.LastErrorKind)

	// Still broken, but defect rows are off the schedule: no retry.
	n, err := svc.ProcessDue(context.Background(), date2(2024, 2, 2))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, docs.sends)

	// Repair clears the flag and the row comes back.
	err = svc.RepairTemplate(context.Background(), actor, created.ID, Template{ClientID: 12, NumberPrefix: "RET-12", Total: 250000})
	require.NoError(t, err)
	docs.sendErr = nil
	n, err = svc.ProcessDue(context.Background(), date2(2024, 2, 2))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGenerateReusesDocumentFromCrashedRun(t *testing.T) {
	repo := newStubRepo()
	docs := newStubDocs()
	svc := newTestService(repo, docs, newStubMetrics())

	created, err := svc.Create(context.Background(), actor, invoiceTemplate())
	require.NoError(t, err)

	// A prior run created and sent the document but crashed before the
	// template advanced. The rerun treats it as done and advances.
	docs.invoices[99] = billing.Invoice{
		ID: 99, FirmID: firmID, ClientID: 12,
		Number: "RET-12-2024-02-01", Total: 250000, Status: billing.InvoiceStatusSent,
	}
	after, err := svc.Generate(context.Background(), firmID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, date2(2024, 3, 1), after.NextRun)
	assert.Zero(t, docs.creates)
	assert.Zero(t, docs.sends)
}

func TestGenerateBillApproves(t *testing.T) {
	repo := newStubRepo()
	docs := newStubDocs()
	svc := newTestService(repo, docs, newStubMetrics())

	created, err := svc.Create(context.Background(), actor, CreateInput{
		Name:      "Office rent",
		Type:      TypeBill,
		Frequency: FrequencyMonthly,
		StartDate: date2(2024, 2, 1),
		Template:  Template{VendorID: 3, Category: "rent", NumberPrefix: "RENT", Total: 90000},
	})
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), firmID, created.ID)
	require.NoError(t, err)

	b, err := docs.FindBillByNumber(context.Background(), firmID, "RENT-2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, billing.BillStatusApproved, b.Status)
	assert.Equal(t, 1, docs.approves)
}

func TestGenerateRequiresActiveTemplate(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, newStubDocs(), newStubMetrics())

	created, err := svc.Create(context.Background(), actor, invoiceTemplate())
	require.NoError(t, err)
	require.NoError(t, svc.Pause(context.Background(), actor, created.ID))

	_, err = svc.Generate(context.Background(), firmID, created.ID)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestCancelIsTerminal(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, newStubDocs(), newStubMetrics())

	created, err := svc.Create(context.Background(), actor, invoiceTemplate())
	require.NoError(t, err)

	require.NoError(t, svc.Pause(context.Background(), actor, created.ID))
	require.NoError(t, svc.Resume(context.Background(), actor, created.ID))
	require.NoError(t, svc.Cancel(context.Background(), actor, created.ID))

	assert.ErrorIs(t, svc.Resume(context.Background(), actor, created.ID), ErrInvalidTransition)
	assert.ErrorIs(t, svc.Pause(context.Background(), actor, created.ID), ErrInvalidTransition)

	// Cancelled templates never come due.
	n, err := svc.ProcessDue(context.Background(), date2(2024, 6, 1))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPausedTemplateSkipped(t *testing.T) {
	repo := newStubRepo()
	docs := newStubDocs()
	svc := newTestService(repo, docs, newStubMetrics())

	created, err := svc.Create(context.Background(), actor, invoiceTemplate())
	require.NoError(t, err)
	require.NoError(t, svc.Pause(context.Background(), actor, created.ID))

	n, err := svc.ProcessDue(context.Background(), date2(2024, 2, 1))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, docs.creates)
}
