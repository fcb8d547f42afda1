// Package recurring schedules source documents that repeat on a fixed
// cadence: monthly retainers billed as invoices, recurring vendor bills for
// rent or subscriptions. Each template owns a next-run date; a background job
// builds the due document, drives it through the billing lifecycle so the
// ledger posting happens exactly as for a hand-entered document, then
// advances the date.
package recurring

import (
	"errors"
	"time"
)

// TransactionType selects which source document a template generates.
type TransactionType string

const (
	TypeInvoice TransactionType = "INVOICE"
	TypeBill    TransactionType = "BILL"
)

func (t TransactionType) Valid() bool {
	return t == TypeInvoice || t == TypeBill
}

// Frequency enumerates supported cadences.
type Frequency string

const (
	FrequencyDaily      Frequency = "DAILY"
	FrequencyWeekly     Frequency = "WEEKLY"
	FrequencyBiweekly   Frequency = "BIWEEKLY"
	FrequencyMonthly    Frequency = "MONTHLY"
	FrequencyQuarterly  Frequency = "QUARTERLY"
	FrequencySemiannual Frequency = "SEMIANNUAL"
	FrequencyAnnual     Frequency = "ANNUAL"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly,
		FrequencyQuarterly, FrequencySemiannual, FrequencyAnnual:
		return true
	}
	return false
}

// NextAfter returns the occurrence following from. anchorDay is the
// day-of-month of the template's start date; month-based cadences clamp to
// the shorter month and snap back when the month allows it, so a template
// anchored on the 31st runs Jan 31, Feb 29, Mar 31.
func (f Frequency) NextAfter(from time.Time, anchorDay int) time.Time {
	switch f {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return from.AddDate(0, 0, 14)
	case FrequencyMonthly:
		return addMonthsAnchored(from, 1, anchorDay)
	case FrequencyQuarterly:
		return addMonthsAnchored(from, 3, anchorDay)
	case FrequencySemiannual:
		return addMonthsAnchored(from, 6, anchorDay)
	case FrequencyAnnual:
		return addMonthsAnchored(from, 12, anchorDay)
	}
	return from
}

func addMonthsAnchored(from time.Time, months, anchorDay int) time.Time {
	if anchorDay < 1 {
		anchorDay = from.Day()
	}
	year, month, _ := from.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, from.Location())
	day := anchorDay
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day,
		from.Hour(), from.Minute(), from.Second(), from.Nanosecond(), from.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Status enumerates template lifecycle values. CANCELLED is terminal.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCancelled Status = "CANCELLED"
)

// statusTransitions is the single transition table; every status change goes
// through Status.CanTransition.
var statusTransitions = map[Status][]Status{
	StatusActive:    {StatusPaused, StatusCancelled},
	StatusPaused:    {StatusActive, StatusCancelled},
	StatusCancelled: {},
}

func (s Status) CanTransition(to Status) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Error kinds recorded when generation fails. A conflict is operational (the
// covering period is closed) and the row stays due; a defect means the
// template itself builds an invalid document and the row is skipped until
// someone repairs it.
const (
	ErrorKindConflict = "conflict"
	ErrorKindDefect   = "defect"
)

// Template is the document payload a run instantiates. ClientID applies to
// invoice templates, VendorID and Category to bill templates. Total is minor
// currency units. NumberPrefix plus the occurrence date yields the generated
// document's firm-unique number, so a crashed run can find the document it
// already created.
type Template struct {
	ClientID     int64  `json:"client_id,omitempty"`
	VendorID     int64  `json:"vendor_id,omitempty"`
	Category     string `json:"category,omitempty"`
	NumberPrefix string `json:"number_prefix"`
	Total        int64  `json:"total"`
	Memo         string `json:"memo,omitempty"`
}

// Transaction is a recurring document template.
type Transaction struct {
	ID              int64           `json:"id"`
	FirmID          int64           `json:"firm_id"`
	Name            string          `json:"name"`
	Type            TransactionType `json:"transaction_type"`
	Frequency       Frequency       `json:"frequency"`
	AnchorDay       int             `json:"anchor_day"`
	NextRun         time.Time       `json:"next_run"`
	Status          Status          `json:"status"`
	Template        Template        `json:"template"`
	LastGeneratedAt *time.Time      `json:"last_generated_at,omitempty"`
	LastError       string          `json:"last_error,omitempty"`
	LastErrorKind   string          `json:"last_error_kind,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

var (
	// ErrNotFound indicates a missing template.
	ErrNotFound = errors.New("recurring: template not found")
	// ErrNotActive indicates generation was requested for a paused or cancelled template.
	ErrNotActive = errors.New("recurring: template not active")
	// ErrInvalidTransition indicates a disallowed status change, such as
	// resuming a cancelled template.
	ErrInvalidTransition = errors.New("recurring: invalid status transition")
)
