package periods

import "time"

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
	PeriodStatusLocked PeriodStatus = "LOCKED"
)

// transitions is the single source of truth for period lifecycle changes.
// LOCKED is terminal.
var transitions = map[PeriodStatus][]PeriodStatus{
	PeriodStatusOpen:   {PeriodStatusClosed},
	PeriodStatusClosed: {PeriodStatusOpen, PeriodStatusLocked},
	PeriodStatusLocked: {},
}

// CanTransition reports whether the status change is allowed.
func CanTransition(from, to PeriodStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Period represents one fiscal period window. Periods of a fiscal year
// partition the year with no gaps or overlaps.
type Period struct {
	ID         int64
	FirmID     int64
	FiscalYear int
	Sequence   int
	StartDate  time.Time
	EndDate    time.Time
	Status     PeriodStatus
	ClosedAt   *time.Time
	LockedBy   *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Covers reports whether the date falls inside the period window.
func (p Period) Covers(date time.Time) bool {
	return !date.Before(p.StartDate) && !date.After(p.EndDate)
}
