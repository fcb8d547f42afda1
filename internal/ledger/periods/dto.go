package periods

import (
	"errors"
	"time"
)

// CreateFiscalYearInput describes a new twelve-period fiscal year.
type CreateFiscalYearInput struct {
	FirmID     int64
	Year       int
	StartMonth time.Month
	ActorID    int64
}

// Validate ensures fiscal year input is coherent.
func (in CreateFiscalYearInput) Validate() error {
	if in.FirmID == 0 {
		return errors.New("ledger: firm required")
	}
	if in.Year < 1900 || in.Year > 9999 {
		return errors.New("ledger: implausible fiscal year")
	}
	if in.StartMonth < time.January || in.StartMonth > time.December {
		return errors.New("ledger: start month out of range")
	}
	return nil
}

// BuildPeriods generates the twelve contiguous monthly windows for the year.
func (in CreateFiscalYearInput) BuildPeriods() []Period {
	out := make([]Period, 0, 12)
	start := time.Date(in.Year, in.StartMonth, 1, 0, 0, 0, 0, time.UTC)
	for seq := 1; seq <= 12; seq++ {
		end := start.AddDate(0, 1, 0).AddDate(0, 0, -1)
		out = append(out, Period{
			FirmID:     in.FirmID,
			FiscalYear: in.Year,
			Sequence:   seq,
			StartDate:  start,
			EndDate:    end,
			Status:     PeriodStatusOpen,
		})
		start = start.AddDate(0, 1, 0)
	}
	return out
}
