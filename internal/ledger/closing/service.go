// Package closing performs the fiscal year-end close. Closing entries are
// ordinary journal postings, so the reset of income and expense balances
// stays on the append-only audit trail.
package closing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/gavelworks/gavelworks/internal/ledger/accounts"
	"github.com/gavelworks/gavelworks/internal/ledger/journals"
	"github.com/gavelworks/gavelworks/internal/ledger/mappings"
	"github.com/gavelworks/gavelworks/internal/ledger/periods"
	"github.com/gavelworks/gavelworks/internal/ledger/shared"
)

// Ledger posts the closing entry.
type Ledger interface {
	Post(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error)
}

// Calendar supplies and closes the year's periods.
type Calendar interface {
	ListYear(ctx context.Context, firmID int64, year int) ([]periods.Period, error)
	Close(ctx context.Context, firmID, periodID, actorID int64) (periods.Period, error)
}

// AccountSource lists income and expense accounts with cached balances.
type AccountSource interface {
	ListByTypes(ctx context.Context, firmID int64, types ...accounts.AccountType) ([]accounts.Account, error)
}

// MappingSource resolves the retained earnings account.
type MappingSource interface {
	Get(ctx context.Context, firmID int64, key string) (mappings.AccountMapping, error)
}

// Service orchestrates the year-end close.
type Service struct {
	ledger   Ledger
	calendar Calendar
	accounts AccountSource
	mappings MappingSource
}

// NewService constructs the year-end close service.
func NewService(ledger Ledger, calendar Calendar, accounts AccountSource, mappings MappingSource) *Service {
	return &Service{ledger: ledger, calendar: calendar, accounts: accounts, mappings: mappings}
}

// Result summarizes a year-end close run.
type Result struct {
	ClosingEntry  journals.JournalEntry
	EntryPosted   bool
	PeriodsClosed int64
	NetIncome     int64
}

// YearEndClose zeroes every income and expense balance into retained
// earnings with a single closing entry dated on the year's last day, then
// closes the final period. Re-running after a partial failure is safe: the
// closing entry carries a deterministic idempotence key.
func (s *Service) YearEndClose(ctx context.Context, firmID int64, year int, actorID int64) (Result, error) {
	yearPeriods, err := s.calendar.ListYear(ctx, firmID, year)
	if err != nil {
		return Result{}, err
	}
	if len(yearPeriods) == 0 {
		return Result{}, shared.ErrPeriodNotFound
	}
	final := yearPeriods[len(yearPeriods)-1]

	list, err := s.accounts.ListByTypes(ctx, firmID, accounts.AccountTypeIncome, accounts.AccountTypeExpense)
	if err != nil {
		return Result{}, err
	}

	var lines []journals.PostingLineInput
	var netIncome int64
	for _, account := range list {
		if account.CurrentBalance == 0 {
			continue
		}
		lines = append(lines, zeroingLine(account))
		if account.Type == accounts.AccountTypeIncome {
			netIncome += account.CurrentBalance
		} else {
			netIncome -= account.CurrentBalance
		}
	}

	var result Result
	if len(lines) > 0 {
		retained, err := s.mappings.Get(ctx, firmID, mappings.KeyRetainedEarnings)
		if err != nil {
			return Result{}, err
		}
		if netIncome != 0 {
			lines = append(lines, retainedLine(retained.AccountID, netIncome))
		}
		entry, err := s.ledger.Post(ctx, journals.PostingInput{
			FirmID:     firmID,
			Date:       final.EndDate,
			SourceType: "year_end_close",
			SourceID:   uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("YEC:%d:%d", firmID, year))),
			Memo:       fmt.Sprintf("Year-end close FY%d", year),
			PostedBy:   actorID,
			Lines:      lines,
		})
		switch {
		case err == nil:
			result.ClosingEntry = entry
			result.EntryPosted = true
			result.NetIncome = netIncome
		case errors.Is(err, shared.ErrAlreadyPosted):
			// A previous run posted the entry but failed before closing
			// the period; fall through and finish the close.
		default:
			return Result{}, err
		}
	}

	if final.Status == periods.PeriodStatusOpen {
		if _, err := s.calendar.Close(ctx, firmID, final.ID, actorID); err != nil {
			return Result{}, err
		}
		result.PeriodsClosed++
	}
	return result, nil
}

// zeroingLine moves the account's full balance to the opposite side of its
// normal balance.
func zeroingLine(account accounts.Account) journals.PostingLineInput {
	line := journals.PostingLineInput{AccountID: account.ID}
	balance := account.CurrentBalance
	if account.Type.DebitNormal() {
		// Debit-normal: a positive balance zeroes with a credit.
		if balance > 0 {
			line.Credit = balance
		} else {
			line.Debit = -balance
		}
		return line
	}
	if balance > 0 {
		line.Debit = balance
	} else {
		line.Credit = -balance
	}
	return line
}

func retainedLine(accountID, netIncome int64) journals.PostingLineInput {
	line := journals.PostingLineInput{AccountID: accountID}
	if netIncome >= 0 {
		line.Credit = netIncome
	} else {
		line.Debit = -netIncome
	}
	return line
}
