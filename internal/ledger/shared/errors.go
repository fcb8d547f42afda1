package shared

import "errors"

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrPeriodNotFound indicates no fiscal period covers the posting date.
	ErrPeriodNotFound = errors.New("ledger: no fiscal period covers date")
	// ErrPeriodClosed indicates the covering period is closed.
	ErrPeriodClosed = errors.New("ledger: period closed")
	// ErrPeriodLocked indicates the covering period is locked.
	ErrPeriodLocked = errors.New("ledger: period locked")
	// ErrAlreadyPosted indicates the idempotence key is already linked to a
	// non-void entry. Adapters treat this as success, not failure.
	ErrAlreadyPosted = errors.New("ledger: source already posted")
	// ErrSourceConflict indicates the source link unique constraint fired.
	ErrSourceConflict = errors.New("ledger: source link conflict")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = errors.New("ledger: journal entry not found")
	// ErrInvalidStatus indicates action can't proceed.
	ErrInvalidStatus = errors.New("ledger: invalid status transition")
	// ErrAccountNotFound indicates a referenced account does not exist for the firm.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrAccountInactive indicates posting against a deactivated account.
	ErrAccountInactive = errors.New("ledger: account inactive")
	// ErrDuplicateCode indicates the account code exists for the firm.
	ErrDuplicateCode = errors.New("ledger: account code already exists")
	// ErrAccountInUse indicates the account has postings in an open period.
	ErrAccountInUse = errors.New("ledger: account has postings in an open period")
	// ErrYearExists indicates fiscal periods already cover part of the year.
	ErrYearExists = errors.New("ledger: fiscal year overlaps existing periods")
	// ErrOutOfOrderClose indicates an earlier period is still open.
	ErrOutOfOrderClose = errors.New("ledger: earlier periods must close first")
	// ErrInvalidTransition indicates a disallowed period state change.
	ErrInvalidTransition = errors.New("ledger: invalid period transition")
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = errors.New("ledger: account mapping not found")
)
