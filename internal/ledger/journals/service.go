package journals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gavelworks/gavelworks/internal/ledger/periods"
	"github.com/gavelworks/gavelworks/internal/ledger/shared"
	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// MetricsPort counts posting outcomes.
type MetricsPort interface {
	RecordPosting(sourceType string)
	RecordPostingRejected(reason string)
}

// Service coordinates posting and voiding of journal entries. It is the only
// writer of account balances.
type Service struct {
	repo    Repository
	audit   AuditPort
	metrics MetricsPort
	now     func() time.Time
}

// NewService constructs the journal engine.
func NewService(repo Repository, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// List returns one page of entries matching the filter, with pagination
// metadata computed from the unpaged match count.
func (s *Service) List(ctx context.Context, firmID int64, filter ListFilter, page, perPage int) ([]JournalEntry, internalShared.Pagination, error) {
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	if page <= 0 {
		page = 1
	}
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage
	total, err := s.repo.Count(ctx, firmID, filter)
	if err != nil {
		return nil, internalShared.Pagination{}, err
	}
	entries, err := s.repo.List(ctx, firmID, filter)
	if err != nil {
		return nil, internalShared.Pagination{}, err
	}
	return entries, internalShared.NewPagination(page, perPage, total), nil
}

// Get returns one entry with its lines.
func (s *Service) Get(ctx context.Context, firmID, entryID int64) (JournalEntry, error) {
	entry, lines, err := s.repo.GetWithLines(ctx, firmID, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

// Post validates and persists a new journal entry in a single transaction.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var e error
		entry, e = PostInTx(ctx, tx, input)
		return e
	})
	if err != nil {
		s.reject(err)
		return JournalEntry{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordPosting(input.SourceType)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			FirmID:   input.FirmID,
			ActorID:  input.PostedBy,
			Action:   "journal.post",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta: map[string]any{
				"number":      entry.Number,
				"source_type": input.SourceType,
				"source_id":   input.SourceID.String(),
			},
			At: s.now(),
		})
	}
	return entry, nil
}

// PostInTx runs the posting algorithm against an already-open transaction.
// The period check happens here, at commit scope: a period closing between an
// earlier CanPost read and this call makes the posting fail, never silently
// succeed. Callers embedding a posting in a wider atomic unit (retainer
// consumption) use this directly.
func PostInTx(ctx context.Context, tx TxRepository, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}

	period, err := tx.FindCoveringPeriodForUpdate(ctx, input.FirmID, input.Date)
	if err != nil {
		return JournalEntry{}, err
	}
	switch period.Status {
	case periods.PeriodStatusOpen:
	case periods.PeriodStatusLocked:
		return JournalEntry{}, shared.ErrPeriodLocked
	default:
		return JournalEntry{}, shared.ErrPeriodClosed
	}

	// Accounts lock in ascending id order so concurrent postings touching
	// overlapping account sets cannot deadlock.
	ids := make([]int64, 0, len(input.Lines))
	seen := make(map[int64]bool, len(input.Lines))
	for _, line := range input.Lines {
		if !seen[line.AccountID] {
			seen[line.AccountID] = true
			ids = append(ids, line.AccountID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	balances := make(map[int64]int64, len(ids))
	types := make(map[int64]func(debit, credit int64) int64, len(ids))
	for _, id := range ids {
		account, err := tx.GetAccountForUpdate(ctx, input.FirmID, id)
		if err != nil {
			return JournalEntry{}, err
		}
		if !account.IsActive {
			return JournalEntry{}, shared.ErrAccountInactive
		}
		balances[id] = account.CurrentBalance
		types[id] = account.SignedDelta
	}

	entry, err := tx.InsertJournalEntry(ctx, input, period.ID)
	if err != nil {
		if errors.Is(err, shared.ErrSourceConflict) {
			return JournalEntry{}, shared.ErrAlreadyPosted
		}
		return JournalEntry{}, err
	}
	if err := tx.InsertJournalLines(ctx, entry.ID, input.Lines); err != nil {
		return JournalEntry{}, err
	}

	for _, line := range input.Lines {
		balances[line.AccountID] += types[line.AccountID](line.Debit, line.Credit)
	}
	for _, id := range ids {
		if err := tx.UpdateAccountBalance(ctx, id, balances[id]); err != nil {
			return JournalEntry{}, err
		}
	}

	entry.Lines = toJournalLines(entry.ID, input.Lines, entry.PostedAt)
	return entry, nil
}

// Void reverses a posted entry and marks it VOID, in one transaction. The
// original's covering period must still be open; a locked period is final and
// voiding inside it is refused.
func (s *Service) Void(ctx context.Context, input VoidInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var voided, reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, lines, err := tx.GetJournalWithLines(ctx, input.FirmID, input.EntryID)
		if err != nil {
			return err
		}
		if current.Status != JournalStatusPosted {
			return shared.ErrInvalidStatus
		}
		period, err := tx.FindCoveringPeriodForUpdate(ctx, current.FirmID, current.Date)
		if err != nil {
			return err
		}
		switch period.Status {
		case periods.PeriodStatusOpen:
		case periods.PeriodStatusLocked:
			return shared.ErrPeriodLocked
		default:
			return shared.ErrPeriodClosed
		}

		reversing := PostingInput{
			FirmID:     current.FirmID,
			Date:       current.Date,
			SourceType: current.SourceType + ":REVERSAL",
			SourceID:   uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("VOID:%d", current.ID))),
			Memo:       voidMemo(input.Reason, current.Number),
			PostedBy:   input.ActorID,
			Lines:      reverseLines(lines),
		}
		reversal, err = PostInTx(ctx, tx, reversing)
		if err != nil {
			return err
		}
		if err := tx.UpdateJournalStatus(ctx, current.ID, JournalStatusVoid); err != nil {
			return err
		}
		voided = current
		voided.Status = JournalStatusVoid
		voided.Lines = lines
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			FirmID:   voided.FirmID,
			ActorID:  input.ActorID,
			Action:   "journal.void",
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", voided.ID),
			Meta: map[string]any{
				"reason":      input.Reason,
				"reversal_id": reversal.ID,
			},
			At: s.now(),
		})
	}
	return voided, nil
}

func (s *Service) reject(err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, shared.ErrUnbalanced):
		s.metrics.RecordPostingRejected("unbalanced")
	case errors.Is(err, shared.ErrPeriodClosed), errors.Is(err, shared.ErrPeriodNotFound):
		s.metrics.RecordPostingRejected("period_closed")
	case errors.Is(err, shared.ErrPeriodLocked):
		s.metrics.RecordPostingRejected("period_locked")
	case errors.Is(err, shared.ErrAlreadyPosted):
		s.metrics.RecordPostingRejected("already_posted")
	default:
		s.metrics.RecordPostingRejected("other")
	}
}

func reverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return out
}

func toJournalLines(entryID int64, lines []PostingLineInput, ts time.Time) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			JournalID: entryID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
			CreatedAt: ts,
		})
	}
	return out
}

func voidMemo(reason string, number int64) string {
	if reason != "" {
		return fmt.Sprintf("Void JE %d: %s", number, reason)
	}
	return fmt.Sprintf("Void JE %d", number)
}
