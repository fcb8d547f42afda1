package periods

import (
	"context"
	"fmt"
	"time"

	"github.com/gavelworks/gavelworks/internal/ledger/shared"
	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

// AuditPort records calendar changes for compliance.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service owns the fiscal calendar lifecycle. Open/close/lock are rare
// administrative actions; each runs in its own transaction with the period
// row locked.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the calendar service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateFiscalYear generates twelve contiguous periods starting at the given
// month. Fails when any existing period overlaps the requested range.
func (s *Service) CreateFiscalYear(ctx context.Context, in CreateFiscalYearInput) ([]Period, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	generated := in.BuildPeriods()
	first, last := generated[0], generated[len(generated)-1]
	// The overlap check shares the insert's transaction.
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		conflict, err := tx.RangeConflict(ctx, in.FirmID, first.StartDate, last.EndDate)
		if err != nil {
			return err
		}
		if conflict {
			return shared.ErrYearExists
		}
		return tx.InsertPeriods(ctx, generated)
	})
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			FirmID:   in.FirmID,
			ActorID:  in.ActorID,
			Action:   "period.create_year",
			Entity:   "fiscal_year",
			EntityID: fmt.Sprintf("%d", in.Year),
			Meta:     map[string]any{"start_month": int(in.StartMonth)},
			At:       s.now(),
		})
	}
	return s.repo.ListYear(ctx, in.FirmID, in.Year)
}

// CanPost reports whether a posting dated `date` is acceptable right now.
// Only an OPEN covering period admits postings. The journal engine re-checks
// inside its own transaction; this read is for callers that want to fail fast.
func (s *Service) CanPost(ctx context.Context, firmID int64, date time.Time) (bool, Period, error) {
	period, err := s.repo.FindCoveringPeriod(ctx, firmID, date)
	if err != nil {
		return false, Period{}, err
	}
	return period.Status == PeriodStatusOpen, period, nil
}

// ListYear returns the year's periods in sequence order.
func (s *Service) ListYear(ctx context.Context, firmID int64, year int) ([]Period, error) {
	return s.repo.ListYear(ctx, firmID, year)
}

// Close transitions an OPEN period to CLOSED. Periods close in chronological
// order: any earlier period still open blocks the close.
func (s *Service) Close(ctx context.Context, firmID, periodID, actorID int64) (Period, error) {
	return s.transition(ctx, firmID, periodID, actorID, PeriodStatusClosed, "period.close")
}

// Reopen transitions a CLOSED period back to OPEN. Locked periods stay locked.
func (s *Service) Reopen(ctx context.Context, firmID, periodID, actorID int64) (Period, error) {
	return s.transition(ctx, firmID, periodID, actorID, PeriodStatusOpen, "period.reopen")
}

// Lock makes a CLOSED period permanently immutable. An open period must be
// closed first.
func (s *Service) Lock(ctx context.Context, firmID, periodID, actorID int64) (Period, error) {
	return s.transition(ctx, firmID, periodID, actorID, PeriodStatusLocked, "period.lock")
}

func (s *Service) transition(ctx context.Context, firmID, periodID, actorID int64, target PeriodStatus, action string) (Period, error) {
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetPeriodForUpdate(ctx, firmID, periodID)
		if err != nil {
			return err
		}
		if current.Status == PeriodStatusLocked {
			return shared.ErrPeriodLocked
		}
		if !CanTransition(current.Status, target) {
			return shared.ErrInvalidTransition
		}
		if target == PeriodStatusClosed {
			earlier, err := tx.HasOpenPeriodBefore(ctx, firmID, current.StartDate)
			if err != nil {
				return err
			}
			if earlier {
				return shared.ErrOutOfOrderClose
			}
		}
		var lockedBy *int64
		if target == PeriodStatusLocked {
			lockedBy = &actorID
		}
		if err := tx.UpdateStatus(ctx, current.ID, target, lockedBy); err != nil {
			return err
		}
		period = current
		period.Status = target
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			FirmID:   firmID,
			ActorID:  actorID,
			Action:   action,
			Entity:   "period",
			EntityID: fmt.Sprintf("%d", periodID),
			At:       s.now(),
		})
	}
	return period, nil
}
