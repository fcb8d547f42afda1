package periods

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavelworks/gavelworks/internal/ledger/shared"
	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

const firmID = int64(3)

type stubRepo struct {
	periods map[int64]*Period
	nextID  int64

	inTx               bool
	overlapCheckedInTx bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{periods: map[int64]*Period{}, nextID: 1}
}

func (s *stubRepo) FindCoveringPeriod(_ context.Context, firmID int64, date time.Time) (Period, error) {
	for _, p := range s.periods {
		if p.FirmID == firmID && p.Covers(date) {
			return *p, nil
		}
	}
	return Period{}, shared.ErrPeriodNotFound
}

func (s *stubRepo) ListYear(_ context.Context, firmID int64, year int) ([]Period, error) {
	out := make([]Period, 0, 12)
	for seq := 1; seq <= 12; seq++ {
		for _, p := range s.periods {
			if p.FirmID == firmID && p.FiscalYear == year && p.Sequence == seq {
				out = append(out, *p)
			}
		}
	}
	return out, nil
}

func (s *stubRepo) RangeConflict(_ context.Context, firmID int64, start, end time.Time) (bool, error) {
	s.overlapCheckedInTx = s.inTx
	for _, p := range s.periods {
		if p.FirmID == firmID && !p.EndDate.Before(start) && !p.StartDate.After(end) {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	s.inTx = true
	defer func() { s.inTx = false }()
	return fn(ctx, s)
}

func (s *stubRepo) InsertPeriods(_ context.Context, periods []Period) error {
	for _, p := range periods {
		stored := p
		stored.ID = s.nextID
		s.nextID++
		s.periods[stored.ID] = &stored
	}
	return nil
}

func (s *stubRepo) GetPeriodForUpdate(_ context.Context, firmID, periodID int64) (Period, error) {
	p, ok := s.periods[periodID]
	if !ok || p.FirmID != firmID {
		return Period{}, shared.ErrPeriodNotFound
	}
	return *p, nil
}

func (s *stubRepo) HasOpenPeriodBefore(_ context.Context, firmID int64, start time.Time) (bool, error) {
	for _, p := range s.periods {
		if p.FirmID == firmID && p.StartDate.Before(start) && p.Status == PeriodStatusOpen {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) UpdateStatus(_ context.Context, periodID int64, status PeriodStatus, lockedBy *int64) error {
	p := s.periods[periodID]
	p.Status = status
	if lockedBy != nil {
		p.LockedBy = lockedBy
	}
	return nil
}

type stubAudit struct {
	logs []internalShared.AuditLog
}

func (s *stubAudit) Record(_ context.Context, log internalShared.AuditLog) error {
	s.logs = append(s.logs, log)
	return nil
}

func createYear(t *testing.T, service *Service) []Period {
	t.Helper()
	created, err := service.CreateFiscalYear(context.Background(), CreateFiscalYearInput{
		FirmID:     firmID,
		Year:       2026,
		StartMonth: time.January,
		ActorID:    9,
	})
	require.NoError(t, err)
	require.Len(t, created, 12)
	return created
}

func TestCreateFiscalYearPartitionsTheYear(t *testing.T) {
	repo := newStubRepo()
	service := NewService(repo, &stubAudit{})

	created := createYear(t, service)

	assert.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), created[0].StartDate)
	assert.Equal(t, time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC), created[11].EndDate)
	for i := 1; i < len(created); i++ {
		// Each period starts the day after its predecessor ends.
		assert.Equal(t, created[i-1].EndDate.AddDate(0, 0, 1), created[i].StartDate)
		assert.Equal(t, PeriodStatusOpen, created[i].Status)
	}
}

func TestCreateFiscalYearRejectsOverlap(t *testing.T) {
	repo := newStubRepo()
	service := NewService(repo, &stubAudit{})
	createYear(t, service)

	_, err := service.CreateFiscalYear(context.Background(), CreateFiscalYearInput{
		FirmID:     firmID,
		Year:       2026,
		StartMonth: time.July,
		ActorID:    9,
	})
	assert.ErrorIs(t, err, shared.ErrYearExists)
}

func TestCreateFiscalYearOverlapCheckSharesInsertTransaction(t *testing.T) {
	repo := newStubRepo()
	service := NewService(repo, &stubAudit{})

	createYear(t, service)

	// Checking overlap outside the insert's transaction would let two
	// concurrent creates for overlapping ranges both pass.
	assert.True(t, repo.overlapCheckedInTx)
}

func TestCloseRequiresChronologicalOrder(t *testing.T) {
	repo := newStubRepo()
	audit := &stubAudit{}
	service := NewService(repo, audit)
	created := createYear(t, service)

	_, err := service.Close(context.Background(), firmID, created[1].ID, 9)
	assert.ErrorIs(t, err, shared.ErrOutOfOrderClose)

	january, err := service.Close(context.Background(), firmID, created[0].ID, 9)
	require.NoError(t, err)
	assert.Equal(t, PeriodStatusClosed, january.Status)

	february, err := service.Close(context.Background(), firmID, created[1].ID, 9)
	require.NoError(t, err)
	assert.Equal(t, PeriodStatusClosed, february.Status)
}

func TestReopenClosedPeriod(t *testing.T) {
	repo := newStubRepo()
	service := NewService(repo, &stubAudit{})
	created := createYear(t, service)

	_, err := service.Close(context.Background(), firmID, created[0].ID, 9)
	require.NoError(t, err)

	reopened, err := service.Reopen(context.Background(), firmID, created[0].ID, 9)
	require.NoError(t, err)
	assert.Equal(t, PeriodStatusOpen, reopened.Status)
}

func TestLockIsTerminal(t *testing.T) {
	repo := newStubRepo()
	service := NewService(repo, &stubAudit{})
	created := createYear(t, service)

	// An open period cannot be locked directly.
	_, err := service.Lock(context.Background(), firmID, created[0].ID, 9)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	_, err = service.Close(context.Background(), firmID, created[0].ID, 9)
	require.NoError(t, err)
	locked, err := service.Lock(context.Background(), firmID, created[0].ID, 9)
	require.NoError(t, err)
	assert.Equal(t, PeriodStatusLocked, locked.Status)
	require.NotNil(t, repo.periods[created[0].ID].LockedBy)
	assert.Equal(t, int64(9), *repo.periods[created[0].ID].LockedBy)

	// No way out of LOCKED.
	_, err = service.Reopen(context.Background(), firmID, created[0].ID, 9)
	assert.ErrorIs(t, err, shared.ErrPeriodLocked)
	_, err = service.Close(context.Background(), firmID, created[0].ID, 9)
	assert.ErrorIs(t, err, shared.ErrPeriodLocked)
}

func TestCanPostOnlyInOpenPeriod(t *testing.T) {
	repo := newStubRepo()
	service := NewService(repo, &stubAudit{})
	created := createYear(t, service)

	date := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	ok, period, err := service.CanPost(context.Background(), firmID, date)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, created[0].ID, period.ID)

	_, err = service.Close(context.Background(), firmID, created[0].ID, 9)
	require.NoError(t, err)
	ok, _, err = service.CanPost(context.Background(), firmID, date)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = service.CanPost(context.Background(), firmID, time.Date(2031, time.May, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, shared.ErrPeriodNotFound)
}
