package accounts

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gavelworks/gavelworks/internal/ledger/shared"
	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

// AuditPort records registry changes for compliance.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service exposes chart-of-accounts operations.
type Service struct {
	repo  Repository
	audit AuditPort
	asOf  singleflight.Group
	now   func() time.Time
}

// NewService constructs the registry service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create adds an account with a zero opening balance.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	account, err := s.repo.Create(ctx, in)
	if err != nil {
		return Account{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			FirmID:   account.FirmID,
			Action:   "account.create",
			Entity:   "account",
			EntityID: fmt.Sprintf("%d", account.ID),
			Meta:     map[string]any{"code": account.Code, "type": string(account.Type)},
			At:       s.now(),
		})
	}
	return account, nil
}

// List returns the firm's chart of accounts.
func (s *Service) List(ctx context.Context, firmID int64) ([]Account, error) {
	return s.repo.List(ctx, firmID)
}

// Get returns a single account.
func (s *Service) Get(ctx context.Context, firmID, id int64) (Account, error) {
	return s.repo.GetByID(ctx, firmID, id)
}

// Balance returns the cached balance, or a point-in-time balance when asOf is
// set. As-of balances replay posted lines and never touch the cache;
// concurrent identical replays collapse through singleflight.
func (s *Service) Balance(ctx context.Context, firmID, accountID int64, asOf *time.Time) (int64, error) {
	account, err := s.repo.GetByID(ctx, firmID, accountID)
	if err != nil {
		return 0, err
	}
	if asOf == nil {
		return account.CurrentBalance, nil
	}
	key := fmt.Sprintf("%d:%s", accountID, asOf.Format("2006-01-02"))
	v, err, _ := s.asOf.Do(key, func() (any, error) {
		debits, credits, err := s.repo.SumPostedLines(ctx, accountID, *asOf)
		if err != nil {
			return int64(0), err
		}
		return account.SignedDelta(debits, credits), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Deactivate retires an account. Accounts with postings inside a currently
// open period stay active so running reports keep their rows.
func (s *Service) Deactivate(ctx context.Context, firmID, accountID, actorID int64) error {
	account, err := s.repo.GetByID(ctx, firmID, accountID)
	if err != nil {
		return err
	}
	inUse, err := s.repo.HasPostingsInOpenPeriod(ctx, account.ID)
	if err != nil {
		return err
	}
	if inUse {
		return shared.ErrAccountInUse
	}
	if err := s.repo.SetActive(ctx, firmID, accountID, false); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			FirmID:   firmID,
			ActorID:  actorID,
			Action:   "account.deactivate",
			Entity:   "account",
			EntityID: fmt.Sprintf("%d", accountID),
			At:       s.now(),
		})
	}
	return nil
}
