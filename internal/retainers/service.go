package retainers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/gavelworks/gavelworks/internal/ledger/journals"
	"github.com/gavelworks/gavelworks/internal/ledger/mappings"
	"github.com/gavelworks/gavelworks/internal/ledger/shared"
	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

// Source type names recorded on trust postings.
const (
	SourceDeposit     = "retainer_deposit"
	SourceConsumption = "retainer_consumption"
)

// AuditPort records trust fund actions.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service manages deposits into and consumption of client trust funds. The
// sufficiency check and the journal posting share one transaction with the
// retainer row locked, so two concurrent consumptions cannot both pass the
// check and overdraw the trust.
type Service struct {
	repo     Repository
	mappings mappings.Repository
	audit    AuditPort
	now      func() time.Time
}

func NewService(repo Repository, mapRepo mappings.Repository, audit AuditPort) *Service {
	return &Service{repo: repo, mappings: mapRepo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Get returns the client's retainer.
func (s *Service) Get(ctx context.Context, firmID, clientID int64) (Retainer, error) {
	return s.repo.Get(ctx, firmID, clientID)
}

// List returns all retainers for the firm.
func (s *Service) List(ctx context.Context, firmID int64) ([]Retainer, error) {
	return s.repo.List(ctx, firmID)
}

// DepositInput carries a trust deposit. Reference is the payment reference
// and keys the posting; replaying a deposit with the same reference leaves
// the balance untouched.
type DepositInput struct {
	ClientID   int64     `json:"client_id" validate:"required"`
	Amount     int64     `json:"amount" validate:"required,gt=0"`
	Reference  string    `json:"reference" validate:"required"`
	ReceivedAt time.Time `json:"received_at" validate:"required"`
}

// Deposit records client money arriving in trust: debit trust cash, credit
// the retainer liability, bump the cached balance.
func (s *Service) Deposit(ctx context.Context, actor internalShared.Actor, in DepositInput) (Retainer, error) {
	if in.Amount <= 0 {
		return Retainer{}, errors.New("retainers: deposit amount must be positive")
	}
	trustCash, liability, err := s.trustAccounts(ctx, actor.FirmID)
	if err != nil {
		return Retainer{}, err
	}

	var out Retainer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, err := tx.EnsureForUpdate(ctx, actor.FirmID, in.ClientID)
		if err != nil {
			return err
		}
		if ret.Status == StatusClosed {
			return ErrClosed
		}
		_, err = journals.PostInTx(ctx, tx.Journals(), journals.PostingInput{
			FirmID:     actor.FirmID,
			Date:       in.ReceivedAt,
			SourceType: SourceDeposit,
			SourceID:   depositSourceID(actor.FirmID, in.Reference),
			Memo:       fmt.Sprintf("Retainer deposit %s", in.Reference),
			PostedBy:   actor.ID,
			Lines: []journals.PostingLineInput{
				{AccountID: trustCash, Debit: in.Amount},
				{AccountID: liability, Credit: in.Amount},
			},
		})
		if errors.Is(err, shared.ErrAlreadyPosted) {
			// Replayed deposit; the balance already includes it.
			out = ret
			return nil
		}
		if err != nil {
			return err
		}
		ret.Balance += in.Amount
		if err := tx.SetBalance(ctx, ret.ID, ret.Balance); err != nil {
			return err
		}
		out = ret
		return nil
	})
	if err != nil {
		return Retainer{}, err
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		FirmID: actor.FirmID, ActorID: actor.ID,
		Action: "retainer.deposit", Entity: "retainer", EntityID: strconv.FormatInt(out.ID, 10),
		Meta: map[string]any{"reference": in.Reference, "amount": in.Amount},
		At:   s.now(),
	})
	return out, nil
}

// ConsumeInput carries a trust consumption. Reference identifies the earning
// event (typically the invoice or work item being settled from trust).
type ConsumeInput struct {
	ClientID  int64     `json:"client_id" validate:"required"`
	Amount    int64     `json:"amount" validate:"required,gt=0"`
	Reference string    `json:"reference" validate:"required"`
	Memo      string    `json:"memo"`
	Date      time.Time `json:"date" validate:"required"`
}

// Consume recognises earned fees out of trust: debit the retainer liability,
// credit service revenue. Fails with ErrInsufficientBalance before any
// posting when the trust cannot cover the amount.
func (s *Service) Consume(ctx context.Context, actor internalShared.Actor, in ConsumeInput) (Retainer, error) {
	if in.Amount <= 0 {
		return Retainer{}, errors.New("retainers: consumption amount must be positive")
	}
	liability, revenue, err := s.consumeAccounts(ctx, actor.FirmID)
	if err != nil {
		return Retainer{}, err
	}

	var out Retainer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, err := tx.GetForUpdate(ctx, actor.FirmID, in.ClientID)
		if err != nil {
			return err
		}
		if ret.Status == StatusClosed {
			return ErrClosed
		}
		if ret.Balance < in.Amount {
			return ErrInsufficientBalance
		}
		memo := in.Memo
		if memo == "" {
			memo = fmt.Sprintf("Retainer consumption %s", in.Reference)
		}
		_, err = journals.PostInTx(ctx, tx.Journals(), journals.PostingInput{
			FirmID:     actor.FirmID,
			Date:       in.Date,
			SourceType: SourceConsumption,
			SourceID:   consumptionSourceID(actor.FirmID, in.Reference),
			Memo:       memo,
			PostedBy:   actor.ID,
			Lines: []journals.PostingLineInput{
				{AccountID: liability, Debit: in.Amount},
				{AccountID: revenue, Credit: in.Amount},
			},
		})
		if errors.Is(err, shared.ErrAlreadyPosted) {
			out = ret
			return nil
		}
		if err != nil {
			return err
		}
		ret.Balance -= in.Amount
		if err := tx.SetBalance(ctx, ret.ID, ret.Balance); err != nil {
			return err
		}
		out = ret
		return nil
	})
	if err != nil {
		return Retainer{}, err
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		FirmID: actor.FirmID, ActorID: actor.ID,
		Action: "retainer.consume", Entity: "retainer", EntityID: strconv.FormatInt(out.ID, 10),
		Meta: map[string]any{"reference": in.Reference, "amount": in.Amount},
		At:   s.now(),
	})
	return out, nil
}

// Close retires the client's retainer. Remaining funds must be consumed or
// refunded first; closing with a non-zero balance fails.
func (s *Service) Close(ctx context.Context, actor internalShared.Actor, clientID int64) (Retainer, error) {
	var out Retainer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ret, err := tx.GetForUpdate(ctx, actor.FirmID, clientID)
		if err != nil {
			return err
		}
		if ret.Status == StatusClosed {
			return ErrClosed
		}
		if ret.Balance != 0 {
			return ErrBalanceRemaining
		}
		if err := tx.SetStatus(ctx, ret.ID, StatusClosed); err != nil {
			return err
		}
		ret.Status = StatusClosed
		out = ret
		return nil
	})
	if err != nil {
		return Retainer{}, err
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		FirmID: actor.FirmID, ActorID: actor.ID,
		Action: "retainer.close", Entity: "retainer", EntityID: strconv.FormatInt(out.ID, 10),
		At: s.now(),
	})
	return out, nil
}

func (s *Service) trustAccounts(ctx context.Context, firmID int64) (trustCash, liability int64, err error) {
	cash, err := s.mappings.Get(ctx, firmID, mappings.KeyTrustCash)
	if err != nil {
		return 0, 0, err
	}
	liab, err := s.mappings.Get(ctx, firmID, mappings.KeyRetainerLiability)
	if err != nil {
		return 0, 0, err
	}
	return cash.AccountID, liab.AccountID, nil
}

func (s *Service) consumeAccounts(ctx context.Context, firmID int64) (liability, revenue int64, err error) {
	liab, err := s.mappings.Get(ctx, firmID, mappings.KeyRetainerLiability)
	if err != nil {
		return 0, 0, err
	}
	rev, err := s.mappings.Get(ctx, firmID, mappings.KeyServiceRevenue)
	if err != nil {
		return 0, 0, err
	}
	return liab.AccountID, rev.AccountID, nil
}

func depositSourceID(firmID int64, reference string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d:%s", SourceDeposit, firmID, reference)))
}

func consumptionSourceID(firmID int64, reference string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d:%s", SourceConsumption, firmID, reference)))
}
