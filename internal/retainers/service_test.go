package retainers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavelworks/gavelworks/internal/ledger/accounts"
	"github.com/gavelworks/gavelworks/internal/ledger/journals"
	"github.com/gavelworks/gavelworks/internal/ledger/mappings"
	"github.com/gavelworks/gavelworks/internal/ledger/periods"
	"github.com/gavelworks/gavelworks/internal/ledger/shared"
	internalShared "github.com/gavelworks/gavelworks/internal/shared"
)

// stubLedgerTx backs journals.PostInTx with in-memory state.
type stubLedgerTx struct {
	period   periods.Period
	accounts map[int64]*accounts.Account
	entries  []journals.JournalEntry
	sources  map[string]bool
}

func (s *stubLedgerTx) FindCoveringPeriodForUpdate(context.Context, int64, time.Time) (periods.Period, error) {
	return s.period, nil
}

func (s *stubLedgerTx) GetAccountForUpdate(_ context.Context, _, accountID int64) (accounts.Account, error) {
	a, ok := s.accounts[accountID]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return *a, nil
}

func (s *stubLedgerTx) UpdateAccountBalance(_ context.Context, accountID, balance int64) error {
	s.accounts[accountID].CurrentBalance = balance
	return nil
}

func (s *stubLedgerTx) InsertJournalEntry(_ context.Context, in journals.PostingInput, periodID int64) (journals.JournalEntry, error) {
	key := in.SourceType + ":" + in.SourceID.String()
	if s.sources[key] {
		return journals.JournalEntry{}, shared.ErrSourceConflict
	}
	s.sources[key] = true
	entry := journals.JournalEntry{
		ID:         int64(len(s.entries) + 1),
		FirmID:     in.FirmID,
		PeriodID:   periodID,
		Date:       in.Date,
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
		Memo:       in.Memo,
		PostedBy:   in.PostedBy,
		Status:     journals.JournalStatusPosted,
	}
	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *stubLedgerTx) InsertJournalLines(context.Context, int64, []journals.PostingLineInput) error {
	return nil
}

func (s *stubLedgerTx) GetJournalWithLines(context.Context, int64, int64) (journals.JournalEntry, []journals.JournalLine, error) {
	return journals.JournalEntry{}, nil, shared.ErrJournalNotFound
}

func (s *stubLedgerTx) UpdateJournalStatus(context.Context, int64, journals.JournalStatus) error {
	return nil
}

type stubRepo struct {
	ledger    *stubLedgerTx
	retainers map[int64]*Retainer
	nextID    int64
}

func newStubRepo(ledger *stubLedgerTx) *stubRepo {
	return &stubRepo{ledger: ledger, retainers: map[int64]*Retainer{}, nextID: 1}
}

func (s *stubRepo) Get(_ context.Context, firmID, clientID int64) (Retainer, error) {
	for _, ret := range s.retainers {
		if ret.FirmID == firmID && ret.ClientID == clientID {
			return *ret, nil
		}
	}
	return Retainer{}, ErrNotFound
}

func (s *stubRepo) List(_ context.Context, firmID int64) ([]Retainer, error) {
	var out []Retainer
	for _, ret := range s.retainers {
		if ret.FirmID == firmID {
			out = append(out, *ret)
		}
	}
	return out, nil
}

func (s *stubRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	return fn(ctx, &stubTx{repo: s})
}

type stubTx struct {
	repo *stubRepo
}

func (t *stubTx) Journals() journals.TxRepository { return t.repo.ledger }

func (t *stubTx) EnsureForUpdate(ctx context.Context, firmID, clientID int64) (Retainer, error) {
	ret, err := t.GetForUpdate(ctx, firmID, clientID)
	if err == nil {
		return ret, nil
	}
	created := &Retainer{ID: t.repo.nextID, FirmID: firmID, ClientID: clientID, Status: StatusActive}
	t.repo.nextID++
	t.repo.retainers[created.ID] = created
	return *created, nil
}

func (t *stubTx) GetForUpdate(_ context.Context, firmID, clientID int64) (Retainer, error) {
	for _, ret := range t.repo.retainers {
		if ret.FirmID == firmID && ret.ClientID == clientID {
			return *ret, nil
		}
	}
	return Retainer{}, ErrNotFound
}

func (t *stubTx) SetBalance(_ context.Context, id, balance int64) error {
	t.repo.retainers[id].Balance = balance
	return nil
}

func (t *stubTx) SetStatus(_ context.Context, id int64, status Status) error {
	t.repo.retainers[id].Status = status
	return nil
}

type stubMappings map[string]int64

func (m stubMappings) Get(_ context.Context, _ int64, key string) (mappings.AccountMapping, error) {
	id, ok := m[key]
	if !ok {
		return mappings.AccountMapping{}, shared.ErrMappingNotFound
	}
	return mappings.AccountMapping{Key: key, AccountID: id}, nil
}

func (m stubMappings) Upsert(context.Context, mappings.AccountMapping) error { return nil }

func (m stubMappings) List(context.Context, int64) ([]mappings.AccountMapping, error) {
	return nil, nil
}

type stubAudit struct{}

func (stubAudit) Record(context.Context, internalShared.AuditLog) error { return nil }

const (
	trustCashID = 100
	liabilityID = 200
	revenueID   = 300
)

var testActor = internalShared.Actor{ID: 7, FirmID: 1}

func newTestService(t *testing.T) (*Service, *stubRepo, *stubLedgerTx) {
	t.Helper()
	ledger := &stubLedgerTx{
		period: periods.Period{
			ID: 1, FirmID: 1, FiscalYear: 2024, Sequence: 3,
			StartDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
			Status:    periods.PeriodStatusOpen,
		},
		accounts: map[int64]*accounts.Account{
			trustCashID: {ID: trustCashID, FirmID: 1, Type: accounts.AccountTypeAsset, IsActive: true},
			liabilityID: {ID: liabilityID, FirmID: 1, Type: accounts.AccountTypeLiability, IsActive: true},
			revenueID:   {ID: revenueID, FirmID: 1, Type: accounts.AccountTypeIncome, IsActive: true},
		},
		sources: map[string]bool{},
	}
	repo := newStubRepo(ledger)
	maps := stubMappings{
		mappings.KeyTrustCash:         trustCashID,
		mappings.KeyRetainerLiability: liabilityID,
		mappings.KeyServiceRevenue:    revenueID,
	}
	svc := NewService(repo, maps, stubAudit{}).WithNow(func() time.Time {
		return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	})
	return svc, repo, ledger
}

var marchDate = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func TestDepositCreatesRetainerAndPostsTrustEntry(t *testing.T) {
	svc, _, ledger := newTestService(t)

	ret, err := svc.Deposit(context.Background(), testActor, DepositInput{
		ClientID: 42, Amount: 100000, Reference: "DEP-1", ReceivedAt: marchDate,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100000), ret.Balance)
	require.Len(t, ledger.entries, 1)
	assert.Equal(t, SourceDeposit, ledger.entries[0].SourceType)
	assert.Equal(t, int64(100000), ledger.accounts[trustCashID].CurrentBalance)
	assert.Equal(t, int64(100000), ledger.accounts[liabilityID].CurrentBalance)
}

func TestDepositReplaySameReferenceIsNoOp(t *testing.T) {
	svc, _, ledger := newTestService(t)

	_, err := svc.Deposit(context.Background(), testActor, DepositInput{
		ClientID: 42, Amount: 100000, Reference: "DEP-1", ReceivedAt: marchDate,
	})
	require.NoError(t, err)

	ret, err := svc.Deposit(context.Background(), testActor, DepositInput{
		ClientID: 42, Amount: 100000, Reference: "DEP-1", ReceivedAt: marchDate,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100000), ret.Balance)
	assert.Len(t, ledger.entries, 1)
	assert.Equal(t, int64(100000), ledger.accounts[trustCashID].CurrentBalance)
}

func TestConsumeReducesBalanceAndRecognisesRevenue(t *testing.T) {
	svc, _, ledger := newTestService(t)
	_, err := svc.Deposit(context.Background(), testActor, DepositInput{
		ClientID: 42, Amount: 100000, Reference: "DEP-1", ReceivedAt: marchDate,
	})
	require.NoError(t, err)

	ret, err := svc.Consume(context.Background(), testActor, ConsumeInput{
		ClientID: 42, Amount: 40000, Reference: "INV-9", Date: marchDate,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(60000), ret.Balance)
	assert.Equal(t, int64(60000), ledger.accounts[liabilityID].CurrentBalance)
	assert.Equal(t, int64(40000), ledger.accounts[revenueID].CurrentBalance)
}

func TestConsumeBeyondBalanceFailsWithoutPosting(t *testing.T) {
	svc, _, ledger := newTestService(t)
	_, err := svc.Deposit(context.Background(), testActor, DepositInput{
		ClientID: 42, Amount: 100000, Reference: "DEP-1", ReceivedAt: marchDate,
	})
	require.NoError(t, err)
	_, err = svc.Consume(context.Background(), testActor, ConsumeInput{
		ClientID: 42, Amount: 40000, Reference: "INV-9", Date: marchDate,
	})
	require.NoError(t, err)

	_, err = svc.Consume(context.Background(), testActor, ConsumeInput{
		ClientID: 42, Amount: 70000, Reference: "INV-10", Date: marchDate,
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Len(t, ledger.entries, 2, "failed consumption posts nothing")

	ret, err := svc.Get(context.Background(), 1, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), ret.Balance)
}

func TestConsumeUnknownClient(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Consume(context.Background(), testActor, ConsumeInput{
		ClientID: 99, Amount: 1000, Reference: "INV-1", Date: marchDate,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseRequiresZeroBalance(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Deposit(context.Background(), testActor, DepositInput{
		ClientID: 42, Amount: 100000, Reference: "DEP-1", ReceivedAt: marchDate,
	})
	require.NoError(t, err)

	_, err = svc.Close(context.Background(), testActor, 42)
	assert.ErrorIs(t, err, ErrBalanceRemaining)

	_, err = svc.Consume(context.Background(), testActor, ConsumeInput{
		ClientID: 42, Amount: 100000, Reference: "INV-9", Date: marchDate,
	})
	require.NoError(t, err)

	ret, err := svc.Close(context.Background(), testActor, 42)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, ret.Status)
}

func TestClosedRetainerRefusesMoney(t *testing.T) {
	svc, _, ledger := newTestService(t)

	// Establish and immediately drain an empty retainer, then close it.
	_, err := svc.Deposit(context.Background(), testActor, DepositInput{
		ClientID: 42, Amount: 50000, Reference: "DEP-1", ReceivedAt: marchDate,
	})
	require.NoError(t, err)
	_, err = svc.Consume(context.Background(), testActor, ConsumeInput{
		ClientID: 42, Amount: 50000, Reference: "INV-9", Date: marchDate,
	})
	require.NoError(t, err)
	_, err = svc.Close(context.Background(), testActor, 42)
	require.NoError(t, err)

	entriesBefore := len(ledger.entries)
	_, err = svc.Deposit(context.Background(), testActor, DepositInput{
		ClientID: 42, Amount: 10000, Reference: "DEP-2", ReceivedAt: marchDate,
	})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = svc.Consume(context.Background(), testActor, ConsumeInput{
		ClientID: 42, Amount: 10000, Reference: "INV-10", Date: marchDate,
	})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Len(t, ledger.entries, entriesBefore, "closed retainer posts nothing")

	_, err = svc.Close(context.Background(), testActor, 42)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDepositSourceIDStableAcrossCalls(t *testing.T) {
	a := depositSourceID(1, "DEP-1")
	b := depositSourceID(1, "DEP-1")
	c := depositSourceID(2, "DEP-1")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, uuid.Nil, a)
}
