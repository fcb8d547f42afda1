package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Valid reports whether the type is a known category.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeIncome, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether the balance grows with debits.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Account models a chart of accounts node. CurrentBalance is a materialized
// cache in minor currency units; the posted journal lines remain the source
// of truth and the cache is reconstructible by replay.
type Account struct {
	ID             int64
	FirmID         int64
	Code           string
	Name           string
	Type           AccountType
	Subtype        string
	ParentID       *int64
	IsActive       bool
	CurrentBalance int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SignedDelta converts a debit/credit pair into the balance movement for this
// account's normal side.
func (a Account) SignedDelta(debit, credit int64) int64 {
	if a.Type.DebitNormal() {
		return debit - credit
	}
	return credit - debit
}
