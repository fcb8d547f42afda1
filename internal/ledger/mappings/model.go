package mappings

import "time"

// Well-known mapping keys used by the source-document adapters. The key set
// is closed and auditable; adding a business event means adding a key here
// and a row in the adapter table.
const (
	KeyAccountsReceivable = "ar.receivable"
	KeyServiceRevenue     = "revenue.service"
	KeyOperatingCash      = "cash.operating"
	KeyTrustCash          = "cash.trust"
	KeyAccountsPayable    = "ap.payable"
	KeyRetainerLiability  = "retainer.liability"
	KeyRetainedEarnings   = "equity.retained"

	// ExpenseCategoryPrefix prefixes per-category expense account keys,
	// e.g. "expense.travel".
	ExpenseCategoryPrefix = "expense."
)

// AccountMapping links a semantic posting key to a ledger account.
type AccountMapping struct {
	FirmID    int64
	Key       string
	AccountID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ExpenseCategoryKey builds the mapping key for an expense category.
func ExpenseCategoryKey(category string) string {
	return ExpenseCategoryPrefix + category
}
