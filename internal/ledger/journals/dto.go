package journals

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gavelworks/gavelworks/internal/ledger/shared"
)

// PostingLineInput describes a journal line for a posting request. Amounts
// are minor currency units; all balancing arithmetic is integer.
type PostingLineInput struct {
	AccountID int64
	Debit     int64
	Credit    int64
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	FirmID     int64
	Date       time.Time
	SourceType string
	SourceID   uuid.UUID
	Memo       string
	PostedBy   int64
	Lines      []PostingLineInput
}

// Amount bounds. Capping lines and line count keeps the int64 debit and
// credit sums from wrapping, which could make an unbalanced entry look
// balanced.
const (
	maxEntryLines = 500
	maxLineAmount = int64(100_000_000_000_000)
)

// Validate checks structural invariants before any mutation.
func (in PostingInput) Validate() error {
	if in.FirmID == 0 {
		return errors.New("ledger: firm required")
	}
	if in.Date.IsZero() {
		return errors.New("ledger: posting date required")
	}
	if in.SourceType == "" {
		return errors.New("ledger: source type required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("ledger: source id required")
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	if len(in.Lines) > maxEntryLines {
		return fmt.Errorf("ledger: at most %d lines per entry", maxEntryLines)
	}
	var debit, credit int64
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit < 0 || line.Credit < 0 {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit > 0 && line.Credit > 0 {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		if line.Debit == 0 && line.Credit == 0 {
			return fmt.Errorf("ledger: line %d has no amount", idx)
		}
		if line.Debit > maxLineAmount || line.Credit > maxLineAmount {
			return fmt.Errorf("ledger: line %d amount exceeds maximum", idx)
		}
		debit += line.Debit
		credit += line.Credit
	}
	if debit != credit {
		return shared.ErrUnbalanced
	}
	return nil
}

// VoidInput wraps parameters for voiding an entry.
type VoidInput struct {
	FirmID  int64
	EntryID int64
	ActorID int64
	Reason  string
}
