package journals

import (
	"time"

	"github.com/google/uuid"
)

// JournalStatus enumerates journal lifecycle values. A posted entry is
// append-only; correction happens through a reversing entry, never mutation.
type JournalStatus string

const (
	JournalStatusPosted JournalStatus = "POSTED"
	JournalStatusVoid   JournalStatus = "VOID"
)

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID         int64
	FirmID     int64
	Number     int64
	PeriodID   int64
	Date       time.Time
	SourceType string
	SourceID   uuid.UUID
	Memo       string
	PostedBy   int64
	PostedAt   time.Time
	Status     JournalStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Lines      []JournalLine
}

// JournalLine stores a debit or credit amount in minor currency units for one
// account. Exactly one side is non-zero.
type JournalLine struct {
	ID        int64
	JournalID int64
	AccountID int64
	Debit     int64
	Credit    int64
	CreatedAt time.Time
}

// ListFilter narrows entry listings.
type ListFilter struct {
	SourceType string
	SourceID   *uuid.UUID
	AccountID  int64
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
