// Package retainers manages client trust funds. A retainer is money the
// client has deposited but the firm has not yet earned; it sits in a trust
// cash account offset by a liability until work consumes it.
package retainers

import (
	"errors"
	"time"
)

// Status enumerates the retainer lifecycle. A closed retainer accepts no
// further deposits or consumptions.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusClosed Status = "CLOSED"
)

// Retainer tracks one client's trust balance in minor currency units. The
// balance is denormalised from the ledger; every change to it happens in the
// same transaction as the journal posting that explains it.
type Retainer struct {
	ID        int64     `json:"id"`
	FirmID    int64     `json:"firm_id"`
	ClientID  int64     `json:"client_id"`
	Balance   int64     `json:"balance"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrNotFound indicates no retainer exists for the client.
	ErrNotFound = errors.New("retainers: retainer not found")
	// ErrInsufficientBalance indicates a consumption exceeding the trust balance.
	ErrInsufficientBalance = errors.New("retainers: insufficient retainer balance")
	// ErrClosed indicates an operation against a closed retainer.
	ErrClosed = errors.New("retainers: retainer closed")
	// ErrBalanceRemaining indicates an attempt to close a retainer that still
	// holds client funds.
	ErrBalanceRemaining = errors.New("retainers: balance must be zero to close")
)
