package accounts

import (
	"errors"
	"strings"
)

// CreateInput groups fields required to create an account.
type CreateInput struct {
	FirmID   int64
	Code     string
	Name     string
	Type     AccountType
	Subtype  string
	ParentID *int64
}

// Validate ensures create input meets minimum criteria.
func (in CreateInput) Validate() error {
	if in.FirmID == 0 {
		return errors.New("ledger: firm required")
	}
	if strings.TrimSpace(in.Code) == "" {
		return errors.New("ledger: account code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("ledger: account name required")
	}
	if !in.Type.Valid() {
		return errors.New("ledger: unknown account type")
	}
	return nil
}
