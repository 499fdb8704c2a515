package store

import (
	"errors"
	"fmt"
)

// Sentinel kinds for ledger storage errors.
var (
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrAccountFrozen           = errors.New("account frozen pending reconciliation")
	ErrInvariantViolation      = errors.New("ledger invariant violation")
	ErrUnavailable             = errors.New("ledger store unavailable")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInvalidReason           = errors.New("unknown reason code")
	ErrEmptyAccountID          = errors.New("empty account id")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrClosed                  = errors.New("store closed")
)

// InsufficientFundsError carries the shortfall so the UI can prompt a
// top-up. errors.Is(err, ErrInsufficientFunds) matches it.
type InsufficientFundsError struct {
	Current   int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: have %d, need %d", e.Current, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// InvariantError reports a balance that no longer matches its transaction
// log. It is fatal for the account: writes stay blocked until an operator
// reconciles. errors.Is(err, ErrInvariantViolation) matches it.
type InvariantError struct {
	AccountID string
	Balance   int64
	LogSum    int64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger invariant violation for account %s: balance %d, log sum %d", e.AccountID, e.Balance, e.LogSum)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }
