package store

import "errors"

// Wire error codes for the ledger HTTP surface. The remote Store
// implementation and the ledger handlers both translate through these, so
// an error round-trips the network without losing its kind.
const (
	CodeInsufficientFunds  = "insufficient_funds"
	CodeAccountFrozen      = "account_frozen"
	CodeInvariantViolation = "invariant_violation"
	CodeDuplicateKey       = "duplicate_idempotency_key"
	CodeInvalidAmount      = "invalid_amount"
	CodeInvalidReason      = "invalid_reason"
	CodeEmptyAccountID     = "empty_account_id"
	CodeUnavailable        = "store_unavailable"
	CodeInternal           = "internal_error"
)

// Code maps a store error to its wire code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return CodeInsufficientFunds
	case errors.Is(err, ErrAccountFrozen):
		return CodeAccountFrozen
	case errors.Is(err, ErrInvariantViolation):
		return CodeInvariantViolation
	case errors.Is(err, ErrDuplicateIdempotencyKey):
		return CodeDuplicateKey
	case errors.Is(err, ErrInvalidAmount):
		return CodeInvalidAmount
	case errors.Is(err, ErrInvalidReason):
		return CodeInvalidReason
	case errors.Is(err, ErrEmptyAccountID):
		return CodeEmptyAccountID
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// FromCode rebuilds the typed store error for a wire code. The numeric
// fields only apply to the codes that carry them.
func FromCode(code, accountID string, current, requested, balance, logSum int64) error {
	switch code {
	case CodeInsufficientFunds:
		return &InsufficientFundsError{Current: current, Requested: requested}
	case CodeAccountFrozen:
		return ErrAccountFrozen
	case CodeInvariantViolation:
		return &InvariantError{AccountID: accountID, Balance: balance, LogSum: logSum}
	case CodeDuplicateKey:
		return ErrDuplicateIdempotencyKey
	case CodeInvalidAmount:
		return ErrInvalidAmount
	case CodeInvalidReason:
		return ErrInvalidReason
	case CodeEmptyAccountID:
		return ErrEmptyAccountID
	case CodeUnavailable:
		return ErrUnavailable
	default:
		return nil
	}
}
