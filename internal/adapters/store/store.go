// Package store defines the ledger storage interface and errors.
//
// The bid engine is written against this one interface regardless of
// persistence mode. Three implementations exist: memory (local-simulated,
// non-durable), sqlite (durable, authoritative deployments) and remote
// (authenticated HTTP client against another instance's ledger surface).
// All of them must hold the same invariants: a balance never goes negative,
// every mutation pairs with exactly one transaction log entry, and the sum
// of an account's deltas equals its balance.
package store

import (
	"context"

	"github.com/encorefm/encore/internal/domain/model"
)

// CreditRequest describes a balance credit. Amount must be positive.
type CreditRequest struct {
	AccountID      string
	Amount         int64
	Reason         model.Reason
	Description    string
	EventID        string
	SongID         string
	IdempotencyKey string
}

// DebitRequest describes a balance debit. Amount must be positive.
type DebitRequest struct {
	AccountID      string
	Amount         int64
	Reason         model.Reason
	Description    string
	EventID        string
	SongID         string
	IdempotencyKey string
}

// BidRequest records one bid against a song aggregate. Key must already be
// normalized (songkey.Normalize); the store finds or creates the aggregate
// for (EventID, Key).
type BidRequest struct {
	AccountID string
	EventID   string
	Title     string
	Artist    string
	Key       string
	Amount    int64
}

// BidOutcome reports the aggregate state after a bid was recorded.
type BidOutcome struct {
	Aggregate model.SongAggregate
	Record    model.BidRecord
}

// Store provides read/write access to balances, the transaction log, song
// aggregates and bid records.
//
// Concurrency contract: Credit, Debit and RecordBid serialize per account
// and per aggregate respectively; operations on distinct accounts and songs
// must not block each other. Each method is atomic on its own: there is no
// observable state where a balance changed without its log entry.
type Store interface {
	// GetBalance returns the current balance. Unknown accounts read as 0.
	GetBalance(ctx context.Context, accountID string) (int64, error)

	// Credit adds tokens and appends a log entry with a positive delta.
	// The account row is created lazily if absent.
	Credit(ctx context.Context, req CreditRequest) (model.Balance, error)

	// Debit subtracts tokens and appends a log entry with a negative delta.
	// Fails with an InsufficientFundsError when the balance is short, and
	// with ErrAccountFrozen when the account is blocked from writes.
	Debit(ctx context.Context, req DebitRequest) (model.Balance, error)

	// RecordBid finds or creates the song aggregate for (EventID, Key),
	// inserts a bid record, and updates total tokens and the distinct
	// bidder count as one atomic unit. It does not touch balances; the
	// engine debits first and compensates if this step fails.
	RecordBid(ctx context.Context, req BidRequest) (BidOutcome, error)

	// Aggregates returns all song aggregates for an event, in no
	// particular order. Ranking is derived elsewhere.
	Aggregates(ctx context.Context, eventID string) ([]model.SongAggregate, error)

	// Transactions returns an account's full log, oldest first.
	Transactions(ctx context.Context, accountID string) ([]model.Transaction, error)

	// AccountIDs lists every known account, for reconciliation sweeps.
	AccountIDs(ctx context.Context) ([]string, error)

	// Reconcile checks the balance/log invariant for one account. On a
	// mismatch the account is frozen against further writes and an
	// InvariantError is returned alongside the reconciliation report.
	Reconcile(ctx context.Context, accountID string) (model.Reconciliation, error)

	// Simulated reports whether this store is the local ephemeral
	// simulation. Responses built on a simulated store must say so.
	Simulated() bool

	Close() error
}
