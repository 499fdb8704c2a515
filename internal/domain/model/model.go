// Package model contains domain models passed between layers.
package model

import "time"

// Reason classifies why a balance changed. Every transaction log entry
// carries exactly one.
type Reason string

const (
	ReasonPurchase   Reason = "purchase"
	ReasonBid        Reason = "bid"
	ReasonAdjustment Reason = "admin_adjustment"
	ReasonReward     Reason = "reward"
	ReasonRefund     Reason = "refund"
)

// Valid reports whether r is one of the known reason codes.
func (r Reason) Valid() bool {
	switch r {
	case ReasonPurchase, ReasonBid, ReasonAdjustment, ReasonReward, ReasonRefund:
		return true
	}
	return false
}

// Balance is the current spendable token balance of one account.
type Balance struct {
	AccountID string    `json:"account_id"`
	Tokens    int64     `json:"tokens"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction is one immutable entry in the append-only ledger.
// The sum of Delta over an account's entries always equals its balance.
type Transaction struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	Delta          int64     `json:"delta"`
	Reason         Reason    `json:"reason"`
	Description    string    `json:"description,omitempty"`
	EventID        string    `json:"event_id,omitempty"`
	SongID         string    `json:"song_id,omitempty"`
	IdempotencyKey string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// SongAggregate is the accumulated standing of one song within one event.
// There is exactly one aggregate per (EventID, Key) pair; only TotalTokens
// and BidderCount change after creation.
type SongAggregate struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Key         string    `json:"-"`
	TotalTokens int64     `json:"total_tokens"`
	BidderCount int       `json:"bidder_count"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// BidRecord is the immutable audit trail of a single bid.
type BidRecord struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	SongID    string    `json:"song_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// Delta is the message published to event subscribers after a successful bid.
// It mirrors the wire contract for leaderboard change notifications.
type Delta struct {
	SongID      string `json:"song_id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	TotalTokens int64  `json:"total_tokens"`
	EventID     string `json:"event_id"`
}

// Entry is one ranked leaderboard row derived from a SongAggregate.
type Entry struct {
	Rank        int       `json:"rank"`
	SongID      string    `json:"song_id"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	TotalTokens int64     `json:"total_tokens"`
	BidderCount int       `json:"bidder_count"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// Reconciliation is the outcome of checking the ledger invariant for one
// account: the balance must equal the sum of its transaction deltas.
type Reconciliation struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
	LogSum    int64  `json:"log_sum"`
	Frozen    bool   `json:"frozen"`
}

// Consistent reports whether the ledger invariant holds for the account.
func (r Reconciliation) Consistent() bool {
	return r.Balance == r.LogSum
}
