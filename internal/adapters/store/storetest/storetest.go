// Package storetest holds the behavioral suite every Store implementation
// must pass. The same assertions run against the in-memory simulation, the
// SQLite ledger and the remote client, which is what keeps the
// persistence modes interchangeable behind the one interface.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/encorefm/encore/internal/adapters/store"
	"github.com/encorefm/encore/internal/domain/model"
	"github.com/encorefm/encore/internal/domain/songkey"
)

// Factory builds a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the shared Store suite against the given factory.
func Run(t *testing.T, open Factory) {
	t.Helper()

	t.Run("UnknownAccountReadsZero", func(t *testing.T) { testUnknownAccount(t, open(t)) })
	t.Run("CreditThenDebit", func(t *testing.T) { testCreditThenDebit(t, open(t)) })
	t.Run("InsufficientFunds", func(t *testing.T) { testInsufficientFunds(t, open(t)) })
	t.Run("BidAggregation", func(t *testing.T) { testBidAggregation(t, open(t)) })
	t.Run("EventsAreIsolated", func(t *testing.T) { testEventsAreIsolated(t, open(t)) })
	t.Run("IdempotencyKeys", func(t *testing.T) { testIdempotencyKeys(t, open(t)) })
	t.Run("InvalidInput", func(t *testing.T) { testInvalidInput(t, open(t)) })
	t.Run("ConcurrentMutations", func(t *testing.T) { testConcurrentMutations(t, open(t)) })
}

func credit(t *testing.T, s store.Store, accountID string, amount int64) model.Balance {
	t.Helper()
	bal, err := s.Credit(context.Background(), store.CreditRequest{
		AccountID: accountID,
		Amount:    amount,
		Reason:    model.ReasonPurchase,
	})
	if err != nil {
		t.Fatalf("credit %d to %s: %v", amount, accountID, err)
	}
	return bal
}

func bid(t *testing.T, s store.Store, accountID, eventID, title, artist string, amount int64) store.BidOutcome {
	t.Helper()
	out, err := s.RecordBid(context.Background(), store.BidRequest{
		AccountID: accountID,
		EventID:   eventID,
		Title:     title,
		Artist:    artist,
		Key:       songkey.Normalize(title, artist),
		Amount:    amount,
	})
	if err != nil {
		t.Fatalf("record bid: %v", err)
	}
	return out
}

func testUnknownAccount(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	balance, err := s.GetBalance(ctx, "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 0 {
		t.Errorf("expected balance 0, got %d", balance)
	}

	txs, err := s.Transactions(ctx, "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("expected no transactions, got %d", len(txs))
	}
}

func testCreditThenDebit(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	bal := credit(t, s, "u1", 50)
	if bal.Tokens != 50 {
		t.Fatalf("expected balance 50 after credit, got %d", bal.Tokens)
	}

	bal, err := s.Debit(ctx, store.DebitRequest{
		AccountID: "u1",
		Amount:    20,
		Reason:    model.ReasonBid,
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if bal.Tokens != 30 {
		t.Fatalf("expected balance 30 after debit, got %d", bal.Tokens)
	}

	txs, err := s.Transactions(ctx, "u1")
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(txs))
	}
	var sum int64
	for _, tx := range txs {
		sum += tx.Delta
	}
	if sum != 30 {
		t.Errorf("expected log sum 30, got %d", sum)
	}

	rec, err := s.Reconcile(ctx, "u1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !rec.Consistent() {
		t.Errorf("expected consistent reconciliation, got balance=%d log_sum=%d", rec.Balance, rec.LogSum)
	}
	if rec.Frozen {
		t.Error("expected account not frozen")
	}
}

func testInsufficientFunds(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	credit(t, s, "u1", 30)

	_, err := s.Debit(ctx, store.DebitRequest{
		AccountID: "u1",
		Amount:    40,
		Reason:    model.ReasonBid,
	})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	var ife *store.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("expected InsufficientFundsError, got %T", err)
	}
	if ife.Current != 30 || ife.Requested != 40 {
		t.Errorf("expected current=30 requested=40, got current=%d requested=%d", ife.Current, ife.Requested)
	}

	// The failed debit must leave no trace.
	balance, err := s.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 30 {
		t.Errorf("expected balance 30, got %d", balance)
	}
	txs, err := s.Transactions(ctx, "u1")
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(txs) != 1 {
		t.Errorf("expected 1 transaction, got %d", len(txs))
	}
}

func testBidAggregation(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	first := bid(t, s, "u1", "ev1", "Bohemian Rhapsody", "Queen", 20)
	if first.Aggregate.TotalTokens != 20 {
		t.Fatalf("expected total 20, got %d", first.Aggregate.TotalTokens)
	}
	if first.Aggregate.BidderCount != 1 {
		t.Fatalf("expected 1 bidder, got %d", first.Aggregate.BidderCount)
	}
	if first.Aggregate.FirstSeenAt.IsZero() {
		t.Error("expected first_seen_at to be set")
	}

	// Same song, different casing and spacing, different account.
	second := bid(t, s, "u2", "ev1", "  bohemian   RHAPSODY ", "queen", 15)
	if second.Aggregate.ID != first.Aggregate.ID {
		t.Fatalf("expected bids to land on one aggregate, got %s and %s", first.Aggregate.ID, second.Aggregate.ID)
	}
	if second.Aggregate.TotalTokens != 35 {
		t.Errorf("expected total 35, got %d", second.Aggregate.TotalTokens)
	}
	if second.Aggregate.BidderCount != 2 {
		t.Errorf("expected 2 bidders, got %d", second.Aggregate.BidderCount)
	}

	// Display strings come from the first submission.
	if second.Aggregate.Title != "Bohemian Rhapsody" || second.Aggregate.Artist != "Queen" {
		t.Errorf("expected first submission's display strings, got %q by %q", second.Aggregate.Title, second.Aggregate.Artist)
	}

	// A repeat bidder does not grow the distinct count.
	third := bid(t, s, "u1", "ev1", "Bohemian Rhapsody", "Queen", 5)
	if third.Aggregate.BidderCount != 2 {
		t.Errorf("expected 2 bidders after repeat bid, got %d", third.Aggregate.BidderCount)
	}
	if third.Aggregate.TotalTokens != 40 {
		t.Errorf("expected total 40, got %d", third.Aggregate.TotalTokens)
	}

	aggs, err := s.Aggregates(ctx, "ev1")
	if err != nil {
		t.Fatalf("aggregates: %v", err)
	}
	if len(aggs) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(aggs))
	}
}

func testEventsAreIsolated(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	a := bid(t, s, "u1", "ev1", "Yesterday", "The Beatles", 10)
	b := bid(t, s, "u1", "ev2", "Yesterday", "The Beatles", 25)
	if a.Aggregate.ID == b.Aggregate.ID {
		t.Fatal("expected separate aggregates per event")
	}

	aggs, err := s.Aggregates(ctx, "ev2")
	if err != nil {
		t.Fatalf("aggregates: %v", err)
	}
	if len(aggs) != 1 || aggs[0].TotalTokens != 25 {
		t.Errorf("expected ev2 to only see its own bid, got %+v", aggs)
	}
}

func testIdempotencyKeys(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	_, err := s.Credit(ctx, store.CreditRequest{
		AccountID:      "u1",
		Amount:         50,
		Reason:         model.ReasonPurchase,
		IdempotencyKey: "pay-1",
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}

	_, err = s.Credit(ctx, store.CreditRequest{
		AccountID:      "u1",
		Amount:         50,
		Reason:         model.ReasonPurchase,
		IdempotencyKey: "pay-1",
	})
	if !errors.Is(err, store.ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected ErrDuplicateIdempotencyKey, got %v", err)
	}
	balance, err := s.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 50 {
		t.Errorf("expected balance 50 after duplicate credit, got %d", balance)
	}

	// A key used by a failed mutation is free for reuse.
	_, err = s.Debit(ctx, store.DebitRequest{
		AccountID:      "u1",
		Amount:         100,
		Reason:         model.ReasonBid,
		IdempotencyKey: "bid-1",
	})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	_, err = s.Debit(ctx, store.DebitRequest{
		AccountID:      "u1",
		Amount:         10,
		Reason:         model.ReasonBid,
		IdempotencyKey: "bid-1",
	})
	if err != nil {
		t.Fatalf("expected reuse of key from failed debit to succeed, got %v", err)
	}
}

func testInvalidInput(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	if _, err := s.GetBalance(ctx, ""); !errors.Is(err, store.ErrEmptyAccountID) {
		t.Errorf("expected ErrEmptyAccountID, got %v", err)
	}

	_, err := s.Credit(ctx, store.CreditRequest{AccountID: "", Amount: 5, Reason: model.ReasonPurchase})
	if !errors.Is(err, store.ErrEmptyAccountID) {
		t.Errorf("expected ErrEmptyAccountID, got %v", err)
	}

	_, err = s.Credit(ctx, store.CreditRequest{AccountID: "u1", Amount: 0, Reason: model.ReasonPurchase})
	if !errors.Is(err, store.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}

	// A negative debit must not invert into a credit.
	_, err = s.Debit(ctx, store.DebitRequest{AccountID: "u1", Amount: -3, Reason: model.ReasonBid})
	if !errors.Is(err, store.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}

	// Nor a negative credit into a debit.
	_, err = s.Credit(ctx, store.CreditRequest{AccountID: "u1", Amount: -3, Reason: model.ReasonPurchase})
	if !errors.Is(err, store.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}

	_, err = s.Credit(ctx, store.CreditRequest{AccountID: "u1", Amount: 5, Reason: model.Reason("tip")})
	if !errors.Is(err, store.ErrInvalidReason) {
		t.Errorf("expected ErrInvalidReason, got %v", err)
	}

	// Rejected mutations leave nothing behind.
	if balance, err := s.GetBalance(ctx, "u1"); err != nil || balance != 0 {
		t.Errorf("expected untouched zero balance, got %d (err %v)", balance, err)
	}
	if txs, err := s.Transactions(ctx, "u1"); err != nil || len(txs) != 0 {
		t.Errorf("expected empty transaction log, got %d entries (err %v)", len(txs), err)
	}
}

func testConcurrentMutations(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	const (
		workers = 8
		rounds  = 10
	)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_, err := s.Credit(ctx, store.CreditRequest{
					AccountID:   "shared",
					Amount:      5,
					Reason:      model.ReasonPurchase,
					Description: fmt.Sprintf("worker %d round %d", w, i),
				})
				if err != nil {
					t.Errorf("concurrent credit: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	balance, err := s.GetBalance(ctx, "shared")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if want := int64(workers * rounds * 5); balance != want {
		t.Errorf("expected balance %d, got %d", want, balance)
	}

	rec, err := s.Reconcile(ctx, "shared")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !rec.Consistent() {
		t.Errorf("expected consistent ledger, balance=%d log_sum=%d", rec.Balance, rec.LogSum)
	}
}
