package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/encorefm/encore/internal/adapters/store"
	"github.com/encorefm/encore/internal/adapters/store/storetest"
	"github.com/encorefm/encore/internal/domain/model"
	"github.com/encorefm/encore/internal/domain/songkey"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	return s
}

func TestSQLiteStore_Suite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return open(t)
	})
}

func TestSQLiteStore_NotSimulated(t *testing.T) {
	s := open(t)
	defer s.Close()

	if s.Simulated() {
		t.Error("expected sqlite store to report durable, not simulated")
	}
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Credit(ctx, store.CreditRequest{AccountID: "u1", Amount: 50, Reason: model.ReasonPurchase}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := s.RecordBid(ctx, store.BidRequest{
		AccountID: "u1",
		EventID:   "ev1",
		Title:     "Hey Jude",
		Artist:    "The Beatles",
		Key:       songkey.Normalize("Hey Jude", "The Beatles"),
		Amount:    20,
	}); err != nil {
		t.Fatalf("record bid: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	balance, err := reopened.GetBalance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 50 {
		t.Errorf("expected balance 50 after reopen, got %d", balance)
	}

	aggs, err := reopened.Aggregates(ctx, "ev1")
	if err != nil {
		t.Fatalf("aggregates: %v", err)
	}
	if len(aggs) != 1 || aggs[0].TotalTokens != 20 {
		t.Fatalf("expected the bid to survive reopen, got %+v", aggs)
	}

	// The aggregate keeps its identity across restarts.
	out, err := reopened.RecordBid(ctx, store.BidRequest{
		AccountID: "u2",
		EventID:   "ev1",
		Title:     "hey jude",
		Artist:    "the beatles",
		Key:       songkey.Normalize("hey jude", "the beatles"),
		Amount:    10,
	})
	if err != nil {
		t.Fatalf("record bid after reopen: %v", err)
	}
	if out.Aggregate.ID != aggs[0].ID {
		t.Errorf("expected same aggregate across reopen, got %s and %s", aggs[0].ID, out.Aggregate.ID)
	}
	if out.Aggregate.TotalTokens != 30 || out.Aggregate.BidderCount != 2 {
		t.Errorf("expected total=30 bidders=2, got total=%d bidders=%d", out.Aggregate.TotalTokens, out.Aggregate.BidderCount)
	}
}

func TestSQLiteStore_ReconcileFreezesPersistently(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Credit(ctx, store.CreditRequest{AccountID: "u1", Amount: 50, Reason: model.ReasonPurchase}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	// Skew the balance directly so reconciliation detects a mismatch.
	if _, err := s.db.ExecContext(ctx, `UPDATE accounts SET balance = 70 WHERE account_id = 'u1'`); err != nil {
		t.Fatalf("skew balance: %v", err)
	}

	if _, err := s.Reconcile(ctx, "u1"); !errors.Is(err, store.ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.Credit(ctx, store.CreditRequest{AccountID: "u1", Amount: 5, Reason: model.ReasonPurchase}); !errors.Is(err, store.ErrAccountFrozen) {
		t.Errorf("expected frozen state to survive reopen, got %v", err)
	}
}
