package remote_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/encorefm/encore/internal/adapters/http/api"
	"github.com/encorefm/encore/internal/adapters/notify"
	"github.com/encorefm/encore/internal/adapters/store"
	"github.com/encorefm/encore/internal/adapters/store/memory"
	"github.com/encorefm/encore/internal/adapters/store/remote"
	"github.com/encorefm/encore/internal/adapters/store/storetest"
	service "github.com/encorefm/encore/internal/app"
	"github.com/encorefm/encore/internal/domain/model"
	"github.com/encorefm/encore/pkg/logger"
)

func init() {
	_ = logger.Init()
}

// fakeEngine fills the public surface dependency; the remote client only
// exercises the /ledger routes.
type fakeEngine struct{}

func (fakeEngine) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return 0, nil
}
func (fakeEngine) Credit(ctx context.Context, req store.CreditRequest) (model.Balance, error) {
	return model.Balance{}, nil
}
func (fakeEngine) PlaceBid(ctx context.Context, req service.PlaceBidRequest) (service.PlaceBidResult, error) {
	return service.PlaceBidResult{}, nil
}
func (fakeEngine) Leaderboard(ctx context.Context, eventID string, limit int) ([]model.Entry, error) {
	return nil, nil
}
func (fakeEngine) Transactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	return nil, nil
}
func (fakeEngine) Reconcile(ctx context.Context, accountID string) (model.Reconciliation, error) {
	return model.Reconciliation{}, nil
}
func (fakeEngine) Subscribe(ctx context.Context, eventID string) *notify.Subscription { return nil }
func (fakeEngine) Simulated() bool                                                    { return true }
func (fakeEngine) MaxLeaderboardLimit() int                                           { return 100 }

func (fakeEngine) GetStats() map[string]interface{} { return map[string]interface{}{} }

// newRemote spins up a full wire surface over an in-memory ledger and
// points a remote client at it.
func newRemote(t *testing.T) *remote.Store {
	t.Helper()

	backing := memory.New()
	srv := api.NewServer(fakeEngine{}, backing, fakeEngine{}, api.NewAuth("", true), []string{"*"})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		backing.Close()
	})

	client, err := remote.New(ts.URL, "test-token", remote.WithHTTPClient(ts.Client()))
	if err != nil {
		t.Fatalf("remote.New: %v", err)
	}
	return client
}

func TestRemoteStore_Suite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return newRemote(t)
	})
}

func TestRemoteStore_NotSimulated(t *testing.T) {
	s := newRemote(t)
	defer s.Close()

	if s.Simulated() {
		t.Error("expected remote store to report authoritative, not simulated")
	}
}

func TestRemoteStore_InvalidURL(t *testing.T) {
	if _, err := remote.New("", "token"); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := remote.New("not-a-url", "token"); err == nil {
		t.Error("expected error for relative URL")
	}
}

func TestRemoteStore_UnreachableLedger(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	s, err := remote.New(url, "token")
	if err != nil {
		t.Fatalf("remote.New: %v", err)
	}
	defer s.Close()

	if _, err := s.GetBalance(context.Background(), "u1"); !errors.Is(err, store.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestRemoteStore_ErrorsRoundTripTyped(t *testing.T) {
	ctx := context.Background()
	s := newRemote(t)
	defer s.Close()

	if _, err := s.Credit(ctx, store.CreditRequest{AccountID: "u1", Amount: 30, Reason: model.ReasonPurchase}); err != nil {
		t.Fatalf("credit: %v", err)
	}

	_, err := s.Debit(ctx, store.DebitRequest{AccountID: "u1", Amount: 40, Reason: model.ReasonBid})
	var ife *store.InsufficientFundsError
	if !errors.As(err, &ife) {
		t.Fatalf("expected InsufficientFundsError over the wire, got %v", err)
	}
	if ife.Current != 30 || ife.Requested != 40 {
		t.Errorf("expected current=30 requested=40, got current=%d requested=%d", ife.Current, ife.Requested)
	}
}
