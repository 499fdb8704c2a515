// Package service provides the core bid engine that implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/encorefm/encore/internal/adapters/notify"
	"github.com/encorefm/encore/internal/adapters/store"
	"github.com/encorefm/encore/internal/domain/dedupe"
	"github.com/encorefm/encore/internal/domain/model"
	"github.com/encorefm/encore/internal/domain/rank"
	"github.com/encorefm/encore/internal/domain/songkey"
	"github.com/encorefm/encore/pkg/logger"
	"github.com/encorefm/encore/pkg/metrics"
)

// compensationAttempts bounds the retry loop for the compensating credit
// after a post-debit failure. Exhausting it means the ledger needs an
// operator; the reconciliation sweep will freeze the account.
const compensationAttempts = 3

// PlaceBidRequest is the input to PlaceBid. RequestID is an optional
// client-supplied idempotency key; when present, a retried submission is
// acknowledged as a duplicate instead of double-charging.
type PlaceBidRequest struct {
	AccountID string
	EventID   string
	Title     string
	Artist    string
	Amount    int64
	RequestID string
}

// PlaceBidResult reports the outcome of a resolved bid.
type PlaceBidResult struct {
	Balance     model.Balance
	SongID      string
	TotalTokens int64
	BidderCount int
	Duplicate   bool
	Simulated   bool
}

// Service implements the token ledger and bid resolution engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	ledger  store.Store
	broker  *notify.Broker
	deduper dedupe.Deduper

	// Configuration
	storeCfg            StoreConfig
	dedupeSize          int
	notifyBuffer        int
	maxLeaderboardLimit int
	reconcileInterval   time.Duration

	// State
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// Logging
	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		storeCfg:            StoreConfig{Mode: ModeMemory},
		dedupeSize:          50_000,
		notifyBuffer:        64,
		maxLeaderboardLimit: 100,
		reconcileInterval:   time.Minute,
		stopCh:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes the storage backend, notifier and background
// reconciliation sweep. The persistence mode is resolved exactly once
// here; no code path re-selects a store per call.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	if s.ledger == nil {
		ledger, err := openStore(ctx, s.storeCfg, s.logger)
		if err != nil {
			return err
		}
		s.ledger = ledger
	}
	if s.ledger.Simulated() {
		s.logger.Warn(ctx, "running on the local simulated ledger; balances are not durable")
	}

	s.broker = notify.New(notify.WithBufferSize(s.notifyBuffer))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))

	if s.reconcileInterval > 0 {
		s.wg.Add(1)
		go s.reconcileLoop()
	}

	s.started = true
	s.logger.Info(ctx, "bid engine started",
		logger.String("store_mode", s.storeCfg.Mode),
		logger.Bool("simulated", s.ledger.Simulated()),
	)
	return nil
}

// Stop gracefully shuts the service down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.wg.Wait()

	s.broker.Close()
	if err := s.ledger.Close(); err != nil {
		s.logger.Error(context.Background(), "closing ledger store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(context.Background(), "bid engine stopped")
}

// GetBalance returns an account's spendable balance; 0 for unknown
// accounts.
func (s *Service) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return s.ledger.GetBalance(ctx, accountID)
}

// Credit adds tokens to an account. Called by the payment-completion
// collaborator after the external provider confirms, and by admin tooling
// with the adjustment/reward reasons. This engine never talks to a payment
// provider itself.
func (s *Service) Credit(ctx context.Context, req store.CreditRequest) (model.Balance, error) {
	if req.Reason == "" {
		req.Reason = model.ReasonPurchase
	}
	bal, err := s.ledger.Credit(ctx, req)
	if err != nil {
		metrics.RecordStoreOpError("credit")
		return model.Balance{}, err
	}
	metrics.RecordCredit(string(req.Reason), req.Amount)
	return bal, nil
}

// PlaceBid atomically converts a bid into a balance debit plus an
// aggregated song-request score, then publishes the leaderboard delta.
//
// Ordering is debit-first: an InsufficientFunds failure aborts before any
// aggregate state exists. Any failure after the debit triggers a
// compensating credit so the reconciliation invariant survives partial
// failures. The delta is published only after the mutation committed, and
// with no locks held.
func (s *Service) PlaceBid(ctx context.Context, req PlaceBidRequest) (PlaceBidResult, error) {
	start := time.Now()
	defer func() {
		metrics.RecordBidLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := validateBid(req); err != nil {
		metrics.RecordBidRejected("invalid")
		return PlaceBidResult{}, err
	}

	if req.RequestID != "" && s.deduper.SeenAndRecord(ctx, req.RequestID) {
		metrics.RecordBidDuplicate()
		balance, err := s.ledger.GetBalance(ctx, req.AccountID)
		if err != nil {
			return PlaceBidResult{}, err
		}
		return PlaceBidResult{
			Balance:   model.Balance{AccountID: req.AccountID, Tokens: balance},
			Duplicate: true,
			Simulated: s.ledger.Simulated(),
		}, nil
	}

	key := songkey.Normalize(req.Title, req.Artist)

	bal, err := s.ledger.Debit(ctx, store.DebitRequest{
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Reason:      model.ReasonBid,
		Description: fmt.Sprintf("bid %d on %q by %q", req.Amount, req.Title, req.Artist),
		EventID:     req.EventID,
	})
	if err != nil {
		s.unrecord(ctx, req.RequestID)
		metrics.RecordBidRejected(rejectionCause(err))
		return PlaceBidResult{}, err
	}
	metrics.RecordDebit(req.Amount)

	outcome, err := s.ledger.RecordBid(ctx, store.BidRequest{
		AccountID: req.AccountID,
		EventID:   req.EventID,
		Title:     req.Title,
		Artist:    req.Artist,
		Key:       key,
		Amount:    req.Amount,
	})
	if err != nil {
		s.compensate(ctx, req)
		s.unrecord(ctx, req.RequestID)
		metrics.RecordBidRejected("store_error")
		return PlaceBidResult{}, fmt.Errorf("record bid: %w", err)
	}

	metrics.RecordBidPlaced()
	s.broker.Publish(ctx, req.EventID, model.Delta{
		SongID:      outcome.Aggregate.ID,
		Title:       outcome.Aggregate.Title,
		Artist:      outcome.Aggregate.Artist,
		TotalTokens: outcome.Aggregate.TotalTokens,
		EventID:     req.EventID,
	})

	return PlaceBidResult{
		Balance:     bal,
		SongID:      outcome.Aggregate.ID,
		TotalTokens: outcome.Aggregate.TotalTokens,
		BidderCount: outcome.Aggregate.BidderCount,
		Simulated:   s.ledger.Simulated(),
	}, nil
}

// compensate refunds a debit whose follow-up steps failed.
func (s *Service) compensate(ctx context.Context, req PlaceBidRequest) {
	creditReq := store.CreditRequest{
		AccountID:   req.AccountID,
		Amount:      req.Amount,
		Reason:      model.ReasonRefund,
		Description: fmt.Sprintf("reversal of failed bid on %q by %q", req.Title, req.Artist),
		EventID:     req.EventID,
	}

	// Publish step cannot have run yet, so the refund restores exactly the
	// pre-bid state.
	var err error
	for attempt := 1; attempt <= compensationAttempts; attempt++ {
		if _, err = s.ledger.Credit(ctx, creditReq); err == nil {
			metrics.RecordBidCompensation()
			return
		}
		time.Sleep(time.Duration(attempt) * 50 * time.Millisecond)
	}
	// The balance/log invariant may now be violated for this account; the
	// reconciliation sweep will detect it and freeze the account.
	s.logger.Error(ctx, "compensating credit failed; account needs reconciliation",
		logger.String("account_id", req.AccountID),
		logger.Int64("amount", req.Amount),
		logger.Error(err),
	)
}

func (s *Service) unrecord(ctx context.Context, requestID string) {
	if requestID != "" {
		s.deduper.Unrecord(ctx, requestID)
	}
}

// Leaderboard derives the ranked view for an event. A limit <= 0 returns
// the full set. The view is recomputed from aggregates on every call,
// which is what makes it safe to serve after a crash or a missed delta.
func (s *Service) Leaderboard(ctx context.Context, eventID string, limit int) ([]model.Entry, error) {
	if limit > s.maxLeaderboardLimit {
		limit = s.maxLeaderboardLimit
	}
	aggs, err := s.ledger.Aggregates(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return rank.Build(aggs, limit), nil
}

// Transactions returns an account's transaction log, oldest first.
func (s *Service) Transactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	return s.ledger.Transactions(ctx, accountID)
}

// Reconcile runs the balance/log invariant check for one account.
func (s *Service) Reconcile(ctx context.Context, accountID string) (model.Reconciliation, error) {
	return s.ledger.Reconcile(ctx, accountID)
}

// Subscribe registers a live leaderboard delta stream for an event.
func (s *Service) Subscribe(ctx context.Context, eventID string) *notify.Subscription {
	return s.broker.Subscribe(ctx, eventID)
}

// Store exposes the resolved ledger store for the wire surface. Valid
// after Start.
func (s *Service) Store() store.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger
}

// Simulated reports whether responses are served from the non-durable
// local simulation.
func (s *Service) Simulated() bool {
	return s.ledger.Simulated()
}

// MaxLeaderboardLimit exposes the configured cap for the API layer.
func (s *Service) MaxLeaderboardLimit() int {
	return s.maxLeaderboardLimit
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":    s.started,
		"store_mode": s.storeCfg.Mode,
	}
	if s.started {
		stats["simulated"] = s.ledger.Simulated()
		stats["subscribers"] = s.broker.SubscriberCount()
		stats["dedupe_entries"] = s.deduper.Size()
	}
	return stats
}

// reconcileLoop sweeps every account on a ticker. A violation freezes the
// account inside the store; this loop only surfaces it to operators.
func (s *Service) reconcileLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.reconcileInterval)
	defer cancel()

	ids, err := s.ledger.AccountIDs(ctx)
	if err != nil {
		s.logger.Warn(ctx, "reconciliation sweep could not list accounts", logger.Error(err))
		return
	}
	for _, id := range ids {
		if _, err := s.ledger.Reconcile(ctx, id); err != nil {
			if errors.Is(err, store.ErrInvariantViolation) {
				s.logger.Error(ctx, "ledger invariant violation; account frozen",
					logger.String("account_id", id), logger.Error(err))
				continue
			}
			s.logger.Warn(ctx, "reconciliation check failed",
				logger.String("account_id", id), logger.Error(err))
		}
	}
}

func validateBid(req PlaceBidRequest) error {
	switch {
	case req.AccountID == "":
		return store.ErrEmptyAccountID
	case strings.TrimSpace(req.EventID) == "":
		return ErrEmptyEventID
	case strings.TrimSpace(req.Title) == "":
		return ErrEmptySongTitle
	case req.Amount <= 0:
		return store.ErrInvalidAmount
	}
	return nil
}

func rejectionCause(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, store.ErrAccountFrozen):
		return "frozen"
	case errors.Is(err, store.ErrUnavailable):
		return "store_unavailable"
	default:
		return "store_error"
	}
}
