// Package memory implements the ledger Store as a process-local simulation.
//
// This store exists so the engine keeps working when no authoritative
// ledger is reachable: it is explicitly non-durable, holds everything in
// maps, and reports Simulated() == true so every response built on it can
// be marked as such.
//
// Serialization is scoped, not global: each account and each song
// aggregate carries its own mutex, so bids on different accounts and songs
// proceed without blocking each other. The store-wide lock only guards map
// membership and the idempotency set.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/encorefm/encore/internal/adapters/store"
	"github.com/encorefm/encore/internal/domain/model"
	"github.com/encorefm/encore/pkg/metrics"
)

type account struct {
	mu        sync.Mutex
	id        string
	balance   int64
	updatedAt time.Time
	frozen    bool
	log       []model.Transaction
}

type aggregate struct {
	mu      sync.Mutex
	agg     model.SongAggregate
	bidders map[string]struct{}
	bids    []model.BidRecord
}

// Store is the in-memory Store implementation.
type Store struct {
	mu          sync.RWMutex
	accounts    map[string]*account
	events      map[string]map[string]*aggregate // eventID -> normalized key -> aggregate
	idempotency map[string]struct{}
	frozenCount int
	aggCount    int
	closed      bool

	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New constructs an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		accounts:    make(map[string]*account),
		events:      make(map[string]map[string]*aggregate),
		idempotency: make(map[string]struct{}),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetBalance implements Store.GetBalance. Unknown accounts read as 0.
func (s *Store) GetBalance(ctx context.Context, accountID string) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if accountID == "" {
		return 0, store.ErrEmptyAccountID
	}

	s.mu.RLock()
	acct, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if !ok {
		return 0, nil
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.balance, nil
}

// Credit implements Store.Credit.
func (s *Store) Credit(ctx context.Context, req store.CreditRequest) (model.Balance, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreOpLatency("credit", float64(time.Since(start).Milliseconds()))
	}()

	if err := s.ready(ctx); err != nil {
		return model.Balance{}, err
	}
	if err := validateMutation(req.AccountID, req.Amount, req.Reason); err != nil {
		return model.Balance{}, err
	}
	if err := s.reserveIdempotencyKey(req.IdempotencyKey); err != nil {
		return model.Balance{}, err
	}

	acct := s.getOrCreateAccount(req.AccountID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if acct.frozen {
		s.releaseIdempotencyKey(req.IdempotencyKey)
		return model.Balance{}, store.ErrAccountFrozen
	}

	now := s.now()
	acct.balance += req.Amount
	acct.updatedAt = now
	acct.log = append(acct.log, model.Transaction{
		ID:             uuid.NewString(),
		AccountID:      req.AccountID,
		Delta:          req.Amount,
		Reason:         req.Reason,
		Description:    req.Description,
		EventID:        req.EventID,
		SongID:         req.SongID,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
	})
	return model.Balance{AccountID: acct.id, Tokens: acct.balance, UpdatedAt: now}, nil
}

// Debit implements Store.Debit. The balance check, the subtraction and the
// log append all happen under the account lock, so a concurrent debit can
// never observe an intermediate state.
func (s *Store) Debit(ctx context.Context, req store.DebitRequest) (model.Balance, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreOpLatency("debit", float64(time.Since(start).Milliseconds()))
	}()

	if err := s.ready(ctx); err != nil {
		return model.Balance{}, err
	}
	if err := validateMutation(req.AccountID, req.Amount, req.Reason); err != nil {
		return model.Balance{}, err
	}
	if err := s.reserveIdempotencyKey(req.IdempotencyKey); err != nil {
		return model.Balance{}, err
	}

	acct := s.getOrCreateAccount(req.AccountID)
	acct.mu.Lock()
	defer acct.mu.Unlock()

	if acct.frozen {
		s.releaseIdempotencyKey(req.IdempotencyKey)
		return model.Balance{}, store.ErrAccountFrozen
	}
	if acct.balance < req.Amount {
		s.releaseIdempotencyKey(req.IdempotencyKey)
		metrics.RecordStoreOpError("debit")
		return model.Balance{}, &store.InsufficientFundsError{Current: acct.balance, Requested: req.Amount}
	}

	now := s.now()
	acct.balance -= req.Amount
	acct.updatedAt = now
	acct.log = append(acct.log, model.Transaction{
		ID:             uuid.NewString(),
		AccountID:      req.AccountID,
		Delta:          -req.Amount,
		Reason:         req.Reason,
		Description:    req.Description,
		EventID:        req.EventID,
		SongID:         req.SongID,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
	})
	return model.Balance{AccountID: acct.id, Tokens: acct.balance, UpdatedAt: now}, nil
}

// RecordBid implements Store.RecordBid.
func (s *Store) RecordBid(ctx context.Context, req store.BidRequest) (store.BidOutcome, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreOpLatency("record_bid", float64(time.Since(start).Milliseconds()))
	}()

	if err := s.ready(ctx); err != nil {
		return store.BidOutcome{}, err
	}
	if req.AccountID == "" {
		return store.BidOutcome{}, store.ErrEmptyAccountID
	}
	if req.Amount <= 0 {
		return store.BidOutcome{}, store.ErrInvalidAmount
	}

	agg := s.getOrCreateAggregate(req)

	agg.mu.Lock()
	defer agg.mu.Unlock()

	rec := model.BidRecord{
		ID:        uuid.NewString(),
		AccountID: req.AccountID,
		SongID:    agg.agg.ID,
		Amount:    req.Amount,
		CreatedAt: s.now(),
	}
	agg.bids = append(agg.bids, rec)
	agg.bidders[req.AccountID] = struct{}{}
	agg.agg.TotalTokens += req.Amount
	agg.agg.BidderCount = len(agg.bidders)

	return store.BidOutcome{Aggregate: agg.agg, Record: rec}, nil
}

// Aggregates implements Store.Aggregates.
func (s *Store) Aggregates(ctx context.Context, eventID string) ([]model.SongAggregate, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	byKey := s.events[eventID]
	aggs := make([]*aggregate, 0, len(byKey))
	for _, a := range byKey {
		aggs = append(aggs, a)
	}
	s.mu.RUnlock()

	out := make([]model.SongAggregate, 0, len(aggs))
	for _, a := range aggs {
		a.mu.Lock()
		out = append(out, a.agg)
		a.mu.Unlock()
	}
	return out, nil
}

// Transactions implements Store.Transactions.
func (s *Store) Transactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	acct, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	out := make([]model.Transaction, len(acct.log))
	copy(out, acct.log)
	return out, nil
}

// AccountIDs implements Store.AccountIDs.
func (s *Store) AccountIDs(ctx context.Context) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	return ids, nil
}

// Reconcile implements Store.Reconcile. A mismatch freezes the account:
// the violation is reported, never silently repaired.
func (s *Store) Reconcile(ctx context.Context, accountID string) (model.Reconciliation, error) {
	if err := s.ready(ctx); err != nil {
		return model.Reconciliation{}, err
	}

	s.mu.RLock()
	acct, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if !ok {
		return model.Reconciliation{AccountID: accountID}, nil
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	var sum int64
	for _, tx := range acct.log {
		sum += tx.Delta
	}
	rec := model.Reconciliation{
		AccountID: accountID,
		Balance:   acct.balance,
		LogSum:    sum,
		Frozen:    acct.frozen,
	}
	if rec.Consistent() {
		return rec, nil
	}

	if !acct.frozen {
		acct.frozen = true
		s.mu.Lock()
		s.frozenCount++
		metrics.UpdateFrozenAccounts(s.frozenCount)
		s.mu.Unlock()
	}
	rec.Frozen = true
	metrics.RecordReconciliationFailure()
	return rec, &store.InvariantError{AccountID: accountID, Balance: acct.balance, LogSum: sum}
}

// Simulated reports true: this store is the local ephemeral simulation.
func (s *Store) Simulated() bool { return true }

// Close marks the store closed; subsequent operations fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) getOrCreateAccount(accountID string) *account {
	s.mu.RLock()
	acct, ok := s.accounts[accountID]
	s.mu.RUnlock()
	if ok {
		return acct
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok = s.accounts[accountID]; ok {
		return acct
	}
	acct = &account{id: accountID}
	s.accounts[accountID] = acct
	return acct
}

func (s *Store) getOrCreateAggregate(req store.BidRequest) *aggregate {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKey, ok := s.events[req.EventID]
	if !ok {
		byKey = make(map[string]*aggregate)
		s.events[req.EventID] = byKey
	}
	if agg, ok := byKey[req.Key]; ok {
		return agg
	}

	agg := &aggregate{
		agg: model.SongAggregate{
			ID:          uuid.NewString(),
			EventID:     req.EventID,
			Title:       req.Title,
			Artist:      req.Artist,
			Key:         req.Key,
			FirstSeenAt: s.now(),
		},
		bidders: make(map[string]struct{}),
	}
	byKey[req.Key] = agg
	s.aggCount++
	metrics.UpdateSongAggregates(s.aggCount)
	return agg
}

// reserveIdempotencyKey claims key before the mutation is applied; callers
// release it again on any failure path so a retry can succeed.
func (s *Store) reserveIdempotencyKey(key string) error {
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.idempotency[key]; ok {
		return store.ErrDuplicateIdempotencyKey
	}
	s.idempotency[key] = struct{}{}
	return nil
}

func (s *Store) releaseIdempotencyKey(key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idempotency, key)
}

func validateMutation(accountID string, amount int64, reason model.Reason) error {
	if accountID == "" {
		return store.ErrEmptyAccountID
	}
	if amount <= 0 {
		return store.ErrInvalidAmount
	}
	if !reason.Valid() {
		return store.ErrInvalidReason
	}
	return nil
}
