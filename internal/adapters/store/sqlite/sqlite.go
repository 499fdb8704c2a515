// Package sqlite implements the ledger Store on SQLite (modernc.org/sqlite,
// no cgo). This is the durable backing for authoritative deployments: every
// mutation runs inside one SQL transaction that pairs the balance change
// with its log entry, so a crash between the two is impossible by
// construction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/encorefm/encore/internal/adapters/store"
	"github.com/encorefm/encore/internal/domain/model"
	"github.com/encorefm/encore/pkg/metrics"
)

// timeFormat is how timestamps are persisted. RFC3339Nano round-trips
// through TEXT columns losslessly and sorts lexicographically.
const timeFormat = time.RFC3339Nano

// Store is the SQLite-backed Store implementation.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
// ":memory:" works for tests.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// A single writer connection sidesteps SQLITE_BUSY between concurrent
	// write transactions; SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	for _, stmt := range Migrations() {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply migration: %w", err)
		}
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetBalance implements Store.GetBalance.
func (s *Store) GetBalance(ctx context.Context, accountID string) (int64, error) {
	if accountID == "" {
		return 0, store.ErrEmptyAccountID
	}
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE account_id = ?`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// Credit implements Store.Credit.
func (s *Store) Credit(ctx context.Context, req store.CreditRequest) (model.Balance, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreOpLatency("credit", float64(time.Since(start).Milliseconds()))
	}()
	if err := validateMutation(req.AccountID, req.Amount, req.Reason); err != nil {
		return model.Balance{}, err
	}
	return s.applyDelta(ctx, req.AccountID, req.Amount, req.Reason, req.Description,
		req.EventID, req.SongID, req.IdempotencyKey)
}

// Debit implements Store.Debit.
func (s *Store) Debit(ctx context.Context, req store.DebitRequest) (model.Balance, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreOpLatency("debit", float64(time.Since(start).Milliseconds()))
	}()
	if err := validateMutation(req.AccountID, req.Amount, req.Reason); err != nil {
		return model.Balance{}, err
	}
	return s.applyDelta(ctx, req.AccountID, -req.Amount, req.Reason, req.Description,
		req.EventID, req.SongID, req.IdempotencyKey)
}

// applyDelta performs a signed balance mutation and its log append as one
// SQL transaction. delta > 0 credits, delta < 0 debits. Inputs are already
// validated by Credit/Debit against the caller-supplied amount, before the
// debit sign flip.
func (s *Store) applyDelta(ctx context.Context, accountID string, delta int64, reason model.Reason, description, eventID, songID, idemKey string) (model.Balance, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Balance{}, fmt.Errorf("begin: %w", storeErr(err))
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var (
		balance int64
		frozen  bool
	)
	now := s.now()
	err = tx.QueryRowContext(ctx,
		`SELECT balance, frozen FROM accounts WHERE account_id = ?`, accountID).
		Scan(&balance, &frozen)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Lazy account creation on first mutation.
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (account_id, balance, updated_at) VALUES (?, 0, ?)`,
			accountID, now.Format(timeFormat)); err != nil {
			return model.Balance{}, fmt.Errorf("create account: %w", storeErr(err))
		}
	case err != nil:
		return model.Balance{}, fmt.Errorf("read account: %w", storeErr(err))
	}

	if frozen {
		return model.Balance{}, store.ErrAccountFrozen
	}
	newBalance := balance + delta
	if newBalance < 0 {
		return model.Balance{}, &store.InsufficientFundsError{Current: balance, Requested: -delta}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = ?, updated_at = ? WHERE account_id = ?`,
		newBalance, now.Format(timeFormat), accountID); err != nil {
		return model.Balance{}, fmt.Errorf("update balance: %w", storeErr(err))
	}

	key := sql.NullString{String: idemKey, Valid: idemKey != ""}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (id, account_id, delta, reason, description, event_id, song_id, idempotency_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), accountID, delta, string(reason), description, eventID, songID, key, now.Format(timeFormat)); err != nil {
		if isUniqueViolation(err) {
			return model.Balance{}, store.ErrDuplicateIdempotencyKey
		}
		return model.Balance{}, fmt.Errorf("append transaction: %w", storeErr(err))
	}

	if err := tx.Commit(); err != nil {
		return model.Balance{}, fmt.Errorf("commit: %w", storeErr(err))
	}
	return model.Balance{AccountID: accountID, Tokens: newBalance, UpdatedAt: now}, nil
}

// RecordBid implements Store.RecordBid.
func (s *Store) RecordBid(ctx context.Context, req store.BidRequest) (store.BidOutcome, error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreOpLatency("record_bid", float64(time.Since(start).Milliseconds()))
	}()

	if req.AccountID == "" {
		return store.BidOutcome{}, store.ErrEmptyAccountID
	}
	if req.Amount <= 0 {
		return store.BidOutcome{}, store.ErrInvalidAmount
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.BidOutcome{}, fmt.Errorf("begin: %w", storeErr(err))
	}
	defer tx.Rollback() //nolint:errcheck

	now := s.now()
	agg, err := findAggregate(ctx, tx, req.EventID, req.Key)
	if errors.Is(err, sql.ErrNoRows) {
		agg = model.SongAggregate{
			ID:          uuid.NewString(),
			EventID:     req.EventID,
			Title:       req.Title,
			Artist:      req.Artist,
			Key:         req.Key,
			FirstSeenAt: now,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO song_aggregates (id, event_id, key, title, artist, total_tokens, bidder_count, first_seen_at)
			 VALUES (?, ?, ?, ?, ?, 0, 0, ?)`,
			agg.ID, agg.EventID, agg.Key, agg.Title, agg.Artist, now.Format(timeFormat)); err != nil {
			return store.BidOutcome{}, fmt.Errorf("create aggregate: %w", storeErr(err))
		}
	} else if err != nil {
		return store.BidOutcome{}, fmt.Errorf("find aggregate: %w", storeErr(err))
	}

	rec := model.BidRecord{
		ID:        uuid.NewString(),
		AccountID: req.AccountID,
		SongID:    agg.ID,
		Amount:    req.Amount,
		CreatedAt: now,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO bid_records (id, account_id, song_id, amount, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.AccountID, rec.SongID, rec.Amount, now.Format(timeFormat)); err != nil {
		return store.BidOutcome{}, fmt.Errorf("insert bid record: %w", storeErr(err))
	}

	// bidder_count is recomputed from the audit trail so repeat bids from
	// one account never inflate it.
	if _, err := tx.ExecContext(ctx,
		`UPDATE song_aggregates
		 SET total_tokens = total_tokens + ?,
		     bidder_count = (SELECT COUNT(DISTINCT account_id) FROM bid_records WHERE song_id = ?)
		 WHERE id = ?`,
		req.Amount, agg.ID, agg.ID); err != nil {
		return store.BidOutcome{}, fmt.Errorf("update aggregate: %w", storeErr(err))
	}

	agg, err = findAggregate(ctx, tx, req.EventID, req.Key)
	if err != nil {
		return store.BidOutcome{}, fmt.Errorf("reload aggregate: %w", storeErr(err))
	}

	if err := tx.Commit(); err != nil {
		return store.BidOutcome{}, fmt.Errorf("commit: %w", storeErr(err))
	}
	return store.BidOutcome{Aggregate: agg, Record: rec}, nil
}

// Aggregates implements Store.Aggregates.
func (s *Store) Aggregates(ctx context.Context, eventID string) ([]model.SongAggregate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, key, title, artist, total_tokens, bidder_count, first_seen_at
		 FROM song_aggregates WHERE event_id = ?`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list aggregates: %w", storeErr(err))
	}
	defer rows.Close()

	var out []model.SongAggregate
	for rows.Next() {
		var (
			agg       model.SongAggregate
			firstSeen string
		)
		if err := rows.Scan(&agg.ID, &agg.EventID, &agg.Key, &agg.Title, &agg.Artist,
			&agg.TotalTokens, &agg.BidderCount, &firstSeen); err != nil {
			return nil, fmt.Errorf("scan aggregate: %w", err)
		}
		if agg.FirstSeenAt, err = time.Parse(timeFormat, firstSeen); err != nil {
			return nil, fmt.Errorf("parse first_seen_at: %w", err)
		}
		out = append(out, agg)
	}
	return out, rows.Err()
}

// Transactions implements Store.Transactions.
func (s *Store) Transactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, delta, reason, description, event_id, song_id, COALESCE(idempotency_key, ''), created_at
		 FROM transactions WHERE account_id = ? ORDER BY created_at, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", storeErr(err))
	}
	defer rows.Close()

	var out []model.Transaction
	for rows.Next() {
		var (
			t       model.Transaction
			reason  string
			created string
		)
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Delta, &reason, &t.Description,
			&t.EventID, &t.SongID, &t.IdempotencyKey, &created); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Reason = model.Reason(reason)
		if t.CreatedAt, err = time.Parse(timeFormat, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AccountIDs implements Store.AccountIDs.
func (s *Store) AccountIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT account_id FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", storeErr(err))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Reconcile implements Store.Reconcile.
func (s *Store) Reconcile(ctx context.Context, accountID string) (model.Reconciliation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Reconciliation{}, fmt.Errorf("begin: %w", storeErr(err))
	}
	defer tx.Rollback() //nolint:errcheck

	var (
		balance int64
		frozen  bool
	)
	err = tx.QueryRowContext(ctx,
		`SELECT balance, frozen FROM accounts WHERE account_id = ?`, accountID).
		Scan(&balance, &frozen)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reconciliation{AccountID: accountID}, nil
	}
	if err != nil {
		return model.Reconciliation{}, fmt.Errorf("read account: %w", storeErr(err))
	}

	var sum int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(delta), 0) FROM transactions WHERE account_id = ?`, accountID).
		Scan(&sum); err != nil {
		return model.Reconciliation{}, fmt.Errorf("sum deltas: %w", storeErr(err))
	}

	rec := model.Reconciliation{AccountID: accountID, Balance: balance, LogSum: sum, Frozen: frozen}
	if rec.Consistent() {
		return rec, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET frozen = 1 WHERE account_id = ?`, accountID); err != nil {
		return rec, fmt.Errorf("freeze account: %w", storeErr(err))
	}
	if err := tx.Commit(); err != nil {
		return rec, fmt.Errorf("commit: %w", storeErr(err))
	}
	rec.Frozen = true
	metrics.RecordReconciliationFailure()
	return rec, &store.InvariantError{AccountID: accountID, Balance: balance, LogSum: sum}
}

// Simulated reports false: this store is durable.
func (s *Store) Simulated() bool { return false }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func findAggregate(ctx context.Context, tx *sql.Tx, eventID, key string) (model.SongAggregate, error) {
	var (
		agg       model.SongAggregate
		firstSeen string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, event_id, key, title, artist, total_tokens, bidder_count, first_seen_at
		 FROM song_aggregates WHERE event_id = ? AND key = ?`, eventID, key).
		Scan(&agg.ID, &agg.EventID, &agg.Key, &agg.Title, &agg.Artist,
			&agg.TotalTokens, &agg.BidderCount, &firstSeen)
	if err != nil {
		return model.SongAggregate{}, err
	}
	if agg.FirstSeenAt, err = time.Parse(timeFormat, firstSeen); err != nil {
		return model.SongAggregate{}, fmt.Errorf("parse first_seen_at: %w", err)
	}
	return agg, nil
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

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// storeErr tags driver/database failures as unavailability so callers can
// errors.Is against a single sentinel.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}
