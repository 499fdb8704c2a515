// Package remote implements the ledger Store as an authenticated HTTP
// client against another encore instance's ledger surface.
//
// The remote peer runs the same engine over a durable store, which is what
// makes this mode authoritative: aggregation happens in one code path no
// matter which side of the wire it runs on. Failures here are never
// silently substituted with local state; every transport or auth problem
// surfaces wrapped in store.ErrUnavailable.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/encorefm/encore/internal/adapters/store"
	"github.com/encorefm/encore/internal/domain/model"
)

const defaultTimeout = 10 * time.Second

// Store is the remote Store implementation.
type Store struct {
	base   *url.URL
	token  string
	client *http.Client
}

var _ store.Store = (*Store)(nil)

// New builds a client for the ledger service at baseURL. token is the
// bearer credential presented on every call.
func New(baseURL, token string, opts ...Option) (*Store, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ledger url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ledger url %q must be absolute", baseURL)
	}
	s := &Store{
		base:   base,
		token:  token,
		client: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// wireError is the ledger surface's error envelope.
type wireError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	AccountID string `json:"account_id,omitempty"`
	Current   int64  `json:"current,omitempty"`
	Requested int64  `json:"requested,omitempty"`
	Balance   int64  `json:"balance,omitempty"`
	LogSum    int64  `json:"log_sum,omitempty"`
}

type balanceResponse struct {
	Balance model.Balance `json:"balance"`
}

type bidResponse struct {
	Aggregate model.SongAggregate `json:"aggregate"`
	Record    model.BidRecord     `json:"record"`
}

type accountsResponse struct {
	AccountIDs []string `json:"account_ids"`
}

type reconcileResponse struct {
	Reconciliation model.Reconciliation `json:"reconciliation"`
	Code           string               `json:"code,omitempty"`
}

// GetBalance implements Store.GetBalance.
func (s *Store) GetBalance(ctx context.Context, accountID string) (int64, error) {
	if accountID == "" {
		return 0, store.ErrEmptyAccountID
	}
	var out balanceResponse
	if err := s.do(ctx, http.MethodGet, "/ledger/accounts/"+url.PathEscape(accountID)+"/balance", nil, &out); err != nil {
		return 0, err
	}
	return out.Balance.Tokens, nil
}

// Credit implements Store.Credit.
func (s *Store) Credit(ctx context.Context, req store.CreditRequest) (model.Balance, error) {
	var out balanceResponse
	if err := s.do(ctx, http.MethodPost, "/ledger/credit", creditWire(req), &out); err != nil {
		return model.Balance{}, err
	}
	return out.Balance, nil
}

// Debit implements Store.Debit.
func (s *Store) Debit(ctx context.Context, req store.DebitRequest) (model.Balance, error) {
	var out balanceResponse
	if err := s.do(ctx, http.MethodPost, "/ledger/debit", debitWire(req), &out); err != nil {
		return model.Balance{}, err
	}
	return out.Balance, nil
}

// RecordBid implements Store.RecordBid.
func (s *Store) RecordBid(ctx context.Context, req store.BidRequest) (store.BidOutcome, error) {
	var out bidResponse
	body := map[string]any{
		"account_id": req.AccountID,
		"event_id":   req.EventID,
		"title":      req.Title,
		"artist":     req.Artist,
		"key":        req.Key,
		"amount":     req.Amount,
	}
	if err := s.do(ctx, http.MethodPost, "/ledger/bids", body, &out); err != nil {
		return store.BidOutcome{}, err
	}
	return store.BidOutcome{Aggregate: out.Aggregate, Record: out.Record}, nil
}

// Aggregates implements Store.Aggregates.
func (s *Store) Aggregates(ctx context.Context, eventID string) ([]model.SongAggregate, error) {
	var out []model.SongAggregate
	path := "/ledger/events/" + url.PathEscape(eventID) + "/aggregates"
	if err := s.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Transactions implements Store.Transactions.
func (s *Store) Transactions(ctx context.Context, accountID string) ([]model.Transaction, error) {
	var out []model.Transaction
	path := "/ledger/accounts/" + url.PathEscape(accountID) + "/transactions"
	if err := s.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AccountIDs implements Store.AccountIDs.
func (s *Store) AccountIDs(ctx context.Context) ([]string, error) {
	var out accountsResponse
	if err := s.do(ctx, http.MethodGet, "/ledger/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out.AccountIDs, nil
}

// Reconcile implements Store.Reconcile.
func (s *Store) Reconcile(ctx context.Context, accountID string) (model.Reconciliation, error) {
	var out reconcileResponse
	path := "/ledger/accounts/" + url.PathEscape(accountID) + "/reconcile"
	if err := s.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return model.Reconciliation{}, err
	}
	rec := out.Reconciliation
	if out.Code == store.CodeInvariantViolation {
		return rec, &store.InvariantError{AccountID: rec.AccountID, Balance: rec.Balance, LogSum: rec.LogSum}
	}
	return rec, nil
}

// Simulated reports false: the remote ledger is authoritative.
func (s *Store) Simulated() bool { return false }

// Close implements Store.Close.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do runs one authenticated request and decodes either the success payload
// or the error envelope.
func (s *Store) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	u := *s.base
	u.Path, _ = url.JoinPath(u.Path, path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", store.ErrUnavailable, err)
		}
		return nil
	}

	var we wireError
	if err := json.NewDecoder(resp.Body).Decode(&we); err != nil || we.Code == "" {
		return fmt.Errorf("%w: ledger returned status %d", store.ErrUnavailable, resp.StatusCode)
	}
	if mapped := store.FromCode(we.Code, we.AccountID, we.Current, we.Requested, we.Balance, we.LogSum); mapped != nil {
		return mapped
	}
	return fmt.Errorf("%w: %s: %s", store.ErrUnavailable, we.Code, we.Message)
}

func creditWire(req store.CreditRequest) map[string]any {
	return map[string]any{
		"account_id":      req.AccountID,
		"amount":          req.Amount,
		"reason":          req.Reason,
		"description":     req.Description,
		"event_id":        req.EventID,
		"song_id":         req.SongID,
		"idempotency_key": req.IdempotencyKey,
	}
}

func debitWire(req store.DebitRequest) map[string]any {
	return map[string]any{
		"account_id":      req.AccountID,
		"amount":          req.Amount,
		"reason":          req.Reason,
		"description":     req.Description,
		"event_id":        req.EventID,
		"song_id":         req.SongID,
		"idempotency_key": req.IdempotencyKey,
	}
}
