package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/encorefm/encore/internal/adapters/store"
	"github.com/encorefm/encore/internal/domain/model"
)

// The ledger wire surface. A peer instance in remote persistence mode
// drives its Store implementation against these routes, so payload shapes
// here and in the remote store client must stay in lockstep.

type ledgerMutation struct {
	AccountID      string `json:"account_id"`
	Amount         int64  `json:"amount"`
	Reason         string `json:"reason"`
	Description    string `json:"description"`
	EventID        string `json:"event_id"`
	SongID         string `json:"song_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

type ledgerBid struct {
	AccountID string `json:"account_id"`
	EventID   string `json:"event_id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Key       string `json:"key"`
	Amount    int64  `json:"amount"`
}

type ledgerBalance struct {
	Balance model.Balance `json:"balance"`
}

type ledgerBidOutcome struct {
	Aggregate model.SongAggregate `json:"aggregate"`
	Record    model.BidRecord     `json:"record"`
}

type ledgerAccounts struct {
	AccountIDs []string `json:"account_ids"`
}

type ledgerReconciliation struct {
	Reconciliation model.Reconciliation `json:"reconciliation"`
	Code           string               `json:"code,omitempty"`
}

func (s *Server) handleLedgerBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	balance, err := s.ledger.GetBalance(r.Context(), accountID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerBalance{
		Balance: model.Balance{AccountID: accountID, Tokens: balance},
	})
}

func (s *Server) handleLedgerCredit(w http.ResponseWriter, r *http.Request) {
	var req ledgerMutation
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	bal, err := s.ledger.Credit(r.Context(), store.CreditRequest{
		AccountID:      req.AccountID,
		Amount:         req.Amount,
		Reason:         model.Reason(req.Reason),
		Description:    req.Description,
		EventID:        req.EventID,
		SongID:         req.SongID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerBalance{Balance: bal})
}

func (s *Server) handleLedgerDebit(w http.ResponseWriter, r *http.Request) {
	var req ledgerMutation
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	bal, err := s.ledger.Debit(r.Context(), store.DebitRequest{
		AccountID:      req.AccountID,
		Amount:         req.Amount,
		Reason:         model.Reason(req.Reason),
		Description:    req.Description,
		EventID:        req.EventID,
		SongID:         req.SongID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerBalance{Balance: bal})
}

func (s *Server) handleLedgerBid(w http.ResponseWriter, r *http.Request) {
	var req ledgerBid
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	outcome, err := s.ledger.RecordBid(r.Context(), store.BidRequest{
		AccountID: req.AccountID,
		EventID:   req.EventID,
		Title:     req.Title,
		Artist:    req.Artist,
		Key:       req.Key,
		Amount:    req.Amount,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerBidOutcome{
		Aggregate: outcome.Aggregate,
		Record:    outcome.Record,
	})
}

func (s *Server) handleLedgerAggregates(w http.ResponseWriter, r *http.Request) {
	aggs, err := s.ledger.Aggregates(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if aggs == nil {
		aggs = []model.SongAggregate{}
	}
	writeJSON(w, http.StatusOK, aggs)
}

func (s *Server) handleLedgerTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.Transactions(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleLedgerAccounts(w http.ResponseWriter, r *http.Request) {
	ids, err := s.ledger.AccountIDs(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerAccounts{AccountIDs: ids})
}

// handleLedgerReconcile reports an invariant violation as a 200 with the
// violation code set, so the peer can distinguish "checked and failed"
// from transport trouble.
func (s *Server) handleLedgerReconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.Reconcile(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		if errors.Is(err, store.ErrInvariantViolation) {
			writeJSON(w, http.StatusOK, ledgerReconciliation{
				Reconciliation: rec,
				Code:           store.CodeInvariantViolation,
			})
			return
		}
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerReconciliation{Reconciliation: rec})
}
