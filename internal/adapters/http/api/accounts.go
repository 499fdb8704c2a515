package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type balanceView struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
	Simulated bool   `json:"simulated"`
}

// handleGetBalance handles GET /api/accounts/{accountID}/balance. Unknown
// accounts read as zero rather than 404 so clients need no signup step.
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if !canAccessAccount(r.Context(), accountID) {
		writeError(w, http.StatusForbidden, "forbidden", ErrForbidden)
		return
	}

	balance, err := s.engine.GetBalance(r.Context(), accountID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{
		AccountID: accountID,
		Balance:   balance,
		Simulated: s.engine.Simulated(),
	})
}

// handleGetTransactions handles GET /api/accounts/{accountID}/transactions.
func (s *Server) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if !canAccessAccount(r.Context(), accountID) {
		writeError(w, http.StatusForbidden, "forbidden", ErrForbidden)
		return
	}

	txs, err := s.engine.Transactions(r.Context(), accountID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id":   accountID,
		"transactions": txs,
		"simulated":    s.engine.Simulated(),
	})
}

// handleReconcile handles POST /api/accounts/{accountID}/reconcile for
// admin tooling. An invariant violation reports the frozen state with the
// mismatching sums instead of a bare 500.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	rec, err := s.engine.Reconcile(r.Context(), accountID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
