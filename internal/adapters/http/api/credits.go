package api

import (
	"net/http"

	"github.com/encorefm/encore/internal/adapters/store"
	"github.com/encorefm/encore/internal/domain/model"
)

// creditRequest mirrors the schema for POST /api/credits. Issued by the
// payment-completion collaborator and admin tooling, never by listeners.
type creditRequest struct {
	AccountID      string `json:"account_id" validate:"required"`
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	Reason         string `json:"reason" validate:"omitempty,oneof=purchase admin_adjustment reward refund"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key"`
}

// handlePostCredit handles POST /api/credits.
func (s *Server) handlePostCredit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	bal, err := s.engine.Credit(r.Context(), store.CreditRequest{
		AccountID:      req.AccountID,
		Amount:         req.Amount,
		Reason:         model.Reason(req.Reason),
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceView{
		AccountID: bal.AccountID,
		Balance:   bal.Tokens,
		Simulated: s.engine.Simulated(),
	})
}
