package api

import (
	"net/http"

	service "github.com/encorefm/encore/internal/app"
)

// bidRequest mirrors the public schema for POST /api/bids. AccountID is
// honored only for service-role callers; listeners always bid as the
// token's subject.
type bidRequest struct {
	AccountID string `json:"account_id"`
	EventID   string `json:"event_id" validate:"required"`
	Title     string `json:"title" validate:"required"`
	Artist    string `json:"artist"`
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	RequestID string `json:"request_id"`
}

type bidAck struct {
	Status      string `json:"status"`
	Duplicate   bool   `json:"duplicate"`
	Balance     int64  `json:"balance"`
	SongID      string `json:"song_id,omitempty"`
	TotalTokens int64  `json:"total_tokens,omitempty"`
	BidderCount int    `json:"bidder_count,omitempty"`
	Simulated   bool   `json:"simulated"`
}

// handlePostBid handles POST /api/bids.
func (s *Server) handlePostBid(w http.ResponseWriter, r *http.Request) {
	var req bidRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
		return
	}
	accountID := id.AccountID
	if id.Role == RoleService && req.AccountID != "" {
		accountID = req.AccountID
	}

	result, err := s.engine.PlaceBid(r.Context(), service.PlaceBidRequest{
		AccountID: accountID,
		EventID:   req.EventID,
		Title:     req.Title,
		Artist:    req.Artist,
		Amount:    req.Amount,
		RequestID: req.RequestID,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	status := "accepted"
	if result.Duplicate {
		status = "duplicate"
	}
	writeJSON(w, http.StatusOK, bidAck{
		Status:      status,
		Duplicate:   result.Duplicate,
		Balance:     result.Balance.Tokens,
		SongID:      result.SongID,
		TotalTokens: result.TotalTokens,
		BidderCount: result.BidderCount,
		Simulated:   result.Simulated,
	})
}
