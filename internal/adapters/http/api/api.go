// Package api declares HTTP contracts and route registration helpers.
//
// Two surfaces live here. /api/* is the public product surface consumed by
// listener clients and admin tooling. /ledger/* is the wire surface of the
// ledger itself, consumed by peer instances running in remote persistence
// mode; its payloads round-trip the typed store errors via wire codes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/encorefm/encore/internal/adapters/notify"
	"github.com/encorefm/encore/internal/adapters/store"
	service "github.com/encorefm/encore/internal/app"
	"github.com/encorefm/encore/internal/domain/model"
)

// Engine bundles the bid-engine operations the public surface needs. Using
// an interface bundle keeps the handler layer loosely coupled to
// implementations in other packages.
type Engine interface {
	GetBalance(ctx context.Context, accountID string) (int64, error)
	Credit(ctx context.Context, req store.CreditRequest) (model.Balance, error)
	PlaceBid(ctx context.Context, req service.PlaceBidRequest) (service.PlaceBidResult, error)
	Leaderboard(ctx context.Context, eventID string, limit int) ([]model.Entry, error)
	Transactions(ctx context.Context, accountID string) ([]model.Transaction, error)
	Reconcile(ctx context.Context, accountID string) (model.Reconciliation, error)
	Subscribe(ctx context.Context, eventID string) *notify.Subscription
	Simulated() bool
	MaxLeaderboardLimit() int
}

// Ledger is the store-level access the wire surface exposes to peers. The
// engine's own store satisfies it.
type Ledger interface {
	GetBalance(ctx context.Context, accountID string) (int64, error)
	Credit(ctx context.Context, req store.CreditRequest) (model.Balance, error)
	Debit(ctx context.Context, req store.DebitRequest) (model.Balance, error)
	RecordBid(ctx context.Context, req store.BidRequest) (store.BidOutcome, error)
	Aggregates(ctx context.Context, eventID string) ([]model.SongAggregate, error)
	Transactions(ctx context.Context, accountID string) ([]model.Transaction, error)
	AccountIDs(ctx context.Context) ([]string, error)
	Reconcile(ctx context.Context, accountID string) (model.Reconciliation, error)
}

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// validate checks DTO struct tags on decoded request bodies.
var validate = validator.New()

// Server wires HTTP routes for the business API and the ledger surface.
type Server struct {
	engine Engine
	ledger Ledger
	stats  StatsProvider
	auth   *Auth

	corsOrigins []string
}

// NewServer creates a new API server with all handlers.
func NewServer(engine Engine, ledger Ledger, stats StatsProvider, auth *Auth, corsOrigins []string) *Server {
	return &Server{
		engine:      engine,
		ledger:      ledger,
		stats:       stats,
		auth:        auth,
		corsOrigins: corsOrigins,
	}
}

// Router builds the route tree. Specific paths first, public surface under
// /api, ledger wire surface under /ledger restricted to the service role.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	r.Get("/healthz", MetricsMiddleware(s.handleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.handleStats, "stats"))

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/accounts/{accountID}/balance", MetricsMiddleware(s.handleGetBalance, "balance"))
		r.Get("/accounts/{accountID}/transactions", MetricsMiddleware(s.handleGetTransactions, "transactions"))
		r.Post("/bids", MetricsMiddleware(s.handlePostBid, "bids"))
		r.Get("/events/{eventID}/leaderboard", MetricsMiddleware(s.handleGetLeaderboard, "leaderboard"))
		r.Get("/events/{eventID}/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireService)
			r.Post("/credits", MetricsMiddleware(s.handlePostCredit, "credits"))
			r.Post("/accounts/{accountID}/reconcile", MetricsMiddleware(s.handleReconcile, "reconcile"))
		})
	})

	r.Route("/ledger", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Use(s.auth.RequireService)

		r.Get("/accounts", MetricsMiddleware(s.handleLedgerAccounts, "ledger_accounts"))
		r.Get("/accounts/{accountID}/balance", MetricsMiddleware(s.handleLedgerBalance, "ledger_balance"))
		r.Get("/accounts/{accountID}/transactions", MetricsMiddleware(s.handleLedgerTransactions, "ledger_transactions"))
		r.Post("/accounts/{accountID}/reconcile", MetricsMiddleware(s.handleLedgerReconcile, "ledger_reconcile"))
		r.Post("/credit", MetricsMiddleware(s.handleLedgerCredit, "ledger_credit"))
		r.Post("/debit", MetricsMiddleware(s.handleLedgerDebit, "ledger_debit"))
		r.Post("/bids", MetricsMiddleware(s.handleLedgerBid, "ledger_bids"))
		r.Get("/events/{eventID}/aggregates", MetricsMiddleware(s.handleLedgerAggregates, "ledger_aggregates"))
	})

	return r
}

// errorResponse is the error envelope shared by both surfaces. The typed
// fields let a peer rebuild the original store error from the code.
type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	AccountID string `json:"account_id,omitempty"`
	Current   int64  `json:"current,omitempty"`
	Requested int64  `json:"requested,omitempty"`
	Balance   int64  `json:"balance,omitempty"`
	LogSum    int64  `json:"log_sum,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeStoreError translates a store or engine error into the envelope,
// carrying the typed fields when present.
func writeStoreError(w http.ResponseWriter, err error) {
	resp := errorResponse{Code: store.Code(err), Message: err.Error()}

	var ife *store.InsufficientFundsError
	if errors.As(err, &ife) {
		resp.Current = ife.Current
		resp.Requested = ife.Requested
	}
	var ive *store.InvariantError
	if errors.As(err, &ive) {
		resp.AccountID = ive.AccountID
		resp.Balance = ive.Balance
		resp.LogSum = ive.LogSum
	}

	writeJSON(w, statusFor(err), resp)
}

// statusFor maps engine and store errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrAccountFrozen),
		errors.Is(err, store.ErrDuplicateIdempotencyKey):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidAmount),
		errors.Is(err, store.ErrInvalidReason),
		errors.Is(err, store.ErrEmptyAccountID),
		errors.Is(err, service.ErrEmptyEventID),
		errors.Is(err, service.ErrEmptySongTitle):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := decodeJSON(r, v); err != nil {
		return err
	}
	if err := validate.Struct(v); err != nil {
		return err
	}
	return nil
}

// decodeJSON skips struct validation. The ledger wire surface uses it so
// the store's own typed validation errors round-trip instead of collapsing
// into a generic bad request.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return ErrBadRequest
	}
	return nil
}
