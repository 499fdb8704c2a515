package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in the token's "role" claim.
const (
	// RoleListener may bid as itself and read its own ledger data.
	RoleListener = "listener"
	// RoleService may credit accounts, reconcile, and use the ledger wire
	// surface. Issued to the payment collaborator, admin tooling and peer
	// instances.
	RoleService = "service"
)

type ctxKey int

const identityKey ctxKey = iota

// Identity is the authenticated caller extracted from the bearer token.
type Identity struct {
	AccountID string
	Role      string
}

// Auth verifies bearer tokens and attaches the caller identity to the
// request context.
type Auth struct {
	secret   []byte
	disabled bool
}

// NewAuth builds the token verifier. With disabled set, verification is
// skipped and the identity comes from the X-Account-ID header with the
// service role. Development only.
func NewAuth(secret string, disabled bool) *Auth {
	return &Auth{secret: []byte(secret), disabled: disabled}
}

// Middleware authenticates the request and stores the Identity in context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.disabled {
			id := Identity{AccountID: r.Header.Get("X-Account-ID"), Role: RoleService}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
			return
		}

		id, err := a.verify(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// RequireService rejects callers whose token does not carry the service
// role. Must run after Middleware.
func (a *Auth) RequireService(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := IdentityFrom(r.Context()); !ok || id.Role != RoleService {
			writeError(w, http.StatusForbidden, "forbidden", ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Auth) verify(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrUnauthorized
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" {
		return Identity{}, ErrUnauthorized
	}
	if role == "" {
		role = RoleListener
	}
	return Identity{AccountID: sub, Role: role}, nil
}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the authenticated caller, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// canAccessAccount reports whether the caller may read accountID's data.
// Listeners see only themselves; services see everything.
func canAccessAccount(ctx context.Context, accountID string) bool {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return false
	}
	return id.Role == RoleService || id.AccountID == accountID
}
