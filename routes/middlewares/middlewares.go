package middlewares

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/ptarchi/gridforms/httpx"
	"github.com/ptarchi/gridforms/log"
)

type ctxKey int

const accountKey ctxKey = iota

// Session verifies the signed session cookie (or bearer header) and puts the
// connected account id on the request context.
func Session(auth *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return chi.Chain(jwtauth.Verifier(auth), authenticate).Handler(next)
	}
}

func authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			httpx.LogStatusMsg(w, r, http.StatusUnauthorized, log.DebugLevel, "session.token", "Not authenticated")
			return
		}

		accountID, ok := claims["account_id"].(string)
		if !ok || accountID == "" {
			httpx.LogStatusMsg(w, r, http.StatusUnauthorized, log.DebugLevel, "session.account_claim", "Not authenticated")
			return
		}

		ctx := context.WithValue(r.Context(), accountKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccountID returns the authenticated account id, or "" outside a Session
// chain.
func AccountID(r *http.Request) string {
	id, _ := r.Context().Value(accountKey).(string)
	return id
}
