package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	id "dplay/pkg/domain"
	"dplay/pkg/requestcontext"
)

// TokenValidator validates a bearer token and returns the caller identity
// it asserts.
type TokenValidator interface {
	ValidateToken(tokenString string) (id.Identity, error)
}

// RequireCaller authenticates the request via its bearer token and injects
// the caller identity into the context. Requests without a valid token are
// rejected; the ledger's operations all require an authenticated caller.
func RequireCaller(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerPrefix)
			if !ok {
				unauthorized(w)
				return
			}
			caller, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized request - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				unauthorized(w)
				return
			}
			ctx := requestcontext.WithCaller(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"valid bearer token required"}`))
}
