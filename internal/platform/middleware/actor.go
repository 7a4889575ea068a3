package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKeyActor struct{}

// Actor attributes mutations to an identity. Authentication is optional on
// this surface; a valid Bearer token sets the actor to its subject, anything
// else leaves the actor empty and the audit layer records "system".
func Actor(signingKey []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || len(signingKey) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
				return signingKey, nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !parsed.Valid {
				logger.WarnContext(r.Context(), "ignoring invalid bearer token", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			subject, err := parsed.Claims.GetSubject()
			if err != nil || subject == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyActor{}, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetActor retrieves the authenticated actor, empty when unauthenticated.
func GetActor(ctx context.Context) string {
	if actor, ok := ctx.Value(contextKeyActor{}).(string); ok {
		return actor
	}
	return ""
}

// WithActor injects an actor identity into a context for tests.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, contextKeyActor{}, actor)
}
