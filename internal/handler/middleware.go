package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/graminate/finance-bfa-go/internal/domain"
	"github.com/graminate/finance-bfa-go/internal/service"

	"go.uber.org/zap"
)

type contextKey string

const principalKey contextKey = "principal"

// BearerAuthMiddleware requires an Authorization: Bearer header and stores the
// token in the context so backend calls can forward it. When the verifier is
// enabled the token is checked locally and its user is stored too.
func BearerAuthMiddleware(verifier *service.TokenVerifier, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			ctx := domain.ContextWithToken(r.Context(), tokenString)

			if verifier.Enabled() {
				claims, err := verifier.Verify(tokenString)
				if err != nil {
					logger.Warn("auth: invalid or expired token",
						zap.String("path", r.URL.Path),
						zap.String("remote_addr", r.RemoteAddr),
						zap.Error(err),
					)
					writeError(w, http.StatusUnauthorized, err.Error())
					return
				}
				ctx = context.WithValue(ctx, principalKey, claims.Principal())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext returns the verified user id, or "" when tokens are
// not verified locally.
func PrincipalFromContext(ctx context.Context) string {
	v, _ := ctx.Value(principalKey).(string)
	return v
}

// authorizeUser rejects access to another user's data when the token was verified.
func authorizeUser(ctx context.Context, userID string) error {
	principal := PrincipalFromContext(ctx)
	if principal != "" && principal != userID {
		return &domain.ErrForbidden{Action: "access to user " + userID}
	}
	return nil
}
