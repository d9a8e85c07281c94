package domain

import "context"

// UserProfile is the subset of GET /user/:id the BFA relies on.
type UserProfile struct {
	UserID       int64    `json:"user_id"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Email        string   `json:"email,omitempty"`
	BusinessName string   `json:"business_name,omitempty"`
	Type         string   `json:"type,omitempty"`
	SubTypes     []string `json:"sub_type"`
}

type tokenKey struct{}

// ContextWithToken stores the caller's bearer token so outbound backend
// calls can forward it.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token stored by ContextWithToken.
func TokenFromContext(ctx context.Context) string {
	v, _ := ctx.Value(tokenKey{}).(string)
	return v
}
