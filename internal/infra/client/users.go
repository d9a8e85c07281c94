package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/graminate/finance-bfa-go/internal/domain"
)

// UsersClient fetches profiles from GET /user/:id.
type UsersClient struct {
	backend *Backend
}

// NewUsersClient creates a new UsersClient.
func NewUsersClient(backend *Backend) *UsersClient {
	return &UsersClient{backend: backend}
}

// GetUser fetches a user profile. The backend wraps it as {"user": {...}};
// a bare object is accepted too.
func (c *UsersClient) GetUser(ctx context.Context, userID string) (*domain.UserProfile, error) {
	body, err := c.backend.getJSON(ctx, "user", "user", userID, "/user/"+url.PathEscape(userID))
	if err != nil {
		return nil, err
	}

	var envelope struct {
		User *domain.UserProfile `json:"user"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &domain.ErrExternalService{Service: "user", Err: fmt.Errorf("decode: %w", err)}
	}
	if envelope.User != nil {
		return envelope.User, nil
	}

	var profile domain.UserProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, &domain.ErrExternalService{Service: "user", Err: fmt.Errorf("decode: %w", err)}
	}
	return &profile, nil
}
