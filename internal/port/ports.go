// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/graminate/finance-bfa-go/internal/domain"
)

// SalesFetcher retrieves a user's logged sales.
type SalesFetcher interface {
	GetSales(ctx context.Context, userID string) ([]domain.SaleRecord, error)
}

// ExpensesFetcher retrieves a user's logged expenses.
type ExpensesFetcher interface {
	GetExpenses(ctx context.Context, userID string) ([]domain.ExpenseRecord, error)
}

// UserFetcher retrieves a user's profile.
type UserFetcher interface {
	GetUser(ctx context.Context, userID string) (*domain.UserProfile, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
