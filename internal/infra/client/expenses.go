package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/graminate/finance-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// ExpensesClient fetches expenses from GET /expenses/user/:id.
type ExpensesClient struct {
	backend *Backend
}

// NewExpensesClient creates a new ExpensesClient.
func NewExpensesClient(backend *Backend) *ExpensesClient {
	return &ExpensesClient{backend: backend}
}

// GetExpenses fetches every expense logged by the user.
func (c *ExpensesClient) GetExpenses(ctx context.Context, userID string) ([]domain.ExpenseRecord, error) {
	body, err := c.backend.getJSON(ctx, "expenses", "expenses", userID, "/expenses/user/"+url.PathEscape(userID))
	if err != nil {
		return nil, err
	}

	expenses, bad, err := decodeList(body, "expenses", domain.ExpenseRecord{Malformed: true})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "expenses", Err: fmt.Errorf("decode: %w", err)}
	}
	if bad > 0 {
		c.backend.logger.Warn("backend: undecodable expenses records",
			zap.String("user_id", userID),
			zap.Int("count", bad),
		)
	}
	return expenses, nil
}
