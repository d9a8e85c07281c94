package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/graminate/finance-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// SalesClient fetches sales from GET /sales/user/:id.
type SalesClient struct {
	backend *Backend
}

// NewSalesClient creates a new SalesClient.
func NewSalesClient(backend *Backend) *SalesClient {
	return &SalesClient{backend: backend}
}

// GetSales fetches every sale logged by the user.
func (c *SalesClient) GetSales(ctx context.Context, userID string) ([]domain.SaleRecord, error) {
	body, err := c.backend.getJSON(ctx, "sales", "sales", userID, "/sales/user/"+url.PathEscape(userID))
	if err != nil {
		return nil, err
	}

	sales, bad, err := decodeList(body, "sales", domain.SaleRecord{Malformed: true})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "sales", Err: fmt.Errorf("decode: %w", err)}
	}
	if bad > 0 {
		c.backend.logger.Warn("backend: undecodable sales records",
			zap.String("user_id", userID),
			zap.Int("count", bad),
		)
	}
	return sales, nil
}
