package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/graminate/finance-bfa-go/internal/domain"
	"github.com/graminate/finance-bfa-go/internal/infra/client"
	"github.com/graminate/finance-bfa-go/internal/infra/resilience"

	"go.uber.org/zap"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *client.Backend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 4}
	cb := resilience.NewCircuitBreaker("test-backend", client.IsBreakerSuccess)
	return client.NewBackend(srv.Client(), srv.URL+"/api", cb, cfg, zap.NewNop())
}

func TestSalesClient_DecodesEnvelope(t *testing.T) {
	var gotPath, gotAuth string
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sales":[{"sales_id":1,"sales_date":"2024-03-05","occupation":"Poultry","items_sold":["Eggs"],"quantities_sold":[10],"prices_per_unit":["50"]}]}`))
	})

	ctx := domain.ContextWithToken(context.Background(), "tok-123")
	sales, err := client.NewSalesClient(backend).GetSales(ctx, "42")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotPath != "/api/sales/user/42" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("expected bearer token to be forwarded, got %q", gotAuth)
	}
	if len(sales) != 1 {
		t.Fatalf("expected 1 sale, got %d", len(sales))
	}
	if sales[0].PricesPerUnit[0].OrZero().String() != "50" {
		t.Errorf("expected price 50, got %s", sales[0].PricesPerUnit[0].OrZero())
	}
}

func TestExpensesClient_DecodesBareArray(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected a correlation id header")
		}
		w.Write([]byte(`[{"expense_id":7,"category":"Feed","expense":"200","date_created":"2024-03-06T10:00:00Z","occupation":"Poultry"}]`))
	})

	expenses, err := client.NewExpensesClient(backend).GetExpenses(context.Background(), "42")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(expenses) != 1 || expenses[0].Category != "Feed" {
		t.Fatalf("unexpected expenses %+v", expenses)
	}
}

func TestSalesClient_MalformedRecordDoesNotSpoilList(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"sales_id":1,"sales_date":"2024-03-05","occupation":"Poultry","items_sold":["Eggs"],"quantities_sold":[10],"prices_per_unit":[50]},
			{"sales_id":"2","user_id":"42","sales_date":"2024-03-06","occupation":"Poultry","items_sold":["Eggs"],"quantities_sold":[2],"prices_per_unit":[50]},
			{"sales_id":3,"sales_date":"2024-03-07","occupation":"Poultry","items_sold":"Eggs","quantities_sold":[1],"prices_per_unit":[50]}
		]`))
	})

	sales, err := client.NewSalesClient(backend).GetSales(context.Background(), "42")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sales) != 3 {
		t.Fatalf("expected 3 records, got %d", len(sales))
	}
	if sales[1].ID != 2 || sales[1].UserID != 42 || sales[1].Malformed {
		t.Errorf("expected string ids to be read as numbers, got %+v", sales[1])
	}
	if !sales[2].Malformed {
		t.Errorf("expected the record with a non-list items_sold to be marked malformed, got %+v", sales[2])
	}
	if sales[0].Malformed {
		t.Error("expected the well-formed record to decode")
	}
}

func TestExpensesClient_NonArrayPayloadFails(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"expenses": "unavailable"}`))
	})

	_, err := client.NewExpensesClient(backend).GetExpenses(context.Background(), "42")
	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
}

func TestExpensesClient_EmptyEnvelope(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"expenses": null}`))
	})

	expenses, err := client.NewExpensesClient(backend).GetExpenses(context.Background(), "42")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if expenses == nil || len(expenses) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", expenses)
	}
}

func TestSalesClient_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.NewSalesClient(backend).GetSales(context.Background(), "42")

	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestSalesClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	})

	sales, err := client.NewSalesClient(backend).GetSales(context.Background(), "42")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(sales) != 0 {
		t.Errorf("expected no sales, got %d", len(sales))
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestSalesClient_PersistentFailure(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.NewSalesClient(backend).GetSales(context.Background(), "42")

	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if ext.Service != "sales" {
		t.Errorf("expected service 'sales', got %q", ext.Service)
	}
}

func TestBackend_CircuitOpens(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	sales := client.NewSalesClient(backend)

	var lastErr error
	for i := 0; i < 8; i++ {
		_, lastErr = sales.GetSales(context.Background(), "42")
	}

	var open *domain.ErrCircuitOpen
	if !errors.As(lastErr, &open) {
		t.Fatalf("expected ErrCircuitOpen, got %v", lastErr)
	}
	if backend.BreakerState() != "open" {
		t.Errorf("expected breaker state 'open', got %q", backend.BreakerState())
	}
	if h := backend.Health(); h.Status != "unhealthy" {
		t.Errorf("expected unhealthy backend, got %+v", h)
	}
}

func TestUsersClient_UnwrapsUser(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"user_id":42,"first_name":"Ada","sub_type":["Poultry","Fishery"]}}`))
	})

	user, err := client.NewUsersClient(backend).GetUser(context.Background(), "42")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.UserID != 42 || len(user.SubTypes) != 2 {
		t.Errorf("unexpected profile %+v", user)
	}
}

func TestUsersClient_Unauthorized(t *testing.T) {
	backend := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.NewUsersClient(backend).GetUser(context.Background(), "42")

	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
