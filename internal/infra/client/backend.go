// Package client talks to the Graminate backend REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/graminate/finance-bfa-go/internal/domain"
	"github.com/graminate/finance-bfa-go/internal/infra/resilience"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

// maxBodyBytes caps how much of a backend response is read.
const maxBodyBytes = 16 << 20

// Backend is the shared transport for every backend resource client.
// Each call gets a span, passes through the circuit breaker and bulkhead,
// and is retried with backoff unless the failure is permanent (4xx).
type Backend struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	cfg        resilience.Config
	logger     *zap.Logger
}

// NewBackend creates the backend transport. baseURL includes any API prefix,
// e.g. "http://localhost:3001/api".
func NewBackend(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Backend {
	return &Backend{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:        cfg,
		logger:     logger,
	}
}

// BreakerState exposes the circuit breaker state for health checks.
func (b *Backend) BreakerState() string {
	return b.cb.State().String()
}

// Health reports the backend as seen through the circuit breaker:
// closed is healthy, half-open degraded, open unhealthy.
func (b *Backend) Health() domain.ServiceHealth {
	h := domain.ServiceHealth{Name: "graminate-backend", Detail: "circuit " + b.BreakerState()}
	switch b.cb.State() {
	case gobreaker.StateOpen:
		h.Status = "unhealthy"
	case gobreaker.StateHalfOpen:
		h.Status = "degraded"
	default:
		h.Status = "healthy"
	}
	return h
}

// IsBreakerSuccess tells the circuit breaker which errors are the caller's
// problem rather than the backend's.
func IsBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var notFound *domain.ErrNotFound
	var unauthorized *domain.ErrUnauthorized
	var forbidden *domain.ErrForbidden
	return errors.As(err, &notFound) || errors.As(err, &unauthorized) || errors.As(err, &forbidden) ||
		errors.Is(err, context.Canceled)
}

// getJSON fetches path and returns the raw body of a 200 response.
func (b *Backend) getJSON(ctx context.Context, service, resource, id, path string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Backend.GET "+service, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("backend.service", service),
		attribute.String("user.id", id),
	)

	if err := b.bulkhead.Acquire(ctx); err != nil {
		return nil, b.wrapErr(service, err)
	}
	defer b.bulkhead.Release()

	result, err := b.cb.Execute(func() (any, error) {
		var body []byte
		innerErr := resilience.RetryWithBackoff(ctx, b.cfg, func() error {
			var err error
			body, err = b.do(ctx, resource, id, path)
			return err
		})
		if innerErr != nil {
			return nil, innerErr
		}
		return body, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, b.wrapErr(service, err)
	}

	return result.([]byte), nil
}

func (b *Backend) do(ctx context.Context, resource, id, path string) ([]byte, error) {
	url := b.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if token := domain.TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	reqID := middleware.GetReqID(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	req.Header.Set("X-Request-ID", reqID)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.logger.Warn("backend: request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, resilience.Permanent(&domain.ErrNotFound{Resource: resource, ID: id})
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, resilience.Permanent(&domain.ErrUnauthorized{Message: "backend rejected credentials"})
	case resp.StatusCode == http.StatusForbidden:
		return nil, resilience.Permanent(&domain.ErrForbidden{Action: "read " + resource})
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return nil, resilience.Permanent(fmt.Errorf("backend returned status %d for %s", resp.StatusCode, path))
	default:
		b.logger.Warn("backend: unexpected status",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("backend returned status %d for %s", resp.StatusCode, path)
	}
}

// wrapErr maps transport failures onto domain errors. Caller-side errors
// (not found, auth) pass through untouched.
func (b *Backend) wrapErr(service string, err error) error {
	var notFound *domain.ErrNotFound
	var unauthorized *domain.ErrUnauthorized
	var forbidden *domain.ErrForbidden
	switch {
	case errors.As(err, &notFound), errors.As(err, &unauthorized), errors.As(err, &forbidden):
		return err
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return &domain.ErrCircuitOpen{Service: service}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ErrTimeout{Operation: service}
	default:
		return &domain.ErrExternalService{Service: service, Err: err}
	}
}

// decodeList accepts either a bare JSON array or an object wrapping the
// array under key, e.g. {"sales": [...]}. Elements are decoded one by one:
// an element that does not fit T is replaced by malformed and counted, so
// one bad row never loses the rest of the list.
func decodeList[T any](body []byte, key string, malformed T) ([]T, int, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, 0, nil
	}

	raw := json.RawMessage(trimmed)
	if trimmed[0] != '[' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, 0, err
		}
		var ok bool
		raw, ok = envelope[key]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return []T{}, 0, nil
		}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, 0, err
	}

	items := make([]T, 0, len(elems))
	bad := 0
	for _, elem := range elems {
		var item T
		if err := json.Unmarshal(elem, &item); err != nil {
			items = append(items, malformed)
			bad++
			continue
		}
		items = append(items, item)
	}
	return items, bad, nil
}
