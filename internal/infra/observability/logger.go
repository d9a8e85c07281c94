package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a structured zap logger.
// debug -> colorized console; everything else -> compact JSON at that level.
// Unknown levels fall back to info.
func NewLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	if lvl == zapcore.DebugLevel {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	return logger
}

// routeParams are the chi URL parameters copied onto every request log line.
var routeParams = map[string]string{
	"userId":  "user_id",
	"subType": "sub_type",
}

// ZapLoggerMiddleware logs one line per request: the matched route pattern,
// the user and sub-type it was about, and whether the report came back
// partial. 5xx logs at Error, 4xx at Warn, the rest at Info.
func ZapLoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				fields := append(requestFields(r),
					zap.Int("status", status),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("latency", time.Since(start)),
				)
				if ww.Header().Get(PartialHeader) != "" {
					fields = append(fields, zap.Bool("partial", true))
				}

				switch {
				case status >= 500:
					logger.Error("bfa request", fields...)
				case status >= 400:
					logger.Warn("bfa request", fields...)
				default:
					logger.Info("bfa request", fields...)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// PartialHeader is set by handlers that answered from an incomplete ledger.
const PartialHeader = "X-Graminate-Partial"

func requestFields(r *http.Request) []zap.Field {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	}
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return fields
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		fields = append(fields, zap.String("route", pattern))
	}
	for i, key := range rctx.URLParams.Keys {
		if name, ok := routeParams[key]; ok && rctx.URLParams.Values[i] != "" {
			fields = append(fields, zap.String(name, rctx.URLParams.Values[i]))
		}
	}
	return fields
}

// TracingMiddleware extracts trace context from incoming requests.
func TracingMiddleware(next http.Handler) http.Handler {
	propagator := otel.GetTextMapPropagator()
	if propagator == nil {
		propagator = propagation.TraceContext{}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
