package handler

import (
	"net/http"
	"strconv"

	"github.com/graminate/finance-bfa-go/internal/domain"
	"github.com/graminate/finance-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type dailyResponse struct {
	domain.ListResponse[domain.DailyFinancialEntry]
	Errors  []domain.SourceError `json:"errors,omitempty"`
	Partial bool                 `json:"partial"`
}

type monthlyResponse struct {
	UserID  string                  `json:"user_id"`
	SubType string                  `json:"sub_type"`
	Months  []domain.MonthlySummary `json:"months"`
	Errors  []domain.SourceError    `json:"errors,omitempty"`
	Partial bool                    `json:"partial"`
}

type categoriesResponse struct {
	SubType string `json:"sub_type"`
	domain.SubTypeCategories
}

// ============================================================
// Users: GET /v1/users/{userId}/profile
// ============================================================

func getProfileHandler(svc *service.FinancialService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/profile")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		if err := authorizeUser(ctx, userID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		profile, err := svc.GetProfile(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

// ============================================================
// Financials
// ============================================================

func getReportHandler(svc *service.FinancialService, qv *queryValidator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/financials/{subType}")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		subType := chi.URLParam(r, "subType")
		span.SetAttributes(attribute.String("user.id", userID), attribute.String("sub_type", subType))

		if err := authorizeUser(ctx, userID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var q reportQuery
		if err := qv.bind(r, &q); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		refresh, _ := strconv.ParseBool(q.Refresh)

		report, err := svc.GetReport(ctx, userID, subType, q.Month, refresh)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.Bool("report.partial", report.Partial), attribute.Bool("report.cached", report.Cached))
		markPartial(w, report.Partial)
		writeJSON(w, http.StatusOK, report)
	}
}

func getDailyHandler(svc *service.FinancialService, qv *queryValidator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/financials/{subType}/daily")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		if err := authorizeUser(ctx, userID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var q dailyQuery
		if err := qv.bind(r, &q); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		page, pageSize := parsePagination(r)

		days, sourceErrs, err := svc.GetDaily(ctx, userID, chi.URLParam(r, "subType"), q.From, q.To)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		markPartial(w, len(sourceErrs) > 0)
		writeJSON(w, http.StatusOK, dailyResponse{
			ListResponse: paginate(days, page, pageSize),
			Errors:       sourceErrs,
			Partial:      len(sourceErrs) > 0,
		})
	}
}

func getMonthlyHandler(svc *service.FinancialService, qv *queryValidator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/users/{userId}/financials/{subType}/monthly")
		defer span.End()

		userID := chi.URLParam(r, "userId")
		subType := chi.URLParam(r, "subType")
		if err := authorizeUser(ctx, userID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var q trendQuery
		if err := qv.bind(r, &q); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		months, sourceErrs, err := svc.GetMonthlyTrend(ctx, userID, subType, q.From, q.To)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		markPartial(w, len(sourceErrs) > 0)
		writeJSON(w, http.StatusOK, monthlyResponse{
			UserID:  userID,
			SubType: subType,
			Months:  months,
			Errors:  sourceErrs,
			Partial: len(sourceErrs) > 0,
		})
	}
}

// ============================================================
// Categories: GET /v1/categories/{subType}
// ============================================================

func categoriesHandler(svc *service.FinancialService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subType := chi.URLParam(r, "subType")
		writeJSON(w, http.StatusOK, categoriesResponse{
			SubType:           subType,
			SubTypeCategories: svc.Categories(subType),
		})
	}
}
