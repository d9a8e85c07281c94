package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	LastChecked string `json:"lastChecked"`
}

// PipelineMetrics is returned by GET /v1/metrics/pipeline.
type PipelineMetrics struct {
	TotalReports   int64   `json:"totalReports"`
	PartialReports int64   `json:"partialReports"`
	PartialRate    float64 `json:"partialRate"`
	SalesErrors    int64   `json:"salesErrors"`
	ExpenseErrors  int64   `json:"expenseErrors"`
	CoercedFields  int64   `json:"coercedFields"`
	SkippedRecords int64   `json:"skippedRecords"`
	CacheHitRate   float64 `json:"cacheHitRate"`
	Period         string  `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps paginated list results.
type ListResponse[T any] struct {
	Data     []T  `json:"data"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}
