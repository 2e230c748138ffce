package domain

// HealthStatus is returned by GET /readyz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latencyMs"`
}

// ModelMetrics is returned by GET /v1/metrics/model.
type ModelMetrics struct {
	TotalRequests       int64   `json:"totalRequests"`
	FailedRequests      int64   `json:"failedRequests"`
	ErrorRate           float64 `json:"errorRate"`
	PromptTokens        int64   `json:"promptTokens"`
	CompletionTokens    int64   `json:"completionTokens"`
	AvgTokensPerRequest float64 `json:"avgTokensPerRequest"`
	SessionCacheHitRate float64 `json:"sessionCacheHitRate"`
	SnapshotsDelivered  int64   `json:"snapshotsDelivered"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
