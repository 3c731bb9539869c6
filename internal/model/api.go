package model

import (
	"time"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the standard envelope for paginated list endpoints.
type ListResponse struct {
	Data    any          `json:"data"`
	Total   int          `json:"total"`
	HasMore bool         `json:"has_more"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
	Meta    ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// TokenRequest is the request body for POST /auth/token.
type TokenRequest struct {
	APIKey string `json:"api_key"`
}

// TokenResponse is returned by POST /auth/token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SetOverrideRequest is the request body for PUT /v1/overrides/{dedupe_key}.
type SetOverrideRequest struct {
	Action string `json:"action"`
	Note   string `json:"note"`
}

// ClearOverrideResponse is returned by DELETE /v1/overrides/{key}. Cleared is
// false when no override existed.
type ClearOverrideResponse struct {
	DedupeKey string `json:"dedupe_key"`
	Cleared   bool   `json:"cleared"`
}

// FeedbackRequest is the request body for POST /v1/feedback.
type FeedbackRequest struct {
	DedupeKey      string `json:"dedupe_key"`
	Label          string `json:"label"`
	ReasonCategory string `json:"reason_category"`
}

// MLScoresRequest is the request body for PUT /v1/ml/scores.
type MLScoresRequest struct {
	ModelID string             `json:"model_id"`
	Scores  map[string]float64 `json:"scores"`
}

// MLStatus reports whether feedback is sufficient to train and honour a model.
type MLStatus struct {
	Eligible        bool    `json:"eligible"`
	Reason          string  `json:"reason,omitempty"`
	Total           int     `json:"total"`
	Positives       int     `json:"positives"`
	Negatives       int     `json:"negatives"`
	TrainingSetID   string  `json:"training_set_id"`
	ScoredJobs      int     `json:"scored_jobs"`
	ActiveModelID   string  `json:"active_model_id,omitempty"`
	MLEnabled       bool    `json:"ml_enabled"`
	MLMode          MLMode  `json:"ml_mode"`
	RescueThreshold float64 `json:"ml_rescue_threshold"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string     `json:"status"`
	Version   string     `json:"version"`
	Postgres  string     `json:"postgres"`
	SSEBroker string     `json:"sse_broker,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	Uptime    int64      `json:"uptime_seconds"`
}
