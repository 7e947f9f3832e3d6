package dto

import (
	"time"

	appautomation "github.com/pricecycle/backend/internal/application/automation"
)

// StartRunRequest is the body of POST /automation/start. Omitted fields take
// the configured defaults.
type StartRunRequest struct {
	DiscountAmount            int64 `json:"discount_amount" binding:"omitempty,gt=0"`
	RestoreDelayMinutes       int   `json:"restore_delay_minutes" binding:"omitempty,gt=0"`
	OrderThreshold            *int  `json:"order_threshold" binding:"omitempty,gte=0"`
	MonitoringIntervalSeconds int   `json:"monitoring_interval_seconds" binding:"omitempty,gt=0"`
}

// ToInput converts the request to the service input
func (r StartRunRequest) ToInput() appautomation.StartRunInput {
	return appautomation.StartRunInput{
		DiscountAmount:     r.DiscountAmount,
		RestoreDelay:       time.Duration(r.RestoreDelayMinutes) * time.Minute,
		OrderThreshold:     r.OrderThreshold,
		MonitoringInterval: time.Duration(r.MonitoringIntervalSeconds) * time.Second,
	}
}

// RunStatusResponse is the run status with durations in seconds
type RunStatusResponse struct {
	*appautomation.RunStatus
	TimeRemainingSeconds *int64 `json:"time_remaining_seconds,omitempty"`
}

// NewRunStatusResponse wraps status for the API
func NewRunStatusResponse(status *appautomation.RunStatus) RunStatusResponse {
	resp := RunStatusResponse{RunStatus: status}
	if status != nil && status.TimeRemaining != nil {
		secs := int64(status.TimeRemaining.Round(time.Second) / time.Second)
		resp.TimeRemainingSeconds = &secs
	}
	return resp
}

// ConnectionResponse is the result of a connectivity check
type ConnectionResponse struct {
	*appautomation.ConnectionReport
	LatencyMS int64 `json:"latency_ms"`
}

// NewConnectionResponse wraps report for the API
func NewConnectionResponse(report *appautomation.ConnectionReport) ConnectionResponse {
	return ConnectionResponse{ConnectionReport: report, LatencyMS: report.Latency.Milliseconds()}
}

// PriceChangeRequest is the body of POST /diagnostics/price-change
type PriceChangeRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Price     int64  `json:"price" binding:"required,gt=0"`
}
