package automation

import (
	"context"
	"time"

	"github.com/pricecycle/backend/internal/domain/automation"
)

// Metrics receives run measurements. telemetry.AutomationMetrics implements it.
type Metrics interface {
	RunStarted(ctx context.Context)
	PriceUpdates(ctx context.Context, outcome automation.UpdateOutcome, n int)
	Restores(ctx context.Context, ok bool, n int)
	NewOrders(ctx context.Context, count int)
	PhaseDuration(ctx context.Context, phase automation.Phase, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) RunStarted(context.Context)                                  {}
func (noopMetrics) PriceUpdates(context.Context, automation.UpdateOutcome, int) {}
func (noopMetrics) Restores(context.Context, bool, int)                         {}
func (noopMetrics) NewOrders(context.Context, int)                              {}
func (noopMetrics) PhaseDuration(context.Context, automation.Phase, time.Duration) {
}
