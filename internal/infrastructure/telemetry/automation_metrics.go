package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/pricecycle/backend/internal/domain/automation"
	"github.com/pricecycle/backend/internal/domain/shared"
)

// AutomationMetrics records the price-cycle instruments. It also subscribes to
// the event bus and counts phase transitions and restore triggers.
type AutomationMetrics struct {
	runsStarted     *Counter
	phaseChanges    *Counter
	triggers        *Counter
	runFailures     *Counter
	priceUpdates    *Counter
	restores        *Counter
	newOrders       *Gauge
	phaseDuration   *Histogram
	platformLatency *Histogram
}

// NewAutomationMetrics creates every instrument on meter.
func NewAutomationMetrics(meter metric.Meter) (*AutomationMetrics, error) {
	m := &AutomationMetrics{}
	var err error

	counters := []struct {
		dst               **Counter
		name, description string
	}{
		{&m.runsStarted, "pricecycle.runs.started", "Automation runs started"},
		{&m.phaseChanges, "pricecycle.phase.transitions", "Run phase transitions"},
		{&m.triggers, "pricecycle.restore.triggers", "Restore triggers by reason"},
		{&m.runFailures, "pricecycle.runs.failed", "Runs aborted during the adjustment"},
		{&m.priceUpdates, "pricecycle.price_updates", "Price updates by outcome"},
		{&m.restores, "pricecycle.restores", "Price restorations by outcome"},
	}
	for _, c := range counters {
		if *c.dst, err = NewCounter(meter, c.name, c.description, "{item}"); err != nil {
			return nil, err
		}
	}

	if m.newOrders, err = NewGauge(meter, "pricecycle.orders.new", "Orders placed since the baseline", "{order}"); err != nil {
		return nil, err
	}
	if m.phaseDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "pricecycle.phase.duration",
		Description: "Time spent in the adjusting and restoring phases",
		Unit:        "s",
		Boundaries:  PhaseDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.platformLatency, err = NewHistogram(meter, HistogramOpts{
		Name:        "pricecycle.platform.duration",
		Description: "Storefront platform call latency",
		Unit:        "s",
		Boundaries:  PlatformCallBuckets,
	}); err != nil {
		return nil, err
	}
	return m, nil
}

// RunStarted counts a started run
func (m *AutomationMetrics) RunStarted(ctx context.Context) {
	m.runsStarted.Inc(ctx)
}

// PriceUpdates counts n updates with outcome
func (m *AutomationMetrics) PriceUpdates(ctx context.Context, outcome automation.UpdateOutcome, n int) {
	if n > 0 {
		m.priceUpdates.Add(ctx, int64(n), AttrOutcome.String(string(outcome)))
	}
}

// Restores counts n restorations; ok=false counts failures
func (m *AutomationMetrics) Restores(ctx context.Context, ok bool, n int) {
	if n <= 0 {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failed"
	}
	m.restores.Add(ctx, int64(n), AttrOutcome.String(outcome))
}

// NewOrders records the latest new-order count
func (m *AutomationMetrics) NewOrders(ctx context.Context, count int) {
	m.newOrders.Record(ctx, int64(count))
}

// PhaseDuration records how long phase took
func (m *AutomationMetrics) PhaseDuration(ctx context.Context, phase automation.Phase, d time.Duration) {
	m.phaseDuration.RecordDuration(ctx, d, AttrPhase.String(phase.String()))
}

// PlatformCall records the latency of one platform operation
func (m *AutomationMetrics) PlatformCall(ctx context.Context, platform, operation string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	m.platformLatency.RecordDuration(ctx, d,
		AttrPlatform.String(platform),
		AttrOperation.String(operation),
		AttrOutcome.String(outcome),
	)
}

// Handle implements shared.EventHandler
func (m *AutomationMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *automation.PhaseChangedEvent:
		m.phaseChanges.Inc(ctx, AttrPhase.String(e.To.String()))
	case *automation.RestoreTriggeredEvent:
		m.triggers.Inc(ctx, AttrReason.String(string(e.Reason)))
	case *automation.RunFailedEvent:
		m.runFailures.Inc(ctx)
	}
	return nil
}

// EventTypes implements shared.EventHandler
func (m *AutomationMetrics) EventTypes() []string {
	return []string{
		automation.EventTypePhaseChanged,
		automation.EventTypeRestoreTriggered,
		automation.EventTypeRunFailed,
	}
}
