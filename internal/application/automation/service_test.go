package automation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricecycle/backend/internal/domain/automation"
	"github.com/pricecycle/backend/internal/domain/integration"
	"github.com/pricecycle/backend/internal/domain/shared"
	"github.com/pricecycle/backend/internal/infrastructure/cache"
	"github.com/pricecycle/backend/internal/infrastructure/ecommerce"
)

const waitFor = 5 * time.Second

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

type recordingArchive struct {
	mu      sync.Mutex
	reports []*automation.RunReport
}

func (a *recordingArchive) Archive(_ context.Context, report *automation.RunReport) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, report)
	return nil
}

func (a *recordingArchive) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reports)
}

func fastOptions() Options {
	return Options{
		Defaults: RunDefaults{
			DiscountAmount:     100,
			RestoreDelay:       time.Hour,
			OrderThreshold:     1,
			MonitoringInterval: 10 * time.Millisecond,
		},
		BatchChunkSize:     10,
		BatchChunkGap:      time.Millisecond,
		SequentialChunkGap: time.Millisecond,
		RestoreChunkSize:   10,
		RestoreChunkGap:    time.Millisecond,
		StopWaitTimeout:    waitFor,
	}
}

type harness struct {
	svc       *Service
	platform  *ecommerce.SimulatedPlatform
	store     *cache.InMemoryStateStore
	publisher *recordingPublisher
	archive   *recordingArchive
}

func newHarness(t *testing.T, platform *ecommerce.SimulatedPlatform, opts Options) *harness {
	t.Helper()
	h := &harness{
		platform:  platform,
		store:     cache.NewInMemoryStateStore(),
		publisher: &recordingPublisher{},
		archive:   &recordingArchive{},
	}
	h.svc = NewService(platform, h.store, opts,
		WithEventPublisher(h.publisher),
		WithRunArchive(h.archive))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = h.svc.Close(ctx)
	})
	return h
}

func (h *harness) waitPhase(t *testing.T, phase automation.Phase) *RunStatus {
	t.Helper()
	var status *RunStatus
	require.Eventually(t, func() bool {
		status = h.svc.Status(context.Background())
		return status.Phase == phase
	}, waitFor, 5*time.Millisecond, "phase %s never reached", phase)
	return status
}

func intPtr(v int) *int { return &v }

func originalPrices(p *ecommerce.SimulatedPlatform, ids ...string) map[string]int64 {
	out := make(map[string]int64, len(ids))
	for _, id := range ids {
		price, _ := p.Price(id)
		out[id] = price
	}
	return out
}

func TestService_ThresholdTriggersRestore(t *testing.T) {
	platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 3})
	h := newHarness(t, platform, fastOptions())
	ctx := context.Background()
	before := originalPrices(platform, "sim-0001", "sim-0002", "sim-0003")

	status, err := h.svc.Start(ctx, StartRunInput{OrderThreshold: intPtr(1)})
	require.NoError(t, err)
	require.NotNil(t, status.RunID)

	monitoring := h.waitPhase(t, automation.PhaseMonitoring)
	assert.Equal(t, 3, monitoring.Stats.Adjusted)
	require.NotNil(t, monitoring.TimeRemaining)
	assert.Greater(t, *monitoring.TimeRemaining, time.Duration(0))

	// 337 would cross the floor and is raised instead
	price, _ := platform.Price("sim-0001")
	assert.Equal(t, int64(437), price)
	price, _ = platform.Price("sim-0002")
	assert.Equal(t, int64(374), price)

	platform.PlaceOrder("order-new", "STATUS_OPENED")

	done := h.waitPhase(t, automation.PhaseComplete)
	assert.Equal(t, automation.TriggerThreshold, done.TriggerReason)
	assert.Equal(t, 3, done.Stats.Restored)
	assert.Equal(t, 1, done.Stats.NewOrders)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, before, originalPrices(platform, "sim-0001", "sim-0002", "sim-0003"))

	require.NoError(t, h.svc.Wait(ctx))
	assert.Equal(t, 1, h.publisher.count(automation.EventTypeRestoreTriggered))
	assert.Equal(t, 4, h.publisher.count(automation.EventTypePhaseChanged))
	assert.Equal(t, 1, h.archive.len())
}

func TestService_ThresholdCountsEveryNewOrder(t *testing.T) {
	platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 2})
	platform.PlaceOrder("order-old", "STATUS_OPENED")
	h := newHarness(t, platform, fastOptions())

	_, err := h.svc.Start(context.Background(), StartRunInput{
		RestoreDelay:   time.Hour,
		OrderThreshold: intPtr(3),
	})
	require.NoError(t, err)
	monitoring := h.waitPhase(t, automation.PhaseMonitoring)
	require.NotNil(t, monitoring.RestoreDeadline)

	platform.PlaceOrder("order-1", "STATUS_OPENED")
	platform.PlaceOrder("order-2", "STATUS_OPENED")

	// two of three orders keep the run monitoring across several polls
	require.Never(t, func() bool {
		return h.svc.Status(context.Background()).Phase != automation.PhaseMonitoring
	}, 100*time.Millisecond, 10*time.Millisecond)

	platform.PlaceOrder("order-3", "STATUS_OPENED")

	done := h.waitPhase(t, automation.PhaseComplete)
	assert.Equal(t, automation.TriggerThreshold, done.TriggerReason)
	assert.Equal(t, 3, done.Stats.NewOrders)
	assert.Equal(t, 2, done.Stats.Restored)
	require.NotNil(t, done.CompletedAt)
	assert.True(t, done.CompletedAt.Before(*monitoring.RestoreDeadline))
}

func TestService_DeadlineTriggersRestore(t *testing.T) {
	platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 2, Batch: true})
	h := newHarness(t, platform, fastOptions())

	_, err := h.svc.Start(context.Background(), StartRunInput{
		RestoreDelay:   50 * time.Millisecond,
		OrderThreshold: intPtr(5),
	})
	require.NoError(t, err)

	done := h.waitPhase(t, automation.PhaseComplete)
	assert.Equal(t, automation.TriggerDeadline, done.TriggerReason)
	assert.Equal(t, 2, done.Stats.Restored)
	assert.Zero(t, done.Stats.NewOrders)
}

func TestService_ExcludesAwaitingShipmentProducts(t *testing.T) {
	platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 3})
	platform.AddAwaitingOrder("order-1", "sim-0002")
	h := newHarness(t, platform, fastOptions())

	_, err := h.svc.Start(context.Background(), StartRunInput{})
	require.NoError(t, err)

	status := h.waitPhase(t, automation.PhaseMonitoring)
	assert.Equal(t, 1, status.Stats.Excluded)
	assert.Equal(t, 2, status.Stats.Adjusted)

	for _, e := range status.Products {
		if e.ProductID == "sim-0002" {
			assert.True(t, e.Excluded)
			assert.Equal(t, automation.OutcomeExcluded, e.Outcome)
			assert.Equal(t, e.OriginalPrice, e.AppliedPrice)
		}
	}
	for _, u := range platform.Applied() {
		assert.NotEqual(t, "sim-0002", u.ProductID)
	}
}

func TestService_ExclusionLookupFailsOpen(t *testing.T) {
	platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 3})
	platform.AddAwaitingOrder("order-1", "sim-0002")
	platform.SetAwaitingError(errors.New("awaiting lookup down"))
	h := newHarness(t, platform, fastOptions())

	_, err := h.svc.Start(context.Background(), StartRunInput{})
	require.NoError(t, err)

	status := h.waitPhase(t, automation.PhaseMonitoring)
	assert.Zero(t, status.Stats.Excluded)
	assert.Equal(t, 3, status.Stats.Adjusted)
}

func TestService_StopDuringMonitoring(t *testing.T) {
	platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 3})
	h := newHarness(t, platform, fastOptions())
	ctx := context.Background()
	before := originalPrices(platform, "sim-0001", "sim-0002", "sim-0003")

	_, err := h.svc.Start(ctx, StartRunInput{OrderThreshold: intPtr(10)})
	require.NoError(t, err)
	h.waitPhase(t, automation.PhaseMonitoring)

	status, err := h.svc.Stop(ctx)
	require.NoError(t, err)
	assert.Contains(t, []automation.Phase{automation.PhaseRestoring, automation.PhaseComplete}, status.Phase)

	done := h.waitPhase(t, automation.PhaseComplete)
	assert.Equal(t, automation.TriggerStopped, done.TriggerReason)
	assert.Equal(t, before, originalPrices(platform, "sim-0001", "sim-0002", "sim-0003"))
	require.NoError(t, h.svc.Wait(ctx))
	assert.Equal(t, 1, h.publisher.count(automation.EventTypeRestoreTriggered))
}

func TestService_StopDuringAdjustment(t *testing.T) {
	platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 40})
	opts := fastOptions()
	opts.SequentialChunkGap = 20 * time.Millisecond
	h := newHarness(t, platform, opts)
	ctx := context.Background()

	ids := make([]string, 0, 40)
	for _, p := range mustProducts(t, platform) {
		ids = append(ids, p.ID)
	}
	before := originalPrices(platform, ids...)

	_, err := h.svc.Start(ctx, StartRunInput{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(platform.Applied()) >= 2 }, waitFor, time.Millisecond)

	_, err = h.svc.Stop(ctx)
	require.NoError(t, err)

	done := h.waitPhase(t, automation.PhaseComplete)
	assert.Equal(t, automation.TriggerStopped, done.TriggerReason)
	assert.Positive(t, done.Stats.Pending, "stop should leave later chunks untouched")
	assert.Equal(t, done.Stats.Adjusted, done.Stats.Restored)
	assert.Equal(t, before, originalPrices(platform, ids...))
}

func mustProducts(t *testing.T, p integration.CatalogPlatform) []integration.Product {
	t.Helper()
	products, err := integration.ListAllProducts(context.Background(), p)
	require.NoError(t, err)
	return products
}

func TestService_StartRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("connection failure leaves idle", func(t *testing.T) {
		platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 1})
		platform.SetConnectionError(errors.New("bad token"))
		h := newHarness(t, platform, fastOptions())

		_, err := h.svc.Start(ctx, StartRunInput{})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConnectionFailed)
		assert.Equal(t, automation.PhaseIdle, h.svc.Status(ctx).Phase)
		assert.Zero(t, h.store.Saves())
		assert.Zero(t, platform.UpdateCalls())
	})

	t.Run("invalid config", func(t *testing.T) {
		h := newHarness(t, ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 1}), fastOptions())

		_, err := h.svc.Start(ctx, StartRunInput{DiscountAmount: -5})
		assert.ErrorIs(t, err, automation.ErrInvalidRunConfig)

		_, err = h.svc.Start(ctx, StartRunInput{OrderThreshold: intPtr(-1)})
		assert.ErrorIs(t, err, automation.ErrInvalidRunConfig)
	})

	t.Run("second start while active", func(t *testing.T) {
		h := newHarness(t, ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 2}), fastOptions())

		_, err := h.svc.Start(ctx, StartRunInput{OrderThreshold: intPtr(10)})
		require.NoError(t, err)
		_, err = h.svc.Start(ctx, StartRunInput{})
		assert.ErrorIs(t, err, automation.ErrRunInProgress)
	})
}

func TestService_StopWithoutRun(t *testing.T) {
	h := newHarness(t, ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 1}), fastOptions())

	_, err := h.svc.Stop(context.Background())
	assert.ErrorIs(t, err, automation.ErrNoActiveRun)
}

func TestService_StartAgainAfterComplete(t *testing.T) {
	platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 2})
	h := newHarness(t, platform, fastOptions())
	ctx := context.Background()

	first, err := h.svc.Start(ctx, StartRunInput{OrderThreshold: intPtr(0)})
	require.NoError(t, err)
	h.waitPhase(t, automation.PhaseComplete)
	require.NoError(t, h.svc.Wait(ctx))

	second, err := h.svc.Start(ctx, StartRunInput{OrderThreshold: intPtr(0)})
	require.NoError(t, err)
	assert.NotEqual(t, *first.RunID, *second.RunID)
	assert.Empty(t, second.TriggerReason)

	h.waitPhase(t, automation.PhaseComplete)
}

func TestService_UpdateFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("failed chunk marks every item", func(t *testing.T) {
		platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 3, Batch: true})
		platform.SetBatchError(errors.New("mutation rejected"))
		h := newHarness(t, platform, fastOptions())

		_, err := h.svc.Start(ctx, StartRunInput{OrderThreshold: intPtr(0)})
		require.NoError(t, err)

		done := h.waitPhase(t, automation.PhaseComplete)
		assert.Equal(t, 3, done.Stats.Failed)
		assert.Zero(t, done.Stats.Restored)
		for _, e := range done.Products {
			assert.Equal(t, "mutation rejected", e.Error)
		}
	})

	t.Run("single item failure", func(t *testing.T) {
		platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 3})
		platform.FailUpdatesFor("sim-0003", errors.New("listing locked"))
		h := newHarness(t, platform, fastOptions())

		_, err := h.svc.Start(ctx, StartRunInput{OrderThreshold: intPtr(0)})
		require.NoError(t, err)

		done := h.waitPhase(t, automation.PhaseComplete)
		assert.Equal(t, 2, done.Stats.Adjusted)
		assert.Equal(t, 1, done.Stats.Failed)
		assert.Equal(t, 2, done.Stats.Restored)
	})

	t.Run("restore failure is recorded", func(t *testing.T) {
		platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 3})
		h := newHarness(t, platform, fastOptions())

		_, err := h.svc.Start(ctx, StartRunInput{OrderThreshold: intPtr(10)})
		require.NoError(t, err)
		h.waitPhase(t, automation.PhaseMonitoring)

		platform.FailUpdatesFor("sim-0001", errors.New("listing locked"))
		_, err = h.svc.Stop(ctx)
		require.NoError(t, err)

		done := h.waitPhase(t, automation.PhaseComplete)
		assert.Equal(t, 2, done.Stats.Restored)
		var original int64
		for _, e := range done.Products {
			if e.ProductID == "sim-0001" {
				assert.False(t, e.Restored)
				assert.Equal(t, "listing locked", e.RestoreError)
				original = e.OriginalPrice
			}
		}
		require.NotZero(t, original)

		// A completed run is not retried; the operator sets the price by hand.
		require.NoError(t, h.svc.Wait(ctx))
		platform.FailUpdatesFor("sim-0001", nil)
		again, err := h.svc.Stop(ctx)
		require.NoError(t, err)
		assert.Equal(t, automation.PhaseComplete, again.Phase)
		assert.Equal(t, 2, again.Stats.Restored)

		_, err = h.svc.TestPriceChange(ctx, "sim-0001", original)
		require.NoError(t, err)
		price, _ := platform.Price("sim-0001")
		assert.Equal(t, original, price)
	})

	t.Run("product listing failure returns to idle", func(t *testing.T) {
		platform := &failingListPlatform{SimulatedPlatform: ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 1})}
		store := cache.NewInMemoryStateStore()
		publisher := &recordingPublisher{}
		svc := NewService(platform, store, fastOptions(), WithEventPublisher(publisher))
		t.Cleanup(func() { _ = svc.Close(context.Background()) })

		_, err := svc.Start(ctx, StartRunInput{})
		require.NoError(t, err)
		require.NoError(t, svc.Wait(ctx))

		status := svc.Status(ctx)
		assert.Equal(t, automation.PhaseIdle, status.Phase)
		assert.Contains(t, status.LastError, "catalog offline")
		assert.Equal(t, 1, publisher.count(automation.EventTypeRunFailed))
	})
}

type failingListPlatform struct {
	*ecommerce.SimulatedPlatform
}

func (p *failingListPlatform) ListProducts(context.Context, string) (*integration.Page[integration.Product], error) {
	return nil, errors.New("catalog offline")
}

func TestService_BaselineCaptureFailure(t *testing.T) {
	platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 1})
	platform.SetOrdersError(errors.New("orders down"))
	h := newHarness(t, platform, fastOptions())

	_, err := h.svc.Start(context.Background(), StartRunInput{
		RestoreDelay:   80 * time.Millisecond,
		OrderThreshold: intPtr(1),
	})
	require.NoError(t, err)

	done := h.waitPhase(t, automation.PhaseComplete)
	assert.Equal(t, automation.TriggerDeadline, done.TriggerReason)

	state, err := h.store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, state.Baseline)
	assert.True(t, state.Baseline.CaptureFailed)
}

// interruptedState builds the state a crashed process leaves behind
func interruptedState(phase automation.Phase, platform *ecommerce.SimulatedPlatform) *automation.RunState {
	original, _ := platform.Price("sim-0001")
	ledger := automation.NewLedger()
	_ = ledger.Record("sim-0001", "Simulated item 1", original, original+100, false)
	_ = ledger.MarkOutcome("sim-0001", automation.OutcomeSuccess, nil)

	baseline := automation.EmptyBaseline(time.Now().Add(-2 * time.Hour))
	deadline := time.Now().Add(-time.Hour)
	return &automation.RunState{
		Phase: phase,
		Config: &automation.RunConfig{
			DiscountAmount:     100,
			RestoreDelay:       time.Hour,
			OrderThreshold:     5,
			MonitoringInterval: 10 * time.Millisecond,
		},
		Ledger:   ledger.Snapshot(),
		Baseline: baseline,
		Meta: automation.RunMeta{
			RunID:           uuid.New(),
			RestoreDeadline: &deadline,
		},
	}
}

func TestService_RecoversInterruptedRuns(t *testing.T) {
	ctx := context.Background()

	for _, phase := range []automation.Phase{automation.PhaseAdjusting, automation.PhaseRestoring, automation.PhaseMonitoring} {
		t.Run("stop restores "+phase.String(), func(t *testing.T) {
			platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 1})
			original, _ := platform.Price("sim-0001")
			state := interruptedState(phase, platform)
			_, err := platform.UpdateProductPrices(ctx, []integration.PriceUpdate{{ProductID: "sim-0001", Price: original + 100}})
			require.NoError(t, err)

			h := newHarness(t, platform, fastOptions())
			require.NoError(t, h.store.Save(ctx, state))

			_, err = h.svc.Stop(ctx)
			require.NoError(t, err)

			done := h.waitPhase(t, automation.PhaseComplete)
			assert.Equal(t, automation.TriggerStopped, done.TriggerReason)
			price, _ := platform.Price("sim-0001")
			assert.Equal(t, original, price)
		})
	}

	t.Run("resume rearms monitoring", func(t *testing.T) {
		platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 1})
		original, _ := platform.Price("sim-0001")
		h := newHarness(t, platform, fastOptions())
		require.NoError(t, h.store.Save(ctx, interruptedState(automation.PhaseMonitoring, platform)))

		require.NoError(t, h.svc.Resume(ctx))

		done := h.waitPhase(t, automation.PhaseComplete)
		assert.Equal(t, automation.TriggerDeadline, done.TriggerReason)
		price, _ := platform.Price("sim-0001")
		assert.Equal(t, original, price)
	})

	t.Run("resume leaves adjusting for stop", func(t *testing.T) {
		platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 1})
		h := newHarness(t, platform, fastOptions())
		require.NoError(t, h.store.Save(ctx, interruptedState(automation.PhaseAdjusting, platform)))

		require.NoError(t, h.svc.Resume(ctx))
		status := h.svc.Status(ctx)
		assert.Equal(t, automation.PhaseAdjusting, status.Phase)
		assert.False(t, status.Live)

		_, err := h.svc.Start(ctx, StartRunInput{})
		assert.ErrorIs(t, err, automation.ErrRunInProgress)
	})
}

func TestService_StatusDefaultsToIdle(t *testing.T) {
	h := newHarness(t, ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{}), fastOptions())

	status := h.svc.Status(context.Background())
	assert.Equal(t, automation.PhaseIdle, status.Phase)
	assert.Nil(t, status.RunID)
	assert.Nil(t, status.TimeRemaining)
	assert.NotNil(t, status.Products)
	assert.Equal(t, "simulated", status.Platform)
}

func TestService_PersistsEveryStep(t *testing.T) {
	platform := ecommerce.NewSimulatedPlatform(ecommerce.SimulatedOptions{Products: 3})
	h := newHarness(t, platform, fastOptions())

	_, err := h.svc.Start(context.Background(), StartRunInput{OrderThreshold: intPtr(0)})
	require.NoError(t, err)
	h.waitPhase(t, automation.PhaseComplete)

	state, err := h.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, automation.PhaseComplete, state.Phase)
	assert.Len(t, state.Ledger, 3)
	for _, e := range state.Ledger {
		assert.True(t, e.Restored)
	}
	// adjusting, ledger, 3 sequential chunks, monitoring, restoring, restore chunk, complete
	assert.GreaterOrEqual(t, h.store.Saves(), 9)
}
