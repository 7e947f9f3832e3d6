package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pricecycle/backend/internal/domain/automation"
	"github.com/pricecycle/backend/internal/domain/integration"
	"github.com/pricecycle/backend/internal/domain/shared"
)

var (
	// ErrConnectionFailed is returned by Start when the platform is unreachable
	ErrConnectionFailed = shared.ErrUnavailable.WithMessage("platform connection test failed")
	// ErrRunStarting is returned by Stop while Start is still testing the connection
	ErrRunStarting = shared.ErrInvalidState.WithMessage("the run is still starting")
)

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithLogger sets the service logger
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithEventPublisher sets where phase and trigger events go
func WithEventPublisher(publisher shared.EventPublisher) ServiceOption {
	return func(s *Service) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// WithRunArchive sets where completed run reports are written
func WithRunArchive(archive automation.RunArchive) ServiceOption {
	return func(s *Service) {
		if archive != nil {
			s.archive = archive
		}
	}
}

// WithMetrics sets the run metrics recorder
func WithMetrics(metrics Metrics) ServiceOption {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// liveRun tracks the goroutine driving the current run
type liveRun struct {
	id       uuid.UUID
	starting bool

	// stopCtx is cancelled by Stop while prices are being adjusted
	stopCtx context.Context
	stop    context.CancelFunc

	coord *Coordinator

	restoring     chan struct{}
	restoringOnce sync.Once
	done          chan struct{}
}

func (l *liveRun) markRestoring() {
	l.restoringOnce.Do(func() { close(l.restoring) })
}

func (l *liveRun) stopRequested() bool {
	return l.stopCtx != nil && l.stopCtx.Err() != nil
}

// Service orchestrates the single price automation run: adjust every
// product, watch for new orders, then restore the original prices.
// At most one run exists per process.
type Service struct {
	platform  integration.CatalogPlatform
	store     automation.StateStore
	publisher shared.EventPublisher
	archive   automation.RunArchive
	metrics   Metrics
	logger    *zap.Logger
	opts      Options
	now       func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	// saveMu orders snapshots and their writes
	saveMu sync.Mutex

	mu             sync.Mutex
	state          *automation.RunState
	loaded         bool
	live           *liveRun
	phaseEnteredAt time.Time
}

// NewService creates a new automation Service
func NewService(
	platform integration.CatalogPlatform,
	store automation.StateStore,
	opts Options,
	options ...ServiceOption,
) *Service {
	opts.fill()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		platform:   platform,
		store:      store,
		publisher:  shared.NoopEventPublisher{},
		archive:    nil,
		metrics:    noopMetrics{},
		logger:     zap.NewNop(),
		opts:       opts,
		now:        time.Now,
		baseCtx:    ctx,
		baseCancel: cancel,
		state:      automation.NewIdleState(),
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Platform returns the adapter name
func (s *Service) Platform() string {
	return s.platform.Name()
}

// ---------------------------------------------------------------------------
// Control surface
// ---------------------------------------------------------------------------

// Start validates input, tests the platform connection and launches a new
// run in the background. It returns once the adjusting phase is persisted.
func (s *Service) Start(ctx context.Context, input StartRunInput) (*RunStatus, error) {
	cfg := s.resolveConfig(input)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.ensureLoaded(ctx)

	s.mu.Lock()
	if s.live != nil || !s.state.Phase.CanStart() {
		s.mu.Unlock()
		return nil, automation.ErrRunInProgress
	}
	live := &liveRun{
		id:        uuid.New(),
		starting:  true,
		restoring: make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.live = live
	s.mu.Unlock()

	if err := s.platform.TestConnection(ctx); err != nil {
		s.clearLive(live)
		s.logger.Warn("Platform connection test failed, run not started",
			zap.String("platform", s.platform.Name()),
			zap.Error(err))
		return nil, ErrConnectionFailed.WithMessage(fmt.Sprintf("platform connection test failed: %v", err))
	}

	s.mu.Lock()
	previous := s.state.Clone()
	s.mu.Unlock()

	err := s.transition(ctx, automation.PhaseAdjusting, func(st *automation.RunState) {
		st.Config = &cfg
		st.Ledger = []automation.LedgerEntry{}
		st.Baseline = nil
		st.Meta = automation.RunMeta{RunID: live.id}
	})
	if err != nil {
		s.mu.Lock()
		s.state = previous
		s.mu.Unlock()
		s.clearLive(live)
		return nil, fmt.Errorf("persist run start: %w", err)
	}

	s.metrics.RunStarted(ctx)
	s.logger.Info("Automation run started",
		zap.String("run_id", live.id.String()),
		zap.Int64("discount", cfg.DiscountAmount),
		zap.Duration("restore_delay", cfg.RestoreDelay),
		zap.Int("order_threshold", cfg.OrderThreshold))

	s.mu.Lock()
	live.starting = false
	live.stopCtx, live.stop = context.WithCancel(s.baseCtx)
	s.mu.Unlock()

	s.launch(live, func(ctx context.Context) { s.runCycle(ctx, live, cfg) })
	return s.Status(ctx), nil
}

// Stop ends the active run early. An adjusting run stops between chunks and
// restores what it changed; a monitoring run is triggered immediately.
// Stop returns once restoration has begun. Runs left in adjusting or
// restoring by a previous process are restored directly.
func (s *Service) Stop(ctx context.Context) (*RunStatus, error) {
	s.ensureLoaded(ctx)

	s.mu.Lock()
	phase := s.state.Phase
	live := s.live

	switch {
	case live != nil && live.starting:
		s.mu.Unlock()
		return nil, ErrRunStarting
	case !phase.CanStop():
		s.mu.Unlock()
		return nil, automation.ErrNoActiveRun
	case phase == automation.PhaseComplete:
		s.mu.Unlock()
		return s.Status(ctx), nil
	case phase == automation.PhaseRestoring && live != nil:
		s.mu.Unlock()
		return s.Status(ctx), nil
	case live == nil:
		// Nothing drives the persisted run. Restore it here.
		recovered := &liveRun{
			id:        s.state.Meta.RunID,
			restoring: make(chan struct{}),
			done:      make(chan struct{}),
		}
		s.live = recovered
		s.mu.Unlock()

		s.logger.Info("Restoring prices of an interrupted run",
			zap.String("run_id", recovered.id.String()),
			zap.String("phase", phase.String()))
		s.launch(recovered, func(ctx context.Context) { s.runRestore(ctx, recovered, automation.TriggerStopped) })
		live = recovered
	case phase == automation.PhaseAdjusting:
		if live.stop != nil {
			live.stop()
		}
		s.mu.Unlock()
		s.logger.Info("Stop requested during adjustment", zap.String("run_id", live.id.String()))
	default:
		// monitoring: the coordinator is set together with the phase
		coord := live.coord
		s.mu.Unlock()
		if coord != nil {
			coord.Fire(automation.TriggerStopped)
		} else if live.stop != nil {
			live.stop()
		}
		s.logger.Info("Stop requested during monitoring", zap.String("run_id", live.id.String()))
	}

	s.waitRestoring(ctx, live)
	return s.Status(ctx), nil
}

// Status returns the current run state. It never fails: when the store
// cannot be read the idle status is returned.
func (s *Service) Status(ctx context.Context) *RunStatus {
	s.ensureLoaded(ctx)

	s.mu.Lock()
	state := s.state.Clone()
	live := s.live != nil && !s.live.starting
	s.mu.Unlock()

	return buildStatus(state, s.platform.Name(), live, s.now())
}

// Resume loads the persisted state and re-arms a run that was monitoring
// when the previous process exited. Adjusting and restoring runs are left
// for an explicit Stop.
func (s *Service) Resume(ctx context.Context) error {
	state, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load run state: %w", err)
	}

	s.mu.Lock()
	if s.live != nil {
		s.mu.Unlock()
		return automation.ErrRunInProgress
	}
	s.state = state
	s.loaded = true
	s.phaseEnteredAt = s.now()

	switch state.Phase {
	case automation.PhaseMonitoring:
	case automation.PhaseAdjusting, automation.PhaseRestoring:
		s.mu.Unlock()
		s.logger.Warn("Found an interrupted run; stop it to restore prices",
			zap.String("run_id", state.Meta.RunID.String()),
			zap.String("phase", state.Phase.String()))
		return nil
	default:
		s.mu.Unlock()
		return nil
	}

	if state.Config == nil {
		s.mu.Unlock()
		return fmt.Errorf("monitoring run %s has no configuration", state.Meta.RunID)
	}
	if state.Baseline == nil {
		state.Baseline = automation.EmptyBaseline(s.now())
	}
	deadline := state.Config.Deadline(state.Baseline.BaselineAt)
	if state.Meta.RestoreDeadline != nil {
		deadline = *state.Meta.RestoreDeadline
	}

	live := &liveRun{
		id:        state.Meta.RunID,
		restoring: make(chan struct{}),
		done:      make(chan struct{}),
	}
	live.stopCtx, live.stop = context.WithCancel(s.baseCtx)
	live.coord = s.newCoordinator(*state.Config, deadline)
	s.live = live
	s.mu.Unlock()

	s.logger.Info("Resuming monitoring",
		zap.String("run_id", live.id.String()),
		zap.Time("restore_deadline", deadline))
	s.launch(live, func(ctx context.Context) { s.runMonitoring(ctx, live) })
	return nil
}

// Close cancels the background run and waits for it to return. Persisted
// state is left as is so a later Resume or Stop can pick it up.
func (s *Service) Close(ctx context.Context) error {
	s.baseCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the current run goroutine has returned
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	live := s.live
	s.mu.Unlock()
	if live == nil {
		return nil
	}
	select {
	case <-live.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

func (s *Service) resolveConfig(input StartRunInput) automation.RunConfig {
	d := s.opts.Defaults
	cfg := automation.RunConfig{
		DiscountAmount:     input.DiscountAmount,
		RestoreDelay:       input.RestoreDelay,
		OrderThreshold:     d.OrderThreshold,
		MonitoringInterval: input.MonitoringInterval,
		StartedAt:          s.now(),
	}
	if cfg.DiscountAmount == 0 {
		cfg.DiscountAmount = d.DiscountAmount
	}
	if cfg.RestoreDelay == 0 {
		cfg.RestoreDelay = d.RestoreDelay
	}
	if input.OrderThreshold != nil {
		cfg.OrderThreshold = *input.OrderThreshold
	}
	if cfg.MonitoringInterval == 0 {
		cfg.MonitoringInterval = d.MonitoringInterval
	}
	return cfg
}

func (s *Service) ensureLoaded(ctx context.Context) {
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded {
		return
	}

	state, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Error("Failed to load run state", zap.Error(err))
		return
	}

	s.mu.Lock()
	if !s.loaded {
		s.state = state
		s.loaded = true
		s.phaseEnteredAt = s.now()
	}
	s.mu.Unlock()
}

func (s *Service) launch(live *liveRun, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(live.done)
		defer s.clearLive(live)
		if live.stop != nil {
			defer live.stop()
		}
		fn(s.baseCtx)
	}()
}

func (s *Service) clearLive(live *liveRun) {
	s.mu.Lock()
	if s.live == live {
		s.live = nil
	}
	s.mu.Unlock()
}

func (s *Service) waitRestoring(ctx context.Context, live *liveRun) {
	timer := time.NewTimer(s.opts.StopWaitTimeout)
	defer timer.Stop()

	select {
	case <-live.restoring:
	case <-live.done:
	case <-ctx.Done():
	case <-timer.C:
		s.logger.Warn("Timed out waiting for restoration to begin",
			zap.String("run_id", live.id.String()))
	}
}

// update mutates the cached state and persists a snapshot. Store errors are
// logged; the in-memory state stays authoritative for the running process.
func (s *Service) update(ctx context.Context, mutate func(st *automation.RunState)) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	mutate(s.state)
	s.state.Meta.UpdatedAt = s.now()
	snapshot := s.state.Clone()
	s.mu.Unlock()

	if err := s.store.Save(ctx, snapshot); err != nil {
		s.logger.Error("Failed to persist run state",
			zap.String("run_id", snapshot.Meta.RunID.String()),
			zap.Error(err))
	}
}

// transition moves the run to phase to, persists it and publishes
// PhaseChanged. mutate runs under the state lock before the phase changes.
func (s *Service) transition(ctx context.Context, to automation.Phase, mutate func(st *automation.RunState)) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	from := s.state.Phase
	if err := automation.ValidateTransition(from, to); err != nil {
		s.mu.Unlock()
		return err
	}
	if mutate != nil {
		mutate(s.state)
	}
	now := s.now()
	s.state.Phase = to
	s.state.Meta.UpdatedAt = now
	entered := s.phaseEnteredAt
	s.phaseEnteredAt = now
	snapshot := s.state.Clone()
	s.mu.Unlock()

	// Entering adjusting is the only write that may abort: no price has
	// changed yet.
	saveErr := s.store.Save(ctx, snapshot)
	if saveErr != nil && to == automation.PhaseAdjusting {
		return saveErr
	}
	if saveErr != nil {
		s.logger.Error("Failed to persist phase change",
			zap.String("phase", to.String()),
			zap.Error(saveErr))
	}

	if from.IsActive() && !entered.IsZero() {
		s.metrics.PhaseDuration(ctx, from, now.Sub(entered))
	}
	s.publish(ctx, automation.NewPhaseChangedEvent(snapshot.Meta.RunID, from, to, automation.StatsOf(snapshot.Ledger)))
	s.logger.Info("Run phase changed",
		zap.String("run_id", snapshot.Meta.RunID.String()),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	return nil
}

func (s *Service) publish(ctx context.Context, events ...shared.DomainEvent) {
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("Failed to publish run events", zap.Error(err))
	}
}

func (s *Service) snapshot() *automation.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}
