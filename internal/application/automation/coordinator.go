package automation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pricecycle/backend/internal/domain/automation"
)

// OrderCounter returns the number of orders placed since the baseline
type OrderCounter func(ctx context.Context) (int, error)

// CoordinatorConfig configures the restore trigger of one monitoring window
type CoordinatorConfig struct {
	Threshold int
	Interval  time.Duration
	Deadline  time.Time
	Count     OrderCounter
	Logger    *zap.Logger
	Now       func() time.Time
}

// Coordinator races the order-threshold poller against the restore deadline.
// The first signal wins; Fire guarantees restoration is triggered exactly once
// no matter how many producers (poller, timer, Stop) report at the same time.
type Coordinator struct {
	cfg CoordinatorConfig

	fired  atomic.Bool
	reason chan automation.TriggerReason

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewCoordinator creates a Coordinator that is armed but not running
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		cfg:    cfg,
		reason: make(chan automation.TriggerReason, 1),
	}
}

// Fire records reason as the trigger. It returns false when another signal
// already fired.
func (c *Coordinator) Fire(reason automation.TriggerReason) bool {
	if !c.fired.CompareAndSwap(false, true) {
		return false
	}
	c.reason <- reason

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	return true
}

// Fired reports whether a trigger was recorded
func (c *Coordinator) Fired() bool {
	return c.fired.Load()
}

// Run blocks until a trigger fires and returns its reason. It returns
// ctx.Err() when ctx ends first.
func (c *Coordinator) Run(ctx context.Context) (automation.TriggerReason, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return c.pollOrders(gctx) })
	g.Go(func() error { return c.awaitDeadline(gctx) })

	select {
	case reason := <-c.reason:
		cancel()
		_ = g.Wait()
		return reason, nil
	case <-ctx.Done():
		cancel()
		_ = g.Wait()
		select {
		case reason := <-c.reason:
			return reason, nil
		default:
			return "", ctx.Err()
		}
	}
}

func (c *Coordinator) pollOrders(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		count, err := c.cfg.Count(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.cfg.Logger.Warn("New-order poll failed", zap.Error(err))
			continue
		}
		if count >= c.cfg.Threshold {
			c.cfg.Logger.Info("Order threshold reached",
				zap.Int("new_orders", count),
				zap.Int("threshold", c.cfg.Threshold))
			c.Fire(automation.TriggerThreshold)
			return nil
		}
	}
}

func (c *Coordinator) awaitDeadline(ctx context.Context) error {
	wait := c.cfg.Deadline.Sub(c.cfg.Now())
	if wait <= 0 {
		c.Fire(automation.TriggerDeadline)
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
		c.cfg.Logger.Info("Restore deadline reached")
		c.Fire(automation.TriggerDeadline)
	}
	return nil
}
