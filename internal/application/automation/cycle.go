package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pricecycle/backend/internal/domain/automation"
	"github.com/pricecycle/backend/internal/domain/integration"
	"github.com/pricecycle/backend/internal/infrastructure/logger"
	"github.com/pricecycle/backend/internal/infrastructure/telemetry"
)

var errAdjustStopped = errors.New("adjustment stopped")

// runCycle drives a freshly started run through every phase
func (s *Service) runCycle(ctx context.Context, live *liveRun, cfg automation.RunConfig) {
	ctx, log := s.runContext(ctx, live)

	err := s.adjust(ctx, live, cfg)
	switch {
	case ctx.Err() != nil:
		log.Warn("Run interrupted during adjustment")
		return
	case live.stopRequested():
		s.runRestore(ctx, live, automation.TriggerStopped)
		return
	case err != nil:
		s.fail(ctx, err)
		return
	}

	baseline := s.captureBaseline(ctx)
	deadline := cfg.Deadline(baseline.BaselineAt)
	coord := s.newCoordinator(cfg, deadline)

	err = s.transition(ctx, automation.PhaseMonitoring, func(st *automation.RunState) {
		adjustedAt := baseline.BaselineAt
		st.Baseline = baseline
		st.Meta.AdjustedAt = &adjustedAt
		st.Meta.RestoreDeadline = &deadline
		live.coord = coord
	})
	if err != nil {
		log.Error("Cannot enter monitoring", zap.Error(err))
		return
	}
	if live.stopRequested() {
		coord.Fire(automation.TriggerStopped)
	}

	log.Info("Monitoring for new orders",
		zap.Int("order_threshold", cfg.OrderThreshold),
		zap.Time("restore_deadline", deadline))
	s.runMonitoring(ctx, live)
}

// runMonitoring waits for the coordinator and then restores
func (s *Service) runMonitoring(ctx context.Context, live *liveRun) {
	ctx, log := s.runContext(ctx, live)

	reason, err := live.coord.Run(ctx)
	if err != nil {
		log.Warn("Monitoring interrupted", zap.Error(err))
		return
	}
	s.runRestore(ctx, live, reason)
}

// ---------------------------------------------------------------------------
// Adjustment
// ---------------------------------------------------------------------------

func (s *Service) adjust(ctx context.Context, live *liveRun, cfg automation.RunConfig) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "automation.adjust",
		telemetry.AttrRunID.String(live.id.String()))
	defer telemetry.EndSpan(span, &err)
	log := logger.L(ctx)

	excluded := s.resolveExclusions(ctx)

	products, err := integration.ListAllProducts(ctx, s.platform)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}

	ledger := automation.NewLedger()
	for _, p := range products {
		applied := p.Price
		isExcluded := excluded.Contains(p.ID)
		if !isExcluded {
			applied, _ = automation.CalculatePrice(p.Price, cfg.DiscountAmount)
		}
		if err := ledger.Record(p.ID, p.Name, p.Price, applied, isExcluded); err != nil {
			log.Warn("Skipping product", zap.String("product_id", p.ID), zap.Error(err))
		}
	}

	s.update(ctx, func(st *automation.RunState) { st.Ledger = ledger.Snapshot() })
	log.Info("Ledger recorded",
		zap.Int("products", ledger.Len()),
		zap.Int("excluded", len(excluded)))

	chunkSize, gap := 1, s.opts.SequentialChunkGap
	if s.platform.SupportsBatchUpdate() {
		chunkSize, gap = s.opts.BatchChunkSize, s.opts.BatchChunkGap
	}
	limiter := rate.NewLimiter(rate.Every(gap), 1)

	for _, chunk := range chunks(ledger.PendingUpdates(), chunkSize) {
		if err := limiter.Wait(live.stopCtx); err != nil {
			return errAdjustStopped
		}

		batch := make([]integration.PriceUpdate, 0, len(chunk))
		for _, e := range chunk {
			batch = append(batch, integration.PriceUpdate{ProductID: e.ProductID, Price: e.AppliedPrice})
		}

		results, callErr := s.platform.UpdateProductPrices(ctx, batch)
		ok, failed := applyResults(batch, results, callErr, func(id string, cause error) {
			outcome := automation.OutcomeSuccess
			if cause != nil {
				outcome = automation.OutcomeFailed
			}
			if err := ledger.MarkOutcome(id, outcome, cause); err != nil {
				log.Warn("Cannot record update outcome", zap.String("product_id", id), zap.Error(err))
			}
		})
		if callErr != nil {
			log.Warn("Price update chunk failed",
				zap.Int("chunk_size", len(batch)),
				zap.Error(callErr))
		}

		s.metrics.PriceUpdates(ctx, automation.OutcomeSuccess, ok)
		s.metrics.PriceUpdates(ctx, automation.OutcomeFailed, failed)
		s.update(ctx, func(st *automation.RunState) { st.Ledger = ledger.Snapshot() })
	}

	stats := ledger.Stats()
	log.Info("Adjustment finished",
		zap.Int("adjusted", stats.Adjusted),
		zap.Int("failed", stats.Failed),
		zap.Int("excluded", stats.Excluded))
	return nil
}

// resolveExclusions lists awaiting-shipment orders. A failure excludes
// nothing and the run carries on.
func (s *Service) resolveExclusions(ctx context.Context) automation.ProductSet {
	orders, err := integration.ListAllAwaitingShipment(ctx, s.platform)
	if err != nil {
		logger.L(ctx).Warn("Awaiting-shipment lookup failed, no products excluded", zap.Error(err))
		return automation.ProductSet{}
	}
	return automation.ResolveExclusions(orders)
}

func (s *Service) captureBaseline(ctx context.Context) *automation.OrderBaseline {
	orders, err := integration.ListAllOrders(ctx, s.platform)
	if err != nil {
		logger.L(ctx).Warn("Order baseline capture failed, counting every later order", zap.Error(err))
		return automation.EmptyBaseline(s.now())
	}
	return automation.CaptureBaseline(orders, s.now())
}

// ---------------------------------------------------------------------------
// Monitoring
// ---------------------------------------------------------------------------

func (s *Service) newCoordinator(cfg automation.RunConfig, deadline time.Time) *Coordinator {
	return NewCoordinator(CoordinatorConfig{
		Threshold: cfg.OrderThreshold,
		Interval:  cfg.MonitoringInterval,
		Deadline:  deadline,
		Count:     s.countNewOrders,
		Logger:    s.logger,
		Now:       s.now,
	})
}

func (s *Service) countNewOrders(ctx context.Context) (int, error) {
	orders, err := integration.ListAllOrders(ctx, s.platform)
	if err != nil {
		return 0, err
	}

	var count int
	s.update(ctx, func(st *automation.RunState) {
		if st.Baseline == nil {
			st.Baseline = automation.EmptyBaseline(s.now())
		}
		count = st.Baseline.CountNew(orders)
	})
	s.metrics.NewOrders(ctx, count)
	return count, nil
}

// ---------------------------------------------------------------------------
// Restoration
// ---------------------------------------------------------------------------

// runRestore puts every successfully adjusted product back to its original
// price, completes the run and archives its report.
func (s *Service) runRestore(ctx context.Context, live *liveRun, reason automation.TriggerReason) {
	var err error
	ctx, log := s.runContext(ctx, live)
	ctx, span := telemetry.StartSpan(ctx, "automation.restore",
		telemetry.AttrRunID.String(live.id.String()),
		telemetry.AttrReason.String(string(reason)))
	defer telemetry.EndSpan(span, &err)

	state := s.snapshot()
	if state.Phase != automation.PhaseRestoring {
		err = s.transition(ctx, automation.PhaseRestoring, func(st *automation.RunState) {
			st.Meta.TriggerReason = reason
		})
		if err != nil {
			log.Error("Cannot enter restoring", zap.Error(err))
			live.markRestoring()
			return
		}
	}
	newOrders := 0
	if state.Baseline != nil {
		newOrders = state.Baseline.NewOrderCount
	}
	s.publish(ctx, automation.NewRestoreTriggeredEvent(live.id, reason, newOrders))
	live.markRestoring()
	log.Info("Restoring original prices", zap.String("reason", string(reason)))

	ledger := automation.LedgerFromEntries(s.snapshot().Ledger)
	limiter := rate.NewLimiter(rate.Every(s.opts.RestoreChunkGap), 1)

	for _, chunk := range chunks(ledger.RestoreTargets(), s.opts.RestoreChunkSize) {
		if err = limiter.Wait(ctx); err != nil {
			log.Warn("Restoration interrupted; stop the run again to finish", zap.Error(err))
			return
		}

		batch := make([]integration.PriceUpdate, 0, len(chunk))
		for _, e := range chunk {
			batch = append(batch, integration.PriceUpdate{ProductID: e.ProductID, Price: e.OriginalPrice})
		}

		results, callErr := s.platform.UpdateProductPrices(ctx, batch)
		ok, failed := applyResults(batch, results, callErr, func(id string, cause error) {
			var markErr error
			if cause == nil {
				markErr = ledger.MarkRestored(id)
			} else {
				markErr = ledger.MarkRestoreFailed(id, cause)
			}
			if markErr != nil {
				log.Warn("Cannot record restore outcome", zap.String("product_id", id), zap.Error(markErr))
			}
		})
		if callErr != nil {
			log.Warn("Restore chunk failed", zap.Int("chunk_size", len(batch)), zap.Error(callErr))
		}

		s.metrics.Restores(ctx, true, ok)
		s.metrics.Restores(ctx, false, failed)
		s.update(ctx, func(st *automation.RunState) { st.Ledger = ledger.Snapshot() })
	}

	if ctx.Err() != nil {
		err = ctx.Err()
		return
	}

	err = s.transition(ctx, automation.PhaseComplete, func(st *automation.RunState) {
		completedAt := s.now()
		st.Meta.CompletedAt = &completedAt
	})
	if err != nil {
		log.Error("Cannot complete run", zap.Error(err))
		return
	}

	stats := ledger.Stats()
	log.Info("Run complete",
		zap.Int("restored", stats.Restored),
		zap.String("reason", string(reason)))
	s.archiveReport(ctx)
}

func (s *Service) archiveReport(ctx context.Context) {
	if s.archive == nil {
		return
	}
	report, err := automation.NewRunReport(s.snapshot())
	if err != nil {
		logger.L(ctx).Warn("Cannot build run report", zap.Error(err))
		return
	}
	if err := s.archive.Archive(ctx, report); err != nil {
		logger.L(ctx).Error("Failed to archive run report", zap.Error(err))
	}
}

// fail returns the run to idle after an error that happened before any
// price changed.
func (s *Service) fail(ctx context.Context, cause error) {
	log := logger.L(ctx)
	log.Error("Automation run failed", zap.Error(cause))

	err := s.transition(ctx, automation.PhaseIdle, func(st *automation.RunState) {
		st.Meta.LastError = cause.Error()
	})
	if err != nil {
		log.Error("Cannot return to idle", zap.Error(err))
	}
	s.publish(ctx, automation.NewRunFailedEvent(s.snapshot().Meta.RunID, cause))
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// runContext tags ctx and its logger with the run id once
func (s *Service) runContext(ctx context.Context, live *liveRun) (context.Context, *zap.Logger) {
	if logger.GetRunID(ctx) == live.id.String() {
		return ctx, logger.L(ctx)
	}
	return logger.WithRunID(ctx, s.logger, live.id.String())
}

// applyResults attributes a platform response to every item of batch. When
// the call failed as a whole, or an item is missing from results, the item
// fails.
func applyResults(
	batch []integration.PriceUpdate,
	results []integration.PriceUpdateResult,
	callErr error,
	record func(productID string, cause error),
) (ok, failed int) {
	byID := make(map[string]error, len(results))
	for _, r := range results {
		byID[r.ProductID] = r.Err
	}

	for _, u := range batch {
		cause := callErr
		if cause == nil {
			itemErr, found := byID[u.ProductID]
			switch {
			case !found:
				cause = errMissingResult
			default:
				cause = itemErr
			}
		}
		record(u.ProductID, cause)
		if cause == nil {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}

var errMissingResult = errors.New("platform returned no result for product")

func chunks[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}
