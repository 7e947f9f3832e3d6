package ecommerce

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pricecycle/backend/internal/domain/integration"
	"github.com/pricecycle/backend/internal/infrastructure/config"
)

// NewCatalogPlatform builds the adapter selected by cfg.Mode. recorder may be nil.
func NewCatalogPlatform(cfg config.PlatformConfig, emulatedBatchGap time.Duration, logger *zap.Logger, recorder CallRecorder) (integration.CatalogPlatform, error) {
	switch cfg.Mode {
	case config.PlatformSimulated:
		return NewSimulatedPlatform(SimulatedOptions{
			Products: cfg.SimulatedProducts,
			PageSize: cfg.PageSize,
			Batch:    true,
		}), nil
	case config.PlatformOfficial, config.PlatformWeb:
		opts := []AdapterOption{WithAdapterLogger(logger)}
		if recorder != nil {
			opts = append(opts, WithCallRecorder(recorder))
		}
		return NewGraphQLAdapter(NewGraphQLConfig(cfg, emulatedBatchGap), opts...)
	default:
		return nil, fmt.Errorf("%w: unknown platform mode %q", integration.ErrPlatformNotConfigured, cfg.Mode)
	}
}
