package main

import (
	"context"
	"fmt"
	"io"

	appautomation "github.com/pricecycle/backend/internal/application/automation"
	"github.com/pricecycle/backend/internal/infrastructure/cache"
	"github.com/pricecycle/backend/internal/infrastructure/config"
	"github.com/pricecycle/backend/internal/infrastructure/ecommerce"
	"github.com/pricecycle/backend/internal/infrastructure/logger"
)

type checkReport struct {
	Connection *appautomation.ConnectionReport `json:"connection"`
	LatencyMS  int64                           `json:"latency_ms"`
	Products   []appautomation.ProductPreview  `json:"products,omitempty"`
	Error      string                          `json:"error,omitempty"`
}

// runCheck reports whether the configured platform is reachable and what
// the default discount would do to the first limit products. Nothing is
// persisted and no price is changed.
func runCheck(ctx context.Context, cfg *config.Config, limit int, out io.Writer) error {
	log, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: "console", Output: "stderr"})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync(log)

	platform, err := ecommerce.NewCatalogPlatform(cfg.Platform, cfg.Automation.EmulatedBatchGap, log, nil)
	if err != nil {
		return fmt.Errorf("init platform: %w", err)
	}
	svc := appautomation.NewService(platform, cache.NewInMemoryStateStore(),
		appautomation.OptionsFromConfig(cfg.Automation), appautomation.WithLogger(log))

	conn := svc.CheckConnection(ctx)
	report := checkReport{Connection: conn, LatencyMS: conn.Latency.Milliseconds()}
	if conn.OK {
		products, err := svc.PreviewProducts(ctx, limit)
		if err != nil {
			report.Error = err.Error()
		}
		report.Products = products
	}
	if err := writeJSON(out, report); err != nil {
		return err
	}
	if !conn.OK {
		return fmt.Errorf("platform %s unreachable: %s", conn.Platform, conn.Error)
	}
	return nil
}
