// Package storage archives completed run reports to a local directory or an
// S3-compatible bucket.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/pricecycle/backend/internal/domain/automation"
	infraconfig "github.com/pricecycle/backend/internal/infrastructure/config"
)

// Archive drivers
const (
	DriverNone  = "none"
	DriverLocal = "local"
	DriverS3    = "s3"
)

// NewRunArchive builds the archive selected by cfg.Driver.
func NewRunArchive(ctx context.Context, cfg infraconfig.ArchiveConfig, logger *zap.Logger) (automation.RunArchive, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return NoopRunArchive{}, nil
	case DriverLocal:
		return NewLocalRunArchive(cfg.LocalPath, WithLogger(logger))
	case DriverS3:
		return NewS3RunArchive(ctx, cfg, WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}

// ReportKey returns the object key of a report: <prefix>YYYY/MM/DD/<run id>.json
func ReportKey(prefix string, report *automation.RunReport) string {
	day := report.CompletedAt.UTC().Format("2006/01/02")
	return prefix + path.Join(day, report.RunID.String()+".json")
}

func encodeReport(report *automation.RunReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode run report: %w", err)
	}
	return data, nil
}

// Option configures an archive
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NoopRunArchive discards reports
type NoopRunArchive struct{}

// Archive implements automation.RunArchive
func (NoopRunArchive) Archive(context.Context, *automation.RunReport) error { return nil }
