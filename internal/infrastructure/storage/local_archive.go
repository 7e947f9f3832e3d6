package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pricecycle/backend/internal/domain/automation"
)

// LocalRunArchive writes reports below a directory on disk
type LocalRunArchive struct {
	root   string
	logger *zap.Logger
}

// NewLocalRunArchive creates the root directory if needed.
func NewLocalRunArchive(root string, opts ...Option) (*LocalRunArchive, error) {
	if root == "" {
		return nil, errors.New("archive path is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create archive directory %s: %w", root, err)
	}
	o := applyOptions(opts)
	return &LocalRunArchive{root: root, logger: o.logger}, nil
}

// Archive implements automation.RunArchive. The file is written to a temp
// name first and renamed into place.
func (a *LocalRunArchive) Archive(ctx context.Context, report *automation.RunReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeReport(report)
	if err != nil {
		return err
	}

	target := filepath.Join(a.root, filepath.FromSlash(ReportKey("", report)))
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write run report: %w", err)
	}

	a.logger.Info("Run report archived",
		zap.String("run_id", report.RunID.String()),
		zap.String("path", target),
	)
	return nil
}

var _ automation.RunArchive = (*LocalRunArchive)(nil)
