package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/pricecycle/backend/internal/domain/automation"
	infraconfig "github.com/pricecycle/backend/internal/infrastructure/config"
)

// ErrReportNotFound is returned by Fetch for unknown keys
var ErrReportNotFound = errors.New("storage: run report not found")

// S3RunArchive uploads reports to any S3-compatible store (AWS S3, MinIO, RustFS).
type S3RunArchive struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3RunArchive creates an archive from configuration. Empty credentials
// fall back to the default AWS credential chain.
func NewS3RunArchive(ctx context.Context, cfg infraconfig.ArchiveConfig, opts ...Option) (*S3RunArchive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid archive endpoint: %w", err)
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		// S3-compatible stores often reject the flexible checksum trailers
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	o := applyOptions(opts)
	return &S3RunArchive{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: o.logger,
	}, nil
}

// Archive implements automation.RunArchive
func (a *S3RunArchive) Archive(ctx context.Context, report *automation.RunReport) error {
	data, err := encodeReport(report)
	if err != nil {
		return err
	}
	key := ReportKey(a.prefix, report)

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload run report: %w", err)
	}

	a.logger.Info("Run report archived",
		zap.String("run_id", report.RunID.String()),
		zap.String("bucket", a.bucket),
		zap.String("key", key),
	)
	return nil
}

// Fetch downloads a stored report body by key
func (a *S3RunArchive) Fetch(ctx context.Context, key string) ([]byte, error) {
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("failed to download run report: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Bucket returns the bucket name
func (a *S3RunArchive) Bucket() string {
	return a.bucket
}

var _ automation.RunArchive = (*S3RunArchive)(nil)
