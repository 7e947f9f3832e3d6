package automation

import (
	"time"

	"github.com/pricecycle/backend/internal/infrastructure/config"
)

// RunDefaults fill the fields a start request leaves empty
type RunDefaults struct {
	DiscountAmount     int64
	RestoreDelay       time.Duration
	OrderThreshold     int
	MonitoringInterval time.Duration
}

// Options tunes pacing and defaults of the service
type Options struct {
	Defaults RunDefaults

	// BatchChunkSize and BatchChunkGap pace adjustments on backends with a batch mutation
	BatchChunkSize int
	BatchChunkGap  time.Duration
	// SequentialChunkGap paces single-item chunks on backends without one
	SequentialChunkGap time.Duration

	RestoreChunkSize int
	RestoreChunkGap  time.Duration

	// StopWaitTimeout bounds how long Stop waits for the run to reach restoring
	StopWaitTimeout time.Duration
}

// DefaultOptions returns the pacing used by the storefront integration
func DefaultOptions() Options {
	return Options{
		Defaults: RunDefaults{
			DiscountAmount:     100,
			RestoreDelay:       2 * time.Hour,
			OrderThreshold:     1,
			MonitoringInterval: 30 * time.Second,
		},
		BatchChunkSize:     10,
		BatchChunkGap:      time.Second,
		SequentialChunkGap: 200 * time.Millisecond,
		RestoreChunkSize:   10,
		RestoreChunkGap:    time.Second,
		StopWaitTimeout:    30 * time.Second,
	}
}

// OptionsFromConfig maps the automation config section
func OptionsFromConfig(cfg config.AutomationConfig) Options {
	o := Options{
		Defaults: RunDefaults{
			DiscountAmount:     cfg.DefaultDiscount,
			RestoreDelay:       cfg.DefaultRestoreDelay,
			OrderThreshold:     cfg.DefaultOrderThreshold,
			MonitoringInterval: cfg.MonitoringInterval,
		},
		BatchChunkSize:     cfg.BatchChunkSize,
		BatchChunkGap:      cfg.BatchChunkGap,
		SequentialChunkGap: cfg.SequentialChunkGap,
		RestoreChunkSize:   cfg.RestoreChunkSize,
		RestoreChunkGap:    cfg.RestoreChunkGap,
		StopWaitTimeout:    cfg.StopWaitTimeout,
	}
	o.fill()
	return o
}

// fill replaces unset values with DefaultOptions
func (o *Options) fill() {
	d := DefaultOptions()
	if o.Defaults.DiscountAmount <= 0 {
		o.Defaults.DiscountAmount = d.Defaults.DiscountAmount
	}
	if o.Defaults.RestoreDelay <= 0 {
		o.Defaults.RestoreDelay = d.Defaults.RestoreDelay
	}
	if o.Defaults.OrderThreshold < 0 {
		o.Defaults.OrderThreshold = d.Defaults.OrderThreshold
	}
	if o.Defaults.MonitoringInterval <= 0 {
		o.Defaults.MonitoringInterval = d.Defaults.MonitoringInterval
	}
	if o.BatchChunkSize <= 0 {
		o.BatchChunkSize = d.BatchChunkSize
	}
	if o.BatchChunkGap <= 0 {
		o.BatchChunkGap = d.BatchChunkGap
	}
	if o.SequentialChunkGap <= 0 {
		o.SequentialChunkGap = d.SequentialChunkGap
	}
	if o.RestoreChunkSize <= 0 {
		o.RestoreChunkSize = d.RestoreChunkSize
	}
	if o.RestoreChunkGap <= 0 {
		o.RestoreChunkGap = d.RestoreChunkGap
	}
	if o.StopWaitTimeout <= 0 {
		o.StopWaitTimeout = d.StopWaitTimeout
	}
}
