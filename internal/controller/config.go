// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/gpu-range-profiler/internal/controller"

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/collector/consumer"

	"go.opentelemetry.io/gpu-range-profiler/activity"
	"go.opentelemetry.io/gpu-range-profiler/reporter"
	"go.opentelemetry.io/gpu-range-profiler/times"
)

// MaxBufferRecords bounds the records a single activity buffer holds.
const MaxBufferRecords = 4096

// DefaultBufferRecords is the number of kernel records that fit the default activity
// buffer size.
var DefaultBufferRecords = uint(times.DefaultBufferSize / activity.RecordSize(activity.KindKernel))

// Config holds the settings of one replay run.
type Config struct {
	CapturePath     string
	Reduction       string
	ReportPath      string
	Metrics         string
	FlushInterval   time.Duration
	MonitorInterval time.Duration
	BufferRecords   uint
	StrictDrops     bool
	ReplaySpeed     float64

	S3Bucket   string
	S3Key      string
	S3Region   string
	S3Endpoint string

	Copyright   bool
	Version     bool
	VerboseMode bool

	// Exporter, if set, additionally receives the reduced rows as gauges.
	Exporter consumer.Metrics

	Fs *flag.FlagSet
}

// Dump visits all flag sets, and dumps them all to debug
// Used for verbose mode logging.
func (cfg *Config) Dump() {
	log.Debug("Config:")
	cfg.Fs.VisitAll(func(f *flag.Flag) {
		log.Debug(fmt.Sprintf("%s: %v", f.Name, f.Value))
	})
}

// Validate runs validations on the provided configuration, and returns errors
// if invalid values were provided.
func (cfg *Config) Validate() error {
	if cfg.CapturePath == "" {
		return errors.New("no capture file given")
	}
	if _, err := reporter.ParseReduction(cfg.Reduction); err != nil {
		return err
	}
	if cfg.BufferRecords == 0 || cfg.BufferRecords > MaxBufferRecords {
		return fmt.Errorf("buffer records %d out of range [1..%d]",
			cfg.BufferRecords, MaxBufferRecords)
	}
	if cfg.FlushInterval < 0 || cfg.MonitorInterval < 0 {
		return errors.New("intervals must not be negative")
	}
	if cfg.ReplaySpeed < 0 {
		return fmt.Errorf("invalid replay speed %v", cfg.ReplaySpeed)
	}
	if cfg.S3Key != "" && cfg.S3Bucket == "" {
		return errors.New("an S3 key requires an S3 bucket")
	}
	return nil
}

// MetricNames returns the configured counter metrics.
func (cfg *Config) MetricNames() []string {
	var names []string
	for _, name := range strings.Split(cfg.Metrics, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// BufferSize returns the activity buffer size in bytes.
func (cfg *Config) BufferSize() int {
	return int(cfg.BufferRecords) * activity.RecordSize(activity.KindKernel)
}

// ObjectKey returns the key the report is uploaded under.
func (cfg *Config) ObjectKey() string {
	if cfg.S3Key != "" {
		return cfg.S3Key
	}
	path := cfg.ReportPath
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[i+1:]
	}
	if path == "" {
		path = reporter.DefaultReportPath
	}
	return path
}
