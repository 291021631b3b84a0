// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/gpu-range-profiler/internal/controller"

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/gpu-range-profiler/metrics"
	"go.opentelemetry.io/gpu-range-profiler/reporter"
)

// buildSink returns the CSV report sink, fanned out to the exporter and any extra sinks.
func (c *Controller) buildSink() (reporter.Sink, error) {
	sinks := reporter.Fanout{reporter.NewCSVSink(c.config.ReportPath)}
	if c.config.Exporter != nil {
		exp, err := reporter.NewMetricsExporter(c.config.Exporter)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
		}
		sinks = append(sinks, exp)
	}
	sinks = append(sinks, c.sinks...)
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

// upload copies the report into the configured bucket.
func (c *Controller) upload(ctx context.Context) error {
	if c.config.S3Bucket == "" {
		return nil
	}
	putter := c.putter
	if putter == nil {
		client, err := reporter.NewS3Client(ctx, c.config.S3Region, c.config.S3Endpoint)
		if err != nil {
			return err
		}
		putter = client
	}
	up, err := reporter.NewS3Uploader(putter, c.config.S3Bucket, c.config.ObjectKey())
	if err != nil {
		return err
	}
	return up.Upload(ctx, reporter.NewCSVSink(c.config.ReportPath).Path)
}

// metricsLogger prints the profiler's own metrics in verbose mode.
type metricsLogger struct {
	names map[metrics.MetricID]string
}

func newMetricsLogger() *metricsLogger {
	names := map[metrics.MetricID]string{}
	for _, md := range metrics.GetDefinitions() {
		names[md.ID] = md.Field
	}
	return &metricsLogger{names: names}
}

func (m *metricsLogger) ReportMetrics(timestamp uint32, ids []uint32, values []int64) {
	for i, id := range ids {
		log.Debugf("Metric %d %s: %d", timestamp, m.names[metrics.MetricID(id)], values[i])
	}
}
