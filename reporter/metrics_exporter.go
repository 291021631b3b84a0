// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package reporter // import "go.opentelemetry.io/gpu-range-profiler/reporter"

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/collector/consumer"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/pmetric"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"

	"go.opentelemetry.io/gpu-range-profiler/vc"
)

const (
	// ScopeName is the instrumentation scope of exported range metrics.
	ScopeName = "go.opentelemetry.io/gpu-range-profiler"
	// ServiceName is the service.name of the exporting resource.
	ServiceName = "gpu-range-profiler"

	AttrRangeName = "gpu.range.name"
	AttrReduction = "gpu.range.reduction"
	AttrSessionID = "gpu.session.id"

	// defaultBacklog is the number of undelivered reports kept for retry.
	defaultBacklog = 16
)

// MetricsExporter converts rows into gauges and pushes them to an OpenTelemetry
// Collector consumer. A report the consumer rejected is retried before the next one.
type MetricsExporter struct {
	next    consumer.Metrics
	backlog *backlog[pmetric.Metrics]
	now     func() time.Time
}

// NewMetricsExporter returns an exporter pushing to next.
func NewMetricsExporter(next consumer.Metrics) (*MetricsExporter, error) {
	if next == nil {
		return nil, errors.New("nil metrics consumer")
	}
	b, err := newBacklog[pmetric.Metrics](defaultBacklog, "range metrics")
	if err != nil {
		return nil, err
	}
	return &MetricsExporter{next: next, backlog: b, now: time.Now}, nil
}

// Write implements Sink.
func (e *MetricsExporter) Write(ctx context.Context, rows []Row) error {
	pending := e.backlog.Drain()
	if len(rows) > 0 {
		pending = append(pending, e.convert(rows))
	}

	var errs []error
	for i, md := range pending {
		if err := e.next.ConsumeMetrics(ctx, md); err != nil {
			for _, retry := range pending[i:] {
				e.backlog.Push(retry)
			}
			errs = append(errs, fmt.Errorf("consume %d data points: %w", md.DataPointCount(), err))
			break
		}
	}
	if n := e.backlog.Overwritten(); n > 0 {
		log.Warnf("Lost %d undelivered range metric reports", n)
	}
	return errors.Join(errs...)
}

// Pending returns the number of reports waiting for retry.
func (e *MetricsExporter) Pending() int {
	return e.backlog.Len()
}

// convert builds one gauge per metric name, with one data point per session.
func (e *MetricsExporter) convert(rows []Row) pmetric.Metrics {
	md := pmetric.NewMetrics()
	rm := md.ResourceMetrics().AppendEmpty()
	rm.SetSchemaUrl(semconv.SchemaURL)
	attrs := rm.Resource().Attributes()
	attrs.PutStr(string(semconv.ServiceNameKey), ServiceName)
	attrs.PutStr(string(semconv.ServiceVersionKey), vc.Version())
	attrs.PutInt(string(semconv.ProcessPIDKey), int64(os.Getpid()))
	if hostname, err := os.Hostname(); err == nil {
		attrs.PutStr(string(semconv.HostNameKey), hostname)
	}

	sm := rm.ScopeMetrics().AppendEmpty()
	sm.Scope().SetName(ScopeName)
	sm.Scope().SetVersion(vc.Version())

	ts := pcommon.NewTimestampFromTime(e.now())
	gauges := map[string]pmetric.Gauge{}
	for _, r := range rows {
		g, ok := gauges[r.Metric]
		if !ok {
			m := sm.Metrics().AppendEmpty()
			m.SetName(r.Metric)
			m.SetDescription("Counter value reduced over the kernels of a range")
			g = m.SetEmptyGauge()
			gauges[r.Metric] = g
		}
		dp := g.DataPoints().AppendEmpty()
		dp.SetTimestamp(ts)
		dp.SetDoubleValue(r.Value)
		dp.Attributes().PutStr(AttrRangeName, r.Range)
		dp.Attributes().PutStr(AttrReduction, r.Reduction.String())
		dp.Attributes().PutStr(AttrSessionID, r.SessionID.String())
	}
	return md
}
