// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package reporter // import "go.opentelemetry.io/gpu-range-profiler/reporter"

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.opentelemetry.io/gpu-range-profiler/metrics"
)

// DefaultReportPath is the CSV report written when no path is configured.
const DefaultReportPath = "gpu_ranges.csv"

// CSVSink appends range,metric,value rows to a file. The file is opened and closed on
// every Write, so reports of successive calls accumulate.
type CSVSink struct {
	Path string
}

// NewCSVSink returns a CSVSink for path, or DefaultReportPath if path is empty.
func NewCSVSink(path string) *CSVSink {
	if path == "" {
		path = DefaultReportPath
	}
	return &CSVSink{Path: path}
}

func (c *CSVSink) Write(_ context.Context, rows []Row) (err error) {
	f, err := os.OpenFile(c.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	w := csv.NewWriter(f)
	for _, r := range rows {
		if err = w.Write([]string{
			r.Range,
			r.Metric,
			strconv.FormatFloat(r.Value, 'g', -1, 64),
		}); err != nil {
			return fmt.Errorf("write report %s: %w", c.Path, err)
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return fmt.Errorf("write report %s: %w", c.Path, err)
	}
	metrics.Add(metrics.IDReportRowsWritten, metrics.MetricValue(len(rows)))
	return nil
}
