// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package reporter // import "go.opentelemetry.io/gpu-range-profiler/reporter"

import (
	"context"
	"errors"
)

// Sink receives reduced rows.
type Sink interface {
	Write(ctx context.Context, rows []Row) error
}

// Compile time check for interface adherence
var (
	_ Sink = (*CSVSink)(nil)
	_ Sink = (*MetricsExporter)(nil)
	_ Sink = Fanout(nil)
)

// Fanout writes rows to every sink. All sinks are written even if one fails.
type Fanout []Sink

func (f Fanout) Write(ctx context.Context, rows []Row) error {
	var errs []error
	for _, s := range f {
		if err := s.Write(ctx, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
