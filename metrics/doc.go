// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package metrics collects the profiler's own health counters: buffers exchanged with the
collection subsystem, records attributed or dropped, ranges pushed and popped, and
reconciliation outcomes.

Metric IDs are defined in metrics.json and turned into ids.go by genids. Values are
buffered per wall-clock second and handed to the OTel meter and an optional Reporter when
the second changes or on Flush.

	metrics.Add(metrics.IDRangesPushed, 1)
	defer metrics.Flush()
*/
package metrics // import "go.opentelemetry.io/gpu-range-profiler/metrics"
