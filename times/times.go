// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package times holds the intervals and sizes shared by the collection and reporting
// components.
package times // import "go.opentelemetry.io/gpu-range-profiler/times"

import (
	"cmp"
	"context"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/gpu-range-profiler/periodiccaller"
)

const (
	// Number of timing samples to use when retrieving system boot time.
	sampleSize = 5

	// DefaultFlushInterval is how often buffered activity records are delivered without
	// an explicit flush.
	DefaultFlushInterval = 100 * time.Millisecond
	// DefaultMonitorInterval is how often the profiler samples its own resource usage.
	DefaultMonitorInterval = 1 * time.Second
	// DefaultBufferSize is the activity buffer size handed to the collection subsystem.
	DefaultBufferSize = 16 * 1024
)

// Compile time check for interface adherence
var _ IntervalsAndSizes = (*Times)(nil)

// Monotonic-to-unixtime delta that can be added to a KTime to get time-since-epoch.
var bootTimeUnixNano atomic.Int64

// Times holds the intervals and sizes used across the profiler in a central place.
type Times struct {
	flushInterval   time.Duration
	monitorInterval time.Duration
	bufferSize      int
}

// IntervalsAndSizes is a meta-interface that exists purely to document its functionality.
type IntervalsAndSizes interface {
	// FlushInterval defines the interval at which the collection subsystem delivers
	// buffered records on its own.
	FlushInterval() time.Duration
	// MonitorInterval defines the interval for the profiler's resource usage metrics.
	MonitorInterval() time.Duration
	// BufferSize defines the size in bytes of each activity buffer.
	BufferSize() int
}

func (t *Times) FlushInterval() time.Duration { return t.flushInterval }

func (t *Times) MonitorInterval() time.Duration { return t.monitorInterval }

func (t *Times) BufferSize() int { return t.bufferSize }

// New returns a new Times instance. Zero values select the defaults.
func New(flushInterval, monitorInterval time.Duration, bufferSize int) *Times {
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	if monitorInterval <= 0 {
		monitorInterval = DefaultMonitorInterval
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Times{
		flushInterval:   flushInterval,
		monitorInterval: monitorInterval,
		bufferSize:      bufferSize,
	}
}

// StartRealtimeSync calculates the delta between the monotonic clock and the realtime
// clock. If syncInterval is greater than zero, it also recalculates it periodically.
func StartRealtimeSync(ctx context.Context, syncInterval time.Duration) {
	bootTimeUnixNano.Store(getBootTimeUnixNano())

	if syncInterval > 0 {
		periodiccaller.Start(ctx, syncInterval, func() {
			bootTimeUnixNano.Store(getBootTimeUnixNano())
		})
	}
}

// getBootTimeUnixNano returns system boot time in nanoseconds since the epoch,
// temporarily locking the calling goroutine to its OS thread.
func getBootTimeUnixNano() int64 {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	type sample struct {
		t1    time.Time
		ktime int64
		t2    time.Time
	}
	samples := make([]sample, sampleSize)

	for i := range samples {
		// Pick the measurement with the lowest delta to avoid scheduling noise.
		samples[i].t1 = time.Now()
		samples[i].ktime = int64(GetKTime())
		samples[i].t2 = time.Now()
	}

	slices.SortFunc(samples, func(a, b sample) int {
		da := a.t2.Sub(a.t1).Abs()
		db := b.t2.Sub(b.t1).Abs()
		return cmp.Compare(da, db)
	})

	return samples[0].t1.UnixNano() - samples[0].ktime
}
