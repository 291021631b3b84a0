// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentmetrics reports the profiler process' own resource usage.
package agentmetrics // import "go.opentelemetry.io/gpu-range-profiler/metrics/agentmetrics"

import (
	"context"
	"runtime"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"go.opentelemetry.io/gpu-range-profiler/metrics"
	"go.opentelemetry.io/gpu-range-profiler/periodiccaller"
)

// cpuTimes holds the rusage values of the previous sample.
type cpuTimes struct {
	utime unix.Timeval
	stime unix.Timeval
}

// timeDelta returns now-prev in milliseconds.
func timeDelta(now, prev unix.Timeval) int64 {
	secDelta := (now.Sec - prev.Sec) * 1000
	usecDelta := (now.Usec - prev.Usec) / 1000
	return int64(secDelta + usecDelta)
}

func (c *cpuTimes) sample() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	var rusage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &rusage); err != nil {
		log.Errorf("Failed to fetch Rusage: %v", err)
		return
	}

	deltaUtime := timeDelta(rusage.Utime, c.utime)
	deltaStime := timeDelta(rusage.Stime, c.stime)
	c.utime, c.stime = rusage.Utime, rusage.Stime

	metrics.AddSlice([]metrics.Metric{
		{ID: metrics.IDAgentGoRoutines, Value: metrics.MetricValue(runtime.NumGoroutine())},
		{ID: metrics.IDAgentHeapAlloc, Value: metrics.MetricValue(stats.HeapAlloc)},
		{ID: metrics.IDAgentUTime, Value: metrics.MetricValue(deltaUtime)},
		{ID: metrics.IDAgentSTime, Value: metrics.MetricValue(deltaStime)},
	})
}

// Start samples resource usage every interval until the returned function is called or
// ctx is canceled.
func Start(ctx context.Context, interval time.Duration) (func(), error) {
	var rusage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &rusage); err != nil {
		return func() {}, err
	}
	prev := cpuTimes{utime: rusage.Utime, stime: rusage.Stime}

	ctx, cancel := context.WithCancel(ctx)
	stop := periodiccaller.Start(ctx, interval, prev.sample)

	return func() {
		cancel()
		stop()
	}, nil
}
