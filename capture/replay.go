// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package capture // import "go.opentelemetry.io/gpu-range-profiler/capture"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/gpu-range-profiler/collection"
	"go.opentelemetry.io/gpu-range-profiler/session"
)

// Ranges is the range API a capture is replayed against.
type Ranges interface {
	PushRange(ctx context.Context, name string, category session.Category) session.Result
	PopRange(ctx context.Context, name string, category session.Category) session.Result
}

// Device issues the recorded device work.
type Device interface {
	Launch(ctx context.Context, l collection.KernelLaunch) error
	MemoryOp(ctx context.Context, rec session.MemoryRecord) error
}

// ReplayOptions tune Replay.
type ReplayOptions struct {
	// Speed scales recorded sleeps. 0 skips them, 1 replays in real time.
	Speed float64
}

// ReplayStats counts what Replay did.
type ReplayStats struct {
	Events   int
	Pushes   int
	Pops     int
	Kernels  int
	Memory   int
	Warnings int
	Errors   int
}

// Replay feeds every event of r into ranges and device until the end of the stream.
// Failed range calls are counted and replay continues, as an application would.
func Replay(ctx context.Context, r *Reader, ranges Ranges, device Device,
	opts ReplayOptions) (ReplayStats, error) {
	var stats ReplayStats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("event %d: %w", stats.Events, err)
		}
		stats.Events++

		switch ev.Kind {
		case EventPush:
			stats.Pushes++
			stats.count(ranges.PushRange(ctx, ev.Name, ev.Category))
		case EventPop:
			stats.Pops++
			stats.count(ranges.PopRange(ctx, ev.Name, ev.Category))
		case EventKernel:
			stats.Kernels++
			if err = device.Launch(ctx, ev.Kernel.Launch()); err != nil {
				return stats, fmt.Errorf("launch %s: %w", ev.Kernel.Name, err)
			}
		case EventMemory:
			stats.Memory++
			if err = device.MemoryOp(ctx, ev.Memory.Record()); err != nil {
				return stats, fmt.Errorf("memory %v: %w", ev.Memory.Operation, err)
			}
		case EventSleep:
			if err = sleep(ctx, time.Duration(float64(ev.Sleep)*opts.Speed)); err != nil {
				return stats, err
			}
		}
	}
}

func (s *ReplayStats) count(res session.Result) {
	switch res {
	case session.Warning:
		s.Warnings++
	case session.Error:
		s.Errors++
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	log.Debugf("Replay sleeping %v", d)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
