// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/gpu-range-profiler/internal/controller"

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/gpu-range-profiler/capture"
	"go.opentelemetry.io/gpu-range-profiler/collection"
	"go.opentelemetry.io/gpu-range-profiler/counters"
	"go.opentelemetry.io/gpu-range-profiler/metrics"
	"go.opentelemetry.io/gpu-range-profiler/metrics/agentmetrics"
	"go.opentelemetry.io/gpu-range-profiler/profiler"
	"go.opentelemetry.io/gpu-range-profiler/reporter"
	"go.opentelemetry.io/gpu-range-profiler/times"
)

// Controller is an instance that replays one capture through the profiler.
type Controller struct {
	config *Config
	sinks  []reporter.Sink
	putter reporter.ObjectPutter
}

// Result summarizes a finished Run.
type Result struct {
	Replay capture.ReplayStats
	Rows   []reporter.Row
}

// New creates a new controller.
func New(cfg *Config, opts ...Option) *Controller {
	c := &Controller{config: cfg}
	for _, opt := range opts {
		c = opt.applyOption(c)
	}
	return c
}

// Run replays the capture, prints the reduced ranges and uploads the report if a bucket
// is configured. The simulated device runs until the replay finished.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	var res Result
	if c.config == nil {
		return res, errors.New("nil config")
	}
	if err := c.config.Validate(); err != nil {
		return res, err
	}
	reduction, err := reporter.ParseReduction(c.config.Reduction)
	if err != nil {
		return res, err
	}

	f, err := os.Open(c.config.CapturePath)
	if err != nil {
		return res, fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()
	events, err := capture.NewReader(f)
	if err != nil {
		return res, fmt.Errorf("failed to read capture %s: %w", c.config.CapturePath, err)
	}
	defer events.Close()

	intervals := times.New(c.config.FlushInterval, c.config.MonitorInterval,
		c.config.BufferSize())
	times.StartRealtimeSync(ctx, 0)

	if c.config.VerboseMode {
		metrics.SetReporter(newMetricsLogger())
		defer metrics.SetReporter(nil)
	}
	stopAgentMetrics, err := agentmetrics.Start(ctx, intervals.MonitorInterval())
	if err != nil {
		log.Warnf("Failed to start agent metrics: %v", err)
	}
	defer stopAgentMetrics()

	sink, err := c.buildSink()
	if err != nil {
		return res, err
	}

	sim := collection.NewSimulator(collection.SimulatorConfig{Times: intervals})
	engine := counters.NewMemoryEngine()
	sim.OnKernel(func(l collection.KernelLaunch) { engine.AddKernel(l.Name, l.Counters) })

	deviceCtx, stopDevice := context.WithCancel(ctx)
	defer stopDevice()
	deviceExited, err := sim.Start(deviceCtx)
	if err != nil {
		return res, fmt.Errorf("failed to start device: %w", err)
	}

	p, err := profiler.New(profiler.Config{
		Metrics:     c.config.MetricNames(),
		ReportPath:  c.config.ReportPath,
		StrictDrops: c.config.StrictDrops,
		BufferSize:  intervals.BufferSize(),
	}, profiler.WithSubsystem(sim), profiler.WithEngine(engine), profiler.WithSink(sink))
	if err != nil {
		return res, err
	}
	if err = p.Init(ctx); err != nil {
		return res, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-deviceExited
		log.Debug("Device worker exited")
		return nil
	})
	g.Go(func() error {
		defer stopDevice()
		start := time.Now()
		stats, err := capture.Replay(gctx, events, p, sim,
			capture.ReplayOptions{Speed: c.config.ReplaySpeed})
		res.Replay = stats
		log.Infof("Replayed %d events in %v (%d pushes, %d pops, %d kernels, %d memory)",
			stats.Events, time.Since(start), stats.Pushes, stats.Pops, stats.Kernels,
			stats.Memory)
		if stats.Errors > 0 || stats.Warnings > 0 {
			log.Warnf("%d range calls failed, %d returned warnings", stats.Errors,
				stats.Warnings)
		}

		// The ranges are reported even for a partial replay.
		rows, printErr := p.PrintRanges(gctx, reduction)
		res.Rows = rows
		return errors.Join(err, printErr, p.Shutdown(gctx))
	})
	if err = g.Wait(); err != nil {
		return res, err
	}

	log.Infof("Wrote %d rows to %s", len(res.Rows), reporter.NewCSVSink(c.config.ReportPath).Path)
	if err = c.upload(ctx); err != nil {
		return res, err
	}
	return res, nil
}
