// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package profiler is the public API for bracketing GPU work with named ranges and
// reporting the counter values collected inside them.
//
// A Profiler is owned by its caller. It is created with New, wired to the collection
// subsystem by Init and torn down by Shutdown:
//
//	p, err := profiler.New(cfg, profiler.WithSubsystem(sim), profiler.WithEngine(engine))
//	...
//	p.PushRange(ctx, "step", session.Kernel)
//	// launch kernels
//	p.PopRange(ctx, "step", session.Kernel)
//	rows, err := p.PrintRanges(ctx, reporter.Sum)
package profiler // import "go.opentelemetry.io/gpu-range-profiler/profiler"

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/gpu-range-profiler/activity"
	"go.opentelemetry.io/gpu-range-profiler/annotate"
	"go.opentelemetry.io/gpu-range-profiler/collection"
	"go.opentelemetry.io/gpu-range-profiler/correlator"
	"go.opentelemetry.io/gpu-range-profiler/counters"
	"go.opentelemetry.io/gpu-range-profiler/kernelsym"
	"go.opentelemetry.io/gpu-range-profiler/metrics"
	"go.opentelemetry.io/gpu-range-profiler/reconcile"
	"go.opentelemetry.io/gpu-range-profiler/reporter"
	"go.opentelemetry.io/gpu-range-profiler/session"
)

// Profiler correlates activity records and counter ranges with named ranges.
type Profiler struct {
	cfg Config

	subsystem   collection.Subsystem
	device      collection.Device
	engine      counters.Engine
	sink        reporter.Sink
	symbols     *kernelsym.Demangler
	fatal       FatalFunc
	strictDrops bool

	manager     *session.Manager
	router      *activity.Router
	correlator  *correlator.Correlator
	annotations *annotate.Stack

	enabled     atomic.Bool
	initialized atomic.Bool
	shutdown    atomic.Bool
}

// New creates a Profiler. A collection subsystem and a device are required, either
// given separately or as one value implementing both.
func New(cfg Config, opts ...Option) (*Profiler, error) {
	p := &Profiler{
		cfg:         cfg,
		fatal:       log.Fatalf,
		strictDrops: cfg.StrictDrops,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.subsystem == nil {
		return nil, errors.New("no collection subsystem configured")
	}
	if p.device == nil {
		d, ok := p.subsystem.(collection.Device)
		if !ok {
			return nil, errors.New("no device configured")
		}
		p.device = d
	}
	if p.engine == nil {
		p.engine = counters.NewMemoryEngine(cfg.Metrics...)
	}
	if p.sink == nil {
		p.sink = reporter.NewCSVSink(cfg.ReportPath)
	}
	if p.symbols == nil {
		size := cfg.SymbolCacheSize
		if size == 0 {
			size = kernelsym.DefaultCacheSize
		}
		symbols, err := kernelsym.New(size)
		if err != nil {
			return nil, fmt.Errorf("failed to create symbol cache: %w", err)
		}
		p.symbols = symbols
	}

	drops, _ := p.subsystem.(activity.DroppedCounter)
	p.manager = session.NewManager()
	p.router = activity.NewRouter(p.manager, p.symbols, drops, cfg.BufferSize)
	p.correlator = correlator.New(p.manager, p.subsystem, p.device, p.engine)
	p.annotations = annotate.New()
	p.enabled.Store(true)
	return p, nil
}

// Init registers the activity callbacks and configures the counter metrics.
func (p *Profiler) Init(_ context.Context) error {
	if !p.initialized.CompareAndSwap(false, true) {
		return errors.New("profiler already initialized")
	}

	if err := p.subsystem.RegisterCallbacks(p.router.BufferRequested, p.bufferCompleted); err != nil {
		return fmt.Errorf("failed to register activity callbacks: %w", err)
	}
	if sub, ok := p.subsystem.(collection.APISubscriber); ok {
		if err := sub.SubscribeAPI(p.router.APIEnter, p.router.APIExit); err != nil {
			return fmt.Errorf("failed to subscribe to launch API: %w", err)
		}
	}
	if err := p.engine.AddMetrics(p.cfg.Metrics...); err != nil {
		return fmt.Errorf("failed to add metrics: %w", err)
	}
	log.Debugf("Profiler initialized with metrics %v", p.engine.Metrics())
	return nil
}

// bufferCompleted treats decode failures as fatal. The error is also returned so the
// subsystem stops delivering into a broken pipe if the handler returns.
func (p *Profiler) bufferCompleted(ctx context.Context, streamID uint32, buf []byte,
	validSize int) error {
	err := p.router.BufferCompleted(ctx, streamID, buf, validSize)
	if err != nil {
		p.fatal("Failed to decode activity buffer: %v", err)
	}
	return err
}

// Enable turns the profiler on.
func (p *Profiler) Enable() {
	p.enabled.Store(true)
}

// Disable turns every public call into a successful no-op.
func (p *Profiler) Disable() {
	p.enabled.Store(false)
}

// Enabled reports whether the profiler is on.
func (p *Profiler) Enabled() bool {
	return p.enabled.Load()
}

// PushRange opens range name for category.
func (p *Profiler) PushRange(ctx context.Context, name string, category session.Category) session.Result {
	if !p.enabled.Load() {
		return session.Success
	}
	err := p.correlator.Push(ctx, name, category)
	switch {
	case err == nil:
		p.annotations.Start(name)
		metrics.Add(metrics.IDRangesPushed, 1)
		log.Debugf("Pushed %s range %s", category, name)
	case errors.Is(err, correlator.ErrAlreadyOpen):
		log.Warnf("Cannot push range %s: %v", name, err)
	default:
		p.report("push", name, err)
	}
	if err != nil {
		metrics.Add(metrics.IDRangePushFailures, 1)
	}
	return session.ResultOf(err)
}

// PopRange closes range name of category.
func (p *Profiler) PopRange(ctx context.Context, name string, category session.Category) session.Result {
	if !p.enabled.Load() {
		return session.Success
	}
	err := p.correlator.Pop(ctx, name, category)
	switch {
	case err == nil:
		p.annotations.End(name)
		metrics.Add(metrics.IDRangesPopped, 1)
		log.Debugf("Popped %s range %s", category, name)
	case errors.Is(err, session.ErrAlreadyInactive):
		log.Warnf("Range %s already closed: %v", name, err)
	default:
		p.report("pop", name, err)
	}
	if err != nil && !errors.Is(err, session.ErrAlreadyInactive) {
		metrics.Add(metrics.IDRangePopFailures, 1)
	}
	return session.ResultOf(err)
}

// report logs err, handing collaborator failures to the fatal handler.
func (p *Profiler) report(op, name string, err error) {
	if errors.Is(err, correlator.ErrCollaborator) {
		p.fatal("Failed to %s range %s: %v", op, name, err)
		return
	}
	log.Errorf("Failed to %s range %s: %v", op, name, err)
}

// PrintRanges decodes the counter data, reconciles it with the kernel sessions and
// writes the reduced rows to the sink. A reconciliation mismatch is logged and the rows
// are still produced where the windows allow.
func (p *Profiler) PrintRanges(ctx context.Context, r reporter.Reduction) ([]reporter.Row, error) {
	if !p.enabled.Load() {
		return nil, nil
	}
	if err := p.engine.Decode(ctx); err != nil {
		return nil, fmt.Errorf("failed to decode counter data: %w", err)
	}

	check, err := reconcile.Check(ctx, p.manager, p.engine, p.router.Dropped(),
		reconcile.Options{StrictDrops: p.strictDrops})
	switch {
	case errors.Is(err, reconcile.ErrReconciliationMismatch):
		log.Errorf("Report is unreliable: %v", err)
	case err != nil:
		return nil, err
	case check.Dropped > 0:
		log.Warnf("%d activity records were dropped, ranges may be under-reported",
			check.Dropped)
	}

	ranges, err := p.engine.Ranges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read counter ranges: %w", err)
	}
	rows, err := reporter.Reduce(p.manager.AllKernelRecords(), ranges, r)
	switch {
	case errors.Is(err, reporter.ErrWindow):
		log.Errorf("Reporting %d rows, remaining sessions lack counter ranges: %v",
			len(rows), err)
	case err != nil:
		return nil, err
	}

	log.Infof("Number of ranges: %d", check.Ranges)
	for _, row := range rows {
		log.Infof("%s %s %s: %g", row.Range, row.Reduction, row.Metric, row.Value)
	}
	if err = p.sink.Write(ctx, rows); err != nil {
		return rows, fmt.Errorf("failed to write report: %w", err)
	}
	return rows, nil
}

// MemoryActivity returns every memory session with its records. It is empty while the
// profiler is disabled.
func (p *Profiler) MemoryActivity() []session.RangeRecords[session.MemoryRecord] {
	if !p.enabled.Load() {
		return []session.RangeRecords[session.MemoryRecord]{}
	}
	return p.manager.AllMemoryRecords()
}

// KernelActivity returns every kernel session with its records. It is empty while the
// profiler is disabled.
func (p *Profiler) KernelActivity() []session.RangeRecords[session.KernelRecord] {
	if !p.enabled.Load() {
		return []session.RangeRecords[session.KernelRecord]{}
	}
	return p.manager.AllKernelRecords()
}

// AddMetrics adds counter metrics. It only succeeds before the first range.
func (p *Profiler) AddMetrics(names ...string) session.Result {
	if !p.enabled.Load() {
		return session.Success
	}
	if err := p.engine.AddMetrics(names...); err != nil {
		log.Errorf("Failed to add metrics: %v", err)
		return session.Error
	}
	return session.Success
}

// DecodeCounterData evaluates the collected counter data.
func (p *Profiler) DecodeCounterData(ctx context.Context) session.Result {
	if !p.enabled.Load() {
		return session.Success
	}
	if err := p.engine.Decode(ctx); err != nil {
		log.Errorf("Failed to decode counter data: %v", err)
		return session.Error
	}
	return session.Success
}

// AllPassesSubmitted reports whether the counter engine ran every replay pass.
func (p *Profiler) AllPassesSubmitted() bool {
	return p.engine.AllPassesSubmitted()
}

// StartRangeProfiling opens a counter range without an activity session.
func (p *Profiler) StartRangeProfiling(ctx context.Context, name string) session.Result {
	if !p.enabled.Load() {
		return session.Success
	}
	if err := p.engine.BeginRange(ctx, name); err != nil {
		log.Errorf("Failed to start range profiling %s: %v", name, err)
		return session.Error
	}
	return session.Success
}

// StopRangeProfiling closes the counter range opened by StartRangeProfiling.
func (p *Profiler) StopRangeProfiling(ctx context.Context) session.Result {
	if !p.enabled.Load() {
		return session.Success
	}
	if err := p.engine.EndRange(ctx); err != nil {
		log.Errorf("Failed to stop range profiling: %v", err)
		return session.Error
	}
	return session.Success
}

// Stats returns the activity router counters.
func (p *Profiler) Stats() activity.Stats {
	return p.router.Stats()
}

// Shutdown flushes outstanding activity, closes ranges left open and clears the
// annotations. It is safe to call more than once.
func (p *Profiler) Shutdown(ctx context.Context) error {
	if !p.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	err := p.correlator.Shutdown(ctx)
	if !p.engine.AllPassesSubmitted() {
		log.Warnf("Closing counter range left open at shutdown")
		if endErr := p.engine.EndRange(ctx); endErr != nil &&
			!errors.Is(endErr, counters.ErrNoRange) {
			err = errors.Join(err, endErr)
		}
	}
	p.annotations.Clear()
	metrics.Flush()
	if err != nil {
		return fmt.Errorf("profiler shutdown: %w", err)
	}
	return nil
}
