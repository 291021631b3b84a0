// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package counters provides the hardware counter profiling engine. Every kernel launched
// inside a counter range becomes one profiler range carrying the configured metrics.
package counters // import "go.opentelemetry.io/gpu-range-profiler/counters"

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/gpu-range-profiler/libpf"
	"go.opentelemetry.io/gpu-range-profiler/libpf/xsync"
)

// OccupancyMetric is the achieved occupancy of a kernel, the metric profiled by default.
const OccupancyMetric = "sm__warps_active.avg.pct_of_peak_sustained_active"

var (
	// ErrRangeOpen is returned when a range is begun while another one is open.
	ErrRangeOpen = errors.New("counter range already open")
	// ErrNoRange is returned when no counter range is open.
	ErrNoRange = errors.New("no counter range open")
	// ErrNotDecoded is returned when ranges are read before the counter data was decoded.
	ErrNotDecoded = errors.New("counter data not decoded")
	// ErrMetricsFrozen is returned when metrics are added after profiling started.
	ErrMetricsFrozen = errors.New("metrics can only be added before the first range")
	// ErrUnknownMetric is returned for a metric that is not configured.
	ErrUnknownMetric = errors.New("unknown metric")
	// ErrRangeIndex is returned for a range index outside the decoded ranges.
	ErrRangeIndex = errors.New("range index out of bounds")
)

// ProfilerRange is one range reported by the engine.
type ProfilerRange struct {
	Index  int
	Name   string
	Values map[string]float64
}

// Engine is the counter profiling collaborator.
type Engine interface {
	// BeginRange opens a counter range named name.
	BeginRange(ctx context.Context, name string) error
	// EndRange closes the open counter range.
	EndRange(ctx context.Context) error
	// RangeCount returns the number of decoded ranges.
	RangeCount(ctx context.Context) (int, error)
	// MetricValue returns the value of metric in the decoded range at index.
	MetricValue(ctx context.Context, index int, metric string) (float64, error)
	// Metrics returns the configured metric names.
	Metrics() []string
	// Ranges returns all decoded ranges in order.
	Ranges(ctx context.Context) ([]ProfilerRange, error)
	// AddMetrics configures additional metrics. It fails once a range was begun.
	AddMetrics(names ...string) error
	// Decode evaluates the collected counter data.
	Decode(ctx context.Context) error
	// AllPassesSubmitted reports whether every replay pass of the collected ranges ran.
	AllPassesSubmitted() bool
}

// Compile time check for interface adherence
var _ Engine = (*MemoryEngine)(nil)

type engineState struct {
	metrics  []string
	known    libpf.Set[string]
	started  bool
	open     bool
	name     string
	raw      []ProfilerRange
	decoded  []ProfilerRange
	isParsed bool
}

// MemoryEngine is an Engine holding counter values in memory. Kernel values are fed
// through AddKernel, typically from the simulator's kernel hook.
type MemoryEngine struct {
	state xsync.RWMutex[engineState]
}

// NewMemoryEngine returns a MemoryEngine profiling metrics.
func NewMemoryEngine(metrics ...string) *MemoryEngine {
	e := &MemoryEngine{
		state: xsync.NewRWMutex(engineState{known: libpf.Set[string]{}}),
	}
	st := e.state.WLock()
	st.addMetrics(metrics)
	e.state.WUnlock(&st)
	return e
}

func (st *engineState) addMetrics(names []string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := st.known[name]; ok {
			continue
		}
		st.known[name] = libpf.Void{}
		st.metrics = append(st.metrics, name)
	}
}

// AddMetrics implements Engine.
func (e *MemoryEngine) AddMetrics(names ...string) error {
	st := e.state.WLock()
	defer e.state.WUnlock(&st)
	if st.started {
		return fmt.Errorf("%w: %v", ErrMetricsFrozen, names)
	}
	st.addMetrics(names)
	return nil
}

// Metrics implements Engine.
func (e *MemoryEngine) Metrics() []string {
	st := e.state.RLock()
	defer e.state.RUnlock(&st)
	return slices.Clone(st.metrics)
}

// BeginRange implements Engine.
func (e *MemoryEngine) BeginRange(_ context.Context, name string) error {
	st := e.state.WLock()
	defer e.state.WUnlock(&st)
	if st.open {
		return fmt.Errorf("%w: %q, begin %q", ErrRangeOpen, st.name, name)
	}
	st.started = true
	st.open = true
	st.name = name
	return nil
}

// EndRange implements Engine.
func (e *MemoryEngine) EndRange(_ context.Context) error {
	st := e.state.WLock()
	defer e.state.WUnlock(&st)
	if !st.open {
		return ErrNoRange
	}
	st.open = false
	st.name = ""
	return nil
}

// AddKernel records one kernel of the open range with the given counter values. Without
// an open range the kernel is not profiled. Configured metrics the kernel did not report
// read as zero; with no metrics configured all values are kept.
func (e *MemoryEngine) AddKernel(kernel string, values map[string]float64) {
	st := e.state.WLock()
	defer e.state.WUnlock(&st)
	if !st.open {
		log.Debugf("Kernel %s launched outside a counter range", kernel)
		return
	}

	var kept map[string]float64
	if len(st.metrics) == 0 {
		kept = maps.Clone(values)
		if kept == nil {
			kept = map[string]float64{}
		}
	} else {
		kept = make(map[string]float64, len(st.metrics))
		for _, m := range st.metrics {
			kept[m] = values[m]
		}
	}
	st.raw = append(st.raw, ProfilerRange{
		Index:  len(st.raw),
		Name:   st.name,
		Values: kept,
	})
}

// SetRanges replaces the collected ranges. The ranges are re-indexed in order and become
// visible after the next Decode.
func (e *MemoryEngine) SetRanges(ranges []ProfilerRange) {
	st := e.state.WLock()
	defer e.state.WUnlock(&st)
	st.raw = make([]ProfilerRange, 0, len(ranges))
	for i, r := range ranges {
		st.raw = append(st.raw, ProfilerRange{Index: i, Name: r.Name, Values: maps.Clone(r.Values)})
	}
	st.started = st.started || len(ranges) > 0
}

// Decode implements Engine.
func (e *MemoryEngine) Decode(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st := e.state.WLock()
	defer e.state.WUnlock(&st)
	if st.open {
		log.Warnf("Decoding counter data while range %q is open", st.name)
	}
	st.decoded = cloneRanges(st.raw)
	st.isParsed = true
	log.Debugf("Decoded %d counter ranges", len(st.decoded))
	return nil
}

// AllPassesSubmitted implements Engine. Kernels are profiled in a single pass, so every
// pass was submitted once no range is open.
func (e *MemoryEngine) AllPassesSubmitted() bool {
	st := e.state.RLock()
	defer e.state.RUnlock(&st)
	return !st.open
}

// RangeCount implements Engine.
func (e *MemoryEngine) RangeCount(_ context.Context) (int, error) {
	st := e.state.RLock()
	defer e.state.RUnlock(&st)
	if !st.isParsed {
		return 0, ErrNotDecoded
	}
	return len(st.decoded), nil
}

// MetricValue implements Engine.
func (e *MemoryEngine) MetricValue(_ context.Context, index int, metric string) (float64, error) {
	st := e.state.RLock()
	defer e.state.RUnlock(&st)
	if !st.isParsed {
		return 0, ErrNotDecoded
	}
	if index < 0 || index >= len(st.decoded) {
		return 0, fmt.Errorf("%w: %d of %d", ErrRangeIndex, index, len(st.decoded))
	}
	v, ok := st.decoded[index].Values[metric]
	if !ok {
		return 0, fmt.Errorf("%w: %s in range %d", ErrUnknownMetric, metric, index)
	}
	return v, nil
}

// Ranges implements Engine.
func (e *MemoryEngine) Ranges(_ context.Context) ([]ProfilerRange, error) {
	st := e.state.RLock()
	defer e.state.RUnlock(&st)
	if !st.isParsed {
		return nil, ErrNotDecoded
	}
	return cloneRanges(st.decoded), nil
}

func cloneRanges(ranges []ProfilerRange) []ProfilerRange {
	out := make([]ProfilerRange, len(ranges))
	for i, r := range ranges {
		out[i] = ProfilerRange{Index: r.Index, Name: r.Name, Values: maps.Clone(r.Values)}
	}
	return out
}
