// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package profiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/gpu-range-profiler/collection"
	"go.opentelemetry.io/gpu-range-profiler/counters"
	"go.opentelemetry.io/gpu-range-profiler/reporter"
	"go.opentelemetry.io/gpu-range-profiler/session"
	"go.opentelemetry.io/gpu-range-profiler/times"
)

const occupancy = "occupancy"

// fatalRecorder replaces log.Fatalf in tests.
type fatalRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (f *fatalRecorder) fatalf(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, fmt.Sprintf(format, args...))
}

func (f *fatalRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type harness struct {
	p      *Profiler
	sim    *collection.Simulator
	engine *counters.MemoryEngine
	fatal  *fatalRecorder
	report string
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	h := &harness{
		sim:    collection.NewSimulator(collection.SimulatorConfig{Times: times.New(time.Hour, 0, 0)}),
		engine: counters.NewMemoryEngine(),
		fatal:  &fatalRecorder{},
		report: filepath.Join(t.TempDir(), "ranges.csv"),
	}
	h.sim.OnKernel(func(l collection.KernelLaunch) { h.engine.AddKernel(l.Name, l.Counters) })
	exited, err := h.sim.Start(ctx)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		<-exited
	})

	opts = append([]Option{
		WithSubsystem(h.sim),
		WithEngine(h.engine),
		WithFatalHandler(h.fatal.fatalf),
	}, opts...)
	h.p, err = New(Config{Metrics: []string{occupancy}, ReportPath: h.report}, opts...)
	require.NoError(t, err)
	require.NoError(t, h.p.Init(ctx))
	return h
}

func (h *harness) launch(t *testing.T, values ...float64) {
	t.Helper()
	for _, v := range values {
		require.NoError(t, h.sim.Launch(context.Background(), collection.KernelLaunch{
			Name:     "_Z9vectorAddPKfS0_Pfi",
			Grid:     session.Dim3{1, 1, 1},
			Block:    session.Dim3{32, 1, 1},
			Duration: time.Microsecond,
			Counters: map[string]float64{occupancy: v},
		}))
	}
}

func TestPrintRanges(t *testing.T) {
	tests := map[string]struct {
		reduction reporter.Reduction
		want      float64
	}{
		"sum":  {reduction: reporter.Sum, want: 1.8},
		"max":  {reduction: reporter.Max, want: 0.7},
		"mean": {reduction: reporter.Mean, want: 0.6},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)

			require.Equal(t, session.Success, h.p.PushRange(ctx, "rangeX", session.Kernel))
			h.launch(t, 0.5, 0.6, 0.7)
			require.Equal(t, session.Success, h.p.PopRange(ctx, "rangeX", session.Kernel))

			// An empty range yields no row and owns no counter ranges.
			require.Equal(t, session.Success, h.p.PushRange(ctx, "empty", session.Kernel))
			require.Equal(t, session.Success, h.p.PopRange(ctx, "empty", session.Kernel))

			rows, err := h.p.PrintRanges(ctx, tc.reduction)
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "rangeX", rows[0].Range)
			assert.Equal(t, occupancy, rows[0].Metric)
			assert.InDelta(t, tc.want, rows[0].Value, 1e-9)

			kernels := h.p.KernelActivity()
			require.Len(t, kernels, 2)
			require.Len(t, kernels[0].Records, 3)
			assert.Equal(t, "vectorAdd(float const*, float const*, float*, int)",
				kernels[0].Records[0].DemangledName)
			assert.Equal(t, uint64(3), h.p.Stats().KernelRecords)

			data, err := os.ReadFile(h.report)
			require.NoError(t, err)
			assert.Contains(t, string(data), "rangeX,occupancy,")
			assert.Zero(t, h.fatal.count())
		})
	}
}

func TestPrintRangesIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.Equal(t, session.Success, h.p.PushRange(ctx, "a", session.Kernel))
	h.launch(t, 0.25, 0.75)
	require.Equal(t, session.Success, h.p.PopRange(ctx, "a", session.Kernel))

	first, err := h.p.PrintRanges(ctx, reporter.Mean)
	require.NoError(t, err)
	second, err := h.p.PrintRanges(ctx, reporter.Mean)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	data, err := os.ReadFile(h.report)
	require.NoError(t, err)
	assert.Equal(t, "a,occupancy,0.5\na,occupancy,0.5\n", string(data))
}

func TestPrintRangesMismatch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.Equal(t, session.Success, h.p.PushRange(ctx, "rangeX", session.Kernel))
	h.launch(t, 0.1, 0.2, 0.3, 0.4)
	require.Equal(t, session.Success, h.p.PopRange(ctx, "rangeX", session.Kernel))

	// A raw counter range without an activity session skews the counts.
	require.Equal(t, session.Success, h.p.StartRangeProfiling(ctx, "raw"))
	h.launch(t, 0.9)
	require.Equal(t, session.Success, h.p.StopRangeProfiling(ctx))

	rows, err := h.p.PrintRanges(ctx, reporter.Sum)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, 1.0, rows[0].Value, 1e-9)
}

func TestPrintRangesShortRanges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	for _, name := range []string{"A", "B"} {
		require.Equal(t, session.Success, h.p.PushRange(ctx, name, session.Kernel))
		h.launch(t, 0.1, 0.2)
		require.Equal(t, session.Success, h.p.PopRange(ctx, name, session.Kernel))
	}
	// The engine reports one range less than B needs.
	h.engine.SetRanges([]counters.ProfilerRange{
		{Name: "A", Values: map[string]float64{occupancy: 0.25}},
		{Name: "A", Values: map[string]float64{occupancy: 0.5}},
		{Name: "B", Values: map[string]float64{occupancy: 0.75}},
	})

	rows, err := h.p.PrintRanges(ctx, reporter.Sum)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0].Range)
	assert.InDelta(t, 0.75, rows[0].Value, 1e-9)

	data, err := os.ReadFile(h.report)
	require.NoError(t, err)
	assert.Equal(t, "A,occupancy,0.75\n", string(data))
	assert.Zero(t, h.fatal.count())
}

func TestRangeResults(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	assert.Equal(t, session.Error, h.p.PopRange(ctx, "A", session.Kernel))
	assert.Equal(t, session.Success, h.p.PushRange(ctx, "A", session.Kernel))
	assert.Equal(t, session.Error, h.p.PushRange(ctx, "B", session.Kernel))
	assert.Equal(t, session.Success, h.p.PushRange(ctx, "M", session.Memory))
	assert.Equal(t, session.Success, h.p.PopRange(ctx, "M", session.Memory))
	assert.Equal(t, session.Success, h.p.PopRange(ctx, "A", session.Kernel))
	assert.Equal(t, session.Error, h.p.PushRange(ctx, "X", session.Category(5)))
	assert.Zero(t, h.p.annotations.Active())
	assert.Zero(t, h.fatal.count())
}

func TestInterleavedCategories(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.Equal(t, session.Success, h.p.PushRange(ctx, "k", session.Kernel))
	require.Equal(t, session.Success, h.p.PushRange(ctx, "m", session.Memory))
	assert.Equal(t, session.Success, h.p.PopRange(ctx, "k", session.Kernel))
	assert.Equal(t, 1, h.p.annotations.Active())
	assert.Equal(t, session.Success, h.p.PopRange(ctx, "m", session.Memory))
	assert.Zero(t, h.p.annotations.Active())
	assert.Zero(t, h.fatal.count())
}

func TestMemoryActivity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.Equal(t, session.Success, h.p.PushRange(ctx, "alloc", session.Memory))
	require.NoError(t, h.sim.MemoryOp(ctx, session.MemoryRecord{
		Operation: session.MemoryOperationAllocate,
		Kind:      session.MemoryKindDevice,
		Bytes:     256,
	}))
	require.Equal(t, session.Success, h.p.PopRange(ctx, "alloc", session.Memory))

	activity := h.p.MemoryActivity()
	require.Len(t, activity, 1)
	assert.Equal(t, "alloc", activity[0].Name)
	require.Len(t, activity[0].Records, 1)
	assert.Equal(t, uint64(256), activity[0].Records[0].Bytes)

	h.p.Disable()
	assert.Empty(t, h.p.MemoryActivity())
	assert.Empty(t, h.p.KernelActivity())
}

func TestDisabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.p.Disable()
	require.False(t, h.p.Enabled())

	assert.Equal(t, session.Success, h.p.PopRange(ctx, "never", session.Kernel))
	assert.Equal(t, session.Success, h.p.PushRange(ctx, "A", session.Kernel))
	assert.Equal(t, session.Success, h.p.PushRange(ctx, "A", session.Kernel))
	assert.Equal(t, session.Success, h.p.AddMetrics("x"))
	assert.Equal(t, session.Success, h.p.StopRangeProfiling(ctx))
	rows, err := h.p.PrintRanges(ctx, reporter.Sum)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.False(t, h.sim.Enabled(collection.ConcurrentKernel))

	h.p.Enable()
	assert.Equal(t, session.Success, h.p.PushRange(ctx, "A", session.Kernel))
	assert.True(t, h.sim.Enabled(collection.ConcurrentKernel))
}

type lostDevice struct{}

func (lostDevice) Synchronize(context.Context) error { return errors.New("device lost") }

func TestCollaboratorFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, WithDevice(lostDevice{}))

	assert.Equal(t, session.Error, h.p.PushRange(ctx, "A", session.Kernel))
	assert.Equal(t, 1, h.fatal.count())
	assert.Error(t, h.p.Shutdown(ctx))
}

func TestCounterProfiling(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	assert.Equal(t, session.Success, h.p.AddMetrics("dram__bytes.sum"))
	assert.Equal(t, session.Error, h.p.StopRangeProfiling(ctx))
	assert.Equal(t, session.Success, h.p.StartRangeProfiling(ctx, "raw"))
	assert.False(t, h.p.AllPassesSubmitted())
	assert.Equal(t, session.Error, h.p.StartRangeProfiling(ctx, "again"))
	assert.Equal(t, session.Error, h.p.AddMetrics("late"))
	assert.Equal(t, session.Success, h.p.StopRangeProfiling(ctx))
	assert.True(t, h.p.AllPassesSubmitted())
	assert.Equal(t, session.Success, h.p.DecodeCounterData(ctx))
	assert.Equal(t, []string{occupancy, "dram__bytes.sum"}, h.engine.Metrics())
}

func TestShutdown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.Equal(t, session.Success, h.p.PushRange(ctx, "open", session.Kernel))
	h.launch(t, 0.5)
	require.NoError(t, h.p.Shutdown(ctx))
	require.NoError(t, h.p.Shutdown(ctx))

	kernels := h.p.KernelActivity()
	require.Len(t, kernels, 1)
	assert.Len(t, kernels[0].Records, 1)
	for _, s := range h.p.manager.Sessions(session.Kernel) {
		assert.False(t, s.IsActive())
	}
	assert.True(t, h.p.AllPassesSubmitted())
	assert.Zero(t, h.p.annotations.Active())
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	p, err := New(Config{}, WithSubsystem(collection.NewSimulator(collection.SimulatorConfig{})))
	require.NoError(t, err)
	require.NoError(t, p.Init(context.Background()))
	assert.Error(t, p.Init(context.Background()))
}
