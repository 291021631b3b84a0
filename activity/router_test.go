// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/gpu-range-profiler/kernelsym"
	"go.opentelemetry.io/gpu-range-profiler/session"
)

type fakeDrops struct {
	dropped uint64
	err     error
	streams []uint32
}

func (f *fakeDrops) DroppedRecords(_ context.Context, streamID uint32) (uint64, error) {
	f.streams = append(f.streams, streamID)
	return f.dropped, f.err
}

func newTestRouter(t *testing.T, drops DroppedCounter) (*Router, *session.Manager) {
	t.Helper()
	symbols, err := kernelsym.New(16)
	require.NoError(t, err)
	mgr := session.NewManager()
	return NewRouter(mgr, symbols, drops, 4096), mgr
}

func startSession(t *testing.T, mgr *session.Manager, name string, category session.Category) {
	t.Helper()
	s, err := session.New(name, category)
	require.NoError(t, err)
	require.NoError(t, mgr.StartSession(category, s))
}

// fill encodes records into a buffer obtained from the router, like the subsystem does.
func fill(t *testing.T, r *Router, kernels []session.KernelRecord,
	memory []session.MemoryRecord) ([]byte, int) {
	t.Helper()
	buf, maxRecords := r.BufferRequested()
	require.Zero(t, maxRecords)

	out := buf[:0]
	var err error
	for _, k := range kernels {
		out, err = AppendKernel(out, k)
		require.NoError(t, err)
	}
	for _, m := range memory {
		out, err = AppendMemory(out, m)
		require.NoError(t, err)
	}
	require.LessOrEqual(t, len(out), len(buf))
	return buf, len(out)
}

func TestBufferRequested(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	buf, maxRecords := r.BufferRequested()
	assert.Len(t, buf, 4096)
	assert.Zero(t, maxRecords)
	assert.Equal(t, uint64(1), r.Stats().BuffersRequested)

	def := NewRouter(session.NewManager(), nil, nil, 0)
	buf, _ = def.BufferRequested()
	assert.Len(t, buf, 16*1024)
}

func TestBufferCompletedAttributes(t *testing.T) {
	drops := &fakeDrops{dropped: 2}
	r, mgr := newTestRouter(t, drops)
	startSession(t, mgr, "rangeX", session.Kernel)
	startSession(t, mgr, "alloc", session.Memory)

	kernels := []session.KernelRecord{
		{Name: "_Z9vectorAddPKfS0_Pfi", Grid: session.Dim3{1, 1, 1}, Block: session.Dim3{32, 1, 1}},
		{Name: "relu", Grid: session.Dim3{1, 1, 1}, Block: session.Dim3{32, 1, 1}},
	}
	memory := []session.MemoryRecord{{Operation: session.MemoryOperationAllocate, Bytes: 512}}

	buf, valid := fill(t, r, kernels, memory)
	require.NoError(t, r.BufferCompleted(context.Background(), 5, buf, valid))

	got := mgr.AllKernelRecords()
	require.Len(t, got, 1)
	require.Len(t, got[0].Records, 2)
	assert.Equal(t, "vectorAdd(float const*, float const*, float*, int)",
		got[0].Records[0].DemangledName)
	assert.Equal(t, "relu", got[0].Records[1].DemangledName)
	assert.Len(t, mgr.AllMemoryRecords()[0].Records, 1)

	assert.Equal(t, []uint32{5}, drops.streams)
	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.Dropped)
	assert.Equal(t, uint64(2), stats.KernelRecords)
	assert.Equal(t, uint64(1), stats.MemoryRecords)
	assert.Equal(t, uint64(1), stats.BuffersDecoded)
}

func TestBufferCompletedClosedWindow(t *testing.T) {
	r, mgr := newTestRouter(t, nil)
	startSession(t, mgr, "A", session.Kernel)
	require.NoError(t, mgr.EndSession(session.Kernel))

	buf, valid := fill(t, r, []session.KernelRecord{{Name: "late"}}, nil)
	require.NoError(t, r.BufferCompleted(context.Background(), 0, buf, valid))

	assert.Empty(t, mgr.AllKernelRecords()[0].Records)
	assert.Zero(t, r.Stats().AttributionFailures)
}

func TestBufferCompletedEmpty(t *testing.T) {
	r, _ := newTestRouter(t, &fakeDrops{err: errors.New("no such stream")})
	buf, _ := r.BufferRequested()
	require.NoError(t, r.BufferCompleted(context.Background(), 1, buf, 0))
	assert.Equal(t, uint64(1), r.Stats().BuffersDecoded)
}

func TestBufferCompletedDecodeError(t *testing.T) {
	r, mgr := newTestRouter(t, nil)
	startSession(t, mgr, "A", session.Kernel)

	buf, valid := fill(t, r, []session.KernelRecord{{Name: "k0"}, {Name: "k1"}}, nil)
	err := r.BufferCompleted(context.Background(), 0, buf, valid-1)
	require.ErrorIs(t, err, ErrTruncated)

	// The record decoded before the corruption is kept.
	assert.Len(t, mgr.AllKernelRecords()[0].Records, 1)
	assert.Equal(t, uint64(1), r.Stats().BuffersFailed)

	err = r.BufferCompleted(context.Background(), 0, make([]byte, 8), 9)
	require.Error(t, err)
}

func TestLaunchTiming(t *testing.T) {
	r, mgr := newTestRouter(t, nil)
	startSession(t, mgr, "A", session.Kernel)

	r.APIEnter(211, "vectorAdd")
	r.APIExit(211, "vectorAdd")
	// Exit without enter is ignored.
	r.APIExit(13, "orphan")

	stats := mgr.Sessions(session.Kernel)[0].Launches()
	assert.Equal(t, uint64(1), stats.Calls)
	assert.GreaterOrEqual(t, stats.Total.Nanoseconds(), int64(0))
}
