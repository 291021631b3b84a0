// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	tests := map[string]struct {
		category Category
		wantErr  error
		isKernel bool
	}{
		"kernel":  {category: Kernel, isKernel: true},
		"memory":  {category: Memory},
		"unknown": {category: Category(7), wantErr: ErrUnknownCategory},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := New("r", tc.category)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, s.IsActive())
			assert.Equal(t, "r", s.Name())
			assert.Equal(t, tc.isKernel, s.kernel != nil)
			assert.Equal(t, !tc.isKernel, s.memory != nil)
		})
	}
}

func TestSessionPushAndCopy(t *testing.T) {
	s, err := New("A", Kernel)
	require.NoError(t, err)

	require.NoError(t, s.PushKernel(KernelRecord{Name: "k0"}))
	require.NoError(t, s.PushKernel(KernelRecord{Name: "k1"}))
	require.ErrorIs(t, s.PushMemory(MemoryRecord{Bytes: 1}), ErrAttribution)

	records := s.KernelRecords()
	records[0].Name = "mutated"
	assert.Equal(t, "k0", s.KernelRecords()[0].Name)
	assert.Nil(t, s.MemoryRecords())
	assert.Equal(t, uint64(2), s.Calls())
	assert.Equal(t, 2, s.Len())
}

func TestSessionDeactivateIsOneWay(t *testing.T) {
	s, err := New("A", Memory)
	require.NoError(t, err)
	require.NoError(t, s.PushMemory(MemoryRecord{Operation: MemoryOperationAllocate, Bytes: 64}))

	s.Deactivate()
	s.Deactivate()
	assert.False(t, s.IsActive())

	require.ErrorIs(t, s.PushMemory(MemoryRecord{Bytes: 32}), ErrSessionInactive)
	assert.Len(t, s.MemoryRecords(), 1)
}

func TestSessionReport(t *testing.T) {
	s, err := New("rangeX", Kernel)
	require.NoError(t, err)
	require.NoError(t, s.PushKernel(KernelRecord{
		Grid: Dim3{2, 1, 1}, Block: Dim3{32, 1, 1}, Start: 100, End: 1100,
	}))
	s.kernel.RecordLaunch(3 * time.Microsecond)

	before := s.Report()
	assert.Contains(t, before, `"rangeX"`)
	assert.Contains(t, before, "1 kernel launches")
	assert.Contains(t, before, "64 threads")
	assert.Contains(t, before, "1 launch API calls")
	assert.Equal(t, before, s.Report())

	m, err := New("buffers", Memory)
	require.NoError(t, err)
	require.NoError(t, m.PushMemory(MemoryRecord{Operation: MemoryOperationAllocate, Bytes: 4096}))
	require.NoError(t, m.PushMemory(MemoryRecord{Operation: MemoryOperationRelease, Bytes: 1024}))
	assert.Contains(t, m.Report(), "4096 bytes allocated, 1024 bytes released")
}

func TestParseCategory(t *testing.T) {
	tests := map[string]struct {
		in      string
		want    Category
		wantErr bool
	}{
		"kernel name":       {in: "kernel", want: Kernel},
		"concurrent kernel": {in: "CONCURRENT_KERNEL", want: Kernel},
		"kernel code":       {in: "0", want: Kernel},
		"memory code":       {in: "1", want: Memory},
		"memory name":       {in: " Memory ", want: Memory},
		"unknown":           {in: "texture", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseCategory(tc.in)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrUnknownCategory)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResultOf(t *testing.T) {
	assert.Equal(t, Success, ResultOf(nil))
	assert.Equal(t, Warning, ResultOf(ErrAlreadyInactive))
	assert.Equal(t, Error, ResultOf(ErrAlreadyActive))
	assert.Equal(t, Error, ResultOf(ErrNoActiveSession))
	assert.Equal(t, "WARNING", Warning.String())
}
