// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package session // import "go.opentelemetry.io/gpu-range-profiler/session"

import (
	"time"

	"github.com/google/uuid"
)

// Dim3 is a three dimensional launch configuration.
type Dim3 [3]uint32

// Threads returns the product of all dimensions.
func (d Dim3) Threads() uint64 {
	return uint64(d[0]) * uint64(d[1]) * uint64(d[2])
}

// KernelRecord describes one attributed kernel launch.
type KernelRecord struct {
	Name          string
	DemangledName string
	Grid          Dim3
	Block         Dim3
	CorrelationID uint32
	DeviceID      uint32
	ContextID     uint32
	StreamID      uint32
	// Start and End are device timestamps in nanoseconds.
	Start uint64
	End   uint64
}

// Duration returns the device-side execution time.
func (r KernelRecord) Duration() time.Duration {
	if r.End < r.Start {
		return 0
	}
	return time.Duration(r.End - r.Start)
}

// MemoryOperation is the kind of a memory record.
type MemoryOperation uint8

const (
	MemoryOperationOther MemoryOperation = iota
	MemoryOperationAllocate
	MemoryOperationRelease
)

func (o MemoryOperation) String() string {
	switch o {
	case MemoryOperationAllocate:
		return "allocate"
	case MemoryOperationRelease:
		return "release"
	default:
		return "other"
	}
}

// MemoryKind tags where a memory operation lives.
type MemoryKind uint8

const (
	MemoryKindOther MemoryKind = iota
	MemoryKindDevice
	MemoryKindManaged
	MemoryKindPinned
)

func (k MemoryKind) String() string {
	switch k {
	case MemoryKindDevice:
		return "device"
	case MemoryKindManaged:
		return "managed"
	case MemoryKindPinned:
		return "pinned"
	default:
		return "other"
	}
}

// MemoryRecord describes one attributed memory operation.
type MemoryRecord struct {
	Operation     MemoryOperation
	Kind          MemoryKind
	Bytes         uint64
	Address       uint64
	DeviceID      uint32
	ContextID     uint32
	StreamID      uint32
	CorrelationID uint32
	ProcessID     uint32
	Timestamp     uint64
	// Name and Source are optional symbol and module names.
	Name   string
	Source string
	Async  bool
}

// LaunchStats accumulates host-side launch API timing for a kernel session.
type LaunchStats struct {
	Calls uint64
	Total time.Duration
}

// RangeRecords pairs a session with the records it accumulated.
type RangeRecords[R any] struct {
	ID      uuid.UUID
	Name    string
	Records []R
}
