// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package activity // import "go.opentelemetry.io/gpu-range-profiler/activity"

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"go.opentelemetry.io/gpu-range-profiler/session"
)

// Kind identifies the record type following a header.
type Kind uint32

const (
	KindInvalid Kind = iota
	KindKernel
	KindMemory
)

func (k Kind) String() string {
	switch k {
	case KindKernel:
		return "kernel"
	case KindMemory:
		return "memory"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// header precedes every record. Size covers the header and the body.
type header struct {
	Kind uint32
	Size uint32
}

// kernelWire is the fixed layout of a kernel execution record body.
type kernelWire struct {
	Name                   [256]byte
	GridX, GridY, GridZ    uint32
	BlockX, BlockY, BlockZ uint32
	CorrelationID          uint32
	DeviceID               uint32
	ContextID              uint32
	StreamID               uint32
	Start                  uint64
	End                    uint64
}

// memoryWire is the fixed layout of a memory operation record body.
type memoryWire struct {
	Operation     uint8
	MemoryKind    uint8
	Async         uint8
	_             [5]byte
	Bytes         uint64
	Address       uint64
	DeviceID      uint32
	ContextID     uint32
	StreamID      uint32
	CorrelationID uint32
	ProcessID     uint32
	_             uint32
	Timestamp     uint64
	Name          [64]byte
	Source        [64]byte
}

var (
	headerSize     = binary.Size(header{})
	kernelWireSize = binary.Size(kernelWire{})
	memoryWireSize = binary.Size(memoryWire{})
)

// RecordSize returns the encoded size of a record of kind k, or 0 for unknown kinds.
func RecordSize(k Kind) int {
	switch k {
	case KindKernel:
		return headerSize + kernelWireSize
	case KindMemory:
		return headerSize + memoryWireSize
	}
	return 0
}

func (w *kernelWire) record() session.KernelRecord {
	return session.KernelRecord{
		Name:          unix.ByteSliceToString(w.Name[:]),
		Grid:          session.Dim3{w.GridX, w.GridY, w.GridZ},
		Block:         session.Dim3{w.BlockX, w.BlockY, w.BlockZ},
		CorrelationID: w.CorrelationID,
		DeviceID:      w.DeviceID,
		ContextID:     w.ContextID,
		StreamID:      w.StreamID,
		Start:         w.Start,
		End:           w.End,
	}
}

func (w *memoryWire) record() session.MemoryRecord {
	return session.MemoryRecord{
		Operation:     session.MemoryOperation(w.Operation),
		Kind:          session.MemoryKind(w.MemoryKind),
		Bytes:         w.Bytes,
		Address:       w.Address,
		DeviceID:      w.DeviceID,
		ContextID:     w.ContextID,
		StreamID:      w.StreamID,
		CorrelationID: w.CorrelationID,
		ProcessID:     w.ProcessID,
		Timestamp:     w.Timestamp,
		Name:          unix.ByteSliceToString(w.Name[:]),
		Source:        unix.ByteSliceToString(w.Source[:]),
		Async:         w.Async != 0,
	}
}

// putString copies s into dst, truncating so at least one NUL terminator remains.
func putString(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	clear(dst[n:])
}

// AppendKernel appends the wire encoding of r to buf.
func AppendKernel(buf []byte, r session.KernelRecord) ([]byte, error) {
	w := kernelWire{
		GridX: r.Grid[0], GridY: r.Grid[1], GridZ: r.Grid[2],
		BlockX: r.Block[0], BlockY: r.Block[1], BlockZ: r.Block[2],
		CorrelationID: r.CorrelationID,
		DeviceID:      r.DeviceID,
		ContextID:     r.ContextID,
		StreamID:      r.StreamID,
		Start:         r.Start,
		End:           r.End,
	}
	putString(w.Name[:], r.Name)
	return appendRecord(buf, KindKernel, &w)
}

// AppendMemory appends the wire encoding of r to buf.
func AppendMemory(buf []byte, r session.MemoryRecord) ([]byte, error) {
	w := memoryWire{
		Operation:     uint8(r.Operation),
		MemoryKind:    uint8(r.Kind),
		Bytes:         r.Bytes,
		Address:       r.Address,
		DeviceID:      r.DeviceID,
		ContextID:     r.ContextID,
		StreamID:      r.StreamID,
		CorrelationID: r.CorrelationID,
		ProcessID:     r.ProcessID,
		Timestamp:     r.Timestamp,
	}
	if r.Async {
		w.Async = 1
	}
	putString(w.Name[:], r.Name)
	putString(w.Source[:], r.Source)
	return appendRecord(buf, KindMemory, &w)
}

func appendRecord(buf []byte, kind Kind, body any) ([]byte, error) {
	h := header{Kind: uint32(kind), Size: uint32(RecordSize(kind))}
	buf, err := binary.Append(buf, binary.LittleEndian, &h)
	if err != nil {
		return nil, err
	}
	return binary.Append(buf, binary.LittleEndian, body)
}
