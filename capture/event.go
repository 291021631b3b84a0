// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package capture records and replays the range and device activity of a profiled
// application as a compressed CBOR event stream.
package capture // import "go.opentelemetry.io/gpu-range-profiler/capture"

import (
	"fmt"
	"time"

	"go.opentelemetry.io/gpu-range-profiler/collection"
	"go.opentelemetry.io/gpu-range-profiler/session"
)

// EventKind selects the payload of an Event.
type EventKind uint8

const (
	EventInvalid EventKind = iota
	EventPush
	EventPop
	EventKernel
	EventMemory
	EventSleep
)

func (k EventKind) String() string {
	switch k {
	case EventPush:
		return "push"
	case EventPop:
		return "pop"
	case EventKernel:
		return "kernel"
	case EventMemory:
		return "memory"
	case EventSleep:
		return "sleep"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Kernel is a recorded kernel launch with the counter values it produced.
type Kernel struct {
	Name     string             `cbor:"1,keyasint"`
	Grid     [3]uint32          `cbor:"2,keyasint"`
	Block    [3]uint32          `cbor:"3,keyasint"`
	StreamID uint32             `cbor:"4,keyasint,omitempty"`
	Duration time.Duration      `cbor:"5,keyasint,omitempty"`
	Counters map[string]float64 `cbor:"6,keyasint,omitempty"`
}

// Memory is a recorded memory operation.
type Memory struct {
	Operation session.MemoryOperation `cbor:"1,keyasint"`
	Kind      session.MemoryKind      `cbor:"2,keyasint"`
	Bytes     uint64                  `cbor:"3,keyasint"`
	Address   uint64                  `cbor:"4,keyasint,omitempty"`
	StreamID  uint32                  `cbor:"5,keyasint,omitempty"`
	ProcessID uint32                  `cbor:"6,keyasint,omitempty"`
	Name      string                  `cbor:"7,keyasint,omitempty"`
	Source    string                  `cbor:"8,keyasint,omitempty"`
	Async     bool                    `cbor:"9,keyasint,omitempty"`
}

// Event is one entry of a capture.
type Event struct {
	Kind EventKind `cbor:"1,keyasint"`
	// Name and Category are set for push and pop events.
	Name     string           `cbor:"2,keyasint,omitempty"`
	Category session.Category `cbor:"3,keyasint"`
	Kernel   *Kernel          `cbor:"4,keyasint,omitempty"`
	Memory   *Memory          `cbor:"5,keyasint,omitempty"`
	// Sleep is the host time elapsed before the next event.
	Sleep time.Duration `cbor:"6,keyasint,omitempty"`
}

// validate checks that the payload matches the kind.
func (e *Event) validate() error {
	switch e.Kind {
	case EventPush, EventPop:
		if !e.Category.Valid() {
			return fmt.Errorf("%v event %q: %w", e.Kind, e.Name, session.ErrUnknownCategory)
		}
	case EventKernel:
		if e.Kernel == nil {
			return fmt.Errorf("%v event without kernel", e.Kind)
		}
	case EventMemory:
		if e.Memory == nil {
			return fmt.Errorf("%v event without memory operation", e.Kind)
		}
	case EventSleep:
		if e.Sleep < 0 {
			return fmt.Errorf("negative sleep %v", e.Sleep)
		}
	default:
		return fmt.Errorf("unknown %v", e.Kind)
	}
	return nil
}

// Launch converts the kernel into a device launch.
func (k *Kernel) Launch() collection.KernelLaunch {
	return collection.KernelLaunch{
		Name:     k.Name,
		Grid:     session.Dim3(k.Grid),
		Block:    session.Dim3(k.Block),
		StreamID: k.StreamID,
		Duration: k.Duration,
		Counters: k.Counters,
	}
}

// Record converts the memory operation into a memory record.
func (m *Memory) Record() session.MemoryRecord {
	return session.MemoryRecord{
		Operation: m.Operation,
		Kind:      m.Kind,
		Bytes:     m.Bytes,
		Address:   m.Address,
		StreamID:  m.StreamID,
		ProcessID: m.ProcessID,
		Name:      m.Name,
		Source:    m.Source,
		Async:     m.Async,
	}
}
