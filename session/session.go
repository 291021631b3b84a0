// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package session tracks named GPU telemetry ranges and the activity records attributed
// to them.
package session // import "go.opentelemetry.io/gpu-range-profiler/session"

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// KernelSession is the payload of a Kernel category session.
type KernelSession struct {
	records  []KernelRecord
	launches LaunchStats
	calls    uint64
}

// Append stores r and counts the call.
func (k *KernelSession) Append(r KernelRecord) {
	k.records = append(k.records, r)
	k.calls++
}

// RecordLaunch adds the duration of one launch API call.
func (k *KernelSession) RecordLaunch(d time.Duration) {
	k.launches.Calls++
	k.launches.Total += d
}

// MemorySession is the payload of a Memory category session.
type MemorySession struct {
	records []MemoryRecord
	calls   uint64
}

// Append stores r and counts the call.
func (m *MemorySession) Append(r MemoryRecord) {
	m.records = append(m.records, r)
	m.calls++
}

// Session is one open or closed range. Exactly one of kernel and memory is set,
// selected by category when the session is created.
type Session struct {
	id       uuid.UUID
	name     string
	category Category

	// mu guards active and the payload.
	mu     sync.RWMutex
	active bool
	kernel *KernelSession
	memory *MemorySession
}

// New creates an active session for the given category.
func New(name string, category Category) (*Session, error) {
	s := &Session{
		id:       uuid.New(),
		name:     name,
		category: category,
		active:   true,
	}
	switch category {
	case Kernel:
		s.kernel = &KernelSession{}
	case Memory:
		s.memory = &MemorySession{}
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCategory, category)
	}
	return s, nil
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Name() string { return s.name }

func (s *Session) Category() Category { return s.category }

// IsActive reports whether the session still accepts records.
func (s *Session) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Deactivate closes the session for good. Repeated calls only log a warning.
func (s *Session) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		log.Warnf("Session %s of type %s is already inactive", s.name, s.category)
		return
	}
	s.active = false
}

// PushKernel appends r to an active kernel session.
func (s *Session) PushKernel(r KernelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.kernel == nil {
		return fmt.Errorf("%w: kernel record for %s session %q", ErrAttribution, s.category, s.name)
	}
	if !s.active {
		return fmt.Errorf("%w: %q", ErrSessionInactive, s.name)
	}
	s.kernel.Append(r)
	return nil
}

// PushMemory appends r to an active memory session.
func (s *Session) PushMemory(r MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memory == nil {
		return fmt.Errorf("%w: memory record for %s session %q", ErrAttribution, s.category, s.name)
	}
	if !s.active {
		return fmt.Errorf("%w: %q", ErrSessionInactive, s.name)
	}
	s.memory.Append(r)
	return nil
}

// KernelRecords returns a copy of the kernel records. It is nil for other categories.
func (s *Session) KernelRecords() []KernelRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kernel == nil {
		return nil
	}
	return slices.Clone(s.kernel.records)
}

// MemoryRecords returns a copy of the memory records. It is nil for other categories.
func (s *Session) MemoryRecords() []MemoryRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.memory == nil {
		return nil
	}
	return slices.Clone(s.memory.records)
}

// Len returns the number of records held.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.kernel != nil:
		return len(s.kernel.records)
	case s.memory != nil:
		return len(s.memory.records)
	}
	return 0
}

// Calls returns how many records were appended.
func (s *Session) Calls() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.kernel != nil:
		return s.kernel.calls
	case s.memory != nil:
		return s.memory.calls
	}
	return 0
}

// Launches returns the launch API timing of a kernel session.
func (s *Session) Launches() LaunchStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kernel == nil {
		return LaunchStats{}
	}
	return s.kernel.launches
}

// Report returns a human readable summary of the session.
func (s *Session) Report() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := "closed"
	if s.active {
		state = "open"
	}

	switch {
	case s.kernel != nil:
		var threads uint64
		var device time.Duration
		for _, r := range s.kernel.records {
			threads += r.Grid.Threads() * r.Block.Threads()
			device += r.Duration()
		}
		return fmt.Sprintf("Session %q (%s, %s, id %s): %d kernel launches, %d threads, "+
			"%v device time, %d launch API calls taking %v",
			s.name, s.category, state, s.id, s.kernel.calls, threads, device,
			s.kernel.launches.Calls, s.kernel.launches.Total)
	case s.memory != nil:
		var allocated, released uint64
		for _, r := range s.memory.records {
			switch r.Operation {
			case MemoryOperationAllocate:
				allocated += r.Bytes
			case MemoryOperationRelease:
				released += r.Bytes
			}
		}
		return fmt.Sprintf("Session %q (%s, %s, id %s): %d memory operations, "+
			"%d bytes allocated, %d bytes released",
			s.name, s.category, state, s.id, s.memory.calls, allocated, released)
	}
	return fmt.Sprintf("Session %q (%s, %s, id %s)", s.name, s.category, state, s.id)
}
