// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package session // import "go.opentelemetry.io/gpu-range-profiler/session"

import (
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/gpu-range-profiler/libpf/xsync"
)

// Manager owns all sessions, per category, in creation order. Only the last session of
// a category may be active and receive records.
//
// Attribution holds the read lock while start and end hold the write lock, so no record
// is stored while a session boundary moves.
type Manager struct {
	sessions xsync.RWMutex[map[Category][]*Session]
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		sessions: xsync.NewRWMutex(map[Category][]*Session{}),
	}
}

// StartSession appends s to its category. If the last session of the category is still
// active, s is discarded and ErrAlreadyActive is returned.
func (m *Manager) StartSession(category Category, s *Session) error {
	if s == nil {
		return fmt.Errorf("nil session for category %s", category)
	}
	if s.Category() != category {
		return fmt.Errorf("%w: %s session %q started as %s",
			ErrAttribution, s.Category(), s.Name(), category)
	}

	sessions := m.sessions.WLock()
	defer m.sessions.WUnlock(&sessions)

	list := (*sessions)[category]
	if n := len(list); n > 0 && list[n-1].IsActive() {
		return fmt.Errorf("%w: %s session %q", ErrAlreadyActive, category, list[n-1].Name())
	}
	(*sessions)[category] = append(list, s)
	log.Debugf("Session %s of type %s added", s.Name(), category)
	return nil
}

// EndSession reports and deactivates the last session of category.
func (m *Manager) EndSession(category Category) error {
	sessions := m.sessions.WLock()
	defer m.sessions.WUnlock(&sessions)

	list := (*sessions)[category]
	if len(list) == 0 {
		return fmt.Errorf("%w: category %s", ErrNoActiveSession, category)
	}
	last := list[len(list)-1]
	if !last.IsActive() {
		return fmt.Errorf("%w: %s session %q", ErrAlreadyInactive, category, last.Name())
	}
	log.Info(last.Report())
	last.Deactivate()
	log.Debugf("Session %s of type %s ended", last.Name(), category)
	return nil
}

// AttributeKernel runs fn on the active kernel payload of category. A category without
// sessions, or whose last session is closed, is a successful no-op.
func (m *Manager) AttributeKernel(category Category, fn func(*KernelSession)) error {
	return attribute(m, category, func(s *Session) *KernelSession { return s.kernel }, fn)
}

// AttributeMemory runs fn on the active memory payload of category. A category without
// sessions, or whose last session is closed, is a successful no-op.
func (m *Manager) AttributeMemory(category Category, fn func(*MemorySession)) error {
	return attribute(m, category, func(s *Session) *MemorySession { return s.memory }, fn)
}

// attribute selects the payload variant V of the last session in category and applies fn
// while the session is active. A nil variant means the session holds another record kind.
func attribute[V any](m *Manager, category Category, variant func(*Session) *V,
	fn func(*V)) error {
	sessions := m.sessions.RLock()
	defer m.sessions.RUnlock(&sessions)

	list := (*sessions)[category]
	if len(list) == 0 {
		return nil
	}
	s := list[len(list)-1]

	s.mu.Lock()
	defer s.mu.Unlock()

	payload := variant(s)
	if payload == nil {
		return fmt.Errorf("%w: %s session %q", ErrAttribution, s.category, s.name)
	}
	if !s.active {
		return nil
	}
	fn(payload)
	return nil
}

// SessionName returns the name of the last session of category, active or not.
func (m *Manager) SessionName(category Category) (string, error) {
	sessions := m.sessions.RLock()
	defer m.sessions.RUnlock(&sessions)

	list := (*sessions)[category]
	if len(list) == 0 {
		return "", fmt.Errorf("%w: category %s", ErrNoSessionFound, category)
	}
	return list[len(list)-1].Name(), nil
}

// ActiveSession returns the last session of category if it is active.
func (m *Manager) ActiveSession(category Category) (*Session, bool) {
	sessions := m.sessions.RLock()
	defer m.sessions.RUnlock(&sessions)

	list := (*sessions)[category]
	if len(list) == 0 || !list[len(list)-1].IsActive() {
		return nil, false
	}
	return list[len(list)-1], true
}

// Sessions returns a snapshot of all sessions of category in creation order.
func (m *Manager) Sessions(category Category) []*Session {
	sessions := m.sessions.RLock()
	defer m.sessions.RUnlock(&sessions)
	return slices.Clone((*sessions)[category])
}

// AllKernelRecords returns every Kernel session with its records in creation order,
// including closed ones.
func (m *Manager) AllKernelRecords() []RangeRecords[KernelRecord] {
	return allRecords(m.Sessions(Kernel), (*Session).KernelRecords)
}

// AllMemoryRecords returns every Memory session with its records in creation order,
// including closed ones.
func (m *Manager) AllMemoryRecords() []RangeRecords[MemoryRecord] {
	return allRecords(m.Sessions(Memory), (*Session).MemoryRecords)
}

func allRecords[R any](sessions []*Session, records func(*Session) []R) []RangeRecords[R] {
	out := make([]RangeRecords[R], 0, len(sessions))
	for _, s := range sessions {
		out = append(out, RangeRecords[R]{ID: s.ID(), Name: s.Name(), Records: records(s)})
	}
	return out
}

// ForceCloseAll reports and deactivates every session still active and returns how many
// were closed. It is used on teardown.
func (m *Manager) ForceCloseAll() int {
	sessions := m.sessions.WLock()
	defer m.sessions.WUnlock(&sessions)

	closed := 0
	for _, category := range Categories() {
		list := (*sessions)[category]
		if len(list) == 0 || !list[len(list)-1].IsActive() {
			continue
		}
		last := list[len(list)-1]
		log.Warnf("Session %s of type %s still open at shutdown, closing it", last.Name(), category)
		log.Info(last.Report())
		last.Deactivate()
		closed++
	}
	return closed
}
