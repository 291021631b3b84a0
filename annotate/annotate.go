// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package annotate keeps a stack of named timeline annotations alongside the profiled
// ranges.
package annotate // import "go.opentelemetry.io/gpu-range-profiler/annotate"

import (
	"time"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/gpu-range-profiler/libpf/xsync"
	"go.opentelemetry.io/gpu-range-profiler/times"
)

// ID identifies a started annotation.
type ID uint64

type annotation struct {
	id    ID
	name  string
	start times.KTime
}

type stack struct {
	next   ID
	active []annotation
}

// Stack holds the active annotations in start order. It is safe for concurrent use.
type Stack struct {
	state xsync.RWMutex[stack]
}

// New returns an empty Stack.
func New() *Stack {
	return &Stack{state: xsync.NewRWMutex(stack{next: 1})}
}

// Start pushes an annotation named name and returns its ID.
func (s *Stack) Start(name string) ID {
	st := s.state.WLock()
	defer s.state.WUnlock(&st)
	a := annotation{id: st.next, name: name, start: times.GetKTime()}
	st.next++
	st.active = append(st.active, a)
	log.Debugf("Annotation %d %q started", a.id, name)
	return a.id
}

// End ends the most recent annotation named expectedName, so annotations of independent
// range categories may interleave. It returns false if none is active. When no active
// annotation carries expectedName, the most recent one ends and a warning is logged.
func (s *Stack) End(expectedName string) bool {
	st := s.state.WLock()
	defer s.state.WUnlock(&st)
	n := len(st.active)
	if n == 0 {
		return false
	}
	i := n - 1
	for j := i; j >= 0 && expectedName != ""; j-- {
		if st.active[j].name == expectedName {
			i = j
			break
		}
	}
	a := st.active[i]
	st.active = append(st.active[:i], st.active[i+1:]...)
	if expectedName != "" && a.name != expectedName {
		log.Warnf("Ending annotation %q, expected %q", a.name, expectedName)
	}
	log.Debugf("Annotation %d %q ended after %v", a.id, a.name,
		time.Duration(times.GetKTime()-a.start))
	return true
}

// Active returns the number of active annotations.
func (s *Stack) Active() int {
	st := s.state.RLock()
	defer s.state.RUnlock(&st)
	return len(st.active)
}

// Clear ends every active annotation, innermost first.
func (s *Stack) Clear() {
	st := s.state.WLock()
	defer s.state.WUnlock(&st)
	for i := len(st.active) - 1; i >= 0; i-- {
		log.Warnf("Clearing annotation %q", st.active[i].name)
	}
	st.active = nil
}
