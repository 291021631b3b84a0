// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package xsync provides locks that own the data they protect.
package xsync // import "go.opentelemetry.io/gpu-range-profiler/libpf/xsync"

import "sync"

// RWMutex wraps sync.RWMutex together with the value it guards, so the value can only be
// reached through a lock call.
//
//	type Registry struct {
//		sessions xsync.RWMutex[map[string]*Session]
//	}
//
//	func (r *Registry) Add(name string, s *Session) {
//		sessions := r.sessions.WLock()
//		defer r.sessions.WUnlock(&sessions)
//		(*sessions)[name] = s
//	}
//
// Unlocking nils the caller's pointer, so use-after-unlock crashes in tests instead of
// silently racing.
type RWMutex[T any] struct {
	guarded T
	mutex   sync.RWMutex
}

// NewRWMutex creates a new read-write mutex guarding the given value.
func NewRWMutex[T any](guarded T) RWMutex[T] {
	return RWMutex[T]{guarded: guarded}
}

// RLock locks for reading and returns a pointer to the guarded value. The caller must not
// write through it or keep it beyond the matching RUnlock.
func (mtx *RWMutex[T]) RLock() *T {
	mtx.mutex.RLock()
	return &mtx.guarded
}

// RUnlock releases a read lock and invalidates ref.
func (mtx *RWMutex[T]) RUnlock(ref **T) {
	*ref = nil
	mtx.mutex.RUnlock()
}

// WLock locks for writing and returns a pointer to the guarded value. The caller must not
// keep it beyond the matching WUnlock.
func (mtx *RWMutex[T]) WLock() *T {
	mtx.mutex.Lock()
	return &mtx.guarded
}

// WUnlock releases a write lock and invalidates ref.
func (mtx *RWMutex[T]) WUnlock(ref **T) {
	*ref = nil
	mtx.mutex.Unlock()
}
