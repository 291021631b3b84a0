// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package reporter // import "go.opentelemetry.io/gpu-range-profiler/reporter"

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// backlog is a bounded first-in-first-out ring of batches that could not be delivered.
// Once full, the oldest batch is overwritten. It is safe for concurrent access.
type backlog[T any] struct {
	mu sync.Mutex

	// name identifies the backlog in log messages.
	name string

	data     []T
	readPos  int
	writePos int
	count    int

	// overwritten counts batches lost since the last call to Overwritten.
	overwritten int
}

func newBacklog[T any](size int, name string) (*backlog[T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("unsupported size of backlog %s: %d", name, size)
	}
	return &backlog[T]{name: name, data: make([]T, size)}, nil
}

// Push appends v, overwriting the oldest batch if there is no space left.
func (b *backlog[T]) Push(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data[b.writePos] = v
	b.writePos = (b.writePos + 1) % len(b.data)

	if b.count < len(b.data) {
		b.count++
		if b.count == len(b.data) {
			log.Warnf("Backlog %s is full, the oldest batch will be overwritten", b.name)
		}
		return
	}
	b.overwritten++
	b.readPos = b.writePos
}

// Drain removes and returns all batches, oldest first.
func (b *backlog[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	out := make([]T, b.count)
	for i := range out {
		pos := (b.readPos + i) % len(b.data)
		out[i] = b.data[pos]
		b.data[pos] = zero
	}
	b.readPos = b.writePos
	b.count = 0
	return out
}

// Len returns the number of queued batches.
func (b *backlog[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Overwritten returns and resets the number of lost batches.
func (b *backlog[T]) Overwritten() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.overwritten
	b.overwritten = 0
	return n
}
