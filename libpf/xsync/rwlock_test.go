// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package xsync_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"go.opentelemetry.io/gpu-range-profiler/libpf/xsync"
)

func TestRWMutexInvalidatesReference(t *testing.T) {
	m := xsync.NewRWMutex(map[string]int{"kernel": 1})

	ref := m.RLock()
	assert.Equal(t, 1, (*ref)["kernel"])
	m.RUnlock(&ref)
	assert.Nil(t, ref)

	w := m.WLock()
	(*w)["memory"] = 2
	m.WUnlock(&w)
	assert.Nil(t, w)

	r := m.RLock()
	defer m.RUnlock(&r)
	assert.Equal(t, map[string]int{"kernel": 1, "memory": 2}, *r)
}

func TestRWMutexConcurrentWriters(t *testing.T) {
	m := xsync.NewRWMutex([]int{})

	var wg sync.WaitGroup
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := m.WLock()
			*s = append(*s, i)
			m.WUnlock(&s)
		}()
	}
	wg.Wait()

	s := m.RLock()
	defer m.RUnlock(&s)
	assert.Len(t, *s, 64)
}
