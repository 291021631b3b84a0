// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package periodiccaller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodicCaller(t *testing.T) {
	interval := 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	var counter atomic.Int32
	stop := Start(ctx, interval, func() {
		if counter.Add(1) == 3 {
			close(done)
		}
	})
	defer stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "periodic callback did not fire three times")
	}
	assert.GreaterOrEqual(t, counter.Load(), int32(3))
}

func TestPeriodicCallerManualTrigger(t *testing.T) {
	// Long interval so only the manual trigger can fire.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trigger := make(chan bool)
	fired := make(chan bool, 1)
	stop := StartWithManualTrigger(ctx, time.Hour, trigger, func(manual bool) {
		fired <- manual
	})
	defer stop()

	trigger <- true
	select {
	case manual := <-fired:
		assert.True(t, manual)
	case <-time.After(time.Second):
		require.Fail(t, "manual trigger did not run the callback")
	}
}

func TestPeriodicCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var counter atomic.Int32
	stop := Start(ctx, 5*time.Millisecond, func() { counter.Add(1) })
	defer stop()

	cancel()
	time.Sleep(20 * time.Millisecond)
	seen := counter.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, seen, counter.Load())
}
