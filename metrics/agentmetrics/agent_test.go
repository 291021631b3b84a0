// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package agentmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestTimeDelta(t *testing.T) {
	tests := map[string]struct {
		now   unix.Timeval
		prev  unix.Timeval
		delta int64
	}{
		"1000ms":          {now: unix.Timeval{Sec: 1}, delta: 1000},
		"1ms":             {now: unix.Timeval{Usec: 1000}, delta: 1},
		"delta too small": {now: unix.Timeval{Usec: 500}, delta: 0},
		"mixed":           {now: unix.Timeval{Sec: 3, Usec: 2000}, prev: unix.Timeval{Sec: 1}, delta: 2002},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.delta, timeDelta(tc.now, tc.prev))
		})
	}
}

func TestStart(t *testing.T) {
	stop, err := Start(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	time.Sleep(25 * time.Millisecond)
	stop()
}
