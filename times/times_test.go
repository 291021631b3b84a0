// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package times

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaults(t *testing.T) {
	tests := map[string]struct {
		flush, monitor time.Duration
		size           int
		want           Times
	}{
		"defaults": {
			want: Times{DefaultFlushInterval, DefaultMonitorInterval, DefaultBufferSize},
		},
		"explicit": {
			flush: time.Second, monitor: time.Minute, size: 4096,
			want: Times{time.Second, time.Minute, 4096},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got := New(tc.flush, tc.monitor, tc.size)
			assert.Equal(t, tc.want.FlushInterval(), got.FlushInterval())
			assert.Equal(t, tc.want.MonitorInterval(), got.MonitorInterval())
			assert.Equal(t, tc.want.BufferSize(), got.BufferSize())
		})
	}
}

func TestKTimeRealtime(t *testing.T) {
	StartRealtimeSync(context.Background(), 0)

	now := time.Now()
	kt := GetKTime().Time()
	assert.WithinDuration(t, now, kt, 50*time.Millisecond)
}
