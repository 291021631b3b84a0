// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package times // import "go.opentelemetry.io/gpu-range-profiler/times"

import (
	"time"
	_ "unsafe" // required to use //go:linkname for runtime.nanotime
)

// KTime is a CLOCK_MONOTONIC timestamp in nanoseconds, the clock device activity
// timestamps are expressed in.
type KTime int64

// GetKTime returns the current monotonic time. It relies on runtime.nanotime using
// CLOCK_MONOTONIC, which avoids a syscall through the vDSO.
//
//go:noescape
//go:linkname GetKTime runtime.nanotime
func GetKTime() KTime

// Time converts the monotonic timestamp into a Go time object.
func (t KTime) Time() time.Time {
	return time.Unix(0, t.UnixNano())
}

// UnixNano converts the monotonic timestamp to nanoseconds since the epoch. The result is
// only meaningful after StartRealtimeSync.
func (t KTime) UnixNano() int64 {
	return int64(t) + bootTimeUnixNano.Load()
}
