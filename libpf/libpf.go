// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package libpf holds small shared types used across the profiler packages.
package libpf // import "go.opentelemetry.io/gpu-range-profiler/libpf"

import "time"

// Void allows to use maps as sets without memory allocation for the values.
// From the "Go Programming Language":
//
//	The struct type with no fields is called the empty struct, written struct{}. It has size zero
//	and carries no information but may be useful nonetheless. Some Go programmers
//	use it instead of bool as the value type of a map that represents a set, to emphasize
//	that only the keys are significant, but the space saving is marginal and the syntax more
//	cumbersome, so we generally avoid it.
type Void struct{}

// UnixTime32 is seconds since epoch, used as the bucket key for buffered metrics.
type UnixTime32 uint32

// NowAsUInt32 returns the current wall clock time truncated to seconds.
func NowAsUInt32() uint32 {
	return uint32(time.Now().Unix())
}
