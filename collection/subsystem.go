// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package collection defines the activity collection subsystem the profiler consumes and
// provides an in-process implementation of it.
package collection // import "go.opentelemetry.io/gpu-range-profiler/collection"

import (
	"context"
	"errors"
	"fmt"
)

// Kind is an activity kind that can be enabled on the subsystem.
type Kind uint8

const (
	ConcurrentKernel Kind = iota
	Memory
)

func (k Kind) String() string {
	switch k {
	case ConcurrentKernel:
		return "concurrent_kernel"
	case Memory:
		return "memory"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// RequestFunc must synchronously return an empty buffer and the maximum number of records
// to place in it, where 0 means no limit.
type RequestFunc func() (buf []byte, maxRecords int)

// CompleteFunc receives a filled buffer. Only buf[:validSize] holds records.
type CompleteFunc func(ctx context.Context, streamID uint32, buf []byte, validSize int) error

// APIFunc is invoked on entry and exit of a runtime launch API call.
type APIFunc func(cbid uint32, symbol string)

// Subsystem delivers activity records asynchronously through a buffer callback pair.
type Subsystem interface {
	// RegisterCallbacks binds the buffer callbacks. It must be called before Enable.
	RegisterCallbacks(requested RequestFunc, completed CompleteFunc) error
	// Enable starts recording activity of kind.
	Enable(ctx context.Context, kind Kind) error
	// Disable stops recording activity of kind. Buffered records are still delivered.
	Disable(ctx context.Context, kind Kind) error
	// Flush delivers every buffered record and returns once the completed callbacks ran.
	Flush(ctx context.Context) error
	// DroppedRecords returns the records dropped on streamID since the last call.
	DroppedRecords(ctx context.Context, streamID uint32) (uint64, error)
}

// Device is the GPU whose outstanding work can be waited on.
type Device interface {
	// Synchronize blocks until all previously issued work completed.
	Synchronize(ctx context.Context) error
}

// APISubscriber reports runtime launch API calls.
type APISubscriber interface {
	SubscribeAPI(enter, exit APIFunc) error
}

var (
	// ErrNotRegistered is returned when records are produced before callbacks exist.
	ErrNotRegistered = errors.New("activity callbacks not registered")
	// ErrNotRunning is returned when the subsystem worker is not started or has exited.
	ErrNotRunning = errors.New("collection subsystem not running")
	// ErrDelivery wraps an error returned by the completed callback.
	ErrDelivery = errors.New("activity buffer delivery failed")
)
