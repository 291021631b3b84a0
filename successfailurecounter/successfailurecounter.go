// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package successfailurecounter records the outcome of a unit of work exactly once.
//
// A SuccessFailureCounter is **not** thread safe. Each goroutine should obtain its own
// via Counters.Begin.
package successfailurecounter // import "go.opentelemetry.io/gpu-range-profiler/successfailurecounter"

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Counters holds the shared totals. The zero value is ready to use.
type Counters struct {
	success atomic.Uint64
	fail    atomic.Uint64
}

// Begin returns a SuccessFailureCounter bound to c for one unit of work.
func (c *Counters) Begin() SuccessFailureCounter {
	return New(&c.success, &c.fail)
}

// Success returns the number of units that reported success.
func (c *Counters) Success() uint64 { return c.success.Load() }

// Failure returns the number of units that reported failure.
func (c *Counters) Failure() uint64 { return c.fail.Load() }

// SuccessFailureCounter increments success or fail exactly once.
type SuccessFailureCounter struct {
	success, fail *atomic.Uint64
	sealed        bool
}

// New returns a SuccessFailureCounter over the given totals.
func New(success, fail *atomic.Uint64) SuccessFailureCounter {
	return SuccessFailureCounter{success: success, fail: fail}
}

// ReportSuccess increments the success counter or logs an error if already sealed.
func (sfc *SuccessFailureCounter) ReportSuccess() {
	if sfc.sealed {
		log.Errorf("Attempted to report success/failure status more than once.")
		return
	}
	sfc.success.Add(1)
	sfc.sealed = true
}

// ReportFailure increments the failure counter or logs an error if already sealed.
func (sfc *SuccessFailureCounter) ReportFailure() {
	if sfc.sealed {
		log.Errorf("Attempted to report failure/success status more than once.")
		return
	}
	sfc.fail.Add(1)
	sfc.sealed = true
}

// DefaultToSuccess increments the success counter unless an outcome was already reported.
func (sfc *SuccessFailureCounter) DefaultToSuccess() {
	if !sfc.sealed {
		sfc.success.Add(1)
		sfc.sealed = true
	}
}

// DefaultToFailure increments the failure counter unless an outcome was already reported.
func (sfc *SuccessFailureCounter) DefaultToFailure() {
	if !sfc.sealed {
		sfc.fail.Add(1)
		sfc.sealed = true
	}
}
