// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package session // import "go.opentelemetry.io/gpu-range-profiler/session"

import "errors"

// Result is the tri-state outcome returned at the public range API boundary.
type Result uint8

const (
	Success Result = iota
	Warning
	Error
)

func (r Result) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case Warning:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// ResultOf maps an error to a Result. Closing an already closed session is a warning,
// every other error is an error.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, ErrAlreadyInactive):
		return Warning
	default:
		return Error
	}
}
