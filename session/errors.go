// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package session // import "go.opentelemetry.io/gpu-range-profiler/session"

import "errors"

var (
	// ErrAlreadyActive is returned when a session is started while the previous session
	// of the same category is still active.
	ErrAlreadyActive = errors.New("session already active")
	// ErrNoActiveSession is returned when ending a category that never had a session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrAlreadyInactive is returned when ending a category whose last session is
	// already closed. It is a warning.
	ErrAlreadyInactive = errors.New("session already inactive")
	// ErrNoSessionFound is returned by name lookups on a category without sessions.
	ErrNoSessionFound = errors.New("no session found")
	// ErrAttribution is returned when a record does not fit the target session.
	ErrAttribution = errors.New("record does not match session category")
	// ErrSessionInactive is returned when pushing a record into a closed session.
	ErrSessionInactive = errors.New("session is inactive")
	// ErrUnknownCategory is returned for categories outside the known set.
	ErrUnknownCategory = errors.New("unknown category")
)
