// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package correlator opens and closes ranges so that every activity record lands in the
// session of the range it was issued in.
package correlator // import "go.opentelemetry.io/gpu-range-profiler/correlator"

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/gpu-range-profiler/collection"
	"go.opentelemetry.io/gpu-range-profiler/counters"
	"go.opentelemetry.io/gpu-range-profiler/metrics"
	"go.opentelemetry.io/gpu-range-profiler/session"
)

// State is the range state of one category.
type State uint8

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

var (
	// ErrAlreadyOpen is returned when a range is pushed while one is open.
	ErrAlreadyOpen = fmt.Errorf("range already open: %w", session.ErrAlreadyActive)
	// ErrNotOpen is returned when a range is popped while none is open.
	ErrNotOpen = fmt.Errorf("no range open: %w", session.ErrNoActiveSession)
	// ErrCollaborator wraps failures of the device, the collection subsystem or the
	// counter engine. The profiler cannot keep correlating after one.
	ErrCollaborator = errors.New("collaborator failure")
)

// Correlator drives the per category range state machine.
type Correlator struct {
	manager   *session.Manager
	subsystem collection.Subsystem
	device    collection.Device
	engine    counters.Engine

	// mu serializes Push, Pop and Shutdown, and guards states.
	mu     sync.Mutex
	states map[session.Category]State
}

// New returns a Correlator. engine may be nil, in which case kernel ranges are not
// counter profiled.
func New(manager *session.Manager, subsystem collection.Subsystem, device collection.Device,
	engine counters.Engine) *Correlator {
	return &Correlator{
		manager:   manager,
		subsystem: subsystem,
		device:    device,
		engine:    engine,
		states:    map[session.Category]State{},
	}
}

// activityKind maps a session category to the activity kind recording it.
func activityKind(category session.Category) collection.Kind {
	if category == session.Memory {
		return collection.Memory
	}
	return collection.ConcurrentKernel
}

// State returns the range state of category.
func (c *Correlator) State(category session.Category) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[category]
}

// Barrier waits for all issued device work and then for the delivery of every buffered
// activity record.
func (c *Correlator) Barrier(ctx context.Context) error {
	if err := c.device.Synchronize(ctx); err != nil {
		return fmt.Errorf("%w: synchronize device: %w", ErrCollaborator, err)
	}
	if err := c.subsystem.Flush(ctx); err != nil {
		return fmt.Errorf("%w: flush activity buffers: %w", ErrCollaborator, err)
	}
	return nil
}

// Push opens range name for category.
func (c *Correlator) Push(ctx context.Context, name string, category session.Category) error {
	if !category.Valid() {
		return fmt.Errorf("%w: %v", session.ErrUnknownCategory, category)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.states[category] == Open {
		current, _ := c.manager.SessionName(category)
		return fmt.Errorf("%w: %s range %q, push %q", ErrAlreadyOpen, category, current, name)
	}

	if err := c.Barrier(ctx); err != nil {
		return err
	}
	kind := activityKind(category)
	if err := c.subsystem.Enable(ctx, kind); err != nil {
		return fmt.Errorf("%w: enable %s: %w", ErrCollaborator, kind, err)
	}

	s, err := session.New(name, category)
	if err != nil {
		c.disable(ctx, kind)
		return err
	}
	if err = c.manager.StartSession(category, s); err != nil {
		c.disable(ctx, kind)
		if errors.Is(err, session.ErrAlreadyActive) {
			return fmt.Errorf("%w: %w", ErrAlreadyOpen, err)
		}
		return err
	}
	log.Debugf("Starting profiling for type %s with session name %s", category, name)

	if category == session.Kernel && c.engine != nil {
		if err = c.engine.BeginRange(ctx, name); err != nil {
			if endErr := c.manager.EndSession(category); endErr != nil {
				log.Errorf("Failed to roll back session %s: %v", name, endErr)
			}
			c.disable(ctx, kind)
			return fmt.Errorf("%w: begin counter range %q: %w", ErrCollaborator, name, err)
		}
	}

	c.states[category] = Open
	return nil
}

// Pop closes the open range of category. A name differing from the open range is
// logged and the open range is still closed.
func (c *Correlator) Pop(ctx context.Context, name string, category session.Category) error {
	if !category.Valid() {
		return fmt.Errorf("%w: %v", session.ErrUnknownCategory, category)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.states[category] != Open {
		return fmt.Errorf("%w: %s pop %q", ErrNotOpen, category, name)
	}

	if err := c.Barrier(ctx); err != nil {
		return err
	}
	if current, err := c.manager.SessionName(category); err == nil && current != name {
		log.Warnf("Popping %s range %q, but %q is open", category, name, current)
	}
	if err := c.close(ctx, category); err != nil {
		return err
	}
	log.Debugf("Ended profiling for type %s with session name %s", category, name)
	return nil
}

// close ends the counter range, the session and the recording of category. c.mu must be
// held.
func (c *Correlator) close(ctx context.Context, category session.Category) error {
	if category == session.Kernel && c.engine != nil {
		if err := c.engine.EndRange(ctx); err != nil {
			return fmt.Errorf("%w: end counter range: %w", ErrCollaborator, err)
		}
	}
	if err := c.manager.EndSession(category); err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			return fmt.Errorf("%w: %w", ErrNotOpen, err)
		}
		return err
	}
	c.states[category] = Closed

	kind := activityKind(category)
	if err := c.subsystem.Disable(ctx, kind); err != nil {
		return fmt.Errorf("%w: disable %s: %w", ErrCollaborator, kind, err)
	}
	return nil
}

// disable rolls back the recording enabled by a failed Push.
func (c *Correlator) disable(ctx context.Context, kind collection.Kind) {
	if err := c.subsystem.Disable(ctx, kind); err != nil {
		log.Errorf("Failed to disable %s after a failed push: %v", kind, err)
	}
}

// Shutdown closes every open range after a final barrier and force closes sessions still
// active in the manager. Errors are joined and do not stop the teardown.
func (c *Correlator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if err := c.Barrier(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, category := range session.Categories() {
		if c.states[category] != Open {
			continue
		}
		log.Warnf("Closing %s range left open at shutdown", category)
		if err := c.close(ctx, category); err != nil {
			errs = append(errs, err)
		}
		c.states[category] = Closed
	}
	if n := c.manager.ForceCloseAll(); n > 0 {
		log.Warnf("Force closed %d sessions", n)
		metrics.Add(metrics.IDSessionsForceClosed, metrics.MetricValue(n))
	}
	return errors.Join(errs...)
}
