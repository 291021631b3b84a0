// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile cross-checks the attributed kernel records against the ranges the
// counter engine reported.
package reconcile // import "go.opentelemetry.io/gpu-range-profiler/reconcile"

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/gpu-range-profiler/counters"
	"go.opentelemetry.io/gpu-range-profiler/metrics"
	"go.opentelemetry.io/gpu-range-profiler/session"
)

// ErrReconciliationMismatch is matched by every error Check returns for diverging streams.
var ErrReconciliationMismatch = errors.New("reconciliation mismatch")

// Options tune the check.
type Options struct {
	// StrictDrops makes any record dropped by the collection subsystem a mismatch.
	StrictDrops bool
}

// Window describes a session whose engine ranges do not line up with its records.
type Window struct {
	Session string
	Offset  int
	Records int
	Reason  string
}

// Report is the outcome of a check.
type Report struct {
	// Records is the number of kernel records over all kernel sessions.
	Records int
	// Ranges is the number of ranges the engine reported.
	Ranges int
	// Dropped is the number of records the collection subsystem dropped.
	Dropped uint64
	// Windows lists the sessions whose window diverges.
	Windows []Window
}

// MismatchError carries the report of a failed check.
type MismatchError struct {
	Report Report
	strict bool
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v: %d kernel records, %d counter ranges", ErrReconciliationMismatch,
		e.Report.Records, e.Report.Ranges)
	if e.Report.Dropped > 0 {
		fmt.Fprintf(&b, ", %d dropped records", e.Report.Dropped)
		if e.strict {
			b.WriteString(" (strict)")
		}
	}
	for _, w := range e.Report.Windows {
		fmt.Fprintf(&b, "; session %q at %d: %s", w.Session, w.Offset, w.Reason)
	}
	return b.String()
}

func (e *MismatchError) Unwrap() error { return ErrReconciliationMismatch }

// Check compares the kernel sessions of mgr with the decoded ranges of engine. dropped is
// the number of records the collection subsystem reported as dropped. A mismatch is
// returned as *MismatchError; other errors come from the engine.
func Check(ctx context.Context, mgr *session.Manager, engine counters.Engine, dropped uint64,
	opts Options) (Report, error) {
	report := Report{Dropped: dropped}

	sessions := mgr.Sessions(session.Kernel)
	for _, s := range sessions {
		report.Records += s.Len()
	}

	var err error
	if report.Ranges, err = engine.RangeCount(ctx); err != nil {
		return report, fmt.Errorf("count counter ranges: %w", err)
	}
	ranges, err := engine.Ranges(ctx)
	if err != nil {
		return report, fmt.Errorf("read counter ranges: %w", err)
	}

	offset := 0
	for _, s := range sessions {
		n := s.Len()
		if n == 0 {
			continue
		}
		if !s.IsActive() {
			if w, ok := checkWindow(s.Name(), offset, n, ranges); !ok {
				report.Windows = append(report.Windows, w)
			}
		}
		offset += n
	}

	strict := opts.StrictDrops && dropped > 0
	if report.Records != report.Ranges || len(report.Windows) > 0 || strict {
		metrics.Add(metrics.IDReconciliationMismatches, 1)
		return report, &MismatchError{Report: report, strict: strict}
	}
	log.Debugf("Reconciled %d kernel records against %d counter ranges", report.Records,
		report.Ranges)
	return report, nil
}

// checkWindow verifies that ranges[offset:offset+n] exist and belong to the session name.
func checkWindow(name string, offset, n int, ranges []counters.ProfilerRange) (Window, bool) {
	w := Window{Session: name, Offset: offset, Records: n}
	if offset+n > len(ranges) {
		w.Reason = fmt.Sprintf("window of %d ranges exceeds the %d reported", n, len(ranges))
		return w, false
	}
	for _, r := range ranges[offset : offset+n] {
		if r.Name != name {
			w.Reason = fmt.Sprintf("range %d is named %q", r.Index, r.Name)
			return w, false
		}
	}
	return w, true
}
