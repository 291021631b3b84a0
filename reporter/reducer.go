// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package reporter reduces the counter ranges of every kernel session and writes the
// results to sinks.
package reporter // import "go.opentelemetry.io/gpu-range-profiler/reporter"

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/gpu-range-profiler/counters"
	"go.opentelemetry.io/gpu-range-profiler/libpf"
	"go.opentelemetry.io/gpu-range-profiler/session"
)

// ErrWindow is returned when a session needs more ranges than the engine reported.
var ErrWindow = errors.New("session window exceeds counter ranges")

// Row is one reduced metric of one session.
type Row struct {
	Range     string
	SessionID uuid.UUID
	Metric    string
	Value     float64
	Reduction Reduction
}

// Reduce maps the counter ranges onto the kernel sessions in order and reduces each
// metric per session. Session i owns the ranges following those of all earlier sessions,
// one per kernel record. Sessions without records own no ranges and yield no rows.
// If a window runs past the ranges, the rows of the sessions before it are returned
// together with an ErrWindow error.
func Reduce(sessions []session.RangeRecords[session.KernelRecord],
	ranges []counters.ProfilerRange, r Reduction) ([]Row, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid %v", r)
	}

	var rows []Row
	offset := 0
	for _, s := range sessions {
		n := len(s.Records)
		if n == 0 {
			log.Debugf("Session %s has no kernel records, skipping", s.Name)
			continue
		}
		if offset+n > len(ranges) {
			// Later windows start at or past this one, so none of them fit either.
			return rows, fmt.Errorf("%w: session %q needs ranges [%d,%d) of %d",
				ErrWindow, s.Name, offset, offset+n, len(ranges))
		}
		window := ranges[offset : offset+n]

		names := libpf.Set[string]{}
		for _, pr := range window {
			for metric := range pr.Values {
				names[metric] = libpf.Void{}
			}
		}
		values := make([]float64, 0, n)
		for _, metric := range libpf.SortedKeys(names) {
			values = values[:0]
			for _, pr := range window {
				if v, ok := pr.Values[metric]; ok {
					values = append(values, v)
				}
			}
			rows = append(rows, Row{
				Range:     s.Name,
				SessionID: s.ID,
				Metric:    metric,
				Value:     r.reduce(values, n),
				Reduction: r,
			})
		}
		offset += n
	}
	return rows, nil
}
