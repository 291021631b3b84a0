// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package profiler // import "go.opentelemetry.io/gpu-range-profiler/profiler"

import (
	"go.opentelemetry.io/gpu-range-profiler/collection"
	"go.opentelemetry.io/gpu-range-profiler/counters"
	"go.opentelemetry.io/gpu-range-profiler/kernelsym"
	"go.opentelemetry.io/gpu-range-profiler/reporter"
)

// Config holds the library level settings of a Profiler.
type Config struct {
	// Metrics are the counter metrics profiled for kernel ranges.
	Metrics []string
	// ReportPath is the CSV file rows are appended to when no sink is set.
	ReportPath string
	// StrictDrops treats dropped activity records as a reconciliation mismatch.
	StrictDrops bool
	// BufferSize is the size of each activity buffer. Zero selects the default.
	BufferSize int
	// SymbolCacheSize is the number of cached demangled kernel names.
	SymbolCacheSize uint32
}

// FatalFunc handles errors of the collaborators the profiler cannot recover from.
type FatalFunc func(format string, args ...any)

// Option customizes a Profiler.
type Option func(*Profiler)

// WithSubsystem sets the collection subsystem. If it also implements collection.Device
// it is used as the device unless WithDevice is given.
func WithSubsystem(s collection.Subsystem) Option {
	return func(p *Profiler) { p.subsystem = s }
}

// WithDevice sets the device whose work the barrier waits for.
func WithDevice(d collection.Device) Option {
	return func(p *Profiler) { p.device = d }
}

// WithEngine sets the counter engine. By default an in-memory engine is used.
func WithEngine(e counters.Engine) Option {
	return func(p *Profiler) { p.engine = e }
}

// WithSink sets where reduced rows are written. By default they are appended to the
// configured CSV report.
func WithSink(s reporter.Sink) Option {
	return func(p *Profiler) { p.sink = s }
}

// WithSymbols sets the kernel name demangler.
func WithSymbols(d *kernelsym.Demangler) Option {
	return func(p *Profiler) { p.symbols = d }
}

// WithFatalHandler replaces log.Fatalf as the handler for collaborator failures.
func WithFatalHandler(fn FatalFunc) Option {
	return func(p *Profiler) { p.fatal = fn }
}

// WithStrictDrops overrides Config.StrictDrops.
func WithStrictDrops(strict bool) Option {
	return func(p *Profiler) { p.strictDrops = strict }
}
