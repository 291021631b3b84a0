// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package kernelsym turns mangled device kernel symbols into readable names.
package kernelsym // import "go.opentelemetry.io/gpu-range-profiler/kernelsym"

import (
	lru "github.com/elastic/go-freelru"
	"github.com/ianlancetaylor/demangle"
	"github.com/zeebo/xxh3"
)

// DefaultCacheSize is enough for the distinct kernels of a typical training step.
const DefaultCacheSize = 1024

// Demangler caches demangled kernel names. Kernels are launched many times under the
// same symbol, so most lookups hit.
type Demangler struct {
	names *lru.SyncedLRU[string, string]
}

func hashString(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

// New returns a Demangler holding up to size names.
func New(size uint32) (*Demangler, error) {
	names, err := lru.NewSynced[string, string](size, hashString)
	if err != nil {
		return nil, err
	}
	return &Demangler{names: names}, nil
}

// Demangle returns the demangled form of name, or name itself if it is not an Itanium
// C++ mangled symbol.
func (d *Demangler) Demangle(name string) string {
	if name == "" {
		return ""
	}
	if demangled, ok := d.names.Get(name); ok {
		return demangled
	}
	demangled := demangle.Filter(name, demangle.NoClones)
	d.names.Add(name, demangled)
	return demangled
}
