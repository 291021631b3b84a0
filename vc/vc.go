// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package vc provides buildtime information.
package vc // import "go.opentelemetry.io/gpu-range-profiler/vc"

import "fmt"

// Set at link time via -ldflags "-X go.opentelemetry.io/gpu-range-profiler/vc.version=...".
var (
	revision       = ""
	buildTimestamp = ""
	version        = ""
)

// Revision of the build.
func Revision() string {
	return revision
}

// BuildTimestamp returns the timestamp of the build.
func BuildTimestamp() string {
	return buildTimestamp
}

// Version in vX.Y.Z{-N-abbrev} format, or "dev" for unstamped builds.
func Version() string {
	if version == "" {
		return "dev"
	}
	return version
}

// Summary is the single line printed by -version and logged at startup.
func Summary() string {
	return fmt.Sprintf("%s (revision %q, built %q)", Version(), Revision(), BuildTimestamp())
}
