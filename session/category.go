// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package session // import "go.opentelemetry.io/gpu-range-profiler/session"

import (
	"fmt"
	"strconv"
	"strings"
)

// Category is the kind of telemetry a range tracks.
type Category uint8

const (
	// Kernel ranges collect concurrent kernel execution records.
	Kernel Category = iota
	// Memory ranges collect memory operation records.
	Memory

	numCategories
)

var categoryNames = [numCategories]string{
	Kernel: "kernel",
	Memory: "memory",
}

func (c Category) String() string {
	if c < numCategories {
		return categoryNames[c]
	}
	return "category(" + strconv.Itoa(int(c)) + ")"
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c < numCategories
}

// Categories returns all known categories in declaration order.
func Categories() []Category {
	cats := make([]Category, 0, numCategories)
	for c := range numCategories {
		cats = append(cats, c)
	}
	return cats
}

// ParseCategory accepts a category name or its numeric code.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "kernel", "concurrent_kernel", "0":
		return Kernel, nil
	case "memory", "mem", "1":
		return Memory, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}
