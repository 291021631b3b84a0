// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package reporter // import "go.opentelemetry.io/gpu-range-profiler/reporter"

import (
	"fmt"
	"strconv"
	"strings"
)

// Reduction combines the counter values of all kernels of one session.
type Reduction uint8

const (
	Sum Reduction = iota
	Max
	Mean
)

func (r Reduction) String() string {
	switch r {
	case Sum:
		return "SUM"
	case Max:
		return "MAX"
	case Mean:
		return "MEAN"
	default:
		return fmt.Sprintf("reduction(%d)", uint8(r))
	}
}

// Valid reports whether r is a known reduction.
func (r Reduction) Valid() bool {
	return r <= Mean
}

// ParseReduction accepts a reduction name in any case, "avg" for Mean, or the numeric
// codes 0 (Sum), 1 (Max) and 2 (Mean).
func ParseReduction(s string) (Reduction, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	switch t {
	case "sum":
		return Sum, nil
	case "max":
		return Max, nil
	case "mean", "avg":
		return Mean, nil
	}
	if n, err := strconv.ParseUint(t, 10, 8); err == nil && Reduction(n).Valid() {
		return Reduction(n), nil
	}
	return Sum, fmt.Errorf("unknown reduction %q", s)
}

// reduce applies r to values. mean divides by window, the number of kernels.
func (r Reduction) reduce(values []float64, window int) float64 {
	if len(values) == 0 {
		return 0
	}
	switch r {
	case Max:
		m := values[0]
		for _, v := range values[1:] {
			m = max(m, v)
		}
		return m
	case Mean:
		return sum(values) / float64(window)
	default:
		return sum(values)
	}
}

func sum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}
