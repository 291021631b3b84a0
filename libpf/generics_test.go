// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package libpf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSliceToSet(t *testing.T) {
	set := SliceToSet([]string{"b", "a", "b"})
	assert.Len(t, set, 2)
	assert.Contains(t, set, "a")
	assert.Contains(t, set, "b")
}

func TestSortedKeys(t *testing.T) {
	tests := map[string]struct {
		in   map[string]float64
		want []string
	}{
		"empty":    {in: map[string]float64{}, want: []string{}},
		"unsorted": {in: map[string]float64{"sm": 1, "occupancy": 2, "dram": 3}, want: []string{"dram", "occupancy", "sm"}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, SortedKeys(tc.in))
		})
	}
}
