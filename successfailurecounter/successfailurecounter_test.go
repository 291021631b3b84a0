// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package successfailurecounter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuccessFailureCounter(t *testing.T) {
	tests := map[string]struct {
		run             func(sfc *SuccessFailureCounter)
		expectedSuccess uint64
		expectedFailure uint64
	}{
		"default success - no report": {
			run:             func(sfc *SuccessFailureCounter) { sfc.DefaultToSuccess() },
			expectedSuccess: 1,
		},
		"default success - report failure": {
			run: func(sfc *SuccessFailureCounter) {
				defer sfc.DefaultToSuccess()
				sfc.ReportFailure()
			},
			expectedFailure: 1,
		},
		"default failure - no report": {
			run:             func(sfc *SuccessFailureCounter) { sfc.DefaultToFailure() },
			expectedFailure: 1,
		},
		"default failure - report success": {
			run: func(sfc *SuccessFailureCounter) {
				defer sfc.DefaultToFailure()
				sfc.ReportSuccess()
			},
			expectedSuccess: 1,
		},
		"double report counts once": {
			run: func(sfc *SuccessFailureCounter) {
				sfc.ReportSuccess()
				sfc.ReportFailure()
			},
			expectedSuccess: 1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var c Counters
			sfc := c.Begin()
			tc.run(&sfc)
			assert.Equal(t, tc.expectedSuccess, c.Success())
			assert.Equal(t, tc.expectedFailure, c.Failure())
		})
	}
}

func TestCountersAccumulate(t *testing.T) {
	var c Counters
	for i := range 5 {
		sfc := c.Begin()
		if i%2 == 0 {
			sfc.ReportSuccess()
		} else {
			sfc.ReportFailure()
		}
	}
	assert.Equal(t, uint64(3), c.Success())
	assert.Equal(t, uint64(2), c.Failure())
}
