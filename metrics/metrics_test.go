// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReporter struct {
	result chan []Metric
}

func (f fakeReporter) ReportMetrics(_ uint32, ids []uint32, values []int64) {
	metricsResult := make([]Metric, len(ids))

	for j := range ids {
		metricsResult[j].ID = MetricID(ids[j])
		metricsResult[j].Value = MetricValue(values[j])
	}

	f.result <- metricsResult
}

func TestMetrics(t *testing.T) {
	reporter := &fakeReporter{result: make(chan []Metric, 128)}
	SetReporter(reporter)
	t.Cleanup(func() { SetReporter(nil) })

	// Make sure there is enough time to call Add/AddSlice below within the same second.
	time.Sleep(1*time.Second - time.Duration(time.Now().Nanosecond()))

	AddSlice([]Metric{
		{IDAgentGoRoutines, 20},
		{IDActivityKernelRecords, 3},
	})
	// Counters are summed, gauges keep the last value and zero counters are dropped.
	Add(IDActivityKernelRecords, 4)
	Add(IDAgentGoRoutines, 25)
	Add(IDActivityBuffersCompleted, 1)
	Add(IDAttributionErrors, 0)
	AddSlice([]Metric{{IDActivityBuffersCompleted, 2}})

	Flush()

	select {
	case outputMetrics := <-reporter.result:
		assert.Equal(t, []Metric{
			{IDAgentGoRoutines, 25},
			{IDActivityKernelRecords, 7},
			{IDActivityBuffersCompleted, 3},
		}, outputMetrics)
	case <-time.After(3 * time.Second):
		assert.Fail(t, "timeout - no metrics received in time")
	}
}

func TestAddInvalidID(t *testing.T) {
	reporter := &fakeReporter{result: make(chan []Metric, 1)}
	SetReporter(reporter)
	t.Cleanup(func() { SetReporter(nil) })

	Add(IDInvalid, 1)
	Add(IDMax, 1)
	Flush()

	assert.Empty(t, reporter.result)
}

func TestGetDefinitions(t *testing.T) {
	defs := GetDefinitions()
	require.Len(t, defs, IDMax)
	for i, md := range defs {
		assert.Equal(t, MetricID(i), md.ID, "metrics.json must be ordered by id")
		if !md.Obsolete {
			assert.NotEmpty(t, md.Field, md.Name)
			assert.Contains(t, []MetricType{MetricTypeCounter, MetricTypeGauge}, md.Type)
		}
	}
}
