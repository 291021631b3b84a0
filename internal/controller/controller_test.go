// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/consumer/consumertest"

	"go.opentelemetry.io/gpu-range-profiler/capture"
	"go.opentelemetry.io/gpu-range-profiler/session"
)

func writeCapture(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "run.capture")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := capture.NewWriter(f)
	require.NoError(t, err)
	require.NoError(t, w.Push("rangeX", session.Kernel))
	for _, v := range []float64{0.5, 0.6, 0.7} {
		require.NoError(t, w.Kernel(capture.Kernel{
			Name:     "_Z9vectorAddPKfS0_Pfi",
			Grid:     [3]uint32{1, 1, 1},
			Block:    [3]uint32{32, 1, 1},
			Duration: time.Microsecond,
			Counters: map[string]float64{"occupancy": v},
		}))
	}
	require.NoError(t, w.Sleep(time.Second))
	require.NoError(t, w.Pop("rangeX", session.Kernel))
	// Popping twice is a recorded application bug, replay carries on.
	require.NoError(t, w.Pop("rangeX", session.Kernel))
	require.NoError(t, w.Close())
	return path
}

type fakePutter struct {
	mu     sync.Mutex
	key    string
	bucket string
	body   []byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput,
	_ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.bucket, f.key, f.body = aws.ToString(in.Bucket), aws.ToString(in.Key), body
	return &s3.PutObjectOutput{}, nil
}

func TestControllerRun(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		CapturePath:   writeCapture(t, dir),
		Reduction:     "sum",
		ReportPath:    filepath.Join(dir, "ranges.csv"),
		Metrics:       "occupancy",
		BufferRecords: 16,
		S3Bucket:      "reports",
		Exporter:      new(consumertest.MetricsSink),
	}
	putter := &fakePutter{}

	res, err := New(cfg, WithObjectPutter(putter)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, capture.ReplayStats{
		Events: 7, Pushes: 1, Pops: 2, Kernels: 3, Errors: 1,
	}, res.Replay)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "rangeX", res.Rows[0].Range)
	assert.InDelta(t, 1.8, res.Rows[0].Value, 1e-9)

	report, err := os.ReadFile(cfg.ReportPath)
	require.NoError(t, err)
	assert.Contains(t, string(report), "rangeX,occupancy,")

	assert.Equal(t, "reports", putter.bucket)
	assert.Equal(t, "ranges.csv", putter.key)
	assert.Equal(t, report, putter.body)

	sink := cfg.Exporter.(*consumertest.MetricsSink)
	assert.Equal(t, 1, sink.DataPointCount())
}

func TestControllerRunErrors(t *testing.T) {
	dir := t.TempDir()

	tests := map[string]*Config{
		"nil config":      nil,
		"missing capture": {Reduction: "sum", BufferRecords: 1},
		"unreadable capture": {
			CapturePath: filepath.Join(dir, "missing"), Reduction: "sum", BufferRecords: 1,
		},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New(cfg).Run(context.Background())
			require.Error(t, err)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{CapturePath: "x", Reduction: "max", BufferRecords: 64}
	}

	tests := map[string]struct {
		mutate  func(*Config)
		wantErr bool
	}{
		"valid":             {mutate: func(*Config) {}},
		"no capture":        {mutate: func(c *Config) { c.CapturePath = "" }, wantErr: true},
		"bad reduction":     {mutate: func(c *Config) { c.Reduction = "median" }, wantErr: true},
		"zero buffer":       {mutate: func(c *Config) { c.BufferRecords = 0 }, wantErr: true},
		"huge buffer":       {mutate: func(c *Config) { c.BufferRecords = MaxBufferRecords + 1 }, wantErr: true},
		"negative interval": {mutate: func(c *Config) { c.FlushInterval = -time.Second }, wantErr: true},
		"negative speed":    {mutate: func(c *Config) { c.ReplaySpeed = -1 }, wantErr: true},
		"key no bucket":     {mutate: func(c *Config) { c.S3Key = "k" }, wantErr: true},
		"bucket and key": {mutate: func(c *Config) {
			c.S3Bucket, c.S3Key = "b", "k"
		}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := Config{Metrics: " a, ,b,", ReportPath: "/tmp/out/r.csv", BufferRecords: 2}
	assert.Equal(t, []string{"a", "b"}, cfg.MetricNames())
	assert.Equal(t, "r.csv", cfg.ObjectKey())
	cfg.S3Key = "custom.csv"
	assert.Equal(t, "custom.csv", cfg.ObjectKey())
	assert.Positive(t, cfg.BufferSize())
}
