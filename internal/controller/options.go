// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/gpu-range-profiler/internal/controller"

import "go.opentelemetry.io/gpu-range-profiler/reporter"

type Option interface {
	applyOption(*Controller) *Controller
}
type controllerOptionFunc func(*Controller) *Controller

func (f controllerOptionFunc) applyOption(c *Controller) *Controller {
	return f(c)
}

// WithSink adds a sink that receives the reduced rows next to the CSV report.
func WithSink(s reporter.Sink) Option {
	return controllerOptionFunc(func(c *Controller) *Controller {
		c.sinks = append(c.sinks, s)
		return c
	})
}

// WithObjectPutter sets the object store the report is uploaded to. This defaults to
// an S3 client built from the default AWS configuration.
func WithObjectPutter(p reporter.ObjectPutter) Option {
	return controllerOptionFunc(func(c *Controller) *Controller {
		c.putter = p
		return c
	})
}
