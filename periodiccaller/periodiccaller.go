// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package periodiccaller allows periodic calls of functions.
package periodiccaller // import "go.opentelemetry.io/gpu-range-profiler/periodiccaller"

import (
	"context"
	"time"
)

// Start calls callback every interval until ctx is canceled. The returned function stops
// the ticker.
func Start(ctx context.Context, interval time.Duration, callback func()) func() {
	return StartWithManualTrigger(ctx, interval, nil, func(bool) { callback() })
}

// StartWithManualTrigger calls callback every interval until ctx is canceled. A receive on
// trigger runs callback immediately with manualTrigger set. A nil trigger never fires.
func StartWithManualTrigger(ctx context.Context, interval time.Duration, trigger <-chan bool,
	callback func(manualTrigger bool)) func() {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				callback(false)
			case <-trigger:
				callback(true)
			case <-ctx.Done():
				return
			}
		}
	}()

	return ticker.Stop
}
