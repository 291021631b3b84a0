// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/collector/consumer"
	"go.opentelemetry.io/collector/pdata/pmetric"
	"golang.org/x/sys/unix"

	"go.opentelemetry.io/gpu-range-profiler/internal/controller"
	"go.opentelemetry.io/gpu-range-profiler/vc"
)

// Short copyright / license text
var copyright = `Copyright The OpenTelemetry Authors.

Licensed under the Apache License, Version 2.0.
https://www.apache.org/licenses/LICENSE-2.0
`

type exitCode int

const (
	exitSuccess exitCode = 0
	exitFailure exitCode = 1

	// Go 'flag' package calls os.Exit(2) on flag parse errors, if ExitOnError is set
	exitParseError exitCode = 2
)

func main() {
	os.Exit(int(mainWithExitCode()))
}

func mainWithExitCode() exitCode {
	cfg, err := parseArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitSuccess
		}
		return parseError("Failure to parse arguments: %v", err)
	}

	if cfg.Copyright {
		fmt.Print(copyright)
		return exitSuccess
	}

	if cfg.Version {
		fmt.Printf("%s\n", vc.Summary())
		return exitSuccess
	}

	if cfg.VerboseMode {
		log.SetLevel(log.DebugLevel)
		// Dump the arguments in debug mode.
		cfg.Dump()

		if cfg.Exporter, err = consumer.NewMetrics(logMetrics); err != nil {
			return failure("Failed to create debug exporter: %v", err)
		}
	}

	if err = cfg.Validate(); err != nil {
		return parseError("Invalid configuration: %v", err)
	}

	// Context to drive the replay and the device worker.
	mainCtx, mainCancel := signal.NotifyContext(context.Background(),
		unix.SIGINT, unix.SIGTERM, unix.SIGABRT)
	defer mainCancel()

	log.Infof("Starting GPU range profiler %s", vc.Summary())

	res, err := controller.New(cfg).Run(mainCtx)
	if err != nil {
		return failure("Failed to profile %s: %v", cfg.CapturePath, err)
	}
	if res.Replay.Errors > 0 {
		log.Warnf("Capture replayed with %d failed range calls", res.Replay.Errors)
	}

	log.Info("Exiting ...")
	return exitSuccess
}

// logMetrics prints every exported data point.
func logMetrics(_ context.Context, md pmetric.Metrics) error {
	rms := md.ResourceMetrics()
	for i := 0; i < rms.Len(); i++ {
		sms := rms.At(i).ScopeMetrics()
		for j := 0; j < sms.Len(); j++ {
			ms := sms.At(j).Metrics()
			for k := 0; k < ms.Len(); k++ {
				m := ms.At(k)
				dps := m.Gauge().DataPoints()
				for l := 0; l < dps.Len(); l++ {
					dp := dps.At(l)
					log.Debugf("Exported %s %v: %g", m.Name(), dp.Attributes().AsRaw(),
						dp.DoubleValue())
				}
			}
		}
	}
	return nil
}

func parseError(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitParseError
}

func failure(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitFailure
}
