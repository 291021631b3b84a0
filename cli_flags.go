// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"

	"github.com/peterbourgon/ff/v3"

	"go.opentelemetry.io/gpu-range-profiler/internal/controller"
	"go.opentelemetry.io/gpu-range-profiler/reporter"
	"go.opentelemetry.io/gpu-range-profiler/times"
)

const (
	// Default values for CLI flags
	defaultArgReduction       = "sum"
	defaultArgFlushInterval   = times.DefaultFlushInterval
	defaultArgMonitorInterval = times.DefaultMonitorInterval
	defaultArgReplaySpeed     = 0
)

// Help strings for command line arguments
var (
	captureHelp    = "Capture file with the recorded ranges and device work to replay."
	configFileHelp = "Plain text file with one 'flag value' pair per line."
	copyrightHelp  = "Show copyright and short license text."
	reductionHelp  = "Reduction applied to the counter values of a range: sum, max or mean."
	reportHelp     = "CSV file the reduced ranges are appended to."
	metricsHelp    = "Comma-separated list of counter metrics to profile."
	flushHelp      = "Interval after which partially filled activity buffers are delivered."
	monitorHelp    = "Set the interval of the profiler's own resource usage metrics."
	bufferHelp     = fmt.Sprintf("Number of kernel records an activity buffer holds, "+
		"at most %d.", controller.MaxBufferRecords)
	strictDropsHelp = "Treat dropped activity records as a reconciliation mismatch."
	speedHelp       = "Scale recorded sleeps during replay. 0 skips them, 1 is real time."
	s3BucketHelp    = "Upload the report to this S3 bucket after the replay."
	s3KeyHelp       = "Object key of the uploaded report. Defaults to the report file name."
	s3RegionHelp    = "Region of the S3 bucket. Defaults to the AWS configuration."
	s3EndpointHelp  = "Endpoint of an S3 compatible object store."
	verboseModeHelp = "Enable verbose logging and debugging capabilities."
	versionHelp     = "Show version."
)

func parseArgs(arguments []string) (*controller.Config, error) {
	var args controller.Config

	fs := flag.NewFlagSet("gpu-range-profiler", flag.ContinueOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.UintVar(&args.BufferRecords, "buffer-records", controller.DefaultBufferRecords,
		bufferHelp)

	fs.StringVar(&args.CapturePath, "capture", "", captureHelp)
	fs.String("config", "", configFileHelp)
	fs.BoolVar(&args.Copyright, "copyright", false, copyrightHelp)

	fs.DurationVar(&args.FlushInterval, "flush-interval", defaultArgFlushInterval, flushHelp)

	fs.StringVar(&args.Metrics, "metrics", "", metricsHelp)
	fs.DurationVar(&args.MonitorInterval, "monitor-interval", defaultArgMonitorInterval,
		monitorHelp)

	fs.StringVar(&args.Reduction, "reduction", defaultArgReduction, reductionHelp)
	fs.Float64Var(&args.ReplaySpeed, "replay-speed", defaultArgReplaySpeed, speedHelp)
	fs.StringVar(&args.ReportPath, "report", reporter.DefaultReportPath, reportHelp)

	fs.StringVar(&args.S3Bucket, "s3-bucket", "", s3BucketHelp)
	fs.StringVar(&args.S3Endpoint, "s3-endpoint", "", s3EndpointHelp)
	fs.StringVar(&args.S3Key, "s3-key", "", s3KeyHelp)
	fs.StringVar(&args.S3Region, "s3-region", "", s3RegionHelp)
	fs.BoolVar(&args.StrictDrops, "strict-drops", false, strictDropsHelp)

	fs.BoolVar(&args.VerboseMode, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&args.VerboseMode, "verbose", false, verboseModeHelp)
	fs.BoolVar(&args.Version, "version", false, versionHelp)

	fs.Usage = func() {
		fs.PrintDefaults()
	}

	args.Fs = fs

	return &args, ff.Parse(fs, arguments,
		ff.WithEnvVarPrefix("GPU_RANGE_PROFILER"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		// This will ignore configuration file (only) options that the current binary
		// does not recognize.
		ff.WithIgnoreUndefined(true),
		ff.WithAllowMissingConfigFile(true),
	)
}
