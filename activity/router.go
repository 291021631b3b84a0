// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package activity decodes asynchronously delivered activity buffers and attributes each
// record to the open session of its category.
package activity // import "go.opentelemetry.io/gpu-range-profiler/activity"

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/gpu-range-profiler/kernelsym"
	"go.opentelemetry.io/gpu-range-profiler/libpf/xsync"
	"go.opentelemetry.io/gpu-range-profiler/metrics"
	"go.opentelemetry.io/gpu-range-profiler/session"
	"go.opentelemetry.io/gpu-range-profiler/successfailurecounter"
	"go.opentelemetry.io/gpu-range-profiler/times"
)

// DroppedCounter reports records the collection subsystem dropped for a stream.
type DroppedCounter interface {
	DroppedRecords(ctx context.Context, streamID uint32) (uint64, error)
}

// Stats is a snapshot of the router counters.
type Stats struct {
	BuffersRequested    uint64
	BuffersDecoded      uint64
	BuffersFailed       uint64
	KernelRecords       uint64
	MemoryRecords       uint64
	UnknownRecords      uint64
	AttributionFailures uint64
	Dropped             uint64
}

// Router consumes the collection subsystem's buffer callbacks.
type Router struct {
	manager    *session.Manager
	symbols    *kernelsym.Demangler
	drops      DroppedCounter
	bufferSize int

	// buffers recycles activity buffers, stored as *[]byte.
	buffers sync.Pool

	decodes             successfailurecounter.Counters
	requested           atomic.Uint64
	kernelRecords       atomic.Uint64
	memoryRecords       atomic.Uint64
	unknownRecords      atomic.Uint64
	attributionFailures atomic.Uint64
	dropped             atomic.Uint64

	// launches holds the enter timestamp of in-flight launch API calls by callback id.
	launches xsync.RWMutex[map[uint32]times.KTime]
}

// NewRouter creates a Router attributing into manager. drops may be nil if the subsystem
// does not report dropped records.
func NewRouter(manager *session.Manager, symbols *kernelsym.Demangler, drops DroppedCounter,
	bufferSize int) *Router {
	if bufferSize <= 0 {
		bufferSize = times.DefaultBufferSize
	}
	r := &Router{
		manager:    manager,
		symbols:    symbols,
		drops:      drops,
		bufferSize: bufferSize,
		launches:   xsync.NewRWMutex(map[uint32]times.KTime{}),
	}
	r.buffers.New = func() any {
		buf := make([]byte, bufferSize)
		return &buf
	}
	return r
}

// BufferRequested hands out an empty buffer. The record limit is always 0, which leaves
// the number of records per buffer to the subsystem.
func (r *Router) BufferRequested() (buf []byte, maxRecords int) {
	r.requested.Add(1)
	metrics.Add(metrics.IDActivityBuffersRequested, 1)
	return *r.buffers.Get().(*[]byte), 0
}

// BufferCompleted decodes buf[:validSize] and attributes every record. Attribution
// failures are logged and skip the record. A decode error is returned and must be
// treated as fatal by the caller, since the delivery pipe is assumed reliable.
func (r *Router) BufferCompleted(ctx context.Context, streamID uint32, buf []byte,
	validSize int) error {
	defer r.release(buf)

	sfc := r.decodes.Begin()
	defer sfc.DefaultToFailure()

	if validSize < 0 || validSize > len(buf) {
		metrics.Add(metrics.IDActivityDecodeErrors, 1)
		return fmt.Errorf("stream %d: valid size %d outside buffer of %d bytes",
			streamID, validSize, len(buf))
	}

	var kernels, memory, unknown, failures uint64
	dec := NewDecoder(buf[:validSize])
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.account(kernels, memory, unknown, failures)
			metrics.Add(metrics.IDActivityDecodeErrors, 1)
			return fmt.Errorf("stream %d: %w", streamID, err)
		}

		switch rec.Kind {
		case KindKernel:
			err = r.attributeKernel(rec.Kernel)
			kernels++
		case KindMemory:
			err = r.attributeMemory(rec.Memory)
			memory++
		default:
			log.Debugf("Skipping activity record of %v on stream %d", rec.Kind, streamID)
			unknown++
			continue
		}
		if err != nil {
			log.Errorf("Failed to attribute %v record on stream %d: %v", rec.Kind, streamID, err)
			failures++
		}
	}
	sfc.ReportSuccess()
	r.account(kernels, memory, unknown, failures)
	metrics.Add(metrics.IDActivityBuffersCompleted, 1)

	r.queryDropped(ctx, streamID)
	return nil
}

func (r *Router) attributeKernel(rec session.KernelRecord) error {
	if r.symbols != nil {
		rec.DemangledName = r.symbols.Demangle(rec.Name)
	}
	log.Debugf("Kernel %q on stream %d, grid (%d,%d,%d), block (%d,%d,%d)",
		rec.Name, rec.StreamID, rec.Grid[0], rec.Grid[1], rec.Grid[2],
		rec.Block[0], rec.Block[1], rec.Block[2])
	return r.manager.AttributeKernel(session.Kernel, func(k *session.KernelSession) {
		k.Append(rec)
	})
}

func (r *Router) attributeMemory(rec session.MemoryRecord) error {
	return r.manager.AttributeMemory(session.Memory, func(m *session.MemorySession) {
		m.Append(rec)
	})
}

// account adds the per-buffer counts to the router totals and the metrics.
func (r *Router) account(kernels, memory, unknown, failures uint64) {
	r.kernelRecords.Add(kernels)
	r.memoryRecords.Add(memory)
	r.unknownRecords.Add(unknown)
	r.attributionFailures.Add(failures)
	metrics.AddSlice([]metrics.Metric{
		{ID: metrics.IDActivityKernelRecords, Value: metrics.MetricValue(kernels)},
		{ID: metrics.IDActivityMemoryRecords, Value: metrics.MetricValue(memory)},
		{ID: metrics.IDActivityUnknownRecords, Value: metrics.MetricValue(unknown)},
		{ID: metrics.IDAttributionErrors, Value: metrics.MetricValue(failures)},
	})
}

// queryDropped logs records the subsystem dropped for streamID. Drops under-report a
// range but never corrupt it, so this is advisory only.
func (r *Router) queryDropped(ctx context.Context, streamID uint32) {
	if r.drops == nil {
		return
	}
	dropped, err := r.drops.DroppedRecords(ctx, streamID)
	if err != nil {
		log.Warnf("Failed to query dropped records for stream %d: %v", streamID, err)
		return
	}
	if dropped != 0 {
		log.Warnf("Dropped %d activity records on stream %d", dropped, streamID)
		r.dropped.Add(dropped)
		metrics.Add(metrics.IDActivityDroppedRecords, metrics.MetricValue(dropped))
	}
}

func (r *Router) release(buf []byte) {
	if cap(buf) != r.bufferSize {
		return
	}
	buf = buf[:cap(buf)]
	r.buffers.Put(&buf)
}

// APIEnter marks the start of a launch API call identified by cbid.
func (r *Router) APIEnter(cbid uint32, symbol string) {
	launches := r.launches.WLock()
	defer r.launches.WUnlock(&launches)
	log.Debugf("CBID %d entered %s", cbid, symbol)
	(*launches)[cbid] = times.GetKTime()
}

// APIExit completes the launch API call started by the matching APIEnter and records its
// duration in the open kernel session, if any.
func (r *Router) APIExit(cbid uint32, symbol string) {
	launches := r.launches.WLock()
	start, ok := (*launches)[cbid]
	delete(*launches, cbid)
	r.launches.WUnlock(&launches)

	if !ok {
		log.Warnf("CBID %d exited %s without a matching enter", cbid, symbol)
		return
	}
	d := time.Duration(times.GetKTime() - start)
	log.Debugf("CBID %d kernel %s launch completed after %v", cbid, symbol, d)
	metrics.Add(metrics.IDKernelLaunchAPIMicros, metrics.MetricValue(d.Microseconds()))

	if err := r.manager.AttributeKernel(session.Kernel, func(k *session.KernelSession) {
		k.RecordLaunch(d)
	}); err != nil {
		log.Errorf("Failed to record launch of %s: %v", symbol, err)
	}
}

// Dropped returns the total number of records the subsystem reported as dropped.
func (r *Router) Dropped() uint64 {
	return r.dropped.Load()
}

// Stats returns a snapshot of the router counters.
func (r *Router) Stats() Stats {
	return Stats{
		BuffersRequested:    r.requested.Load(),
		BuffersDecoded:      r.decodes.Success(),
		BuffersFailed:       r.decodes.Failure(),
		KernelRecords:       r.kernelRecords.Load(),
		MemoryRecords:       r.memoryRecords.Load(),
		UnknownRecords:      r.unknownRecords.Load(),
		AttributionFailures: r.attributionFailures.Load(),
		Dropped:             r.dropped.Load(),
	}
}
