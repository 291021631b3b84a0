// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package collection // import "go.opentelemetry.io/gpu-range-profiler/collection"

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/gpu-range-profiler/activity"
	"go.opentelemetry.io/gpu-range-profiler/libpf"
	"go.opentelemetry.io/gpu-range-profiler/libpf/xsync"
	"go.opentelemetry.io/gpu-range-profiler/periodiccaller"
	"go.opentelemetry.io/gpu-range-profiler/session"
	"go.opentelemetry.io/gpu-range-profiler/times"
)

// CallbackLaunchKernel is the callback id reported for kernel launch API calls.
const CallbackLaunchKernel uint32 = 211

// Compile time check for interface adherence
var (
	_ Subsystem     = (*Simulator)(nil)
	_ Device        = (*Simulator)(nil)
	_ APISubscriber = (*Simulator)(nil)
)

// KernelLaunch describes a kernel issued to the simulated device.
type KernelLaunch struct {
	Name     string
	Grid     session.Dim3
	Block    session.Dim3
	StreamID uint32
	// Duration is the simulated device execution time.
	Duration time.Duration
	// Counters are the hardware counter values the kernel produces.
	Counters map[string]float64
}

// SimulatorConfig configures a Simulator.
type SimulatorConfig struct {
	Times     *times.Times
	DeviceID  uint32
	ContextID uint32
	// MaxPending is the number of completed records buffered before new ones are
	// dropped. Defaults to 4096.
	MaxPending int
	// QueueSize is the depth of the device work queue. Defaults to 1024.
	QueueSize int
}

// item is one unit of device work or a control request for the worker.
type item struct {
	kind     activity.Kind
	stream   uint32
	kernel   session.KernelRecord
	memory   session.MemoryRecord
	duration time.Duration
	flush    bool
	// done receives the worker's delivery state once the item was processed.
	done chan error
}

type callbacks struct {
	requested RequestFunc
	completed CompleteFunc
	apiEnter  APIFunc
	apiExit   APIFunc
}

// Simulator is an in-process collection subsystem and device. Launched work completes
// on a worker goroutine, which also delivers buffers, so delivery is asynchronous to the
// issuing goroutine exactly like a vendor runtime.
type Simulator struct {
	times        *times.Times
	deviceID     uint32
	contextID    uint32
	maxPending   int
	batchRecords int

	queue        chan item
	flushTrigger chan bool
	exited       chan libpf.Void
	started      atomic.Bool
	correlation  atomic.Uint32

	callbacks xsync.RWMutex[callbacks]
	enabled   xsync.RWMutex[libpf.Set[Kind]]
	dropped   xsync.RWMutex[map[uint32]uint64]
	onKernel  xsync.RWMutex[[]func(KernelLaunch)]

	// Owned by the worker goroutine.
	pending  map[uint32][]item
	npending int
	failed   error
}

// NewSimulator creates a Simulator. Start must be called before work is issued.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Times == nil {
		cfg.Times = times.New(0, 0, 0)
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 4096
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	return &Simulator{
		times:        cfg.Times,
		deviceID:     cfg.DeviceID,
		contextID:    cfg.ContextID,
		maxPending:   cfg.MaxPending,
		batchRecords: max(1, cfg.Times.BufferSize()/activity.RecordSize(activity.KindKernel)),
		queue:        make(chan item, cfg.QueueSize),
		flushTrigger: make(chan bool),
		exited:       make(chan libpf.Void),
		callbacks:    xsync.NewRWMutex(callbacks{}),
		enabled:      xsync.NewRWMutex(libpf.Set[Kind]{}),
		dropped:      xsync.NewRWMutex(map[uint32]uint64{}),
		onKernel:     xsync.NewRWMutex([]func(KernelLaunch){}),
		pending:      map[uint32][]item{},
	}
}

// Start runs the device worker and the periodic flush until ctx is canceled. The returned
// channel is closed when the worker exited.
func (s *Simulator) Start(ctx context.Context) (workerExited <-chan libpf.Void, err error) {
	if !s.started.CompareAndSwap(false, true) {
		return nil, errors.New("simulator already started")
	}

	stopFlush := periodiccaller.StartWithManualTrigger(ctx, s.times.FlushInterval(),
		s.flushTrigger, func(manualTrigger bool) {
			select {
			case s.queue <- item{flush: true}:
			default:
				log.Debugf("Device queue full, skipping periodic flush (manual: %v)", manualTrigger)
			}
		})

	go func() {
		defer close(s.exited)
		defer stopFlush()
		s.run(ctx)
	}()
	return s.exited, nil
}

func (s *Simulator) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if s.npending > 0 {
				log.Debugf("Discarding %d undelivered activity records", s.npending)
			}
			return
		case it := <-s.queue:
			s.process(ctx, it)
		}
	}
}

func (s *Simulator) process(ctx context.Context, it item) {
	switch {
	case it.kind == activity.KindKernel:
		it.kernel.Start = uint64(times.GetKTime())
		it.kernel.End = it.kernel.Start + uint64(it.duration)
		s.complete(ctx, it)
	case it.kind == activity.KindMemory:
		if it.memory.Timestamp == 0 {
			it.memory.Timestamp = uint64(times.GetKTime())
		}
		s.complete(ctx, it)
	case it.flush:
		for _, stream := range libpf.SortedKeys(s.pending) {
			s.deliver(ctx, stream)
		}
	}

	if it.done != nil {
		it.done <- s.failed
	}
}

// complete buffers a finished record, dropping it when the pending limit is exhausted.
func (s *Simulator) complete(ctx context.Context, it item) {
	if s.npending >= s.maxPending {
		dropped := s.dropped.WLock()
		(*dropped)[it.stream]++
		s.dropped.WUnlock(&dropped)
		return
	}
	s.pending[it.stream] = append(s.pending[it.stream], it)
	s.npending++
	if len(s.pending[it.stream]) >= s.batchRecords {
		s.deliver(ctx, it.stream)
	}
}

// deliver hands all pending records of stream to the completed callback, as many
// buffers as needed.
func (s *Simulator) deliver(ctx context.Context, stream uint32) {
	records := s.pending[stream]
	delete(s.pending, stream)
	s.npending -= len(records)

	cbs := s.callbacks.RLock()
	requested, completed := cbs.requested, cbs.completed
	s.callbacks.RUnlock(&cbs)
	if requested == nil || completed == nil {
		s.fail(fmt.Errorf("%w: %d records on stream %d", ErrNotRegistered, len(records), stream))
		return
	}

	for len(records) > 0 {
		buf, maxRecords := requested()
		out := buf[:0]
		n := 0
		for len(records) > 0 && (maxRecords == 0 || n < maxRecords) {
			if len(out)+activity.RecordSize(records[0].kind) > len(buf) {
				break
			}
			var err error
			out, err = encode(out, records[0])
			if err != nil {
				s.fail(err)
				return
			}
			records = records[1:]
			n++
		}
		if n == 0 {
			log.Warnf("Activity buffer of %d bytes too small, dropping %d records", len(buf),
				len(records))
			dropped := s.dropped.WLock()
			(*dropped)[stream] += uint64(len(records))
			s.dropped.WUnlock(&dropped)
			records = nil
		}
		if err := completed(ctx, stream, buf, len(out)); err != nil {
			s.fail(fmt.Errorf("%w: %w", ErrDelivery, err))
		}
	}
}

func encode(buf []byte, it item) ([]byte, error) {
	if it.kind == activity.KindKernel {
		return activity.AppendKernel(buf, it.kernel)
	}
	return activity.AppendMemory(buf, it.memory)
}

func (s *Simulator) fail(err error) {
	log.Errorf("Collection subsystem: %v", err)
	if s.failed == nil {
		s.failed = err
	}
}

// RegisterCallbacks implements Subsystem.
func (s *Simulator) RegisterCallbacks(requested RequestFunc, completed CompleteFunc) error {
	if requested == nil || completed == nil {
		return errors.New("both buffer callbacks are required")
	}
	cbs := s.callbacks.WLock()
	defer s.callbacks.WUnlock(&cbs)
	cbs.requested, cbs.completed = requested, completed
	return nil
}

// SubscribeAPI implements APISubscriber.
func (s *Simulator) SubscribeAPI(enter, exit APIFunc) error {
	cbs := s.callbacks.WLock()
	defer s.callbacks.WUnlock(&cbs)
	cbs.apiEnter, cbs.apiExit = enter, exit
	return nil
}

// OnKernel registers fn to observe every kernel launch on the issuing goroutine. The
// counter engine uses it to account one sub-range per kernel.
func (s *Simulator) OnKernel(fn func(KernelLaunch)) {
	hooks := s.onKernel.WLock()
	defer s.onKernel.WUnlock(&hooks)
	*hooks = append(*hooks, fn)
}

// Enable implements Subsystem.
func (s *Simulator) Enable(_ context.Context, kind Kind) error {
	cbs := s.callbacks.RLock()
	registered := cbs.requested != nil
	s.callbacks.RUnlock(&cbs)
	if !registered {
		return ErrNotRegistered
	}

	enabled := s.enabled.WLock()
	defer s.enabled.WUnlock(&enabled)
	(*enabled)[kind] = libpf.Void{}
	return nil
}

// Disable implements Subsystem.
func (s *Simulator) Disable(_ context.Context, kind Kind) error {
	enabled := s.enabled.WLock()
	defer s.enabled.WUnlock(&enabled)
	delete(*enabled, kind)
	return nil
}

// Enabled reports whether kind is currently recorded.
func (s *Simulator) Enabled(kind Kind) bool {
	enabled := s.enabled.RLock()
	defer s.enabled.RUnlock(&enabled)
	_, ok := (*enabled)[kind]
	return ok
}

// Flush implements Subsystem.
func (s *Simulator) Flush(ctx context.Context) error {
	return s.fence(ctx, item{flush: true})
}

// RequestFlush asks the worker to deliver buffered records without waiting for it.
func (s *Simulator) RequestFlush() {
	select {
	case s.flushTrigger <- true:
	default:
	}
}

// Synchronize implements Device. It returns once all work issued before the call has
// completed on the device.
func (s *Simulator) Synchronize(ctx context.Context) error {
	return s.fence(ctx, item{})
}

func (s *Simulator) fence(ctx context.Context, it item) error {
	if !s.started.Load() {
		return ErrNotRunning
	}
	it.done = make(chan error, 1)
	if err := s.enqueue(ctx, it); err != nil {
		return err
	}
	select {
	case err := <-it.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.exited:
		return ErrNotRunning
	}
}

func (s *Simulator) enqueue(ctx context.Context, it item) error {
	select {
	case s.queue <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.exited:
		return ErrNotRunning
	}
}

// DroppedRecords implements Subsystem.
func (s *Simulator) DroppedRecords(_ context.Context, streamID uint32) (uint64, error) {
	dropped := s.dropped.WLock()
	defer s.dropped.WUnlock(&dropped)
	n := (*dropped)[streamID]
	delete(*dropped, streamID)
	return n, nil
}

// Launch issues a kernel. The launch API callbacks and kernel hooks run on the calling
// goroutine. The activity record is produced only while ConcurrentKernel is enabled.
func (s *Simulator) Launch(ctx context.Context, l KernelLaunch) error {
	if !s.started.Load() {
		return ErrNotRunning
	}

	cbs := s.callbacks.RLock()
	enter, exit := cbs.apiEnter, cbs.apiExit
	s.callbacks.RUnlock(&cbs)

	if enter != nil {
		enter(CallbackLaunchKernel, l.Name)
	}
	if exit != nil {
		defer exit(CallbackLaunchKernel, l.Name)
	}

	hooks := s.onKernel.RLock()
	observers := slices.Clone(*hooks)
	s.onKernel.RUnlock(&hooks)
	for _, fn := range observers {
		fn(l)
	}

	if !s.Enabled(ConcurrentKernel) {
		return nil
	}
	return s.enqueue(ctx, item{
		kind:   activity.KindKernel,
		stream: l.StreamID,
		kernel: session.KernelRecord{
			Name:          l.Name,
			Grid:          l.Grid,
			Block:         l.Block,
			CorrelationID: s.correlation.Add(1),
			DeviceID:      s.deviceID,
			ContextID:     s.contextID,
			StreamID:      l.StreamID,
		},
		duration: l.Duration,
	})
}

// MemoryOp issues a memory operation. The activity record is produced only while Memory
// is enabled.
func (s *Simulator) MemoryOp(ctx context.Context, rec session.MemoryRecord) error {
	if !s.started.Load() {
		return ErrNotRunning
	}
	if !s.Enabled(Memory) {
		return nil
	}
	rec.CorrelationID = s.correlation.Add(1)
	rec.DeviceID = s.deviceID
	rec.ContextID = s.contextID
	return s.enqueue(ctx, item{kind: activity.KindMemory, stream: rec.StreamID, memory: rec})
}
