// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package capture // import "go.opentelemetry.io/gpu-range-profiler/capture"

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"go.opentelemetry.io/gpu-range-profiler/session"
)

const (
	magic   = "gpu-range-capture"
	version = 1
)

// ErrFormat is returned for streams that are not a capture of a supported version.
var ErrFormat = errors.New("invalid capture stream")

// header is the first item of every stream.
type header struct {
	Magic   string `cbor:"1,keyasint"`
	Version uint   `cbor:"2,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Deterministic encoding keeps captures of the same run byte identical.
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic("capture: CBOR encoder initialization failed: " + err.Error())
	}
	if decMode, err = (cbor.DecOptions{
		MaxArrayElements: 1 << 16,
		MaxMapPairs:      1 << 12,
	}).DecMode(); err != nil {
		panic("capture: CBOR decoder initialization failed: " + err.Error())
	}
}

// Writer appends events to a capture stream. Close must be called to flush the stream.
type Writer struct {
	zw  *zstd.Encoder
	enc *cbor.Encoder
}

// NewWriter starts a capture stream on w.
func NewWriter(w io.Writer) (*Writer, error) {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	cw := &Writer{zw: zw, enc: encMode.NewEncoder(zw)}
	if err = cw.enc.Encode(header{Magic: magic, Version: version}); err != nil {
		zw.Close()
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return cw, nil
}

// Write appends ev.
func (w *Writer) Write(ev Event) error {
	if err := ev.validate(); err != nil {
		return err
	}
	if err := w.enc.Encode(ev); err != nil {
		return fmt.Errorf("write %v event: %w", ev.Kind, err)
	}
	return nil
}

// Push records the opening of a range.
func (w *Writer) Push(name string, category session.Category) error {
	return w.Write(Event{Kind: EventPush, Name: name, Category: category})
}

// Pop records the closing of a range.
func (w *Writer) Pop(name string, category session.Category) error {
	return w.Write(Event{Kind: EventPop, Name: name, Category: category})
}

// Kernel records a kernel launch.
func (w *Writer) Kernel(k Kernel) error {
	return w.Write(Event{Kind: EventKernel, Kernel: &k})
}

// Memory records a memory operation.
func (w *Writer) Memory(m Memory) error {
	return w.Write(Event{Kind: EventMemory, Memory: &m})
}

// Sleep records elapsed host time.
func (w *Writer) Sleep(d time.Duration) error {
	return w.Write(Event{Kind: EventSleep, Sleep: d})
}

// Close flushes the stream. It does not close the underlying writer.
func (w *Writer) Close() error {
	return w.zw.Close()
}

// Reader reads events from a capture stream.
type Reader struct {
	zr  *zstd.Decoder
	dec *cbor.Decoder
}

// NewReader opens the capture stream r and validates its header.
func NewReader(r io.Reader) (*Reader, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	cr := &Reader{zr: zr, dec: decMode.NewDecoder(zr)}

	var h header
	if err = cr.dec.Decode(&h); err != nil {
		zr.Close()
		return nil, fmt.Errorf("%w: read header: %w", ErrFormat, err)
	}
	if h.Magic != magic || h.Version != version {
		zr.Close()
		return nil, fmt.Errorf("%w: header %q version %d", ErrFormat, h.Magic, h.Version)
	}
	return cr, nil
}

// Next returns the next event, or io.EOF at the end of the stream.
func (r *Reader) Next() (Event, error) {
	var ev Event
	if err := r.dec.Decode(&ev); err != nil {
		if errors.Is(err, io.EOF) {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if err := ev.validate(); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return ev, nil
}

// Close releases the decompressor.
func (r *Reader) Close() {
	r.zr.Close()
}
