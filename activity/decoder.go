// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package activity // import "go.opentelemetry.io/gpu-range-profiler/activity"

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/gpu-range-profiler/session"
)

var (
	// ErrTruncated is returned when a record extends past the valid part of the buffer.
	ErrTruncated = errors.New("truncated activity record")
	// ErrMalformed is returned for a record header that cannot be valid.
	ErrMalformed = errors.New("malformed activity record")
)

// Record is one decoded activity record. Only the field matching Kind is set.
type Record struct {
	Kind   Kind
	Kernel session.KernelRecord
	Memory session.MemoryRecord
}

// Decoder walks the records of one completed buffer in order.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a Decoder over buf, which must hold only valid bytes.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Next returns the next record. It returns io.EOF once the buffer is exhausted. Records
// of unknown kinds are returned with only Kind set.
func (d *Decoder) Next() (Record, error) {
	remaining := len(d.buf) - d.off
	if remaining == 0 {
		return Record{}, io.EOF
	}
	if remaining < headerSize {
		return Record{}, fmt.Errorf("%w: %d bytes left at offset %d", ErrTruncated, remaining, d.off)
	}

	var h header
	if err := binary.Read(bytes.NewReader(d.buf[d.off:d.off+headerSize]),
		binary.LittleEndian, &h); err != nil {
		return Record{}, err
	}
	size := int(h.Size)
	if size < headerSize {
		return Record{}, fmt.Errorf("%w: size %d at offset %d", ErrMalformed, size, d.off)
	}
	if size > remaining {
		return Record{}, fmt.Errorf("%w: size %d with %d bytes left at offset %d",
			ErrTruncated, size, remaining, d.off)
	}

	body := d.buf[d.off+headerSize : d.off+size]
	rec := Record{Kind: Kind(h.Kind)}
	switch rec.Kind {
	case KindKernel:
		var w kernelWire
		if err := readBody(body, &w, d.off); err != nil {
			return Record{}, err
		}
		rec.Kernel = w.record()
	case KindMemory:
		var w memoryWire
		if err := readBody(body, &w, d.off); err != nil {
			return Record{}, err
		}
		rec.Memory = w.record()
	}

	d.off += size
	return rec, nil
}

func readBody(body []byte, w any, off int) error {
	if len(body) < binary.Size(w) {
		return fmt.Errorf("%w: body of %d bytes at offset %d", ErrTruncated, len(body), off)
	}
	return binary.Read(bytes.NewReader(body), binary.LittleEndian, w)
}
