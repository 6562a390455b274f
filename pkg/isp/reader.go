// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// MemoryReader reads arbitrary ranges by splitting them into reads the
// dialect accepts.
type MemoryReader struct {
	s        *Session
	readSize int
	progress func(done, total int)
	log      Logger
}

// ReaderOption configures a MemoryReader.
type ReaderOption func(*MemoryReader)

// WithReadSize caps sub-range reads below the dialect maximum.
func WithReadSize(n int) ReaderOption {
	return func(r *MemoryReader) {
		if n > 0 {
			r.readSize = n
		}
	}
}

// WithReadProgress calls fn after every completed sub-range.
func WithReadProgress(fn func(done, total int)) ReaderOption {
	return func(r *MemoryReader) {
		r.progress = fn
	}
}

func NewMemoryReader(s *Session, opts ...ReaderOption) *MemoryReader {
	r := &MemoryReader{
		s:        s,
		readSize: s.Dialect().MaxReadSize(),
		log:      s.Logger("reader"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if max := s.Dialect().MaxReadSize(); r.readSize > max {
		r.readSize = max
	}
	if r.readSize > 0 {
		r.readSize = alignDown(r.readSize, int(s.Dialect().ReadAlignment()))
	}
	return r
}

// ReadFully returns exactly want.Length bytes from want.Address. Any failed
// sub-range discards everything read so far.
func (r *MemoryReader) ReadFully(ctx context.Context, want Range) ([]byte, error) {
	if err := ValidateRange(want, r.s.Dialect().ReadAlignment()); err != nil {
		return nil, &TransferError{Operation: "read", Address: want.Address, Total: want.Length, Err: err}
	}
	if r.readSize <= 0 {
		return nil, &TransferError{Operation: "read", Address: want.Address, Total: want.Length,
			Err: errors.Wrap(ErrInvalidRange, "read size must be positive")}
	}

	var out bytes.Buffer
	out.Grow(want.Length)
	d := r.s.Dialect()
	for _, sub := range want.Split(r.readSize) {
		if err := ctx.Err(); err != nil {
			return nil, &TransferError{Operation: "read", Address: sub.Address, Done: out.Len(), Total: want.Length, Err: err}
		}

		var data []byte
		err := r.s.Transact(func(tx *Tx) error {
			var err error
			data, err = d.ReadMemory(tx, sub.Address, sub.Length)
			return err
		})
		if err == nil && len(data) != sub.Length {
			err = &ProtocolError{
				Operation: "read",
				Response:  fmt.Sprintf("%d bytes", len(data)),
				Reason:    fmt.Sprintf("expected %d bytes", sub.Length),
			}
		}
		if err != nil {
			r.log.Error("read failed", "address", fmt.Sprintf("0x%08X", sub.Address), "length", sub.Length, "error", err)
			return nil, &TransferError{Operation: "read", Address: sub.Address, Done: out.Len(), Total: want.Length, Err: err}
		}

		out.Write(data)
		if r.progress != nil {
			r.progress(out.Len(), want.Length)
		}
	}
	r.log.Debug("read finished", "address", fmt.Sprintf("0x%08X", want.Address), "length", want.Length)
	return out.Bytes(), nil
}
