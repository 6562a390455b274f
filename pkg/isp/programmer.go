// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// EventKind discriminates programming progress events.
type EventKind int

const (
	EventStarted EventKind = iota
	EventChunk
	EventFinished
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "start"
	case EventChunk:
		return "chunk"
	case EventFinished:
		return "end"
	case EventFailed:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one step of a programming job. Address and Bytes describe the
// committed chunk for EventChunk; Done and Total are running totals.
type Event struct {
	Kind    EventKind
	Address uint32
	Bytes   int
	Done    int
	Total   int
	Err     error
}

// Terminal reports whether no further events follow.
func (e Event) Terminal() bool {
	return e.Kind == EventFinished || e.Kind == EventFailed
}

// Programmer writes a fixed-size image to flash in ascending chunks.
type Programmer struct {
	s       *Session
	address uint32
	size    int

	chunkSize int
	erase     bool
	log       Logger
}

// ProgrammerOption configures a Programmer.
type ProgrammerOption func(*Programmer)

// WithChunkSize caps chunks below the dialect maximum.
func WithChunkSize(n int) ProgrammerOption {
	return func(p *Programmer) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithErase erases the covered sectors after unlocking. Defaults to true.
func WithErase(erase bool) ProgrammerOption {
	return func(p *Programmer) {
		p.erase = erase
	}
}

// WithProgrammerLogger overrides the session logger.
func WithProgrammerLogger(l Logger) ProgrammerOption {
	return func(p *Programmer) {
		if l != nil {
			p.log = withSource(l, "programmer")
		}
	}
}

// NewProgrammer prepares a job writing size bytes at address.
func NewProgrammer(s *Session, address uint32, size int, opts ...ProgrammerOption) *Programmer {
	p := &Programmer{
		s:         s,
		address:   address,
		size:      size,
		chunkSize: s.Dialect().MaxChunkSize(),
		erase:     true,
		log:       s.Logger("programmer"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.chunkSize = alignChunkSize(s.Dialect(), p.chunkSize)
	return p
}

// alignChunkSize caps n at the dialect maximum and rounds it down to a size
// the dialect commits without overlap, but never below one alignment unit.
func alignChunkSize(d Dialect, n int) int {
	if max := d.MaxChunkSize(); n > max {
		n = max
	}
	if n <= 0 {
		return n
	}
	if cs, ok := d.(CommitSizer); ok {
		return cs.CommitSize(n)
	}
	return alignDown(n, int(d.WriteAlignment()))
}

func alignDown(n, align int) int {
	if align <= 1 {
		return n
	}
	if n < align {
		return align
	}
	return n - n%align
}

// Program runs the job in a goroutine. The channel carries EventStarted,
// zero or more EventChunk, and exactly one EventFinished or EventFailed,
// then closes. The caller must drain it.
func (p *Programmer) Program(ctx context.Context, src io.Reader) <-chan Event {
	events := make(chan Event, 1)
	go func() {
		defer close(events)
		p.run(ctx, src, events)
	}()
	return events
}

// Run programs synchronously, calling fn for every event, and returns the
// failure carried by EventFailed.
func (p *Programmer) Run(ctx context.Context, src io.Reader, fn func(Event)) error {
	var err error
	for ev := range p.Program(ctx, src) {
		if fn != nil {
			fn(ev)
		}
		if ev.Kind == EventFailed {
			err = ev.Err
		}
	}
	return err
}

func (p *Programmer) run(ctx context.Context, src io.Reader, events chan<- Event) {
	done := 0
	fail := func(op string, addr uint32, err error) {
		p.log.Error("programming failed", "operation", op, "address", fmt.Sprintf("0x%08X", addr), "error", err)
		events <- Event{
			Kind:    EventFailed,
			Address: addr,
			Done:    done,
			Total:   p.size,
			Err:     &TransferError{Operation: op, Address: addr, Done: done, Total: p.size, Err: err},
		}
	}

	events <- Event{Kind: EventStarted, Address: p.address, Total: p.size}

	d := p.s.Dialect()
	if err := ValidateRange(Range{Address: p.address, Length: p.size}, d.WriteAlignment()); err != nil {
		fail("program", p.address, err)
		return
	}
	if p.chunkSize <= 0 {
		fail("program", p.address, errors.Wrap(ErrInvalidRange, "chunk size must be positive"))
		return
	}

	if err := p.s.Unlock(); err != nil {
		fail("unlock", p.address, err)
		return
	}
	if p.erase && p.size > 0 {
		err := p.s.Transact(func(tx *Tx) error {
			return d.Erase(tx, p.address, p.size)
		})
		if err != nil {
			fail("erase", p.address, err)
			return
		}
		p.log.Info("erased", "address", fmt.Sprintf("0x%08X", p.address), "length", p.size)
	}

	buf := make([]byte, p.chunkSize)
	for _, r := range (Range{Address: p.address, Length: p.size}).Split(p.chunkSize) {
		if err := ctx.Err(); err != nil {
			fail("program", r.Address, err)
			return
		}

		data := buf[:r.Length]
		if _, err := io.ReadFull(src, data); err != nil {
			fail("read source", r.Address, errors.Wrap(err, "source shorter than declared size"))
			return
		}

		chunk := Chunk{Address: r.Address, Data: data}
		err := p.s.Transact(func(tx *Tx) error {
			return d.WriteChunk(tx, chunk)
		})
		if err != nil {
			fail("write chunk", r.Address, err)
			return
		}

		done += r.Length
		p.log.Debug("chunk committed", "address", fmt.Sprintf("0x%08X", r.Address), "bytes", r.Length)
		events <- Event{Kind: EventChunk, Address: r.Address, Bytes: r.Length, Done: done, Total: p.size}
	}

	p.log.Info("programming finished", "bytes", done)
	events <- Event{Kind: EventFinished, Address: p.address, Done: done, Total: p.size}
}
