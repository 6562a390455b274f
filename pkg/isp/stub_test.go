// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"sync"
	"time"
)

// stubDialect records calls and scripts failures without touching the wire,
// except for failing chunks, which wait on the transport like a real command.
type stubDialect struct {
	mu        sync.Mutex
	chunk     int
	read      int
	failChunk int // 1-based WriteChunk call that times out
	failRead  int // 1-based ReadMemory call that times out
	unlockErr error

	reads  []Range
	chunks []Chunk
	erased []Range
}

func (d *stubDialect) Name() string           { return "stub" }
func (d *stubDialect) MaxChunkSize() int      { return d.chunk }
func (d *stubDialect) MaxReadSize() int       { return d.read }
func (d *stubDialect) WriteAlignment() uint32 { return 1 }
func (d *stubDialect) ReadAlignment() uint32  { return 1 }

func (d *stubDialect) SetEcho(tx *Tx, on bool) error {
	tx.SetEchoState(on)
	return nil
}

func (d *stubDialect) Unlock(tx *Tx) error { return d.unlockErr }

func (d *stubDialect) ReadPartID(tx *Tx) (uint32, error) { return 0, nil }

func (d *stubDialect) ReadBootcodeVersion(tx *Tx) (BootcodeVersion, error) {
	return BootcodeVersion{}, nil
}

func (d *stubDialect) ReadMemory(tx *Tx, address uint32, length int) ([]byte, error) {
	d.mu.Lock()
	d.reads = append(d.reads, Range{Address: address, Length: length})
	n := len(d.reads)
	d.mu.Unlock()

	if n == d.failRead {
		_, err := tx.Assert(Literal("never"), 20*time.Millisecond)
		return nil, err
	}
	data := make([]byte, length)
	for i := range data {
		data[i] = byte(address + uint32(i))
	}
	return data, nil
}

func (d *stubDialect) Erase(tx *Tx, address uint32, length int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.erased = append(d.erased, Range{Address: address, Length: length})
	return nil
}

func (d *stubDialect) WriteChunk(tx *Tx, c Chunk) error {
	d.mu.Lock()
	d.chunks = append(d.chunks, Chunk{Address: c.Address, Data: append([]byte(nil), c.Data...)})
	n := len(d.chunks)
	d.mu.Unlock()

	if n == d.failChunk {
		_, err := tx.Assert(Literal("never"), 20*time.Millisecond)
		return err
	}
	return nil
}

func newStubSession(d *stubDialect) (*Session, *silentTransport) {
	tr := newSilentTransport()
	return NewSession(tr, WithDialect(d), WithEcho(false)), tr
}
