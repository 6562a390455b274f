// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import "fmt"

// Dialect is a bootloader command vocabulary. Every method runs inside a
// single Session transaction and talks to the device only through tx.
type Dialect interface {
	// Name identifies the vocabulary in logs
	Name() string

	// MaxChunkSize is the largest payload WriteChunk accepts
	MaxChunkSize() int

	// MaxReadSize is the largest length ReadMemory accepts
	MaxReadSize() int

	// WriteAlignment is the required alignment of a programming start address
	// and of every chunk size
	WriteAlignment() uint32

	// ReadAlignment is the required alignment of a read start address and of
	// every read size
	ReadAlignment() uint32

	SetEcho(tx *Tx, on bool) error
	Unlock(tx *Tx) error
	ReadPartID(tx *Tx) (uint32, error)
	ReadBootcodeVersion(tx *Tx) (BootcodeVersion, error)

	// ReadMemory returns exactly length bytes starting at address
	ReadMemory(tx *Tx, address uint32, length int) ([]byte, error)

	// Erase clears the flash sectors covering [address, address+length)
	Erase(tx *Tx, address uint32, length int) error

	// WriteChunk stages, verifies and commits one chunk to flash
	WriteChunk(tx *Tx, c Chunk) error
}

// CommitSizer is implemented by dialects that commit only some chunk sizes.
type CommitSizer interface {
	// CommitSize returns the largest usable chunk size not above n, or the
	// smallest one when n is below all of them
	CommitSize(n int) int
}

// BootcodeVersion is the bootloader firmware version.
type BootcodeVersion struct {
	Major int
	Minor int
}

func (v BootcodeVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Chunk is a bounded, contiguous unit of a transfer.
type Chunk struct {
	Address uint32
	Data    []byte
}

// End returns the first address after the chunk.
func (c Chunk) End() uint32 {
	return c.Address + uint32(len(c.Data))
}

// Range is a contiguous span of device memory.
type Range struct {
	Address uint32
	Length  int
}

// Split divides r into ascending, contiguous sub-ranges of at most max bytes.
func (r Range) Split(max int) []Range {
	if max <= 0 || r.Length <= 0 {
		return nil
	}
	spans := make([]Range, 0, (r.Length+max-1)/max)
	for off := 0; off < r.Length; off += max {
		n := r.Length - off
		if n > max {
			n = max
		}
		spans = append(spans, Range{Address: r.Address + uint32(off), Length: n})
	}
	return spans
}
