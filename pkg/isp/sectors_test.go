// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"errors"
	"testing"
)

func TestLPC17xxSectors(t *testing.T) {
	m := LPC17xxSectors()
	if len(m) != 30 {
		t.Fatalf("sectors = %d, want 30", len(m))
	}
	if m.Size() != 512*1024 {
		t.Errorf("size = %d, want 512 KiB", m.Size())
	}
}

func TestSectorSpan(t *testing.T) {
	m := LPC17xxSectors()
	tests := []struct {
		name        string
		address     uint32
		length      int
		first, last int
	}{
		{name: "first sector", address: 0, length: 1, first: 0, last: 0},
		{name: "whole first sector", address: 0, length: 4096, first: 0, last: 0},
		{name: "crosses boundary", address: 4000, length: 200, first: 0, last: 1},
		{name: "last small sector", address: 0xF000, length: 4096, first: 15, last: 15},
		{name: "first large sector", address: 0x10000, length: 1, first: 16, last: 16},
		{name: "small into large", address: 0xF000, length: 0x2000, first: 15, last: 16},
		{name: "last sector", address: 0x78000, length: 0x8000, first: 29, last: 29},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, last, err := m.Span(tt.address, tt.length)
			if err != nil {
				t.Fatalf("Span: %v", err)
			}
			if first != tt.first || last != tt.last {
				t.Errorf("Span = %d..%d, want %d..%d", first, last, tt.first, tt.last)
			}
		})
	}
}

func TestSectorSpan_Errors(t *testing.T) {
	m := UniformSectors(1024, 4)
	for _, tc := range []struct {
		address uint32
		length  int
	}{
		{0, 0},
		{4000, 200},
		{4096, 1},
	} {
		if _, _, err := m.Span(tc.address, tc.length); !errors.Is(err, ErrInvalidRange) {
			t.Errorf("Span(%d, %d) err = %v, want ErrInvalidRange", tc.address, tc.length, err)
		}
	}
}

func TestValidateRange(t *testing.T) {
	tests := []struct {
		name  string
		r     Range
		align uint32
		ok    bool
	}{
		{name: "aligned", r: Range{Address: 0x1000, Length: 10}, align: 256, ok: true},
		{name: "no alignment", r: Range{Address: 0x1001, Length: 10}, align: 1, ok: true},
		{name: "misaligned", r: Range{Address: 0x1001, Length: 10}, align: 256},
		{name: "negative", r: Range{Address: 0, Length: -1}, align: 1},
		{name: "top of address space", r: Range{Address: 0xFFFFFF00, Length: 0x100}, align: 1, ok: true},
		{name: "overflow", r: Range{Address: 0xFFFFFF00, Length: 0x101}, align: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRange(tt.r, tt.align)
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidRange) {
				t.Errorf("err = %v, want ErrInvalidRange", err)
			}
		})
	}
}

func TestRangeSplit(t *testing.T) {
	spans := Range{Address: 10, Length: 10}.Split(4)
	want := []Range{{10, 4}, {14, 4}, {18, 2}}
	if len(spans) != len(want) {
		t.Fatalf("spans = %v", spans)
	}
	for i := range want {
		if spans[i] != want[i] {
			t.Errorf("span %d = %v, want %v", i, spans[i], want[i])
		}
	}
	if (Range{Length: 10}).Split(0) != nil {
		t.Error("Split(0) should return nil")
	}
}
