// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"github.com/pkg/errors"
)

// SectorMap lists flash sector sizes in order, starting at address 0.
type SectorMap []uint32

// LPC17xxSectors is the LPC175x/176x layout: sixteen 4 KiB sectors then
// fourteen 32 KiB sectors.
func LPC17xxSectors() SectorMap {
	m := make(SectorMap, 0, 30)
	for i := 0; i < 16; i++ {
		m = append(m, 4*1024)
	}
	for i := 0; i < 14; i++ {
		m = append(m, 32*1024)
	}
	return m
}

// UniformSectors is a map of count sectors of equal size.
func UniformSectors(size uint32, count int) SectorMap {
	m := make(SectorMap, count)
	for i := range m {
		m[i] = size
	}
	return m
}

// Size returns the total flash size covered by the map.
func (m SectorMap) Size() uint64 {
	var total uint64
	for _, s := range m {
		total += uint64(s)
	}
	return total
}

// Span returns the first and last sector touched by [address, address+length).
func (m SectorMap) Span(address uint32, length int) (first, last int, err error) {
	if length <= 0 {
		return 0, 0, errors.Wrapf(ErrInvalidRange, "empty span at 0x%08X", address)
	}
	end := uint64(address) + uint64(length) - 1
	if end >= m.Size() {
		return 0, 0, errors.Wrapf(ErrInvalidRange, "0x%08X+%d is beyond flash (%d bytes)", address, length, m.Size())
	}

	first, last = -1, -1
	var base uint64
	for i, s := range m {
		top := base + uint64(s)
		if first < 0 && uint64(address) < top {
			first = i
		}
		if end < top {
			last = i
			break
		}
		base = top
	}
	return first, last, nil
}
