// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package parts maps LPC part identification codes, as returned by the
// bootloader's J command, to part names.
package parts

import (
	"fmt"
	"sort"
)

// Part describes one identification code.
type Part struct {
	ID       uint32
	Name     string
	FlashKiB int
	RAMKiB   int
}

var table = []Part{
	// LPC17xx
	{0x26113F37, "1769", 512, 64},
	{0x26013F37, "1768", 512, 64},
	{0x26012837, "1767", 512, 64},
	{0x26013F33, "1766", 256, 64},
	{0x26013733, "1765", 256, 64},
	{0x26011922, "1764", 128, 32},
	{0x26012033, "1763", 256, 64},
	{0x25113737, "1759", 512, 64},
	{0x25013F37, "1758", 512, 64},
	{0x25011723, "1756", 256, 32},
	{0x25011722, "1754", 128, 32},
	{0x25001121, "1752", 64, 16},
	{0x25001118, "1751", 32, 8},
	{0x25001110, "1751", 32, 8},

	// LPC13xx
	{0x3D01402B, "1343", 32, 8},
	{0x3D00002B, "1342", 16, 4},
	{0x2C42502B, "1313", 32, 8},
	{0x2C40102B, "1311", 8, 4},

	// LPC11xx
	{0x0444102B, "1114/302", 32, 8},
	{0x0A40902B, "1114FN/102", 32, 4},
	{0x1A40902B, "1114FN/102", 32, 4},
	{0x0434102B, "1114/201", 32, 4},

	// LPC8xx
	{0x00008100, "810M021FN8", 4, 1},
	{0x00008110, "811M001JDH16", 8, 2},
	{0x00008120, "812M101JDH16", 16, 4},
	{0x00008121, "812M101JD20", 16, 4},
	{0x00008122, "812M101JDH20", 16, 4},
	{0x00008241, "824M201JHI33", 32, 8},
	{0x00008242, "824M201JDH20", 32, 8},

	// LPC21xx
	{0x0402FF25, "2148", 512, 40},
	{0x0002FF25, "2138", 512, 32},
	{0x0201FF12, "2103", 32, 8},
}

var byID = func() map[uint32]Part {
	m := make(map[uint32]Part, len(table))
	for _, p := range table {
		m[p.ID] = p
	}
	return m
}()

// Lookup returns the part for id.
func Lookup(id uint32) (Part, bool) {
	p, ok := byID[id]
	return p, ok
}

// Name returns the part name for id, without the LPC prefix.
func Name(id uint32) (string, bool) {
	p, ok := byID[id]
	return p.Name, ok
}

// Format renders id for display: "LPC1769" for known parts and the raw
// code for unknown ones.
func Format(id uint32) string {
	if name, ok := Name(id); ok {
		return "LPC" + name
	}
	return fmt.Sprintf("LPC%d (0x%08X)", id, id)
}

// All returns the known parts ordered by name.
func All() []Part {
	out := append([]Part(nil), table...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
