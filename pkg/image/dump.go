// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package image

import (
	"fmt"
	"io"
	"strings"
)

const dumpWidth = 16

// Dump writes data as hex, 16 bytes per line, labelled with device addresses
// starting at address. Lines that do not start on a 16-byte boundary are
// indented so columns stay aligned with the address.
func Dump(w io.Writer, address uint32, data []byte) error {
	lead := int(address % dumpWidth)
	line := address - uint32(lead)

	for off := 0; off < len(data); {
		n := dumpWidth - lead
		if n > len(data)-off {
			n = len(data) - off
		}
		row := data[off : off+n]

		var hex, ascii strings.Builder
		for i := 0; i < dumpWidth; i++ {
			if i == dumpWidth/2 {
				hex.WriteByte(' ')
			}
			j := i - lead
			if j < 0 || j >= len(row) {
				hex.WriteString("   ")
				ascii.WriteByte(' ')
				continue
			}
			fmt.Fprintf(&hex, "%02X ", row[j])
			if row[j] >= 0x20 && row[j] < 0x7F {
				ascii.WriteByte(row[j])
			} else {
				ascii.WriteByte('.')
			}
		}

		if _, err := fmt.Fprintf(w, "%08X  %s |%s|\n", line, hex.String(), ascii.String()); err != nil {
			return err
		}
		off += n
		line += dumpWidth
		lead = 0
	}
	return nil
}
