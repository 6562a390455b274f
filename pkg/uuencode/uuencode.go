// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package uuencode implements the line-oriented UU encoding used by ASCII
// bootloaders to move binary data: up to 45 bytes per line, a length
// character, and a zero sextet written as '`' rather than a space.
package uuencode

import (
	"fmt"

	"github.com/pkg/errors"
)

// Encoding limits
const (
	LineBytes  = 45 // payload bytes per line
	BlockLines = 20 // lines between checksums
)

const zeroChar = '`'

func encodeSextet(v byte) byte {
	if v == 0 {
		return zeroChar
	}
	return v + ' '
}

func decodeSextet(c byte) (byte, error) {
	if c < ' ' || c > zeroChar {
		return 0, errors.Errorf("invalid character 0x%02X", c)
	}
	return (c - ' ') & 0x3F, nil
}

// EncodeLine encodes at most LineBytes bytes into one line without terminator.
func EncodeLine(data []byte) string {
	if len(data) > LineBytes {
		panic(fmt.Sprintf("uuencode: line of %d bytes exceeds %d", len(data), LineBytes))
	}

	out := make([]byte, 0, 1+(len(data)+2)/3*4)
	out = append(out, encodeSextet(byte(len(data))))

	for i := 0; i < len(data); i += 3 {
		var b [3]byte
		copy(b[:], data[i:])
		out = append(out,
			encodeSextet(b[0]>>2),
			encodeSextet((b[0]<<4|b[1]>>4)&0x3F),
			encodeSextet((b[1]<<2|b[2]>>6)&0x3F),
			encodeSextet(b[2]&0x3F),
		)
	}
	return string(out)
}

// DecodeLine decodes one encoded line. Trailing CR/LF must already be removed.
func DecodeLine(line []byte) ([]byte, error) {
	if len(line) == 0 {
		return nil, errors.New("empty line")
	}

	n, err := decodeSextet(line[0])
	if err != nil {
		return nil, errors.Wrap(err, "length")
	}
	if int(n) > LineBytes {
		return nil, errors.Errorf("length %d exceeds %d", n, LineBytes)
	}

	groups := (int(n) + 2) / 3
	body := line[1:]
	if len(body) < groups*4 {
		return nil, errors.Errorf("line too short: %d characters for %d bytes", len(body), n)
	}

	out := make([]byte, 0, groups*3)
	for g := 0; g < groups; g++ {
		var s [4]byte
		for i := range s {
			if s[i], err = decodeSextet(body[g*4+i]); err != nil {
				return nil, err
			}
		}
		out = append(out,
			s[0]<<2|s[1]>>4,
			s[1]<<4|s[2]>>2,
			s[2]<<6|s[3],
		)
	}
	return out[:n], nil
}

// Encode splits data into encoded lines.
func Encode(data []byte) []string {
	lines := make([]string, 0, (len(data)+LineBytes-1)/LineBytes)
	for i := 0; i < len(data); i += LineBytes {
		end := i + LineBytes
		if end > len(data) {
			end = len(data)
		}
		lines = append(lines, EncodeLine(data[i:end]))
	}
	return lines
}

// Checksum is the plain byte sum sent after each block of lines.
func Checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}
