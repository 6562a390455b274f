// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package image

// CRC-16-CCITT (0x1021, initial 0xFFFF, no reflection)
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// CalculateCRC returns the CRC-16-CCITT of data.
func CalculateCRC(data []byte) uint16 {
	return UpdateCRC(crcInitial, data)
}

// UpdateCRC continues a running CRC over data, so large images can be
// checksummed as they are read back chunk by chunk.
func UpdateCRC(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc ^= uint16(b) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 == 0 {
				crc <<= 1
				continue
			}
			crc = crc<<1 ^ crcPolynomial
		}
	}
	return crc
}
