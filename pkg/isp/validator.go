// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"math"

	"github.com/pkg/errors"
)

// ValidateRange checks that a transfer job is well formed: a non-negative
// length, no wrap past the 32-bit address space, and a start address on an
// align boundary.
func ValidateRange(r Range, align uint32) error {
	if r.Length < 0 {
		return errors.Wrapf(ErrInvalidRange, "negative length %d", r.Length)
	}
	if uint64(r.Address)+uint64(r.Length) > math.MaxUint32+1 {
		return errors.Wrapf(ErrInvalidRange, "0x%08X+%d overflows the address space", r.Address, r.Length)
	}
	if align > 1 && r.Address%align != 0 {
		return errors.Wrapf(ErrInvalidRange, "address 0x%08X is not aligned to %d bytes", r.Address, align)
	}
	return nil
}
