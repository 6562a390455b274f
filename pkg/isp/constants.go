// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package isp implements the host side of an ASCII-framed In-System
// Programming bootloader protocol.
//
// A Session owns the serial transport and serializes command/response
// transactions. Synchronize drives the autobaud handshake that brings a
// bootloader into a known state, after which a Programmer streams firmware
// into flash and a MemoryReader pulls memory back out. The command vocabulary
// is pluggable through the Dialect interface; LPC is the vocabulary of the NXP
// LPC family UART bootloader.
package isp

import "time"

// Line framing
const (
	LineTerminator = "\r\n"
	ProbeChar      = '?'
)

// Handshake tokens
const (
	SyncToken = "Synchronized"
	OKToken   = "OK"
)

// Default timing
const (
	DefaultSyncTimeout    = 250 * time.Millisecond
	DefaultCommandTimeout = 1 * time.Second
	DefaultClockKHz       = 12000
)

// rxQueueSize bounds the reader goroutine's hand-off queue
const rxQueueSize = 64
