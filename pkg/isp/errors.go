// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Error taxonomy. Typed errors below match these with errors.Is.
var (
	ErrTimeout           = errors.New("timeout")
	ErrMismatch          = errors.New("mismatch")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrTransferAborted   = errors.New("transfer aborted")
	ErrInvalidRange      = errors.New("invalid range")
)

// TimeoutError reports that no matching response arrived in time.
type TimeoutError struct {
	Pattern  string
	Timeout  time.Duration
	Received []byte
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %v waiting for %s (received %q)", e.Timeout, e.Pattern, e.Received)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// MismatchError reports a response that cannot match the expected pattern,
// or a transport that closed before a match.
type MismatchError struct {
	Pattern  string
	Received []byte
	Cause    error
}

func (e *MismatchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("expected %s, transport closed: %v (received %q)", e.Pattern, e.Cause, e.Received)
	}
	return fmt.Sprintf("expected %s, received %q", e.Pattern, e.Received)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrMismatch
}

func (e *MismatchError) Unwrap() error {
	return e.Cause
}

// ProtocolError reports a device response that is not a valid transition.
type ProtocolError struct {
	Operation string
	Response  string
	Reason    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s (response %q)", e.Operation, e.Reason, e.Response)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocolViolation
}

// CommandError reports a command the device answered with a failure status.
type CommandError struct {
	Command string
	Code    int
	Name    string
}

func (e *CommandError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("command %q failed with status %d", e.Command, e.Code)
	}
	return fmt.Sprintf("command %q failed: %s (%d)", e.Command, e.Name, e.Code)
}

// Is reports ErrProtocolViolation for status codes the vocabulary does not know.
func (e *CommandError) Is(target error) bool {
	return target == ErrProtocolViolation && e.Name == ""
}

// TransferError aborts a Programmer or MemoryReader job.
type TransferError struct {
	Operation string
	Address   uint32
	Done      int
	Total     int
	Err       error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s aborted at 0x%08X after %d/%d bytes: %v", e.Operation, e.Address, e.Done, e.Total, e.Err)
}

func (e *TransferError) Is(target error) bool {
	return target == ErrTransferAborted
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// SyncError is returned once the handshake attempt budget is exhausted.
type SyncError struct {
	Attempts int
	Err      error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("synchronization failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
