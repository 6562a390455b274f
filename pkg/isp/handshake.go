// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// SyncState is the handshake progress of one attempt.
type SyncState int

const (
	StateIdle SyncState = iota
	StateProbing
	StateEchoSync
	StateDeviceEchoConfirm
	StateClockSubmitted
	StateSubsetProbe
	StateReady
	StateExhausted
)

func (s SyncState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StateEchoSync:
		return "echo-sync"
	case StateDeviceEchoConfirm:
		return "device-echo-confirm"
	case StateClockSubmitted:
		return "clock-submitted"
	case StateSubsetProbe:
		return "subset-probe"
	case StateReady:
		return "ready"
	case StateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("SyncState(%d)", int(s))
	}
}

// IdentPolicy decides what an identification failure after sync means.
type IdentPolicy int

const (
	// IdentBestEffort logs identification failures and still reports Ready
	IdentBestEffort IdentPolicy = iota
	// IdentRequired fails the attempt, which is then retried
	IdentRequired
)

func (p IdentPolicy) String() string {
	if p == IdentRequired {
		return "required"
	}
	return "best-effort"
}

// SyncConfig controls the handshake.
type SyncConfig struct {
	// Attempts is the attempt budget; 0 retries until ctx is done.
	Attempts int

	// Timeout bounds every handshake assertion.
	Timeout time.Duration

	// Reduced skips the echo and identification commands for bootloaders
	// that implement only the reduced command subset. Such bootloaders
	// do not echo commands.
	Reduced bool

	// Echo is the echo state requested from a full bootloader.
	Echo bool

	Ident IdentPolicy

	// Backoff is slept between failed attempts.
	Backoff time.Duration
}

// DefaultSyncConfig returns an unbounded, echo-off, best-effort configuration.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Attempts: 0,
		Timeout:  DefaultSyncTimeout,
		Ident:    IdentBestEffort,
	}
}

// SyncResult describes a finished handshake.
type SyncResult struct {
	Attempts int
	State    SyncState

	// Identification, when the bootloader supports it and it succeeded
	PartID   uint32
	Bootcode BootcodeVersion
	HasIdent bool

	// IdentErr is the swallowed identification failure under IdentBestEffort
	IdentErr error
}

// Synchronize opens a session on conn and runs the handshake. On failure the
// transport is closed and the returned session is nil.
func Synchronize(ctx context.Context, conn Transport, cfg SyncConfig, opts ...Option) (*Session, *SyncResult, error) {
	s := NewSession(conn, opts...)
	res, err := s.Handshake(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, res, err
	}
	return s, res, nil
}

// Handshake synchronizes the session with the bootloader, restarting from
// the probe after every failed attempt until the budget is spent.
func (s *Session) Handshake(ctx context.Context, cfg SyncConfig) (*SyncResult, error) {
	log := s.Logger("handshake")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSyncTimeout
	}

	log.Info("synchronizing", "attempts", cfg.Attempts, "timeout", cfg.Timeout, "reduced", cfg.Reduced)
	res := &SyncResult{State: StateIdle}
	var lastErr error
	for attempt := 1; cfg.Attempts == 0 || attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			res.State = StateExhausted
			return res, &SyncError{Attempts: res.Attempts, Err: lastErr}
		}
		res.Attempts = attempt

		var state SyncState
		err := s.Transact(func(tx *Tx) error {
			var err error
			state, err = s.syncAttempt(tx, cfg, res, log)
			return err
		})
		if err == nil {
			res.State = StateReady
			log.Debug("synchronized", "attempts", attempt, "clock", s.clock)
			return res, nil
		}
		lastErr = err

		if cfg.Attempts != 0 && attempt >= cfg.Attempts {
			break
		}
		log.Warn("synchronization attempt failed, retrying",
			"attempt", attempt, "state", state.String(), "error", err)

		if cfg.Backoff > 0 {
			t := time.NewTimer(cfg.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}

	res.State = StateExhausted
	log.Error("synchronization failed", "attempts", res.Attempts, "error", lastErr)
	return res, &SyncError{Attempts: res.Attempts, Err: lastErr}
}

// syncAttempt runs one pass of the handshake and returns the state it reached.
func (s *Session) syncAttempt(tx *Tx, cfg SyncConfig, res *SyncResult, log Logger) (SyncState, error) {
	tx.Reset()
	tx.SetEchoState(s.initEcho)
	res.HasIdent = false
	res.IdentErr = nil

	state := StateProbing
	if err := tx.Write(string(ProbeChar)); err != nil {
		return state, err
	}
	if _, err := tx.Assert(Repeated(ProbeChar, SyncToken), cfg.Timeout); err != nil {
		return state, err
	}

	state = StateEchoSync
	if err := tx.WriteLine(SyncToken); err != nil {
		return state, err
	}
	state = StateDeviceEchoConfirm
	if _, err := tx.Assert(Literal(SyncToken), cfg.Timeout); err != nil {
		return state, err
	}
	if _, err := tx.Assert(Literal(OKToken), cfg.Timeout); err != nil {
		return state, err
	}

	tx.Reset()
	state = StateClockSubmitted
	if err := tx.WriteLine(strconv.Itoa(s.clock)); err != nil {
		return state, err
	}
	if _, err := tx.Assert(Literal(OKToken), cfg.Timeout); err != nil {
		return state, err
	}

	if cfg.Reduced {
		tx.SetEchoState(false)
		return state, nil
	}

	state = StateSubsetProbe
	err := s.identify(tx, cfg, res)
	if err == nil {
		return state, nil
	}
	if cfg.Ident == IdentRequired {
		return state, errors.Wrap(err, "identification")
	}
	res.IdentErr = err
	log.Warn("identification failed", "error", err)
	// drop whatever the failed command left behind
	tx.Reset()
	return state, nil
}

func (s *Session) identify(tx *Tx, cfg SyncConfig, res *SyncResult) error {
	if err := s.dialect.SetEcho(tx, cfg.Echo); err != nil {
		return err
	}
	id, err := s.dialect.ReadPartID(tx)
	if err != nil {
		return err
	}
	v, err := s.dialect.ReadBootcodeVersion(tx)
	if err != nil {
		return err
	}
	res.PartID = id
	res.Bootcode = v
	res.HasIdent = true
	return nil
}
