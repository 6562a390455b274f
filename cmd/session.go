// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Thermoquad/isplink/pkg/isp"
	"github.com/Thermoquad/isplink/pkg/parts"
	"github.com/Thermoquad/isplink/pkg/zlog"
	"github.com/pkg/errors"
)

// parseNumber accepts decimal, 0x hex, 0o/0 octal and 0b binary.
func parseNumber(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, errors.Errorf("invalid number %q", s)
	}
	return uint32(v), nil
}

// newDialect builds the LPC command vocabulary from the command flags.
func newDialect() (*isp.LPC, error) {
	enc, err := isp.ParseEncoding(encodingName)
	if err != nil {
		return nil, err
	}
	ram, err := parseNumber(ramAddress)
	if err != nil {
		return nil, errors.Wrap(err, "--ram-address")
	}

	lpc := isp.NewLPC()
	lpc.Encoding = enc
	lpc.RAMAddress = ram
	lpc.Timeout = cmdTimeout
	return lpc, nil
}

func syncConfig() isp.SyncConfig {
	cfg := isp.DefaultSyncConfig()
	cfg.Attempts = attempts
	cfg.Timeout = syncTimeout
	cfg.Backoff = backoff
	cfg.Reduced = reduced
	if strictIdent {
		cfg.Ident = isp.IdentRequired
	}
	return cfg
}

// openSession connects and synchronizes with the bootloader. The caller
// closes the session.
func openSession(ctx context.Context) (*isp.Session, *isp.LPC, *isp.SyncResult, error) {
	lpc, err := newDialect()
	if err != nil {
		return nil, nil, nil, err
	}

	conn, info, err := OpenConnection(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info().Str("connection", info).Str("dialect", lpc.Name()).Msg("connected")

	s, res, err := isp.Synchronize(ctx, conn, syncConfig(),
		isp.WithDialect(lpc),
		isp.WithLogger(zlog.New(logger)),
		isp.WithClock(cclk),
		isp.WithTimeout(cmdTimeout),
		isp.WithVerbose(verbose),
	)
	if err != nil {
		return nil, nil, res, err
	}

	if res.HasIdent {
		logger.Info().
			Str("part", parts.Format(res.PartID)).
			Stringer("bootcode", res.Bootcode).
			Int("attempts", res.Attempts).
			Msg("synchronized")
	} else {
		logger.Info().Int("attempts", res.Attempts).Msg("synchronized")
	}
	return s, lpc, res, nil
}

// partLabel names the synchronized device for user-facing output.
func partLabel(res *isp.SyncResult) string {
	if res == nil || !res.HasIdent {
		return "LPC (unidentified)"
	}
	return parts.Format(res.PartID)
}

func formatAddress(a uint32) string {
	return fmt.Sprintf("0x%08X", a)
}
