// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/isplink/pkg/isp"
	"github.com/Thermoquad/isplink/pkg/zlog"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int
	ispEntry bool

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Handshake flags
	cclk        int
	attempts    int
	syncTimeout time.Duration
	backoff     time.Duration
	reduced     bool
	strictIdent bool

	// Command flags
	cmdTimeout   time.Duration
	encodingName string
	ramAddress   string

	// Logging flags
	logLevel  string
	logFormat string
	verbose   bool

	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "isplink",
	Short: "LPC In-System Programming client",
	Long: `isplink - Program and read NXP LPC microcontrollers through the UART
In-System Programming bootloader.

Every command synchronizes with the bootloader first: it sends '?', waits for
"Synchronized", acknowledges it, submits the crystal clock (--cclk) and, unless
--reduced is given, turns echo off and reads the part identification.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200] [--isp-entry]
  WebSocket: --url ws://host/path [--username user]

The serial port defaults to the ISPLINK_PORT environment variable.

For WebSocket authentication, the password is read from the ISPLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", os.Getenv("ISPLINK_PORT"), "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
	rootCmd.PersistentFlags().BoolVar(&ispEntry, "isp-entry", false, "Reset into the bootloader with DTR (reset) and RTS (ISP) before syncing")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Handshake flags
	rootCmd.PersistentFlags().IntVar(&cclk, "cclk", isp.DefaultClockKHz, "Crystal frequency in kHz sent during synchronization")
	rootCmd.PersistentFlags().IntVar(&attempts, "attempts", 0, "Synchronization attempts (0 = until interrupted)")
	rootCmd.PersistentFlags().DurationVar(&syncTimeout, "sync-timeout", isp.DefaultSyncTimeout, "Timeout for each synchronization step")
	rootCmd.PersistentFlags().DurationVar(&backoff, "backoff", 0, "Delay between synchronization attempts")
	rootCmd.PersistentFlags().BoolVar(&reduced, "reduced", false, "Bootloader implements only the reduced command subset (no echo or identification)")
	rootCmd.PersistentFlags().BoolVar(&strictIdent, "strict-ident", false, "Fail synchronization when part identification fails")

	// Command flags
	rootCmd.PersistentFlags().DurationVar(&cmdTimeout, "timeout", isp.DefaultCommandTimeout, "Timeout for each command response")
	rootCmd.PersistentFlags().StringVar(&encodingName, "encoding", "binary", "Data encoding: binary or uuencode")
	rootCmd.PersistentFlags().StringVar(&ramAddress, "ram-address", "0x10000200", "RAM address used to stage flash writes")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: console or json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Trace every line sent and received (implies --log-level debug)")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	level := logLevel
	if verbose {
		level = "debug"
	}
	zl, err := zlog.Setup(zlog.Config{Level: level, Format: logFormat})
	if err != nil {
		return err
	}
	logger = zl
	return nil
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context, which stops synchronization retries and transfers between steps.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
