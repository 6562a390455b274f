// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/isplink/pkg/isp"
	"github.com/Thermoquad/isplink/pkg/parts"
	"github.com/spf13/cobra"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Repeatedly read the part ID and report latency",
	Long: `Synchronize with the bootloader, then read the part identification at a
fixed interval and print the round-trip time of each request.

Failed requests are reported and pinging continues. Press Ctrl+C to stop;
session statistics are printed on exit.

Examples:
  isplink -p /dev/ttyUSB0 ping
  isplink -p /dev/ttyUSB0 ping --count 10 --interval 200ms`,
	Args: cobra.NoArgs,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 0, "Stop after this many requests (0 = until interrupted)")
	pingCmd.Flags().DurationVarP(&pingInterval, "interval", "i", time.Second, "Delay between requests")
}

// pinger is the part of a session the ping loop drives
type pinger interface {
	ReadPartIdentification() (uint32, error)
	Reset()
	Statistics() isp.Statistics
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, _, _, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	return pingLoop(ctx, s, pingCount, pingInterval, os.Stdout, os.Stderr)
}

// pingLoop reads the part ID count times (0 = until ctx is done), one
// request per interval, and prints the session statistics at the end.
func pingLoop(ctx context.Context, s pinger, count int, interval time.Duration, out, errOut io.Writer) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	stale := false
	for seq := 0; count == 0 || seq < count; seq++ {
		if seq > 0 {
			select {
			case <-ctx.Done():
				return printPingSummary(out, s.Statistics())
			case <-ticker.C:
			}
		}
		// a late reply to a failed request may have arrived since
		if stale {
			s.Reset()
			stale = false
		}

		start := time.Now()
		id, err := s.ReadPartIdentification()
		elapsed := time.Since(start)
		if err != nil {
			fmt.Fprintf(errOut, "seq=%d error: %v\n", seq, err)
			s.Reset()
			stale = true
			continue
		}
		fmt.Fprintf(out, "%s seq=%d time=%.1f ms\n", parts.Format(id), seq, float64(elapsed.Microseconds())/1000)
	}

	return printPingSummary(out, s.Statistics())
}

func printPingSummary(out io.Writer, stats isp.Statistics) error {
	fmt.Fprintln(out)
	fmt.Fprint(out, stats.String())
	return nil
}
