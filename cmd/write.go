// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/Thermoquad/isplink/pkg/image"
	"github.com/Thermoquad/isplink/pkg/isp"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	writeNoErase   bool
	writeVerify    bool
	writeChunkSize int
	writeTUI       bool
)

var writeCmd = &cobra.Command{
	Use:   "write <file> [address]",
	Short: "Program a file into flash",
	Long: `Program a file into flash through the bootloader.

The file is either a raw binary or an image saved by 'read --format cbor'.
A raw binary needs a start address; an image carries its own, which the
address argument overrides. The start address must be aligned to 256 bytes.

The covered sectors are erased first unless --no-erase is given. Each chunk
is staged in RAM and copied to flash; --verify compares it afterwards.

Examples:
  # Flash firmware at the start of flash
  isplink -p /dev/ttyUSB0 write firmware.bin 0

  # Restore a saved image with a progress display
  isplink -p /dev/ttyUSB0 write backup.cbor --tui`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runWrite,
}

func init() {
	rootCmd.AddCommand(writeCmd)
	writeCmd.Flags().BoolVar(&writeNoErase, "no-erase", false, "Skip erasing the covered sectors")
	writeCmd.Flags().BoolVar(&writeVerify, "verify", false, "Compare each chunk with flash after copying")
	writeCmd.Flags().IntVar(&writeChunkSize, "chunk-size", 0, "Bytes per chunk (default: dialect maximum)")
	writeCmd.Flags().BoolVar(&writeTUI, "tui", false, "Show an interactive progress display")
}

// loadFirmware returns the bytes to program and the image address, if any.
func loadFirmware(path string) ([]byte, uint32, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, false, errors.Wrapf(err, "failed to read %s", path)
	}
	if img, ok := image.Sniff(raw); ok {
		logger.Debug().
			Str("path", path).
			Uint32("address", img.Address).
			Int("length", img.Length).
			Time("captured", img.Captured).
			Msg("loaded image")
		return img.Data, img.Address, true, nil
	}
	return raw, 0, false, nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, address, hasAddress, err := loadFirmware(path)
	if err != nil {
		return err
	}
	if len(args) > 1 {
		address, err = parseNumber(args[1])
		if err != nil {
			return errors.Wrap(err, "address")
		}
	} else if !hasAddress {
		return errors.New("a start address is required for raw binaries")
	}

	ctx := cmd.Context()
	s, lpc, res, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	lpc.Verify = writeVerify

	var opts []isp.ProgrammerOption
	opts = append(opts, isp.WithErase(!writeNoErase))
	if writeChunkSize > 0 {
		opts = append(opts, isp.WithChunkSize(writeChunkSize))
	}
	p := isp.NewProgrammer(s, address, len(data), opts...)

	if writeTUI && !term.IsTerminal(int(os.Stdout.Fd())) {
		logger.Warn().Msg("stdout is not a terminal, falling back to text progress")
		writeTUI = false
	}
	if writeTUI {
		return runWriteTUI(ctx, p, bytes.NewReader(data), path, address, partLabel(res), len(data))
	}

	fmt.Printf("About to flash %d bytes at %s on %s...\n", len(data), formatAddress(address), partLabel(res))
	err = p.Run(ctx, bytes.NewReader(data), func(ev isp.Event) {
		if ev.Kind == isp.EventChunk {
			fmt.Printf("  %s  %6d/%d bytes (%3.0f%%)\n",
				formatAddress(ev.Address), ev.Done, ev.Total, percent(ev.Done, ev.Total))
		}
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d bytes written\n", path, len(data))
	return nil
}

func percent(done, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(done) * 100 / float64(total)
}
