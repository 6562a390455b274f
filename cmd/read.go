// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/Thermoquad/isplink/pkg/image"
	"github.com/Thermoquad/isplink/pkg/isp"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	readOutput   string
	readFormat   string
	readSize     int
	readProgress bool
)

var readCmd = &cobra.Command{
	Use:   "read <address> <length>",
	Short: "Read device memory",
	Long: `Read a span of device memory through the bootloader.

Without --output the data is printed as a hex dump. With --output it is
written to the file as a raw binary, a hex dump or a CBOR image that
'write' accepts back.

Examples:
  # Dump the vector table
  isplink -p /dev/ttyUSB0 read 0 64

  # Back up the first 64 KiB as an image
  isplink -p /dev/ttyUSB0 read 0 0x10000 -O backup.cbor --format cbor`,
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
	readCmd.Flags().StringVarP(&readOutput, "output", "O", "", "Output file (default: hex dump to stdout)")
	readCmd.Flags().StringVar(&readFormat, "format", "raw", "Output file format: raw, hex or cbor")
	readCmd.Flags().IntVar(&readSize, "read-size", 0, "Bytes per read command (default: dialect maximum)")
	readCmd.Flags().BoolVar(&readProgress, "progress", false, "Print progress after each block")
}

func runRead(cmd *cobra.Command, args []string) error {
	address, err := parseNumber(args[0])
	if err != nil {
		return errors.Wrap(err, "address")
	}
	length, err := parseNumber(args[1])
	if err != nil {
		return errors.Wrap(err, "length")
	}
	switch readFormat {
	case "raw", "hex", "cbor":
	default:
		return errors.Errorf("invalid format %q (use raw, hex or cbor)", readFormat)
	}

	s, _, res, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	var opts []isp.ReaderOption
	if readSize > 0 {
		opts = append(opts, isp.WithReadSize(readSize))
	}
	if readProgress {
		opts = append(opts, isp.WithReadProgress(func(done, total int) {
			fmt.Fprintf(os.Stderr, "  %6d/%d bytes (%3.0f%%)\n", done, total, percent(done, total))
		}))
	}

	data, err := isp.NewMemoryReader(s, opts...).ReadFully(cmd.Context(), isp.Range{Address: address, Length: int(length)})
	if err != nil {
		return err
	}

	if readOutput == "" {
		return image.Dump(os.Stdout, address, data)
	}

	f, err := os.Create(readOutput)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", readOutput)
	}
	defer f.Close()

	switch readFormat {
	case "hex":
		err = image.Dump(f, address, data)
	case "cbor":
		var partID uint32
		if res.HasIdent {
			partID = res.PartID
		}
		err = image.Write(f, image.New(address, data, partID))
	default:
		_, err = f.Write(data)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to write %s", readOutput)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "failed to write %s", readOutput)
	}

	fmt.Printf("%d bytes written to %s\n", len(data), readOutput)
	return nil
}
