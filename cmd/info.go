// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/isplink/pkg/isp"
	"github.com/Thermoquad/isplink/pkg/parts"
	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Identify the connected device",
	Long: `Synchronize with the bootloader and print the part identification,
bootcode version and device serial number.`,
	Args: cobra.NoArgs,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	s, lpc, res, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Printf("Synchronized after %d attempt(s)\n", res.Attempts)
	fmt.Printf("Clock:       %d kHz\n", s.Clock())
	if !res.HasIdent {
		if res.IdentErr != nil {
			fmt.Printf("Part:        unknown (%v)\n", res.IdentErr)
		} else {
			fmt.Println("Part:        unknown (reduced bootloader)")
		}
		return nil
	}

	fmt.Printf("Part ID:     0x%08X\n", res.PartID)
	if p, ok := parts.Lookup(res.PartID); ok {
		fmt.Printf("Part:        %s (%d KiB flash, %d KiB RAM)\n", p.Name, p.FlashKiB, p.RAMKiB)
	} else {
		fmt.Println("Part:        not in the part table")
	}
	fmt.Printf("Bootcode:    %s\n", res.Bootcode)

	var sn [4]uint32
	err = s.Transact(func(tx *isp.Tx) error {
		var err error
		sn, err = lpc.ReadSerialNumber(tx)
		return err
	})
	if err != nil {
		logger.Warn().Err(err).Msg("serial number unavailable")
		return nil
	}
	fmt.Printf("Serial:      %08X %08X %08X %08X\n", sn[0], sn[1], sn[2], sn[3])
	return nil
}
