// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long:  `List the serial ports on this host with their USB identifiers, if any.`,
	Args:  cobra.NoArgs,
	RunE:  runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return errors.Wrap(err, "failed to list serial ports")
	}
	if len(ports) == 0 {
		fmt.Println("No serial ports found")
		return nil
	}

	for _, port := range ports {
		if !port.IsUSB {
			fmt.Println(port.Name)
			continue
		}
		fmt.Printf("%-20s USB %s:%s", port.Name, port.VID, port.PID)
		if port.Product != "" {
			fmt.Printf("  %s", port.Product)
		}
		if port.SerialNumber != "" {
			fmt.Printf("  (serial %s)", port.SerialNumber)
		}
		fmt.Println()
	}
	return nil
}
