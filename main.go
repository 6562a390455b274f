// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// isplink - LPC In-System Programming client
//
// A CLI tool for programming and reading NXP LPC microcontrollers through
// the UART bootloader, over a local serial port or a WebSocket bridge.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/isplink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
}
