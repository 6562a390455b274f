// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"fmt"
	"time"
)

// Statistics tracks session traffic and transaction outcomes
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	LinesSent          uint64
	BytesSent          uint64
	BytesReceived      uint64
	Assertions         uint64
	Matches            uint64
	Timeouts           uint64
	Mismatches         uint64
	ProtocolViolations uint64

	// Rates (calculated)
	TransactionRate float64 // assertions/sec
	ErrorRate       float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records the outcome of one assertion
func (s *Statistics) Update(err error) {
	s.Assertions++

	switch err.(type) {
	case nil:
		s.Matches++
	case *TimeoutError:
		s.Timeouts++
	case *MismatchError:
		s.Mismatches++
	case *ProtocolError:
		s.ProtocolViolations++
	}

	s.LastUpdateTime = time.Now()
}

// Errors returns the total number of failed assertions
func (s *Statistics) Errors() uint64 {
	return s.Timeouts + s.Mismatches + s.ProtocolViolations
}

// CalculateRates calculates transaction and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.TransactionRate = float64(s.Assertions) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var matchPercent float64
	if s.Assertions > 0 {
		matchPercent = float64(s.Matches) * 100.0 / float64(s.Assertions)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Session statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Lines sent:      %8d\n", s.LinesSent)
	result += fmt.Sprintf("Bytes out/in:    %8d / %d\n", s.BytesSent, s.BytesReceived)
	result += fmt.Sprintf("Assertions:      %8d\n", s.Assertions)
	result += fmt.Sprintf("Matched:         %8d (%.1f%%)\n", s.Matches, matchPercent)

	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d\n", s.Timeouts)
	}
	if s.Mismatches > 0 {
		result += fmt.Sprintf("Mismatches:      %8d\n", s.Mismatches)
	}
	if s.ProtocolViolations > 0 {
		result += fmt.Sprintf("Violations:      %8d\n", s.ProtocolViolations)
	}

	result += fmt.Sprintf("Transaction Rate:%8.1f /sec\n", s.TransactionRate)
	result += fmt.Sprintf("Error Rate:      %8.1f /sec\n", s.ErrorRate)
	result += "========================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
