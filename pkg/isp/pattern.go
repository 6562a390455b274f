// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"bytes"
	"fmt"
)

// Pattern is one token of the response grammar a transaction waits for.
//
// The vocabulary is small and fixed: a literal anywhere in the input, a token
// preceded by any number of repeated prefix bytes, a complete line, a numeric
// status line, or an exact count of raw bytes.
type Pattern interface {
	scan(buf []byte) scanResult
	String() string
}

type scanState int

const (
	scanNeedMore scanState = iota
	scanMatched
	scanFailed
)

type scanResult struct {
	state   scanState
	end     int // bytes consumed on match
	capture []byte
	err     error // reason on failure
}

// Match is a resolved pattern: the consumed input and the captured value.
type Match struct {
	Text    string
	Capture []byte
}

var needMore = scanResult{state: scanNeedMore}

// Literal matches token anywhere in the accumulated input.
func Literal(token string) Pattern {
	return literal(token)
}

type literal string

func (l literal) scan(buf []byte) scanResult {
	i := bytes.Index(buf, []byte(l))
	if i < 0 {
		return needMore
	}
	end := i + len(l)
	return scanResult{state: scanMatched, end: end, capture: buf[i:end]}
}

func (l literal) String() string {
	return fmt.Sprintf("%q", string(l))
}

// Repeated matches token at the start of the input after zero or more
// prefix bytes. Anything else fails as soon as it is seen.
func Repeated(prefix byte, token string) Pattern {
	return repeated{prefix: prefix, token: token}
}

type repeated struct {
	prefix byte
	token  string
}

func (r repeated) scan(buf []byte) scanResult {
	i := 0
	for i < len(buf) && buf[i] == r.prefix {
		i++
	}
	rest := buf[i:]
	tok := []byte(r.token)
	if len(rest) >= len(tok) {
		if bytes.HasPrefix(rest, tok) {
			end := i + len(tok)
			return scanResult{state: scanMatched, end: end, capture: buf[i:end]}
		}
		return scanResult{state: scanFailed}
	}
	if bytes.HasPrefix(tok, rest) {
		return needMore
	}
	return scanResult{state: scanFailed}
}

func (r repeated) String() string {
	return fmt.Sprintf("%q*%q", string(r.prefix), r.token)
}

// Line matches the next non-empty line and captures it without its terminator.
func Line() Pattern {
	return line{}
}

type line struct{}

func (line) scan(buf []byte) scanResult {
	start := 0
	for {
		nl := bytes.IndexByte(buf[start:], '\n')
		if nl < 0 {
			return needMore
		}
		end := start + nl + 1
		text := bytes.TrimRight(buf[start:end], "\r\n")
		if len(text) > 0 {
			return scanResult{state: scanMatched, end: end, capture: text}
		}
		start = end
	}
}

func (line) String() string {
	return "<line>"
}

// Status matches the next non-empty line, which must be a decimal return code.
func Status() Pattern {
	return status{}
}

type status struct{}

func (status) scan(buf []byte) scanResult {
	res := line{}.scan(buf)
	if res.state != scanMatched {
		return res
	}
	for _, c := range res.capture {
		if c < '0' || c > '9' {
			return scanResult{state: scanFailed, err: &ProtocolError{
				Operation: "status",
				Response:  string(res.capture),
				Reason:    "non-numeric return code",
			}}
		}
	}
	return res
}

func (status) String() string {
	return "<status>"
}

// Bytes matches exactly n raw bytes.
func Bytes(n int) Pattern {
	return rawBytes(n)
}

type rawBytes int

func (n rawBytes) scan(buf []byte) scanResult {
	if len(buf) < int(n) {
		return needMore
	}
	return scanResult{state: scanMatched, end: int(n), capture: buf[:n]}
}

func (n rawBytes) String() string {
	return fmt.Sprintf("<%d bytes>", int(n))
}
