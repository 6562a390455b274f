// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Tx is exclusive access to a Session for the duration of Session.Transact.
// It must not be retained after the callback returns.
type Tx struct {
	s *Session
}

// Write sends text as-is.
func (tx *Tx) Write(text string) error {
	return tx.WriteBytes([]byte(text))
}

// WriteLine sends text followed by the line terminator.
func (tx *Tx) WriteLine(text string) error {
	if tx.s.verbose {
		tx.s.log.Debug("tx", "line", text)
	}
	if err := tx.Write(text + LineTerminator); err != nil {
		return err
	}
	tx.s.updateStats(func(st *Statistics) { st.LinesSent++ })
	return nil
}

// WriteBytes sends raw bytes.
func (tx *Tx) WriteBytes(p []byte) error {
	if _, err := tx.s.conn.Write(p); err != nil {
		return errors.Wrap(err, "write to transport")
	}
	tx.s.updateStats(func(st *Statistics) { st.BytesSent += uint64(len(p)) })
	return nil
}

// Assert accumulates input until p matches or timeout elapses. Input up to
// the end of the match is consumed; anything after it stays buffered for the
// next assertion.
func (tx *Tx) Assert(p Pattern, timeout time.Duration) (Match, error) {
	m, err := tx.assert(p, timeout)
	tx.s.updateStats(func(st *Statistics) { st.Update(err) })
	if tx.s.verbose {
		if err != nil {
			tx.s.log.Debug("rx failed", "pattern", p.String(), "error", err)
		} else {
			tx.s.log.Debug("rx", "pattern", p.String(), "text", m.Text)
		}
	}
	return m, err
}

func (tx *Tx) assert(p Pattern, timeout time.Duration) (Match, error) {
	s := tx.s
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		res := p.scan(s.buf)
		switch res.state {
		case scanMatched:
			m := Match{
				Text:    string(s.buf[:res.end]),
				Capture: append([]byte(nil), res.capture...),
			}
			s.buf = append(s.buf[:0], s.buf[res.end:]...)
			return m, nil
		case scanFailed:
			if res.err != nil {
				return Match{}, res.err
			}
			return Match{}, &MismatchError{Pattern: p.String(), Received: tx.received()}
		}

		select {
		case data, ok := <-s.rx:
			if !ok {
				return Match{}, &MismatchError{Pattern: p.String(), Received: tx.received(), Cause: s.readErr}
			}
			s.buf = append(s.buf, data...)
			s.updateStats(func(st *Statistics) { st.BytesReceived += uint64(len(data)) })
		case <-timer.C:
			return Match{}, &TimeoutError{Pattern: p.String(), Timeout: timeout, Received: tx.received()}
		}
	}
}

func (tx *Tx) received() []byte {
	return append([]byte(nil), tx.s.buf...)
}

// Execute writes request as a line, consumes the device echo when echo is
// on, then waits for expect.
func (tx *Tx) Execute(request string, expect Pattern, timeout time.Duration) (Match, error) {
	if err := tx.WriteLine(request); err != nil {
		return Match{}, err
	}
	if tx.s.echo {
		if _, err := tx.Assert(Literal(request+LineTerminator), timeout); err != nil {
			return Match{}, err
		}
	}
	return tx.Assert(expect, timeout)
}

// Status executes request and returns the numeric return code line.
func (tx *Tx) Status(request string, timeout time.Duration) (int, error) {
	m, err := tx.Execute(request, Status(), timeout)
	if err != nil {
		return 0, err
	}
	code, err := strconv.Atoi(string(m.Capture))
	if err != nil {
		return 0, &ProtocolError{Operation: request, Response: string(m.Capture), Reason: "return code out of range"}
	}
	return code, nil
}

// Reset discards accumulated and queued input.
func (tx *Tx) Reset() {
	tx.s.reset()
}

// Echo reports whether the device is believed to echo input.
func (tx *Tx) Echo() bool {
	return tx.s.echo
}

// SetEchoState records the device echo state after a successful echo command.
func (tx *Tx) SetEchoState(on bool) {
	tx.s.echo = on
}

// Timeout returns the session's default command timeout.
func (tx *Tx) Timeout() time.Duration {
	return tx.s.timeout
}

// Logger returns the session logger.
func (tx *Tx) Logger() Logger {
	return tx.s.log
}
