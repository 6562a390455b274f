// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import (
	"io"
	"sync"
	"time"
)

// Transport is the byte stream a Session drives, typically a serial port.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Session owns a Transport for its whole lifetime and runs one
// command/response transaction at a time.
//
// A reader goroutine moves incoming bytes onto a queue; assertions accumulate
// from that queue until their pattern matches or their timeout elapses.
type Session struct {
	conn    Transport
	dialect Dialect
	log     Logger
	base    Logger // untagged, for components built on the session
	timeout time.Duration
	clock   int
	verbose bool

	// mu serializes transactions; the fields below belong to its holder
	mu       sync.Mutex
	buf      []byte
	echo     bool
	initEcho bool

	rx      chan []byte
	readErr error // set by the reader before rx is closed
	done    chan struct{}

	statsMu sync.Mutex
	stats   *Statistics

	closeOnce sync.Once
	closeErr  error
}

// NewSession takes ownership of conn and starts reading from it.
// The session is not synchronized; see Synchronize.
func NewSession(conn Transport, opts ...Option) *Session {
	if conn == nil {
		panic("isp: transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		conn:     conn,
		dialect:  cfg.dialect,
		log:      withSource(cfg.logger, "session"),
		base:     cfg.logger,
		timeout:  cfg.timeout,
		clock:    cfg.clock,
		verbose:  cfg.verbose,
		echo:     cfg.echo,
		initEcho: cfg.echo,
		rx:       make(chan []byte, rxQueueSize),
		done:     make(chan struct{}),
		stats:    NewStatistics(),
	}
	go s.readLoop()
	return s
}

// readLoop pumps the transport into rx until the transport fails or the
// session closes
func (s *Session) readLoop() {
	defer close(s.rx)
	buf := make([]byte, 256)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case s.rx <- data:
			case <-s.done:
				s.readErr = io.ErrClosedPipe
				return
			}
		}
		if err != nil {
			s.readErr = err
			return
		}
	}
}

// Transact runs fn with exclusive use of the session.
func (s *Session) Transact(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&Tx{s: s})
}

// Write sends text without waiting for a response.
func (s *Session) Write(text string) error {
	return s.Transact(func(tx *Tx) error {
		return tx.Write(text)
	})
}

// WriteLine sends text followed by the line terminator.
func (s *Session) WriteLine(text string) error {
	return s.Transact(func(tx *Tx) error {
		return tx.WriteLine(text)
	})
}

// SendLine is an alias of WriteLine.
func (s *Session) SendLine(text string) error {
	return s.WriteLine(text)
}

// Assert waits up to timeout for p to match the accumulated input.
func (s *Session) Assert(p Pattern, timeout time.Duration) (Match, error) {
	var m Match
	err := s.Transact(func(tx *Tx) error {
		var err error
		m, err = tx.Assert(p, timeout)
		return err
	})
	return m, err
}

// AssertOK waits for the generic success token.
func (s *Session) AssertOK(timeout time.Duration) error {
	_, err := s.Assert(Literal(OKToken), timeout)
	return err
}

// Execute writes request and waits for expect; see Tx.Execute.
func (s *Session) Execute(request string, expect Pattern, timeout time.Duration) (Match, error) {
	var m Match
	err := s.Transact(func(tx *Tx) error {
		var err error
		m, err = tx.Execute(request, expect, timeout)
		return err
	})
	return m, err
}

// Reset discards accumulated and queued input. The device is not touched.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

func (s *Session) reset() {
	s.buf = s.buf[:0]
	for {
		select {
		case _, ok := <-s.rx:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// SetEcho tells the bootloader whether to echo received characters.
func (s *Session) SetEcho(on bool) error {
	return s.Transact(func(tx *Tx) error {
		return s.dialect.SetEcho(tx, on)
	})
}

// Unlock enables destructive flash commands.
func (s *Session) Unlock() error {
	return s.Transact(func(tx *Tx) error {
		return s.dialect.Unlock(tx)
	})
}

// ReadPartIdentification returns the raw device identification code.
func (s *Session) ReadPartIdentification() (uint32, error) {
	var id uint32
	err := s.Transact(func(tx *Tx) error {
		var err error
		id, err = s.dialect.ReadPartID(tx)
		return err
	})
	return id, err
}

// ReadBootcodeVersion returns the bootloader version.
func (s *Session) ReadBootcodeVersion() (BootcodeVersion, error) {
	var v BootcodeVersion
	err := s.Transact(func(tx *Tx) error {
		var err error
		v, err = s.dialect.ReadBootcodeVersion(tx)
		return err
	})
	return v, err
}

// Echo reports whether the device is believed to echo input.
func (s *Session) Echo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.echo
}

// Clock returns the clock value in kHz submitted during synchronization.
func (s *Session) Clock() int {
	return s.clock
}

// Timeout returns the default command timeout.
func (s *Session) Timeout() time.Duration {
	return s.timeout
}

// Logger returns a logger tagging messages with source.
func (s *Session) Logger(source string) Logger {
	return withSource(s.base, source)
}

// Dialect returns the session's command vocabulary.
func (s *Session) Dialect() Dialect {
	return s.dialect
}

// Statistics returns a snapshot of the session counters.
func (s *Session) Statistics() Statistics {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	snap := *s.stats
	snap.CalculateRates()
	return snap
}

func (s *Session) updateStats(fn func(st *Statistics)) {
	s.statsMu.Lock()
	fn(s.stats)
	s.statsMu.Unlock()
}

// Close releases the transport. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}
