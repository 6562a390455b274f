// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

import "time"

// config holds the session configuration.
type config struct {
	dialect Dialect
	logger  Logger
	clock   int
	timeout time.Duration
	verbose bool
	echo    bool
}

func defaultConfig() config {
	return config{
		dialect: NewLPC(),
		logger:  nopLogger{},
		clock:   DefaultClockKHz,
		timeout: DefaultCommandTimeout,
		echo:    true,
	}
}

// Option is a functional option for configuring a Session.
type Option func(*config)

// WithDialect sets the command vocabulary. The default is NewLPC().
func WithDialect(d Dialect) Option {
	return func(c *config) {
		c.dialect = d
	}
}

// WithLogger injects the logger used by the session and everything built on it.
func WithLogger(l Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the clock value in kHz submitted during synchronization.
func WithClock(kHz int) Option {
	return func(c *config) {
		c.clock = kHz
	}
}

// WithTimeout sets the default command timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithVerbose traces every line written and every match at debug level.
func WithVerbose(v bool) Option {
	return func(c *config) {
		c.verbose = v
	}
}

// WithEcho sets the echo state the device is assumed to start in.
// Stock bootloaders echo until told otherwise.
func WithEcho(on bool) Option {
	return func(c *config) {
		c.echo = on
	}
}
