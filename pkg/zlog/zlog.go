// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package zlog adapts zerolog to the isp.Logger interface and builds the
// process logger from CLI settings.
package zlog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/isplink/pkg/isp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Logger forwards isp log calls to a zerolog.Logger.
type Logger struct {
	zl zerolog.Logger
}

var _ isp.Logger = Logger{}

// New wraps zl.
func New(zl zerolog.Logger) Logger {
	return Logger{zl: zl}
}

func (l Logger) Debug(msg string, keysAndValues ...interface{}) {
	fields(l.zl.Debug(), keysAndValues).Msg(msg)
}

func (l Logger) Info(msg string, keysAndValues ...interface{}) {
	fields(l.zl.Info(), keysAndValues).Msg(msg)
}

func (l Logger) Warn(msg string, keysAndValues ...interface{}) {
	fields(l.zl.Warn(), keysAndValues).Msg(msg)
}

func (l Logger) Error(msg string, keysAndValues ...interface{}) {
	fields(l.zl.Error(), keysAndValues).Msg(msg)
}

// fields attaches alternating key/value pairs. Errors go through Err, and
// an odd trailing value is kept under "extra".
func fields(e *zerolog.Event, kv []interface{}) *zerolog.Event {
	if e == nil {
		// level disabled
		return e
	}
	for i := 0; i < len(kv); i += 2 {
		if i+1 >= len(kv) {
			e = e.Interface("extra", kv[i])
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		switch v := kv[i+1].(type) {
		case error:
			if key == "error" {
				e = e.Err(v)
			} else {
				e = e.AnErr(key, v)
			}
		case string:
			e = e.Str(key, v)
		case int:
			e = e.Int(key, v)
		case uint32:
			e = e.Uint32(key, v)
		case uint64:
			e = e.Uint64(key, v)
		case bool:
			e = e.Bool(key, v)
		case time.Duration:
			e = e.Dur(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	return e
}

// Config selects the process log output.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	Output io.Writer
}

// Setup builds a zerolog.Logger from cfg. Output defaults to stderr.
func Setup(cfg Config) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), errors.Wrapf(err, "invalid log level %q", cfg.Level)
		}
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	switch strings.ToLower(cfg.Format) {
	case "", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	case "json":
	default:
		return zerolog.Nop(), errors.Errorf("invalid log format %q (use console or json)", cfg.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}
