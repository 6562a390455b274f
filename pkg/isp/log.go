// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package isp

// Logger is the leveled logging capability injected into sessions and jobs.
// Implementations receive alternating key/value pairs after the message.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// sourceLogger tags every message with the emitting component.
type sourceLogger struct {
	next   Logger
	source string
}

func withSource(l Logger, source string) Logger {
	if l == nil {
		return nopLogger{}
	}
	return sourceLogger{next: l, source: source}
}

func (l sourceLogger) kv(keysAndValues []interface{}) []interface{} {
	return append([]interface{}{"source", l.source}, keysAndValues...)
}

func (l sourceLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.next.Debug(msg, l.kv(keysAndValues)...)
}

func (l sourceLogger) Info(msg string, keysAndValues ...interface{}) {
	l.next.Info(msg, l.kv(keysAndValues)...)
}

func (l sourceLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.next.Warn(msg, l.kv(keysAndValues)...)
}

func (l sourceLogger) Error(msg string, keysAndValues ...interface{}) {
	l.next.Error(msg, l.kv(keysAndValues)...)
}
