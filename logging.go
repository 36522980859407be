// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asyncnet

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

// LogLevel represents different logging levels
type LogLevel int32

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "ERROR"
	case LogLevelWarn:
		return "WARN"
	case LogLevelInfo:
		return "INFO"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelTrace:
		return "TRACE"
	default:
		return "UNKNOWN"
	}
}

// Logger provides leveled logging. It is safe for concurrent use.
type Logger struct {
	logger *log.Logger
	level  atomic.Int32
}

// NewLogger creates a new Logger writing to stderr with the specified level
func NewLogger(level LogLevel) *Logger {
	return NewLoggerWithWriter(os.Stderr, level)
}

// NewLoggerWithWriter creates a new Logger with custom writer and level
func NewLoggerWithWriter(w io.Writer, level LogLevel) *Logger {
	l := &Logger{logger: log.New(w, "asyncnet: ", log.LstdFlags)}
	l.level.Store(int32(level))
	return l
}

// Named returns a Logger sharing the writer and level of l whose lines
// carry the given prefix instead.
func (l *Logger) Named(prefix string) *Logger {
	n := &Logger{logger: log.New(l.logger.Writer(), prefix, l.logger.Flags())}
	n.level.Store(l.level.Load())
	return n
}

// SetLevel sets the minimum logging level
func (l *Logger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// GetLevel returns the current logging level
func (l *Logger) GetLevel() LogLevel {
	return LogLevel(l.level.Load())
}

// IsEnabled checks if a log level is enabled
func (l *Logger) IsEnabled(level LogLevel) bool {
	return level <= l.GetLevel()
}

// Log writes at an explicit level.
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	if l.IsEnabled(level) {
		l.logger.Printf("["+level.String()+"] "+format, args...)
	}
}

func (l *Logger) Error(format string, args ...interface{}) { l.Log(LogLevelError, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.Log(LogLevelWarn, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.Log(LogLevelInfo, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.Log(LogLevelDebug, format, args...) }

// Trace logs at trace level (most verbose)
func (l *Logger) Trace(format string, args ...interface{}) { l.Log(LogLevelTrace, format, args...) }

var (
	// DevNull logger that discards all output
	DevNullLogger = NewLoggerWithWriter(io.Discard, LogLevelError)

	// Default logger at warning level
	DefaultLogger = NewLogger(LogLevelWarn)

	// Debug logger for development
	DebugLogger = NewLogger(LogLevelDebug)
)
