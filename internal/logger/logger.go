// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger implements the leveled structured logging used by every
// other package in this repository: a thin wrapper around log/slog with a
// severity scale finer than slog's own (TRACE and DEBUG below INFO), and a
// choice of text or JSON output.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Severity levels. LevelDebug through LevelError are slog's own built-in
// levels; LevelTrace sits one step (4) below LevelDebug, and LevelOff lies
// above every level this package logs at.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(16)
)

// Severity names accepted by SetSeverity, matching the severities named in
// SPEC_FULL.md's ambient logging section.
const (
	Trace   = "TRACE"
	Debug   = "DEBUG"
	Info    = "INFO"
	Warning = "WARNING"
	Error   = "ERROR"
	Off     = "OFF"
)

type loggerFactory struct {
	format string // "text" or "json"
	level  *slog.LevelVar
}

var defaultLoggerFactory = &loggerFactory{
	format: "text",
	level:  new(slog.LevelVar),
}

var defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, defaultLoggerFactory.level, ""))

func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, level *slog.LevelVar, prefix string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				a.Key = "severity"
				a.Value = slog.StringValue(severityName(a.Value.Any().(slog.Level)))
			case slog.MessageKey:
				a.Value = slog.StringValue(prefix + a.Value.String())
			}
			return a
		},
	}
	if f.format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func severityName(level slog.Level) string {
	switch {
	case level < LevelDebug:
		return Trace
	case level < LevelInfo:
		return Debug
	case level < LevelWarn:
		return Info
	case level < LevelError:
		return Warning
	default:
		return Error
	}
}

func setLoggingLevel(severity string, v *slog.LevelVar) {
	switch severity {
	case Trace:
		v.Set(LevelTrace)
	case Debug:
		v.Set(LevelDebug)
	case Info:
		v.Set(LevelInfo)
	case Warning:
		v.Set(LevelWarn)
	case Error:
		v.Set(LevelError)
	default:
		v.Set(LevelOff)
	}
}

// SetSeverity sets the minimum severity that will be emitted.
func SetSeverity(severity string) {
	setLoggingLevel(severity, defaultLoggerFactory.level)
}

// SetFormat chooses "text" or "json" output. Anything else behaves like "text".
func SetFormat(format string) {
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(os.Stderr, defaultLoggerFactory.level, ""))
}

func log(level slog.Level, format string, v ...interface{}) {
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, v...))
}

func Tracef(format string, v ...interface{}) { log(LevelTrace, format, v...) }
func Debugf(format string, v ...interface{}) { log(LevelDebug, format, v...) }
func Infof(format string, v ...interface{})  { log(LevelInfo, format, v...) }
func Warnf(format string, v ...interface{})  { log(LevelWarn, format, v...) }
func Errorf(format string, v ...interface{}) { log(LevelError, format, v...) }
