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

package cfg

import (
	"fmt"
	"strings"
)

// LogSeverity represents the logging severity and can accept the following
// values: "TRACE", "DEBUG", "INFO", "WARNING", "ERROR", "OFF". It
// implements encoding.TextUnmarshaler, which validates a value and
// normalizes it to upper case; cmd/pgdbctl's root command runs a value read
// from a config file or flag through it before applying it. This is the
// same UnmarshalText pattern the teacher's cfg.LogSeverity uses.
type LogSeverity string

// Constants for all supported log severities, matching
// internal/logger's severity name constants.
const (
	TraceLogSeverity   LogSeverity = "TRACE"
	DebugLogSeverity   LogSeverity = "DEBUG"
	InfoLogSeverity    LogSeverity = "INFO"
	WarningLogSeverity LogSeverity = "WARNING"
	ErrorLogSeverity   LogSeverity = "ERROR"
	OffLogSeverity     LogSeverity = "OFF"
)

var validSeverities = map[LogSeverity]bool{
	TraceLogSeverity:   true,
	DebugLogSeverity:   true,
	InfoLogSeverity:    true,
	WarningLogSeverity: true,
	ErrorLogSeverity:   true,
	OffLogSeverity:     true,
}

func (l *LogSeverity) UnmarshalText(text []byte) error {
	level := LogSeverity(strings.ToUpper(string(text)))
	if !validSeverities[level] {
		return fmt.Errorf("invalid log severity level: %s. Must be one of [TRACE, DEBUG, INFO, WARNING, ERROR, OFF]", text)
	}
	*l = level
	return nil
}

func (l LogSeverity) String() string {
	return string(l)
}
