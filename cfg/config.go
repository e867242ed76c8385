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

// Package cfg binds this repository's command-line flags through viper,
// following the teacher's cfg.BindFlags(flagSet *pflag.FlagSet) error
// pattern (cfg/config.go, cfg/types.go in the original gcsfuse tree).
package cfg

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the process-wide configuration for both cmd/pgdbctl (the
// reference controller) and any command embedding internal/shim.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`

	Shim ShimConfig `yaml:"shim"`

	Controller ControllerConfig `yaml:"controller"`
}

// LoggingConfig controls internal/logger's severity threshold and output
// format.
type LoggingConfig struct {
	Severity LogSeverity `yaml:"severity"`

	Format string `yaml:"format"`
}

// ShimConfig controls internal/shim's IPC channel (spec.md §4.1, §6).
// HostnameOverride exists purely for test isolation: production always
// derives the segment/semaphore names from the real hostname per spec.md §6.
type ShimConfig struct {
	HostnameOverride string `yaml:"hostname-override"`

	PollInterval time.Duration `yaml:"poll-interval"`
}

// ControllerConfig controls cmd/pgdbctl's reference controller.
type ControllerConfig struct {
	ServeRoot string `yaml:"serve-root"`

	HostnameOverride string `yaml:"hostname-override"`

	Daemonize bool `yaml:"daemonize"`

	MetricsAddr string `yaml:"metrics-addr"`
}

// BindFlags registers this repository's flags on flagSet and binds each
// to its viper key, matching the teacher's own BindFlags shape.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("log-severity", "", string(InfoLogSeverity), "Minimum severity logged: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "text", "Log output format: text or json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.StringP("hostname", "", "", "Hostname suffix used to derive the IPC segment/semaphore names. Defaults to os.Hostname().")
	if err = viper.BindPFlag("shim.hostname-override", flagSet.Lookup("hostname")); err != nil {
		return err
	}
	if err = viper.BindPFlag("controller.hostname-override", flagSet.Lookup("hostname")); err != nil {
		return err
	}

	flagSet.DurationP("poll-interval", "", DefaultPollInterval, "Sleep duration between IPC wait-loop polls, stored as shim.poll-interval. The pgdbctl controller's own wait loop does not read it and always polls at the 1ms default.")
	if err = viper.BindPFlag("shim.poll-interval", flagSet.Lookup("poll-interval")); err != nil {
		return err
	}

	flagSet.StringP("root", "", "", "Directory tree the reference controller serves file bodies from.")
	if err = viper.BindPFlag("controller.serve-root", flagSet.Lookup("root")); err != nil {
		return err
	}

	flagSet.BoolP("daemonize", "", false, "Detach the controller into the background after the IPC channel is ready.")
	if err = viper.BindPFlag("controller.daemonize", flagSet.Lookup("daemonize")); err != nil {
		return err
	}

	flagSet.StringP("metrics-addr", "", "", "Address to serve Prometheus metrics on, e.g. :9090. Disabled when empty.")
	if err = viper.BindPFlag("controller.metrics-addr", flagSet.Lookup("metrics-addr")); err != nil {
		return err
	}

	return nil
}
