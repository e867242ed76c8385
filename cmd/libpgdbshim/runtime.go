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

package main

import (
	"os"

	"github.com/ndryden/pgdb-fileshim/cfg"
	"github.com/ndryden/pgdb-fileshim/internal/logger"
	"github.com/ndryden/pgdb-fileshim/internal/metrics"
	"github.com/ndryden/pgdb-fileshim/internal/shim"
)

// rt is the process-wide singleton every exported hook dispatches
// through. Go runs every package's init() functions when the dynamic
// loader brings this shared object into a process (the same moment
// gdb_load_file.c's ELF constructor ran its own init()), so rt is ready
// before the host process's first libc call reaches any exported symbol.
var rt *shim.Runtime

func init() {
	logger.SetSeverity(envOr("PGDB_LOG_SEVERITY", logger.Info))
	logger.SetFormat(envOr("PGDB_LOG_FORMAT", "text"))

	m, err := metrics.New()
	if err != nil {
		logger.Warnf("libpgdbshim: metrics unavailable, continuing without instrumentation: %v", err)
		m = nil
	}

	shimCfg := cfg.ShimConfig{
		HostnameOverride: os.Getenv("PGDB_HOSTNAME_OVERRIDE"),
	}
	rt = shim.New(shimCfg, m)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
