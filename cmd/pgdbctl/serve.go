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
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jacobsa/daemonize"
	"github.com/spf13/cobra"

	"github.com/ndryden/pgdb-fileshim/internal/controller"
	"github.com/ndryden/pgdb-fileshim/internal/logger"
	"github.com/ndryden/pgdb-fileshim/internal/metrics"
)

// inBackgroundEnv distinguishes the daemonized child invocation from the
// parent's, the same role logger.GCSFuseInBackgroundMode plays for
// gcsfuse's own mount helper.
const inBackgroundEnv = "PGDBCTL_IN_BACKGROUND_MODE"

// shutdownGracePeriod bounds how long serveMetrics waits for the
// Prometheus HTTP server and its MeterProvider to drain on teardown.
const shutdownGracePeriod = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Create the IPC channel and serve file bodies from a directory tree",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if config.Controller.Daemonize && os.Getenv(inBackgroundEnv) != "true" {
		return daemonizeSelf()
	}

	if config.Controller.ServeRoot == "" {
		err := fmt.Errorf("serve: --root is required")
		signalOutcomeIfDaemonized(err)
		return err
	}

	src := controller.Directory{Root: config.Controller.ServeRoot}
	hostname := config.Controller.HostnameOverride
	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			signalOutcomeIfDaemonized(err)
			return err
		}
		hostname = h
	}

	c, err := controller.New(hostname, src)
	if err != nil {
		signalOutcomeIfDaemonized(err)
		return fmt.Errorf("serve: %w", err)
	}

	signalOutcomeIfDaemonized(nil)
	logger.Infof("pgdbctl: serving %s under hostname %s", config.Controller.ServeRoot, hostname)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stopMetrics, err := serveMetrics(config.Controller.MetricsAddr)
	if err != nil {
		return fmt.Errorf("serve: metrics: %w", err)
	}
	defer stopMetrics()

	serveErr := c.Serve(ctx)
	if closeErr := c.Close(); closeErr != nil {
		logger.Warnf("serve: teardown: %v", closeErr)
	}
	if ctx.Err() != nil {
		return nil
	}
	return serveErr
}

// serveMetrics starts a Prometheus scrape endpoint on addr when addr is
// non-empty, backed by the same otel/sdk/metric MeterProvider
// internal/metrics instruments report through. Returns a no-op stop func
// when addr is empty so callers can defer unconditionally.
func serveMetrics(addr string) (stop func(), err error) {
	if addr == "" {
		return func() {}, nil
	}

	exporter, err := metrics.NewPrometheusExporter()
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if srvErr := srv.ListenAndServe(); srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
			logger.Warnf("serve: metrics server: %v", srvErr)
		}
	}()
	logger.Infof("pgdbctl: serving Prometheus metrics on %s/metrics", addr)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("serve: metrics server shutdown: %v", err)
		}
		if err := exporter.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("serve: metrics exporter shutdown: %v", err)
		}
	}, nil
}

func signalOutcomeIfDaemonized(err error) {
	if !config.Controller.Daemonize {
		return
	}
	if sigErr := daemonize.SignalOutcome(err); sigErr != nil {
		logger.Errorf("serve: failed to signal outcome to parent process: %v", sigErr)
	}
}

// daemonizeSelf re-execs this binary with inBackgroundEnv set and waits
// for the child to signal success or failure, matching the teacher's own
// gcsfuse mount helper's daemonize.Run usage (cmd/legacy_main.go).
func daemonizeSelf() error {
	path, err := os.Executable()
	if err != nil {
		return fmt.Errorf("daemonize: %w", err)
	}
	env := append(os.Environ(), inBackgroundEnv+"=true")
	if err := daemonize.Run(path, os.Args[1:], env, os.Stdout); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}
	logger.Infof("pgdbctl: controller started in background")
	return nil
}
