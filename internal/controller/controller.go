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

// Package controller implements the other side of the IPC channel
// described in spec.md §4.2/§6: the process that creates the shared
// memory segment and semaphore, and answers each request with either a
// file's bytes or the "error" sentinel. It is not a reimplementation of
// the real debugger controller (TotalView/MRNet); it exists so this
// repository's own shim, IPC protocol, and hook semantics can be
// exercised end-to-end without a real parallel debugger attached
// (SPEC_FULL.md §2, seventh component).
package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ndryden/pgdb-fileshim/clock"
	"github.com/ndryden/pgdb-fileshim/internal/ipc"
	"github.com/ndryden/pgdb-fileshim/internal/logger"
)

// Source answers a canonical path with file bytes, or ok=false if it has
// no image for that path. Controller itself is source-agnostic; Static
// and Directory below are the two sources this repository provides.
type Source interface {
	Lookup(canonical string) (data []byte, ok bool)
}

// Static serves from an in-memory map, used by this repository's own
// tests (SPEC_FULL.md §6) so they never shell out to cmd/pgdbctl or touch
// a real filesystem tree.
type Static map[string][]byte

func (s Static) Lookup(canonical string) ([]byte, bool) {
	b, ok := s[canonical]
	return b, ok
}

// Directory serves from a filesystem tree: a request for canonical path
// "/foo/bar" reads "<Root>/foo/bar", matching cmd/pgdbctl's "serve --root"
// contract (SPEC_FULL.md §6).
type Directory struct {
	Root string
}

func (d Directory) Lookup(canonical string) ([]byte, bool) {
	rel := filepath.Clean(canonical)
	full := filepath.Join(d.Root, rel)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Controller owns the segment and semaphore it created and serves
// requests from a Source until its context is canceled.
type Controller struct {
	seg     *ipc.Segment
	sem     *ipc.Semaphore
	channel *ipc.Channel
	source  Source

	// runID tags every log line this Controller emits with a fresh,
	// process-lifetime-scoped identifier, so logs from two controllers
	// serving under different hostnames (or successive serve/restart
	// cycles in the same test binary) are never confused with each
	// other when aggregated.
	runID string
}

// New creates the shared-memory segment and semaphore named after
// hostPrefix (ipc.Names) and returns a Controller ready to Serve.
func New(hostPrefix string, source Source) (*Controller, error) {
	segName, semName := ipc.Names(hostPrefix)

	seg, err := ipc.CreateSegment(segName)
	if err != nil {
		return nil, err
	}
	sem, err := ipc.CreateSemaphore(semName)
	if err != nil {
		seg.Close()
		seg.Unlink()
		return nil, err
	}

	return &Controller{
		seg:     seg,
		sem:     sem,
		channel: ipc.NewChannel(seg, sem, 0, clock.RealClock{}),
		source:  source,
		runID:   uuid.New().String(),
	}, nil
}

// RunID returns this Controller's process-lifetime-scoped identifier,
// generated once in New. Serve logs it at startup and on every failed
// response, so operators can grep a single run's lines out of an
// aggregated log stream.
func (c *Controller) RunID() string {
	return c.runID
}

// Serve answers requests until ctx is canceled. It never returns nil: on
// a clean shutdown it returns ctx.Err().
func (c *Controller) Serve(ctx context.Context) error {
	logger.Infof("controller[%s]: serving", c.runID)
	for {
		request, err := c.channel.Accept(ctx)
		if err != nil {
			return err
		}
		data, ok := c.source.Lookup(string(request))
		if !ok {
			if err := c.channel.Respond([]byte(ipc.ErrorSentinel)); err != nil {
				logger.Warnf("controller[%s]: respond error sentinel: %v", c.runID, err)
			}
			continue
		}
		if err := c.channel.Respond(data); err != nil {
			logger.Warnf("controller[%s]: respond with %d bytes: %v", c.runID, len(data), err)
		}
	}
}

// Close unmaps and unlinks the segment, then closes and unlinks the
// semaphore. Unlike the shim side (internal/shim.Runtime.Close), the
// controller is always the one that created these POSIX objects, so it
// is always correct for it to unlink them (spec.md §4.1).
func (c *Controller) Close() error {
	var errs []error
	if err := c.seg.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.seg.Unlink(); err != nil {
		errs = append(errs, err)
	}
	if err := c.sem.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := c.sem.Unlink(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Run creates a Controller, serves it until ctx is canceled, and tears
// it down, coordinating the serve loop and a final cleanup step with
// errgroup the way the teacher's own daemon commands coordinate their
// mount and signal-handling goroutines.
func Run(ctx context.Context, hostPrefix string, source Source) error {
	c, err := New(hostPrefix, source)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := c.Serve(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	if closeErr := c.Close(); closeErr != nil {
		logger.Warnf("controller: teardown: %v", closeErr)
	}
	return err
}
