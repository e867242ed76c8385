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

package ipc

import (
	"context"
	"errors"
	"time"

	"github.com/ndryden/pgdb-fileshim/clock"
)

// ErrNoImage is returned by RoundTrip when the controller's five-byte
// "error" sentinel (spec.md §4.2) was the entire response: the controller
// holds no image for the requested path.
var ErrNoImage = errors.New("ipc: controller reports no image for path")

// DefaultPollInterval is the wait-loop's yield duration absent an
// explicit override (spec.md §9 Open Question: "a reasonable small sleep
// or yield; none has been mandated").
const DefaultPollInterval = time.Millisecond

// Channel is one side's view of the single-slot shared-memory handshake
// of spec.md §4.2: a mapped Segment plus the Semaphore that serializes
// access to it. Both the shim (Client role) and the reference controller
// (Server role) build a Channel over the same two named objects.
type Channel struct {
	seg  *Segment
	sem  *Semaphore
	poll time.Duration
	clk  clock.Clock
}

// NewChannel wraps an already-opened segment and semaphore. poll is the
// wait-loop's sleep duration; zero selects DefaultPollInterval. clk lets
// tests substitute a clock.SimulatedClock to avoid real sleeps.
func NewChannel(seg *Segment, sem *Semaphore, poll time.Duration, clk clock.Clock) *Channel {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Channel{seg: seg, sem: sem, poll: poll, clk: clk}
}

// RoundTrip performs the shim-side request/response exchange of spec.md
// §4.2 steps 1-4: write the request under the semaphore, release, poll
// for the controller's response, then copy the payload into a private
// buffer before re-acquiring any process-local lock. It returns
// ErrNoImage when the controller's response was the literal "error"
// sentinel.
//
// The caller's own process-wide mutex (internal/shim) must never be held
// across this call: it can block for as long as the controller takes to
// answer (spec.md §5).
func (c *Channel) RoundTrip(ctx context.Context, request []byte) ([]byte, error) {
	if len(request) > DataSize {
		return nil, errors.New("ipc: request exceeds segment payload capacity")
	}

	if err := c.sem.Acquire(); err != nil {
		return nil, err
	}
	h := c.seg.header()
	copy(h.data(), request)
	h.setLength(uint32(len(request)))
	h.setShimHasWritten(true)
	if err := c.sem.Release(); err != nil {
		return nil, err
	}

	if err := c.waitForController(ctx); err != nil {
		return nil, err
	}
	// Semaphore is held on return from waitForController.

	n := h.length()
	payload := make([]byte, n)
	copy(payload, h.data()[:n])
	h.setControllerHasWritten(false)
	if err := c.sem.Release(); err != nil {
		return nil, err
	}

	if string(payload) == ErrorSentinel {
		return nil, ErrNoImage
	}
	return payload, nil
}

// waitForController implements the wait loop of spec.md §4.2 step 3: on
// return (nil error) the semaphore is held and controller-has-written is
// set. The caller is responsible for releasing it.
func (c *Channel) waitForController(ctx context.Context) error {
	h := c.seg.header()
	for {
		if err := c.sem.Acquire(); err != nil {
			return err
		}
		if h.controllerHasWritten() {
			return nil
		}
		if err := c.sem.Release(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clk.After(c.poll):
		}
	}
}

// Accept implements the controller (Server role) side of the handshake:
// it waits for the shim to set shim-has-written, copies out the request
// payload, clears shim-has-written and releases the semaphore before
// returning. Respond acquires the semaphore again to install the answer.
func (c *Channel) Accept(ctx context.Context) ([]byte, error) {
	h := c.seg.header()
	for {
		if err := c.sem.Acquire(); err != nil {
			return nil, err
		}
		if h.shimHasWritten() {
			n := h.length()
			request := make([]byte, n)
			copy(request, h.data()[:n])
			h.setShimHasWritten(false)
			if err := c.sem.Release(); err != nil {
				return nil, err
			}
			return request, nil
		}
		if err := c.sem.Release(); err != nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clk.After(c.poll):
		}
	}
}

// Respond writes the controller's answer to the most recent Accept call.
// Passing ErrNoImage-style "no image" responses is the caller's job: it
// should pass the literal ErrorSentinel bytes.
func (c *Channel) Respond(payload []byte) error {
	if len(payload) > DataSize {
		return errors.New("ipc: response exceeds segment payload capacity")
	}
	if err := c.sem.Acquire(); err != nil {
		return err
	}
	h := c.seg.header()
	copy(h.data(), payload)
	h.setLength(uint32(len(payload)))
	h.setControllerHasWritten(true)
	return c.sem.Release()
}
