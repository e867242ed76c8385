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
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testPair creates a fresh segment+semaphore pair named after the test
// and the current pid, so parallel `go test ./...` runs across packages
// never collide, and opens both a controller-role and a shim-role
// Channel over the same pair. Cleanup unlinks both POSIX objects.
func testPair(t *testing.T) (controller, shim *Channel) {
	t.Helper()
	suffix := fmt.Sprintf("Test%d%s", os.Getpid(), t.Name())
	segName, semName := Names(suffix)

	segController, err := CreateSegment(segName)
	require.NoError(t, err)
	semController, err := CreateSemaphore(semName)
	require.NoError(t, err)

	segShim, err := OpenSegment(segName)
	require.NoError(t, err)
	semShim, err := OpenSemaphore(semName)
	require.NoError(t, err)

	t.Cleanup(func() {
		segShim.Close()
		semShim.Close()
		segController.Close()
		segController.Unlink()
		semController.Close()
		semController.Unlink()
	})

	controller = NewChannel(segController, semController, time.Millisecond, nil)
	shim = NewChannel(segShim, semShim, time.Millisecond, nil)
	return controller, shim
}

func TestRoundTripReturnsControllerPayload(t *testing.T) {
	controller, shim := testPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req, err := controller.Accept(ctx)
		require.NoError(t, err)
		require.Equal(t, "/tmp/x", string(req))
		require.NoError(t, controller.Respond([]byte("0123456789")))
	}()

	resp, err := shim.RoundTrip(ctx, []byte("/tmp/x"))
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(resp))
	<-done
}

func TestRoundTripSurfacesNoImageSentinel(t *testing.T) {
	controller, shim := testPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		req, err := controller.Accept(ctx)
		require.NoError(t, err)
		require.Equal(t, "/tmp/y", string(req))
		require.NoError(t, controller.Respond([]byte(ErrorSentinel)))
	}()

	_, err := shim.RoundTrip(ctx, []byte("/tmp/y"))
	require.ErrorIs(t, err, ErrNoImage)
	<-done
}

func TestRoundTripRejectsOversizedRequest(t *testing.T) {
	controller, shim := testPair(t)
	_ = controller
	_, err := shim.RoundTrip(context.Background(), make([]byte, DataSize+1))
	require.Error(t, err)
}

func TestSequentialRoundTripsReuseSingleSlot(t *testing.T) {
	controller, shim := testPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serve := func(path, response string) {
		req, err := controller.Accept(ctx)
		require.NoError(t, err)
		require.Equal(t, path, string(req))
		require.NoError(t, controller.Respond([]byte(response)))
	}

	go serve("/tmp/a", "aaaa")
	resp, err := shim.RoundTrip(ctx, []byte("/tmp/a"))
	require.NoError(t, err)
	require.Equal(t, "aaaa", string(resp))

	go serve("/tmp/b", "bb")
	resp, err = shim.RoundTrip(ctx, []byte("/tmp/b"))
	require.NoError(t, err)
	require.Equal(t, "bb", string(resp))
}
