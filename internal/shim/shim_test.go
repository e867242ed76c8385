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

package shim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/ndryden/pgdb-fileshim/cfg"
	"github.com/ndryden/pgdb-fileshim/internal/controller"
	"github.com/ndryden/pgdb-fileshim/internal/descriptors"
)

// startController runs a reference controller over a fresh hostname so
// parallel test runs never collide, and returns its canonical hostname
// prefix plus a teardown func.
func startController(t *testing.T, source controller.Source) (hostPrefix string, stop func()) {
	t.Helper()
	hostPrefix = fmt.Sprintf("Test%d%s", os.Getpid(), t.Name())

	c, err := controller.New(hostPrefix, source)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Serve(ctx)
	}()

	return hostPrefix, func() {
		cancel()
		<-done
		c.Close()
	}
}

func newRuntime(t *testing.T, hostPrefix string) *Runtime {
	t.Helper()
	rt := New(cfg.ShimConfig{HostnameOverride: hostPrefix, PollInterval: time.Millisecond}, nil)
	require.True(t, rt.Good())
	t.Cleanup(rt.Close)
	return rt
}

// realFile creates a real file so pathkey.Canonicalize resolves it
// deterministically, and returns its canonical path.
func realFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	resolved, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return resolved
}

func TestOpenServesVirtualFileFromController(t *testing.T) {
	path := realFile(t, "present.txt", "0123456789")
	hostPrefix, stop := startController(t, controller.Static{path: []byte("0123456789")})
	defer stop()
	rt := newRuntime(t, hostPrefix)

	id, virtual, err := rt.Open(context.Background(), path)
	require.NoError(t, err)
	require.True(t, virtual)

	got := make([]byte, 10)
	n, err := rt.Read(id, got)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(got[:n]))
}

func TestOpenPassesThroughWhenControllerHasNoImage(t *testing.T) {
	path := realFile(t, "absent.txt", "whatever")
	hostPrefix, stop := startController(t, controller.Static{})
	defer stop()
	rt := newRuntime(t, hostPrefix)

	id, virtual, err := rt.Open(context.Background(), path)
	require.NoError(t, err)
	require.False(t, virtual)
	require.Zero(t, id)
}

func TestOpenCachesNegativeResultWithoutSecondRoundTrip(t *testing.T) {
	path := realFile(t, "absent.txt", "whatever")
	calls := 0
	source := countingSource{Source: controller.Static{}, n: &calls}
	hostPrefix, stop := startController(t, source)
	defer stop()
	rt := newRuntime(t, hostPrefix)

	_, virtual, err := rt.Open(context.Background(), path)
	require.NoError(t, err)
	require.False(t, virtual)

	_, virtual, err = rt.Open(context.Background(), path)
	require.NoError(t, err)
	require.False(t, virtual)
	require.Equal(t, 1, calls, "second open must be served from the sticky negative cache entry")
}

// countingSource wraps a Source and counts Lookup calls, used to assert
// the path cache actually short-circuits a repeat open.
type countingSource struct {
	controller.Source
	n *int
}

func (s countingSource) Lookup(canonical string) ([]byte, bool) {
	*s.n++
	return s.Source.Lookup(canonical)
}

func TestOpenNeverVirtualizesProcPaths(t *testing.T) {
	hostPrefix, stop := startController(t, controller.Static{"/proc/self/status": []byte("x")})
	defer stop()
	rt := newRuntime(t, hostPrefix)

	id, virtual, err := rt.Open(context.Background(), "/proc/self/status")
	require.NoError(t, err)
	require.False(t, virtual)
	require.Zero(t, id)
}

func TestTwoOpensOfSamePathShareBufferButHaveIndependentOffsets(t *testing.T) {
	path := realFile(t, "shared.txt", "0123456789")
	hostPrefix, stop := startController(t, controller.Static{path: []byte("0123456789")})
	defer stop()
	rt := newRuntime(t, hostPrefix)

	id1, _, err := rt.Open(context.Background(), path)
	require.NoError(t, err)
	id2, _, err := rt.Open(context.Background(), path)
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	buf := make([]byte, 4)
	n, err := rt.Read(id1, buf)
	require.NoError(t, err)
	require.Equal(t, "0123", string(buf[:n]))

	buf2 := make([]byte, 10)
	n2, err := rt.Read(id2, buf2)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(buf2[:n2]))
}

func TestCloseFDRemovesDescriptor(t *testing.T) {
	path := realFile(t, "present.txt", "x")
	hostPrefix, stop := startController(t, controller.Static{path: []byte("x")})
	defer stop()
	rt := newRuntime(t, hostPrefix)

	id, _, err := rt.Open(context.Background(), path)
	require.NoError(t, err)
	require.True(t, rt.IsVirtual(id))

	require.NoError(t, rt.CloseFD(id))
	require.False(t, rt.IsVirtual(id))
}

func TestFcntlSucceedsSilentlyOnVirtualDescriptor(t *testing.T) {
	path := realFile(t, "present.txt", "x")
	hostPrefix, stop := startController(t, controller.Static{path: []byte("x")})
	defer stop()
	rt := newRuntime(t, hostPrefix)

	id, _, err := rt.Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, rt.Fcntl(id))
}

func TestFcntlOnUnknownDescriptorReturnsNotFound(t *testing.T) {
	hostPrefix, stop := startController(t, controller.Static{})
	defer stop()
	rt := newRuntime(t, hostPrefix)

	require.ErrorIs(t, rt.Fcntl(999999), descriptors.ErrNotFound)
}

func TestMmapThenMunmapThroughRuntime(t *testing.T) {
	path := realFile(t, "present.txt", "0123456789")
	hostPrefix, stop := startController(t, controller.Static{path: []byte("0123456789")})
	defer stop()
	rt := newRuntime(t, hostPrefix)

	id, _, err := rt.Open(context.Background(), path)
	require.NoError(t, err)

	mapped, err := rt.Mmap(id, false)
	require.NoError(t, err)
	require.Equal(t, "0123456789", string(mapped))

	require.True(t, rt.Munmap(uintptr(unsafe.Pointer(&mapped[0]))))
}

func TestRuntimeDegradesGracefullyWithoutController(t *testing.T) {
	rt := New(cfg.ShimConfig{HostnameOverride: "NoControllerListeningHere"}, nil)
	require.False(t, rt.Good())

	path := realFile(t, "present.txt", "x")
	id, virtual, err := rt.Open(context.Background(), path)
	require.NoError(t, err)
	require.False(t, virtual)
	require.Zero(t, id)

	rt.Close() // no-op, must not panic
}
