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

// Package shim is the process-wide interposer runtime (spec.md §4.1, §9
// "model them as a single shim singleton ... guarded by a single mutex,
// not as a scatter of unrelated globals"). Runtime owns the IPC channel,
// the path cache, the buffer pool, and the descriptor table, and exposes
// one method per spec.md §4.5 hook so cmd/libpgdbshim's exported C
// functions are thin dispatchers.
package shim

import (
	"context"
	"errors"
	"os"

	"github.com/jacobsa/syncutil"

	"github.com/ndryden/pgdb-fileshim/cfg"
	"github.com/ndryden/pgdb-fileshim/clock"
	"github.com/ndryden/pgdb-fileshim/internal/bufferpool"
	"github.com/ndryden/pgdb-fileshim/internal/descriptors"
	"github.com/ndryden/pgdb-fileshim/internal/ipc"
	"github.com/ndryden/pgdb-fileshim/internal/logger"
	"github.com/ndryden/pgdb-fileshim/internal/metrics"
	"github.com/ndryden/pgdb-fileshim/internal/pathcache"
	"github.com/ndryden/pgdb-fileshim/internal/pathkey"
)

// Runtime is the interposer's process-wide singleton. Every field it
// guards is mutated only while mu is held. mu is a syncutil.InvariantMutex
// built with checkInvariants, matching fs/fs.go's own discipline; it runs
// the check on Lock and Unlock only once syncutil.EnableInvariantChecking
// has been called, which nothing in this repository does.
type Runtime struct {
	mu syncutil.InvariantMutex

	// good mirrors gdb_load_file.c's _good flag: false once IPC channel
	// construction has failed, at which point every hook degrades to
	// pass-through for the rest of the process's life (spec.md §4.1,
	// §4.6). Set at construction and cleared only by Close (under mu);
	// Good and Open read it without taking mu.
	good bool

	seg     *ipc.Segment
	sem     *ipc.Semaphore
	channel *ipc.Channel

	cache   *pathcache.Cache
	table   *descriptors.Table
	metrics *metrics.Metrics
}

// New opens the IPC channel named after cfg's hostname override (or the
// real hostname) and returns a Runtime ready to serve hooks. A failure to
// open the channel is not returned as an error: it is logged once at
// WARNING severity and the Runtime comes back with Good() == false, so
// every hook call degrades to pass-through, matching the original's
// single printf-and-continue diagnostic (spec.md §4.1).
func New(shimCfg cfg.ShimConfig, m *metrics.Metrics) *Runtime {
	rt := &Runtime{
		cache:   pathcache.New(),
		table:   descriptors.NewTable(),
		metrics: m,
	}
	rt.mu = syncutil.NewInvariantMutex(rt.checkInvariants)

	hostname := shimCfg.HostnameOverride
	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			logger.Warnf("shim: could not determine hostname, disabling virtualization: %v", err)
			return rt
		}
		hostname = h
	}

	segName, semName := ipc.Names(hostname)
	seg, err := ipc.OpenSegment(segName)
	if err != nil {
		logger.Warnf("shim: could not open shared-memory segment %s, disabling virtualization: %v", segName, err)
		return rt
	}
	sem, err := ipc.OpenSemaphore(semName)
	if err != nil {
		logger.Warnf("shim: could not open semaphore %s, disabling virtualization: %v", semName, err)
		seg.Close()
		return rt
	}

	rt.seg = seg
	rt.sem = sem
	rt.channel = ipc.NewChannel(seg, sem, shimCfg.PollInterval, clock.RealClock{})
	rt.good = true
	return rt
}

// Good reports whether the IPC channel is usable. Hooks must check this
// before attempting to virtualize anything (spec.md §4.1, §4.6).
func (rt *Runtime) Good() bool {
	return rt.good
}

// Close tears the channel down: unmaps and unlinks the segment, closes
// and unlinks the semaphore (spec.md §4.1 "at process end ... unmaps the
// segment, unlinks it, closes the segment descriptor, unlinks the
// semaphore, and closes the semaphore"). Teardown errors are logged at
// WARNING and otherwise ignored, per spec.md §4.1; Close never returns an
// error so deferred callers never need to handle one.
func (rt *Runtime) Close() {
	if !rt.good {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if err := rt.seg.Close(); err != nil {
		logger.Warnf("shim: unmap segment: %v", err)
	}
	if err := rt.seg.Unlink(); err != nil {
		logger.Warnf("shim: unlink segment: %v", err)
	}
	if err := rt.sem.Close(); err != nil {
		logger.Warnf("shim: close semaphore: %v", err)
	}
	if err := rt.sem.Unlink(); err != nil {
		logger.Warnf("shim: unlink semaphore: %v", err)
	}
	rt.good = false
}

// checkInvariants checks that the path cache's positive-entry count does
// not exceed its total entry count and that the descriptor table length
// is not negative. PositiveCount and Len both derive from the same entries
// map, so a positive count exceeding the total entry count means the
// cache's own bookkeeping has torn. It does not count live data buffers,
// so it does not check that live buffers equal positive entries.
func (rt *Runtime) checkInvariants() {
	if rt.cache.PositiveCount() > rt.cache.Len() {
		panic("shim: positive filename entry count exceeds total entry count")
	}
	if rt.table.Len() < 0 {
		panic("shim: negative descriptor table length")
	}
}

// refreshGauges updates the point-in-time live-buffer/live-descriptor
// metrics after a mutation. Callers must hold mu.
func (rt *Runtime) refreshGauges() {
	rt.metrics.SetLiveBuffers(rt.cache.PositiveCount())
	rt.metrics.SetLiveDescriptors(rt.table.Len())
}

// Open resolves path, consulting the path cache first and falling back to
// an IPC round-trip to the controller on a miss (spec.md §4.3, §5). It
// never holds mu across the round-trip: RoundTrip is only ever called
// between an Unlock and the following Lock. virtual is false whenever the
// path must pass through to the real OS, either because it falls under
// /proc, the channel is not Good, or the controller has no image for it.
func (rt *Runtime) Open(ctx context.Context, path string) (id int64, virtual bool, err error) {
	canonical, err := pathkey.Canonicalize(path)
	if err != nil {
		return 0, false, err
	}
	if pathkey.IsProc(canonical) {
		return 0, false, nil
	}
	if !rt.good {
		return 0, false, nil
	}

	if id, ok := rt.openFromCache(canonical); ok {
		return id, true, nil
	}

	payload, rtErr := rt.channel.RoundTrip(ctx, []byte(canonical))
	rt.metrics.RoundTrip()

	rt.mu.Lock()
	defer rt.mu.Unlock()

	// Double-checked locking (spec.md §5): another goroutine may have
	// completed the same round-trip and installed a cache entry while
	// this one was blocked on the semaphore wait.
	if entry := rt.cache.Lookup(canonical); entry != nil {
		return rt.openFromEntryLocked(entry)
	}

	if errors.Is(rtErr, ipc.ErrNoImage) {
		rt.cache.PutNegative(canonical)
		rt.metrics.CacheMiss()
		return 0, false, nil
	}
	if rtErr != nil {
		logger.Warnf("shim: IPC round-trip for %s failed, passing through: %v", canonical, rtErr)
		return 0, false, nil
	}

	buf := bufferpool.New(payload)
	rt.cache.PutPositive(canonical, buf)
	d := rt.table.Create(canonical, buf)
	rt.metrics.CacheMiss()
	rt.metrics.DescriptorOpened()
	rt.refreshGauges()
	return d.ID, true, nil
}

// openFromCache takes mu only long enough to check for an already-cached
// entry, so the common warm-path case never touches the IPC channel.
func (rt *Runtime) openFromCache(canonical string) (int64, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	entry := rt.cache.Lookup(canonical)
	if entry == nil {
		return 0, false
	}
	id, virtual := rt.openFromEntryLocked(entry)
	return id, virtual
}

// openFromEntryLocked installs a new descriptor from an already-resolved
// cache entry. Callers must hold mu.
func (rt *Runtime) openFromEntryLocked(entry *pathcache.Entry) (int64, bool) {
	if entry.Status == pathcache.Negative {
		rt.metrics.NegativeHit()
		return 0, false
	}
	entry.Buffer.Acquire()
	d := rt.table.Create(entry.Path, entry.Buffer)
	rt.metrics.CacheHit()
	rt.metrics.DescriptorOpened()
	rt.refreshGauges()
	return d.ID, true
}

// IsVirtual reports whether id names a currently open virtual descriptor.
func (rt *Runtime) IsVirtual(id int64) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.table.Lookup(id) != nil
}

// CloseFD closes a virtual descriptor (spec.md §4.5 close/fclose). Named
// CloseFD rather than Close to avoid colliding with the Runtime's own
// teardown method of the same name.
func (rt *Runtime) CloseFD(id int64) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	err := rt.table.Close(id)
	if err == nil {
		rt.metrics.DescriptorClosed()
		rt.refreshGauges()
	}
	return err
}

func (rt *Runtime) Read(id int64, p []byte) (int, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.table.Read(id, p)
}

func (rt *Runtime) Pread(id int64, p []byte, off int64) (int, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.table.Pread(id, p, off)
}

func (rt *Runtime) Write(id int64) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.table.Write(id)
}

func (rt *Runtime) Seek(id int64, offset int64, whence descriptors.Whence) (int64, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.table.Seek(id, offset, whence)
}

func (rt *Runtime) Fcntl(id int64) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.table.Fcntl(id)
}

func (rt *Runtime) Fstat(id int64) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.table.Fstat(id)
}

func (rt *Runtime) Fgetc(id int64) (byte, bool, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.table.Fgetc(id)
}

func (rt *Runtime) Fgets(id int64, size int) ([]byte, bool, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.table.Fgets(id, size)
}

func (rt *Runtime) Feof(id int64) (bool, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.table.Feof(id)
}

func (rt *Runtime) Mmap(id int64, fixed bool) ([]byte, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.table.Mmap(id, fixed)
}

func (rt *Runtime) Munmap(addr uintptr) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	found := rt.table.Munmap(addr)
	if found {
		rt.refreshGauges()
	}
	return found
}
