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

// Package descriptors implements the virtual descriptor table and the
// per-hook dispatch semantics of spec.md §4.5: a registry of open virtual
// descriptors, each with its own seek offset and a reference to a shared
// data buffer, plus the read/seek/mmap/etc. behavior each hook needs.
//
// Like pathcache and bufferpool, Table carries no lock of its own —
// internal/shim.Runtime guards every call with its process-wide mutex.
package descriptors

import (
	"errors"

	"github.com/ndryden/pgdb-fileshim/internal/bufferpool"
)

// FirstID is the lowest virtual descriptor id (spec.md §3: "unique
// integer ≥ 65535").
const FirstID = 65535

// Errors surfaced by hook dispatch (spec.md §7). cmd/libpgdbshim maps
// these to errno values at the cgo boundary.
var (
	// ErrUnsupportedWrite is returned for write/fwrite on a virtual
	// descriptor: writes to intercepted files are never supported.
	ErrUnsupportedWrite = errors.New("descriptors: write unsupported on virtual descriptor")
	// ErrInvalidWhence is returned for an unrecognized lseek/fseeko64
	// base.
	ErrInvalidWhence = errors.New("descriptors: invalid whence")
	// ErrFixedMmap is returned when mmap of a virtual descriptor
	// requests a fixed address.
	ErrFixedMmap = errors.New("descriptors: fixed-address mmap unsupported on virtual descriptor")
	// ErrNotFound is returned when an id is not present in the table;
	// callers use this to decide to pass the call through to libc.
	ErrNotFound = errors.New("descriptors: id not found")
)

// Whence mirrors the three bases understood by lseek/fseeko64 (spec.md
// §4.5). Mapping to unix.SEEK_* is done by callers; this package stays
// syscall-package-agnostic so it is easy to unit test without a kernel.
type Whence int

const (
	SeekSet Whence = iota
	SeekCur
	SeekEnd
)

// Descriptor is one open virtual descriptor (spec.md §3 "Virtual
// descriptor").
type Descriptor struct {
	ID     int64
	Path   string
	Offset int64
	Buffer *bufferpool.Buffer
}

// Table is the process-wide registry of open virtual descriptors.
type Table struct {
	byID   map[int64]*Descriptor
	nextID int64
}

// NewTable creates an empty descriptor table whose first issued id is
// FirstID.
func NewTable() *Table {
	return &Table{byID: make(map[int64]*Descriptor), nextID: FirstID}
}

// Create installs a new virtual descriptor bound to buf at offset 0 and
// returns it. The caller must already hold a reference on buf for this
// descriptor (Create does not call buf.Acquire()).
func (t *Table) Create(path string, buf *bufferpool.Buffer) *Descriptor {
	d := &Descriptor{ID: t.nextID, Path: path, Buffer: buf}
	t.nextID++
	t.byID[d.ID] = d
	return d
}

// Lookup returns the descriptor for id, or nil if id is not virtual.
func (t *Table) Lookup(id int64) *Descriptor {
	return t.byID[id]
}

// LookupByBufferAddr finds a virtual descriptor whose buffer's first byte
// is at exactly addr (used by Munmap, spec.md §4.5: the
// kernel munmap(2) is keyed by address, the spec's virtual munmap
// likewise searches the table for a matching buffer).
func (t *Table) LookupByBufferAddr(addr uintptr) *Descriptor {
	for _, d := range t.byID {
		if d.Buffer != nil && len(d.Buffer.Bytes) > 0 && bufferAddr(d.Buffer.Bytes) == addr {
			return d
		}
	}
	return nil
}

// Remove deletes a descriptor from the table. It does not release the
// descriptor's buffer reference; callers do that themselves so the
// order (release-then-remove or remove-then-release) stays their call.
func (t *Table) Remove(id int64) {
	delete(t.byID, id)
}

// Len reports the number of live descriptors, used by invariant checks.
func (t *Table) Len() int {
	return len(t.byID)
}

// Close releases the descriptor's buffer reference and removes it from
// the table (spec.md §4.5 `close`/`fclose`).
func (t *Table) Close(id int64) error {
	d := t.byID[id]
	if d == nil {
		return ErrNotFound
	}
	d.Buffer.Release()
	delete(t.byID, id)
	return nil
}

// Read copies up to len(p) bytes from buffer.bytes[offset ..] into p,
// advances offset, and reports the number of bytes copied (0 at end of
// buffer; spec.md §4.5 `read`/`fread`).
func (t *Table) Read(id int64, p []byte) (int, error) {
	d := t.byID[id]
	if d == nil {
		return 0, ErrNotFound
	}
	n := copyFrom(d.Buffer.Bytes, d.Offset, p)
	d.Offset += int64(n)
	return n, nil
}

// Pread performs a read-style copy at a caller-supplied offset without
// disturbing the descriptor's seek offset (spec.md §4.5 `pread`).
func (t *Table) Pread(id int64, p []byte, off int64) (int, error) {
	d := t.byID[id]
	if d == nil {
		return 0, ErrNotFound
	}
	return copyFrom(d.Buffer.Bytes, off, p), nil
}

// Write always fails for virtual descriptors (spec.md §4.5 `write`/
// `fwrite`, §7 Unsupported virtual operation).
func (t *Table) Write(id int64) error {
	if t.byID[id] == nil {
		return ErrNotFound
	}
	return ErrUnsupportedWrite
}

// Seek updates the descriptor's offset per the SET/CUR/END base (spec.md
// §4.5 `lseek`/`fseeko64`). Seeking before zero is unconstrained; seeking
// past end is allowed.
func (t *Table) Seek(id int64, offset int64, whence Whence) (int64, error) {
	d := t.byID[id]
	if d == nil {
		return 0, ErrNotFound
	}
	var base int64
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = d.Offset
	case SeekEnd:
		base = int64(d.Buffer.Len())
	default:
		return 0, ErrInvalidWhence
	}
	d.Offset = base + offset
	return d.Offset, nil
}

// Fgetc performs a one-byte read, returning the byte value, ok=false at
// end of buffer (spec.md §4.5 `fgetc`).
func (t *Table) Fgetc(id int64) (b byte, ok bool, err error) {
	d := t.byID[id]
	if d == nil {
		return 0, false, ErrNotFound
	}
	if d.Offset >= int64(d.Buffer.Len()) {
		return 0, false, nil
	}
	b = d.Buffer.Bytes[d.Offset]
	d.Offset++
	return b, true, nil
}

// Fgets reads up to size-1 bytes (or fewer, at the first '\n' or EOF)
// starting at the descriptor's offset, matching the resolution of
// spec.md §9's "fgets over virtual streams" Open Question: repeated
// single-byte reads via the existing read path. Returns ok=false (and no
// bytes consumed) when already at end of buffer, matching libc's NULL
// return for fgets at EOF.
func (t *Table) Fgets(id int64, size int) (line []byte, ok bool, err error) {
	d := t.byID[id]
	if d == nil {
		return nil, false, ErrNotFound
	}
	if size <= 0 {
		return nil, false, nil
	}
	if d.Offset >= int64(d.Buffer.Len()) {
		return nil, false, nil
	}
	max := size - 1
	for len(line) < max {
		b, ok, _ := t.Fgetc(id)
		if !ok {
			break
		}
		line = append(line, b)
		if b == '\n' {
			break
		}
	}
	return line, true, nil
}

// Feof reports whether the descriptor's offset has reached buffer
// length (spec.md §4.5 `feof`).
func (t *Table) Feof(id int64) (bool, error) {
	d := t.byID[id]
	if d == nil {
		return false, ErrNotFound
	}
	return d.Offset >= int64(d.Buffer.Len()), nil
}

// Fstat zeroes the caller's stat buffer by contract: virtual descriptors
// report a zero size (spec.md §4.5 `fstat`, a documented limitation).
// Table has no kernel struct stat type to fill, so this is purely a
// membership check for cmd/libpgdbshim to act on.
func (t *Table) Fstat(id int64) error {
	if t.byID[id] == nil {
		return ErrNotFound
	}
	return nil
}

// Fcntl reports whether id is virtual so the caller can succeed silently
// without forwarding to the real fcntl(2) (spec.md §4.5 `fcntl`:
// "succeed silently" for virtual descriptors, matching
// gdb_load_file.c:505-519's unconditional `return 0`).
func (t *Table) Fcntl(id int64) error {
	if t.byID[id] == nil {
		return ErrNotFound
	}
	return nil
}

// Mmap acquires one additional buffer reference for an mmap mapping and
// returns the buffer bytes to back it (spec.md §4.5 `mmap`). fixed
// reports whether the caller requested a fixed address, which virtual
// mmap never supports.
func (t *Table) Mmap(id int64, fixed bool) ([]byte, error) {
	d := t.byID[id]
	if d == nil {
		return nil, ErrNotFound
	}
	if fixed {
		return nil, ErrFixedMmap
	}
	d.Buffer.Acquire()
	return d.Buffer.Bytes, nil
}

// Munmap releases the mmap reference and removes the matching descriptor
// (spec.md §4.5 `munmap`: "search the descriptor table for any virtual
// descriptor whose buffer bytes address equals the input address ... if
// found, delete that descriptor"). Deleting the descriptor releases its
// own backing reference in addition to the one Mmap acquired for the
// mapping itself, so two releases happen here: spec.md §8's worked
// example (open, mmap, munmap, no close) ends at refcount 1 — the
// filename entry's reference alone — which only holds if both go away.
// Returns found=false if no virtual descriptor's buffer matches addr,
// telling the caller to pass through.
func (t *Table) Munmap(addr uintptr) (found bool) {
	d := t.LookupByBufferAddr(addr)
	if d == nil {
		return false
	}
	d.Buffer.Release() // the mmap mapping's reference
	d.Buffer.Release() // the descriptor's own reference
	delete(t.byID, d.ID)
	return true
}

func copyFrom(src []byte, offset int64, dst []byte) int {
	if offset < 0 || offset >= int64(len(src)) {
		return 0
	}
	return copy(dst, src[offset:])
}
