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

// Package bufferpool implements the reference-counted data buffers shared
// by every virtual descriptor (and active mmap) derived from the same
// canonical path (spec.md §3 "Data buffer", §4.4).
//
// Callers are responsible for external synchronization: exactly like
// fs/inode/lookup_count.go in the teacher this package is built from, a
// Buffer carries no lock of its own. The shim singleton (internal/shim)
// guards every call with its own mutex.
package bufferpool

// Owner is the narrow view of a filename-cache entry that a Buffer needs in
// order to remove itself when its last reference goes away. It is
// satisfied by *pathcache.Entry without bufferpool importing pathcache,
// avoiding an import cycle (pathcache.Entry.Buffer references *Buffer).
type Owner interface {
	// Forget is called exactly once, when the buffer's refcount reaches
	// zero and the owner back-reference is non-nil (spec.md §3 Data buffer
	// invariant; §9 Open Question on the null back-reference).
	Forget()
}

// Buffer is an owned, reference-counted byte blob. One Buffer backs every
// virtual descriptor and active mmap mapping derived from the same
// canonical path (spec.md §3, §4.4).
type Buffer struct {
	Bytes    []byte
	Refcount int
	// owner is the filename-cache entry that names this buffer, or nil if
	// none has attached yet (or it was created unattached; spec.md §9).
	owner Owner
}

// New creates a buffer with the initial refcount of 2 specified by
// spec.md §4.4: one reference for the descriptor that is about to be
// created from it, one for the filename entry that will name it. The
// owner is attached later via SetOwner once the filename entry exists,
// mirroring create_data_buffer/create_file_from_shmem in
// gdb_load_file.c:125-132,440-447, where the filename back-reference is
// set only after the buffer already exists.
func New(bytes []byte) *Buffer {
	return &Buffer{
		Bytes:    bytes,
		Refcount: 2,
	}
}

// SetOwner attaches the filename-cache entry that names this buffer.
func (b *Buffer) SetOwner(owner Owner) {
	b.owner = owner
}

// Acquire increments the refcount for a new reference (a new descriptor
// sharing this path's buffer, or a new mmap mapping).
func (b *Buffer) Acquire() {
	b.Refcount++
}

// Release drops one reference. When the refcount reaches zero the bytes
// are freed (eligible for GC) and, if an owner is attached, it is told to
// forget this buffer. A Buffer with Refcount == 0 must never be touched
// again (spec.md §3 Data buffer invariant).
func (b *Buffer) Release() {
	b.Refcount--
	if b.Refcount == 0 {
		b.Bytes = nil
		if b.owner != nil {
			b.owner.Forget()
		}
	}
}

// Len reports the number of valid bytes in the buffer.
func (b *Buffer) Len() int {
	return len(b.Bytes)
}
