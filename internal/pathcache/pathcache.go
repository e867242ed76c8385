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

// Package pathcache implements the filename-entry registry of spec.md §3
// and §4.3: one entry per canonical path, either a sticky negative result
// or a positive binding to a shared data buffer. It is a direct Go
// translation of the intrusive doubly-linked list in gdb_load_file.c
// (filename_list_t / create_filename_entry / get_filename_entry /
// add_filename_entry / del_filename_entry, lines 52-200) into a map, since
// spec.md §3 itself states that iteration order over the filename registry
// is not observable.
//
// Like bufferpool, this package holds no lock of its own; the shim
// singleton guards every call with its own mutex (spec.md §5).
package pathcache

import "github.com/ndryden/pgdb-fileshim/internal/bufferpool"

// Status is the state of a filename entry.
type Status int

const (
	// Negative means the controller has previously reported no image for
	// this path. Negative entries are sticky for the lifetime of the
	// process (spec.md §4.3): the shim never re-asks the controller for a
	// path it has already learned has no image.
	Negative Status = iota
	// BoundToBuffer means the path is served from Buffer.
	BoundToBuffer
)

// Entry is a filename-cache entry (spec.md §3 "Filename entry").
type Entry struct {
	Path   string
	Status Status
	Buffer *bufferpool.Buffer

	cache *Cache
}

// Forget implements bufferpool.Owner: called when this entry's buffer's
// refcount reaches zero, removing the entry from its cache. See spec.md §3
// Data buffer invariant and §9's Open Question on the null back-reference
// (entries created without ever attaching to a buffer never see this
// called, by construction: Forget is only wired up after Buffer.SetOwner).
func (e *Entry) Forget() {
	if e.cache != nil {
		e.cache.remove(e.Path)
	}
}

// Cache is the process-wide filename-entry registry.
type Cache struct {
	entries map[string]*Entry
}

// New creates an empty path cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*Entry)}
}

// Lookup returns the entry for a canonical path, or nil if the path has
// never been seen.
func (c *Cache) Lookup(canonical string) *Entry {
	return c.entries[canonical]
}

// PutNegative installs a sticky negative entry for a canonical path that
// the controller reported as having no image.
func (c *Cache) PutNegative(canonical string) *Entry {
	e := &Entry{Path: canonical, Status: Negative, cache: c}
	c.entries[canonical] = e
	return e
}

// PutPositive installs an entry bound to buf, setting buf's owner
// back-reference so the buffer can remove this entry when it is finally
// released (spec.md §3 Data buffer invariant).
func (c *Cache) PutPositive(canonical string, buf *bufferpool.Buffer) *Entry {
	e := &Entry{Path: canonical, Status: BoundToBuffer, Buffer: buf, cache: c}
	buf.SetOwner(e)
	c.entries[canonical] = e
	return e
}

func (c *Cache) remove(canonical string) {
	delete(c.entries, canonical)
}

// Len reports the number of live filename entries, used by invariant
// checks (spec.md §8: "number of live data buffers equals the number of
// filename entries with positive status").
func (c *Cache) Len() int {
	return len(c.entries)
}

// PositiveCount reports the number of entries currently bound to a buffer.
func (c *Cache) PositiveCount() int {
	n := 0
	for _, e := range c.entries {
		if e.Status == BoundToBuffer {
			n++
		}
	}
	return n
}
